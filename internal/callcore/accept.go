package callcore

import (
	"context"
	"log/slog"
)

// handleRemoteAcceptStep1 implements §4.7 step 1: commit the active
// device and silence the others. Runs on the connection-state transition
// that first signals remote acceptance (§4.5 rows 3 and 5).
func (d *Dispatcher) handleRemoteAcceptStep1(call *Call, device DeviceId) {
	if err := call.setActiveDevice(device); err != nil {
		slog.Error("failed to commit active device", "error", err)
		return
	}

	slog.Debug("committed active device", "call_id", call.ID(), "device", device, "silenced", call.OtherRemoteDevices(device))

	scheduleUntilTerminating(d.worker, d.queue, call, "propagate accepted-on-another-device", func(c *Call) error {
		ctx := context.Background()
		h := AcceptedOnAnotherDevice(device)
		if err := d.platform.Media.SendHangupViaRtpDataToAllExcept(ctx, c.ID(), h, device); err != nil {
			return err
		}
		// Belt-and-braces path for devices not yet reachable on the media
		// channel, plus synchronous termination of every non-active
		// connection (§4.7).
		if err := d.platform.Signaling.SendHangupViaSignalingToAllExcept(ctx, c.ID(), h, device); err != nil {
			return err
		}
		return d.platform.Media.TerminateConnectionsExceptAccepted(ctx, c.ID(), device)
	})
}

// handleRemoteAcceptStep2 implements §4.7 step 2: enable outgoing media on
// the chosen device. Runs only after the active connection actually
// reaches ConnectedAndAccepted.
func (d *Dispatcher) handleRemoteAcceptStep2(call *Call) {
	scheduleUntilTerminating(d.worker, d.queue, call, "accept_remotely", func(c *Call) error {
		return d.platform.Media.AcceptRemotely(context.Background(), c.ID())
	})
}
