package callcore

import (
	"context"
	"log/slog"
)

// hangupDecision is the result of decideHangup: whether the pairing was
// expected, the hangup (if any) this caller should propagate to its other
// callees, and an application-event override (if any) (§4.6, §9 "prefer a
// pure function").
type hangupDecision struct {
	expected       bool
	propagate      Hangup
	shouldPropagate bool
	appEvent       ApplicationEvent
	hasAppEvent    bool
}

// decideHangup is the pure decision table of §4.6. It never touches Call
// state so it can be enumerated exhaustively by tests.
func decideHangup(hangupType HangupType, direction Direction, sender DeviceId) hangupDecision {
	switch {
	case hangupType == HangupNeedPermission && direction == Outgoing:
		return hangupDecision{
			expected:        true,
			propagate:       NeedPermissionHangup(sender, true),
			shouldPropagate: true,
			appEvent:        EndedRemoteHangupNeedPermission,
			hasAppEvent:     true,
		}

	case hangupType == HangupNormal && direction == Incoming:
		return hangupDecision{expected: true}

	case hangupType == HangupNormal && direction == Outgoing:
		return hangupDecision{
			expected:        true,
			propagate:       DeclinedOnAnotherDevice(sender),
			shouldPropagate: true,
		}

	case hangupType == HangupAcceptedOnAnotherDevice && direction == Incoming:
		return hangupDecision{expected: true, appEvent: EndedRemoteHangupAccepted, hasAppEvent: true}

	case hangupType == HangupDeclinedOnAnotherDevice && direction == Incoming:
		return hangupDecision{expected: true, appEvent: EndedRemoteHangupDeclined, hasAppEvent: true}

	case hangupType == HangupBusyOnAnotherDevice && direction == Incoming:
		return hangupDecision{expected: true, appEvent: EndedRemoteHangupBusy, hasAppEvent: true}

	default:
		// Every other (hangupType, direction) pairing is unexpected,
		// including NeedPermission on an Incoming call: the source
		// deliberately falls through to the no-override, no-propagation
		// path here rather than suppressing the notification (§9 open
		// question, preserved intentionally).
		return hangupDecision{expected: false}
	}
}

// handleReceivedHangup implements §4.6 in full: the self-echo and
// already-connected-to-another-device filters, the decision table, the
// CallState transition to Terminating, hangup propagation, and the
// unconditional remote_hangup notification.
func (d *Dispatcher) handleReceivedHangup(call *Call, received ReceivedHangup) {
	direction := call.Direction()

	// Filter 1: self-echo. An incoming call ignores a hangup whose
	// embedded device id names this device.
	if direction == Incoming && received.Hangup.HasDevice && received.Hangup.DeviceId == call.LocalDeviceId() {
		slog.Debug("ignoring self-echoed hangup", "call_id", call.ID())
		return
	}

	// Filter 2: once connected to a specific device, ignore hangups from
	// any other device.
	if active, has := call.ActiveDeviceId(); has && received.SenderDevice != active {
		slog.Debug("ignoring hangup from non-connected device", "call_id", call.ID(), "sender", received.SenderDevice, "active", active)
		return
	}

	decision := decideHangup(received.Hangup.Type, direction, received.SenderDevice)
	if !decision.expected {
		slog.Warn("unexpected received-hangup pairing", "call_id", call.ID(), "hangup_type", received.Hangup.Type, "direction", direction)
	}

	state := call.State()
	if state.canBeTerminatedRemotely() {
		d.transition(call, Terminating)
	}

	if decision.shouldPropagate && state.shouldPropagateHangup() {
		except := DeviceId(0)
		if decision.propagate.HasDevice {
			except = decision.propagate.DeviceId
		}
		h := decision.propagate
		scheduleEvenWhenTerminating(d.worker, d.queue, call, "propagate received hangup", func(c *Call) error {
			ctx := context.Background()
			if err := d.platform.Media.SendHangupViaRtpDataToAllExcept(ctx, c.ID(), h, except); err != nil {
				return err
			}
			return d.platform.Signaling.SendHangupViaSignalingToAllExcept(ctx, c.ID(), h, except)
		})
	}

	appEvent := EndedRemoteHangup
	if decision.hasAppEvent {
		appEvent = decision.appEvent
	}
	// The user always learns of a remote hangup, terminating or not
	// (§4.6, §8 invariant 4).
	scheduleEvenWhenTerminating(d.notify, d.queue, call, "remote_hangup notification", func(c *Call) error {
		d.platform.Manager.OnRemoteHangup(c.ID(), appEvent)
		d.platform.Notify.OnApplicationEvent(c.ID(), appEvent)
		return nil
	})
}
