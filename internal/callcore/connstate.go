package callcore

import (
	"context"
	"log/slog"
)

// handleConnectionObserverEvent implements the per-connection state change
// subprotocol of §4.5 and the auxiliary-event forwarding rules in its
// closing paragraph.
func (d *Dispatcher) handleConnectionObserverEvent(call *Call, ev ConnectionObserverEvent, device DeviceId) {
	// IceFailed is always handled, even from a non-active device (§3
	// invariant: "except IceFailed, which is always handled").
	if ev.Kind == ObsStateChanged && ev.State == ConnStateIceFailed {
		scheduleUntilTerminating(d.worker, d.queue, call, "handle_ice_failed", func(c *Call) error {
			return d.platform.Media.HandleIceFailed(context.Background(), c.ID(), device)
		})
		return
	}

	// Once an active device has been chosen, every other device's reports
	// are ignored (except IceFailed, handled above) (§3 invariant).
	if active, has := call.ActiveDeviceId(); has && active != device {
		slog.Debug("ignoring observer event from non-active device", "call_id", call.ID(), "device", device, "active", active)
		return
	}

	if ev.Kind == ObsStateChanged {
		d.handleConnectionStateChanged(call, ev.State, device)
		return
	}

	d.forwardAuxiliary(call, ev, device)
}

// handleConnectionStateChanged implements the numbered rows of §4.5.
func (d *Dispatcher) handleConnectionStateChanged(call *Call, next ConnectionState, device DeviceId) {
	direction := call.Direction()
	state := call.State()

	switch {
	// Row 1: Incoming, ConnectingBeforeAccepted -> ConnectedBeforeAccepted.
	case direction == Incoming && state == ConnectingBeforeAccepted && next == ConnStateConnectedBeforeAccepted:
		d.transition(call, ConnectedBeforeAccepted)
		d.notifyApp(call, LocalRinging)

	// Row 2: Outgoing, ConnectingBeforeAccepted -> ConnectedBeforeAccepted.
	case direction == Outgoing && state == ConnectingBeforeAccepted && next == ConnStateConnectedBeforeAccepted:
		d.transition(call, ConnectedBeforeAccepted)
		d.notifyApp(call, RemoteRinging)

	// Row 3: Outgoing, {ConnectingBeforeAccepted,ConnectedBeforeAccepted} -> ConnectingAfterAccepted.
	case direction == Outgoing && (state == ConnectingBeforeAccepted || state == ConnectedBeforeAccepted) && next == ConnStateConnectingAfterAccepted:
		d.transition(call, ConnectingAfterAccepted)
		d.handleRemoteAcceptStep1(call, device)

	// Row 4: Outgoing, ConnectingAfterAccepted -> ConnectedAndAccepted, matching active device.
	case direction == Outgoing && state == ConnectingAfterAccepted && next == ConnStateConnectedAndAccepted:
		if !call.IsActiveDevice(device) {
			slog.Debug("ignoring ConnectedAndAccepted from non-active device", "call_id", call.ID(), "device", device)
			return
		}
		// Deliberate: notify RemoteRinging again for UI state-machine
		// parity before advancing state (§9 design notes).
		d.notifyApp(call, RemoteRinging)
		d.transition(call, ConnectedAndAccepted)
		d.handleRemoteAcceptStep2(call)

	// Row 5: Outgoing, ConnectedBeforeAccepted -> ConnectedAndAccepted: step 1 then step 2 back-to-back.
	case direction == Outgoing && state == ConnectedBeforeAccepted && next == ConnStateConnectedAndAccepted:
		d.transition(call, ConnectedAndAccepted)
		d.handleRemoteAcceptStep1(call, device)
		d.handleRemoteAcceptStep2(call)

	// Row 6: Incoming, ConnectedBeforeAccepted -> ConnectedAndAccepted: local-accept path already advanced state.
	case direction == Incoming && state == ConnectedBeforeAccepted && next == ConnStateConnectedAndAccepted:
		// no-op

	// Row 7: ConnectedAndAccepted -> ReconnectingAfterAccepted on active device.
	case state == ConnectedAndAccepted && next == ConnStateReconnectingAfterAccepted:
		if !call.IsActiveDevice(device) {
			slog.Debug("ignoring Reconnecting from non-active device", "call_id", call.ID(), "device", device)
			return
		}
		d.transition(call, ReconnectingAfterAccepted)
		d.notifyApp(call, Reconnecting)

	// Row 8: ReconnectingAfterAccepted -> ConnectedAndAccepted on active device.
	case state == ReconnectingAfterAccepted && next == ConnStateConnectedAndAccepted:
		if !call.IsActiveDevice(device) {
			slog.Debug("ignoring Reconnected from non-active device", "call_id", call.ID(), "device", device)
			return
		}
		d.transition(call, ConnectedAndAccepted)
		d.notifyApp(call, Reconnected)

	// Row 11: uninteresting but possible transitions, silently accepted.
	case isUninterestingTransition(state, next):
		// no-op

	default:
		slog.Error("unexpected connection state tuple", "call_id", call.ID(), "direction", direction, "call_state", state, "conn_state", next, "device", device)
	}
}

// isUninterestingTransition covers §4.5 row 11: gathering/starting/
// terminating progress and a duplicate ConnectedBeforeAccepted report for
// an outgoing call are accepted without comment.
func isUninterestingTransition(state CallState, next ConnectionState) bool {
	switch next {
	case ConnStateStarting, ConnStateIceGathering, ConnStateTerminating, ConnStateTerminated, ConnStateNotYetStarted:
		return true
	case ConnStateConnectedBeforeAccepted:
		return state == ConnectedBeforeAccepted
	default:
		return false
	}
}

// transition applies a CallState change, logging rather than crashing if
// the dispatcher's own table produced an illegal edge (defense in depth;
// the switch above is built to only ever request legal edges).
func (d *Dispatcher) transition(call *Call, next CallState) {
	if err := call.setState(next); err != nil {
		slog.Error("illegal call state transition", "error", err)
	}
}

// forwardAuxiliary implements the filtering rule for RemoteSenderStatus
// Changed, IceNetworkRouteChanged, AudioLevels and LowBandwidthForVideo:
// before an active device is chosen, route/status reports are dropped
// (the sender retransmits on the next change); audio levels and low-
// bandwidth flags always forward.
func (d *Dispatcher) forwardAuxiliary(call *Call, ev ConnectionObserverEvent, device DeviceId) {
	_, hasActive := call.ActiveDeviceId()

	switch ev.Kind {
	case ObsRemoteSenderStatusChanged:
		if !hasActive {
			return
		}
		d.platform.Notify.OnRemoteSenderStatusChanged(call.ID(), ev.VideoEnabled, ev.SharingScreen, ev.AudioEnabled)
		if ev.VideoEnabled != nil {
			if *ev.VideoEnabled {
				d.notifyApp(call, RemoteVideoEnable)
			} else {
				d.notifyApp(call, RemoteVideoDisable)
			}
		}
		if ev.SharingScreen != nil {
			if *ev.SharingScreen {
				d.notifyApp(call, RemoteSharingScreenEnable)
			} else {
				d.notifyApp(call, RemoteSharingScreenDisable)
			}
		}
		if ev.AudioEnabled != nil {
			if *ev.AudioEnabled {
				d.notifyApp(call, RemoteAudioEnable)
			} else {
				d.notifyApp(call, RemoteAudioDisable)
			}
		}

	case ObsIceNetworkRouteChanged:
		if !hasActive {
			return
		}
		d.notify.Post(func() { d.platform.Notify.OnNetworkRouteChanged(call.ID(), ev.Route) })

	case ObsAudioLevels:
		d.notify.Post(func() { d.platform.Notify.OnAudioLevels(call.ID(), ev.CapturedLevel, ev.ReceivedLevel) })

	case ObsLowBandwidthForVideo:
		d.notify.Post(func() { d.platform.Notify.OnLowBandwidthForVideo(call.ID(), ev.Recovered) })
	}
}

// notifyApp schedules a single ApplicationEvent on the Notify pool.
func (d *Dispatcher) notifyApp(call *Call, event ApplicationEvent) {
	d.notify.Post(func() { d.platform.Notify.OnApplicationEvent(call.ID(), event) })
}
