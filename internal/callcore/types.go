// Package callcore implements the Call Control Core: the finite-state
// machine and dispatch engine that mediates between a real-time 1:1 calling
// client application and a set of per-device media connections.
package callcore

import (
	"fmt"
	"time"
)

// CallId uniquely identifies a Call for the lifetime of the process.
type CallId uint64

// DeviceId identifies one of a remote peer's devices.
type DeviceId uint32

// Direction is the orientation of a Call: who placed it.
type Direction int

const (
	// Outgoing means the local user placed the call.
	Outgoing Direction = iota
	// Incoming means the remote peer placed the call.
	Incoming
)

func (d Direction) String() string {
	switch d {
	case Outgoing:
		return "Outgoing"
	case Incoming:
		return "Incoming"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// CallState is the call-level lifecycle phase. Values are ordered roughly
// by the order a well-behaved call passes through them, but the only
// authoritative transitions are the edges in the table driven by
// Dispatcher.handleEvent (§4.4 of the design).
type CallState int

const (
	NotYetStarted CallState = iota
	WaitingToProceed
	ConnectingBeforeAccepted
	ConnectedBeforeAccepted
	ConnectingAfterAccepted
	ConnectedAndAccepted
	ReconnectingAfterAccepted
	Terminating
	Terminated
)

func (s CallState) String() string {
	switch s {
	case NotYetStarted:
		return "NotYetStarted"
	case WaitingToProceed:
		return "WaitingToProceed"
	case ConnectingBeforeAccepted:
		return "ConnectingBeforeAccepted"
	case ConnectedBeforeAccepted:
		return "ConnectedBeforeAccepted"
	case ConnectingAfterAccepted:
		return "ConnectingAfterAccepted"
	case ConnectedAndAccepted:
		return "ConnectedAndAccepted"
	case ReconnectingAfterAccepted:
		return "ReconnectingAfterAccepted"
	case Terminating:
		return "Terminating"
	case Terminated:
		return "Terminated"
	default:
		return fmt.Sprintf("CallState(%d)", int(s))
	}
}

// IsTerminating reports whether only SendHangupViaRtpDataToAll, Synchronize
// and Terminate events may still produce side effects (§3 invariant, §4.3).
func (s CallState) IsTerminating() bool {
	return s == Terminating || s == Terminated
}

// canBeAcceptedLocally reports whether AcceptCall is legal in this state.
func (s CallState) canBeAcceptedLocally() bool {
	switch s {
	case ConnectingBeforeAccepted, ConnectedBeforeAccepted:
		return true
	default:
		return false
	}
}

// canBeTerminatedRemotely reports whether a ReceivedHangup may push the
// call into Terminating from this state.
func (s CallState) canBeTerminatedRemotely() bool {
	switch s {
	case Terminating, Terminated:
		return false
	default:
		return true
	}
}

// shouldPropagateHangup reports whether hangup propagation (§4.6) to other
// callee devices should still be attempted from this state.
func (s CallState) shouldPropagateHangup() bool {
	switch s {
	case Terminated:
		return false
	default:
		return true
	}
}

// permitsRtpHangup reports whether SendHangupViaRtpDataToAll may be acted
// on from this state (it is one of the three events accepted in every
// state per §3, but the underlying connections must still exist).
func (s CallState) permitsRtpHangup() bool {
	return s != NotYetStarted
}

// permitsIce reports whether ReceivedIce may be forwarded to the backend.
func (s CallState) permitsIce() bool {
	switch s {
	case NotYetStarted, Terminated:
		return false
	default:
		return true
	}
}

// ConnectionState mirrors the Media Backend's per-device connection
// lifecycle, reported asynchronously via ConnectionObserverEvent.
type ConnectionState int

const (
	ConnStateNotYetStarted ConnectionState = iota
	ConnStateStarting
	ConnStateIceGathering
	ConnStateConnectingBeforeAccepted
	ConnStateConnectedBeforeAccepted
	ConnStateConnectingAfterAccepted
	ConnStateConnectedAndAccepted
	ConnStateReconnectingAfterAccepted
	ConnStateIceFailed
	ConnStateTerminating
	ConnStateTerminated
)

func (s ConnectionState) String() string {
	switch s {
	case ConnStateNotYetStarted:
		return "NotYetStarted"
	case ConnStateStarting:
		return "Starting"
	case ConnStateIceGathering:
		return "IceGathering"
	case ConnStateConnectingBeforeAccepted:
		return "ConnectingBeforeAccepted"
	case ConnStateConnectedBeforeAccepted:
		return "ConnectedBeforeAccepted"
	case ConnStateConnectingAfterAccepted:
		return "ConnectingAfterAccepted"
	case ConnStateConnectedAndAccepted:
		return "ConnectedAndAccepted"
	case ConnStateReconnectingAfterAccepted:
		return "ReconnectingAfterAccepted"
	case ConnStateIceFailed:
		return "IceFailed"
	case ConnStateTerminating:
		return "Terminating"
	case ConnStateTerminated:
		return "Terminated"
	default:
		return fmt.Sprintf("ConnectionState(%d)", int(s))
	}
}

// HangupType tags the variants of Hangup without its embedded device id,
// for use as a decision-table key (§4.6).
type HangupType int

const (
	HangupNormal HangupType = iota
	HangupAcceptedOnAnotherDevice
	HangupDeclinedOnAnotherDevice
	HangupBusyOnAnotherDevice
	HangupNeedPermission
)

func (t HangupType) String() string {
	switch t {
	case HangupNormal:
		return "Normal"
	case HangupAcceptedOnAnotherDevice:
		return "AcceptedOnAnotherDevice"
	case HangupDeclinedOnAnotherDevice:
		return "DeclinedOnAnotherDevice"
	case HangupBusyOnAnotherDevice:
		return "BusyOnAnotherDevice"
	case HangupNeedPermission:
		return "NeedPermission"
	default:
		return fmt.Sprintf("HangupType(%d)", int(t))
	}
}

// Hangup is a tagged value describing why a call is ending. AcceptedOn/
// DeclinedOn/BusyOnAnotherDevice and NeedPermission carry the device that
// the condition applies to (absent for NeedPermission when the reporter
// didn't specify which device needs permission).
type Hangup struct {
	Type     HangupType
	DeviceId DeviceId
	HasDevice bool
}

// NormalHangup builds a plain Hangup with no embedded device id.
func NormalHangup() Hangup { return Hangup{Type: HangupNormal} }

// AcceptedOnAnotherDevice builds the hangup sent to every callee device
// other than the one that accepted.
func AcceptedOnAnotherDevice(id DeviceId) Hangup {
	return Hangup{Type: HangupAcceptedOnAnotherDevice, DeviceId: id, HasDevice: true}
}

// DeclinedOnAnotherDevice builds the hangup propagated by a caller whose
// callee declined (or silently sent a Normal hangup) from one device.
func DeclinedOnAnotherDevice(id DeviceId) Hangup {
	return Hangup{Type: HangupDeclinedOnAnotherDevice, DeviceId: id, HasDevice: true}
}

// BusyOnAnotherDevice builds the hangup propagated when one callee device
// reports busy.
func BusyOnAnotherDevice(id DeviceId) Hangup {
	return Hangup{Type: HangupBusyOnAnotherDevice, DeviceId: id, HasDevice: true}
}

// NeedPermissionHangup builds a NeedPermission hangup, optionally
// attributed to a specific sender device.
func NeedPermissionHangup(id DeviceId, has bool) Hangup {
	return Hangup{Type: HangupNeedPermission, DeviceId: id, HasDevice: has}
}

func (h Hangup) String() string {
	if h.HasDevice {
		return fmt.Sprintf("%s(%d)", h.Type, h.DeviceId)
	}
	return h.Type.String()
}

// ApplicationEvent is a user-facing notification delivered via the Notify
// pool (§6).
type ApplicationEvent int

const (
	LocalRinging ApplicationEvent = iota
	RemoteRinging
	Reconnecting
	Reconnected
	RemoteVideoEnable
	RemoteVideoDisable
	RemoteSharingScreenEnable
	RemoteSharingScreenDisable
	RemoteAudioEnable
	RemoteAudioDisable
	EndedRemoteHangup
	EndedRemoteHangupAccepted
	EndedRemoteHangupDeclined
	EndedRemoteHangupBusy
	EndedRemoteHangupNeedPermission
	EndedTimeout
	EndedInternalFailure
	EndedSignalingFailure
)

func (e ApplicationEvent) String() string {
	switch e {
	case LocalRinging:
		return "LocalRinging"
	case RemoteRinging:
		return "RemoteRinging"
	case Reconnecting:
		return "Reconnecting"
	case Reconnected:
		return "Reconnected"
	case RemoteVideoEnable:
		return "RemoteVideoEnable"
	case RemoteVideoDisable:
		return "RemoteVideoDisable"
	case RemoteSharingScreenEnable:
		return "RemoteSharingScreenEnable"
	case RemoteSharingScreenDisable:
		return "RemoteSharingScreenDisable"
	case RemoteAudioEnable:
		return "RemoteAudioEnable"
	case RemoteAudioDisable:
		return "RemoteAudioDisable"
	case EndedRemoteHangup:
		return "EndedRemoteHangup"
	case EndedRemoteHangupAccepted:
		return "EndedRemoteHangupAccepted"
	case EndedRemoteHangupDeclined:
		return "EndedRemoteHangupDeclined"
	case EndedRemoteHangupBusy:
		return "EndedRemoteHangupBusy"
	case EndedRemoteHangupNeedPermission:
		return "EndedRemoteHangupNeedPermission"
	case EndedTimeout:
		return "EndedTimeout"
	case EndedInternalFailure:
		return "EndedInternalFailure"
	case EndedSignalingFailure:
		return "EndedSignalingFailure"
	default:
		return fmt.Sprintf("ApplicationEvent(%d)", int(e))
	}
}

// NetworkRoute is an opaque description of the active connection's network
// path, forwarded verbatim from the Media Backend.
type NetworkRoute struct {
	LocalAdapterType string
}

// CallConfig is forwarded verbatim to the Media Backend's Proceed call; the
// CCC never interprets its contents.
type CallConfig struct {
	Opaque []byte
}

// AudioLevelsInterval, when present, enables periodic AudioLevels observer
// callbacks at the given cadence; absent disables them (§6).
type AudioLevelsInterval struct {
	Interval time.Duration
	Enabled  bool
}
