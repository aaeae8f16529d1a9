package callcore

import "context"

// MediaBackend is the external collaborator owning ICE, DTLS, RTP and
// codecs (§1 "Media Backend"). The CCC only ever calls the methods in §6
// ("CCC -> Media Backend / Signaling Transport"); it never inspects ICE or
// media state beyond what ConnectionObserverEvent reports back.
type MediaBackend interface {
	// Proceed begins ICE setup for every discovered remote device with the
	// given opaque call configuration.
	Proceed(ctx context.Context, call CallId, cfg CallConfig, audioLevels AudioLevelsInterval) error

	// ReceivedAnswer forwards an opaque answer payload from one device.
	ReceivedAnswer(ctx context.Context, call CallId, answer ReceivedAnswer) error

	// ReceivedIce forwards opaque ICE updates from one device.
	ReceivedIce(ctx context.Context, call CallId, ice ReceivedIce) error

	// SendHangupViaRtpDataToAll sends h on the in-band media channel to
	// every connection.
	SendHangupViaRtpDataToAll(ctx context.Context, call CallId, h Hangup) error

	// SendHangupViaRtpDataToAllExcept sends h on the in-band media channel
	// to every connection except except.
	SendHangupViaRtpDataToAllExcept(ctx context.Context, call CallId, h Hangup, except DeviceId) error

	// TerminateConnectionsExceptAccepted synchronously tears down every
	// connection other than accepted (§4.7 step 1).
	TerminateConnectionsExceptAccepted(ctx context.Context, call CallId, accepted DeviceId) error

	// AcceptRemotely enables outgoing media on the active connection and
	// lets the Backend continue reporting state through the normal
	// connection-state path (§4.7 step 2).
	AcceptRemotely(ctx context.Context, call CallId) error

	// AcceptLocally enables local media for an incoming call that the user
	// has accepted (§6).
	AcceptLocally(ctx context.Context, call CallId) error

	// HandleIceFailed reacts to a single device's ICE failure (§4.5 row 9).
	HandleIceFailed(ctx context.Context, call CallId, device DeviceId) error
}

// SignalingSender is the external collaborator that delivers opaque
// signaling payloads to and from the remote peer (§1 "Signaling
// Transport").
type SignalingSender interface {
	// SendHangupViaSignalingToAll sends h out-of-band to every device.
	SendHangupViaSignalingToAll(ctx context.Context, call CallId, h Hangup) error

	// SendHangupViaSignalingToAllExcept sends h out-of-band to every
	// device except except.
	SendHangupViaSignalingToAllExcept(ctx context.Context, call CallId, h Hangup, except DeviceId) error
}

// NotificationSink is the application-facing notification surface invoked
// exclusively from the Notify pool (§6 "CCC -> Application").
type NotificationSink interface {
	// OnApplicationEvent delivers a per-call lifecycle notification.
	OnApplicationEvent(call CallId, event ApplicationEvent)

	// OnNetworkRouteChanged delivers the active device's route.
	OnNetworkRouteChanged(call CallId, route NetworkRoute)

	// OnAudioLevels delivers periodic audio-level telemetry.
	OnAudioLevels(call CallId, captured, received float32)

	// OnLowBandwidthForVideo delivers a bandwidth-recovery transition.
	OnLowBandwidthForVideo(call CallId, recovered bool)

	// OnRemoteSenderStatusChanged delivers a remote video/screen-share/
	// audio enablement change. A nil pointer means "unchanged".
	OnRemoteSenderStatusChanged(call CallId, videoEnabled, sharingScreen, audioEnabled *bool)
}

// ManagerCallbacks is the external Call Manager collaborator that created
// this Call and is told about conditions the FSM cannot resolve on its own
// (§4.4 "W[manager.timeout(call_id)]", "W[manager.internal_error]").
type ManagerCallbacks interface {
	// OnStartCall is invoked when a NotYetStarted call receives StartCall,
	// before the application has confirmed intent to proceed.
	OnStartCall(call CallId)

	// OnCallTimeout is invoked when CallTimeout fires on an inactive call.
	OnCallTimeout(call CallId)

	// OnInternalError is invoked for every InternalError event, after the
	// call has been pushed toward Terminating.
	OnInternalError(call CallId, err error)

	// OnRemoteHangup is invoked once for each ReceivedHangup that passes
	// the self-echo and non-active-device filters of §4.6 and arrives
	// before the call is terminating, carrying the app-facing event
	// override chosen by the decision table (EndedRemoteHangup if no
	// override applies). Filtered or late hangups produce no call.
	OnRemoteHangup(call CallId, event ApplicationEvent)

	// OnTerminateComplete is invoked once a call has fully reached
	// Terminated and both pools have processed everything queued before
	// Terminate was handled.
	OnTerminateComplete(call CallId)
}

// Platform bundles the four external collaborators a CallManager needs.
// Production code wires a real implementation per collaborator; tests use
// the recording implementations in internal/callcore/sim.
type Platform struct {
	Media     MediaBackend
	Signaling SignalingSender
	Notify    NotificationSink
	Manager   ManagerCallbacks
}
