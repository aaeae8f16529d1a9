package callcore

import "fmt"

// EventKind tags which CallEvent variant is carried (§4.1).
type EventKind int

const (
	EvStartCall EventKind = iota
	EvAcceptCall
	EvSendHangupViaRtpDataToAll
	EvProceed
	EvReceivedAnswer
	EvReceivedIce
	EvReceivedHangup
	EvConnectionObserverEvent
	EvConnectionObserverError
	EvInternalError
	EvCallTimeout
	EvSynchronize
	EvTerminate
)

func (k EventKind) String() string {
	switch k {
	case EvStartCall:
		return "StartCall"
	case EvAcceptCall:
		return "AcceptCall"
	case EvSendHangupViaRtpDataToAll:
		return "SendHangupViaRtpDataToAll"
	case EvProceed:
		return "Proceed"
	case EvReceivedAnswer:
		return "ReceivedAnswer"
	case EvReceivedIce:
		return "ReceivedIce"
	case EvReceivedHangup:
		return "ReceivedHangup"
	case EvConnectionObserverEvent:
		return "ConnectionObserverEvent"
	case EvConnectionObserverError:
		return "ConnectionObserverError"
	case EvInternalError:
		return "InternalError"
	case EvCallTimeout:
		return "CallTimeout"
	case EvSynchronize:
		return "Synchronize"
	case EvTerminate:
		return "Terminate"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// ReceivedAnswer carries the remote peer's opaque answer payload (§6).
type ReceivedAnswer struct {
	SenderDevice DeviceId
	Payload      []byte
}

// IceCandidate is one opaque ICE candidate string, or a removal described
// by address and port (§6 "Signaling wire formats").
type IceCandidate struct {
	Added   string
	Removed bool
	Addr    string
	Port    int
}

// ReceivedIce carries ICE updates from one remote device.
type ReceivedIce struct {
	SenderDevice DeviceId
	Candidates   []IceCandidate
}

// ReceivedHangup carries a hangup signal from one remote device (§4.6).
type ReceivedHangup struct {
	SenderDevice DeviceId
	Hangup       Hangup
}

// ObserverKind tags the shape of a per-device observer event reported by
// the Media Backend (§4.5, §6 "Media Backend -> CCC").
type ObserverKind int

const (
	ObsStateChanged ObserverKind = iota
	ObsRemoteSenderStatusChanged
	ObsIceNetworkRouteChanged
	ObsAudioLevels
	ObsLowBandwidthForVideo
)

// ConnectionObserverEvent is the payload of an EvConnectionObserverEvent,
// reported per remote device.
type ConnectionObserverEvent struct {
	Kind  ObserverKind
	State ConnectionState // valid when Kind == ObsStateChanged

	VideoEnabled       *bool // valid when Kind == ObsRemoteSenderStatusChanged
	SharingScreen      *bool
	AudioEnabled       *bool

	Route NetworkRoute // valid when Kind == ObsIceNetworkRouteChanged

	CapturedLevel float32 // valid when Kind == ObsAudioLevels
	ReceivedLevel float32

	Recovered bool // valid when Kind == ObsLowBandwidthForVideo
}

// CallEvent is a single event destined for one Call's FSM (§4.1).
type CallEvent struct {
	Kind EventKind

	Hangup         Hangup
	CallConfig     CallConfig
	AudioLevels    AudioLevelsInterval
	Answer         ReceivedAnswer
	Ice            ReceivedIce
	ReceivedHangup ReceivedHangup
	Observer       ConnectionObserverEvent
	ConnDevice     DeviceId
	Err            error
	SyncBarrier    *Barrier
}

// IsFrequent reports whether this event is high-rate telemetry that should
// be exempted from the dispatcher's per-event log line (§4.1): audio-level
// reports and network-route changes arrive on every RTP report interval
// and would otherwise flood the log.
func (e CallEvent) IsFrequent() bool {
	if e.Kind != EvConnectionObserverEvent {
		return false
	}
	switch e.Observer.Kind {
	case ObsAudioLevels, ObsIceNetworkRouteChanged:
		return true
	default:
		return false
	}
}

// queueItem pairs an event with the call it targets (§4.1 "(CallHandle,
// Event) pairs").
type queueItem struct {
	call  CallId
	event CallEvent
}

// EventQueue is the FIFO channel described in §4.1: multi-producer,
// single-consumer, no coalescing or reordering. One queue is shared by
// every call; it is closed by CallManager.Close, not by Terminate handling.
type EventQueue struct {
	ch     chan queueItem
	closed chan struct{}
}

// NewEventQueue creates a queue with the given buffer depth. A depth of 0
// makes Post synchronous with Pop, which is fine for tests but a real
// client should size this to absorb bursts of connection-observer events.
func NewEventQueue(depth int) *EventQueue {
	return &EventQueue{
		ch:     make(chan queueItem, depth),
		closed: make(chan struct{}),
	}
}

// Post enqueues an event for the given call. Posting to a closed queue is
// a silent no-op, per §4.1 ("producers posting to a closed queue shall
// fail silently"). The data channel itself is never closed, so a Post
// racing a Close can never panic on a send to a closed channel.
func (q *EventQueue) Post(id CallId, ev CallEvent) {
	select {
	case <-q.closed:
		return
	default:
	}
	select {
	case q.ch <- queueItem{call: id, event: ev}:
	case <-q.closed:
	}
}

// Pop blocks until an event is available or the queue has been closed, in
// which case it returns ok=false once no more buffered events remain. Only
// the FSM dispatcher goroutine should call Pop.
func (q *EventQueue) Pop() (CallId, CallEvent, bool) {
	select {
	case item := <-q.ch:
		return item.call, item.event, true
	case <-q.closed:
		select {
		case item := <-q.ch:
			return item.call, item.event, true
		default:
			return 0, CallEvent{}, false
		}
	}
}

// Close marks the queue closed. Called by CallManager.Close; the dispatcher
// never closes the queue itself. Safe to call more than once.
func (q *EventQueue) Close() {
	select {
	case <-q.closed:
		return
	default:
		close(q.closed)
	}
}
