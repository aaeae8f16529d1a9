package callcore

import (
	"context"
	"log/slog"
)

// CallLookup resolves a CallId to its Call record. CallManager's registry
// satisfies this; it is narrowed to an interface here so the dispatcher has
// no dependency on the registry's storage details.
type CallLookup interface {
	Get(id CallId) (*Call, bool)
}

// Dispatcher is the single FSM consumer goroutine described in §4: it pops
// (CallId, CallEvent) pairs from one EventQueue and drives each Call's
// CallState and ConnectionState subprotocol, delegating all I/O to the two
// serial Pools (§4.2, §4.3, §4.4). The dispatch loop blocks only while
// handling Terminate, where it waits for both Pools to drain.
type Dispatcher struct {
	queue    *EventQueue
	worker   *Pool
	notify   *Pool
	platform *Platform
	calls    CallLookup
}

// NewDispatcher wires a Dispatcher against its collaborators. The caller
// (CallManager) owns the goroutine that calls Run.
func NewDispatcher(queue *EventQueue, worker, notify *Pool, platform *Platform, calls CallLookup) *Dispatcher {
	return &Dispatcher{queue: queue, worker: worker, notify: notify, platform: platform, calls: calls}
}

// Run is the dispatch loop. It returns once the EventQueue has been closed
// and fully drained, which only happens when CallManager.Close closes the
// queue; handling a Terminate event does not close it. Run must be called
// from exactly one goroutine.
func (d *Dispatcher) Run() {
	for {
		id, ev, ok := d.queue.Pop()
		if !ok {
			return
		}
		call, found := d.calls.Get(id)
		if !found {
			slog.Debug("dropping event for unknown call", "call_id", id, "event", ev.Kind)
			continue
		}
		if !ev.IsFrequent() {
			slog.Debug("dispatching event", "call_id", id, "event", ev.Kind, "state", call.State())
		}
		d.handleEvent(call, ev)
	}
}

// handleEvent is the single entry point implementing the table in §4.4: the
// three events that are always intercepted regardless of CallState
// (SendHangupViaRtpDataToAll, Synchronize, Terminate), then state-gated
// handling of everything else, with a silent drop for any event arriving
// after Terminating except those three (§3 invariant).
func (d *Dispatcher) handleEvent(call *Call, ev CallEvent) {
	switch ev.Kind {
	case EvSendHangupViaRtpDataToAll:
		d.handleSendHangupViaRtpDataToAll(call, ev)
		return
	case EvSynchronize:
		d.handleSynchronize(call, ev)
		return
	case EvTerminate:
		d.handleTerminate(call, ev)
		return
	}

	if call.State().IsTerminating() {
		slog.Debug("dropping event on terminating call", "call_id", call.ID(), "event", ev.Kind)
		return
	}

	switch ev.Kind {
	case EvStartCall:
		d.handleStartCall(call)
	case EvAcceptCall:
		d.handleAcceptCall(call)
	case EvProceed:
		d.handleProceed(call, ev)
	case EvReceivedAnswer:
		d.handleReceivedAnswer(call, ev)
	case EvReceivedIce:
		d.handleReceivedIce(call, ev)
	case EvReceivedHangup:
		d.handleReceivedHangup(call, ev.ReceivedHangup)
	case EvConnectionObserverEvent:
		d.handleConnectionObserverEvent(call, ev.Observer, ev.ConnDevice)
	case EvConnectionObserverError:
		d.handleInternalError(call, ev.Err)
	case EvInternalError:
		d.handleInternalError(call, ev.Err)
	case EvCallTimeout:
		d.handleCallTimeout(call)
	default:
		slog.Error("unhandled event kind", "call_id", call.ID(), "event", ev.Kind)
	}
}

// handleStartCall moves a fresh call into WaitingToProceed and asks the
// Call Manager to confirm the application wants to proceed (§4.4 row
// StartCall, §6 "CCC -> Call Manager").
func (d *Dispatcher) handleStartCall(call *Call) {
	if call.State() != NotYetStarted {
		slog.Warn("ignoring duplicate StartCall", "call_id", call.ID())
		return
	}
	d.transition(call, WaitingToProceed)
	d.notify.Post(func() { d.platform.Manager.OnStartCall(call.ID()) })
}

// handleProceed carries the application's CallConfig and audio-levels
// cadence to the Media Backend and moves the call into
// ConnectingBeforeAccepted (§4.4 row Proceed, §6).
func (d *Dispatcher) handleProceed(call *Call, ev CallEvent) {
	if call.State() != WaitingToProceed {
		slog.Warn("ignoring Proceed outside WaitingToProceed", "call_id", call.ID(), "state", call.State())
		return
	}
	d.transition(call, ConnectingBeforeAccepted)
	scheduleUntilTerminating(d.worker, d.queue, call, "proceed", func(c *Call) error {
		return d.platform.Media.Proceed(context.Background(), c.ID(), ev.CallConfig, ev.AudioLevels)
	})
}

// handleAcceptCall applies the local user's accept decision: the call moves
// straight to ConnectedAndAccepted and local media is enabled on the
// worker, so the connection observer's later ConnectedAndAccepted report is
// a no-op (§4.4 row AcceptCall, §4.5 row 6).
func (d *Dispatcher) handleAcceptCall(call *Call) {
	if !call.State().canBeAcceptedLocally() {
		slog.Warn("ignoring AcceptCall outside acceptable states", "call_id", call.ID(), "state", call.State())
		return
	}
	d.transition(call, ConnectedAndAccepted)
	scheduleUntilTerminating(d.worker, d.queue, call, "accept_locally", func(c *Call) error {
		return d.platform.Media.AcceptLocally(context.Background(), c.ID())
	})
}

// handleReceivedAnswer forwards an opaque SDP-like answer from one device
// to the Media Backend (§4.4 row ReceivedAnswer, §6).
func (d *Dispatcher) handleReceivedAnswer(call *Call, ev CallEvent) {
	call.AddRemoteDevice(ev.Answer.SenderDevice)
	scheduleUntilTerminating(d.worker, d.queue, call, "received_answer", func(c *Call) error {
		return d.platform.Media.ReceivedAnswer(context.Background(), c.ID(), ev.Answer)
	})
}

// handleReceivedIce forwards ICE updates, but only once the call has left
// NotYetStarted/Terminated (§4.4 row ReceivedIce, types.go
// CallState.permitsIce).
func (d *Dispatcher) handleReceivedIce(call *Call, ev CallEvent) {
	if !call.State().permitsIce() {
		slog.Warn("dropping ICE update outside permitted states", "call_id", call.ID(), "state", call.State())
		return
	}
	scheduleUntilTerminating(d.worker, d.queue, call, "received_ice", func(c *Call) error {
		return d.platform.Media.ReceivedIce(context.Background(), c.ID(), ev.Ice)
	})
}

// handleInternalError is reached both for EvInternalError (errors
// re-injected by the two Pools, §4.2, §7) and EvConnectionObserverError. It
// pushes the call toward Terminating and tells the Call Manager.
func (d *Dispatcher) handleInternalError(call *Call, err error) {
	slog.Error("internal error, terminating call", "call_id", call.ID(), "error", err)
	if call.State().canBeTerminatedRemotely() {
		d.transition(call, Terminating)
	}
	d.notifyApp(call, EndedInternalFailure)
	d.notify.Post(func() { d.platform.Manager.OnInternalError(call.ID(), err) })
}

// handleCallTimeout implements the active/inactive split of §4.4 row
// CallTimeout: a call with a chosen active device has already connected and
// ignores the timeout; any other call is ended and the Call Manager told.
func (d *Dispatcher) handleCallTimeout(call *Call) {
	if _, hasActive := call.ActiveDeviceId(); hasActive {
		slog.Debug("ignoring CallTimeout on call with active device", "call_id", call.ID())
		return
	}
	d.transition(call, Terminating)
	d.notifyApp(call, EndedTimeout)
	d.notify.Post(func() { d.platform.Manager.OnCallTimeout(call.ID()) })
}

// handleSendHangupViaRtpDataToAll is one of the three events accepted in
// every CallState (§3, §4.4). It is used for the best-effort in-band
// hangup broadcast sent alongside local hangup handling.
func (d *Dispatcher) handleSendHangupViaRtpDataToAll(call *Call, ev CallEvent) {
	if !call.State().permitsRtpHangup() {
		slog.Warn("dropping rtp hangup broadcast before call started", "call_id", call.ID())
		return
	}
	h := ev.Hangup
	scheduleEvenWhenTerminating(d.worker, d.queue, call, "send_hangup_rtp_all", func(c *Call) error {
		return d.platform.Media.SendHangupViaRtpDataToAll(context.Background(), c.ID(), h)
	})
}

// handleSynchronize implements the Synchronize barrier: by the time this
// event is popped off the queue, every event posted before it has already
// been handled (the queue is strictly FIFO), so all that remains is to wait
// for both Pools to drain whatever work those handlers enqueued (§4.2, §5,
// §8).
func (d *Dispatcher) handleSynchronize(call *Call, ev CallEvent) {
	if ev.SyncBarrier == nil {
		return
	}
	go func() {
		err := synchronizePools(context.Background(), d.worker, d.notify)
		if err != nil {
			slog.Error("synchronize did not complete within bound", "call_id", call.ID(), "error", err)
		}
		ev.SyncBarrier.Signal()
	}()
}

// handleTerminate drains both Pools, advances the call to Terminated and
// tells the Call Manager. The shared EventQueue itself is only ever closed
// by the CallManager once every call has terminated and Run should return
// (§4.1).
func (d *Dispatcher) handleTerminate(call *Call, ev CallEvent) {
	if call.State() != Terminating {
		if call.State().canBeTerminatedRemotely() {
			d.transition(call, Terminating)
		}
	}
	if err := synchronizePools(context.Background(), d.worker, d.notify); err != nil {
		slog.Error("terminate: pools did not drain within bound", "call_id", call.ID(), "error", err)
	}
	d.transition(call, Terminated)
	d.notify.Post(func() {
		d.platform.Manager.OnTerminateComplete(call.ID())
		if ev.SyncBarrier != nil {
			ev.SyncBarrier.Signal()
		}
	})
}
