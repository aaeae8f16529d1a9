package callcore

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sebas/ccc/internal/store"
)

// registryTTL is generous: calls are removed explicitly on Terminate, the
// TTL only guards against a leaked record from a Call that never reaches
// Terminated (e.g. the application crashed mid-call).
const registryTTL = 6 * time.Hour

// ManagerConfig tunes the process-wide knobs a CallManager needs. CCC
// itself has no other configuration surface (§10 "Configuration" — the
// only inputs the FSM accepts are CallConfig and AudioLevelsInterval,
// carried per-call through Proceed).
type ManagerConfig struct {
	// QueueDepth sizes the shared EventQueue's buffer.
	QueueDepth int
	// CallTimeout is how long a call may sit without an active device
	// before the manager posts CallTimeout.
	CallTimeout time.Duration
}

// DefaultManagerConfig returns reasonable defaults for cccdemo and tests.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{QueueDepth: 256, CallTimeout: 90 * time.Second}
}

// CallManager is the external Call Manager of §1: it owns the Call
// registry, the single shared EventQueue and Dispatcher, both Pools, and
// the Platform of collaborators, and exposes the application- and
// signaling-facing control surface of §6.
type CallManager struct {
	cfg      ManagerConfig
	platform *Platform

	registry *store.TTLStore[CallId, *Call]
	queue    *EventQueue
	worker   *Pool
	notify   *Pool
	dispatch *Dispatcher

	timers *store.TTLStore[CallId, *time.Timer]

	runDone chan struct{}
}

// NewCallManager wires a CallManager and starts its dispatcher goroutine.
func NewCallManager(cfg ManagerConfig, platform *Platform) *CallManager {
	registry := store.NewTTLStore[CallId, *Call](time.Minute)
	timers := store.NewTTLStore[CallId, *time.Timer](time.Minute)
	queue := NewEventQueue(cfg.QueueDepth)
	worker := NewPool("worker")
	notify := NewPool("notify")

	m := &CallManager{
		cfg:      cfg,
		platform: platform,
		registry: registry,
		queue:    queue,
		worker:   worker,
		notify:   notify,
		timers:   timers,
		runDone:  make(chan struct{}),
	}

	// The dispatcher only ever sees managerShim, never the caller's
	// ManagerCallbacks directly, so that the registry is always cleaned up
	// on Terminated regardless of which entry point (LocalHangup, Drop,
	// Abort, explicit Terminate, remote hangup) drove the call there.
	wrapped := *platform
	wrapped.Manager = &managerShim{inner: platform.Manager, manager: m}
	m.dispatch = NewDispatcher(queue, worker, notify, &wrapped, registry)

	go func() {
		defer close(m.runDone)
		m.dispatch.Run()
	}()
	return m
}

// newCall allocates a Call, registers it, and arms its timeout timer.
func (m *CallManager) newCall(direction Direction, localDevice DeviceId, remotePeer string) *Call {
	id := NewCallID()
	call := NewCall(id, direction, localDevice, remotePeer)
	m.registry.Set(id, call, registryTTL)
	m.armTimeout(id)
	return call
}

func (m *CallManager) armTimeout(id CallId) {
	t := time.AfterFunc(m.cfg.CallTimeout, func() {
		m.queue.Post(id, CallEvent{Kind: EvCallTimeout})
	})
	m.timers.Set(id, t, registryTTL)
}

func (m *CallManager) disarmTimeout(id CallId) {
	if t, ok := m.timers.Get(id); ok {
		t.Stop()
	}
}

// managerShim forwards every ManagerCallbacks notification to the
// caller-supplied implementation, and additionally removes a terminated
// call from the registry and its timer from the timer store.
type managerShim struct {
	inner   ManagerCallbacks
	manager *CallManager
}

func (s *managerShim) OnStartCall(call CallId)  { s.inner.OnStartCall(call) }
func (s *managerShim) OnCallTimeout(call CallId) { s.inner.OnCallTimeout(call) }
func (s *managerShim) OnInternalError(call CallId, err error) {
	s.inner.OnInternalError(call, err)
}
func (s *managerShim) OnRemoteHangup(call CallId, event ApplicationEvent) {
	s.inner.OnRemoteHangup(call, event)
}

func (s *managerShim) OnTerminateComplete(call CallId) {
	s.manager.registry.Delete(call)
	s.manager.timers.Delete(call)
	s.inner.OnTerminateComplete(call)
}

var _ ManagerCallbacks = (*managerShim)(nil)

// StartOutgoingCall begins a new outgoing call to remotePeer and returns
// its id. The application confirms intent to proceed via Proceed once
// OnStartCall fires.
func (m *CallManager) StartOutgoingCall(localDevice DeviceId, remotePeer string) CallId {
	call := m.newCall(Outgoing, localDevice, remotePeer)
	m.queue.Post(call.ID(), CallEvent{Kind: EvStartCall})
	return call.ID()
}

// StartIncomingCall registers a call offered by remotePeer from
// senderDevice and posts the StartCall event.
func (m *CallManager) StartIncomingCall(localDevice DeviceId, remotePeer string, senderDevice DeviceId) CallId {
	call := m.newCall(Incoming, localDevice, remotePeer)
	call.AddRemoteDevice(senderDevice)
	m.queue.Post(call.ID(), CallEvent{Kind: EvStartCall})
	return call.ID()
}

// Proceed confirms the application wants to continue past WaitingToProceed,
// forwarding cfg and the audio-levels cadence to the Media Backend (§6).
func (m *CallManager) Proceed(id CallId, cfg CallConfig, audioLevels AudioLevelsInterval) {
	m.queue.Post(id, CallEvent{Kind: EvProceed, CallConfig: cfg, AudioLevels: audioLevels})
}

// Accept applies the local user's decision to answer an incoming call.
func (m *CallManager) Accept(id CallId) {
	m.queue.Post(id, CallEvent{Kind: EvAcceptCall})
}

// LocalHangup ends a call at the local user's request: it is broadcast as a
// Normal hangup on the in-band media channel only (no signaling-channel
// send is made) and the call is driven to Terminate.
func (m *CallManager) LocalHangup(id CallId) {
	m.hangUp(id, NormalHangup())
}

// Drop ends a call the way the application's "drop" affordance does: same
// wire behavior as LocalHangup, kept as a distinct entry point because the
// application may want to attribute a different EndedX reason locally.
func (m *CallManager) Drop(id CallId) {
	m.hangUp(id, NormalHangup())
}

// Abort immediately terminates a call without attempting to notify the
// remote peer, for use when the local transport itself is known to be
// gone (e.g. network teardown). It skips straight to Terminate.
func (m *CallManager) Abort(id CallId) {
	m.disarmTimeout(id)
	m.queue.Post(id, CallEvent{Kind: EvTerminate})
}

func (m *CallManager) hangUp(id CallId, h Hangup) {
	m.disarmTimeout(id)
	m.queue.Post(id, CallEvent{Kind: EvSendHangupViaRtpDataToAll, Hangup: h})
	m.queue.Post(id, CallEvent{Kind: EvTerminate})
}

// ReceivedAnswer delivers an opaque answer payload from senderDevice.
func (m *CallManager) ReceivedAnswer(id CallId, senderDevice DeviceId, payload []byte) {
	m.queue.Post(id, CallEvent{Kind: EvReceivedAnswer, Answer: ReceivedAnswer{SenderDevice: senderDevice, Payload: payload}})
}

// ReceivedIce delivers ICE candidate updates from senderDevice.
func (m *CallManager) ReceivedIce(id CallId, senderDevice DeviceId, candidates []IceCandidate) {
	m.queue.Post(id, CallEvent{Kind: EvReceivedIce, Ice: ReceivedIce{SenderDevice: senderDevice, Candidates: candidates}})
}

// ReceivedHangup delivers a hangup signal from senderDevice, the entry
// point for §4.6's decision table. Like LocalHangup/Drop, it drives the call
// the rest of the way to Terminate once the decision table's propagation and
// notification work has been scheduled: the two events are posted back to
// back on the same call's queue, so handleReceivedHangup always runs first
// and handleTerminate sees whatever Terminating transition it made.
func (m *CallManager) ReceivedHangup(id CallId, senderDevice DeviceId, h Hangup) {
	m.disarmTimeout(id)
	m.queue.Post(id, CallEvent{Kind: EvReceivedHangup, ReceivedHangup: ReceivedHangup{SenderDevice: senderDevice, Hangup: h}})
	m.queue.Post(id, CallEvent{Kind: EvTerminate})
}

// ConnectionObserverEvent forwards a per-device connection observer report
// from the Media Backend (§4.5, §6).
func (m *CallManager) ConnectionObserverEvent(id CallId, device DeviceId, ev ConnectionObserverEvent) {
	m.queue.Post(id, CallEvent{Kind: EvConnectionObserverEvent, Observer: ev, ConnDevice: device})
}

// ConnectionObserverError reports a Media Backend failure tied to one
// connection; it is folded into InternalError handling.
func (m *CallManager) ConnectionObserverError(id CallId, err error) {
	m.queue.Post(id, CallEvent{Kind: EvConnectionObserverError, Err: err})
}

// Synchronize blocks the caller until every event and task queued for id
// before this call has finished, bounded by synchronizeBound per pool
// (§4.2, §5, §8).
func (m *CallManager) Synchronize(id CallId) {
	barrier := NewBarrier()
	m.queue.Post(id, CallEvent{Kind: EvSynchronize, SyncBarrier: barrier})
	barrier.Wait()
}

// Terminate drives id to Terminated and blocks until OnTerminateComplete has
// fired and the call has been removed from the registry.
func (m *CallManager) Terminate(id CallId) {
	m.disarmTimeout(id)
	barrier := NewBarrier()
	m.queue.Post(id, CallEvent{Kind: EvTerminate, SyncBarrier: barrier})
	barrier.Wait()
}

// Close shuts the CallManager down: it closes the shared EventQueue, waits
// for the dispatcher goroutine to return, then stops both Pools. Call sites
// must have already terminated every outstanding call; Close does not do
// that for them.
func (m *CallManager) Close(ctx context.Context) error {
	m.queue.Close()
	select {
	case <-m.runDone:
	case <-ctx.Done():
		return fmt.Errorf("callmanager close: %w", ctx.Err())
	}

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error { m.worker.Stop(); return nil })
	g.Go(func() error { m.notify.Stop(); return nil })
	if err := g.Wait(); err != nil {
		return err
	}

	m.registry.Close()
	m.timers.Close()
	return nil
}

// Get satisfies CallLookup for tests that want to inspect a Call directly
// without going through the event queue.
func (m *CallManager) Get(id CallId) (*Call, bool) {
	return m.registry.Get(id)
}

var _ CallLookup = (*CallManager)(nil)
