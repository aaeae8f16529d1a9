package callcore

import (
	"context"
	"sync"
	"testing"
	"time"
)

const testDrainTimeout = 2 * time.Second

// fakeLookup is a CallLookup backed by a plain map, for tests that want
// direct control over which calls exist without going through a registry.
type fakeLookup struct {
	mu    sync.Mutex
	calls map[CallId]*Call
}

func newFakeLookup() *fakeLookup {
	return &fakeLookup{calls: make(map[CallId]*Call)}
}

func (f *fakeLookup) add(c *Call) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[c.ID()] = c
}

func (f *fakeLookup) Get(id CallId) (*Call, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.calls[id]
	return c, ok
}

// fakeMedia records every MediaBackend call it receives.
type fakeMedia struct {
	mu         sync.Mutex
	forceErr   error
	proceeded  []CallId
	answers    []ReceivedAnswer
	rtpHangups []Hangup
	terminated []DeviceId
	accepted   []CallId
	acceptedL  []CallId
	iceFailed  []DeviceId
}

func (m *fakeMedia) Proceed(ctx context.Context, call CallId, cfg CallConfig, audioLevels AudioLevelsInterval) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.proceeded = append(m.proceeded, call)
	return m.forceErr
}

func (m *fakeMedia) ReceivedAnswer(ctx context.Context, call CallId, answer ReceivedAnswer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.answers = append(m.answers, answer)
	return m.forceErr
}

func (m *fakeMedia) ReceivedIce(ctx context.Context, call CallId, ice ReceivedIce) error {
	return m.forceErr
}

func (m *fakeMedia) SendHangupViaRtpDataToAll(ctx context.Context, call CallId, h Hangup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rtpHangups = append(m.rtpHangups, h)
	return m.forceErr
}

func (m *fakeMedia) SendHangupViaRtpDataToAllExcept(ctx context.Context, call CallId, h Hangup, except DeviceId) error {
	return m.SendHangupViaRtpDataToAll(ctx, call, h)
}

func (m *fakeMedia) TerminateConnectionsExceptAccepted(ctx context.Context, call CallId, accepted DeviceId) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.terminated = append(m.terminated, accepted)
	return m.forceErr
}

func (m *fakeMedia) AcceptRemotely(ctx context.Context, call CallId) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accepted = append(m.accepted, call)
	return m.forceErr
}

func (m *fakeMedia) AcceptLocally(ctx context.Context, call CallId) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acceptedL = append(m.acceptedL, call)
	return m.forceErr
}

func (m *fakeMedia) HandleIceFailed(ctx context.Context, call CallId, device DeviceId) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.iceFailed = append(m.iceFailed, device)
	return m.forceErr
}

// fakeSignaling records every SignalingSender call it receives.
type fakeSignaling struct {
	mu       sync.Mutex
	hangups  []Hangup
	forceErr error
}

func (s *fakeSignaling) SendHangupViaSignalingToAll(ctx context.Context, call CallId, h Hangup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hangups = append(s.hangups, h)
	return s.forceErr
}

func (s *fakeSignaling) SendHangupViaSignalingToAllExcept(ctx context.Context, call CallId, h Hangup, except DeviceId) error {
	return s.SendHangupViaSignalingToAll(ctx, call, h)
}

// fakeNotify records ApplicationEvents per call.
type fakeNotify struct {
	mu  sync.Mutex
	app map[CallId][]ApplicationEvent
}

func newFakeNotify() *fakeNotify { return &fakeNotify{app: make(map[CallId][]ApplicationEvent)} }

func (n *fakeNotify) OnApplicationEvent(call CallId, event ApplicationEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.app[call] = append(n.app[call], event)
}

func (n *fakeNotify) OnNetworkRouteChanged(call CallId, route NetworkRoute) {}
func (n *fakeNotify) OnAudioLevels(call CallId, captured, received float32) {}
func (n *fakeNotify) OnLowBandwidthForVideo(call CallId, recovered bool)    {}
func (n *fakeNotify) OnRemoteSenderStatusChanged(call CallId, videoEnabled, sharingScreen, audioEnabled *bool) {
}

func (n *fakeNotify) events(call CallId) []ApplicationEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]ApplicationEvent(nil), n.app[call]...)
}

// fakeManager records ManagerCallbacks calls.
type fakeManager struct {
	mu             sync.Mutex
	started        []CallId
	timedOut       []CallId
	internalErrors []error
	remoteHangups  []ApplicationEvent
	terminated     []CallId
}

func (c *fakeManager) OnStartCall(call CallId) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = append(c.started, call)
}

func (c *fakeManager) OnCallTimeout(call CallId) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timedOut = append(c.timedOut, call)
}

func (c *fakeManager) OnInternalError(call CallId, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.internalErrors = append(c.internalErrors, err)
}

func (c *fakeManager) OnRemoteHangup(call CallId, event ApplicationEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remoteHangups = append(c.remoteHangups, event)
}

func (c *fakeManager) OnTerminateComplete(call CallId) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.terminated = append(c.terminated, call)
}

// newTestDispatcher wires a Dispatcher against real Pools and an EventQueue
// but fully fake collaborators, for tests that drive handleEvent and its
// sub-handlers directly.
func newTestDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	queue := NewEventQueue(64)
	worker := NewPool("worker")
	notify := NewPool("notify")
	t.Cleanup(func() {
		worker.Stop()
		notify.Stop()
		queue.Close()
	})

	platform := &Platform{
		Media:     &fakeMedia{},
		Signaling: &fakeSignaling{},
		Notify:    newFakeNotify(),
		Manager:   &fakeManager{},
	}
	return NewDispatcher(queue, worker, notify, platform, newFakeLookup())
}

var (
	_ MediaBackend     = (*fakeMedia)(nil)
	_ SignalingSender  = (*fakeSignaling)(nil)
	_ NotificationSink = (*fakeNotify)(nil)
	_ ManagerCallbacks = (*fakeManager)(nil)
)
