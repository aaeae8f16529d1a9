// Package sim provides an in-memory, recording implementation of the four
// callcore.Platform collaborators, grounded on RingRTC's SimPlatform
// (sim_platform.rs): it never touches real network or media state, but
// records every call it receives so tests can assert on them.
package sim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sebas/ccc/internal/callcore"
)

// Stats counts how many times each collaborator method has fired, mirroring
// SimPlatform's atomic counters.
type Stats struct {
	mu sync.Mutex

	ProceedCount                   int
	AnswersReceived                int
	IceUpdatesReceived             int
	RtpHangupsSent                 map[callcore.HangupType]int
	SignalingHangupsSent           map[callcore.HangupType]int
	TerminateExceptAcceptedCalls   int
	AcceptRemotelyCalls            int
	AcceptLocallyCalls             int
	IceFailedCalls                 int
	ApplicationEvents              map[callcore.ApplicationEvent]int
	AudioLevelsReported            int
}

func newStats() *Stats {
	return &Stats{
		RtpHangupsSent:       make(map[callcore.HangupType]int),
		SignalingHangupsSent: make(map[callcore.HangupType]int),
		ApplicationEvents:    make(map[callcore.ApplicationEvent]int),
	}
}

// AcceptLocallyCount returns how many times AcceptLocally has been called.
func (s *Stats) AcceptLocallyCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.AcceptLocallyCalls
}

// ApplicationEventCount returns how many times event has been delivered to
// the NotificationSink.
func (s *Stats) ApplicationEventCount(event callcore.ApplicationEvent) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ApplicationEvents[event]
}

// AudioLevelsReportedCount returns how many times OnAudioLevels has fired.
func (s *Stats) AudioLevelsReportedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.AudioLevelsReported
}

// Platform bundles the recording MediaBackend, SignalingSender,
// NotificationSink and ManagerCallbacks implementations, plus the Stats they
// all write into, behind one value tests can construct and inspect.
type Platform struct {
	Stats *Stats

	Media     *MediaBackend
	Signaling *SignalingSender
	Notify    *NotificationSink
	Manager   *ManagerCallbacks
}

// New builds a fully wired simulation Platform with no faults enabled.
// MediaBackend.SetForceFault(true) later makes every MediaBackend method
// return an error, exercising the InternalError path the way SimPlatform's
// force_internal_fault flag does.
func New() *Platform {
	stats := newStats()
	notify := &NotificationSink{stats: stats}
	return &Platform{
		Stats: stats,
		Media: &MediaBackend{
			stats:     stats,
			notify:    notify,
			offers:    make(map[callcore.CallId][]byte),
			audioStop: make(map[callcore.CallId]chan struct{}),
		},
		Signaling: &SignalingSender{stats: stats},
		Notify:    notify,
		Manager:   &ManagerCallbacks{stats: stats},
	}
}

// AsCallcorePlatform adapts the simulation collaborators into a
// *callcore.Platform.
func (p *Platform) AsCallcorePlatform() *callcore.Platform {
	return &callcore.Platform{
		Media:     p.Media,
		Signaling: p.Signaling,
		Notify:    p.Notify,
		Manager:   p.Manager,
	}
}

// MediaBackend records every call made to it and optionally simulates an
// internal fault.
type MediaBackend struct {
	stats  *Stats
	notify *NotificationSink

	mu           sync.Mutex
	forceFault   bool
	activeDevice map[callcore.CallId]callcore.DeviceId
	offers       map[callcore.CallId][]byte
	audioStop    map[callcore.CallId]chan struct{}
}

// OfferFor returns the SDP offer BuildOfferSDP synthesized on the most
// recent Proceed call for call, for tests that want to assert on it. It is
// cleared once the call's hangup has been broadcast to all devices.
func (m *MediaBackend) OfferFor(call callcore.CallId) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	offer, ok := m.offers[call]
	return offer, ok
}

// SetForceFault toggles whether every subsequent call returns an error
// (mirrors SimPlatform's force_internal_fault).
func (m *MediaBackend) SetForceFault(force bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forceFault = force
}

func (m *MediaBackend) fault() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.forceFault {
		return fmt.Errorf("simulated internal fault")
	}
	return nil
}

func (m *MediaBackend) Proceed(ctx context.Context, call callcore.CallId, cfg callcore.CallConfig, audioLevels callcore.AudioLevelsInterval) error {
	if err := m.fault(); err != nil {
		return err
	}

	offer, err := BuildOfferSDP(call, "127.0.0.1", 5004, cfg)
	if err != nil {
		return fmt.Errorf("build offer sdp: %w", err)
	}
	m.mu.Lock()
	m.offers[call] = offer
	m.mu.Unlock()

	m.stats.mu.Lock()
	m.stats.ProceedCount++
	m.stats.mu.Unlock()

	if audioLevels.Enabled && audioLevels.Interval > 0 {
		m.startAudioLevels(call, audioLevels.Interval)
	}
	return nil
}

// startAudioLevels runs a periodic AudioLevels generator for call, the way
// a real Media Backend reports captured/received levels on the cadence
// Proceed was given, until stopAudioLevels is called.
func (m *MediaBackend) startAudioLevels(call callcore.CallId, interval time.Duration) {
	stop := make(chan struct{})
	m.mu.Lock()
	m.audioStop[call] = stop
	m.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		sample := syntheticUlawSample()
		for {
			select {
			case <-ticker.C:
				level := RMSAudioLevel(sample)
				m.notify.OnAudioLevels(call, level, level)
			case <-stop:
				return
			}
		}
	}()
}

// stopAudioLevels halts call's AudioLevels generator, if one is running. A
// no-op if Proceed was never given an enabled AudioLevelsInterval.
func (m *MediaBackend) stopAudioLevels(call callcore.CallId) {
	m.mu.Lock()
	stop, ok := m.audioStop[call]
	if ok {
		delete(m.audioStop, call)
	}
	m.mu.Unlock()
	if ok {
		close(stop)
	}
}

func (m *MediaBackend) ReceivedAnswer(ctx context.Context, call callcore.CallId, answer callcore.ReceivedAnswer) error {
	if err := m.fault(); err != nil {
		return err
	}
	m.stats.mu.Lock()
	m.stats.AnswersReceived++
	m.stats.mu.Unlock()
	return nil
}

func (m *MediaBackend) ReceivedIce(ctx context.Context, call callcore.CallId, ice callcore.ReceivedIce) error {
	if err := m.fault(); err != nil {
		return err
	}
	m.stats.mu.Lock()
	m.stats.IceUpdatesReceived++
	m.stats.mu.Unlock()
	return nil
}

func (m *MediaBackend) SendHangupViaRtpDataToAll(ctx context.Context, call callcore.CallId, h callcore.Hangup) error {
	if err := m.sendHangupViaRtpData(call, h); err != nil {
		return err
	}
	// A ToAll broadcast means every device is being torn down, so the
	// call's own AudioLevels generator, if any, stops with it.
	m.stopAudioLevels(call)
	m.mu.Lock()
	delete(m.offers, call)
	m.mu.Unlock()
	return nil
}

func (m *MediaBackend) SendHangupViaRtpDataToAllExcept(ctx context.Context, call callcore.CallId, h callcore.Hangup, except callcore.DeviceId) error {
	return m.sendHangupViaRtpData(call, h)
}

func (m *MediaBackend) sendHangupViaRtpData(call callcore.CallId, h callcore.Hangup) error {
	if err := m.fault(); err != nil {
		return err
	}
	if _, err := EncodeHangupRTP(h, 0); err != nil {
		return err
	}
	m.stats.mu.Lock()
	m.stats.RtpHangupsSent[h.Type]++
	m.stats.mu.Unlock()
	return nil
}

func (m *MediaBackend) TerminateConnectionsExceptAccepted(ctx context.Context, call callcore.CallId, accepted callcore.DeviceId) error {
	if err := m.fault(); err != nil {
		return err
	}
	m.stats.mu.Lock()
	m.stats.TerminateExceptAcceptedCalls++
	m.stats.mu.Unlock()
	return nil
}

func (m *MediaBackend) AcceptRemotely(ctx context.Context, call callcore.CallId) error {
	if err := m.fault(); err != nil {
		return err
	}
	m.stats.mu.Lock()
	m.stats.AcceptRemotelyCalls++
	m.stats.mu.Unlock()
	return nil
}

func (m *MediaBackend) AcceptLocally(ctx context.Context, call callcore.CallId) error {
	if err := m.fault(); err != nil {
		return err
	}
	m.stats.mu.Lock()
	m.stats.AcceptLocallyCalls++
	m.stats.mu.Unlock()
	return nil
}

func (m *MediaBackend) HandleIceFailed(ctx context.Context, call callcore.CallId, device callcore.DeviceId) error {
	if err := m.fault(); err != nil {
		return err
	}
	m.stats.mu.Lock()
	m.stats.IceFailedCalls++
	m.stats.mu.Unlock()
	return nil
}

// SignalingSender records every outgoing hangup it is asked to deliver.
type SignalingSender struct {
	stats *Stats

	mu             sync.Mutex
	forceSignaling bool
}

// SetForceFailure toggles whether signaling sends fail, mirroring
// SimPlatform's force_signaling_failure.
func (s *SignalingSender) SetForceFailure(force bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forceSignaling = force
}

func (s *SignalingSender) fault() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.forceSignaling {
		return fmt.Errorf("simulated signaling failure")
	}
	return nil
}

func (s *SignalingSender) SendHangupViaSignalingToAll(ctx context.Context, call callcore.CallId, h callcore.Hangup) error {
	if err := s.fault(); err != nil {
		return err
	}
	s.stats.mu.Lock()
	s.stats.SignalingHangupsSent[h.Type]++
	s.stats.mu.Unlock()
	return nil
}

func (s *SignalingSender) SendHangupViaSignalingToAllExcept(ctx context.Context, call callcore.CallId, h callcore.Hangup, except callcore.DeviceId) error {
	return s.SendHangupViaSignalingToAll(ctx, call, h)
}

// NotificationSink records every application notification.
type NotificationSink struct {
	stats *Stats
}

func (n *NotificationSink) OnApplicationEvent(call callcore.CallId, event callcore.ApplicationEvent) {
	n.stats.mu.Lock()
	n.stats.ApplicationEvents[event]++
	n.stats.mu.Unlock()
}

func (n *NotificationSink) OnNetworkRouteChanged(call callcore.CallId, route callcore.NetworkRoute) {}

func (n *NotificationSink) OnAudioLevels(call callcore.CallId, captured, received float32) {
	n.stats.mu.Lock()
	n.stats.AudioLevelsReported++
	n.stats.mu.Unlock()
}

func (n *NotificationSink) OnLowBandwidthForVideo(call callcore.CallId, recovered bool) {}

func (n *NotificationSink) OnRemoteSenderStatusChanged(call callcore.CallId, videoEnabled, sharingScreen, audioEnabled *bool) {
}

// ManagerCallbacks records Call Manager-facing notifications.
type ManagerCallbacks struct {
	stats *Stats

	mu               sync.Mutex
	startedCalls     []callcore.CallId
	timedOutCalls    []callcore.CallId
	internalErrors   []error
	remoteHangups    []callcore.ApplicationEvent
	terminatedCalls  []callcore.CallId
}

func (c *ManagerCallbacks) OnStartCall(call callcore.CallId) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startedCalls = append(c.startedCalls, call)
}

func (c *ManagerCallbacks) OnCallTimeout(call callcore.CallId) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timedOutCalls = append(c.timedOutCalls, call)
}

func (c *ManagerCallbacks) OnInternalError(call callcore.CallId, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.internalErrors = append(c.internalErrors, err)
}

func (c *ManagerCallbacks) OnRemoteHangup(call callcore.CallId, event callcore.ApplicationEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remoteHangups = append(c.remoteHangups, event)
}

func (c *ManagerCallbacks) OnTerminateComplete(call callcore.CallId) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.terminatedCalls = append(c.terminatedCalls, call)
}

// StartedCalls returns a snapshot of calls OnStartCall has fired for.
func (c *ManagerCallbacks) StartedCalls() []callcore.CallId {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]callcore.CallId(nil), c.startedCalls...)
}

// TerminatedCalls returns a snapshot of calls OnTerminateComplete has fired
// for.
func (c *ManagerCallbacks) TerminatedCalls() []callcore.CallId {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]callcore.CallId(nil), c.terminatedCalls...)
}

var (
	_ callcore.MediaBackend     = (*MediaBackend)(nil)
	_ callcore.SignalingSender  = (*SignalingSender)(nil)
	_ callcore.NotificationSink = (*NotificationSink)(nil)
	_ callcore.ManagerCallbacks = (*ManagerCallbacks)(nil)
)
