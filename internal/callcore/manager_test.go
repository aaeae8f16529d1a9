package callcore_test

import (
	"context"
	"testing"
	"time"

	"github.com/sebas/ccc/internal/callcore"
	"github.com/sebas/ccc/internal/callcore/sim"
)

func newTestManager(t *testing.T) (*callcore.CallManager, *sim.Platform) {
	t.Helper()
	platform := sim.New()
	cfg := callcore.ManagerConfig{QueueDepth: 32, CallTimeout: time.Minute}
	manager := callcore.NewCallManager(cfg, platform.AsCallcorePlatform())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = manager.Close(ctx)
	})
	return manager, platform
}

func waitForCall(t *testing.T, m *callcore.CallManager, id callcore.CallId, want callcore.CallState) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		call, ok := m.Get(id)
		if ok && call.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	call, _ := m.Get(id)
	state := callcore.CallState(-1)
	if call != nil {
		state = call.State()
	}
	t.Fatalf("call %d did not reach %v within deadline (last state %v)", id, want, state)
}

func TestOutgoingCallHappyPath(t *testing.T) {
	manager, platform := newTestManager(t)

	id := manager.StartOutgoingCall(1, "peer")
	manager.Synchronize(id)

	started := platform.Manager.StartedCalls()
	if len(started) != 1 || started[0] != id {
		t.Fatalf("expected OnStartCall(%d), got %v", id, started)
	}

	manager.Proceed(id, callcore.CallConfig{}, callcore.AudioLevelsInterval{})
	waitForCall(t, manager, id, callcore.ConnectingBeforeAccepted)

	manager.ReceivedAnswer(id, 5, []byte("answer"))
	manager.ConnectionObserverEvent(id, 5, callcore.ConnectionObserverEvent{
		Kind:  callcore.ObsStateChanged,
		State: callcore.ConnStateConnectedBeforeAccepted,
	})
	waitForCall(t, manager, id, callcore.ConnectedBeforeAccepted)

	manager.ConnectionObserverEvent(id, 5, callcore.ConnectionObserverEvent{
		Kind:  callcore.ObsStateChanged,
		State: callcore.ConnStateConnectedAndAccepted,
	})
	waitForCall(t, manager, id, callcore.ConnectedAndAccepted)

	call, ok := manager.Get(id)
	if !ok {
		t.Fatal("call disappeared from registry")
	}
	active, has := call.ActiveDeviceId()
	if !has || active != 5 {
		t.Fatalf("active device = (%v, %v), want (5, true)", active, has)
	}

	manager.LocalHangup(id)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := manager.Get(id); !ok {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if _, ok := manager.Get(id); ok {
		t.Fatal("call should have been removed from the registry after Terminate")
	}

	terminated := platform.Manager.TerminatedCalls()
	if len(terminated) != 1 || terminated[0] != id {
		t.Fatalf("expected OnTerminateComplete(%d), got %v", id, terminated)
	}
}

func TestIncomingCallAcceptedLocally(t *testing.T) {
	manager, platform := newTestManager(t)

	id := manager.StartIncomingCall(1, "peer", 5)
	manager.Proceed(id, callcore.CallConfig{}, callcore.AudioLevelsInterval{})
	waitForCall(t, manager, id, callcore.ConnectingBeforeAccepted)

	manager.Accept(id)
	manager.Synchronize(id)

	if got := platform.Stats.AcceptLocallyCount(); got != 1 {
		t.Fatalf("AcceptLocallyCount = %d, want 1", got)
	}
}

func TestReceivedHangupTerminatesIncomingCall(t *testing.T) {
	manager, platform := newTestManager(t)

	id := manager.StartIncomingCall(1, "peer", 5)
	manager.Proceed(id, callcore.CallConfig{}, callcore.AudioLevelsInterval{})
	waitForCall(t, manager, id, callcore.ConnectingBeforeAccepted)

	manager.ReceivedHangup(id, 5, callcore.NormalHangup())

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := manager.Get(id); !ok {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if _, ok := manager.Get(id); ok {
		t.Fatal("call should have been removed from the registry after a received hangup")
	}

	if got := platform.Stats.ApplicationEventCount(callcore.EndedRemoteHangup); got != 1 {
		t.Fatalf("expected one EndedRemoteHangup notification, got %d", got)
	}

	terminated := platform.Manager.TerminatedCalls()
	if len(terminated) != 1 || terminated[0] != id {
		t.Fatalf("expected OnTerminateComplete(%d), got %v", id, terminated)
	}
}
