package callcore

import "testing"

func TestDecideHangupTable(t *testing.T) {
	cases := []struct {
		name            string
		hangupType      HangupType
		direction       Direction
		wantExpected    bool
		wantPropagate   bool
		wantPropagateTy HangupType
		wantAppEvent    bool
		wantEvent       ApplicationEvent
	}{
		{"normal incoming", HangupNormal, Incoming, true, false, 0, false, 0},
		{"normal outgoing propagates declined", HangupNormal, Outgoing, true, true, HangupDeclinedOnAnotherDevice, false, 0},
		{"need-permission outgoing propagates and overrides", HangupNeedPermission, Outgoing, true, true, HangupNeedPermission, true, EndedRemoteHangupNeedPermission},
		{"need-permission incoming is unexpected", HangupNeedPermission, Incoming, false, false, 0, false, 0},
		{"accepted-elsewhere incoming", HangupAcceptedOnAnotherDevice, Incoming, true, false, 0, true, EndedRemoteHangupAccepted},
		{"declined-elsewhere incoming", HangupDeclinedOnAnotherDevice, Incoming, true, false, 0, true, EndedRemoteHangupDeclined},
		{"busy-elsewhere incoming", HangupBusyOnAnotherDevice, Incoming, true, false, 0, true, EndedRemoteHangupBusy},
		{"accepted-elsewhere outgoing is unexpected", HangupAcceptedOnAnotherDevice, Outgoing, false, false, 0, false, 0},
		{"declined-elsewhere outgoing is unexpected", HangupDeclinedOnAnotherDevice, Outgoing, false, false, 0, false, 0},
		{"busy-elsewhere outgoing is unexpected", HangupBusyOnAnotherDevice, Outgoing, false, false, 0, false, 0},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := decideHangup(c.hangupType, c.direction, 7)
			if got.expected != c.wantExpected {
				t.Errorf("expected = %v, want %v", got.expected, c.wantExpected)
			}
			if got.shouldPropagate != c.wantPropagate {
				t.Errorf("shouldPropagate = %v, want %v", got.shouldPropagate, c.wantPropagate)
			}
			if c.wantPropagate && got.propagate.Type != c.wantPropagateTy {
				t.Errorf("propagate.Type = %v, want %v", got.propagate.Type, c.wantPropagateTy)
			}
			if got.hasAppEvent != c.wantAppEvent {
				t.Errorf("hasAppEvent = %v, want %v", got.hasAppEvent, c.wantAppEvent)
			}
			if c.wantAppEvent && got.appEvent != c.wantEvent {
				t.Errorf("appEvent = %v, want %v", got.appEvent, c.wantEvent)
			}
		})
	}
}

func TestHandleReceivedHangupIgnoresSelfEcho(t *testing.T) {
	d := newTestDispatcher(t)
	call := NewCall(1, Incoming, 9, "peer")
	call.AddRemoteDevice(5)
	d.calls.(*fakeLookup).add(call)

	d.handleReceivedHangup(call, ReceivedHangup{SenderDevice: 99, Hangup: DeclinedOnAnotherDevice(9)})

	if call.State() != NotYetStarted {
		t.Fatalf("self-echoed hangup should not change state, got %v", call.State())
	}
}

func TestHandleReceivedHangupIgnoresNonActiveDevice(t *testing.T) {
	d := newTestDispatcher(t)
	call := NewCall(2, Outgoing, 1, "peer")
	call.AddRemoteDevice(5)
	call.AddRemoteDevice(6)
	if err := call.setActiveDevice(5); err != nil {
		t.Fatal(err)
	}
	d.calls.(*fakeLookup).add(call)

	d.handleReceivedHangup(call, ReceivedHangup{SenderDevice: 6, Hangup: NormalHangup()})

	if call.State() != NotYetStarted {
		t.Fatalf("hangup from non-active device should be ignored, got state %v", call.State())
	}
}

func TestHandleReceivedHangupPropagatesOnOutgoingNormal(t *testing.T) {
	d := newTestDispatcher(t)
	call := NewCall(4, Outgoing, 1, "peer")
	call.AddRemoteDevice(5)
	call.AddRemoteDevice(6)
	d.calls.(*fakeLookup).add(call)

	// A caller whose callee hangs up Normal must still propagate a
	// DeclinedOnAnotherDevice hangup to its other callee devices even
	// though the call has already moved to Terminating by the time the
	// propagation task runs (§4.2, §4.6) — this only works if propagation
	// is scheduled with scheduleEvenWhenTerminating.
	d.handleReceivedHangup(call, ReceivedHangup{SenderDevice: 5, Hangup: NormalHangup()})

	if call.State() != Terminating {
		t.Fatalf("expected Terminating, got %v", call.State())
	}
	if !d.worker.Drain(testDrainTimeout) {
		t.Fatal("worker pool did not drain")
	}

	media := d.platform.Media.(*fakeMedia)
	if len(media.rtpHangups) != 1 || media.rtpHangups[0].Type != HangupDeclinedOnAnotherDevice {
		t.Fatalf("expected one DeclinedOnAnotherDevice rtp hangup, got %v", media.rtpHangups)
	}

	signaling := d.platform.Signaling.(*fakeSignaling)
	if len(signaling.hangups) != 1 || signaling.hangups[0].Type != HangupDeclinedOnAnotherDevice {
		t.Fatalf("expected one DeclinedOnAnotherDevice signaling hangup, got %v", signaling.hangups)
	}
}

func TestHandleReceivedHangupTerminatesAndNotifies(t *testing.T) {
	d := newTestDispatcher(t)
	call := NewCall(3, Incoming, 1, "peer")
	call.AddRemoteDevice(5)
	d.calls.(*fakeLookup).add(call)

	d.handleReceivedHangup(call, ReceivedHangup{SenderDevice: 5, Hangup: NormalHangup()})

	if call.State() != Terminating {
		t.Fatalf("expected Terminating, got %v", call.State())
	}
	if !d.notify.Drain(testDrainTimeout) {
		t.Fatal("notify pool did not drain")
	}
	events := d.platform.Notify.(*fakeNotify).events(call.ID())
	if len(events) != 1 || events[0] != EndedRemoteHangup {
		t.Fatalf("expected one EndedRemoteHangup notification, got %v", events)
	}
}
