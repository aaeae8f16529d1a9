package callcore

import "testing"

func TestIncomingLocalRingingOnConnectedBeforeAccepted(t *testing.T) {
	d := newTestDispatcher(t)
	call := NewCall(1, Incoming, 1, "peer")
	call.AddRemoteDevice(5)
	if err := call.setState(WaitingToProceed); err != nil {
		t.Fatal(err)
	}
	if err := call.setState(ConnectingBeforeAccepted); err != nil {
		t.Fatal(err)
	}
	d.calls.(*fakeLookup).add(call)

	d.handleConnectionStateChanged(call, ConnStateConnectedBeforeAccepted, 5)

	if call.State() != ConnectedBeforeAccepted {
		t.Fatalf("state = %v, want ConnectedBeforeAccepted", call.State())
	}
	d.notify.Drain(testDrainTimeout)
	events := d.platform.Notify.(*fakeNotify).events(call.ID())
	if len(events) != 1 || events[0] != LocalRinging {
		t.Fatalf("events = %v, want [LocalRinging]", events)
	}
}

func TestOutgoingRemoteRingingOnConnectedBeforeAccepted(t *testing.T) {
	d := newTestDispatcher(t)
	call := NewCall(1, Outgoing, 1, "peer")
	call.AddRemoteDevice(5)
	if err := call.setState(WaitingToProceed); err != nil {
		t.Fatal(err)
	}
	if err := call.setState(ConnectingBeforeAccepted); err != nil {
		t.Fatal(err)
	}
	d.calls.(*fakeLookup).add(call)

	d.handleConnectionStateChanged(call, ConnStateConnectedBeforeAccepted, 5)

	d.notify.Drain(testDrainTimeout)
	events := d.platform.Notify.(*fakeNotify).events(call.ID())
	if len(events) != 1 || events[0] != RemoteRinging {
		t.Fatalf("events = %v, want [RemoteRinging]", events)
	}
}

func TestOutgoingAcceptCommitsActiveDeviceAndSilencesOthers(t *testing.T) {
	d := newTestDispatcher(t)
	call := NewCall(1, Outgoing, 1, "peer")
	call.AddRemoteDevice(5)
	call.AddRemoteDevice(6)
	for _, s := range []CallState{WaitingToProceed, ConnectingBeforeAccepted} {
		if err := call.setState(s); err != nil {
			t.Fatal(err)
		}
	}
	d.calls.(*fakeLookup).add(call)

	d.handleConnectionStateChanged(call, ConnStateConnectingAfterAccepted, 5)

	if call.State() != ConnectingAfterAccepted {
		t.Fatalf("state = %v, want ConnectingAfterAccepted", call.State())
	}
	active, has := call.ActiveDeviceId()
	if !has || active != 5 {
		t.Fatalf("active device = (%v, %v), want (5, true)", active, has)
	}

	d.worker.Drain(testDrainTimeout)
	media := d.platform.Media.(*fakeMedia)
	if len(media.rtpHangups) != 1 || media.rtpHangups[0].Type != HangupAcceptedOnAnotherDevice {
		t.Fatalf("expected one AcceptedOnAnotherDevice rtp hangup, got %v", media.rtpHangups)
	}
	if len(media.terminated) != 1 || media.terminated[0] != 5 {
		t.Fatalf("expected TerminateConnectionsExceptAccepted(5), got %v", media.terminated)
	}
}

func TestConnectedAndAcceptedIgnoredFromNonActiveDevice(t *testing.T) {
	d := newTestDispatcher(t)
	call := NewCall(1, Outgoing, 1, "peer")
	call.AddRemoteDevice(5)
	call.AddRemoteDevice(6)
	for _, s := range []CallState{WaitingToProceed, ConnectingBeforeAccepted, ConnectingAfterAccepted} {
		if err := call.setState(s); err != nil {
			t.Fatal(err)
		}
	}
	if err := call.setActiveDevice(5); err != nil {
		t.Fatal(err)
	}
	d.calls.(*fakeLookup).add(call)

	d.handleConnectionStateChanged(call, ConnStateConnectedAndAccepted, 6)

	if call.State() != ConnectingAfterAccepted {
		t.Fatalf("state should not advance on report from non-active device, got %v", call.State())
	}
}

func TestIceFailedHandledEvenFromNonActiveDevice(t *testing.T) {
	d := newTestDispatcher(t)
	call := NewCall(1, Outgoing, 1, "peer")
	call.AddRemoteDevice(5)
	call.AddRemoteDevice(6)
	if err := call.setActiveDevice(5); err != nil {
		t.Fatal(err)
	}
	d.calls.(*fakeLookup).add(call)

	d.handleConnectionObserverEvent(call, ConnectionObserverEvent{Kind: ObsStateChanged, State: ConnStateIceFailed}, 6)

	d.worker.Drain(testDrainTimeout)
	media := d.platform.Media.(*fakeMedia)
	if len(media.iceFailed) != 1 || media.iceFailed[0] != 6 {
		t.Fatalf("expected HandleIceFailed(6), got %v", media.iceFailed)
	}
}

func TestAuxiliaryEventsDroppedBeforeActiveDeviceChosen(t *testing.T) {
	d := newTestDispatcher(t)
	call := NewCall(1, Outgoing, 1, "peer")
	call.AddRemoteDevice(5)
	d.calls.(*fakeLookup).add(call)

	video := true
	d.handleConnectionObserverEvent(call, ConnectionObserverEvent{Kind: ObsRemoteSenderStatusChanged, VideoEnabled: &video}, 5)

	d.notify.Drain(testDrainTimeout)
	events := d.platform.Notify.(*fakeNotify).events(call.ID())
	if len(events) != 0 {
		t.Fatalf("expected no events before an active device is chosen, got %v", events)
	}
}
