package callcore

import (
	"fmt"
	"sync"
	"time"
)

// StateTransitionError indicates an illegal CallState transition was
// attempted. It is never returned across the FSM boundary to a producer;
// the dispatcher logs it and leaves state unchanged (§7, §8 invariant 1).
type StateTransitionError struct {
	CallId CallId
	From   CallState
	To     CallState
}

func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("call %d: illegal transition %s -> %s", e.CallId, e.From, e.To)
}

// callStateGraph is the only set of legal CallState transitions (§4.4).
// Dispatcher methods consult it through Call.setState; nothing else is
// permitted to mutate state.
var callStateGraph = map[CallState][]CallState{
	NotYetStarted:             {WaitingToProceed, Terminating},
	WaitingToProceed:          {ConnectingBeforeAccepted, Terminating},
	ConnectingBeforeAccepted:  {ConnectedBeforeAccepted, ConnectingAfterAccepted, ConnectedAndAccepted, Terminating},
	ConnectedBeforeAccepted:   {ConnectingAfterAccepted, ConnectedAndAccepted, Terminating},
	ConnectingAfterAccepted:   {ConnectedAndAccepted, Terminating},
	ConnectedAndAccepted:      {ReconnectingAfterAccepted, Terminating},
	ReconnectingAfterAccepted: {ConnectedAndAccepted, Terminating},
	Terminating:               {Terminated},
	Terminated:                {},
}

func (s CallState) canTransitionTo(next CallState) bool {
	for _, allowed := range callStateGraph[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Call is the authoritative record of a single call's lifecycle. All of
// its fields are private; every read and write goes through a method that
// preserves the invariants in §3. A Call is shared by the FSM dispatcher
// goroutine and both pool goroutines and is protected by a single mutex
// (§5 "Shared resources").
type Call struct {
	mu sync.Mutex

	id            CallId
	direction     Direction
	localDevice   DeviceId
	remotePeer    string
	remoteDevices map[DeviceId]struct{}
	activeDevice  DeviceId
	hasActive     bool
	state         CallState
	createdAt     time.Time
	terminatedAt  time.Time
}

// NewCall creates a Call in NotYetStarted, as done by the external Call
// Manager when the application starts or receives an offer (§3
// "Lifecycle").
func NewCall(id CallId, direction Direction, localDevice DeviceId, remotePeer string) *Call {
	return &Call{
		id:            id,
		direction:     direction,
		localDevice:   localDevice,
		remotePeer:    remotePeer,
		remoteDevices: make(map[DeviceId]struct{}),
		state:         NotYetStarted,
		createdAt:     time.Now(),
	}
}

func (c *Call) ID() CallId          { return c.id }
func (c *Call) Direction() Direction { return c.direction }
func (c *Call) LocalDeviceId() DeviceId { return c.localDevice }
func (c *Call) RemotePeer() string  { return c.remotePeer }

// State returns the current CallState.
func (c *Call) State() CallState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// setState enforces the transition graph. Illegal transitions are
// rejected and logged by the caller (the dispatcher), never silently
// applied — this is invariant 1 of §8.
func (c *Call) setState(next CallState) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.state.canTransitionTo(next) {
		return &StateTransitionError{CallId: c.id, From: c.state, To: next}
	}
	c.state = next
	if next == Terminated {
		c.terminatedAt = time.Now()
	}
	return nil
}

// AddRemoteDevice records a device discovered during call setup.
func (c *Call) AddRemoteDevice(id DeviceId) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remoteDevices[id] = struct{}{}
}

// RemoteDevices returns a snapshot of all remote devices recorded so far
// through AddRemoteDevice. Choosing an active device does not add it to
// this set.
func (c *Call) RemoteDevices() []DeviceId {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]DeviceId, 0, len(c.remoteDevices))
	for id := range c.remoteDevices {
		out = append(out, id)
	}
	return out
}

// OtherRemoteDevices returns every known remote device except the one
// given, used when propagating a hangup or silencing non-chosen devices
// (§4.6, §4.7).
func (c *Call) OtherRemoteDevices(except DeviceId) []DeviceId {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]DeviceId, 0, len(c.remoteDevices))
	for id := range c.remoteDevices {
		if id != except {
			out = append(out, id)
		}
	}
	return out
}

// ActiveDeviceId returns the chosen remote device and whether one has been
// set yet.
func (c *Call) ActiveDeviceId() (DeviceId, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeDevice, c.hasActive
}

// setActiveDevice sets the active device exactly once; subsequent calls
// with a different id are a programming error and are rejected, preserving
// invariant 2 of §8 ("ActiveRemoteDeviceId, once set, never changes").
func (c *Call) setActiveDevice(id DeviceId) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hasActive {
		if c.activeDevice == id {
			return nil
		}
		return fmt.Errorf("call %d: active device already set to %d, cannot set to %d", c.id, c.activeDevice, id)
	}
	c.activeDevice = id
	c.hasActive = true
	return nil
}

// IsActiveDevice reports whether id is the call's chosen active device.
// Always false before one has been chosen.
func (c *Call) IsActiveDevice(id DeviceId) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasActive && c.activeDevice == id
}

// Timestamps returns creation and termination times (zero if not yet
// terminated).
func (c *Call) Timestamps() (created, terminated time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.createdAt, c.terminatedAt
}
