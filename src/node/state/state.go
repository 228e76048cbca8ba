package state

import (
	"sync"
	"sync/atomic"
)

// State captures the lifecycle state of a tandem node: Initialised, Running,
// or Shutdown
type State uint32

const (
	// Initialised is the state of a node that has been created but whose Run
	// loop has not started.
	Initialised State = iota

	// Running is the state in which a node reacts to slot ticks and inbound
	// messages.
	Running

	// Shutdown is the state in which a node stops responding to external events
	// and closes its transport and store.
	Shutdown
)

// WGLIMIT is the maximum number of goroutines that can be launched through
// state.GoFunc
const WGLIMIT = 20

// String returns the string representation of a State
func (s State) String() string {
	switch s {
	case Initialised:
		return "Initialised"
	case Running:
		return "Running"
	case Shutdown:
		return "Shutdown"
	default:
		return "Unknown"
	}
}

// Manager wraps a State with get and set methods. It is also used to limit the
// number of goroutines launched by the node, and to wait for all of them to
// complete.
type Manager struct {
	state   State
	wg      sync.WaitGroup
	wgCount int32
}

// GetState returns the current state.
func (m *Manager) GetState() State {
	stateAddr := (*uint32)(&m.state)
	return State(atomic.LoadUint32(stateAddr))
}

// SetState sets the state.
func (m *Manager) SetState(s State) {
	stateAddr := (*uint32)(&m.state)
	atomic.StoreUint32(stateAddr, uint32(s))
}

// Transition moves from one state to another, and reports false, leaving the
// state unchanged, if the current state is not from.
func (m *Manager) Transition(from, to State) bool {
	stateAddr := (*uint32)(&m.state)
	return atomic.CompareAndSwapUint32(stateAddr, uint32(from), uint32(to))
}

// GoFunc launches a goroutine for a given function, if there are currently
// less than WGLIMIT running. It increments the waitgroup and reports whether
// the function was launched.
func (m *Manager) GoFunc(f func()) bool {
	if atomic.AddInt32(&m.wgCount, 1) > WGLIMIT {
		atomic.AddInt32(&m.wgCount, -1)
		return false
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer atomic.AddInt32(&m.wgCount, -1)
		f()
	}()
	return true
}

// WaitRoutines waits for all the goroutines in the waitgroup.
func (m *Manager) WaitRoutines() {
	m.wg.Wait()
}
