package slot

import (
	"fmt"
	"sync"
	"time"
)

// Clock is the source of the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the local wall clock.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// ManualClock is a Clock that only moves when told to. It is used by tests and
// simulations.
type ManualClock struct {
	l   sync.Mutex
	now time.Time
}

// NewManualClock ...
func NewManualClock(now time.Time) *ManualClock {
	return &ManualClock{now: now}
}

// Now implements Clock.
func (c *ManualClock) Now() time.Time {
	c.l.Lock()
	defer c.l.Unlock()
	return c.now
}

// Set moves the clock to t.
func (c *ManualClock) Set(t time.Time) {
	c.l.Lock()
	defer c.l.Unlock()
	c.now = t
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.l.Lock()
	defer c.l.Unlock()
	c.now = c.now.Add(d)
}

// SlotClock maps times to slot numbers.
type SlotClock struct {
	genesis  time.Time
	duration time.Duration
	clock    Clock
}

// NewSlotClock ...
func NewSlotClock(genesis time.Time, duration time.Duration, clock Clock) (*SlotClock, error) {
	if duration <= 0 {
		return nil, fmt.Errorf("slot duration must be positive, got %s", duration)
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &SlotClock{
		genesis:  genesis,
		duration: duration,
		clock:    clock,
	}, nil
}

// SlotAt returns floor((t - genesis) / duration). Times before genesis are in
// slot 0.
func (s *SlotClock) SlotAt(t time.Time) uint64 {
	if t.Before(s.genesis) {
		return 0
	}
	return uint64(t.Sub(s.genesis) / s.duration)
}

// CurrentSlot returns the slot of the clock's current time.
func (s *SlotClock) CurrentSlot() uint64 {
	return s.SlotAt(s.clock.Now())
}

// SlotStart returns the time at which slot begins.
func (s *SlotClock) SlotStart(slot uint64) time.Time {
	return s.genesis.Add(time.Duration(slot) * s.duration)
}

// UntilNextSlot returns the time left before the next slot begins.
func (s *SlotClock) UntilNextSlot() time.Duration {
	now := s.clock.Now()
	if now.Before(s.genesis) {
		return s.genesis.Sub(now)
	}
	return s.SlotStart(s.SlotAt(now) + 1).Sub(now)
}

// Duration ...
func (s *SlotClock) Duration() time.Duration {
	return s.duration
}

// Genesis ...
func (s *SlotClock) Genesis() time.Time {
	return s.genesis
}
