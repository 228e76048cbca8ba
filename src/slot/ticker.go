package slot

import (
	"time"
)

type timerFactory func(time.Duration) <-chan time.Time

// Ticker wakes up at every slot boundary and emits the new slot number. The
// output channel holds at most one pending slot; a slow consumer only ever
// sees the most recent one.
type Ticker struct {
	clock        *SlotClock
	timerFactory timerFactory
	tickCh       chan uint64   // latest slot, buffered 1
	shutdownCh   chan struct{} // closed to exit the Run loop
}

// NewTicker returns a Ticker driven by real timers.
func NewTicker(clock *SlotClock) *Ticker {
	return newTicker(clock, time.After)
}

func newTicker(clock *SlotClock, factory timerFactory) *Ticker {
	return &Ticker{
		clock:        clock,
		timerFactory: factory,
		tickCh:       make(chan uint64, 1),
		shutdownCh:   make(chan struct{}),
	}
}

// C returns the channel of slot ticks.
func (t *Ticker) C() <-chan uint64 {
	return t.tickCh
}

// Run blocks until Shutdown is called. The slot current when Run starts is
// not emitted; the first tick is the next boundary.
func (t *Ticker) Run() {
	last := t.clock.CurrentSlot()
	timer := t.timerFactory(t.clock.UntilNextSlot())

	for {
		select {
		case <-timer:
			if slot := t.clock.CurrentSlot(); slot > last {
				last = slot
				t.emit(slot)
			}
			timer = t.timerFactory(t.clock.UntilNextSlot())
		case <-t.shutdownCh:
			return
		}
	}
}

// emit replaces any unconsumed tick with slot.
func (t *Ticker) emit(slot uint64) {
	select {
	case <-t.tickCh:
	default:
	}
	t.tickCh <- slot
}

// Shutdown stops the Run loop. It is safe to call more than once.
func (t *Ticker) Shutdown() {
	select {
	case <-t.shutdownCh:
	default:
		close(t.shutdownCh)
	}
}
