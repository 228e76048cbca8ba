package slot

import (
	"testing"
	"time"

	"go.uber.org/goleak"
)

type manualTimers struct {
	timers chan chan time.Time
}

func newManualTimers() *manualTimers {
	return &manualTimers{timers: make(chan chan time.Time, 16)}
}

func (m *manualTimers) factory(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	m.timers <- ch
	return ch
}

// fire triggers the timer armed by the ticker and waits until the ticker has
// armed the next one, ie. until it has processed the wake-up.
func (m *manualTimers) fire(t *testing.T) {
	select {
	case ch := <-m.timers:
		ch <- time.Time{}
	case <-time.After(time.Second):
		t.Fatal("ticker did not arm a timer")
	}
	select {
	case ch := <-m.timers:
		// put it back for the next fire
		m.timers <- ch
	case <-time.After(time.Second):
		t.Fatal("ticker did not re-arm")
	}
}

// armed waits until Run has armed its first timer, ie. until it has read the
// current slot.
func (m *manualTimers) armed(t *testing.T) {
	select {
	case ch := <-m.timers:
		m.timers <- ch
	case <-time.After(time.Second):
		t.Fatal("ticker did not arm a timer")
	}
}

func expectTick(t *testing.T, ticker *Ticker, slot uint64) {
	select {
	case s := <-ticker.C():
		if s != slot {
			t.Fatalf("tick should be slot %d, not %d", slot, s)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected tick for slot %d", slot)
	}
}

func expectNoTick(t *testing.T, ticker *Ticker) {
	select {
	case s := <-ticker.C():
		t.Fatalf("unexpected tick for slot %d", s)
	default:
	}
}

func TestTicker(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	genesis := time.Unix(0, 0)
	clock := NewManualClock(genesis.Add(500 * time.Millisecond))
	sc, _ := NewSlotClock(genesis, time.Second, clock)

	timers := newManualTimers()
	ticker := newTicker(sc, timers.factory)
	go ticker.Run()
	defer ticker.Shutdown()

	timers.armed(t)

	// next boundary
	clock.Advance(time.Second)
	timers.fire(t)
	expectTick(t, ticker, 1)

	// early wake-up in the same slot
	timers.fire(t)
	expectNoTick(t, ticker)

	// the process slept through slots 2, 3 and 4
	clock.Advance(3 * time.Second)
	timers.fire(t)
	expectTick(t, ticker, 4)
	expectNoTick(t, ticker)

	// an unconsumed tick is replaced by the newer one
	clock.Advance(time.Second)
	timers.fire(t)
	clock.Advance(time.Second)
	timers.fire(t)
	expectTick(t, ticker, 6)
	expectNoTick(t, ticker)

	ticker.Shutdown()
	ticker.Shutdown()
}

func TestTickerRealTimers(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	sc, _ := NewSlotClock(time.Now(), 20*time.Millisecond, SystemClock{})
	ticker := NewTicker(sc)
	go ticker.Run()
	defer ticker.Shutdown()

	first := <-ticker.C()
	var second uint64
	select {
	case second = <-ticker.C():
	case <-time.After(time.Second):
		t.Fatal("ticker stalled")
	}

	if second <= first {
		t.Fatalf("slots should increase: %d then %d", first, second)
	}
}
