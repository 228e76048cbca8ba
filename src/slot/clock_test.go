package slot

import (
	"testing"
	"time"
)

func TestSlotClock(t *testing.T) {
	genesis := time.Unix(1000, 0)
	clock := NewManualClock(genesis.Add(-5 * time.Second))

	sc, err := NewSlotClock(genesis, 2*time.Second, clock)
	if err != nil {
		t.Fatal(err)
	}

	if s := sc.CurrentSlot(); s != 0 {
		t.Fatalf("slot before genesis should be 0, not %d", s)
	}

	if d := sc.UntilNextSlot(); d != 5*time.Second {
		t.Fatalf("time to genesis should be 5s, not %s", d)
	}

	cases := []struct {
		offset time.Duration
		slot   uint64
		next   time.Duration
	}{
		{0, 0, 2 * time.Second},
		{1999 * time.Millisecond, 0, time.Millisecond},
		{2 * time.Second, 1, 2 * time.Second},
		{21 * time.Second, 10, time.Second},
	}

	for _, c := range cases {
		clock.Set(genesis.Add(c.offset))
		if s := sc.CurrentSlot(); s != c.slot {
			t.Fatalf("slot at +%s should be %d, not %d", c.offset, c.slot, s)
		}
		if d := sc.UntilNextSlot(); d != c.next {
			t.Fatalf("next slot at +%s should be in %s, not %s", c.offset, c.next, d)
		}
	}

	if !sc.SlotStart(3).Equal(genesis.Add(6 * time.Second)) {
		t.Fatalf("slot 3 should start at genesis+6s, not %s", sc.SlotStart(3))
	}
}

func TestSlotClockRejectsZeroDuration(t *testing.T) {
	if _, err := NewSlotClock(time.Now(), 0, nil); err == nil {
		t.Fatal("zero duration should be rejected")
	}
}
