package truetime

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

// TestNTPClockAppliesOffset verifies Now is shifted by the measured offset.
func TestNTPClockAppliesOffset(t *testing.T) {
	base := time.Unix(1000, 0)
	q := func(string) (time.Duration, time.Duration, error) {
		return 2 * time.Second, 40 * time.Millisecond, nil
	}
	c := newNTPClock("", zap.NewNop(), q, func() time.Time { return base })

	if !c.Now().Equal(base) {
		t.Errorf("Expected unsynced clock to read %v, got %v", base, c.Now())
	}
	if err := c.Sync(); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if !c.Synced() {
		t.Error("Expected clock to report synced")
	}
	want := base.Add(2 * time.Second)
	if !c.Now().Equal(want) {
		t.Errorf("Expected %v, got %v", want, c.Now())
	}
	iv := c.NowInterval()
	if iv.Latest.Sub(iv.Earliest) != 40*time.Millisecond {
		t.Errorf("Expected interval width 40ms, got %v", iv.Latest.Sub(iv.Earliest))
	}
	if c.server != "time.google.com" {
		t.Errorf("Expected default server, got %q", c.server)
	}
}

// TestNTPClockRunRejectsInterval makes sure a bad interval never reaches the ticker.
func TestNTPClockRunRejectsInterval(t *testing.T) {
	q := func(string) (time.Duration, time.Duration, error) {
		t.Error("Expected no query for a rejected interval")
		return 0, 0, nil
	}
	c := newNTPClock("", zap.NewNop(), q, time.Now)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, d := range []time.Duration{0, -time.Second} {
		if err := c.Run(ctx, d); err == nil {
			t.Errorf("Expected an error for interval %v", d)
		}
	}
	if c.Synced() {
		t.Error("Expected clock to stay unsynced")
	}
}

// TestNTPClockKeepsOffsetOnFailure makes sure a failed query changes nothing.
func TestNTPClockKeepsOffsetOnFailure(t *testing.T) {
	base := time.Unix(1000, 0)
	fail := false
	q := func(string) (time.Duration, time.Duration, error) {
		if fail {
			return 0, 0, errors.New("timeout")
		}
		return time.Second, 0, nil
	}
	c := newNTPClock("pool.ntp.org", nil, q, func() time.Time { return base })
	if err := c.Sync(); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	fail = true
	if err := c.Sync(); err == nil {
		t.Error("Expected error from failing query")
	}
	if !c.Now().Equal(base.Add(time.Second)) {
		t.Errorf("Expected offset to survive a failed sync, got %v", c.Now())
	}
}

type fixedClock time.Time

func (f fixedClock) Now() time.Time { return time.Time(f) }

// TestMonotonic never returns the same instant twice.
func TestMonotonic(t *testing.T) {
	m := NewMonotonic(fixedClock(time.Unix(5, 0)))
	a, b := m.Now(), m.Now()
	if !b.After(a) {
		t.Errorf("Expected %v after %v", b, a)
	}
	if Micros(b)-Micros(a) != 1 {
		t.Errorf("Expected 1µs step, got %d", Micros(b)-Micros(a))
	}
}
