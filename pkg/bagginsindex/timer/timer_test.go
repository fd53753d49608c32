package timer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestElapsedOnFakeClock(t *testing.T) {
	now := time.Unix(100, 0)
	tm := StartWith(func() time.Time { return now })
	now = now.Add(1500 * time.Millisecond)

	assert.Equal(t, 1500*time.Millisecond, tm.Elapsed())
	assert.Equal(t, 1500.0, tm.Millis())
	assert.Equal(t, 1.5, tm.Seconds())
}

func TestZeroTimer(t *testing.T) {
	var tm Timer
	assert.Equal(t, time.Duration(0), tm.Elapsed())
}

func TestWallClockMonotonic(t *testing.T) {
	tm := Start()
	time.Sleep(time.Millisecond)
	assert.GreaterOrEqual(t, tm.Elapsed(), time.Millisecond)
}
