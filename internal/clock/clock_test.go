package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSimAdvancesOneMinutePerTick(t *testing.T) {
	start := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	c := NewSim(start)

	assert.Equal(t, start, c.Now())
	for i := 0; i < 90; i++ {
		c.Advance()
	}
	assert.Equal(t, uint64(90), c.Tick())
	assert.Equal(t, start.Add(90*time.Minute), c.Now())

	c.Restore(24 * 60)
	assert.Equal(t, "Day 2, 8:00", Format(start, c.Now()))
}

func TestPeriodOf(t *testing.T) {
	at := func(h int) time.Time { return time.Date(2024, 1, 1, h, 30, 0, 0, time.UTC) }
	cases := map[int]Period{
		0: Night, 5: Night, 6: Morning, 11: Morning, 12: Afternoon,
		17: Afternoon, 18: Evening, 21: Evening, 22: Night, 23: Night,
	}
	for h, want := range cases {
		assert.Equal(t, want, PeriodOf(at(h)), "hour %d", h)
	}
}

func TestDefaultStart(t *testing.T) {
	got := DefaultStart(time.Date(2024, 5, 9, 17, 45, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2024, 5, 9, 8, 0, 0, 0, time.UTC), got)
}
