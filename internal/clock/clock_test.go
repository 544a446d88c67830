package clock

import (
	"testing"
	"time"
)

func TestManualAdvance(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewManual(start)

	c.Sleep(100 * time.Millisecond)
	c.Advance(time.Second)
	c.Advance(-time.Hour)

	if got := c.Now().Sub(start); got != 1100*time.Millisecond {
		t.Errorf("elapsed = %v, want 1.1s", got)
	}
}
