package engine

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPseudoClock_StartsAtZero(t *testing.T) {
	assert.Equal(t, int64(0), NewPseudoClock().Now())
}

func TestPseudoClock_Advance(t *testing.T) {
	tests := []struct {
		name   string
		amount int64
		unit   time.Duration
		want   int64
	}{
		{"seconds", 10, time.Second, 10_000},
		{"minutes", 2, time.Minute, 120_000},
		{"hours", 1, time.Hour, 3_600_000},
		{"millis", 7, time.Millisecond, 7},
		{"micros truncate", 2500, time.Microsecond, 2},
		{"negative", -3, time.Second, -3_000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewPseudoClock()
			assert.Equal(t, tt.want, c.Advance(tt.amount, tt.unit))
			assert.Equal(t, tt.want, c.Now())
		})
	}
}

func TestPseudoClock_JumpAndRewind(t *testing.T) {
	c := NewPseudoClock()
	c.Advance(5, time.Second)

	jump := math.MaxInt64 - c.Now()
	assert.Equal(t, int64(math.MaxInt64), c.Advance(jump, time.Millisecond))
	assert.Equal(t, int64(5_000), c.Advance(-jump, time.Millisecond))
}
