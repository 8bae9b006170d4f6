package application

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff_StartsAtFloor(t *testing.T) {
	b := NewBackoff(time.Second, 300*time.Second)
	assert.Equal(t, 1000*time.Millisecond, b.Current())
}

func TestBackoff_Transitions(t *testing.T) {
	tests := []struct {
		name    string
		steps   []bool // true = success
		wantDur time.Duration
	}{
		{"success at floor stays at floor", []bool{true}, time.Second},
		{"failure doubles", []bool{false}, 2 * time.Second},
		{"two failures quadruple", []bool{false, false}, 4 * time.Second},
		{"failure then success halves back", []bool{false, false, true}, 2 * time.Second},
		{"ten failures hit ceiling", []bool{false, false, false, false, false, false, false, false, false, false}, 300 * time.Second},
		{"success from ceiling halves", []bool{false, false, false, false, false, false, false, false, false, true}, 150 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBackoff(time.Second, 300*time.Second)
			for _, ok := range tt.steps {
				if ok {
					b.Succeeded()
				} else {
					b.Failed()
				}
			}
			assert.Equal(t, tt.wantDur, b.Current())
		})
	}
}

func TestBackoff_StaysWithinBounds(t *testing.T) {
	b := NewBackoff(time.Second, 300*time.Second)
	pattern := []bool{false, false, true, false, false, false, false, false, false, false, false, false, true, true, true, true, true, true, true, true, true, true}

	for _, ok := range pattern {
		var d time.Duration
		if ok {
			d = b.Succeeded()
		} else {
			d = b.Failed()
		}
		assert.GreaterOrEqual(t, d, time.Second)
		assert.LessOrEqual(t, d, 300*time.Second)
	}
	assert.Equal(t, time.Second, b.Current())
}

func TestBackoff_Defaults(t *testing.T) {
	b := NewBackoff(0, 0)
	assert.Equal(t, DefaultBackoffFloor, b.Current())
	for range 20 {
		b.Failed()
	}
	assert.Equal(t, DefaultBackoffCeiling, b.Current())
}

func TestBackoff_CeilingBelowFloor(t *testing.T) {
	b := NewBackoff(5*time.Second, time.Second)
	assert.Equal(t, 5*time.Second, b.Failed())
}
