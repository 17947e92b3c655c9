// ABOUTME: Tests for the exponential backoff delay formula
// ABOUTME: Verifies delay(n) = min(base * factor^(n-1), maxDelay)

package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryPolicy_Delay(t *testing.T) {
	p := RetryPolicy{
		MaxAttempts: 6,
		BaseDelay:   1000 * time.Millisecond,
		Factor:      2,
		MaxDelay:    30000 * time.Millisecond,
	}

	want := []time.Duration{
		1000 * time.Millisecond,
		2000 * time.Millisecond,
		4000 * time.Millisecond,
		8000 * time.Millisecond,
		16000 * time.Millisecond,
		30000 * time.Millisecond, // capped, would be 32000
	}
	for n := 1; n <= 6; n++ {
		assert.Equal(t, want[n-1], p.Delay(n), "delay(%d)", n)
	}
}

func TestRetryPolicy_DelayClampsLowAttempt(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.Equal(t, p.BaseDelay, p.Delay(0))
	assert.Equal(t, p.BaseDelay, p.Delay(-3))
}

func TestDefaultRetryPolicy(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, time.Second, p.BaseDelay)
	assert.Equal(t, float64(2), p.Factor)
	assert.Equal(t, 30*time.Second, p.MaxDelay)
}
