package webhook_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/dispatchkit/pkg/webhook"
)

func TestCircuitBreaker(t *testing.T) {
	t.Parallel()

	t.Run("opens after failure threshold", func(t *testing.T) {
		t.Parallel()

		cb := webhook.NewCircuitBreaker(3, 1, time.Hour)
		for range 2 {
			assert.True(t, cb.Allow())
			cb.RecordFailure()
		}
		assert.Equal(t, webhook.CircuitClosed, cb.State())

		cb.RecordFailure()
		assert.Equal(t, webhook.CircuitOpen, cb.State())
		assert.False(t, cb.Allow())
		assert.Equal(t, "open", cb.Stats().State)
		assert.Equal(t, 3, cb.Stats().Failures)
	})

	t.Run("success resets failure count", func(t *testing.T) {
		t.Parallel()

		cb := webhook.NewCircuitBreaker(2, 1, time.Hour)
		cb.RecordFailure()
		cb.RecordSuccess()
		cb.RecordFailure()
		assert.Equal(t, webhook.CircuitClosed, cb.State())
	})

	t.Run("half-open closes after successes", func(t *testing.T) {
		t.Parallel()

		cb := webhook.NewCircuitBreaker(1, 2, 10*time.Millisecond)
		cb.RecordFailure()
		assert.False(t, cb.Allow())

		time.Sleep(20 * time.Millisecond)
		assert.Equal(t, webhook.CircuitHalfOpen, cb.State())
		assert.True(t, cb.Allow())

		cb.RecordSuccess()
		assert.Equal(t, webhook.CircuitHalfOpen, cb.State())
		cb.RecordSuccess()
		assert.Equal(t, webhook.CircuitClosed, cb.State())
	})

	t.Run("half-open failure reopens", func(t *testing.T) {
		t.Parallel()

		cb := webhook.NewCircuitBreaker(1, 2, 10*time.Millisecond)
		cb.RecordFailure()
		time.Sleep(20 * time.Millisecond)
		assert.True(t, cb.Allow())

		cb.RecordFailure()
		assert.Equal(t, webhook.CircuitOpen, cb.State())
		assert.False(t, cb.Allow())
	})

	t.Run("reset", func(t *testing.T) {
		t.Parallel()

		cb := webhook.NewCircuitBreaker(1, 1, time.Hour)
		cb.RecordFailure()
		cb.Reset()
		assert.Equal(t, webhook.CircuitClosed, cb.State())
		assert.True(t, cb.Stats().LastFailure.IsZero())
	})

	t.Run("defaults for invalid thresholds", func(t *testing.T) {
		t.Parallel()

		cb := webhook.NewCircuitBreaker(0, 0, 0)
		for range 4 {
			cb.RecordFailure()
		}
		assert.Equal(t, webhook.CircuitClosed, cb.State())
		cb.RecordFailure()
		assert.Equal(t, webhook.CircuitOpen, cb.State())
	})

	t.Run("concurrent use", func(t *testing.T) {
		t.Parallel()

		cb := webhook.NewCircuitBreaker(1000, 1, time.Hour)
		var wg sync.WaitGroup
		for i := range 50 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				cb.Allow()
				if i%2 == 0 {
					cb.RecordSuccess()
				} else {
					cb.RecordFailure()
				}
				_ = cb.Stats()
			}()
		}
		wg.Wait()
		assert.Equal(t, webhook.CircuitClosed, cb.State())
	})
}

func TestCircuitState_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "closed", webhook.CircuitClosed.String())
	assert.Equal(t, "open", webhook.CircuitOpen.String())
	assert.Equal(t, "half-open", webhook.CircuitHalfOpen.String())
	assert.Equal(t, "unknown", webhook.CircuitState(42).String())
}
