package browser

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formpilot/pkg/config"
	"formpilot/pkg/limiter"
)

func TestRetryGrowsTimeout(t *testing.T) {
	var timeouts, waits []time.Duration
	wait := func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	attempts, err := retry(context.Background(), config.RetryConfig{MaxAttempts: 5, BackoffFactor: 1.5}, 8*time.Second, wait,
		func(attempt int, timeout time.Duration) error {
			timeouts = append(timeouts, timeout)
			if attempt < 3 {
				return errors.New("chrome crashed")
			}
			return nil
		})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []time.Duration{8 * time.Second, 12 * time.Second, 18 * time.Second}, timeouts)
	assert.Equal(t, []time.Duration{8 * time.Second, 12 * time.Second}, waits)
}

func TestRetryGivesUp(t *testing.T) {
	calls := 0
	attempts, err := retry(context.Background(), config.RetryConfig{MaxAttempts: 5, BackoffFactor: 1.5}, time.Second,
		func(context.Context, time.Duration) error { return nil },
		func(int, time.Duration) error {
			calls++
			return errors.New("unreachable")
		})

	assert.ErrorIs(t, err, ErrLaunchFailed)
	assert.ErrorContains(t, err, "unreachable")
	assert.Equal(t, 5, attempts)
	assert.Equal(t, 5, calls)
}

func TestRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	attempts, err := retry(ctx, config.RetryConfig{MaxAttempts: 5, BackoffFactor: 1.5}, time.Minute, sleepCtx,
		func(int, time.Duration) error { return errors.New("down") })

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestRetryClampsConfig(t *testing.T) {
	var timeouts []time.Duration
	attempts, err := retry(context.Background(), config.RetryConfig{}, time.Second,
		func(context.Context, time.Duration) error { return nil },
		func(_ int, timeout time.Duration) error {
			timeouts = append(timeouts, timeout)
			return errors.New("no")
		})
	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, []time.Duration{time.Second}, timeouts)
}

type launchCounter struct {
	attempts int
	calls    int
}

func (c *launchCounter) ObserveBrowserLaunch(attempts int, _ bool) {
	c.calls++
	c.attempts += attempts
}

func TestOpenRefusedAtCapacity(t *testing.T) {
	cfg := config.Default().Browser
	cfg.Limits = config.LimitsConfig{MaxOpenForms: 1}
	counter := &launchCounter{}
	o := NewOpener(cfg, WithObserver(counter))
	require.NoError(t, o.limits.Acquire())

	_, err := o.Open(context.Background(), "https://docs.google.com/forms/d/e/abc/viewform")
	assert.ErrorIs(t, err, ErrLaunchFailed)
	assert.ErrorIs(t, err, limiter.ErrCapacity)
	assert.Zero(t, counter.calls, "no launch is attempted without a slot")

	o.release()
	open, _ := o.limits.Status()
	assert.Zero(t, open)
}
