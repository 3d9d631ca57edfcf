package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sleepRecorder struct {
	waits []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return nil
}

func TestDoSucceedsAfterRetries(t *testing.T) {
	rec := &sleepRecorder{}
	calls := 0
	got, attempts, err := Do(context.Background(), Policy{
		MaxAttempts: 3,
		Delay:       Fixed(2 * time.Second),
		Sleep:       rec.sleep,
	}, func(_ context.Context, attempt int) (string, error) {
		calls++
		if attempt < 3 {
			return "", errors.New("not yet")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, rec.waits)
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	fatal := errors.New("fatal")
	calls := 0
	_, attempts, err := Do(context.Background(), Policy{
		MaxAttempts: 5,
		IsRetryable: func(err error) bool { return !errors.Is(err, fatal) },
		Sleep:       (&sleepRecorder{}).sleep,
	}, func(context.Context, int) (int, error) {
		calls++
		return 0, fatal
	})
	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, calls)
}

func TestDoExhaustsBudget(t *testing.T) {
	rec := &sleepRecorder{}
	boom := errors.New("boom")
	_, attempts, err := Do(context.Background(), Policy{MaxAttempts: 3, Sleep: rec.sleep},
		func(context.Context, int) (struct{}, error) { return struct{}{}, boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, attempts)
	assert.Len(t, rec.waits, 2)
}

func TestDoZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	_, attempts, _ := Do(context.Background(), Policy{}, func(context.Context, int) (int, error) {
		calls++
		return 0, errors.New("x")
	})
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, attempts)
}

func TestDoStopsWhenContextCancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, attempts, err := Do(ctx, Policy{MaxAttempts: 3, Delay: Fixed(time.Hour)},
		func(context.Context, int) (int, error) {
			calls++
			cancel()
			return 0, errors.New("transient")
		})
	assert.EqualError(t, err, "transient")
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, calls)
}

func TestExponentialDelays(t *testing.T) {
	p := Exponential(time.Second, 5*time.Second)
	assert.Equal(t, time.Second, p.Delay(1))
	assert.Equal(t, 2*time.Second, p.Delay(2))
	assert.Equal(t, 4*time.Second, p.Delay(3))
	assert.Equal(t, 5*time.Second, p.Delay(4))

	// restarting from the first attempt resets the sequence
	assert.Equal(t, time.Second, p.Delay(1))
}
