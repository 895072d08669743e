package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seasons-hub/seasons-bot/internal/domain/shared"
)

type scriptedSession struct {
	mu          sync.Mutex
	connectErrs []error
	waitErrs    []error
	connects    int
	deadlines   []bool
}

func (s *scriptedSession) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, hasDeadline := ctx.Deadline()
	s.deadlines = append(s.deadlines, hasDeadline)
	s.connects++
	if len(s.connectErrs) == 0 {
		return nil
	}
	err := s.connectErrs[0]
	s.connectErrs = s.connectErrs[1:]
	return err
}

func (s *scriptedSession) Wait(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return errors.New("connected session must not carry a deadline")
	}
	if len(s.waitErrs) == 0 {
		return nil
	}
	err := s.waitErrs[0]
	s.waitErrs = s.waitErrs[1:]
	return err
}

// recordingSleep cancels the run after n sleeps.
func recordingSleep(n int, cancel context.CancelFunc) (func(context.Context, time.Duration) error, *[]time.Duration) {
	var waits []time.Duration
	return func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		if len(waits) >= n {
			cancel()
			return ctx.Err()
		}
		return nil
	}, &waits
}

func fixedRand(u float64) func() float64 { return func() float64 { return u } }

func TestNextWait_RateLimitEscalatesAndCaps(t *testing.T) {
	s := NewSupervisor(&scriptedSession{}, Config{Rand: fixedRand(0)})

	// U(0.95,1.1) at u=0 is 0.95.
	assert.Equal(t, 3420*time.Second, s.NextWait(shared.CategoryRateLimited))
	assert.Equal(t, 5130*time.Second, s.NextWait(shared.CategoryRateLimited))
	assert.Equal(t, 6840*time.Second, s.NextWait(shared.CategoryRateLimited))
	assert.Equal(t, 6840*time.Second, s.NextWait(shared.CategoryRateLimited))
	assert.Equal(t, MaxPenalty, s.Penalty())
}

func TestNextWait_Ranges(t *testing.T) {
	tests := []struct {
		name     string
		category shared.ConnectionCategory
		lo, hi   time.Duration
	}{
		{"http", shared.CategoryHTTP, 900 * time.Second, 1800 * time.Second},
		{"unexpected", shared.CategoryUnexpected, 720 * time.Second, 1080 * time.Second},
		{"closed", shared.CategoryClosed, 10 * time.Second, 10 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, u := range []float64{0, 0.5, 0.999} {
				s := NewSupervisor(&scriptedSession{}, Config{Rand: fixedRand(u)})
				wait := s.NextWait(tt.category)
				assert.GreaterOrEqual(t, wait, tt.lo)
				assert.LessOrEqual(t, wait, tt.hi)
			}
		})
	}
}

func TestNextWait_HTTPKeepsPenalty(t *testing.T) {
	s := NewSupervisor(&scriptedSession{}, Config{Rand: fixedRand(0)})
	s.NextWait(shared.CategoryRateLimited)
	s.NextWait(shared.CategoryHTTP)
	assert.Equal(t, 1, s.Penalty())
}

func TestRun_ClassifiesAndRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rateLimited := &shared.ConnectionError{Category: shared.CategoryRateLimited, Err: errors.New("429")}
	httpErr := &shared.ConnectionError{Category: shared.CategoryHTTP, Err: errors.New("502")}
	session := &scriptedSession{
		connectErrs: []error{rateLimited, httpErr, errors.New("weird"), nil},
	}
	sleepFn, waits := recordingSleep(4, cancel)

	s := NewSupervisor(session, Config{Rand: fixedRand(0), Sleep: sleepFn})
	err := s.Run(ctx)

	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, *waits, 4)
	assert.Equal(t, 3420*time.Second, (*waits)[0])
	assert.Equal(t, 900*time.Second, (*waits)[1])
	assert.Equal(t, 720*time.Second, (*waits)[2])
	// Fourth attempt connected and ended cleanly.
	assert.Equal(t, CleanEndWait, (*waits)[3])
	assert.Equal(t, 4, session.connects)
	assert.Equal(t, 0, s.Penalty(), "penalty resets after a connection")
	assert.Equal(t, StateIdle, s.State())

	for _, hadDeadline := range session.deadlines {
		assert.True(t, hadDeadline, "connect must be bounded by the pre-connect timeout")
	}
}

type blockingConnect struct{}

func (blockingConnect) Connect(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (blockingConnect) Wait(ctx context.Context) error { return nil }

func TestRun_ConnectTimeoutIsUnexpected(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sleepFn, waits := recordingSleep(1, cancel)
	s := NewSupervisor(blockingConnect{}, Config{
		ConnectTimeout: 10 * time.Millisecond,
		Rand:           fixedRand(0.5),
		Sleep:          sleepFn,
	})

	err := s.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, *waits, 1)
	assert.Equal(t, 900*time.Second, (*waits)[0])
}

func TestRun_StopsWhileBackingOff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	session := &scriptedSession{connectErrs: []error{&shared.ConnectionError{Category: shared.CategoryHTTP}}}
	s := NewSupervisor(session, Config{})

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return s.State() == StateBackoff }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("supervisor did not stop")
	}
}
