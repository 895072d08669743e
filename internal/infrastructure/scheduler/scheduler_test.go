package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seasons-hub/seasons-bot/internal/domain/shared"
	"github.com/seasons-hub/seasons-bot/pkg/timeutil"
)

// ─────────────────────────────────────────────────────────────────────────────
// Test jobs
// ─────────────────────────────────────────────────────────────────────────────

type funcJob struct {
	name string
	runs atomic.Int32
	fn   func(ctx context.Context) error
}

func (j *funcJob) Name() string        { return j.name }
func (j *funcJob) Description() string { return "test job " + j.name }

func (j *funcJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	if j.fn == nil {
		return nil
	}
	return j.fn(ctx)
}

func newTestScheduler() *Scheduler {
	return NewScheduler(SchedulerConfig{TickInterval: 2 * time.Millisecond})
}

// ─────────────────────────────────────────────────────────────────────────────
// Registration and lifecycle
// ─────────────────────────────────────────────────────────────────────────────

func TestRegister_Validation(t *testing.T) {
	s := newTestScheduler()

	assert.ErrorIs(t, s.Register(nil, Every(time.Minute)), ErrNilJob)
	assert.ErrorIs(t, s.Register(&funcJob{name: "a"}, nil), ErrNilSchedule)

	require.NoError(t, s.Register(&funcJob{name: "a"}, Every(time.Minute)))
	assert.ErrorIs(t, s.Register(&funcJob{name: "a"}, Every(time.Minute)), ErrJobAlreadyExists)
}

func TestStart_IsIdempotent(t *testing.T) {
	s := newTestScheduler()
	job := &funcJob{name: "startup"}
	require.NoError(t, s.Register(job, Every(time.Hour), RunOnStart()))

	ctx := context.Background()
	require.NoError(t, s.Start(ctx))
	assert.ErrorIs(t, s.Start(ctx), ErrSchedulerAlreadyRunning)
	assert.True(t, s.IsRunning())

	require.Eventually(t, func() bool { return job.runs.Load() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, s.Stop())
	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)
	assert.Equal(t, int32(1), job.runs.Load(), "an hourly job runs once on start")
}

func TestDisabledJob_OnlyRunsManually(t *testing.T) {
	s := newTestScheduler()
	job := &funcJob{name: "manual"}
	require.NoError(t, s.Register(job, Every(time.Millisecond), RunOnStart(), Disabled()))

	require.NoError(t, s.Start(context.Background()))
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, s.Stop())
	assert.Zero(t, job.runs.Load())

	result, err := s.RunNow(context.Background(), "manual")
	require.NoError(t, err)
	assert.True(t, result.Manual)
	assert.Equal(t, int32(1), job.runs.Load())
}

// ─────────────────────────────────────────────────────────────────────────────
// Error boundary
// ─────────────────────────────────────────────────────────────────────────────

func TestAlreadyRunningJobIsSkipped(t *testing.T) {
	s := newTestScheduler()
	release := make(chan struct{})
	job := &funcJob{name: "slow", fn: func(ctx context.Context) error {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}}
	require.NoError(t, s.Register(job, Every(time.Millisecond), RunOnStart()))
	require.NoError(t, s.Start(context.Background()))

	require.Eventually(t, func() bool {
		info, err := s.GetJobInfo("slow")
		return err == nil && info.SkipCount >= 2
	}, time.Second, time.Millisecond)

	assert.Equal(t, int32(1), job.runs.Load(), "no overlapping pass")

	_, err := s.RunNow(context.Background(), "slow")
	assert.ErrorIs(t, err, ErrJobAlreadyRunning)

	close(release)
	require.NoError(t, s.Stop())
}

func TestPanicIsRecoveredAndCounted(t *testing.T) {
	s := newTestScheduler()
	job := &funcJob{name: "crashy", fn: func(ctx context.Context) error {
		panic("nil map write")
	}}
	require.NoError(t, s.Register(job, Every(time.Hour)))

	for range 2 {
		result, err := s.RunNow(context.Background(), "crashy")
		require.Error(t, err)
		assert.ErrorIs(t, err, shared.ErrJobCrash)
		require.NotNil(t, result)
		assert.False(t, result.Success)
		assert.NotEmpty(t, result.RunID)
	}

	assert.Equal(t, int32(2), job.runs.Load(), "a crashed job runs again")
	snap := s.GetMetrics().Snapshot()
	assert.Equal(t, int64(2), snap.TotalCrashes)
	assert.Equal(t, int64(2), snap.CrashesByJob["crashy"])
	assert.Equal(t, int64(2), snap.FailuresByJob["crashy"])
}

func TestRunNow(t *testing.T) {
	s := newTestScheduler()
	failing := errors.New("store unavailable")
	require.NoError(t, s.Register(&funcJob{name: "ok"}, Every(time.Hour)))
	require.NoError(t, s.Register(&funcJob{name: "bad", fn: func(ctx context.Context) error { return failing }}, Every(time.Hour)))

	_, err := s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)

	result, err := s.RunNow(context.Background(), "ok")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "ok", result.JobName)

	_, err = s.RunNow(context.Background(), "bad")
	assert.ErrorIs(t, err, failing)

	history := s.GetHistory(0)
	require.Len(t, history, 2)
	assert.Equal(t, "ok", history[0].JobName)
	assert.Equal(t, "bad", history[1].JobName)

	snap := s.GetMetrics().Snapshot()
	assert.Equal(t, int64(2), snap.TotalExecutions)
	assert.Equal(t, int64(1), snap.TotalFailures)
	assert.Zero(t, snap.TotalCrashes)
}

func TestListJobs_Sorted(t *testing.T) {
	s := newTestScheduler()
	for _, name := range []string{"voice_tick", "daily_reset", "inactivity_sweep"} {
		require.NoError(t, s.Register(&funcJob{name: name}, Every(time.Minute)))
	}
	require.NoError(t, s.DisableJob("voice_tick"))
	assert.ErrorIs(t, s.EnableJob("nope"), ErrJobNotFound)

	jobs := s.ListJobs()
	require.Len(t, jobs, 3)
	assert.Equal(t, []string{"daily_reset", "inactivity_sweep", "voice_tick"}, []string{jobs[0].Name, jobs[1].Name, jobs[2].Name})
	assert.False(t, jobs[2].Enabled)
	assert.Equal(t, "@every 1m0s", jobs[0].Schedule)
}

// ─────────────────────────────────────────────────────────────────────────────
// Schedules
// ─────────────────────────────────────────────────────────────────────────────

func TestCronSchedule_LocalMidnight(t *testing.T) {
	cs, err := NewCronSchedule(EveryDayMidnight, timeutil.KST)
	require.NoError(t, err)

	afternoon := time.Date(2025, 7, 22, 13, 0, 0, 0, timeutil.KST)
	next := cs.Next(afternoon)
	assert.True(t, next.Equal(time.Date(2025, 7, 23, 0, 0, 0, 0, timeutil.KST)))
	assert.True(t, next.Equal(time.Date(2025, 7, 22, 15, 0, 0, 0, time.UTC)))

	assert.True(t, cs.Next(next).Equal(next.Add(24*time.Hour)), "strictly after")
}

func TestCronSchedule_Steps(t *testing.T) {
	cs := MustCronSchedule(EveryTenMinutes, time.UTC)
	next := cs.Next(time.Date(2025, 7, 22, 10, 7, 30, 0, time.UTC))
	assert.Equal(t, time.Date(2025, 7, 22, 10, 10, 0, 0, time.UTC), next)

	cs = MustCronSchedule("0 9-17/4 * * 1", time.UTC)
	// 2025-07-22 is a Tuesday.
	next = cs.Next(time.Date(2025, 7, 22, 10, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2025, 7, 28, 9, 0, 0, 0, time.UTC), next)
}

func TestCronSchedule_Invalid(t *testing.T) {
	for _, expr := range []string{"", "* * *", "61 * * * *", "* 24 * * *", "*/0 * * * *", "5-1 * * * *"} {
		_, err := NewCronSchedule(expr, nil)
		assert.Error(t, err, expr)
	}
}

func TestEvery_FallsBackToOneMinute(t *testing.T) {
	assert.Equal(t, time.Minute, Every(0).Interval)
	base := time.Date(2025, 7, 22, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, base.Add(10*time.Second), Every(10*time.Second).Next(base))
}
