// Package gateway keeps the long-lived platform session alive. The supervisor
// loops Connecting → Connected → Backoff → Connecting until its context is
// cancelled; connection failures are never fatal.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/seasons-hub/seasons-bot/internal/domain/shared"
	"github.com/seasons-hub/seasons-bot/pkg/logger"
)

// Session is a connectable platform session.
type Session interface {
	// Connect establishes the session. Only this step is bounded by a timeout.
	Connect(ctx context.Context) error

	// Wait blocks until the connected session ends. nil means a clean end.
	Wait(ctx context.Context) error
}

// State is the supervisor's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateBackoff
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateBackoff:
		return "backoff"
	default:
		return "idle"
	}
}

// Backoff policy.
const (
	DefaultConnectTimeout = 30 * time.Second

	RateLimitBase    = 1800 * time.Second
	RateLimitStep    = 1800 * time.Second
	RateLimitMaxWait = 7200 * time.Second
	MaxPenalty       = 3

	HTTPBase       = 1800 * time.Second
	UnexpectedBase = 900 * time.Second
	CleanEndWait   = 10 * time.Second
)

// Config configures a Supervisor.
type Config struct {
	ConnectTimeout time.Duration
	Logger         *slog.Logger

	// Classify categorizes a failure. Errors that are not *shared.ConnectionError
	// are treated as unexpected when nil.
	Classify func(error) *shared.ConnectionError

	// Rand returns a uniform float in [0,1). Defaults to math/rand/v2.
	Rand func() float64

	// Sleep waits for d or until ctx is done.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Supervisor runs a Session forever with categorized, jittered backoff.
type Supervisor struct {
	session Session
	config  Config
	logger  *slog.Logger

	mu      sync.Mutex
	state   State
	penalty int
}

// NewSupervisor creates a supervisor for session.
func NewSupervisor(session Session, cfg Config) *Supervisor {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Classify == nil {
		cfg.Classify = defaultClassify
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.Float64
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleep
	}
	return &Supervisor{
		session: session,
		config:  cfg,
		logger:  cfg.Logger.With(logger.Component("gateway")),
	}
}

func defaultClassify(err error) *shared.ConnectionError {
	if err == nil {
		return &shared.ConnectionError{Category: shared.CategoryClosed}
	}
	var ce *shared.ConnectionError
	if errors.As(err, &ce) {
		return ce
	}
	return &shared.ConnectionError{Category: shared.CategoryUnexpected, Err: err}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connected reports whether the session is up.
func (s *Supervisor) Connected() bool {
	return s.State() == StateConnected
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Run loops until ctx is cancelled and then returns ctx.Err().
func (s *Supervisor) Run(ctx context.Context) error {
	defer s.setState(StateIdle)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := s.runOnce(ctx)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		ce := s.classify(err)
		wait := s.NextWait(ce.Category)

		s.setState(StateBackoff)
		s.logger.Warn("gateway session ended",
			slog.String("category", ce.Category.String()),
			slog.Duration("backoff", wait),
			logger.Err(ce.Err))

		if err := s.config.Sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func (s *Supervisor) runOnce(ctx context.Context) error {
	s.setState(StateConnecting)

	connectCtx, cancel := context.WithTimeout(ctx, s.config.ConnectTimeout)
	err := s.session.Connect(connectCtx)
	cancel()
	if err != nil {
		return err
	}

	s.setState(StateConnected)
	s.mu.Lock()
	s.penalty = 0
	s.mu.Unlock()
	s.logger.Info("gateway session established")

	return s.session.Wait(ctx)
}

func (s *Supervisor) classify(err error) *shared.ConnectionError {
	if errors.Is(err, context.DeadlineExceeded) {
		return &shared.ConnectionError{Category: shared.CategoryUnexpected, Err: err}
	}
	return s.config.Classify(err)
}

// NextWait returns the backoff for a failure of category and updates the
// rate-limit penalty.
func (s *Supervisor) NextWait(category shared.ConnectionCategory) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch category {
	case shared.CategoryRateLimited:
		s.penalty = min(s.penalty+1, MaxPenalty)
		base := min(RateLimitBase+time.Duration(s.penalty)*RateLimitStep, RateLimitMaxWait)
		return jitter(base, 0.95, 1.1, s.config.Rand())
	case shared.CategoryHTTP:
		return jitter(HTTPBase, 0.5, 1.0, s.config.Rand())
	case shared.CategoryClosed:
		return CleanEndWait
	default:
		return jitter(UnexpectedBase, 0.8, 1.2, s.config.Rand())
	}
}

// Penalty returns the consecutive rate-limit counter.
func (s *Supervisor) Penalty() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.penalty
}

// jitter scales base by a multiplier uniform in [lo, hi), rounded to seconds.
func jitter(base time.Duration, lo, hi, u float64) time.Duration {
	scaled := time.Duration(float64(base) * (lo + (hi-lo)*u))
	return scaled.Round(time.Second)
}
