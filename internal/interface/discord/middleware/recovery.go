package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/seasons-hub/seasons-bot/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECOVERY MIDDLEWARE
// Catches panics in gateway event handlers. discordgo runs handlers on their
// own goroutines, so an unrecovered panic there would take the process down.
// ══════════════════════════════════════════════════════════════════════════════

// RecoveryConfig holds configuration for the recovery middleware.
type RecoveryConfig struct {
	// EnableStackTrace captures the stack of the panicking goroutine.
	EnableStackTrace bool

	// MaxPanicsPerMinute limits how many panics are logged with full detail.
	MaxPanicsPerMinute int

	// OnPanic is called for every logged panic.
	OnPanic func(ctx context.Context, info *PanicInfo)

	Logger *slog.Logger
}

// DefaultRecoveryConfig returns the defaults used by the bot.
func DefaultRecoveryConfig() RecoveryConfig {
	return RecoveryConfig{
		EnableStackTrace:   true,
		MaxPanicsPerMinute: 100,
	}
}

// PanicInfo contains information about a recovered panic.
type PanicInfo struct {
	Error      error
	PanicValue any
	StackTrace string
	UserID     string
	Handler    string
	Timestamp  time.Time
}

// Recovery recovers panics raised by handlers.
type Recovery struct {
	config  RecoveryConfig
	logger  *slog.Logger
	limiter *panicRateLimiter
}

// NewRecovery creates a recovery middleware.
func NewRecovery(cfg RecoveryConfig) *Recovery {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxPanicsPerMinute <= 0 {
		cfg.MaxPanicsPerMinute = DefaultRecoveryConfig().MaxPanicsPerMinute
	}
	return &Recovery{
		config:  cfg,
		logger:  cfg.Logger.With(logger.Component("recovery")),
		limiter: newPanicRateLimiter(cfg.MaxPanicsPerMinute),
	}
}

// Run executes fn and converts a panic into a returned *PanicInfo. The error
// returned by fn is passed through untouched.
func (r *Recovery) Run(ctx context.Context, handler, userID string, fn func(ctx context.Context) error) (info *PanicInfo, err error) {
	defer func() {
		if v := recover(); v != nil {
			info = r.handlePanic(ctx, v, handler, userID)
			err = info.Error
		}
	}()
	return nil, fn(ctx)
}

func (r *Recovery) handlePanic(ctx context.Context, value any, handler, userID string) *PanicInfo {
	info := &PanicInfo{
		Error:      toError(value),
		PanicValue: value,
		UserID:     userID,
		Handler:    handler,
		Timestamp:  time.Now(),
	}
	if !r.limiter.allow() {
		return info
	}

	if r.config.EnableStackTrace {
		info.StackTrace = string(debug.Stack())
	}

	r.logger.Error("handler panic recovered",
		slog.String("handler", handler),
		logger.UserID(userID),
		logger.Err(info.Error),
		slog.String("stack", info.StackTrace))

	if r.config.OnPanic != nil {
		r.config.OnPanic(ctx, info)
	}
	return info
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPER FUNCTIONS
// ══════════════════════════════════════════════════════════════════════════════

func toError(value any) error {
	switch v := value.(type) {
	case error:
		return fmt.Errorf("panic: %w", v)
	default:
		return fmt.Errorf("panic: %v", v)
	}
}

// panicRateLimiter bounds detailed panic logging per minute.
type panicRateLimiter struct {
	mu        sync.Mutex
	count     int
	maxPerMin int
	window    time.Time
}

func newPanicRateLimiter(maxPerMin int) *panicRateLimiter {
	return &panicRateLimiter{
		maxPerMin: maxPerMin,
		window:    time.Now(),
	}
}

func (p *panicRateLimiter) allow() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	if now.Sub(p.window) > time.Minute {
		p.count = 0
		p.window = now
	}
	if p.count >= p.maxPerMin {
		return false
	}
	p.count++
	return true
}
