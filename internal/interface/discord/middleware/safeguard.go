// Package middleware contains the inbound message filters of the Discord bot.
package middleware

import (
	"log/slog"
	"sync"
	"time"

	cache "github.com/go-pkgz/expirable-cache/v3"

	"github.com/seasons-hub/seasons-bot/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SAFEGUARD GATE
// Minimum-interval filter applied to every inbound message before any store
// access. Three gates run in order: global, channel, user. Each gate stamps its
// own timestamp only when the message passes it, and the first rejection
// short-circuits the rest.
// ══════════════════════════════════════════════════════════════════════════════

// Reason names the gate that rejected a message.
type Reason string

const (
	ReasonNone    Reason = ""
	ReasonGlobal  Reason = "global_cooldown"
	ReasonChannel Reason = "channel_cooldown"
	ReasonUser    Reason = "user_cooldown"
)

// SafeguardConfig holds the gate intervals.
type SafeguardConfig struct {
	// GlobalInterval is the minimum time between any two accepted messages.
	GlobalInterval time.Duration

	// ChannelInterval is the minimum time between accepted messages in one channel.
	ChannelInterval time.Duration

	// UserInterval is the minimum time between accepted messages of one user.
	UserInterval time.Duration

	// MaxKeys bounds the per-channel and per-user maps.
	MaxKeys int

	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time

	Logger *slog.Logger
}

// DefaultSafeguardConfig returns the production intervals.
func DefaultSafeguardConfig() SafeguardConfig {
	return SafeguardConfig{
		GlobalInterval:  1 * time.Second,
		ChannelInterval: 2 * time.Second,
		UserInterval:    2 * time.Second,
		MaxKeys:         10000,
	}
}

// SafeguardGate is safe for concurrent use.
type SafeguardGate struct {
	config SafeguardConfig
	logger *slog.Logger

	mu         sync.Mutex
	lastGlobal time.Time
	channels   cache.Cache[string, time.Time]
	users      cache.Cache[string, time.Time]
}

// NewSafeguardGate creates a gate. Zero intervals disable the matching gate.
func NewSafeguardGate(cfg SafeguardConfig) *SafeguardGate {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxKeys <= 0 {
		cfg.MaxKeys = DefaultSafeguardConfig().MaxKeys
	}

	return &SafeguardGate{
		config:   cfg,
		logger:   cfg.Logger.With(logger.Component("safeguard")),
		channels: newStampCache(cfg.MaxKeys, cfg.ChannelInterval),
		users:    newStampCache(cfg.MaxKeys, cfg.UserInterval),
	}
}

// Entries only need to outlive their interval; the floor keeps churn low.
func newStampCache(maxKeys int, interval time.Duration) cache.Cache[string, time.Time] {
	ttl := max(interval, time.Minute)
	return cache.NewCache[string, time.Time]().WithMaxKeys(maxKeys).WithTTL(ttl).WithLRU()
}

// Allow reports whether a message from userID in channelID may be processed.
// On rejection the reason names the first gate that refused it.
func (g *SafeguardGate) Allow(channelID, userID string) (bool, Reason) {
	now := g.config.Clock()

	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.lastGlobal.IsZero() && now.Sub(g.lastGlobal) < g.config.GlobalInterval {
		return false, ReasonGlobal
	}
	g.lastGlobal = now

	if last, ok := g.channels.Get(channelID); ok && now.Sub(last) < g.config.ChannelInterval {
		return false, ReasonChannel
	}
	g.channels.Set(channelID, now, 0)

	if last, ok := g.users.Get(userID); ok && now.Sub(last) < g.config.UserInterval {
		return false, ReasonUser
	}
	g.users.Set(userID, now, 0)

	return true, ReasonNone
}

// Check is Allow with a debug log line for rejections.
func (g *SafeguardGate) Check(channelID, userID string) bool {
	ok, reason := g.Allow(channelID, userID)
	if !ok {
		g.logger.Debug("message dropped",
			slog.String("reason", string(reason)),
			logger.ChannelID(channelID),
			logger.UserID(userID))
	}
	return ok
}

// Reset forgets every timestamp.
func (g *SafeguardGate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastGlobal = time.Time{}
	g.channels.Purge()
	g.users.Purge()
}
