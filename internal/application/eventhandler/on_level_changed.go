// Package eventhandler contains the handlers that turn domain events into
// platform side effects: tier role and nickname sync, level-up announcements,
// log channel notices and quest congratulations.
//
// Every handler is best-effort. Platform failures are logged and swallowed so
// a missing permission never undoes progress already written to the store.
package eventhandler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/seasons-hub/seasons-bot/internal/domain/community"
	"github.com/seasons-hub/seasons-bot/internal/domain/progression"
	"github.com/seasons-hub/seasons-bot/internal/domain/shared"
	"github.com/seasons-hub/seasons-bot/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// DEBOUNCED SYNCER
// At most one role+nickname sync per member per window. Later level changes
// inside the window are still written to the store by their producers; only
// the platform mutation is skipped.
// ═══════════════════════════════════════════════════════════════════════════

// DefaultSyncWindow is the per-member debounce window.
const DefaultSyncWindow = 300 * time.Second

// Stopper cancels a scheduled expiry. *time.Timer satisfies it.
type Stopper interface {
	Stop() bool
}

// SyncTarget is the slice of the platform the syncer mutates.
type SyncTarget interface {
	community.MemberMutator
	OwnerID(ctx context.Context) (string, error)
}

// SyncerConfig configures a DebouncedSyncer.
type SyncerConfig struct {
	Window time.Duration
	Tiers  progression.TierTable
	Logger *slog.Logger

	// AfterFunc schedules f after d. Defaults to time.AfterFunc.
	AfterFunc func(d time.Duration, f func()) Stopper
}

// DebouncedSyncer owns the set of members synced within the window.
type DebouncedSyncer struct {
	platform SyncTarget
	config   SyncerConfig
	logger   *slog.Logger

	mu      sync.Mutex
	pending map[string]*debounceEntry
}

type debounceEntry struct {
	stop Stopper
}

// NewDebouncedSyncer creates a syncer over platform.
func NewDebouncedSyncer(platform SyncTarget, cfg SyncerConfig) *DebouncedSyncer {
	if cfg.Window <= 0 {
		cfg.Window = DefaultSyncWindow
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.AfterFunc == nil {
		cfg.AfterFunc = func(d time.Duration, f func()) Stopper { return time.AfterFunc(d, f) }
	}
	return &DebouncedSyncer{
		platform: platform,
		config:   cfg,
		logger:   cfg.Logger.With(logger.Component("syncer")),
		pending:  make(map[string]*debounceEntry),
	}
}

// MaybeSync aligns member's tier role and nickname with newLevel unless the
// member was synced within the window. It reports whether a sync ran.
func (s *DebouncedSyncer) MaybeSync(ctx context.Context, member community.Member, newLevel int) bool {
	if !s.claim(member.ID) {
		s.logger.Debug("sync debounced", logger.UserID(member.ID), logger.Level(newLevel))
		return false
	}

	for _, roleID := range member.RoleIDs {
		if !s.config.Tiers.IsTierRole(roleID) {
			continue
		}
		if err := s.platform.RemoveRole(ctx, member.ID, roleID); err != nil {
			s.logger.Warn("remove tier role failed", logger.UserID(member.ID), slog.String("role_id", roleID), logger.Err(err))
		}
	}

	if len(s.config.Tiers.RoleIDs) > 0 {
		roleID := s.config.Tiers.RoleFor(newLevel)
		if err := s.platform.AddRole(ctx, member.ID, roleID); err != nil {
			s.logger.Warn("add tier role failed", logger.UserID(member.ID), slog.String("role_id", roleID), logger.Err(err))
		}
	}

	ownerID, err := s.platform.OwnerID(ctx)
	switch {
	case err != nil:
		s.logger.Warn("owner lookup failed, nickname left unchanged", logger.UserID(member.ID), logger.Err(err))
	case ownerID == member.ID:
		// The platform refuses to rename the space owner.
	default:
		nick := progression.Nickname(member.DisplayName, newLevel)
		if err := s.platform.SetNickname(ctx, member.ID, nick); err != nil {
			s.logger.Warn("set nickname failed", logger.UserID(member.ID), logger.Err(err))
		}
	}

	s.logger.Info("member synced", logger.UserID(member.ID), logger.Level(newLevel))
	return true
}

// claim adds userID to the pending set with a fresh expiry. It returns false
// when the member is already pending.
func (s *DebouncedSyncer) claim(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pending[userID]; ok {
		return false
	}
	entry := &debounceEntry{}
	s.pending[userID] = entry
	entry.stop = s.config.AfterFunc(s.config.Window, func() { s.expire(userID, entry) })
	return true
}

func (s *DebouncedSyncer) expire(userID string, entry *debounceEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// A Forget followed by a new claim installs a different entry.
	if s.pending[userID] == entry {
		delete(s.pending, userID)
	}
}

// Forget cancels the member's window, e.g. after they left.
func (s *DebouncedSyncer) Forget(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.pending[userID]; ok {
		entry.stop.Stop()
		delete(s.pending, userID)
	}
}

// Pending reports whether userID is inside a debounce window.
func (s *DebouncedSyncer) Pending(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[userID]
	return ok
}

// Stop cancels every scheduled expiry.
func (s *DebouncedSyncer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, entry := range s.pending {
		entry.stop.Stop()
		delete(s.pending, id)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// ON LEVEL CHANGED HANDLER
// ═══════════════════════════════════════════════════════════════════════════

// Channels are the text channels handlers post to. Empty ids disable a post.
type Channels struct {
	LevelUp string
	Log     string
}

// OnLevelChangedHandler syncs the member and announces level increases.
type OnLevelChangedHandler struct {
	syncer    *DebouncedSyncer
	messenger community.Messenger
	channels  Channels
	logger    *slog.Logger
}

// NewOnLevelChangedHandler creates the handler.
func NewOnLevelChangedHandler(syncer *DebouncedSyncer, messenger community.Messenger, channels Channels, log *slog.Logger) *OnLevelChangedHandler {
	if log == nil {
		log = slog.Default()
	}
	return &OnLevelChangedHandler{
		syncer:    syncer,
		messenger: messenger,
		channels:  channels,
		logger:    log.With(slog.String("handler", "on_level_changed")),
	}
}

// Handle implements shared.EventHandler.
func (h *OnLevelChangedHandler) Handle(ctx context.Context, event shared.Event) error {
	e, ok := event.(progression.LevelChangedEvent)
	if !ok {
		h.logger.Warn("unexpected event", slog.String("event_type", string(event.EventType())))
		return nil
	}

	member := community.Member{ID: e.UserID, DisplayName: e.DisplayName, RoleIDs: e.RoleIDs}
	h.syncer.MaybeSync(ctx, member, e.Change.New)

	if !e.Change.Increased() || h.channels.LevelUp == "" {
		return nil
	}
	if err := h.messenger.SendMessage(ctx, h.channels.LevelUp, LevelUpText(e.DisplayName, e.Change.New)); err != nil {
		return fmt.Errorf("announce level up: %w", err)
	}
	return nil
}

// LevelUpText is the public level-up announcement.
func LevelUpText(name string, level int) string {
	return fmt.Sprintf("🎉 %s 님이 Lv.%d 에 도달했습니다! 🎊", name, level)
}
