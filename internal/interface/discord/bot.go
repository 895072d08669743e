// Package discord is the bot's gateway surface: it turns Discord events and
// slash command interactions into commands and queries, and renders their
// results through the presenter.
package discord

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/seasons-hub/seasons-bot/internal/application/command"
	"github.com/seasons-hub/seasons-bot/internal/application/query"
	"github.com/seasons-hub/seasons-bot/internal/domain/community"
	"github.com/seasons-hub/seasons-bot/internal/domain/progression"
	"github.com/seasons-hub/seasons-bot/internal/domain/shared"
	"github.com/seasons-hub/seasons-bot/internal/infrastructure/scheduler"
	"github.com/seasons-hub/seasons-bot/internal/infrastructure/scheduler/jobs"
	"github.com/seasons-hub/seasons-bot/internal/interface/discord/middleware"
	"github.com/seasons-hub/seasons-bot/internal/interface/discord/presenter"
	"github.com/seasons-hub/seasons-bot/pkg/logger"
	"github.com/seasons-hub/seasons-bot/pkg/telemetry"
	"github.com/seasons-hub/seasons-bot/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// BOT CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// BotConfig contains configuration for the Discord bot.
type BotConfig struct {
	// ThreadRoleID is the role whose grant triggers the welcome message.
	ThreadRoleID string

	// WelcomeChannelID receives the welcome message.
	WelcomeChannelID string

	// HandlerTimeout bounds the processing of one event.
	HandlerTimeout time.Duration

	Logger *slog.Logger
}

// DefaultBotConfig returns sensible defaults.
func DefaultBotConfig() BotConfig {
	return BotConfig{HandlerTimeout: 30 * time.Second}
}

// JobRunner runs a registered job on demand.
type JobRunner interface {
	RunNow(ctx context.Context, jobName string) (*scheduler.JobResult, error)
}

// BotDependencies contains all dependencies for the bot handlers.
type BotDependencies struct {
	Platform  community.Platform
	Users     progression.UserRepository
	Curve     *progression.Curve
	Publisher shared.EventPublisher
	Jobs      JobRunner

	Gate     *middleware.SafeguardGate
	Recovery *middleware.Recovery

	// Commands
	RecordActivity *command.RecordActivityHandler
	CheckIn        *command.CheckInHandler
	GrantXP        *command.GrantXPHandler
	Suggest        *command.SuggestHandler
	Quests         *command.HiddenQuestEngine

	// Queries
	Progress              *query.GetProgressHandler
	XPLeaderboard         *query.GetXPLeaderboardHandler
	AttendanceLeaderboard *query.GetAttendanceLeaderboardHandler
	QuestStatus           *query.GetQuestStatusHandler
	InspectQuest          *query.InspectHiddenQuestHandler
}

// ══════════════════════════════════════════════════════════════════════════════
// BOT
// ══════════════════════════════════════════════════════════════════════════════

// Bot dispatches gateway events. Its Handle* methods take platform-neutral
// values; session.go adapts discordgo events to them.
type Bot struct {
	config    BotConfig
	deps      BotDependencies
	presenter *presenter.Presenter
	router    *Router
	tracer    trace.Tracer
	logger    *slog.Logger

	wg    sync.WaitGroup
	stats *BotStats
}

// BotStats holds runtime statistics.
type BotStats struct {
	mu               sync.RWMutex
	StartedAt        time.Time
	MessagesReceived int64
	MessagesHandled  int64
	MessagesDropped  int64
	ErrorsCount      int64
	CommandsCount    map[string]int64
}

// NewBot creates the bot.
func NewBot(config BotConfig, deps BotDependencies) (*Bot, error) {
	if deps.Platform == nil || deps.RecordActivity == nil {
		return nil, shared.NewDomainError("discord", "NewBot", shared.ErrConfiguration, "platform and record activity handler are required")
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.HandlerTimeout <= 0 {
		config.HandlerTimeout = DefaultBotConfig().HandlerTimeout
	}
	if deps.Publisher == nil {
		deps.Publisher = shared.NopPublisher{}
	}
	if deps.Gate == nil {
		deps.Gate = middleware.NewSafeguardGate(middleware.DefaultSafeguardConfig())
	}
	if deps.Recovery == nil {
		rc := middleware.DefaultRecoveryConfig()
		rc.Logger = config.Logger
		deps.Recovery = middleware.NewRecovery(rc)
	}

	b := &Bot{
		config:    config,
		deps:      deps,
		presenter: presenter.New(),
		tracer:    telemetry.Tracer(),
		logger:    config.Logger.With(logger.Component("bot")),
		stats: &BotStats{
			StartedAt:     time.Now(),
			CommandsCount: make(map[string]int64),
		},
	}
	b.router = newRouter(b)
	return b, nil
}

// Router returns the slash command router.
func (b *Bot) Router() *Router {
	return b.router
}

// Wait blocks until background work started by handlers has finished.
func (b *Bot) Wait() {
	b.wg.Wait()
}

func (b *Bot) handlerContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(logger.WithContext(ctx, b.logger), b.config.HandlerTimeout)
}

// ─────────────────────────────────────────────────────────────────────────────
// Messages
// ─────────────────────────────────────────────────────────────────────────────

// HandleMessage runs one inbound chat message through the gate and the
// activity pipeline. Errors are logged, never returned to the gateway.
func (b *Bot) HandleMessage(ctx context.Context, msg community.Message) {
	b.stats.incr(&b.stats.MessagesReceived)

	cmd := command.RecordActivityCommand{Message: msg}
	if cmd.Validate() != nil {
		return
	}
	if !b.deps.Gate.Check(msg.ChannelID, msg.Author.ID) {
		b.stats.incr(&b.stats.MessagesDropped)
		return
	}

	ctx, cancel := b.handlerContext(ctx)
	defer cancel()
	ctx, span := b.tracer.Start(ctx, "discord.message", trace.WithAttributes(
		attribute.String("discord.channel_id", msg.ChannelID),
		attribute.String("discord.user_id", msg.Author.ID),
	))
	defer span.End()

	_, err := b.deps.Recovery.Run(ctx, "message_create", msg.Author.ID, func(ctx context.Context) error {
		_, err := b.deps.RecordActivity.Handle(ctx, cmd)
		return err
	})
	if err != nil && !errors.Is(err, command.ErrIgnoredMessage) {
		b.stats.incr(&b.stats.ErrorsCount)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		b.logger.Warn("message handling failed", logger.UserID(msg.Author.ID), logger.ChannelID(msg.ChannelID), logger.Err(err))
		return
	}
	b.stats.incr(&b.stats.MessagesHandled)
}

// ─────────────────────────────────────────────────────────────────────────────
// Members
// ─────────────────────────────────────────────────────────────────────────────

// HandleMemberUpdate reacts to role changes: season channel counts are
// refreshed, and a member who just received the thread role is welcomed and
// resynced with their stored level.
func (b *Bot) HandleMemberUpdate(ctx context.Context, beforeRoles []string, after community.Member) {
	if after.Bot || sameRoles(beforeRoles, after.RoleIDs) {
		return
	}
	ctx, cancel := b.handlerContext(ctx)
	defer cancel()

	_, err := b.deps.Recovery.Run(ctx, "member_update", after.ID, func(ctx context.Context) error {
		b.refreshSeasonChannels()

		if b.config.ThreadRoleID == "" || slices.Contains(beforeRoles, b.config.ThreadRoleID) || !after.HasRole(b.config.ThreadRoleID) {
			return nil
		}
		return b.welcome(ctx, after)
	})
	if err != nil {
		b.stats.incr(&b.stats.ErrorsCount)
		b.logger.Warn("member update failed", logger.UserID(after.ID), logger.Err(err))
	}
}

func (b *Bot) welcome(ctx context.Context, member community.Member) error {
	if b.config.WelcomeChannelID != "" {
		if err := b.deps.Platform.SendMessage(ctx, b.config.WelcomeChannelID, presenter.WelcomeText(member.ID)); err != nil {
			b.logger.Warn("welcome message failed", logger.UserID(member.ID), logger.Err(err))
		}
	}

	if b.deps.Users == nil || b.deps.Curve == nil {
		return nil
	}
	user, err := b.deps.Users.GetUser(ctx, member.ID)
	if err != nil {
		return err
	}
	level := b.deps.Curve.LevelOf(user.Exp)
	change := progression.LevelChange{Old: level, New: level}
	return b.deps.Publisher.Publish(ctx, progression.NewLevelChangedEvent(member.ID, member.DisplayName, member.RoleIDs, change, user.Exp, timeutil.Now()))
}

// refreshSeasonChannels runs the season job in the background. A pass that
// is already running absorbs the request.
func (b *Bot) refreshSeasonChannels() {
	if b.deps.Jobs == nil {
		return
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), b.config.HandlerTimeout)
		defer cancel()
		_, err := b.deps.Jobs.RunNow(ctx, jobs.NameSeasonChannels)
		if err != nil && !errors.Is(err, scheduler.ErrJobAlreadyRunning) && !errors.Is(err, scheduler.ErrJobNotFound) {
			b.logger.Warn("season channel refresh failed", logger.Err(err))
		}
	}()
}

// HandleMemberRemove publishes the removal of a member who left.
func (b *Bot) HandleMemberRemove(ctx context.Context, userID string) {
	b.refreshSeasonChannels()
	if err := b.deps.Publisher.Publish(ctx, progression.NewMemberRemovedEvent(userID, timeutil.Now())); err != nil {
		b.logger.Warn("publish failed", logger.UserID(userID), logger.Err(err))
	}
}

func sameRoles(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for _, r := range a {
		if !slices.Contains(b, r) {
			return false
		}
	}
	return true
}

// ─────────────────────────────────────────────────────────────────────────────
// Statistics
// ─────────────────────────────────────────────────────────────────────────────

func (s *BotStats) incr(field *int64) {
	s.mu.Lock()
	*field++
	s.mu.Unlock()
}

func (s *BotStats) command(name string) {
	s.mu.Lock()
	s.CommandsCount[name]++
	s.mu.Unlock()
}

// BotStatsSnapshot is a copy of the counters.
type BotStatsSnapshot struct {
	StartedAt        time.Time        `json:"started_at"`
	MessagesReceived int64            `json:"messages_received"`
	MessagesHandled  int64            `json:"messages_handled"`
	MessagesDropped  int64            `json:"messages_dropped"`
	ErrorsCount      int64            `json:"errors"`
	CommandsCount    map[string]int64 `json:"commands"`
}

// Stats returns a snapshot of the bot counters.
func (b *Bot) Stats() BotStatsSnapshot {
	s := b.stats
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := BotStatsSnapshot{
		StartedAt:        s.StartedAt,
		MessagesReceived: s.MessagesReceived,
		MessagesHandled:  s.MessagesHandled,
		MessagesDropped:  s.MessagesDropped,
		ErrorsCount:      s.ErrorsCount,
		CommandsCount:    make(map[string]int64, len(s.CommandsCount)),
	}
	for k, v := range s.CommandsCount {
		snap.CommandsCount[k] = v
	}
	return snap
}
