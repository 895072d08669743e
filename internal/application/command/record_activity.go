package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/seasons-hub/seasons-bot/internal/domain/community"
	"github.com/seasons-hub/seasons-bot/internal/domain/progression"
	"github.com/seasons-hub/seasons-bot/internal/domain/shared"
	"github.com/seasons-hub/seasons-bot/pkg/logger"
	"github.com/seasons-hub/seasons-bot/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD ACTIVITY COMMAND
// Handles one chat message that already passed the safeguard gate: message
// XP, the daily text mission and the hidden quests.
// ══════════════════════════════════════════════════════════════════════════════

// RecordActivityCommand carries the inbound message.
type RecordActivityCommand struct {
	Message community.Message
}

// ErrIgnoredMessage is returned for messages that never earn anything.
var ErrIgnoredMessage = shared.NewDomainError("progression", "RecordActivity", shared.ErrInvalidInput, "message ignored")

// Validate rejects bot, webhook, direct and empty messages.
func (c RecordActivityCommand) Validate() error {
	m := c.Message
	switch {
	case m.Author.Bot, m.WebhookID != "", m.IsDirect():
		return ErrIgnoredMessage
	case strings.TrimSpace(m.Text) == "":
		return ErrIgnoredMessage
	case m.Author.ID == "":
		return ErrIgnoredMessage
	}
	return nil
}

// RecordActivityResult describes what the message earned.
type RecordActivityResult struct {
	// Gain is the message XP, zero while the member is cooling down.
	Gain int

	// Change is the level movement caused by this message, mission reward included.
	Change progression.LevelChange

	// MissionCompleted is true when this message completed the text mission.
	MissionCompleted bool

	// MissionCount is today's text mission count after this message.
	MissionCount int

	// Quests lists the hidden quest outcomes, keyed by quest id.
	Quests map[string]QuestOutcome
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// RecordActivityHandlerConfig contains configuration for the handler.
type RecordActivityHandlerConfig struct {
	// Cooldown is the minimum time between two XP-earning messages.
	Cooldown time.Duration

	// MinGain and MaxGain bound the uniform message XP.
	MinGain int
	MaxGain int

	// ThreadRoleChannelID grants ThreadRoleID to anyone who writes there.
	ThreadRoleChannelID string
	ThreadRoleID        string

	Now  Clock
	Rand RandInt
}

// DefaultRecordActivityHandlerConfig returns the production rules.
func DefaultRecordActivityHandlerConfig() RecordActivityHandlerConfig {
	return RecordActivityHandlerConfig{
		Cooldown: 5 * time.Second,
		MinGain:  1,
		MaxGain:  30,
	}
}

// RecordActivityHandler handles RecordActivityCommand.
type RecordActivityHandler struct {
	users     progression.UserRepository
	missions  progression.MissionRepository
	curve     *progression.Curve
	roles     community.MemberMutator
	quests    *HiddenQuestEngine
	publisher shared.EventPublisher
	config    RecordActivityHandlerConfig
	logger    *slog.Logger
}

// NewRecordActivityHandler creates the handler. quests may be nil when hidden
// quests are disabled.
func NewRecordActivityHandler(
	users progression.UserRepository,
	missions progression.MissionRepository,
	curve *progression.Curve,
	roles community.MemberMutator,
	quests *HiddenQuestEngine,
	publisher shared.EventPublisher,
	config RecordActivityHandlerConfig,
	log *slog.Logger,
) *RecordActivityHandler {
	if config.Now == nil {
		config.Now = timeutil.Now
	}
	if config.Rand == nil {
		config.Rand = defaultRandInt
	}
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &RecordActivityHandler{
		users:     users,
		missions:  missions,
		curve:     curve,
		roles:     roles,
		quests:    quests,
		publisher: publisher,
		config:    config,
		logger:    log.With(slog.String("command", "record_activity")),
	}
}

// Handle executes the command.
func (h *RecordActivityHandler) Handle(ctx context.Context, cmd RecordActivityCommand) (*RecordActivityResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	msg := cmd.Message
	uid := msg.Author.ID
	now := h.config.Now()
	today := timeutil.DateKey(now)

	h.grantThreadRole(ctx, msg)

	user, err := h.users.GetUser(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}
	mission, err := h.missions.GetMission(ctx, uid, today)
	if err != nil {
		return nil, fmt.Errorf("load mission: %w", err)
	}

	result := &RecordActivityResult{}
	oldLevel := max(user.Level, progression.MinLevel)

	if user.CooledDown(now, h.config.Cooldown) {
		result.Gain = h.config.Rand(h.config.MinGain, h.config.MaxGain)
		user.AddXP(h.curve, result.Gain)
		user.Touch(now)
	} else {
		// Refresh a level stored by an older curve without granting anything.
		user.AddXP(h.curve, 0)
	}

	mission = mission.ForDate(today)
	if mission.RecordText(progression.TextMissionRequired) {
		result.MissionCompleted = true
		user.AddXP(h.curve, progression.TextMissionReward)
		user.Touch(now)
	}
	result.MissionCount = mission.Text.Count
	result.Change = progression.LevelChange{Old: oldLevel, New: user.Level}

	if err := h.missions.PutMission(ctx, uid, mission); err != nil {
		return nil, fmt.Errorf("save mission: %w", err)
	}
	if err := h.users.PutUser(ctx, uid, user); err != nil {
		return nil, fmt.Errorf("save progress: %w", err)
	}

	if result.Change.Changed() {
		h.publish(ctx, progression.NewLevelChangedEvent(uid, msg.Author.DisplayName, msg.Author.RoleIDs, result.Change, user.Exp, now))
	}
	if result.MissionCompleted {
		h.publish(ctx, progression.NewMissionCompletedEvent(uid, msg.Author.DisplayName, progression.MissionText, progression.TextMissionReward, msg.ChannelID, now))
	}

	if h.quests != nil {
		outcomes, err := h.quests.Handle(ctx, AdvanceHiddenQuestCommand{Message: msg})
		if err != nil {
			h.logger.Warn("hidden quest update failed", logger.UserID(uid), logger.Err(err))
		}
		result.Quests = outcomes
	}

	return result, nil
}

func (h *RecordActivityHandler) grantThreadRole(ctx context.Context, msg community.Message) {
	if h.config.ThreadRoleChannelID == "" || h.config.ThreadRoleID == "" || h.roles == nil {
		return
	}
	if msg.ChannelID != h.config.ThreadRoleChannelID || msg.Author.HasRole(h.config.ThreadRoleID) {
		return
	}
	if err := h.roles.AddRole(ctx, msg.Author.ID, h.config.ThreadRoleID); err != nil {
		h.logger.Warn("thread role grant failed", logger.UserID(msg.Author.ID), logger.Err(err))
	}
}

func (h *RecordActivityHandler) publish(ctx context.Context, event shared.Event) {
	if err := h.publisher.Publish(ctx, event); err != nil {
		h.logger.Warn("publish failed", slog.String("event_type", string(event.EventType())), logger.Err(err))
	}
}

// IsIgnored reports whether err means the message was filtered out.
func IsIgnored(err error) bool {
	return errors.Is(err, ErrIgnoredMessage)
}
