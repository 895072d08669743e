package query

import (
	"context"
	"errors"
	"time"

	"github.com/seasons-hub/seasons-bot/internal/domain/progression"
	"github.com/seasons-hub/seasons-bot/internal/domain/shared"
	"github.com/seasons-hub/seasons-bot/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET PROGRESS QUERY
// A member's level, position inside the level and last activity. Serves the
// profile command and the admin analyze command.
// ══════════════════════════════════════════════════════════════════════════════

// GetProgressQuery identifies the member.
type GetProgressQuery struct {
	UserID string
}

// Validate requires a user id.
func (q GetProgressQuery) Validate() error {
	if q.UserID == "" {
		return errors.New("user_id is required")
	}
	return nil
}

// ProgressDTO is a member's progress.
type ProgressDTO struct {
	UserID string `json:"user_id"`
	Exp    int    `json:"exp"`
	Level  int    `json:"level"`

	// LevelStart and LevelNext bound the current level; Current and Needed are
	// the member's position inside it.
	LevelStart int     `json:"level_start"`
	LevelNext  int     `json:"level_next"`
	Current    int     `json:"current"`
	Needed     int     `json:"needed"`
	Percent    float64 `json:"percent"`

	VoiceMinutes int `json:"voice_minutes"`

	// LastActivity is nil when nothing was ever recorded.
	LastActivity *time.Time `json:"last_activity,omitempty"`
	DaysInactive int        `json:"days_inactive"`

	// HasRecord is false for members the bot has never seen.
	HasRecord bool `json:"has_record"`
}

// GetProgressHandler handles GetProgressQuery.
type GetProgressHandler struct {
	users progression.UserRepository
	curve *progression.Curve
	now   Clock
}

// NewGetProgressHandler creates the handler.
func NewGetProgressHandler(users progression.UserRepository, curve *progression.Curve, now Clock) *GetProgressHandler {
	if now == nil {
		now = timeutil.Now
	}
	return &GetProgressHandler{users: users, curve: curve, now: now}
}

// Handle executes the query. The level is recomputed from the curve rather
// than trusted from the record.
func (h *GetProgressHandler) Handle(ctx context.Context, q GetProgressQuery) (*ProgressDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, shared.WrapError("query", "GetProgress", shared.ErrValidation, err.Error(), err)
	}

	user, err := h.users.GetUser(ctx, q.UserID)
	if err != nil {
		return nil, err
	}

	level := h.curve.LevelOf(user.Exp)
	start, next := h.curve.Range(level)
	current := max(0, user.Exp-start)
	needed := max(1, next-start)

	dto := &ProgressDTO{
		UserID:       q.UserID,
		Exp:          user.Exp,
		Level:        level,
		LevelStart:   start,
		LevelNext:    next,
		Current:      current,
		Needed:       needed,
		Percent:      min(1, float64(current)/float64(needed)),
		VoiceMinutes: user.VoiceMinutes,
		HasRecord:    user.Exp > 0 || user.LastActivity > 0,
	}
	if last, ok := user.LastActivityTime(); ok {
		t := timeutil.ToKST(last)
		dto.LastActivity = &t
		dto.DaysInactive = timeutil.DaysSince(last, h.now())
	}
	return dto, nil
}
