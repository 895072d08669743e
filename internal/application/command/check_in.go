package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/seasons-hub/seasons-bot/internal/domain/community"
	"github.com/seasons-hub/seasons-bot/internal/domain/progression"
	"github.com/seasons-hub/seasons-bot/internal/domain/shared"
	"github.com/seasons-hub/seasons-bot/pkg/logger"
	"github.com/seasons-hub/seasons-bot/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// CHECK-IN COMMAND
// Daily attendance: one check-in per local day, streak bonus XP.
// ══════════════════════════════════════════════════════════════════════════════

// CheckInCommand identifies the member checking in.
type CheckInCommand struct {
	Member community.Member
}

// CheckInResult is the outcome of a check-in.
type CheckInResult struct {
	// AlreadyCheckedIn is set when today's check-in exists; Remaining is the
	// time until the next local midnight.
	AlreadyCheckedIn bool
	Remaining        time.Duration

	progression.CheckInResult
	Change progression.LevelChange
}

// CheckInHandler handles CheckInCommand.
type CheckInHandler struct {
	users      progression.UserRepository
	attendance progression.AttendanceRepository
	curve      *progression.Curve
	publisher  shared.EventPublisher
	now        Clock
	logger     *slog.Logger
}

// NewCheckInHandler creates the handler.
func NewCheckInHandler(
	users progression.UserRepository,
	attendance progression.AttendanceRepository,
	curve *progression.Curve,
	publisher shared.EventPublisher,
	now Clock,
	log *slog.Logger,
) *CheckInHandler {
	if now == nil {
		now = timeutil.Now
	}
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &CheckInHandler{
		users:      users,
		attendance: attendance,
		curve:      curve,
		publisher:  publisher,
		now:        now,
		logger:     log.With(slog.String("command", "check_in")),
	}
}

// Handle executes the check-in.
func (h *CheckInHandler) Handle(ctx context.Context, cmd CheckInCommand) (*CheckInResult, error) {
	uid := cmd.Member.ID
	now := h.now()

	record, err := h.attendance.GetAttendance(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("load attendance: %w", err)
	}

	checkIn, err := record.CheckIn(now)
	if errors.Is(err, progression.ErrAlreadyCheckedIn) {
		return &CheckInResult{AlreadyCheckedIn: true, Remaining: timeutil.UntilNextDay(now)}, nil
	}
	if err != nil {
		return nil, err
	}

	user, err := h.users.GetUser(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}
	change := user.AddXP(h.curve, checkIn.Gain)
	user.Touch(now)

	if err := h.users.PutUser(ctx, uid, user); err != nil {
		return nil, fmt.Errorf("save progress: %w", err)
	}
	if err := h.attendance.PutAttendance(ctx, uid, record); err != nil {
		return nil, fmt.Errorf("save attendance: %w", err)
	}

	h.logger.Info("checked in",
		logger.UserID(uid),
		slog.Int("streak", checkIn.Streak),
		logger.XP(checkIn.Gain))

	// The member is synced after every check-in, level moved or not.
	event := progression.NewLevelChangedEvent(uid, cmd.Member.DisplayName, cmd.Member.RoleIDs, change, user.Exp, now)
	if err := h.publisher.Publish(ctx, event); err != nil {
		h.logger.Warn("publish failed", logger.UserID(uid), logger.Err(err))
	}

	return &CheckInResult{CheckInResult: checkIn, Change: change}, nil
}
