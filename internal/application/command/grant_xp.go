package command

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/seasons-hub/seasons-bot/internal/domain/community"
	"github.com/seasons-hub/seasons-bot/internal/domain/progression"
	"github.com/seasons-hub/seasons-bot/internal/domain/shared"
	"github.com/seasons-hub/seasons-bot/pkg/logger"
	"github.com/seasons-hub/seasons-bot/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GRANT XP COMMAND
// Administrative experience adjustments.
// ══════════════════════════════════════════════════════════════════════════════

// GrantMode selects grant or deduct.
type GrantMode int

const (
	ModeGrant GrantMode = iota
	ModeDeduct
)

// GrantXPCommand adjusts a member's experience by Amount.
type GrantXPCommand struct {
	Member community.Member
	Amount int
	Mode   GrantMode
}

// Validate requires a positive amount.
func (c GrantXPCommand) Validate() error {
	if c.Member.ID == "" {
		return shared.NewDomainError("progression", "GrantXP", shared.ErrInvalidInput, "member is required")
	}
	if c.Amount <= 0 {
		return shared.NewDomainError("progression", "GrantXP", shared.ErrValueOutOfRange, "amount must be positive")
	}
	return nil
}

// GrantXPResult is the member's record after the adjustment.
type GrantXPResult struct {
	Exp    int
	Change progression.LevelChange
}

// GrantXPHandler handles GrantXPCommand.
type GrantXPHandler struct {
	users     progression.UserRepository
	curve     *progression.Curve
	publisher shared.EventPublisher
	now       Clock
	logger    *slog.Logger
}

// NewGrantXPHandler creates the handler.
func NewGrantXPHandler(users progression.UserRepository, curve *progression.Curve, publisher shared.EventPublisher, now Clock, log *slog.Logger) *GrantXPHandler {
	if now == nil {
		now = timeutil.Now
	}
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &GrantXPHandler{
		users:     users,
		curve:     curve,
		publisher: publisher,
		now:       now,
		logger:    log.With(slog.String("command", "grant_xp")),
	}
}

// Handle executes the adjustment. A grant syncs and announces only when the
// level rose; a deduction floors at zero and always resyncs the member.
func (h *GrantXPHandler) Handle(ctx context.Context, cmd GrantXPCommand) (*GrantXPResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	uid := cmd.Member.ID

	user, err := h.users.GetUser(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}

	delta := cmd.Amount
	if cmd.Mode == ModeDeduct {
		delta = -cmd.Amount
	}
	change := user.AddXP(h.curve, delta)

	if err := h.users.PutUser(ctx, uid, user); err != nil {
		return nil, fmt.Errorf("save progress: %w", err)
	}

	h.logger.Info("experience adjusted", logger.UserID(uid), logger.XP(delta), logger.Level(user.Level))

	if cmd.Mode == ModeDeduct || change.Increased() {
		event := progression.NewLevelChangedEvent(uid, cmd.Member.DisplayName, cmd.Member.RoleIDs, change, user.Exp, h.now())
		if err := h.publisher.Publish(ctx, event); err != nil {
			h.logger.Warn("publish failed", logger.UserID(uid), logger.Err(err))
		}
	}

	return &GrantXPResult{Exp: user.Exp, Change: change}, nil
}
