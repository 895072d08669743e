package command

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/seasons-hub/seasons-bot/internal/domain/community"
	"github.com/seasons-hub/seasons-bot/internal/domain/progression"
	"github.com/seasons-hub/seasons-bot/internal/domain/shared"
	"github.com/seasons-hub/seasons-bot/pkg/logger"
	"github.com/seasons-hub/seasons-bot/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// SUGGEST COMMAND
// Suggestion box. Anonymous suggestions hide the author from the channel but
// the space owner receives the author's identity by DM.
// ══════════════════════════════════════════════════════════════════════════════

// MaxSuggestionLength is the limit on suggestion text, in characters.
const MaxSuggestionLength = 1000

// SuggestCommand is one suggestion.
type SuggestCommand struct {
	Author    community.Member
	Anonymous bool
	Content   string
}

// ErrSuggestionTooLong is returned for suggestions over the limit.
var ErrSuggestionTooLong = shared.NewDomainError("suggest", "Validate", shared.ErrValueOutOfRange, "suggestion is too long")

// Validate checks the content length.
func (c SuggestCommand) Validate() error {
	if strings.TrimSpace(c.Content) == "" {
		return shared.NewDomainError("suggest", "Validate", shared.ErrInvalidInput, "suggestion is empty")
	}
	if utf8.RuneCountInString(c.Content) > MaxSuggestionLength {
		return ErrSuggestionTooLong
	}
	return nil
}

// SuggestChannels are the destinations of the suggestion box.
type SuggestChannels struct {
	Anonymous string
	Named     string
}

// SuggestHandler handles SuggestCommand.
type SuggestHandler struct {
	platform interface {
		community.Messenger
		OwnerID(ctx context.Context) (string, error)
	}
	users    progression.UserRepository
	channels SuggestChannels
	now      Clock
	logger   *slog.Logger
}

// NewSuggestHandler creates the handler.
func NewSuggestHandler(platform community.Platform, users progression.UserRepository, channels SuggestChannels, now Clock, log *slog.Logger) *SuggestHandler {
	if now == nil {
		now = timeutil.Now
	}
	if log == nil {
		log = slog.Default()
	}
	return &SuggestHandler{
		platform: platform,
		users:    users,
		channels: channels,
		now:      now,
		logger:   log.With(slog.String("command", "suggest")),
	}
}

// Handle posts the suggestion.
func (h *SuggestHandler) Handle(ctx context.Context, cmd SuggestCommand) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	now := h.now()
	stamp := timeutil.ToKST(now).Format(timeutil.FormatDateTime)

	if !cmd.Anonymous {
		text := fmt.Sprintf("📢 실명 건의 (%s)\n서버원 %s 님이 아래와 같이 건의하셨습니다:\n\n%s", stamp, cmd.Author.DisplayName, cmd.Content)
		return h.post(ctx, h.channels.Named, text)
	}

	text := fmt.Sprintf("📢 익명 건의 (%s)\n알 수 없는 서버원 님이 아래와 같이 건의하셨습니다:\n\n%s", stamp, cmd.Content)
	if err := h.post(ctx, h.channels.Anonymous, text); err != nil {
		return err
	}
	h.notifyOwner(ctx, cmd, stamp)
	return nil
}

func (h *SuggestHandler) post(ctx context.Context, channelID, text string) error {
	if channelID == "" {
		return shared.NewDomainError("suggest", "Post", shared.ErrConfiguration, "suggestion channel not configured")
	}
	if err := h.platform.SendMessage(ctx, channelID, text); err != nil {
		return fmt.Errorf("post suggestion: %w", err)
	}
	return nil
}

// notifyOwner is silent on failure.
func (h *SuggestHandler) notifyOwner(ctx context.Context, cmd SuggestCommand, stamp string) {
	ownerID, err := h.platform.OwnerID(ctx)
	if err != nil || ownerID == "" {
		h.logger.Debug("owner lookup failed", logger.Err(err))
		return
	}

	lastSeen := "기록 없음"
	if user, err := h.users.GetUser(ctx, cmd.Author.ID); err == nil {
		if last, ok := user.LastActivityTime(); ok {
			lastSeen = fmt.Sprintf("%d일 전 (%s)",
				timeutil.DaysSince(last, h.now()),
				timeutil.ToKST(last).Format("2006.01.02 15:04"))
		}
	}

	joined := "-"
	if !cmd.Author.JoinedAt.IsZero() {
		joined = timeutil.ToKST(cmd.Author.JoinedAt).Format(timeutil.FormatDateTime)
	}

	dm := fmt.Sprintf("📢 익명 건의 (내부 기록) [%s]\n서버 닉네임: %s\n계정 닉네임: %s\n서버 입장일: %s\n최근 활동: %s\n건의 내용: %s",
		stamp, cmd.Author.DisplayName, cmd.Author.Username, joined, lastSeen, cmd.Content)
	if err := h.platform.SendDirect(ctx, ownerID, dm); err != nil {
		h.logger.Debug("owner notification failed", logger.Err(err))
	}
}
