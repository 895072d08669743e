package eventhandler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/seasons-hub/seasons-bot/internal/domain/community"
	"github.com/seasons-hub/seasons-bot/internal/domain/quest"
	"github.com/seasons-hub/seasons-bot/internal/domain/shared"
	"github.com/seasons-hub/seasons-bot/pkg/logger"
)

// OnQuestCompletedHandler congratulates the winner of a hidden quest in the
// channel where the winning message was sent.
type OnQuestCompletedHandler struct {
	messenger community.Messenger
	logger    *slog.Logger
}

// NewOnQuestCompletedHandler creates the handler.
func NewOnQuestCompletedHandler(messenger community.Messenger, log *slog.Logger) *OnQuestCompletedHandler {
	if log == nil {
		log = slog.Default()
	}
	return &OnQuestCompletedHandler{
		messenger: messenger,
		logger:    log.With(slog.String("handler", "on_quest_completed")),
	}
}

// Handle implements shared.EventHandler.
func (h *OnQuestCompletedHandler) Handle(ctx context.Context, event shared.Event) error {
	e, ok := event.(quest.CompletedEvent)
	if !ok {
		h.logger.Warn("unexpected event", slog.String("event_type", string(event.EventType())))
		return nil
	}

	h.logger.Info("hidden quest completed", logger.QuestID(e.QuestID), logger.UserID(e.Winner))
	if e.ChannelID == "" {
		return nil
	}
	if err := h.messenger.SendMessage(ctx, e.ChannelID, QuestCongratsText(e.DisplayName, e.QuestID)); err != nil {
		return fmt.Errorf("quest congratulation: %w", err)
	}
	return nil
}

// QuestCongratsText is the public congratulation for a quest winner.
func QuestCongratsText(name, questID string) string {
	return fmt.Sprintf("🏆 %s 님이 히든 퀘스트 [%s] 를 가장 먼저 달성했습니다! 🎉", name, questID)
}
