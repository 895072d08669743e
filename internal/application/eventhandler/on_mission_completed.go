package eventhandler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/seasons-hub/seasons-bot/internal/domain/community"
	"github.com/seasons-hub/seasons-bot/internal/domain/progression"
	"github.com/seasons-hub/seasons-bot/internal/domain/shared"
)

// OnMissionCompletedHandler posts the log channel notice for a completed
// daily mission and, for the text mission, a reply in the channel where the
// completing message was sent.
type OnMissionCompletedHandler struct {
	messenger community.Messenger
	channels  Channels
	logger    *slog.Logger
}

// NewOnMissionCompletedHandler creates the handler.
func NewOnMissionCompletedHandler(messenger community.Messenger, channels Channels, log *slog.Logger) *OnMissionCompletedHandler {
	if log == nil {
		log = slog.Default()
	}
	return &OnMissionCompletedHandler{
		messenger: messenger,
		channels:  channels,
		logger:    log.With(slog.String("handler", "on_mission_completed")),
	}
}

// Handle implements shared.EventHandler.
func (h *OnMissionCompletedHandler) Handle(ctx context.Context, event shared.Event) error {
	e, ok := event.(progression.MissionCompletedEvent)
	if !ok {
		h.logger.Warn("unexpected event", slog.String("event_type", string(event.EventType())))
		return nil
	}

	var errs []error
	if h.channels.Log != "" {
		if err := h.messenger.SendMessage(ctx, h.channels.Log, MissionLogText(e.Kind, e.DisplayName, e.Reward)); err != nil {
			errs = append(errs, fmt.Errorf("mission log notice: %w", err))
		}
	}
	if e.Kind == progression.MissionText && e.ChannelID != "" {
		if err := h.messenger.SendMessage(ctx, e.ChannelID, MissionReplyText(e.UserID, e.Reward)); err != nil {
			errs = append(errs, fmt.Errorf("mission reply: %w", err))
		}
	}
	return errors.Join(errs...)
}

// MissionLogText is the log channel line for a completed mission.
func MissionLogText(kind progression.MissionKind, name string, reward int) string {
	if kind == progression.MissionRepeatVoice {
		return fmt.Sprintf("[🧾 로그] %s 님이 반복 VC 미션 완료! +%dXP", name, reward)
	}
	return fmt.Sprintf("[🧾 로그] %s 님 텍스트 미션 완료! +%dXP", name, reward)
}

// MissionReplyText is the in-channel reply for the text mission.
func MissionReplyText(userID string, reward int) string {
	return fmt.Sprintf("🎯 <@%s> 일일 미션 완료! +%dXP 지급되었습니다.", userID, reward)
}
