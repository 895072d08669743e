package eventhandler

import (
	"context"

	"github.com/seasons-hub/seasons-bot/internal/domain/progression"
	"github.com/seasons-hub/seasons-bot/internal/domain/shared"
)

// OnMemberRemoved drops the member's debounce window.
func OnMemberRemoved(syncer *DebouncedSyncer) shared.EventHandler {
	return func(_ context.Context, event shared.Event) error {
		if e, ok := event.(progression.MemberRemovedEvent); ok {
			syncer.Forget(e.UserID)
		}
		return nil
	}
}

// Register subscribes every handler to bus.
func Register(bus shared.EventSubscriber, levels *OnLevelChangedHandler, missions *OnMissionCompletedHandler, quests *OnQuestCompletedHandler, syncer *DebouncedSyncer) error {
	subs := []struct {
		t shared.EventType
		h shared.EventHandler
	}{
		{shared.EventLevelChanged, levels.Handle},
		{shared.EventMissionCompleted, missions.Handle},
		{shared.EventQuestCompleted, quests.Handle},
		{shared.EventMemberRemoved, OnMemberRemoved(syncer)},
	}
	for _, s := range subs {
		if err := bus.Subscribe(s.t, s.h); err != nil {
			return err
		}
	}
	return nil
}
