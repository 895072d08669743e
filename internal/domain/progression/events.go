package progression

import (
	"time"

	"github.com/seasons-hub/seasons-bot/internal/domain/shared"
)

// LevelChangedEvent asks for the member's tier role and nickname to follow
// their level. It is published after the record was written; Change may be
// flat when a caller forces a resync.
type LevelChangedEvent struct {
	shared.BaseEvent
	UserID      string
	DisplayName string
	RoleIDs     []string
	Change      LevelChange
	Exp         int
}

// NewLevelChangedEvent builds the event for userID at now.
func NewLevelChangedEvent(userID, displayName string, roleIDs []string, change LevelChange, exp int, now time.Time) LevelChangedEvent {
	return LevelChangedEvent{
		BaseEvent:   shared.NewBaseEvent(shared.EventLevelChanged, userID, now),
		UserID:      userID,
		DisplayName: displayName,
		RoleIDs:     roleIDs,
		Change:      change,
		Exp:         exp,
	}
}

// MissionKind names a daily mission.
type MissionKind string

const (
	MissionText        MissionKind = "text"
	MissionRepeatVoice MissionKind = "repeat_voice"
)

// MissionCompletedEvent is published when a daily mission paid its reward.
type MissionCompletedEvent struct {
	shared.BaseEvent
	UserID      string
	DisplayName string
	Kind        MissionKind
	Reward      int

	// ChannelID is where the completing message was sent; empty for voice.
	ChannelID string
}

// NewMissionCompletedEvent builds the event for userID at now.
func NewMissionCompletedEvent(userID, displayName string, kind MissionKind, reward int, channelID string, now time.Time) MissionCompletedEvent {
	return MissionCompletedEvent{
		BaseEvent:   shared.NewBaseEvent(shared.EventMissionCompleted, userID, now),
		UserID:      userID,
		DisplayName: displayName,
		Kind:        kind,
		Reward:      reward,
		ChannelID:   channelID,
	}
}

// MemberRemovedEvent is published when a member left or was removed.
type MemberRemovedEvent struct {
	shared.BaseEvent
	UserID string
}

// NewMemberRemovedEvent builds the event for userID at now.
func NewMemberRemovedEvent(userID string, now time.Time) MemberRemovedEvent {
	return MemberRemovedEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventMemberRemoved, userID, now),
		UserID:    userID,
	}
}
