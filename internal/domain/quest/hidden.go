// Package quest models hidden quests: keyword-triggered challenges whose state
// is one record shared by every member. The first member to reach the target
// within their own 24h window wins, exactly once.
package quest

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/seasons-hub/seasons-bot/internal/domain/shared"
	"github.com/seasons-hub/seasons-bot/pkg/timeutil"
)

// Window is the per-member sliding window for counting keyword messages.
const Window = 24 * time.Hour

// Definition configures one hidden quest.
type Definition struct {
	ID      string
	Keyword string
	Target  int
}

// Matches reports whether text triggers the quest (case-insensitive substring).
func (d Definition) Matches(text string) bool {
	return d.Keyword != "" && strings.Contains(strings.ToLower(text), strings.ToLower(d.Keyword))
}

// ParseDefinitions parses "id:keyword:target" entries.
func ParseDefinitions(entries []string) ([]Definition, error) {
	defs := make([]Definition, 0, len(entries))
	seen := make(map[string]bool, len(entries))

	for _, raw := range entries {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		parts := strings.Split(raw, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("hidden quest %q: want id:keyword:target", raw)
		}
		target, err := strconv.Atoi(parts[2])
		if err != nil || target <= 0 {
			return nil, fmt.Errorf("hidden quest %q: target must be a positive integer", raw)
		}
		id := strings.TrimSpace(parts[0])
		if id == "" || strings.TrimSpace(parts[1]) == "" {
			return nil, fmt.Errorf("hidden quest %q: empty id or keyword", raw)
		}
		if seen[id] {
			return nil, fmt.Errorf("hidden quest %q: duplicate id", id)
		}
		seen[id] = true

		defs = append(defs, Definition{ID: id, Keyword: strings.TrimSpace(parts[1]), Target: target})
	}
	return defs, nil
}

// Record is the shared state of one quest (document hidden_quest_data/{questId}).
type Record struct {
	LastDate    string            `json:"last_date"`
	Counts      map[string]int    `json:"counts"`
	Timestamps  map[string]string `json:"timestamps"`
	Completed   bool              `json:"completed"`
	Winner      string            `json:"winner,omitempty"`
	CompletedAt string            `json:"completed_at,omitempty"`
}

// NewRecord returns an empty record.
func NewRecord() *Record {
	return &Record{
		Counts:     make(map[string]int),
		Timestamps: make(map[string]string),
	}
}

// Started reports whether anyone advanced the quest since it was created or
// last reset.
func (r *Record) Started() bool {
	return r.LastDate != ""
}

// Reset empties the record so the quest can be won again.
func (r *Record) Reset() {
	*r = *NewRecord()
}

// Outcome describes what Advance did to the record.
type Outcome int

const (
	// OutcomeNoop means the quest was already completed.
	OutcomeNoop Outcome = iota
	// OutcomeCounted means the member's count moved but the target was not reached.
	OutcomeCounted
	// OutcomeCompleted means this call completed the quest.
	OutcomeCompleted
)

// Advance applies one qualifying message from userID at now.
//
// Order matters: the record-level daily reset runs first, then the terminal
// completed check, then the member's own 24h window.
func (r *Record) Advance(def Definition, userID string, now time.Time) Outcome {
	if r.Counts == nil {
		r.Counts = make(map[string]int)
	}
	if r.Timestamps == nil {
		r.Timestamps = make(map[string]string)
	}

	today := timeutil.DateKey(now)
	if r.LastDate != today {
		r.Counts = make(map[string]int)
		r.Timestamps = make(map[string]string)
		r.LastDate = today
	}

	if r.Completed {
		return OutcomeNoop
	}

	if windowExpired(r.Timestamps[userID], now) {
		r.Counts[userID] = 1
		r.Timestamps[userID] = now.Format(time.RFC3339)
	} else {
		r.Counts[userID]++
	}

	if r.Counts[userID] >= def.Target {
		r.Completed = true
		r.Winner = userID
		r.CompletedAt = now.Format(time.RFC3339)
		return OutcomeCompleted
	}
	return OutcomeCounted
}

func windowExpired(stamp string, now time.Time) bool {
	if stamp == "" {
		return true
	}
	started, err := time.Parse(time.RFC3339, stamp)
	if err != nil {
		return true
	}
	return now.Sub(started) > Window
}

// ErrInvalidDefinition is returned for unknown quest ids.
var ErrInvalidDefinition = shared.NewDomainError("quest", "Lookup", shared.ErrNotFound, "unknown hidden quest")

// CompletedEvent is published after the transaction that completed a quest
// committed.
type CompletedEvent struct {
	shared.BaseEvent
	QuestID     string
	Winner      string
	DisplayName string
	ChannelID   string
}

// NewCompletedEvent builds the event for questID at now.
func NewCompletedEvent(questID, winner, displayName, channelID string, now time.Time) CompletedEvent {
	return CompletedEvent{
		BaseEvent:   shared.NewBaseEvent(shared.EventQuestCompleted, questID, now),
		QuestID:     questID,
		Winner:      winner,
		DisplayName: displayName,
		ChannelID:   channelID,
	}
}
