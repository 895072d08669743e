package query

import (
	"context"
	"sort"
	"time"

	"github.com/seasons-hub/seasons-bot/internal/domain/community"
	"github.com/seasons-hub/seasons-bot/internal/domain/progression"
	"github.com/seasons-hub/seasons-bot/internal/domain/quest"
	"github.com/seasons-hub/seasons-bot/internal/domain/shared"
	"github.com/seasons-hub/seasons-bot/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET QUEST STATUS QUERY
// Today's missions and attendance for one member.
// ══════════════════════════════════════════════════════════════════════════════

// GetQuestStatusQuery identifies the member.
type GetQuestStatusQuery struct {
	UserID string
}

// QuestStatusDTO is the member's progress on today's missions.
type QuestStatusDTO struct {
	TextCount     int  `json:"text_count"`
	TextRequired  int  `json:"text_required"`
	TextCompleted bool `json:"text_completed"`

	VoiceMinutes int `json:"voice_minutes"`
	VoiceRewards int `json:"voice_rewards"`

	CheckedInToday bool `json:"checked_in_today"`
}

// GetQuestStatusHandler handles GetQuestStatusQuery.
type GetQuestStatusHandler struct {
	missions   progression.MissionRepository
	attendance progression.AttendanceRepository
	now        Clock
}

// NewGetQuestStatusHandler creates the handler.
func NewGetQuestStatusHandler(missions progression.MissionRepository, attendance progression.AttendanceRepository, now Clock) *GetQuestStatusHandler {
	if now == nil {
		now = timeutil.Now
	}
	return &GetQuestStatusHandler{missions: missions, attendance: attendance, now: now}
}

// Handle executes the query.
func (h *GetQuestStatusHandler) Handle(ctx context.Context, q GetQuestStatusQuery) (*QuestStatusDTO, error) {
	if q.UserID == "" {
		return nil, shared.NewDomainError("query", "GetQuestStatus", shared.ErrValidation, "user_id is required")
	}
	today := timeutil.DateKey(h.now())

	mission, err := h.missions.GetMission(ctx, q.UserID, today)
	if err != nil {
		return nil, err
	}
	mission = mission.ForDate(today)

	attendance, err := h.attendance.GetAttendance(ctx, q.UserID)
	if err != nil {
		return nil, err
	}

	return &QuestStatusDTO{
		TextCount:      mission.Text.Count,
		TextRequired:   progression.TextMissionRequired,
		TextCompleted:  mission.Text.Completed,
		VoiceMinutes:   mission.RepeatVoice.Minutes,
		VoiceRewards:   mission.VoiceRewards(progression.RepeatVoiceMinutes),
		CheckedInToday: attendance.CheckedInOn(today),
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// INSPECT HIDDEN QUEST QUERY
// ══════════════════════════════════════════════════════════════════════════════

// InspectHiddenQuestQuery names the quest.
type InspectHiddenQuestQuery struct {
	QuestID string
}

// QuestCountDTO is one member's counter.
type QuestCountDTO struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Count       int    `json:"count"`
}

// HiddenQuestDTO is the shared state of a quest.
type HiddenQuestDTO struct {
	QuestID string `json:"quest_id"`
	Keyword string `json:"keyword"`
	Target  int    `json:"target"`

	// Started is false while nobody has triggered the quest.
	Started     bool            `json:"started"`
	LastDate    string          `json:"last_date,omitempty"`
	Completed   bool            `json:"completed"`
	Winner      string          `json:"winner,omitempty"`
	WinnerName  string          `json:"winner_name,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Counts      []QuestCountDTO `json:"counts"`
}

// InspectHiddenQuestHandler handles InspectHiddenQuestQuery.
type InspectHiddenQuestHandler struct {
	defs []quest.Definition
	repo quest.Repository
	dir  community.Directory
}

// NewInspectHiddenQuestHandler creates the handler.
func NewInspectHiddenQuestHandler(defs []quest.Definition, repo quest.Repository, dir community.Directory) *InspectHiddenQuestHandler {
	return &InspectHiddenQuestHandler{defs: defs, repo: repo, dir: dir}
}

// Handle executes the query.
func (h *InspectHiddenQuestHandler) Handle(ctx context.Context, q InspectHiddenQuestQuery) (*HiddenQuestDTO, error) {
	var def *quest.Definition
	for i := range h.defs {
		if h.defs[i].ID == q.QuestID {
			def = &h.defs[i]
			break
		}
	}
	if def == nil {
		return nil, shared.ErrQuestNotFound
	}

	record, found, err := h.repo.GetQuest(ctx, q.QuestID)
	if err != nil {
		return nil, err
	}

	dto := &HiddenQuestDTO{QuestID: def.ID, Keyword: def.Keyword, Target: def.Target, Counts: []QuestCountDTO{}}
	if !found || !record.Started() {
		return dto, nil
	}

	names := newNameResolver(h.dir)
	dto.Started = true
	dto.LastDate = record.LastDate
	dto.Completed = record.Completed
	dto.Winner = record.Winner
	if record.Winner != "" {
		dto.WinnerName = names.name(ctx, record.Winner)
	}
	if t, err := time.Parse(time.RFC3339, record.CompletedAt); err == nil {
		t = timeutil.ToKST(t)
		dto.CompletedAt = &t
	}

	for uid, n := range record.Counts {
		dto.Counts = append(dto.Counts, QuestCountDTO{UserID: uid, DisplayName: names.name(ctx, uid), Count: n})
	}
	sort.Slice(dto.Counts, func(i, j int) bool {
		if dto.Counts[i].Count != dto.Counts[j].Count {
			return dto.Counts[i].Count > dto.Counts[j].Count
		}
		return dto.Counts[i].UserID < dto.Counts[j].UserID
	})
	return dto, nil
}
