package query

import (
	"context"
	"log/slog"

	"github.com/seasons-hub/seasons-bot/internal/domain/community"
	"github.com/seasons-hub/seasons-bot/internal/domain/progression"
	"github.com/seasons-hub/seasons-bot/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET XP LEADERBOARD QUERY
// Top members by experience and the caller's own position. A ranking index
// answers when available; otherwise every record is scanned.
// ══════════════════════════════════════════════════════════════════════════════

// GetXPLeaderboardQuery contains the query parameters.
type GetXPLeaderboardQuery struct {
	// Limit is the number of entries (default 10, max 50).
	Limit int

	// UserID, when set, requests the caller's own rank.
	UserID string
}

// XPEntryDTO is one ranked member.
type XPEntryDTO struct {
	Rank        int    `json:"rank"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Exp         int    `json:"exp"`
	Level       int    `json:"level"`
}

// XPLeaderboardDTO is the query result.
type XPLeaderboardDTO struct {
	Entries []XPEntryDTO `json:"entries"`

	// Own is nil when the caller has no record.
	Own *XPEntryDTO `json:"own,omitempty"`

	// FromIndex reports whether the ranking index served the query.
	FromIndex bool `json:"from_index"`
}

// GetXPLeaderboardHandler handles GetXPLeaderboardQuery.
type GetXPLeaderboardHandler struct {
	users  progression.UserRepository
	index  progression.XPRanking
	dir    community.Directory
	curve  *progression.Curve
	logger *slog.Logger
}

// NewGetXPLeaderboardHandler creates the handler. index may be nil.
func NewGetXPLeaderboardHandler(users progression.UserRepository, index progression.XPRanking, dir community.Directory, curve *progression.Curve, log *slog.Logger) *GetXPLeaderboardHandler {
	if log == nil {
		log = slog.Default()
	}
	return &GetXPLeaderboardHandler{
		users:  users,
		index:  index,
		dir:    dir,
		curve:  curve,
		logger: log.With(slog.String("query", "xp_leaderboard")),
	}
}

// Handle executes the query.
func (h *GetXPLeaderboardHandler) Handle(ctx context.Context, q GetXPLeaderboardQuery) (*XPLeaderboardDTO, error) {
	limit := normalizeLimit(q.Limit)
	names := newNameResolver(h.dir)

	top, own, fromIndex := h.fromIndex(ctx, limit, q.UserID)
	if !fromIndex {
		users, err := h.users.GetAllUsers(ctx)
		if err != nil {
			return nil, err
		}
		ranked := progression.RankByXP(users)
		top = ranked[:min(limit, len(ranked))]
		own = nil
		for i := range ranked {
			if ranked[i].UserID == q.UserID {
				own = &ranked[i]
				break
			}
		}
	}

	result := &XPLeaderboardDTO{Entries: make([]XPEntryDTO, 0, len(top)), FromIndex: fromIndex}
	for _, r := range top {
		result.Entries = append(result.Entries, h.entry(ctx, names, r))
	}
	if own != nil && q.UserID != "" {
		e := h.entry(ctx, names, *own)
		result.Own = &e
	}
	return result, nil
}

// fromIndex reports false when the index is missing, failing or empty.
func (h *GetXPLeaderboardHandler) fromIndex(ctx context.Context, limit int, userID string) ([]progression.RankedUser, *progression.RankedUser, bool) {
	if h.index == nil {
		return nil, nil, false
	}
	top, err := h.index.TopXP(ctx, limit)
	if err != nil {
		h.logger.Warn("ranking index unavailable, scanning store", logger.Err(err))
		return nil, nil, false
	}
	if len(top) == 0 {
		return nil, nil, false
	}
	if userID == "" {
		return top, nil, true
	}
	own, ok, err := h.index.RankXP(ctx, userID)
	if err != nil {
		h.logger.Warn("ranking index unavailable, scanning store", logger.Err(err))
		return nil, nil, false
	}
	if !ok {
		return top, nil, true
	}
	return top, &own, true
}

func (h *GetXPLeaderboardHandler) entry(ctx context.Context, names *nameResolver, r progression.RankedUser) XPEntryDTO {
	return XPEntryDTO{
		Rank:        r.Rank,
		UserID:      r.UserID,
		DisplayName: names.name(ctx, r.UserID),
		Exp:         r.Exp,
		Level:       h.curve.LevelOf(r.Exp),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// GET ATTENDANCE LEADERBOARD QUERY
// ══════════════════════════════════════════════════════════════════════════════

// GetAttendanceLeaderboardQuery contains the query parameters.
type GetAttendanceLeaderboardQuery struct {
	Limit  int
	UserID string
}

// AttendanceEntryDTO is one ranked member.
type AttendanceEntryDTO struct {
	Rank        int    `json:"rank"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	TotalDays   int    `json:"total_days"`
	Streak      int    `json:"streak"`
}

// AttendanceLeaderboardDTO is the query result.
type AttendanceLeaderboardDTO struct {
	Entries []AttendanceEntryDTO `json:"entries"`
	Own     *AttendanceEntryDTO  `json:"own,omitempty"`
}

// GetAttendanceLeaderboardHandler handles GetAttendanceLeaderboardQuery.
type GetAttendanceLeaderboardHandler struct {
	attendance progression.AttendanceRepository
	dir        community.Directory
}

// NewGetAttendanceLeaderboardHandler creates the handler.
func NewGetAttendanceLeaderboardHandler(attendance progression.AttendanceRepository, dir community.Directory) *GetAttendanceLeaderboardHandler {
	return &GetAttendanceLeaderboardHandler{attendance: attendance, dir: dir}
}

// Handle executes the query.
func (h *GetAttendanceLeaderboardHandler) Handle(ctx context.Context, q GetAttendanceLeaderboardQuery) (*AttendanceLeaderboardDTO, error) {
	records, err := h.attendance.GetAllAttendance(ctx)
	if err != nil {
		return nil, err
	}
	ranked := progression.RankByAttendance(records)
	names := newNameResolver(h.dir)

	limit := normalizeLimit(q.Limit)
	result := &AttendanceLeaderboardDTO{Entries: make([]AttendanceEntryDTO, 0, min(limit, len(ranked)))}
	for i, r := range ranked {
		if i < limit {
			result.Entries = append(result.Entries, attendanceEntry(ctx, names, r))
		}
		if q.UserID != "" && r.UserID == q.UserID {
			e := attendanceEntry(ctx, names, r)
			result.Own = &e
		}
	}
	return result, nil
}

func attendanceEntry(ctx context.Context, names *nameResolver, r progression.RankedAttendance) AttendanceEntryDTO {
	return AttendanceEntryDTO{
		Rank:        r.Rank,
		UserID:      r.UserID,
		DisplayName: names.name(ctx, r.UserID),
		TotalDays:   r.TotalDays,
		Streak:      r.Streak,
	}
}
