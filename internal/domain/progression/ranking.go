package progression

import (
	"cmp"
	"context"
	"slices"
)

// RankedUser is one position of the experience ranking.
type RankedUser struct {
	UserID string
	Exp    int
	// Rank is 1-based.
	Rank int
}

// XPRanking is an optional index over experience totals. The store stays
// authoritative; an index that fails or is empty is bypassed.
type XPRanking interface {
	TopXP(ctx context.Context, count int) ([]RankedUser, error)
	// RankXP reports false when the member is not ranked.
	RankXP(ctx context.Context, userID string) (RankedUser, bool, error)
}

// RankByXP orders users by experience, highest first. Ties are broken by
// user id so the order is stable.
func RankByXP(users map[string]*UserProgress) []RankedUser {
	out := make([]RankedUser, 0, len(users))
	for id, u := range users {
		out = append(out, RankedUser{UserID: id, Exp: u.Exp})
	}
	slices.SortFunc(out, func(a, b RankedUser) int {
		if c := cmp.Compare(b.Exp, a.Exp); c != 0 {
			return c
		}
		return cmp.Compare(a.UserID, b.UserID)
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

// RankedAttendance is one position of the attendance ranking.
type RankedAttendance struct {
	UserID    string
	TotalDays int
	Streak    int
	Rank      int
}

// RankByAttendance orders by total days, then current streak, both descending.
func RankByAttendance(records map[string]*Attendance) []RankedAttendance {
	out := make([]RankedAttendance, 0, len(records))
	for id, a := range records {
		out = append(out, RankedAttendance{UserID: id, TotalDays: a.TotalDays, Streak: a.Streak})
	}
	slices.SortFunc(out, func(a, b RankedAttendance) int {
		if c := cmp.Compare(b.TotalDays, a.TotalDays); c != 0 {
			return c
		}
		if c := cmp.Compare(b.Streak, a.Streak); c != 0 {
			return c
		}
		return cmp.Compare(a.UserID, b.UserID)
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}
