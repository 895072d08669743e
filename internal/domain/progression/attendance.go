package progression

import (
	"time"

	"github.com/seasons-hub/seasons-bot/internal/domain/shared"
	"github.com/seasons-hub/seasons-bot/pkg/timeutil"
)

// ErrAlreadyCheckedIn is returned by CheckIn when today's check-in exists.
var ErrAlreadyCheckedIn = shared.NewDomainError("progression", "CheckIn", shared.ErrAlreadyProcessed, "already checked in today")

// Attendance is a member's check-in history (document attendance_data/{userId}).
type Attendance struct {
	LastDate  string         `json:"last_date"`
	TotalDays int            `json:"total_days"`
	Streak    int            `json:"streak"`
	Weekly    map[string]int `json:"weekly"`
	Monthly   map[string]int `json:"monthly"`
}

// NewAttendance returns an empty record.
func NewAttendance() *Attendance {
	return &Attendance{
		Weekly:  make(map[string]int),
		Monthly: make(map[string]int),
	}
}

// CheckInResult describes an accepted check-in.
type CheckInResult struct {
	Streak       int
	TotalDays    int
	Gain         int
	First        bool
	StreakBroken bool
}

// CheckedInOn reports whether the last check-in happened on date.
func (a *Attendance) CheckedInOn(date string) bool {
	return a.LastDate == date
}

// CheckIn records a check-in at now (local calendar). The streak continues
// only when the previous check-in was yesterday; otherwise it restarts at 1.
func (a *Attendance) CheckIn(now time.Time) (CheckInResult, error) {
	today := timeutil.DateKey(now)
	if a.LastDate == today {
		return CheckInResult{}, ErrAlreadyCheckedIn
	}
	if a.Weekly == nil {
		a.Weekly = make(map[string]int)
	}
	if a.Monthly == nil {
		a.Monthly = make(map[string]int)
	}

	continued := a.LastDate != "" && a.LastDate == timeutil.YesterdayKey(now)
	if continued {
		a.Streak++
	} else {
		a.Streak = 1
	}

	a.LastDate = today
	a.TotalDays++
	a.Weekly[timeutil.WeekKey(now)]++
	a.Monthly[timeutil.MonthKey(now)]++

	return CheckInResult{
		Streak:       a.Streak,
		TotalDays:    a.TotalDays,
		Gain:         AttendanceXP(a.Streak),
		First:        a.TotalDays == 1,
		StreakBroken: !continued && a.TotalDays > 1,
	}, nil
}

// AttendanceXP is 100 plus 10 per consecutive day beyond the first, capped at +100.
func AttendanceXP(streak int) int {
	bonus := streak - 1
	if bonus < 0 {
		bonus = 0
	}
	if bonus > 10 {
		bonus = 10
	}
	return 100 + bonus*10
}
