// Package timeutil provides calendar helpers for the community's local timezone
// (Korea Standard Time, UTC+9). Daily missions, attendance and hidden quests all
// roll over at local midnight, so every date key in the store is produced here.
package timeutil

import (
	"fmt"
	"time"
)

// KST is Korea Standard Time (UTC+9, no DST).
var KST = time.FixedZone("Asia/Seoul", 9*60*60)

// Common date/time formats.
const (
	// FormatDate is the date key format stored in records (YYYY-MM-DD).
	FormatDate = "2006-01-02"
	// FormatDateTime is used in admin replies.
	FormatDateTime = "2006-01-02 15:04"
	// FormatDottedDateTime is the analyze reply format ("2025. 07. 22 13:05").
	FormatDottedDateTime = "2006. 01. 02 15:04"
)

// Now returns the current time in KST.
func Now() time.Time {
	return time.Now().In(KST)
}

// ToKST converts a time to KST.
func ToKST(t time.Time) time.Time {
	return t.In(KST)
}

// FromEpoch converts fractional unix seconds (as stored in progress records)
// into a KST time.
func FromEpoch(epoch float64) time.Time {
	sec := int64(epoch)
	nsec := int64((epoch - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec).In(KST)
}

// Epoch converts a time into fractional unix seconds.
func Epoch(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// StartOfDay returns local midnight of the day containing t.
func StartOfDay(t time.Time) time.Time {
	k := ToKST(t)
	return time.Date(k.Year(), k.Month(), k.Day(), 0, 0, 0, 0, KST)
}

// DateKey formats t as a local calendar date (YYYY-MM-DD).
func DateKey(t time.Time) string {
	return ToKST(t).Format(FormatDate)
}

// YesterdayKey returns the date key of the local day before t.
func YesterdayKey(t time.Time) string {
	return DateKey(StartOfDay(t).AddDate(0, 0, -1))
}

// WeekKey returns the ISO week key, e.g. "2025-W29".
func WeekKey(t time.Time) string {
	year, week := ToKST(t).ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

// MonthKey returns the month key without zero padding, e.g. "2025-7".
func MonthKey(t time.Time) string {
	k := ToKST(t)
	return fmt.Sprintf("%d-%d", k.Year(), int(k.Month()))
}

// UntilNextDay returns the time remaining until the next local midnight.
func UntilNextDay(t time.Time) time.Duration {
	return StartOfDay(t).AddDate(0, 0, 1).Sub(ToKST(t))
}

// DaysSince returns the whole number of 24h periods elapsed between then and now.
func DaysSince(then, now time.Time) int {
	d := now.Sub(then)
	if d < 0 {
		return 0
	}
	return int(d / (24 * time.Hour))
}
