package scheduler

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// CronSchedule is a standard 5-field cron expression evaluated in a fixed
// location: minute hour day-of-month month day-of-week.
// Examples:
//   - "*/10 * * * *" - every 10 minutes
//   - "0 0 * * *"    - every day at local midnight
//   - "0 0 * * 1"    - every Monday at local midnight
type CronSchedule struct {
	raw      string
	location *time.Location
	minutes  []int // 0-59
	hours    []int // 0-23
	days     []int // 1-31
	months   []int // 1-12
	weekdays []int // 0-6 (0 = Sunday)
}

// Common expressions.
const (
	EveryDayMidnight = "0 0 * * *"
	EveryTenMinutes  = "*/10 * * * *"
)

// NewCronSchedule parses expr for evaluation in loc (UTC when nil).
// Supports: *, */n, n, n-m, n-m/s, n,m,o
func NewCronSchedule(expr string, loc *time.Location) (*CronSchedule, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("invalid cron expression: expected 5 fields, got %d", len(fields))
	}
	if loc == nil {
		loc = time.UTC
	}

	cs := &CronSchedule{raw: expr, location: loc}
	var err error

	if cs.minutes, err = parseField(fields[0], 0, 59); err != nil {
		return nil, fmt.Errorf("invalid minute field: %w", err)
	}
	if cs.hours, err = parseField(fields[1], 0, 23); err != nil {
		return nil, fmt.Errorf("invalid hour field: %w", err)
	}
	if cs.days, err = parseField(fields[2], 1, 31); err != nil {
		return nil, fmt.Errorf("invalid day field: %w", err)
	}
	if cs.months, err = parseField(fields[3], 1, 12); err != nil {
		return nil, fmt.Errorf("invalid month field: %w", err)
	}
	if cs.weekdays, err = parseField(fields[4], 0, 6); err != nil {
		return nil, fmt.Errorf("invalid weekday field: %w", err)
	}
	return cs, nil
}

// MustCronSchedule parses a cron expression or panics.
// Use only for compile-time constants.
func MustCronSchedule(expr string, loc *time.Location) *CronSchedule {
	cs, err := NewCronSchedule(expr, loc)
	if err != nil {
		panic(fmt.Sprintf("invalid cron expression %q: %v", expr, err))
	}
	return cs
}

// parseField parses a single cron field.
func parseField(field string, lo, hi int) ([]int, error) {
	var result []int

	// Handle wildcard
	if field == "*" {
		for i := lo; i <= hi; i++ {
			result = append(result, i)
		}
		return result, nil
	}

	// Handle step values (*/n or n-m/s)
	if strings.Contains(field, "/") {
		parts := strings.Split(field, "/")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid step format: %s", field)
		}

		step, err := strconv.Atoi(parts[1])
		if err != nil || step <= 0 {
			return nil, fmt.Errorf("invalid step value: %s", parts[1])
		}

		var start, end int
		if parts[0] == "*" {
			start, end = lo, hi
		} else if strings.Contains(parts[0], "-") {
			rangeParts := strings.Split(parts[0], "-")
			if len(rangeParts) != 2 {
				return nil, fmt.Errorf("invalid step range: %s", parts[0])
			}
			var err1, err2 error
			start, err1 = strconv.Atoi(rangeParts[0])
			end, err2 = strconv.Atoi(rangeParts[1])
			if err1 != nil || err2 != nil {
				return nil, fmt.Errorf("invalid step range: %s", parts[0])
			}
		} else {
			v, err := strconv.Atoi(parts[0])
			if err != nil {
				return nil, fmt.Errorf("invalid step start: %s", parts[0])
			}
			start, end = v, hi
		}

		for i := start; i <= end; i += step {
			if i >= lo && i <= hi {
				result = append(result, i)
			}
		}
		if len(result) == 0 {
			return nil, fmt.Errorf("empty step range: %s", field)
		}
		return result, nil
	}

	// Handle ranges (n-m)
	if strings.Contains(field, "-") {
		parts := strings.Split(field, "-")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid range format: %s", field)
		}

		start, err := strconv.Atoi(parts[0])
		if err != nil {
			return nil, fmt.Errorf("invalid range start: %s", parts[0])
		}

		end, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, fmt.Errorf("invalid range end: %s", parts[1])
		}

		for i := start; i <= end; i++ {
			if i >= lo && i <= hi {
				result = append(result, i)
			}
		}
		if len(result) == 0 {
			return nil, fmt.Errorf("empty range: %s", field)
		}
		return result, nil
	}

	// Handle lists (n,m,o)
	if strings.Contains(field, ",") {
		parts := strings.Split(field, ",")
		for _, p := range parts {
			v, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil {
				return nil, fmt.Errorf("invalid list value: %s", p)
			}
			if v >= lo && v <= hi {
				result = append(result, v)
			}
		}
		sort.Ints(result)
		return result, nil
	}

	// Handle single value
	v, err := strconv.Atoi(field)
	if err != nil {
		return nil, fmt.Errorf("invalid value: %s", field)
	}
	if v < lo || v > hi {
		return nil, fmt.Errorf("value out of range [%d-%d]: %d", lo, hi, v)
	}
	return []int{v}, nil
}

// String returns the expression and its location.
func (cs *CronSchedule) String() string {
	return fmt.Sprintf("%s (%s)", cs.raw, cs.location)
}

// Next returns the first matching minute strictly after the given time.
func (cs *CronSchedule) Next(after time.Time) time.Time {
	t := after.In(cs.location).Truncate(time.Minute).Add(time.Minute)

	// One year of minutes bounds expressions that never match (e.g. Feb 30).
	const maxIterations = 366 * 24 * 60

	for i := 0; i < maxIterations; i++ {
		if cs.matches(t) {
			return t
		}
		t = t.Add(time.Minute)
	}
	return time.Time{}
}

func (cs *CronSchedule) matches(t time.Time) bool {
	return contains(cs.minutes, t.Minute()) &&
		contains(cs.hours, t.Hour()) &&
		contains(cs.days, t.Day()) &&
		contains(cs.months, int(t.Month())) &&
		contains(cs.weekdays, int(t.Weekday()))
}

func contains(slice []int, val int) bool {
	for _, v := range slice {
		if v == val {
			return true
		}
	}
	return false
}
