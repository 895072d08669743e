package progression

import (
	"time"
)

// UserProgress is the persisted experience record of one member
// (document exp_data/{userId}).
type UserProgress struct {
	Exp          int     `json:"exp"`
	Level        int     `json:"level"`
	VoiceMinutes int     `json:"voice_minutes"`
	LastActivity float64 `json:"last_activity,omitempty"` // unix seconds
}

// NewUserProgress returns the record of a member who has never been seen.
func NewUserProgress() *UserProgress {
	return &UserProgress{Level: MinLevel}
}

// LevelChange describes the effect of an experience update.
type LevelChange struct {
	Old int
	New int
}

// Changed reports whether the level moved in either direction.
func (c LevelChange) Changed() bool { return c.Old != c.New }

// Increased reports whether the member levelled up.
func (c LevelChange) Increased() bool { return c.New > c.Old }

// AddXP adds a signed amount, floors experience at zero and recomputes the
// level from the curve.
func (p *UserProgress) AddXP(curve *Curve, amount int) LevelChange {
	old := p.Level
	if old < MinLevel {
		old = MinLevel
	}

	p.Exp += amount
	if p.Exp < 0 {
		p.Exp = 0
	}
	p.Level = curve.LevelOf(p.Exp)

	return LevelChange{Old: old, New: p.Level}
}

// Touch records activity at now.
func (p *UserProgress) Touch(now time.Time) {
	p.LastActivity = float64(now.UnixNano()) / float64(time.Second)
}

// LastActivityTime returns the last recorded activity, if any.
func (p *UserProgress) LastActivityTime() (time.Time, bool) {
	if p.LastActivity <= 0 {
		return time.Time{}, false
	}
	sec := int64(p.LastActivity)
	nsec := int64((p.LastActivity - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec), true
}

// CooledDown reports whether at least cooldown has passed since the last
// recorded activity. A member with no activity is always cooled down.
func (p *UserProgress) CooledDown(now time.Time, cooldown time.Duration) bool {
	last, ok := p.LastActivityTime()
	if !ok {
		return true
	}
	return now.Sub(last) >= cooldown
}

// InactiveSince reports whether the member has recorded activity and it is
// older than threshold. Members without any record are not considered inactive.
func (p *UserProgress) InactiveSince(now time.Time, threshold time.Duration) bool {
	last, ok := p.LastActivityTime()
	if !ok {
		return false
	}
	return last.Before(now.Add(-threshold))
}
