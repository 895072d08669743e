package progression

import (
	"fmt"
	"math"
	"sort"

	"github.com/seasons-hub/seasons-bot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEVEL CURVE
// Piecewise-geometric experience requirements. Each level L needs Δ[L] more
// experience than the previous one; T[L] is the cumulative threshold to enter
// level L+1. T[0] = 0 and T is strictly increasing.
// ══════════════════════════════════════════════════════════════════════════════

const (
	// MinLevel is the level of a brand-new user.
	MinLevel = 1
	// MaxLevel is the level cap.
	MaxLevel = 99
)

// Stage is a contiguous level range with its own growth ratio.
type Stage struct {
	StartLevel int
	EndLevel   int

	// StartDelta is the requirement of StartLevel. Zero means it is derived
	// from the previous stage's last delta multiplied by Jump.
	StartDelta int

	// Ratio multiplies the delta from one level to the next within the stage.
	Ratio float64

	// Jump multiplies the previous stage's last delta to seed this stage.
	Jump float64
}

// DefaultStages is the production curve: a light tutorial up to level 5 and
// gradually steeper stages toward 99.
func DefaultStages() []Stage {
	return []Stage{
		{StartLevel: 1, EndLevel: 5, StartDelta: 200, Ratio: 1.040, Jump: 1.00},
		{StartLevel: 6, EndLevel: 10, Ratio: 1.045, Jump: 1.10},
		{StartLevel: 11, EndLevel: 15, Ratio: 1.050, Jump: 1.11},
		{StartLevel: 16, EndLevel: 20, Ratio: 1.056, Jump: 1.12},
		{StartLevel: 21, EndLevel: 25, Ratio: 1.063, Jump: 1.12},
		{StartLevel: 26, EndLevel: 30, Ratio: 1.071, Jump: 1.13},
		{StartLevel: 31, EndLevel: 35, Ratio: 1.080, Jump: 1.14},
		{StartLevel: 36, EndLevel: 40, Ratio: 1.090, Jump: 1.15},
		{StartLevel: 41, EndLevel: 45, Ratio: 1.101, Jump: 1.16},
		{StartLevel: 46, EndLevel: 50, Ratio: 1.113, Jump: 1.17},
		{StartLevel: 51, EndLevel: 55, Ratio: 1.126, Jump: 1.18},
		{StartLevel: 56, EndLevel: 60, Ratio: 1.140, Jump: 1.19},
		{StartLevel: 61, EndLevel: 65, Ratio: 1.155, Jump: 1.20},
		{StartLevel: 66, EndLevel: 70, Ratio: 1.171, Jump: 1.21},
		{StartLevel: 71, EndLevel: 75, Ratio: 1.196, Jump: 1.22},
		{StartLevel: 76, EndLevel: 80, Ratio: 1.213, Jump: 1.23},
		{StartLevel: 81, EndLevel: 90, Ratio: 1.241, Jump: 1.24},
		{StartLevel: 91, EndLevel: 99, Ratio: 1.270, Jump: 1.25},
	}
}

// Curve maps experience to levels. It is immutable and safe for concurrent use.
type Curve struct {
	thresholds [MaxLevel + 1]int
}

// NewCurve validates stages and builds the threshold table.
// An invalid stage list is a configuration error.
func NewCurve(stages []Stage) (*Curve, error) {
	if err := ValidateStages(stages); err != nil {
		return nil, err
	}

	deltas := BuildDeltas(stages)

	c := &Curve{}
	for i, d := range deltas {
		c.thresholds[i+1] = c.thresholds[i] + d
	}
	return c, nil
}

// MustDefaultCurve builds the production curve. It panics only if the
// built-in stages are broken.
func MustDefaultCurve() *Curve {
	c, err := NewCurve(DefaultStages())
	if err != nil {
		panic(err)
	}
	return c
}

// ValidateStages checks that stages cover contiguous, increasing level ranges
// starting at level 1 and that every parameter is usable.
func ValidateStages(stages []Stage) error {
	if len(stages) == 0 {
		return stageError("stage list is empty")
	}
	if stages[0].StartDelta <= 0 {
		return stageError("first stage needs an explicit start delta")
	}

	next := MinLevel
	for i, s := range stages {
		switch {
		case s.StartLevel != next:
			return stageError(fmt.Sprintf("stage %d starts at level %d, expected %d", i, s.StartLevel, next))
		case s.EndLevel < s.StartLevel:
			return stageError(fmt.Sprintf("stage %d ends before it starts", i))
		case s.Ratio <= 0:
			return stageError(fmt.Sprintf("stage %d has non-positive ratio", i))
		case s.StartDelta < 0:
			return stageError(fmt.Sprintf("stage %d has negative start delta", i))
		case s.StartDelta == 0 && s.Jump <= 0:
			return stageError(fmt.Sprintf("stage %d inherits its start delta but has no jump", i))
		}
		next = s.EndLevel + 1
	}
	return nil
}

func stageError(msg string) error {
	return shared.WrapError("progression", "ValidateStages", shared.ErrConfiguration, msg, nil)
}

// BuildDeltas returns exactly MaxLevel per-level requirements. Rounding is
// half-to-even, and a delta that fails to grow is forced to previous+1.
// Short stage lists are padded with the last delta; long ones are truncated.
func BuildDeltas(stages []Stage) []int {
	deltas := make([]int, 0, MaxLevel)
	prev := 0
	hasPrev := false

	for _, s := range stages {
		start := s.StartDelta
		if start == 0 {
			start = roundInt(float64(prev) * s.Jump)
		}

		d := 0
		for level := s.StartLevel; level <= s.EndLevel; level++ {
			if level == s.StartLevel {
				d = start
			} else {
				d = roundInt(float64(d) * s.Ratio)
			}
			if hasPrev && d <= prev {
				d = prev + 1
			}
			deltas = append(deltas, d)
			prev, hasPrev = d, true
		}
	}

	for len(deltas) < MaxLevel {
		deltas = append(deltas, deltas[len(deltas)-1])
	}
	return deltas[:MaxLevel]
}

func roundInt(x float64) int {
	return int(math.RoundToEven(x))
}

// LevelOf returns the largest level L with T[L-1] <= exp, clamped to [1, 99].
func (c *Curve) LevelOf(exp int) int {
	// Number of thresholds <= exp.
	n := sort.Search(len(c.thresholds), func(i int) bool { return c.thresholds[i] > exp })
	return clampLevel(n)
}

// Range returns the cumulative experience at which level starts and the
// threshold of the next level.
func (c *Curve) Range(level int) (start, next int) {
	level = clampLevel(level)
	return c.thresholds[level-1], c.thresholds[level]
}

// Threshold returns T[i] for i in [0, 99].
func (c *Curve) Threshold(i int) int {
	if i < 0 {
		i = 0
	}
	if i > MaxLevel {
		i = MaxLevel
	}
	return c.thresholds[i]
}

// Thresholds returns a copy of the full table T[0..99].
func (c *Curve) Thresholds() []int {
	out := make([]int, len(c.thresholds))
	copy(out, c.thresholds[:])
	return out
}

func clampLevel(level int) int {
	if level < MinLevel {
		return MinLevel
	}
	if level > MaxLevel {
		return MaxLevel
	}
	return level
}
