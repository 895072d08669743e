// Package command contains the write operations of the bot. Each command is a
// self-contained use case with its own input and result types; the Discord
// bot, the HTTP admin API and the scheduler's jobs are its callers.
//
// Commands read a record, change it, write it back and then publish events.
// Platform side effects (role sync, announcements) happen in the event
// handlers, never inside a command.
package command

import (
	"math/rand/v2"
	"time"
)

// Clock returns the current time.
type Clock func() time.Time

// RandInt returns a uniform integer in [lo, hi].
type RandInt func(lo, hi int) int

func defaultRandInt(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + rand.IntN(hi-lo+1)
}
