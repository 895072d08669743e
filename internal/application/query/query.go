// Package query contains the read operations of the bot. Queries never modify
// state; each has its own request and result types so the Discord commands and
// the HTTP admin API can share them.
package query

import (
	"context"
	"time"

	"github.com/seasons-hub/seasons-bot/internal/domain/community"
)

// UnknownName is shown for members that left or cannot be looked up.
const UnknownName = "Unknown"

// Clock returns the current time.
type Clock func() time.Time

const (
	defaultLimit = 10
	maxLimit     = 50
)

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	return min(limit, maxLimit)
}

// nameResolver resolves display names once per query.
type nameResolver struct {
	dir   community.Directory
	names map[string]string
}

func newNameResolver(dir community.Directory) *nameResolver {
	return &nameResolver{dir: dir, names: make(map[string]string)}
}

func (r *nameResolver) name(ctx context.Context, userID string) string {
	if n, ok := r.names[userID]; ok {
		return n
	}
	n := UnknownName
	if r.dir != nil {
		if m, err := r.dir.Member(ctx, userID); err == nil && m.DisplayName != "" {
			n = m.DisplayName
		}
	}
	r.names[userID] = n
	return n
}
