package redis

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/seasons-hub/seasons-bot/internal/domain/progression"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD CACHE
// ══════════════════════════════════════════════════════════════════════════════

// ErrNotRanked is returned by Rank for a member missing from the set.
var ErrNotRanked = errors.New("leaderboard_cache: member not ranked")

// LeaderboardEntry is one ranked member.
type LeaderboardEntry struct {
	UserID string `json:"user_id"`
	Exp    int64  `json:"exp"`
	// Rank is 1-based.
	Rank int64 `json:"rank"`
}

// LeaderboardCache keeps experience totals in the sorted set
// "<ns>:leaderboard:xp" (member = user id, score = exp). It gives O(log N)
// rank lookups; the document store stays authoritative.
type LeaderboardCache struct {
	client *Client
}

// NewLeaderboardCache creates a cache on client.
func NewLeaderboardCache(client *Client) *LeaderboardCache {
	return &LeaderboardCache{client: client}
}

func (l *LeaderboardCache) key() string {
	return l.client.Key("leaderboard", "xp")
}

// UpdateXP sets the member's score. Satisfies docstore.XPIndex.
func (l *LeaderboardCache) UpdateXP(ctx context.Context, userID string, exp int) error {
	if userID == "" {
		return ErrKeyEmpty
	}
	return l.client.rdb.ZAdd(ctx, l.key(), redis.Z{Score: float64(exp), Member: userID}).Err()
}

// Rebuild replaces the whole set atomically.
func (l *LeaderboardCache) Rebuild(ctx context.Context, totals map[string]int) error {
	pipe := l.client.rdb.TxPipeline()
	pipe.Del(ctx, l.key())

	if len(totals) > 0 {
		members := make([]redis.Z, 0, len(totals))
		for id, exp := range totals {
			members = append(members, redis.Z{Score: float64(exp), Member: id})
		}
		pipe.ZAdd(ctx, l.key(), members...)
	}

	_, err := pipe.Exec(ctx)
	return err
}

// Top returns the count highest members, best first.
func (l *LeaderboardCache) Top(ctx context.Context, count int) ([]LeaderboardEntry, error) {
	if count <= 0 {
		return nil, nil
	}

	zs, err := l.client.rdb.ZRevRangeWithScores(ctx, l.key(), 0, int64(count-1)).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]LeaderboardEntry, 0, len(zs))
	for i, z := range zs {
		id, _ := z.Member.(string)
		entries = append(entries, LeaderboardEntry{UserID: id, Exp: int64(z.Score), Rank: int64(i + 1)})
	}
	return entries, nil
}

// Rank returns the member's entry or ErrNotRanked.
func (l *LeaderboardCache) Rank(ctx context.Context, userID string) (*LeaderboardEntry, error) {
	pipe := l.client.rdb.Pipeline()
	rankCmd := pipe.ZRevRank(ctx, l.key(), userID)
	scoreCmd := pipe.ZScore(ctx, l.key(), userID)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	rank, err := rankCmd.Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotRanked
	}
	if err != nil {
		return nil, err
	}

	score, err := scoreCmd.Result()
	if err != nil {
		return nil, err
	}
	return &LeaderboardEntry{UserID: userID, Exp: int64(score), Rank: rank + 1}, nil
}

// Count returns the number of ranked members.
func (l *LeaderboardCache) Count(ctx context.Context) (int64, error) {
	return l.client.rdb.ZCard(ctx, l.key()).Result()
}

// TopXP implements progression.XPRanking.
func (l *LeaderboardCache) TopXP(ctx context.Context, count int) ([]progression.RankedUser, error) {
	entries, err := l.Top(ctx, count)
	if err != nil {
		return nil, err
	}
	out := make([]progression.RankedUser, len(entries))
	for i, e := range entries {
		out[i] = progression.RankedUser{UserID: e.UserID, Exp: int(e.Exp), Rank: int(e.Rank)}
	}
	return out, nil
}

// RankXP implements progression.XPRanking.
func (l *LeaderboardCache) RankXP(ctx context.Context, userID string) (progression.RankedUser, bool, error) {
	e, err := l.Rank(ctx, userID)
	if errors.Is(err, ErrNotRanked) {
		return progression.RankedUser{}, false, nil
	}
	if err != nil {
		return progression.RankedUser{}, false, err
	}
	return progression.RankedUser{UserID: e.UserID, Exp: int(e.Exp), Rank: int(e.Rank)}, true, nil
}
