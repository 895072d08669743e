package docstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	json "github.com/goccy/go-json"

	"github.com/seasons-hub/seasons-bot/internal/domain/progression"
	"github.com/seasons-hub/seasons-bot/internal/domain/quest"
	"github.com/seasons-hub/seasons-bot/internal/domain/shared"
	"github.com/seasons-hub/seasons-bot/pkg/logger"
	"github.com/seasons-hub/seasons-bot/pkg/retry"
)

// Document collections.
const (
	UsersCollection      = "exp_data"
	MissionsCollection   = "mission_data"
	AttendanceCollection = "attendance_data"
	QuestsCollection     = "hidden_quest_data"
)

// XPIndex receives every saved experience total. Used to keep a ranking cache
// warm; failures are logged and never fail the write.
type XPIndex interface {
	UpdateXP(ctx context.Context, userID string, exp int) error
}

// ProgressionConfig configures a ProgressionStore.
type ProgressionConfig struct {
	Logger *slog.Logger

	// Retrier bounds optimistic transactions. Defaults to retry.TransactRetrier().
	Retrier *retry.Retrier

	// Index is optional.
	Index XPIndex
}

// ProgressionStore stores progression and quest records as JSON documents.
// It implements progression.Repository and quest.Repository.
type ProgressionStore struct {
	store   Store
	retrier *retry.Retrier
	index   XPIndex
	logger  *slog.Logger
}

// NewProgressionStore wraps store.
func NewProgressionStore(store Store, cfg ProgressionConfig) *ProgressionStore {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Retrier == nil {
		cfg.Retrier = retry.TransactRetrier()
	}
	return &ProgressionStore{
		store:   store,
		retrier: cfg.Retrier,
		index:   cfg.Index,
		logger:  cfg.Logger.With(logger.Component("progression_store")),
	}
}

// Backend returns the underlying document store.
func (s *ProgressionStore) Backend() Store {
	return s.store
}

// ─────────────────────────────────────────────────────────────────────────────
// Generic helpers
// ─────────────────────────────────────────────────────────────────────────────

func (s *ProgressionStore) load(ctx context.Context, path string, dest any) (bool, error) {
	body, _, err := s.store.Get(ctx, path)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, storeError("Get", path, err)
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return false, fmt.Errorf("decode %s: %w", path, err)
	}
	return true, nil
}

func (s *ProgressionStore) save(ctx context.Context, path string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := s.store.Put(ctx, path, body); err != nil {
		return storeError("Put", path, err)
	}
	return nil
}

func listAll[T any](ctx context.Context, s *ProgressionStore, collection string) (map[string]*T, error) {
	docs, err := s.store.List(ctx, Prefix(collection))
	if err != nil {
		return nil, storeError("List", collection, err)
	}

	out := make(map[string]*T, len(docs))
	for id, body := range docs {
		v := new(T)
		if err := json.Unmarshal(body, v); err != nil {
			s.logger.Warn("skipping undecodable document",
				slog.String("collection", collection), slog.String("id", id), logger.Err(err))
			continue
		}
		out[id] = v
	}
	return out, nil
}

func storeError(op, path string, err error) error {
	return shared.WrapError("docstore", op, shared.ErrTransientExternal, path, err)
}

// Transact runs an optimistic read-modify-write on path. fn receives the
// current body (nil when absent) and returns the body to write. On a
// concurrent change fn is re-run against the new value; after the retrier's
// attempts are exhausted shared.ErrOptimisticLock is returned.
func (s *ProgressionStore) Transact(ctx context.Context, path string, fn func(current []byte) ([]byte, error)) ([]byte, error) {
	var committed []byte

	err := s.retrier.Do(ctx, func(ctx context.Context) error {
		current, version, err := s.store.Get(ctx, path)
		if errors.Is(err, ErrNotFound) {
			current, version = nil, 0
		} else if err != nil {
			return retry.Permanent(storeError("Get", path, err))
		}

		next, err := fn(current)
		if err != nil {
			return retry.Permanent(err)
		}

		err = s.store.CompareAndSwap(ctx, path, version, next)
		if errors.Is(err, ErrConflict) {
			return retry.Retryable(err)
		}
		if err != nil {
			return retry.Permanent(storeError("CompareAndSwap", path, err))
		}

		committed = next
		return nil
	})

	if errors.Is(err, ErrConflict) {
		return nil, shared.WrapError("docstore", "Transact", shared.ErrOptimisticLock,
			fmt.Sprintf("%s: gave up after %d attempts", path, s.retrier.MaxAttempts()), err)
	}
	if err != nil {
		return nil, err
	}
	return committed, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Users
// ─────────────────────────────────────────────────────────────────────────────

func (s *ProgressionStore) GetUser(ctx context.Context, userID string) (*progression.UserProgress, error) {
	p := progression.NewUserProgress()
	if _, err := s.load(ctx, Join(UsersCollection, userID), p); err != nil {
		return nil, err
	}
	if p.Level < progression.MinLevel {
		p.Level = progression.MinLevel
	}
	return p, nil
}

func (s *ProgressionStore) PutUser(ctx context.Context, userID string, p *progression.UserProgress) error {
	if err := s.save(ctx, Join(UsersCollection, userID), p); err != nil {
		return err
	}
	if s.index != nil {
		if err := s.index.UpdateXP(ctx, userID, p.Exp); err != nil {
			s.logger.Warn("xp index update failed", logger.UserID(userID), logger.Err(err))
		}
	}
	return nil
}

func (s *ProgressionStore) GetAllUsers(ctx context.Context) (map[string]*progression.UserProgress, error) {
	return listAll[progression.UserProgress](ctx, s, UsersCollection)
}

// ─────────────────────────────────────────────────────────────────────────────
// Missions
// ─────────────────────────────────────────────────────────────────────────────

func (s *ProgressionStore) GetMission(ctx context.Context, userID, today string) (*progression.DailyMission, error) {
	m := &progression.DailyMission{}
	found, err := s.load(ctx, Join(MissionsCollection, userID), m)
	if err != nil {
		return nil, err
	}
	if !found {
		return progression.NewDailyMission(today), nil
	}
	return m.ForDate(today), nil
}

func (s *ProgressionStore) PutMission(ctx context.Context, userID string, m *progression.DailyMission) error {
	return s.save(ctx, Join(MissionsCollection, userID), m)
}

func (s *ProgressionStore) GetAllMissions(ctx context.Context) (map[string]*progression.DailyMission, error) {
	return listAll[progression.DailyMission](ctx, s, MissionsCollection)
}

func (s *ProgressionStore) ClearMissions(ctx context.Context) error {
	if err := s.store.DeletePrefix(ctx, Prefix(MissionsCollection)); err != nil {
		return storeError("DeletePrefix", MissionsCollection, err)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Attendance
// ─────────────────────────────────────────────────────────────────────────────

func (s *ProgressionStore) GetAttendance(ctx context.Context, userID string) (*progression.Attendance, error) {
	a := progression.NewAttendance()
	if _, err := s.load(ctx, Join(AttendanceCollection, userID), a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *ProgressionStore) PutAttendance(ctx context.Context, userID string, a *progression.Attendance) error {
	return s.save(ctx, Join(AttendanceCollection, userID), a)
}

func (s *ProgressionStore) GetAllAttendance(ctx context.Context) (map[string]*progression.Attendance, error) {
	return listAll[progression.Attendance](ctx, s, AttendanceCollection)
}

// ─────────────────────────────────────────────────────────────────────────────
// Hidden quests
// ─────────────────────────────────────────────────────────────────────────────

func (s *ProgressionStore) TransactQuest(ctx context.Context, questID string, fn func(r *quest.Record) error) (*quest.Record, error) {
	body, err := s.Transact(ctx, Join(QuestsCollection, questID), func(current []byte) ([]byte, error) {
		r := quest.NewRecord()
		if current != nil {
			if err := json.Unmarshal(current, r); err != nil {
				return nil, fmt.Errorf("decode quest %s: %w", questID, err)
			}
		}
		if err := fn(r); err != nil {
			return nil, err
		}
		return json.Marshal(r)
	})
	if err != nil {
		return nil, err
	}

	committed := quest.NewRecord()
	if err := json.Unmarshal(body, committed); err != nil {
		return nil, fmt.Errorf("decode quest %s: %w", questID, err)
	}
	return committed, nil
}

func (s *ProgressionStore) GetQuest(ctx context.Context, questID string) (*quest.Record, bool, error) {
	r := quest.NewRecord()
	found, err := s.load(ctx, Join(QuestsCollection, questID), r)
	if err != nil {
		return nil, false, err
	}
	return r, found, nil
}

var (
	_ progression.Repository = (*ProgressionStore)(nil)
	_ quest.Repository       = (*ProgressionStore)(nil)
)
