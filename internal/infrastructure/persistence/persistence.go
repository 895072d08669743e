// Package persistence opens the configured document store backend and the
// optional Redis ranking cache next to it.
package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/seasons-hub/seasons-bot/internal/domain/shared"
	"github.com/seasons-hub/seasons-bot/internal/infrastructure/persistence/docstore"
	"github.com/seasons-hub/seasons-bot/internal/infrastructure/persistence/postgres"
	"github.com/seasons-hub/seasons-bot/internal/infrastructure/persistence/redis"
	"github.com/seasons-hub/seasons-bot/internal/infrastructure/persistence/sqlite"
	"github.com/seasons-hub/seasons-bot/pkg/logger"
	"github.com/seasons-hub/seasons-bot/pkg/retry"
)

// Backend names.
const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendSQLite   = "sqlite"
	BackendMemory   = "memory"
)

// Options selects and configures the backend.
type Options struct {
	Backend string

	DatabaseURL string
	Pool        postgres.PoolOptions

	// Redis is used by the redis backend and, when RankingCache is set, for
	// the XP ranking of any backend.
	Redis        redis.Config
	RankingCache bool

	SQLitePath string

	// ConnectRetry is appended to retry.StoreConnectOptions for the postgres
	// and redis startup connects.
	ConnectRetry []retry.Option

	Logger *slog.Logger
}

// Storage is an open backend.
type Storage struct {
	Docs        docstore.Store
	Progression *docstore.ProgressionStore

	// Ranking is nil without a Redis ranking cache.
	Ranking *redis.LeaderboardCache

	backend     string
	rankingOnly *redis.Client
	logger      *slog.Logger
}

// Open connects the backend, runs migrations where the backend has them and
// wraps it in a ProgressionStore.
func Open(ctx context.Context, opts Options) (*Storage, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	log := opts.Logger.With(logger.Component("persistence"), slog.String("backend", opts.Backend))

	s := &Storage{backend: opts.Backend, logger: log}

	var redisClient *redis.Client
	switch opts.Backend {
	case BackendPostgres:
		poolConfig, err := postgres.PoolConfig(opts.DatabaseURL, opts.Pool)
		if err != nil {
			return nil, shared.NewDomainError("persistence", "Open", shared.ErrConfiguration, err.Error())
		}
		conn, err := retry.DoWithData(ctx, func(ctx context.Context) (*postgres.Connection, error) {
			return postgres.NewConnection(ctx, poolConfig.Copy())
		}, connectRetry(log, opts.ConnectRetry)...)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := postgres.NewMigrator(conn).Migrate(ctx); err != nil {
			conn.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		s.Docs = postgres.NewDocumentStore(conn)

	case BackendRedis:
		client, err := retry.DoWithData(ctx, func(ctx context.Context) (*redis.Client, error) {
			return redis.NewClient(ctx, opts.Redis)
		}, connectRetry(log, opts.ConnectRetry)...)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		redisClient = client
		s.Docs = redis.NewDocumentStore(client)

	case BackendSQLite:
		store, err := sqlite.Open(opts.SQLitePath)
		if err != nil {
			return nil, err
		}
		s.Docs = store

	case BackendMemory:
		s.Docs = docstore.NewMemoryStore()

	default:
		return nil, shared.NewDomainError("persistence", "Open", shared.ErrConfiguration,
			fmt.Sprintf("unknown store backend %q", opts.Backend))
	}

	if opts.RankingCache && opts.Redis.Host != "" {
		if redisClient == nil {
			client, err := redis.NewClient(ctx, opts.Redis)
			if err != nil {
				// The ranking falls back to a full scan.
				log.Warn("redis ranking cache unavailable", logger.Err(err))
			} else {
				redisClient = client
				s.rankingOnly = client
			}
		}
		if redisClient != nil {
			s.Ranking = redis.NewLeaderboardCache(redisClient)
		}
	}

	cfg := docstore.ProgressionConfig{Logger: opts.Logger}
	if s.Ranking != nil {
		cfg.Index = s.Ranking
	}
	s.Progression = docstore.NewProgressionStore(s.Docs, cfg)

	log.Info("document store opened", slog.Bool("ranking_cache", s.Ranking != nil))
	return s, nil
}

func connectRetry(log *slog.Logger, extra []retry.Option) []retry.Option {
	opts := retry.StoreConnectOptions()
	opts = append(opts, retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
		log.Warn("store connect failed, retrying",
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			logger.Err(err),
		)
	}))
	return append(opts, extra...)
}

// Backend returns the backend name.
func (s *Storage) Backend() string {
	return s.backend
}

// Ping checks the document store.
func (s *Storage) Ping(ctx context.Context) error {
	return s.Docs.Ping(ctx)
}

// Close releases the backend and the ranking client.
func (s *Storage) Close() error {
	var errs []error
	if err := s.Docs.Close(); err != nil {
		errs = append(errs, err)
	}
	if s.rankingOnly != nil {
		if err := s.rankingOnly.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
