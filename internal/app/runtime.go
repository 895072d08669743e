// Package app assembles the bot and worker runtimes from configuration: the
// store, the platform client, the event bus and its subscribers, the command
// and query handlers, and the job scheduler.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/seasons-hub/seasons-bot/config"
	"github.com/seasons-hub/seasons-bot/internal/application/command"
	"github.com/seasons-hub/seasons-bot/internal/application/eventhandler"
	"github.com/seasons-hub/seasons-bot/internal/application/query"
	"github.com/seasons-hub/seasons-bot/internal/domain/progression"
	"github.com/seasons-hub/seasons-bot/internal/domain/quest"
	discordapi "github.com/seasons-hub/seasons-bot/internal/infrastructure/external/discord"
	"github.com/seasons-hub/seasons-bot/internal/infrastructure/messaging"
	"github.com/seasons-hub/seasons-bot/internal/infrastructure/persistence"
	"github.com/seasons-hub/seasons-bot/internal/infrastructure/persistence/backup"
	"github.com/seasons-hub/seasons-bot/internal/infrastructure/persistence/docstore"
	"github.com/seasons-hub/seasons-bot/internal/infrastructure/persistence/postgres"
	"github.com/seasons-hub/seasons-bot/internal/infrastructure/persistence/redis"
	"github.com/seasons-hub/seasons-bot/internal/infrastructure/scheduler"
	"github.com/seasons-hub/seasons-bot/internal/infrastructure/scheduler/jobs"
	"github.com/seasons-hub/seasons-bot/pkg/logger"
	"github.com/seasons-hub/seasons-bot/pkg/telemetry"
	"github.com/seasons-hub/seasons-bot/pkg/timeutil"
)

// Runtime holds every long-lived component shared by the bot and the worker.
type Runtime struct {
	Config *config.Config
	Logger *slog.Logger

	Storage   *persistence.Storage
	Client    *discordapi.Client
	Bus       *messaging.InMemoryEventBus
	Syncer    *eventhandler.DebouncedSyncer
	Scheduler *scheduler.Scheduler

	Curve  *progression.Curve
	Quests []quest.Definition

	// Commands
	RecordActivity *command.RecordActivityHandler
	CheckIn        *command.CheckInHandler
	GrantXP        *command.GrantXPHandler
	Suggest        *command.SuggestHandler
	QuestEngine    *command.HiddenQuestEngine

	// Queries
	Progress              *query.GetProgressHandler
	XPLeaderboard         *query.GetXPLeaderboardHandler
	AttendanceLeaderboard *query.GetAttendanceLeaderboardHandler
	QuestStatus           *query.GetQuestStatusHandler
	InspectQuest          *query.InspectHiddenQuestHandler

	closers []func(context.Context) error
}

// Options overrides parts of the runtime. Zero values build production
// components.
type Options struct {
	// LogOutput replaces stdout for the logger.
	LogOutput io.Writer
}

// Build assembles the runtime. The platform client is created but not
// connected. Close releases everything Build opened, also after an error.
func Build(ctx context.Context, cfg *config.Config, opts Options) (rt *Runtime, err error) {
	rt = &Runtime{Config: cfg}
	defer func() {
		if err != nil {
			_ = rt.Close(context.Background())
			rt = nil
		}
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 1. LOGGING & TRACING
	// ─────────────────────────────────────────────────────────────────────────
	log, logCloser := logger.New(logger.Options{
		Level:      cfg.Log.Level,
		JSON:       cfg.IsProduction(),
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Output:     opts.LogOutput,
	})
	rt.Logger = log.With(slog.String("app", cfg.App.Name))
	rt.onClose(func(context.Context) error { return logCloser.Close() })

	endpoint := ""
	if cfg.Features.IsEnabled(config.FeatureTracing) {
		endpoint = cfg.Observability.TracingEndpoint
	}
	shutdownTracing, err := telemetry.Setup(ctx, cfg.App.Name, endpoint)
	if err != nil {
		return rt, fmt.Errorf("setup tracing: %w", err)
	}
	rt.onClose(shutdownTracing)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. STORAGE
	// ─────────────────────────────────────────────────────────────────────────
	rt.Storage, err = persistence.Open(ctx, StorageOptions(cfg, rt.Logger))
	if err != nil {
		return rt, fmt.Errorf("open store: %w", err)
	}
	rt.onClose(func(context.Context) error { return rt.Storage.Close() })
	store := rt.Storage.Progression

	var missionBackup jobs.MissionBackup
	if cfg.Store.MissionBackupPath != "" {
		file := backup.NewMissionFile(cfg.Store.MissionBackupPath)
		if err := RestoreMissions(ctx, store, file); err != nil {
			rt.Logger.Warn("mission backup not restored", logger.Err(err))
		}
		missionBackup = file
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. DOMAIN RULES
	// ─────────────────────────────────────────────────────────────────────────
	rt.Curve = progression.MustDefaultCurve()
	tiers, err := progression.NewTierTable(cfg.Guild.TierRoleIDs)
	if err != nil {
		return rt, fmt.Errorf("tier roles: %w", err)
	}
	if rt.Quests, err = cfg.QuestDefinitions(); err != nil {
		return rt, fmt.Errorf("hidden quests: %w", err)
	}
	seasons, err := cfg.Seasons()
	if err != nil {
		return rt, fmt.Errorf("seasons: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. PLATFORM CLIENT
	// ─────────────────────────────────────────────────────────────────────────
	rt.Client, err = discordapi.NewClient(discordapi.ClientConfig{
		Token:              cfg.Discord.Token,
		GuildID:            cfg.Discord.GuildID,
		MaxConcurrentCalls: cfg.Discord.MaxConcurrentCalls,
		Logger:             rt.Logger,
	})
	if err != nil {
		return rt, fmt.Errorf("discord client: %w", err)
	}
	rt.onClose(func(context.Context) error { return rt.Client.Close() })

	// ─────────────────────────────────────────────────────────────────────────
	// 5. EVENT BUS & SUBSCRIBERS
	// ─────────────────────────────────────────────────────────────────────────
	busConfig := messaging.DefaultInMemoryEventBusConfig()
	busConfig.Logger = rt.Logger
	rt.Bus = messaging.NewInMemoryEventBus(busConfig)
	rt.onClose(func(context.Context) error { return rt.Bus.Close() })

	rt.Syncer = eventhandler.NewDebouncedSyncer(rt.Client, eventhandler.SyncerConfig{
		Window: cfg.Rules.SyncWindow,
		Tiers:  tiers,
		Logger: rt.Logger,
	})
	rt.onClose(func(context.Context) error { rt.Syncer.Stop(); return nil })

	channels := eventhandler.Channels{
		LevelUp: cfg.Guild.LevelUpChannelID,
		Log:     cfg.Guild.MissionLogChannelID,
	}
	if err := eventhandler.Register(rt.Bus,
		eventhandler.NewOnLevelChangedHandler(rt.Syncer, rt.Client, channels, rt.Logger),
		eventhandler.NewOnMissionCompletedHandler(rt.Client, channels, rt.Logger),
		eventhandler.NewOnQuestCompletedHandler(rt.Client, rt.Logger),
		rt.Syncer,
	); err != nil {
		return rt, fmt.Errorf("register event handlers: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. COMMANDS & QUERIES
	// ─────────────────────────────────────────────────────────────────────────
	var ranking progression.XPRanking
	if rt.Storage.Ranking != nil {
		ranking = rt.Storage.Ranking
	}

	rt.QuestEngine = command.NewHiddenQuestEngine(rt.Quests, store, rt.Bus, timeutil.Now, rt.Logger)

	recordConfig := command.DefaultRecordActivityHandlerConfig()
	recordConfig.Cooldown = cfg.Rules.MessageCooldown
	recordConfig.ThreadRoleChannelID = cfg.Guild.ThreadChannelID
	recordConfig.ThreadRoleID = cfg.Guild.ThreadRoleID
	rt.RecordActivity = command.NewRecordActivityHandler(store, store, rt.Curve, rt.Client, rt.QuestEngine, rt.Bus, recordConfig, rt.Logger)

	rt.CheckIn = command.NewCheckInHandler(store, store, rt.Curve, rt.Bus, timeutil.Now, rt.Logger)
	rt.GrantXP = command.NewGrantXPHandler(store, rt.Curve, rt.Bus, timeutil.Now, rt.Logger)
	rt.Suggest = command.NewSuggestHandler(rt.Client, store, command.SuggestChannels{
		Anonymous: cfg.Guild.SuggestionAnonymousChannelID,
		Named:     cfg.Guild.SuggestionNamedChannelID,
	}, timeutil.Now, rt.Logger)

	rt.Progress = query.NewGetProgressHandler(store, rt.Curve, timeutil.Now)
	rt.XPLeaderboard = query.NewGetXPLeaderboardHandler(store, ranking, rt.Client, rt.Curve, rt.Logger)
	rt.AttendanceLeaderboard = query.NewGetAttendanceLeaderboardHandler(store, rt.Client)
	rt.QuestStatus = query.NewGetQuestStatusHandler(store, store, timeutil.Now)
	rt.InspectQuest = query.NewInspectHiddenQuestHandler(rt.Quests, store, rt.Client)

	// ─────────────────────────────────────────────────────────────────────────
	// 7. SCHEDULER
	// ─────────────────────────────────────────────────────────────────────────
	schedConfig := scheduler.DefaultSchedulerConfig()
	schedConfig.Logger = rt.Logger
	schedConfig.Timezone = timeutil.KST
	rt.Scheduler = scheduler.NewScheduler(schedConfig)

	set := BuildJobs(rt, missionBackup, seasons)
	if err := jobs.Register(rt.Scheduler, set, timeutil.KST, cfg.Features.JobEnabled); err != nil {
		return rt, fmt.Errorf("register jobs: %w", err)
	}

	return rt, nil
}

// BuildJobs constructs the scheduled jobs. Without a ranking cache there is
// nothing to rebuild.
func BuildJobs(rt *Runtime, missionBackup jobs.MissionBackup, seasons []config.Season) jobs.Set {
	cfg := rt.Config
	store := rt.Storage.Progression

	voice := jobs.DefaultVoiceTickConfig()
	voice.AFKChannelIDs = cfg.Guild.AFKChannelIDs
	voice.ReducedCategoryIDs = cfg.Guild.ReducedCategoryIDs

	repeat := jobs.DefaultRepeatPresenceConfig()
	repeat.AFKChannelIDs = cfg.Guild.AFKChannelIDs

	sweep := jobs.DefaultInactivitySweepConfig()
	sweep.Days = cfg.Rules.InactivityDays
	sweep.ExemptRoleIDs = cfg.Guild.ExemptRoleIDs
	sweep.LogChannelID = cfg.Guild.InactivityChannelID
	sweep.InviteURL = cfg.Rules.InviteURL

	seasonChannels := make([]jobs.SeasonChannel, 0, len(seasons))
	for _, s := range seasons {
		seasonChannels = append(seasonChannels, jobs.SeasonChannel{Season: s.Name, RoleID: s.RoleID, ChannelID: s.ChannelID})
	}

	set := jobs.Set{
		VoiceTick:       jobs.NewVoiceTickJob(rt.Client, store, rt.Curve, rt.Bus, voice, rt.Logger),
		RepeatPresence:  jobs.NewRepeatPresenceJob(rt.Client, store, store, rt.Curve, missionBackup, rt.Bus, repeat, rt.Logger),
		DailyReset:      jobs.NewDailyResetJob(store, missionBackup, rt.Logger),
		InactivitySweep: jobs.NewInactivitySweepJob(rt.Client, store, rt.Bus, sweep, rt.Logger),
		SeasonChannels:  jobs.NewSeasonChannelsJob(rt.Client, seasonChannels, rt.Logger),
	}
	if rt.Storage.Ranking != nil {
		set.RebuildLeaderboard = jobs.NewRebuildLeaderboardJob(store, rt.Storage.Ranking, jobs.DefaultRebuildLeaderboardConfig(), rt.Logger)
	}
	return set
}

// StorageOptions maps the store configuration.
func StorageOptions(cfg *config.Config, log *slog.Logger) persistence.Options {
	pool := postgres.DefaultPoolOptions()
	pool.MaxConns = cfg.Database.MaxConns
	pool.MinConns = cfg.Database.MinConns
	pool.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	pool.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime

	rc := redis.DefaultConfig()
	rc.Host = cfg.Redis.Host
	rc.Port = cfg.Redis.Port
	rc.Password = cfg.Redis.Password
	rc.DB = cfg.Redis.DB
	rc.Namespace = cfg.Redis.Namespace
	rc.PoolSize = cfg.Redis.PoolSize
	rc.MinIdleConns = cfg.Redis.MinIdleConns

	return persistence.Options{
		Backend:      string(cfg.Store.Backend),
		DatabaseURL:  cfg.Database.URL,
		Pool:         pool,
		Redis:        rc,
		RankingCache: cfg.Redis.LeaderboardCache,
		SQLitePath:   cfg.Store.SQLitePath,
		Logger:       log,
	}
}

// MissionSource loads a mission backup.
type MissionSource interface {
	Load() (map[string]*progression.DailyMission, error)
}

// RestoreMissions seeds an empty mission collection from the backup file.
// A store that already holds missions is left untouched.
func RestoreMissions(ctx context.Context, store *docstore.ProgressionStore, src MissionSource) error {
	existing, err := store.GetAllMissions(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	missions, err := src.Load()
	if err != nil {
		return err
	}
	for userID, m := range missions {
		if err := store.PutMission(ctx, userID, m); err != nil {
			return err
		}
	}
	return nil
}

func (rt *Runtime) onClose(fn func(context.Context) error) {
	rt.closers = append(rt.closers, fn)
}

// Close releases resources in reverse order of acquisition.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}
