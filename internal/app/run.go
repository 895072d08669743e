package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/seasons-hub/seasons-bot/config"
	discordapi "github.com/seasons-hub/seasons-bot/internal/infrastructure/external/discord"
	"github.com/seasons-hub/seasons-bot/internal/interface/discord"
	"github.com/seasons-hub/seasons-bot/internal/interface/discord/middleware"
	"github.com/seasons-hub/seasons-bot/internal/interface/gateway"
	httpserver "github.com/seasons-hub/seasons-bot/internal/interface/http"
	"github.com/seasons-hub/seasons-bot/internal/interface/http/handlers"
	"github.com/seasons-hub/seasons-bot/pkg/logger"
)

// NewBot wires the gateway bot to the runtime's handlers.
func (rt *Runtime) NewBot() (*discord.Bot, error) {
	gateConfig := middleware.DefaultSafeguardConfig()
	gateConfig.Logger = rt.Logger
	recoveryConfig := middleware.DefaultRecoveryConfig()
	recoveryConfig.Logger = rt.Logger

	botConfig := discord.DefaultBotConfig()
	botConfig.ThreadRoleID = rt.Config.Guild.ThreadRoleID
	botConfig.WelcomeChannelID = rt.Config.Guild.WelcomeChannelID
	botConfig.Logger = rt.Logger

	return discord.NewBot(botConfig, discord.BotDependencies{
		Platform:              rt.Client,
		Users:                 rt.Storage.Progression,
		Curve:                 rt.Curve,
		Publisher:             rt.Bus,
		Jobs:                  rt.Scheduler,
		Gate:                  middleware.NewSafeguardGate(gateConfig),
		Recovery:              middleware.NewRecovery(recoveryConfig),
		RecordActivity:        rt.RecordActivity,
		CheckIn:               rt.CheckIn,
		GrantXP:               rt.GrantXP,
		Suggest:               rt.Suggest,
		Quests:                rt.QuestEngine,
		Progress:              rt.Progress,
		XPLeaderboard:         rt.XPLeaderboard,
		AttendanceLeaderboard: rt.AttendanceLeaderboard,
		QuestStatus:           rt.QuestStatus,
		InspectQuest:          rt.InspectQuest,
	})
}

// NewHTTPServer builds the liveness and admin server. stats adds snapshot
// sources next to the event bus, scheduler and feature flags.
func (rt *Runtime) NewHTTPServer(connector handlers.Connector, stats map[string]func() any) (*httpserver.Server, error) {
	health := handlers.NewCompositeHealthChecker(rt.Config.App.Version)
	health.AddCheck("store", handlers.NewPingCheck(rt.Storage))
	if connector != nil {
		health.AddCheck("gateway", handlers.NewConnectedCheck(connector))
	}

	sources := map[string]func() any{
		"event_bus": func() any { return rt.Bus.Metrics().Snapshot() },
		"scheduler": func() any { return rt.Scheduler.GetMetrics().Snapshot() },
		"features":  func() any { return rt.Config.Features.GetAllFeatures() },
	}
	for name, fn := range stats {
		sources[name] = fn
	}

	httpConfig := httpserver.DefaultConfig()
	httpConfig.Host = rt.Config.HTTP.Host
	httpConfig.Port = rt.Config.HTTP.Port
	if rt.Config.Features.IsEnabled(config.FeatureAdminAPI) {
		httpConfig.AdminTokenHash = rt.Config.HTTP.AdminTokenHash
	}

	return httpserver.NewServer(httpConfig, httpserver.Dependencies{
		GrantXP:               rt.GrantXP,
		Quests:                rt.QuestEngine,
		Progress:              rt.Progress,
		XPLeaderboard:         rt.XPLeaderboard,
		AttendanceLeaderboard: rt.AttendanceLeaderboard,
		InspectQuest:          rt.InspectQuest,
		Directory:             rt.Client,
		Jobs:                  rt.Scheduler,
		Stats:                 sources,
		HealthChecker:         health,
		Logger:                rt.Logger,
	})
}

// RunBot connects to the gateway and serves until ctx is cancelled. The
// gateway supervisor reconnects on its own; the scheduler and the HTTP server
// run alongside it.
func (rt *Runtime) RunBot(ctx context.Context) error {
	bot, err := rt.NewBot()
	if err != nil {
		return fmt.Errorf("create bot: %w", err)
	}
	bot.Attach(ctx, rt.Client.Session(), rt.Client.GuildID(), rt.QuestIDs())

	supervisor := gateway.NewSupervisor(rt.Client, gateway.Config{
		ConnectTimeout: rt.Config.Discord.ConnectTimeout,
		Logger:         rt.Logger,
		Classify:       discordapi.ClassifyConnectError,
	})

	server, err := rt.NewHTTPServer(supervisor, map[string]func() any{
		"bot": func() any { return bot.Stats() },
		"gateway": func() any {
			return map[string]any{"state": supervisor.State().String(), "penalty": supervisor.Penalty()}
		},
	})
	if err != nil {
		return fmt.Errorf("create http server: %w", err)
	}

	rt.Logger.Info("bot starting",
		slog.String("env", string(rt.Config.App.Environment)),
		slog.String("version", rt.Config.App.Version),
		slog.String("store", rt.Storage.Backend()),
		slog.Int("hidden_quests", len(rt.Quests)),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := supervisor.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("gateway: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := rt.Scheduler.Start(gctx); err != nil {
			return fmt.Errorf("scheduler: %w", err)
		}
		<-gctx.Done()
		return rt.Scheduler.Stop()
	})
	g.Go(func() error {
		return server.Run(gctx, rt.Config.App.ShutdownTimeout)
	})

	err = g.Wait()
	bot.Wait()
	rt.Logger.Info("bot stopped", logger.Err(err))
	return err
}

// RunJob connects, runs one registered job and returns its outcome. Disabled
// jobs run too.
func (rt *Runtime) RunJob(ctx context.Context, name string) error {
	if err := rt.Client.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	result, err := rt.Scheduler.RunNow(ctx, name)
	if err != nil {
		return fmt.Errorf("run %s: %w", name, err)
	}
	rt.Logger.Info("job finished",
		logger.Job(name),
		slog.Bool("success", result.Success),
		slog.Duration("duration", result.Duration),
	)
	if !result.Success {
		return fmt.Errorf("job %s failed: %w", name, result.Error)
	}
	return nil
}

// QuestIDs returns the configured hidden quest ids in definition order.
func (rt *Runtime) QuestIDs() []string {
	ids := make([]string, 0, len(rt.Quests))
	for _, d := range rt.Quests {
		ids = append(ids, d.ID)
	}
	return ids
}
