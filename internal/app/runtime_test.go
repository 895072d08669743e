package app

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/seasons-hub/seasons-bot/config"
	"github.com/seasons-hub/seasons-bot/internal/domain/progression"
	"github.com/seasons-hub/seasons-bot/internal/infrastructure/persistence/backup"
	"github.com/seasons-hub/seasons-bot/internal/infrastructure/persistence/docstore"
	"github.com/seasons-hub/seasons-bot/internal/infrastructure/scheduler"
	"github.com/seasons-hub/seasons-bot/internal/infrastructure/scheduler/jobs"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		App:     config.AppConfig{Name: "seasons-bot", Environment: config.EnvDevelopment, Version: "test"},
		Discord: config.DiscordConfig{Token: "token", GuildID: "guild", MaxConcurrentCalls: 3},
		Guild: config.GuildConfig{
			TierRoleIDs:  []string{"t1", "t2", "t3", "t4", "t5"},
			HiddenQuests: []string{"moon:달:3", "sun:해:1"},
			Seasons:      []string{"spring:r1:c1"},
		},
		Rules: config.RulesConfig{InactivityDays: 30},
		Store: config.StoreConfig{
			Backend:           config.StoreMemory,
			MissionBackupPath: filepath.Join(t.TempDir(), "mission.json"),
		},
		HTTP:     config.HTTPConfig{Host: "127.0.0.1", Port: 10000},
		Log:      config.LogConfig{Level: "error"},
		Features: config.DefaultFeatureFlags(),
	}
}

func build(t *testing.T, cfg *config.Config) *Runtime {
	t.Helper()
	rt, err := Build(context.Background(), cfg, Options{LogOutput: &bytes.Buffer{}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close(context.Background()) })
	return rt
}

func TestBuild_RegistersJobs(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, cfg.Features.DisableFeature(config.FeatureJobVoiceTick))

	rt := build(t, cfg)

	names := map[string]bool{}
	for _, j := range rt.Scheduler.ListJobs() {
		names[j.Name] = j.Enabled
	}
	assert.Equal(t, map[string]bool{
		jobs.NameVoiceTick:       false,
		jobs.NameRepeatPresence:  true,
		jobs.NameDailyReset:      true,
		jobs.NameInactivitySweep: true,
		jobs.NameSeasonChannels:  true,
	}, names, "no ranking cache means no rebuild job")

	_, err := rt.Scheduler.GetJobInfo(jobs.NameRebuildLeaderboard)
	assert.ErrorIs(t, err, scheduler.ErrJobNotFound)

	assert.Equal(t, []string{"moon", "sun"}, rt.QuestIDs())
	assert.Equal(t, "memory", rt.Storage.Backend())
}

func TestBuild_HiddenQuestsDisabled(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, cfg.Features.DisableFeature(config.FeatureHiddenQuests))

	rt := build(t, cfg)
	assert.Empty(t, rt.QuestIDs())
}

func TestBuild_InvalidTierRoles(t *testing.T) {
	cfg := testConfig(t)
	cfg.Guild.TierRoleIDs = []string{"only-one"}

	_, err := Build(context.Background(), cfg, Options{LogOutput: &bytes.Buffer{}})
	assert.Error(t, err)
}

func TestBuild_RestoresMissionBackup(t *testing.T) {
	cfg := testConfig(t)
	m := progression.NewDailyMission("2025-07-22")
	m.Text.Count = 12
	require.NoError(t, backup.NewMissionFile(cfg.Store.MissionBackupPath).Save(map[string]*progression.DailyMission{"u1": m}))

	rt := build(t, cfg)

	missions, err := rt.Storage.Progression.GetAllMissions(context.Background())
	require.NoError(t, err)
	require.Contains(t, missions, "u1")
	assert.Equal(t, 12, missions["u1"].Text.Count)
}

type staticSource map[string]*progression.DailyMission

func (s staticSource) Load() (map[string]*progression.DailyMission, error) { return s, nil }

func TestRestoreMissions_KeepsExistingStore(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewProgressionStore(docstore.NewMemoryStore(), docstore.ProgressionConfig{})

	live := progression.NewDailyMission("2025-07-22")
	live.Text.Count = 5
	require.NoError(t, store.PutMission(ctx, "u1", live))

	stale := progression.NewDailyMission("2025-07-21")
	stale.Text.Count = 29
	require.NoError(t, RestoreMissions(ctx, store, staticSource{"u1": stale, "u2": stale}))

	missions, err := store.GetAllMissions(ctx)
	require.NoError(t, err)
	assert.Len(t, missions, 1)
	assert.Equal(t, 5, missions["u1"].Text.Count)
}

func TestNewHTTPServer_AdminFlag(t *testing.T) {
	const token = "four-seasons"
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.MinCost)
	require.NoError(t, err)

	send := func(rt *Runtime, method, path string) *httptest.ResponseRecorder {
		server, err := rt.NewHTTPServer(nil, nil)
		require.NoError(t, err)
		req := httptest.NewRequest(method, path, nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, req)
		return rec
	}
	get := func(rt *Runtime, path string) *httptest.ResponseRecorder {
		return send(rt, http.MethodGet, path)
	}

	t.Run("disabled", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.HTTP.AdminTokenHash = string(hash)
		rt := build(t, cfg)

		assert.Equal(t, http.StatusOK, get(rt, "/health").Code)
		assert.Equal(t, http.StatusNotFound, get(rt, "/admin/jobs").Code)
	})

	t.Run("enabled", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.HTTP.AdminTokenHash = string(hash)
		require.NoError(t, cfg.Features.EnableFeature(config.FeatureAdminAPI))
		rt := build(t, cfg)

		rec := get(rt, "/admin/jobs")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), jobs.NameDailyReset)

		rec = get(rt, "/admin/stats")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "event_bus")

		rec = send(rt, http.MethodPost, "/admin/jobs/"+jobs.NameInactivitySweep+"/disable")
		assert.Equal(t, http.StatusOK, rec.Code)
		info, err := rt.Scheduler.GetJobInfo(jobs.NameInactivitySweep)
		require.NoError(t, err)
		assert.False(t, info.Enabled)

		rec = send(rt, http.MethodPost, "/admin/jobs/"+jobs.NameInactivitySweep+"/enable")
		assert.Equal(t, http.StatusOK, rec.Code)
		info, err = rt.Scheduler.GetJobInfo(jobs.NameInactivitySweep)
		require.NoError(t, err)
		assert.True(t, info.Enabled)
	})
}
