package config

import (
	"sort"
	"sync"

	"github.com/caarlos0/env/v11"
)

// FeatureFlags manages global feature toggles. Flags are read once from the
// environment and may be flipped at runtime.
type FeatureFlags struct {
	mu       sync.RWMutex
	features map[string]*Feature
}

// Feature represents a single feature flag.
type Feature struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Enabled     bool   `json:"enabled"`
}

// Predefined feature flag names.
const (
	// === Scheduled jobs ===
	FeatureJobVoiceTick          = "job.voice_tick"
	FeatureJobRepeatPresence     = "job.repeat_presence"
	FeatureJobDailyReset         = "job.daily_reset"
	FeatureJobInactivitySweep    = "job.inactivity_sweep"
	FeatureJobSeasonChannels     = "job.season_channels"
	FeatureJobRebuildLeaderboard = "job.rebuild_leaderboard"

	// === Surfaces ===
	FeatureAdminAPI     = "admin_api"
	FeatureHiddenQuests = "hidden_quests"
	FeatureTracing      = "tracing"
)

// featureEnv is the environment form of the flags.
type featureEnv struct {
	VoiceTick          bool `env:"FEATURE_JOB_VOICE_TICK" envDefault:"true"`
	RepeatPresence     bool `env:"FEATURE_JOB_REPEAT_PRESENCE" envDefault:"true"`
	DailyReset         bool `env:"FEATURE_JOB_DAILY_RESET" envDefault:"true"`
	InactivitySweep    bool `env:"FEATURE_JOB_INACTIVITY_SWEEP" envDefault:"true"`
	SeasonChannels     bool `env:"FEATURE_JOB_SEASON_CHANNELS" envDefault:"true"`
	RebuildLeaderboard bool `env:"FEATURE_JOB_REBUILD_LEADERBOARD" envDefault:"true"`

	AdminAPI     bool `env:"FEATURE_ADMIN_API" envDefault:"false"`
	HiddenQuests bool `env:"FEATURE_HIDDEN_QUESTS" envDefault:"true"`
	Tracing      bool `env:"FEATURE_TRACING" envDefault:"true"`
}

// LoadFeatureFlags loads feature flags from environment variables.
// Format: FEATURE_<NAME>=true|false, e.g. FEATURE_JOB_VOICE_TICK=false.
func LoadFeatureFlags() (*FeatureFlags, error) {
	fe, err := env.ParseAs[featureEnv]()
	if err != nil {
		return nil, err
	}
	return newFeatureFlags(fe), nil
}

// DefaultFeatureFlags returns the flags with their default values.
func DefaultFeatureFlags() *FeatureFlags {
	return newFeatureFlags(featureEnv{
		VoiceTick:          true,
		RepeatPresence:     true,
		DailyReset:         true,
		InactivitySweep:    true,
		SeasonChannels:     true,
		RebuildLeaderboard: true,
		HiddenQuests:       true,
		Tracing:            true,
	})
}

func newFeatureFlags(fe featureEnv) *FeatureFlags {
	ff := &FeatureFlags{features: make(map[string]*Feature)}
	add := func(name, description string, enabled bool) {
		ff.features[name] = &Feature{Name: name, Description: description, Enabled: enabled}
	}

	add(FeatureJobVoiceTick, "Per-minute voice XP", fe.VoiceTick)
	add(FeatureJobRepeatPresence, "Busy-channel voice mission minutes", fe.RepeatPresence)
	add(FeatureJobDailyReset, "Midnight mission reset", fe.DailyReset)
	add(FeatureJobInactivitySweep, "Removal of inactive members", fe.InactivitySweep)
	add(FeatureJobSeasonChannels, "Season voice channel head counts", fe.SeasonChannels)
	add(FeatureJobRebuildLeaderboard, "XP ranking cache rebuild", fe.RebuildLeaderboard)
	add(FeatureAdminAPI, "Token-protected /admin HTTP API", fe.AdminAPI)
	add(FeatureHiddenQuests, "Keyword hidden quests", fe.HiddenQuests)
	add(FeatureTracing, "OpenTelemetry tracing", fe.Tracing)

	return ff
}

// jobFeatures maps scheduler job names to their flag.
var jobFeatures = map[string]string{
	"voice_tick":              FeatureJobVoiceTick,
	"repeat_presence_mission": FeatureJobRepeatPresence,
	"daily_reset":             FeatureJobDailyReset,
	"inactivity_sweep":        FeatureJobInactivitySweep,
	"season_channels":         FeatureJobSeasonChannels,
	"rebuild_leaderboard":     FeatureJobRebuildLeaderboard,
}

// IsEnabled checks if a feature is enabled. Unknown features are disabled.
func (ff *FeatureFlags) IsEnabled(featureName string) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	feature, ok := ff.features[featureName]
	return ok && feature.Enabled
}

// JobEnabled reports whether the scheduler job should run on its schedule.
// Jobs without a flag are enabled.
func (ff *FeatureFlags) JobEnabled(jobName string) bool {
	name, ok := jobFeatures[jobName]
	if !ok {
		return true
	}
	return ff.IsEnabled(name)
}

func (ff *FeatureFlags) set(featureName string, enabled bool) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	feature, ok := ff.features[featureName]
	if !ok {
		return ErrFeatureNotFound
	}
	feature.Enabled = enabled
	return nil
}

// EnableFeature enables a feature.
func (ff *FeatureFlags) EnableFeature(featureName string) error {
	return ff.set(featureName, true)
}

// DisableFeature disables a feature.
func (ff *FeatureFlags) DisableFeature(featureName string) error {
	return ff.set(featureName, false)
}

// GetAllFeatures returns a copy of all features sorted by name.
func (ff *FeatureFlags) GetAllFeatures() []Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	result := make([]Feature, 0, len(ff.features))
	for _, v := range ff.features {
		result = append(result, *v)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// --- Errors ---

var (
	ErrFeatureNotFound = &FeatureFlagError{Message: "feature not found"}
)

// FeatureFlagError represents a feature flag error.
type FeatureFlagError struct {
	Message string
}

func (e *FeatureFlagError) Error() string {
	return e.Message
}
