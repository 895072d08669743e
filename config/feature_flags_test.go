package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFeatureFlags_Env(t *testing.T) {
	t.Setenv("FEATURE_JOB_VOICE_TICK", "false")
	t.Setenv("FEATURE_ADMIN_API", "true")

	ff, err := LoadFeatureFlags()
	require.NoError(t, err)

	assert.False(t, ff.IsEnabled(FeatureJobVoiceTick))
	assert.False(t, ff.JobEnabled("voice_tick"))
	assert.True(t, ff.JobEnabled("daily_reset"))
	assert.True(t, ff.IsEnabled(FeatureAdminAPI))
}

func TestLoadFeatureFlags_InvalidBool(t *testing.T) {
	t.Setenv("FEATURE_TRACING", "maybe")
	_, err := LoadFeatureFlags()
	assert.Error(t, err)
}

func TestFeatureFlags_Toggle(t *testing.T) {
	ff := DefaultFeatureFlags()

	assert.True(t, ff.JobEnabled("unknown_job"))
	assert.False(t, ff.IsEnabled("unknown"))

	require.NoError(t, ff.DisableFeature(FeatureJobSeasonChannels))
	assert.False(t, ff.JobEnabled("season_channels"))
	require.NoError(t, ff.EnableFeature(FeatureJobSeasonChannels))
	assert.True(t, ff.JobEnabled("season_channels"))

	assert.ErrorIs(t, ff.EnableFeature("unknown"), ErrFeatureNotFound)
}

func TestFeatureFlags_GetAllFeatures(t *testing.T) {
	all := DefaultFeatureFlags().GetAllFeatures()
	require.Len(t, all, 9)
	assert.Equal(t, FeatureAdminAPI, all[0].Name)
	assert.False(t, all[0].Enabled)

	all[0].Enabled = true
	assert.False(t, DefaultFeatureFlags().IsEnabled(FeatureAdminAPI))
}
