package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())
	for _, key := range []string{"PORT", "STORE_BACKEND", "AI_PROVIDER", "AUTO_INCIDENT_ENABLED", "AUTO_INCIDENT_SUMMARY_LINES", "STATUS_STALE_SECONDS", "MAINTENANCE_SWEEP_SECONDS"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "memory", cfg.StoreBackend)
	assert.Equal(t, time.Minute, cfg.MaintenanceSweep)
	assert.False(t, cfg.TriggerDefaults.Enabled)
	assert.Equal(t, 20, cfg.TriggerDefaults.ErrorThreshold)
	assert.Equal(t, 60, cfg.TriggerDefaults.WindowSeconds)
	assert.Equal(t, 300, cfg.TriggerDefaults.CooldownSeconds)
	assert.Equal(t, 200, cfg.TriggerDefaults.SummaryLineCap)
	assert.Equal(t, 15*time.Second, cfg.StatusStale)
	assert.Equal(t, 30*time.Second, cfg.SettingsCacheTTL)
}

func TestLoad_Overrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("AUTO_INCIDENT_ENABLED", "true")
	t.Setenv("AUTO_INCIDENT_ERROR_THRESHOLD", "5")
	t.Setenv("AUTO_INCIDENT_SUMMARY_LINES", "900")
	t.Setenv("AUTO_INCIDENT_WINDOW_SECONDS", "not-a-number")
	t.Setenv("STATUS_STALE_SECONDS", "30")
	t.Setenv("AI_PROVIDER", "gemini")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.TriggerDefaults.Enabled)
	assert.Equal(t, 5, cfg.TriggerDefaults.ErrorThreshold)
	assert.Equal(t, 60, cfg.TriggerDefaults.WindowSeconds)
	assert.Equal(t, 200, cfg.TriggerDefaults.SummaryLineCap)
	assert.Equal(t, 30*time.Second, cfg.StatusStale)
	assert.Equal(t, "gemini", cfg.AIProvider)
}

func TestValidate(t *testing.T) {
	cfg := &Config{Port: "8080", StoreBackend: "postgres", AIProvider: "none", StatusStale: time.Second}
	assert.Error(t, cfg.Validate(), "postgres without DATABASE_URL")

	cfg.DatabaseURL = "postgres://localhost/pulse"
	assert.NoError(t, cfg.Validate())

	cfg.AIProvider = "clippy"
	assert.Error(t, cfg.Validate())
}

func TestLoadPlans(t *testing.T) {
	plans, err := LoadPlans("")
	require.NoError(t, err)

	free := plans.LimitsFor("FREE")
	require.NotNil(t, free.MaxIncidentsPerMonth)
	assert.Equal(t, 50, *free.MaxIncidentsPerMonth)
	assert.Nil(t, plans.LimitsFor("enterprise").MaxIncidentsPerMonth)
	assert.Nil(t, plans.LimitsFor("unknown").MaxIncidentsPerMonth)

	path := filepath.Join(t.TempDir(), "plans.yaml")
	require.NoError(t, os.WriteFile(path, []byte("plans:\n  free:\n    max_incidents_per_month: 10\n  team:\n    max_incidents_per_month: 200\n"), 0o600))

	plans, err = LoadPlans(path)
	require.NoError(t, err)
	assert.Equal(t, 10, *plans.LimitsFor("free").MaxIncidentsPerMonth)
	assert.Equal(t, 200, *plans.LimitsFor("team").MaxIncidentsPerMonth)
	assert.Equal(t, 1000, *plans.LimitsFor("pro").MaxIncidentsPerMonth)
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
