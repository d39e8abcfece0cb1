package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("METRICS_DATA_DIR", dir)
	t.Setenv("SPREADSHEET_ID", "sheet-123")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, "sheet-123", cfg.SpreadsheetID)
	assert.Equal(t, "creds.json", cfg.CredentialsPath)
	assert.Equal(t, "Financial Metrics", cfg.MetricsSheet)
	assert.Equal(t, "Blacklist", cfg.BlacklistSheet)
	assert.Equal(t, 50, cfg.BatchSize)
	assert.Equal(t, 100*time.Millisecond, cfg.BatchPause)
	assert.Equal(t, 5, cfg.MaxFailures)
	assert.Equal(t, 24*time.Hour, cfg.StaleAfter)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "0 0 */6 * * *", cfg.RefreshSchedule)
	assert.Equal(t, "0 0 4 * * SUN", cfg.MaintenanceSchedule)
	assert.Equal(t, 90, cfg.HistoryRetentionDays)
	assert.False(t, cfg.R2.Enabled())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("METRICS_DATA_DIR", t.TempDir())
	t.Setenv("SPREADSHEET_ID", "abc")
	t.Setenv("BATCH_SIZE", "10")
	t.Setenv("BATCH_PAUSE", "2s")
	t.Setenv("STALE_AFTER", "12h")
	t.Setenv("DEV_MODE", "true")
	t.Setenv("R2_ACCOUNT_ID", "acct")
	t.Setenv("R2_ACCESS_KEY_ID", "key")
	t.Setenv("R2_SECRET_ACCESS_KEY", "secret")
	t.Setenv("R2_BUCKET", "bucket")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.BatchSize)
	assert.Equal(t, 2*time.Second, cfg.BatchPause)
	assert.Equal(t, 12*time.Hour, cfg.StaleAfter)
	assert.True(t, cfg.DevMode)
	assert.True(t, cfg.R2.Enabled())
}

func TestLoad_InvalidValuesFallBackToDefaults(t *testing.T) {
	t.Setenv("METRICS_DATA_DIR", t.TempDir())
	t.Setenv("SPREADSHEET_ID", "abc")
	t.Setenv("BATCH_SIZE", "lots")
	t.Setenv("BATCH_PAUSE", "soon")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.BatchSize)
	assert.Equal(t, 100*time.Millisecond, cfg.BatchPause)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{SpreadsheetID: "x", BatchSize: 50, MaxFailures: 5, StaleAfter: time.Hour}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "missing spreadsheet", mutate: func(c *Config) { c.SpreadsheetID = "" }, wantErr: "SPREADSHEET_ID"},
		{name: "zero batch size", mutate: func(c *Config) { c.BatchSize = 0 }, wantErr: "BATCH_SIZE"},
		{name: "zero max failures", mutate: func(c *Config) { c.MaxFailures = 0 }, wantErr: "MAX_FAILURES"},
		{name: "zero stale window", mutate: func(c *Config) { c.StaleAfter = 0 }, wantErr: "STALE_AFTER"},
		{name: "negative pause", mutate: func(c *Config) { c.BatchPause = -time.Second }, wantErr: "BATCH_PAUSE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestR2Config_EnabledNil(t *testing.T) {
	var c *R2Config
	assert.False(t, c.Enabled())
}
