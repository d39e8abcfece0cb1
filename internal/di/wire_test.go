package di

import (
	"context"
	"testing"
	"time"

	"github.com/aristath/metrics-updater/internal/config"
	"github.com/aristath/metrics-updater/internal/scheduler"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		DataDir:        t.TempDir(),
		SpreadsheetID:  "sheet-1",
		MetricsSheet:   "Financial Metrics",
		BlacklistSheet: "Blacklist",

		BatchSize:   50,
		BatchPause:  100 * time.Millisecond,
		MaxFailures: 5,
		StaleAfter:  24 * time.Hour,

		YahooTimeout: 5 * time.Second,

		RefreshSchedule:       "0 0 */6 * * *",
		CleanupSchedule:       "0 30 3 * * *",
		BackupSchedule:        "@daily",
		MaintenanceSchedule:   "0 0 4 * * SUN",
		DatabaseCheckSchedule: "0 15 * * * *",

		HistoryRetentionDays: 90,
		R2:                   &config.R2Config{RetentionDays: 30},
	}
}

func TestWire(t *testing.T) {
	cfg := testConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	container, jobs, err := Wire(ctx, cfg, zerolog.Nop(), option.WithoutAuthentication())
	require.NoError(t, err)
	defer container.Close()

	assert.NotNil(t, container.RunsRepo)
	assert.NotNil(t, container.ClientDataRepo)
	assert.NotNil(t, container.SheetsClient)
	assert.NotNil(t, container.YahooClient)
	assert.NotNil(t, container.ISINResolver)
	assert.NotNil(t, container.Updater)
	assert.NotNil(t, container.BackupService)
	assert.Nil(t, container.R2Client)
	assert.False(t, container.BackupService.UploadEnabled())

	assert.NotNil(t, jobs.Refresh)
	assert.NotNil(t, jobs.Cleanup)
	assert.NotNil(t, jobs.CheckDatabases)
	assert.NotNil(t, jobs.Maintenance)
	assert.Nil(t, jobs.Backup)

	s := scheduler.New(zerolog.Nop())
	require.NoError(t, ScheduleJobs(s, jobs, cfg))

	names := make([]string, 0)
	for _, info := range s.Jobs() {
		names = append(names, info.Name)
	}
	assert.ElementsMatch(t, []string{
		"metrics_refresh",
		"isin_cache_cleanup",
		"check_databases",
		"maintenance",
	}, names)
}

func TestWire_WithR2(t *testing.T) {
	cfg := testConfig(t)
	cfg.R2 = &config.R2Config{
		AccountID:       "account",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
		Bucket:          "backups",
		RetentionDays:   30,
	}

	container, jobs, err := Wire(context.Background(), cfg, zerolog.Nop(), option.WithoutAuthentication())
	require.NoError(t, err)
	defer container.Close()

	assert.NotNil(t, container.R2Client)
	assert.True(t, container.BackupService.UploadEnabled())
	require.NotNil(t, jobs.Backup)

	s := scheduler.New(zerolog.Nop())
	require.NoError(t, ScheduleJobs(s, jobs, cfg))
	assert.Len(t, s.Jobs(), 5)
}

func TestWire_MissingSpreadsheetID(t *testing.T) {
	cfg := testConfig(t)
	cfg.SpreadsheetID = ""

	container, jobs, err := Wire(context.Background(), cfg, zerolog.Nop(), option.WithoutAuthentication())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "spreadsheet ID is required")
	assert.Nil(t, container)
	assert.Nil(t, jobs)
}

func TestScheduleJobs_InvalidSchedule(t *testing.T) {
	cfg := testConfig(t)
	container, jobs, err := Wire(context.Background(), cfg, zerolog.Nop(), option.WithoutAuthentication())
	require.NoError(t, err)
	defer container.Close()

	cfg.MaintenanceSchedule = "not a schedule"
	err = ScheduleJobs(scheduler.New(zerolog.Nop()), jobs, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maintenance")
}

func TestRegisterJobs_RequiresServices(t *testing.T) {
	_, err := RegisterJobs(context.Background(), nil, testConfig(t), zerolog.Nop())
	assert.Error(t, err)

	_, err = RegisterJobs(context.Background(), &Container{}, testConfig(t), zerolog.Nop())
	assert.Error(t, err)
}
