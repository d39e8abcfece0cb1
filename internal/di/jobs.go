package di

import (
	"context"
	"fmt"

	"github.com/aristath/metrics-updater/internal/clientdata"
	"github.com/aristath/metrics-updater/internal/config"
	"github.com/aristath/metrics-updater/internal/reliability"
	"github.com/aristath/metrics-updater/internal/scheduler"
	"github.com/rs/zerolog"
)

// RegisterJobs creates the background jobs. ctx bounds the jobs' own work
// and should be cancelled on shutdown.
func RegisterJobs(ctx context.Context, container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	if container == nil {
		return nil, fmt.Errorf("container cannot be nil")
	}
	if container.Updater == nil || container.RunsRepo == nil {
		return nil, fmt.Errorf("services must be initialized before jobs")
	}

	instances := &JobInstances{
		Refresh:        scheduler.NewRefreshJob(ctx, container.Updater, container.RunsRepo, log),
		Cleanup:        clientdata.NewCleanupJob(container.ClientDataRepo, clientdata.DefaultStaleGrace, log),
		CheckDatabases: scheduler.NewCheckDatabasesJob(container.Databases(), log),
		Maintenance: reliability.NewMaintenanceJob(
			container.Databases(),
			container.RunsRepo,
			cfg.HistoryRetentionDays,
			cfg.DataDir,
			log,
		),
	}

	if container.BackupService != nil && container.BackupService.UploadEnabled() {
		instances.Backup = reliability.NewBackupJob(ctx, container.BackupService, cfg.R2.RetentionDays, log)
	}

	return instances, nil
}

// ScheduleJobs adds every job to the scheduler on its configured schedule
func ScheduleJobs(s *scheduler.Scheduler, jobs *JobInstances, cfg *config.Config) error {
	entries := []struct {
		schedule string
		job      scheduler.Job
	}{
		{cfg.RefreshSchedule, jobs.Refresh},
		{cfg.CleanupSchedule, jobs.Cleanup},
		{cfg.DatabaseCheckSchedule, jobs.CheckDatabases},
		{cfg.MaintenanceSchedule, jobs.Maintenance},
	}
	if jobs.Backup != nil {
		entries = append(entries, struct {
			schedule string
			job      scheduler.Job
		}{cfg.BackupSchedule, jobs.Backup})
	}

	for _, e := range entries {
		if err := s.AddJob(e.schedule, e.job); err != nil {
			return err
		}
	}
	return nil
}
