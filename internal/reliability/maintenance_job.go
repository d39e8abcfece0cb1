package reliability

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/aristath/metrics-updater/internal/database"
)

// Disk space thresholds
const (
	criticalFreeBytes = 500 * 1024 * 1024
	warnFreeBytes     = 5 * 1024 * 1024 * 1024
)

// HistoryPruner removes run history older than a cutoff
type HistoryPruner interface {
	DeleteOlderThan(cutoff time.Time) (int64, error)
}

// MaintenanceJob prunes run history, checkpoints and vacuums the databases,
// and checks free disk space
type MaintenanceJob struct {
	databases     map[string]*database.DB
	history       HistoryPruner
	retentionDays int
	dataDir       string
	now           func() time.Time
	diskUsage     func(path string) (*disk.UsageStat, error)
	log           zerolog.Logger
}

// NewMaintenanceJob creates a new maintenance job. retentionDays <= 0 keeps
// history forever.
func NewMaintenanceJob(
	databases map[string]*database.DB,
	history HistoryPruner,
	retentionDays int,
	dataDir string,
	log zerolog.Logger,
) *MaintenanceJob {
	return &MaintenanceJob{
		databases:     databases,
		history:       history,
		retentionDays: retentionDays,
		dataDir:       dataDir,
		now:           time.Now,
		diskUsage:     disk.Usage,
		log:           log.With().Str("job", "maintenance").Logger(),
	}
}

// Name returns the job name for scheduler
func (j *MaintenanceJob) Name() string {
	return "maintenance"
}

// Run executes the maintenance job. Only a critically full disk fails it.
func (j *MaintenanceJob) Run() error {
	j.log.Info().Msg("Starting maintenance")
	startTime := time.Now()

	if j.history != nil && j.retentionDays > 0 {
		cutoff := j.now().AddDate(0, 0, -j.retentionDays)
		deleted, err := j.history.DeleteOlderThan(cutoff)
		if err != nil {
			j.log.Error().Err(err).Msg("Failed to prune run history")
		} else if deleted > 0 {
			j.log.Info().Int64("deleted", deleted).Time("cutoff", cutoff).Msg("Pruned run history")
		}
	}

	for name, db := range j.databases {
		if db == nil {
			continue
		}

		if err := db.Checkpoint(); err != nil {
			// Not critical
			j.log.Warn().Err(err).Str("database", name).Msg("WAL checkpoint failed")
		}

		if err := j.vacuumDatabase(db); err != nil {
			j.log.Error().Err(err).Str("database", name).Msg("VACUUM failed")
		}
	}

	if err := j.checkDiskSpace(); err != nil {
		return err
	}

	j.log.Info().
		Dur("duration_ms", time.Since(startTime)).
		Msg("Maintenance completed")

	return nil
}

func (j *MaintenanceJob) vacuumDatabase(db *database.DB) error {
	before, err := db.Stats()
	if err != nil {
		return err
	}

	if err := db.Vacuum(); err != nil {
		return err
	}

	after, err := db.Stats()
	if err != nil {
		return err
	}

	j.log.Debug().
		Str("database", db.Name()).
		Int64("pages_before", before.PageCount).
		Int64("pages_after", after.PageCount).
		Int64("page_size", after.PageSize).
		Msg("VACUUM completed")
	return nil
}

func (j *MaintenanceJob) checkDiskSpace() error {
	usage, err := j.diskUsage(j.dataDir)
	if err != nil {
		j.log.Warn().Err(err).Str("path", j.dataDir).Msg("Failed to read disk usage")
		return nil
	}

	freeGB := float64(usage.Free) / 1e9
	switch {
	case usage.Free < criticalFreeBytes:
		j.log.Error().Float64("free_gb", freeGB).Msg("Insufficient disk space")
		return fmt.Errorf("only %.2f GB free in %s", freeGB, j.dataDir)
	case usage.Free < warnFreeBytes:
		j.log.Warn().Float64("free_gb", freeGB).Msg("Disk space running low")
	default:
		j.log.Debug().Float64("free_gb", freeGB).Msg("Disk space check")
	}
	return nil
}
