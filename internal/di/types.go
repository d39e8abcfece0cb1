// Package di wires the updater's databases, clients, services and jobs.
package di

import (
	"errors"

	"github.com/aristath/metrics-updater/internal/clientdata"
	"github.com/aristath/metrics-updater/internal/clients/sheets"
	"github.com/aristath/metrics-updater/internal/clients/yahoo"
	"github.com/aristath/metrics-updater/internal/database"
	"github.com/aristath/metrics-updater/internal/modules/metrics"
	"github.com/aristath/metrics-updater/internal/modules/runs"
	"github.com/aristath/metrics-updater/internal/reliability"
	"github.com/aristath/metrics-updater/internal/scheduler"
)

// Container holds all application dependencies.
// It is created by Wire() and handed to the CLI commands and the HTTP server.
type Container struct {
	// Databases
	HistoryDB    *database.DB
	ClientDataDB *database.DB

	// Repositories
	RunsRepo       *runs.Repository
	ClientDataRepo *clientdata.Repository

	// Clients
	SheetsClient *sheets.Client
	YahooClient  *yahoo.Client
	ISINResolver *yahoo.ISINResolver
	R2Client     *reliability.R2Client // nil when R2 is not configured

	// Services
	Updater       *metrics.Updater
	BackupService *reliability.BackupService
}

// JobInstances holds the background jobs so they can be triggered manually
type JobInstances struct {
	Refresh        *scheduler.RefreshJob
	Cleanup        *clientdata.CleanupJob
	CheckDatabases *scheduler.CheckDatabasesJob
	Maintenance    *reliability.MaintenanceJob
	Backup         *reliability.BackupJob // nil when R2 is not configured
}

// Databases returns the open databases keyed by name
func (c *Container) Databases() map[string]*database.DB {
	dbs := make(map[string]*database.DB, 2)
	if c.HistoryDB != nil {
		dbs[c.HistoryDB.Name()] = c.HistoryDB
	}
	if c.ClientDataDB != nil {
		dbs[c.ClientDataDB.Name()] = c.ClientDataDB
	}
	return dbs
}

// Close releases the Yahoo transport and closes every open database
func (c *Container) Close() error {
	if c.YahooClient != nil {
		c.YahooClient.Close()
	}

	var errs []error
	for _, db := range []*database.DB{c.HistoryDB, c.ClientDataDB} {
		if db == nil {
			continue
		}
		if err := db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
