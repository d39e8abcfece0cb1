package di

import (
	"context"
	"fmt"

	"github.com/aristath/metrics-updater/internal/clientdata"
	"github.com/aristath/metrics-updater/internal/clients/sheets"
	"github.com/aristath/metrics-updater/internal/clients/yahoo"
	"github.com/aristath/metrics-updater/internal/config"
	"github.com/aristath/metrics-updater/internal/modules/metrics"
	"github.com/aristath/metrics-updater/internal/modules/runs"
	"github.com/aristath/metrics-updater/internal/reliability"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// InitializeServices creates repositories, clients and services on top of
// the already opened databases. sheetsOpts are passed through to the Sheets
// client (custom endpoint or HTTP client).
func InitializeServices(ctx context.Context, container *Container, cfg *config.Config, log zerolog.Logger, sheetsOpts ...option.ClientOption) error {
	if container == nil {
		return fmt.Errorf("container cannot be nil")
	}

	// Repositories
	container.RunsRepo = runs.NewRepository(container.HistoryDB.Conn(), log)
	container.ClientDataRepo = clientdata.NewRepository(container.ClientDataDB.Conn())

	// Market data provider
	container.ISINResolver = yahoo.NewISINResolver(container.ClientDataRepo, log)
	yahooClient, err := yahoo.NewClient(yahoo.Config{
		Timeout:  cfg.YahooTimeout,
		Resolver: container.ISINResolver,
		Log:      log,
	})
	if err != nil {
		return fmt.Errorf("failed to create yahoo client: %w", err)
	}
	container.YahooClient = yahooClient

	// Sheet store
	sheetsClient, err := sheets.NewClient(ctx, sheets.Config{
		SpreadsheetID:   cfg.SpreadsheetID,
		CredentialsPath: cfg.CredentialsPath,
		Options:         sheetsOpts,
		Log:             log,
	})
	if err != nil {
		return fmt.Errorf("failed to create sheets client: %w", err)
	}
	container.SheetsClient = sheetsClient

	container.Updater = metrics.NewUpdater(metrics.UpdaterConfig{
		Store:    sheetsClient,
		Provider: yahooClient,
		Layout: metrics.Layout{
			MetricsSheet:   cfg.MetricsSheet,
			BlacklistSheet: cfg.BlacklistSheet,
		},
		BatchSize:   cfg.BatchSize,
		BatchPause:  cfg.BatchPause,
		MaxFailures: cfg.MaxFailures,
		StaleAfter:  cfg.StaleAfter,
		Log:         log,
	})

	// Backups. The service is always available for local archives; uploads
	// need R2 credentials.
	var store reliability.ObjectStore
	if cfg.R2.Enabled() {
		r2Client, err := reliability.NewR2Client(ctx,
			cfg.R2.AccountID,
			cfg.R2.AccessKeyID,
			cfg.R2.SecretAccessKey,
			cfg.R2.Bucket,
			log,
		)
		if err != nil {
			return fmt.Errorf("failed to create R2 client: %w", err)
		}
		container.R2Client = r2Client
		store = r2Client
	} else {
		log.Info().Msg("R2 backups not configured, remote backups disabled")
	}
	container.BackupService = reliability.NewBackupService(container.Databases(), store, cfg.DataDir, log)

	log.Info().Msg("Services initialized")

	return nil
}
