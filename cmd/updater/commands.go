package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aristath/metrics-updater/internal/config"
	"github.com/aristath/metrics-updater/internal/di"
	"github.com/aristath/metrics-updater/internal/modules/runs"
	"github.com/aristath/metrics-updater/internal/scheduler"
	"github.com/aristath/metrics-updater/internal/server"
	"github.com/aristath/metrics-updater/internal/version"
	"github.com/aristath/metrics-updater/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

var jsonOutput bool

var rootCmd = &cobra.Command{
	Use:           "updater",
	Short:         "Refresh financial metrics in the metrics spreadsheet",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print results as JSON")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(candidatesCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(versionCmd)
}

// setup loads configuration and builds the logger. Configuration errors are
// logged with a fallback logger before being returned.
func setup() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
			Output: os.Stderr,
		})
		fallbackLog.Error().Err(err).Msg("Failed to load configuration")
		return nil, fallbackLog, err
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: true,
		Output: os.Stderr,
	})
	logger.SetGlobalLogger(log)
	return cfg, log, nil
}

// --- run ---

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one refresh cycle and print its report",
	Long: `Run one refresh cycle and print its report.

The command exits with status 0 when the cycle completes, finds nothing to
update, or stops early on a provider rate limit. Only a failed cycle is an
error.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		container, jobs, err := di.Wire(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer container.Close()

		report, err := jobs.Refresh.Trigger(ctx, runs.TriggerManual)
		if report != nil {
			if perr := printReport(cmd.OutOrStdout(), report, jsonOutput); perr != nil {
				return perr
			}
		}
		return err
	},
}

// --- candidates ---

var candidatesCmd = &cobra.Command{
	Use:   "candidates",
	Short: "Print the ordered work list without fetching anything",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}

		container, _, err := di.Wire(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}
		defer container.Close()

		candidates, err := container.Updater.Candidates(cmd.Context())
		if err != nil {
			return err
		}
		return printCandidates(cmd.OutOrStdout(), candidates, jsonOutput)
	},
}

// --- serve ---

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run scheduled jobs and the status API until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}

		log.Info().Str("version", version.Version).Msg("Starting metrics updater")

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		container, jobs, err := di.Wire(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer container.Close()

		sched := scheduler.New(log)
		if err := di.ScheduleJobs(sched, jobs, cfg); err != nil {
			return err
		}
		sched.Start()

		srv := server.New(server.Config{
			Log:       log,
			Port:      cfg.Port,
			DevMode:   cfg.DevMode,
			DataDir:   cfg.DataDir,
			Databases: container.Databases(),
			History:   container.RunsRepo,
			Refresh:   jobs.Refresh,
			Updater:   container.Updater,
			Jobs:      sched,
			Backups:   container.BackupService,
		})

		serveErr := make(chan error, 1)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
			}
			close(serveErr)
		}()

		log.Info().Int("port", cfg.Port).Msg("Server started successfully")

		select {
		case <-ctx.Done():
			log.Info().Msg("Shutting down...")
		case err := <-serveErr:
			if err != nil {
				log.Error().Err(err).Msg("HTTP server failed")
			}
			stop()
			sched.Stop()
			return err
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		sched.Stop()

		log.Info().Msg("Server stopped")
		return nil
	},
}

// --- backup ---

var backupOutputDir string

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Back up the local databases",
	Long: `Back up the local databases.

Without --output the archive is uploaded to R2, which requires the R2_*
settings. With --output the archive is written to that directory instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}

		container, _, err := di.Wire(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}
		defer container.Close()

		if backupOutputDir != "" {
			path, metadata, err := container.BackupService.CreateArchive(cmd.Context(), backupOutputDir)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%d databases)\n", path, len(metadata.Databases))
			return nil
		}

		if !container.BackupService.UploadEnabled() {
			return fmt.Errorf("R2 backups are not configured, use --output for a local archive")
		}
		if err := container.BackupService.CreateAndUploadBackup(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "backup uploaded")
		return nil
	},
}

func init() {
	backupCmd.Flags().StringVar(&backupOutputDir, "output", "", "write the archive to this directory instead of uploading")
}

// --- version ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), map[string]string{
				"version":    version.Version,
				"build_time": version.BuildTime,
				"git_commit": version.GitCommit,
			})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "updater %s (commit %s, built %s)\n",
			version.Version, version.GitCommit, version.BuildTime)
		return nil
	},
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
