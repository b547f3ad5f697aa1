package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"rental-obligations/internal/clock"
	"rental-obligations/internal/config"
	"rental-obligations/internal/jobs"
	"rental-obligations/internal/logger"
	"rental-obligations/internal/metrics"
	"rental-obligations/internal/repository/postgres"
	"rental-obligations/internal/scheduler"
	"rental-obligations/internal/service"
)

const shutdownTimeout = 30 * time.Second

var jobNames = []string{
	jobs.JobReminderScan,
	jobs.JobLateFeeScan,
	jobs.JobCleanupSweep,
	jobs.JobScheduledDispatch,
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the cron scheduler and the metrics listener until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := setup(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer app.db.Close()

			cronScheduler, err := scheduler.New(app.runner)
			if err != nil {
				return err
			}

			server := &http.Server{
				Addr:              app.cfg.GetServerAddress(),
				Handler:           metrics.NewRouter(app.db),
				ReadHeaderTimeout: 5 * time.Second,
			}
			go func() {
				logger.Info("Metrics listener started", "address", server.Addr)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("Metrics listener failed", "error", err)
				}
			}()

			cronScheduler.Start()
			logger.Info("Cronjob scheduler is running. Press Ctrl+C to stop.")

			// Wait for interrupt signal
			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			<-sigChan

			// Graceful shutdown
			logger.Info("Shutting down cronjob scheduler...")
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			cronScheduler.Stop(ctx)
			if err := server.Shutdown(ctx); err != nil {
				logger.Warn("Metrics listener shutdown", "error", err)
			}
			logger.Info("Cronjob scheduler stopped. Goodbye!")
			return nil
		},
	}
}

func runCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:       "run <job|all>",
		Short:     "Run one job once and print its summary",
		Long:      "Run one job once and print its summary. Jobs: " + strings.Join(jobNames, ", ") + ", all",
		Args:      cobra.ExactArgs(1),
		ValidArgs: append(jobNames, "all"),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := setup(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer app.db.Close()

			var summaries []jobs.RunSummary
			if args[0] == "all" {
				summaries = app.runner.RunAll(cmd.Context())
			} else {
				summary, err := app.runner.Run(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("%w (available: %s, all)", err, strings.Join(jobNames, ", "))
				}
				summaries = append(summaries, summary)
			}

			failed := false
			for _, s := range summaries {
				fmt.Fprintln(cmd.OutOrStdout(), s.String())
				if s.Err != nil {
					failed = true
				}
			}
			if failed {
				return errors.New("one or more jobs aborted")
			}
			return nil
		},
	}
}

func migrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the tables and indexes the jobs rely on",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, err := openDatabase(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := postgres.Migrate(cmd.Context(), db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			logger.Info("Schema is up to date", "database", cfg.Database.Database)
			return nil
		},
	}
}

type application struct {
	cfg    *config.Config
	db     *sql.DB
	runner *jobs.JobRunner
}

func setup(ctx context.Context, configPath string) (*application, error) {
	cfg, db, err := openDatabase(ctx, configPath)
	if err != nil {
		return nil, err
	}

	sender, err := newSender(cfg)
	if err != nil {
		db.Close()
		return nil, err
	}

	// Initialize Repositories
	store := postgres.NewStore(db)

	// Initialize Services
	jobServices := &jobs.Services{
		Email:       service.NewEmailService(sender, cfg.Email.RatePerSecond),
		Preferences: service.NewPreferenceService(store.PreferenceRepository, cfg.Reminder.DefaultOffsets),
	}

	repos := jobs.Repositories{
		Rentals:       store.RentalRepository,
		Invoices:      store.InvoiceRepository,
		Notifications: store.NotificationRepository,
		Users:         store.UserRepository,
	}

	// Initialize Job Runner
	runner := jobs.NewJobRunner(repos, jobServices, cfg, clock.Real())
	return &application{cfg: cfg, db: db, runner: runner}, nil
}

func openDatabase(ctx context.Context, configPath string) (*config.Config, *sql.DB, error) {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting rental obligation jobs...", "log_level", cfg.Log.Level, "email_provider", cfg.Email.Provider)

	// Initialize Database
	logger.Info("Connecting to database...", "host", cfg.Database.Host, "port", cfg.Database.Port)
	db, err := sql.Open("postgres", cfg.GetDatabaseConnectionString())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test database connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}
	logger.Info("Database connection established")
	return cfg, db, nil
}

func newSender(cfg *config.Config) (service.Sender, error) {
	switch cfg.Email.Provider {
	case "smtp":
		return service.NewSMTPSender(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.User, cfg.SMTP.Password, cfg.Email.From), nil
	case "sendgrid":
		return service.NewSendGridSender(cfg.SendGrid.APIKey, cfg.Email.From, cfg.Email.FromName), nil
	case "log":
		return service.NewLogSender(), nil
	}
	return nil, fmt.Errorf("unknown email provider: %q", cfg.Email.Provider)
}
