package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bloom-payments/internal/config"
	"bloom-payments/internal/db"
	"bloom-payments/internal/repository/postgres"
	"bloom-payments/internal/service/maintenance"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var Version = "dev"

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("[BLOOMCTL] No .env file found, relying on system env vars")
	}

	rootCmd := &cobra.Command{
		Use:     "bloomctl",
		Short:   "Operator tooling for the Bloom payments service",
		Version: Version,
	}
	rootCmd.AddCommand(maintenanceCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func maintenanceCmd() *cobra.Command {
	var failed, completed time.Duration

	cmd := &cobra.Command{
		Use:   "maintenance",
		Short: "Transaction retention housekeeping",
	}
	cmd.PersistentFlags().DurationVar(&failed, "failed-retention", 0, "Delete FAILED transactions older than this (default FAILED_RETENTION)")
	cmd.PersistentFlags().DurationVar(&completed, "completed-retention", 0, "Archive COMPLETED transactions older than this (default COMPLETED_RETENTION)")

	run := func(job func(ctx context.Context, svc *maintenance.Service) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return withService(ctx, failed, completed, job)
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "cleanup",
		Short: "Delete old FAILED transactions",
		RunE: run(func(ctx context.Context, svc *maintenance.Service) error {
			n, err := svc.CleanupFailed(ctx, time.Now())
			if err != nil {
				return err
			}
			fmt.Printf("deleted %d failed transactions\n", n)
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "archive",
		Short: "Archive old COMPLETED transactions",
		RunE: run(func(ctx context.Context, svc *maintenance.Service) error {
			n, err := svc.ArchiveCompleted(ctx, time.Now())
			if err != nil {
				return err
			}
			fmt.Printf("archived %d completed transactions\n", n)
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run cleanup and archive once",
		RunE: run(func(ctx context.Context, svc *maintenance.Service) error {
			return svc.RunOnce(ctx)
		}),
	})

	return cmd
}

func withService(ctx context.Context, failed, completed time.Duration, job func(context.Context, *maintenance.Service) error) error {
	cfg := config.Load()
	if failed <= 0 {
		failed = cfg.FailedRetention
	}
	if completed <= 0 {
		completed = cfg.CompletedRetention
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync()

	pool, err := db.NewPostgresPool(ctx, db.PostgresConfig{URL: cfg.DatabaseURL, MaxConns: 2})
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	defer pool.Close()

	svc := maintenance.NewService(postgres.NewPaymentTransactionRepository(pool), maintenance.Retention{
		Failed:    failed,
		Completed: completed,
	}, logger)
	return job(ctx, svc)
}
