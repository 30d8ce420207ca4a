package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/celloxen/intake/internal/config"
	"github.com/celloxen/intake/internal/platform/db"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "intake-server",
		Short: "Wellness clinic intake API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(reassessCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the intake API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx)
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			ctx := context.Background()
			client, cfg, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer client.Close()
			if dir == "" {
				dir = cfg.MigrationsDir
			}

			count, err := db.NewMigrator(client.Pool(), dir).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR)")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			ctx := context.Background()
			client, cfg, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer client.Close()
			if dir == "" {
				dir = cfg.MigrationsDir
			}

			statuses, err := db.NewMigrator(client.Pool(), dir).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.Drifted {
						status = "drifted"
					}
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR)")
	cmd.AddCommand(statusCmd)

	return cmd
}

// reassessCmd runs the reassessment jobs once, for cron-style deployments.
func reassessCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reassess",
		Short: "Run reassessment jobs",
	}

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "Move patients whose reassessment is due into REASSESSMENT",
		RunE: func(cmd *cobra.Command, args []string) error {
			clinic, _ := cmd.Flags().GetString("clinic")
			return runJob(func(ctx context.Context, a *app) error {
				n, err := a.coordinator.SweepDue(ctx, clinic)
				if err != nil {
					return err
				}
				fmt.Printf("Moved %d patient(s) to reassessment.\n", n)
				return nil
			})
		},
	}
	sweepCmd.Flags().String("clinic", "", "Clinic id (empty sweeps every clinic)")
	cmd.AddCommand(sweepCmd)

	remindCmd := &cobra.Command{
		Use:   "remind",
		Short: "Send pending reassessment reminders",
		RunE: func(cmd *cobra.Command, args []string) error {
			clinic, _ := cmd.Flags().GetString("clinic")
			return runJob(func(ctx context.Context, a *app) error {
				n, err := a.coordinator.SendReminders(ctx, clinic)
				if err != nil {
					return err
				}
				fmt.Printf("Sent %d reminder(s).\n", n)
				return nil
			})
		},
	}
	remindCmd.Flags().String("clinic", "", "Clinic id (empty covers every clinic)")
	cmd.AddCommand(remindCmd)

	return cmd
}

func openStore(ctx context.Context) (*db.Client, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	client, err := db.Open(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns, newLogger(cfg))
	if err != nil {
		return nil, nil, err
	}
	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("database unreachable: %w", err)
	}
	return client, cfg, nil
}

func runJob(fn func(ctx context.Context, a *app) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	ctx := context.Background()
	a, err := newApp(ctx, cfg, newLogger(cfg))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}
