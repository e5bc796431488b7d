package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/clinic/clinic/internal/config"
	"github.com/clinic/clinic/internal/domain/directory"
	"github.com/clinic/clinic/internal/platform/db"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "clinic-server",
		Short: "Clinic staff roster API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(branchCmd())
	rootCmd.AddCommand(doctorCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the roster API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

// openPool loads config and connects. Callers close the pool.
func openPool(ctx context.Context) (*config.Config, *pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	pool, err := db.NewPool(ctx, db.PoolOptions{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
	if err != nil {
		return nil, nil, err
	}
	return cfg, pool, nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	withMigrator := func(fn func(ctx context.Context, m *db.Migrator) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			m, err := db.NewMigrator(pool)
			if err != nil {
				return err
			}
			defer m.Close()
			return fn(ctx, m)
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: withMigrator(func(ctx context.Context, m *db.Migrator) error {
			count, err := m.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		RunE: withMigrator(func(ctx context.Context, m *db.Migrator) error {
			if err := m.Down(ctx); err != nil {
				return fmt.Errorf("rollback failed: %w", err)
			}
			version, err := m.Version(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Rolled back. Schema is now at version %d.\n", version)
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: withMigrator(func(ctx context.Context, m *db.Migrator) error {
			statuses, err := m.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printMigrationStatus(os.Stdout, statuses)
			return nil
		}),
	})

	return cmd
}

func branchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "branch",
		Short: "Manage clinic branches",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Register a branch",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			if name == "" {
				return fmt.Errorf("--name is required")
			}

			ctx := cmd.Context()
			_, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := directory.NewService(directory.NewBranchRepoPG(pool), directory.NewDoctorRepoPG(pool))
			b := &directory.Branch{Name: name}
			if err := svc.CreateBranch(ctx, b); err != nil {
				return err
			}
			fmt.Printf("Created branch %q with id %s\n", b.Name, b.ID)
			return nil
		},
	}
	createCmd.Flags().String("name", "", "Branch display name")

	cmd.AddCommand(createCmd)
	return cmd
}

func doctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Manage doctors",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Register a doctor",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			specialty, _ := cmd.Flags().GetString("specialty")
			if name == "" {
				return fmt.Errorf("--name is required")
			}

			ctx := cmd.Context()
			_, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := directory.NewService(directory.NewBranchRepoPG(pool), directory.NewDoctorRepoPG(pool))
			d := &directory.Doctor{Name: name}
			if specialty != "" {
				d.Specialty = &specialty
			}
			if err := svc.CreateDoctor(ctx, d); err != nil {
				return err
			}
			fmt.Printf("Created doctor %q with id %s\n", d.Name, d.ID)
			return nil
		},
	}
	createCmd.Flags().String("name", "", "Doctor display name")
	createCmd.Flags().String("specialty", "", "Optional specialty")

	cmd.AddCommand(createCmd)
	return cmd
}

func printMigrationStatus(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format(time.DateTime)
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}
