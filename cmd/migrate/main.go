package main

import (
	"database/sql"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ledgerbook/backend/internal/infrastructure/config"
	"github.com/ledgerbook/backend/internal/infrastructure/logger"
	"github.com/ledgerbook/backend/internal/infrastructure/migration"
	"github.com/ledgerbook/backend/migrations"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const defaultMigrationsPath = "migrations"

// options are the persistent flags shared by every command
type options struct {
	path     string
	logLevel string
	log      *zap.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "migrate",
		Short: "Ledger database migration tool",
		Long: `Applies and manages the postgres schema migrations of the ledger.

Migrations are embedded in the binary. Pass --path to work from a directory
on disk instead; create always writes to disk.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log, err := logger.New(logger.Config{
				Level:      opts.logLevel,
				Format:     "console",
				Output:     "stdout",
				TimeFormat: "2006-01-02 15:04:05",
			})
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			opts.log = log
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if opts.log != nil {
				_ = opts.log.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&opts.path, "path", "", "Migrations directory (default: embedded migrations)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "Log level: debug, info, warn, error")

	root.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: withMigrator(opts, func(m *migration.Migrator, _ []string) error {
				return m.Up()
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back all migrations",
			Args:  cobra.NoArgs,
			RunE: withMigrator(opts, func(m *migration.Migrator, _ []string) error {
				return m.Down()
			}),
		},
		&cobra.Command{
			Use:     "steps <n>",
			Short:   "Apply n migrations (positive=up, negative=down)",
			Example: "  migrate steps -- -1",
			Args:    cobra.ExactArgs(1),
			RunE: withMigrator(opts, func(m *migration.Migrator, args []string) error {
				n, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid step count %q", args[0])
				}
				return m.Steps(n)
			}),
		},
		&cobra.Command{
			Use:   "version",
			Short: "Show the current migration version",
			Args:  cobra.NoArgs,
			RunE: withMigrator(opts, func(m *migration.Migrator, _ []string) error {
				version, dirty, err := m.Version()
				if err != nil {
					return err
				}
				if version == 0 {
					opts.log.Info("No migrations applied")
					return nil
				}
				opts.log.Info("Current migration version",
					zap.Uint("version", version),
					zap.Bool("dirty", dirty),
				)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "force <version>",
			Short: "Force the recorded version without running migrations",
			Args:  cobra.ExactArgs(1),
			RunE: withMigrator(opts, func(m *migration.Migrator, args []string) error {
				version, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid version number %q", args[0])
				}
				opts.log.Warn("Forcing migration version - use with caution!")
				return m.Force(version)
			}),
		},
		newCreateCmd(opts),
		newListCmd(opts),
	)
	return root
}

func newCreateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:     "create <name> [description]",
		Short:   "Create a new migration file pair",
		Example: `  migrate create add_party_gstin "Add GSTIN to parties"`,
		Args:    cobra.RangeArgs(1, 2),
		RunE: func(_ *cobra.Command, args []string) error {
			dir := opts.path
			if dir == "" {
				dir = defaultMigrationsPath
			}
			description := ""
			if len(args) > 1 {
				description = args[1]
			}
			mf, err := migration.CreateMigration(dir, args[0], description)
			if err != nil {
				return fmt.Errorf("failed to create migration: %w", err)
			}
			opts.log.Info("Migration created successfully",
				zap.String("version", mf.Version),
				zap.String("up_file", mf.UpPath),
				zap.String("down_file", mf.DownPath),
			)
			return nil
		},
	}
}

func newListCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			names, err := migration.ListMigrations(source(opts))
			if err != nil {
				return fmt.Errorf("failed to list migrations: %w", err)
			}
			if len(names) == 0 {
				opts.log.Info("No migrations found")
				return nil
			}
			for _, n := range names {
				fmt.Fprintln(cmd.OutOrStdout(), "  -", n)
			}
			return nil
		},
	}
}

// source returns the migration files: the --path directory when given,
// the embedded set otherwise
func source(opts *options) fs.FS {
	if opts.path != "" {
		return os.DirFS(opts.path)
	}
	return migrations.FS
}

// withMigrator opens the configured postgres database and runs fn against
// a migrator over it
func withMigrator(opts *options, fn func(*migration.Migrator, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if cfg.Database.Driver != config.DriverPostgres {
			return fmt.Errorf("migrations target postgres, configured driver is %q", cfg.Database.Driver)
		}

		db, err := sql.Open("postgres", cfg.Database.DSN())
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()
		if err := db.PingContext(cmd.Context()); err != nil {
			return fmt.Errorf("failed to ping database: %w", err)
		}

		var m *migration.Migrator
		if opts.path != "" {
			dir, absErr := filepath.Abs(opts.path)
			if absErr != nil {
				return fmt.Errorf("failed to resolve migrations path: %w", absErr)
			}
			m, err = migration.NewFromPath(db, dir, opts.log)
		} else {
			m, err = migration.New(db, migrations.FS, opts.log)
		}
		if err != nil {
			return fmt.Errorf("failed to create migrator: %w", err)
		}
		defer m.Close()

		opts.log.Info("Running migration command",
			zap.String("command", cmd.Name()),
			zap.String("host", cfg.Database.Host),
			zap.String("database", cfg.Database.DBName),
		)
		return fn(m, args)
	}
}
