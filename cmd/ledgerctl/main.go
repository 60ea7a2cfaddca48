// Command ledgerctl prints ledger reports from the configured database.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	ledgerapp "github.com/ledgerbook/backend/internal/application/ledger"
	"github.com/ledgerbook/backend/internal/domain/ledger"
	"github.com/ledgerbook/backend/internal/infrastructure/config"
	"github.com/ledgerbook/backend/internal/infrastructure/lock"
	"github.com/ledgerbook/backend/internal/infrastructure/logger"
	"github.com/ledgerbook/backend/internal/infrastructure/persistence"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var version = "dev"

// services is what the report commands need
type services struct {
	reports  *ledgerapp.ReportService
	payments *ledgerapp.PaymentService
	bills    *ledgerapp.BillService
}

// opener builds the services; tests swap it for an in-memory store
type opener func(ctx context.Context) (*services, func(), error)

type rootOptions struct {
	output string
	open   opener
}

func main() {
	if err := newRootCmd(openDatabase).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(open opener) *cobra.Command {
	opts := &rootOptions{open: open}

	root := &cobra.Command{
		Use:     "ledgerctl",
		Short:   "Ledger reports from the command line",
		Version: version,
		Long: `ledgerctl reads bills and payments from the configured database and
prints party summaries, aging buckets and available advance.

Configuration is read the same way as the server: config.toml, .env and
LEDGER_* environment variables.`,
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			switch opts.output {
			case outputTable, outputJSON:
				return nil
			default:
				return fmt.Errorf("unknown output %q (table, json)", opts.output)
			}
		},
	}
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", outputTable, "Output format: table, json")

	root.AddCommand(
		newSummaryCmd(opts),
		newAgingCmd(opts),
		newAdvanceCmd(opts),
	)
	return root
}

// openDatabase connects to the configured postgres or sqlite database
func openDatabase(ctx context.Context) (*services, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	log, err := logger.New(logger.Config{Level: "warn", Format: "console", Output: "stderr"})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	db, err := persistence.NewDatabase(&cfg.Database,
		persistence.WithGormLogger(logger.NewGormLogger(log, logger.MapGormLogLevel("warn"))))
	if err != nil {
		return nil, nil, err
	}
	if cfg.Database.Driver == config.DriverSQLite {
		if err := db.AutoMigrate(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
	}

	store := persistence.NewGormStore(db.DB)
	svc := newServices(store, store, log, time.Month(cfg.Ledger.FYStartMonth))
	return svc, func() {
		if err := db.Close(); err != nil {
			log.Warn("Error closing database", zap.Error(err))
		}
		_ = log.Sync()
	}, nil
}

func newServices(store ledger.Store, txm ledger.TransactionManager, log *zap.Logger, fyStart time.Month, extra ...ledgerapp.Option) *services {
	opts := append([]ledgerapp.Option{ledgerapp.WithFinancialYearStart(fyStart)}, extra...)
	payments := ledgerapp.NewPaymentService(store, txm, lock.NewLocalPartyLocker(5*time.Second), log, opts...)
	return &services{
		reports:  ledgerapp.NewReportService(store, log, opts...),
		payments: payments,
		bills:    ledgerapp.NewBillService(store, payments, log, opts...),
	}
}

// run opens the services, runs fn and closes them again
func (o *rootOptions) run(cmd *cobra.Command, fn func(ctx context.Context, svc *services, out io.Writer) error) error {
	ctx := cmd.Context()
	svc, closeFn, err := o.open(ctx)
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(ctx, svc, cmd.OutOrStdout())
}
