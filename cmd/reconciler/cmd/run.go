package cmd

import (
	"context"
	"fmt"
	"os"

	"claims-reconciliation-service/cmd/reconciler/config"
	"claims-reconciliation-service/internal/matcher"
	"claims-reconciliation-service/internal/reconciler"
	"claims-reconciliation-service/internal/reporter"
	"claims-reconciliation-service/internal/store"
	"claims-reconciliation-service/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flags for the run command
var (
	databaseURL  string
	currency     string
	createdBy    string
	dryRun       bool
	autoMigrate  bool
	outputFormat string
	outputFile   string
	logLevel     string
	logFormat    string
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one reconciliation pass over the unmapped backlog",
	Long: `Run loads the current unmapped payment and deduction records, matches
them according to the claim rules (claim-type symmetry, exact amount
equality, chronological ordering, case validity), and records each
successful match as an idempotent ledger entry.

This is a batch process: it runs once over the current backlog and exits.
Re-running on an unchanged dataset creates no additional ledger entries.

Examples:
  # Reconcile the USD backlog
  reconciler run

  # Preview without writing anything
  reconciler run --dry-run

  # Machine-readable summary
  reconciler run --output-format json --output-file report.json`,

	RunE: runReconciliation,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&databaseURL, "database-url", "", "database connection URL (or RECONCILER_DATABASE_URL)")
	runCmd.Flags().StringVarP(&currency, "currency", "c", "USD", "currency domain to reconcile")
	runCmd.Flags().StringVar(&createdBy, "created-by", "claims-reconciler", "creator tag stamped on ledger entries")
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "evaluate matches without writing anything")
	runCmd.Flags().BoolVar(&autoMigrate, "auto-migrate", false, "migrate the database schema on startup")
	runCmd.Flags().StringVarP(&outputFormat, "output-format", "f", "console", "output format: console, json")
	runCmd.Flags().StringVarP(&outputFile, "output-file", "o", "", "output file path (default: stdout)")
	runCmd.Flags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	runCmd.Flags().StringVar(&logFormat, "log-format", "text", "log format: text, json")

	viper.BindPFlag("database-url", runCmd.Flags().Lookup("database-url"))
	viper.BindPFlag("currency", runCmd.Flags().Lookup("currency"))
	viper.BindPFlag("created-by", runCmd.Flags().Lookup("created-by"))
	viper.BindPFlag("dry-run", runCmd.Flags().Lookup("dry-run"))
	viper.BindPFlag("auto-migrate", runCmd.Flags().Lookup("auto-migrate"))
	viper.BindPFlag("output-format", runCmd.Flags().Lookup("output-format"))
	viper.BindPFlag("log-level", runCmd.Flags().Lookup("log-level"))
	viper.BindPFlag("log-format", runCmd.Flags().Lookup("log-format"))
}

func runReconciliation(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if verbose && cfg.LogLevel != string(logger.DebugLevel) {
		cfg.LogLevel = string(logger.DebugLevel)
	}

	log, err := logger.NewLogger(cfg.LoggerConfig())
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.StoreConfig())
	if err != nil {
		return err
	}

	payments, err := st.UnmappedPayments(ctx, cfg.Currency)
	if err != nil {
		return err
	}

	deductions, err := st.UnmappedDeductions(ctx, cfg.Currency)
	if err != nil {
		return err
	}

	log.WithFields(logger.Fields{
		"currency":   cfg.Currency,
		"payments":   len(payments),
		"deductions": len(deductions),
		"dry_run":    cfg.DryRun,
	}).Info("loaded unmapped backlog")

	resolver, err := reconciler.BuildPrefetchedResolver(ctx, st, deductions)
	if err != nil {
		return err
	}

	var writer reconciler.LedgerWriter
	if cfg.DryRun {
		writer = reconciler.NewDryRunLedgerWriter(resolver)
	} else {
		writer = reconciler.NewStoreLedgerWriter(st, resolver, cfg.CreatedBy, log)
	}

	index := matcher.BuildDeductionIndex(deductions)
	engine := reconciler.NewEngine(writer, log)

	report, err := engine.Run(ctx, payments, index)
	if err != nil {
		return err
	}

	generator, err := reporter.NewGenerator(cfg.ReporterConfig())
	if err != nil {
		return err
	}

	output := os.Stdout
	if outputFile != "" {
		output, err = os.Create(outputFile)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer output.Close()
	}

	return generator.Write(report, output)
}
