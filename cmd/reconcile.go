package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"data-manager/core/config"
	"data-manager/core/database"
	"data-manager/core/logger"
	"data-manager/core/reconcile"
	"data-manager/core/schema"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	dryRunReconcile   bool
	yesConfirm        bool
	databaseReconcile string
)

// reconcileCmd synchronizes the physical schema of every configured
// database with the declarative cluster configuration.
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile database schemas against the cluster configuration",
	Long: `Reconcile diffs each configured database's live tables, columns and
indexes against the declarative cluster configuration and applies the
minimal safe set of mutations.

Resolutions that discard stored data (columns or tables present only in
the backend) are labeled DATA LOSS and require confirmation.

Examples:
  # Report only, mutate nothing
  data-manager reconcile --dry-run

  # Repair one database, with interactive confirmation
  data-manager reconcile --database jobs

  # Repair everything non-interactively
  data-manager reconcile --yes`,
	RunE: runReconcile,
}

func init() {
	reconcileCmd.Flags().BoolVar(&dryRunReconcile, "dry-run", false, "Report differences without mutating anything")
	reconcileCmd.Flags().BoolVar(&yesConfirm, "yes", false, "Auto-confirm destructive actions (non-interactive)")
	reconcileCmd.Flags().StringVar(&databaseReconcile, "database", "", "Reconcile only the named database")

	RootCmd.AddCommand(reconcileCmd)
}

func runReconcile(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	l, err := logger.New(&cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	l = logger.WithRunID(l)

	dbs, err := schema.LoadDatabases(cfg.Cluster)
	if err != nil {
		return fmt.Errorf("failed to load cluster configuration: %w", err)
	}

	if !dryRunReconcile && !confirmDestructiveAction() {
		l.Warn("Operation cancelled by user. No changes were made.")
		return nil
	}

	l.Info("Starting schema reconciliation",
		zap.Int("databases", len(dbs)),
		zap.Bool("dry_run", dryRunReconcile))

	total := reconcile.Diff{}
	failed := 0

	for _, spec := range dbs {
		if databaseReconcile != "" && !schema.SameName(spec.Name, databaseReconcile) {
			continue
		}
		log := l.With(zap.String("database", spec.Name))

		backend := database.New(cfg.Database, spec)
		if !backend.FileExists() {
			log.Info("database file does not exist yet, it will be created")
		}
		if err := backend.Init(); err != nil {
			// Fatal for this database only; the rest keep processing.
			log.Error("backend unavailable", zap.Error(err))
			failed++
			continue
		}

		r := reconcile.New(backend, log, reconcile.Options{DryRun: dryRunReconcile})
		diff, err := r.Reconcile(spec)
		if err != nil {
			log.Error("reconciliation failed", zap.Error(err))
			failed++
			_ = backend.Close()
			continue
		}
		total.Found += diff.Found
		total.Done += diff.Done
		total.DataLoss += diff.DataLoss

		if err := backend.Close(); err != nil {
			log.Error("failed to close backend", zap.Error(err))
		}
	}

	l.Info("Reconciliation finished",
		zap.Int("found", total.Found),
		zap.Int("done", total.Done),
		zap.Int("data_loss", total.DataLoss),
		zap.Int("failed_databases", failed))

	if total.Unresolved() > 0 {
		l.Warn("Unresolved schema differences remain", zap.Int("unresolved", total.Unresolved()))
	}
	if dryRunReconcile && total.Found > 0 {
		l.Info("Dry-run mode: no changes were made. Re-run without --dry-run to apply them.")
	}

	return nil
}

// confirmDestructiveAction prompts the user for confirmation or uses --yes flag.
func confirmDestructiveAction() bool {
	if yesConfirm {
		fmt.Println("\n✓ Auto-confirmed via --yes flag")
		return true
	}

	fmt.Print("\n⚠️  Reconciliation may drop tables or columns. Type 'yes' to continue: ")
	reader := bufio.NewReader(os.Stdin)
	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}

	response = strings.TrimSpace(response)
	return response == "yes"
}
