package cmd

import (
	"fmt"

	"data-manager/core/config"
	"data-manager/core/database"
	"data-manager/core/schema"

	"github.com/spf13/cobra"
)

// inspectCmd prints the live schema of the configured databases. Useful
// before a reconcile run to see what is actually on disk.
var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Print the live schema of the configured databases",
	RunE:  runInspect,
}

var databaseInspect string

func init() {
	inspectCmd.Flags().StringVar(&databaseInspect, "database", "", "Inspect only the named database")
	RootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	dbs, err := schema.LoadDatabases(cfg.Cluster)
	if err != nil {
		return fmt.Errorf("failed to load cluster configuration: %w", err)
	}

	for _, spec := range dbs {
		if databaseInspect != "" && !schema.SameName(spec.Name, databaseInspect) {
			continue
		}

		fmt.Printf("database %s (%s)\n", spec.Name, spec.File)

		backend := database.New(cfg.Database, spec)
		if !backend.FileExists() {
			fmt.Println("  (file does not exist)")
			continue
		}
		if err := backend.Init(); err != nil {
			fmt.Printf("  error: %v\n", err)
			continue
		}

		tables, err := backend.ListTables()
		if err != nil {
			fmt.Printf("  error: %v\n", err)
			_ = backend.Close()
			continue
		}
		for _, table := range tables {
			fmt.Printf("  table %s\n", table)
			cols, err := backend.ListColumns(table)
			if err != nil {
				fmt.Printf("    error: %v\n", err)
				continue
			}
			for _, col := range cols {
				fmt.Printf("    %-24s %s\n", col.Name, col.SQLType)
			}
		}

		indexes, err := backend.ListIndexes()
		if err == nil {
			for _, idx := range indexes {
				cols, err := backend.ListIndexColumns(idx)
				if err != nil {
					continue
				}
				fmt.Printf("  index %s %v\n", idx, cols)
			}
		}

		if err := backend.Close(); err != nil {
			fmt.Printf("  error closing: %v\n", err)
		}
	}

	return nil
}
