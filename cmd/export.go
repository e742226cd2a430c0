package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"data-manager/core/config"
	"data-manager/core/database"
	"data-manager/core/logger"
	"data-manager/core/schema"
	"data-manager/core/storage"
	"data-manager/feature/datasets"
	"data-manager/feature/publish"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	datasetExport string
	publishExport bool
)

// exportCmd materializes the configured datasets into flat files.
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the configured datasets to flat files",
	Long: `Export compiles each dataset definition into SQL, streams the result
set row by row and writes the configured CSV or DAT output files.

Datasets with "renew: delta" only append rows newer than the per-file
watermark; the watermark state persists across runs.

Examples:
  # Export everything
  data-manager export

  # Export one dataset and publish the output directory
  data-manager export --dataset joblist --publish`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVar(&datasetExport, "dataset", "", "Export only the named dataset")
	exportCmd.Flags().BoolVar(&publishExport, "publish", false, "Upload the output directory to object storage afterwards")

	RootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
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
	specs, err := datasets.LoadDatasets(cfg.Cluster)
	if err != nil {
		return fmt.Errorf("failed to load dataset definitions: %w", err)
	}

	states, err := datasets.LoadStates(cfg.Export.StateFile)
	if err != nil {
		return fmt.Errorf("failed to load watermark state: %w", err)
	}

	exporter := datasets.NewExporter(states, l)
	exported := 0

	for _, ds := range specs {
		if datasetExport != "" && ds.Name != datasetExport {
			continue
		}
		log := l.With(zap.String("dataset", ds.Name))

		dbSpec, ok := findDatabase(dbs, ds.Database)
		if !ok {
			log.Error("dataset references unknown database", zap.String("database", ds.Database))
			continue
		}

		// Output paths are relative to the configured output root.
		ds.Output = filepath.Join(cfg.Export.OutputDir, ds.Output)

		backend := database.New(cfg.Database, dbSpec)
		if err := backend.Init(); err != nil {
			log.Error("backend unavailable", zap.Error(err))
			continue
		}

		compiler := datasets.NewCompiler(backend, states, log)
		q, err := compiler.Compile(ds)
		if err != nil {
			// A configuration error aborts only this dataset.
			if errors.Is(err, schema.ErrConfig) {
				log.Error("dataset configuration invalid, skipping", zap.Error(err))
			} else {
				log.Error("failed to compile dataset", zap.Error(err))
			}
			_ = backend.Close()
			continue
		}

		if _, err := exporter.Export(ds, q, backend); err != nil {
			log.Error("export failed", zap.Error(err))
		} else {
			exported++
		}

		if err := backend.Close(); err != nil {
			log.Error("failed to close backend", zap.Error(err))
		}
	}

	if err := states.Save(); err != nil {
		l.Error("failed to persist watermark state", zap.Error(err))
	}

	l.Info("Export run finished", zap.Int("datasets", exported))

	if publishExport || cfg.Export.Publish {
		return publishOutput(cfg, l)
	}
	return nil
}

func publishOutput(cfg *config.Config, l *zap.Logger) error {
	ctx := context.Background()

	client, err := storage.NewClient(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to connect to storage: %w", err)
	}

	p := publish.New(client, cfg.Storage.Bucket, l)
	if err := p.EnsureBucket(ctx); err != nil {
		return err
	}

	uploaded, err := p.PublishDir(ctx, cfg.Export.OutputDir)
	if err != nil {
		return fmt.Errorf("publication incomplete: %w", err)
	}
	l.Info("Published output files", zap.Int("uploaded", uploaded), zap.String("bucket", cfg.Storage.Bucket))
	return nil
}

func findDatabase(dbs []schema.DatabaseSpec, name string) (schema.DatabaseSpec, bool) {
	for _, db := range dbs {
		if schema.SameName(db.Name, name) {
			return db, true
		}
	}
	return schema.DatabaseSpec{}, false
}
