package reconcile

import (
	"sort"
	"strings"

	"data-manager/core/database"
	"data-manager/core/schema"

	"go.uber.org/zap"
)

// Options controls reconciler behavior.
type Options struct {
	// DryRun replaces every mutation with a report line. Found is still
	// counted, Done never is.
	DryRun bool
}

// Reconciler drives the check/repair workflow for one database.
type Reconciler struct {
	backend database.Backend
	log     *zap.Logger
	opts    Options
}

// New creates a reconciler bound to one open backend.
func New(backend database.Backend, log *zap.Logger, opts Options) *Reconciler {
	return &Reconciler{backend: backend, log: log, opts: opts}
}

// Reconcile diffs the live database against spec and applies the minimal
// set of mutations. Per-object problems are logged and accumulated, never
// fatal; the returned error is only non-nil when the backend cannot be
// enumerated at all.
func (r *Reconciler) Reconcile(spec schema.DatabaseSpec) (*Diff, error) {
	diff := &Diff{}

	liveTables, err := r.backend.ListTables()
	if err != nil {
		return diff, err
	}
	liveSet := make(map[string]bool, len(liveTables))
	for _, t := range liveTables {
		liveSet[t] = true
	}

	// Stable iteration order for deterministic runs and reports.
	tables := make([]schema.TableSpec, len(spec.Tables))
	copy(tables, spec.Tables)
	sort.Slice(tables, func(i, j int) bool {
		return schema.Canonical(tables[i].Name) < schema.Canonical(tables[j].Name)
	})

	for _, table := range tables {
		diff.add(r.reconcileTable(table, liveSet[schema.Canonical(table.Name)]))
	}

	// Tables present in the backend but absent from configuration hold
	// data nobody asked to keep. Dropping them is data loss.
	for _, live := range liveTables {
		if _, ok := spec.Table(live); ok {
			continue
		}
		diff.Found++
		diff.DataLoss++
		if r.opts.DryRun {
			r.log.Warn("table exists in backend but not in configuration, would drop it (DATA LOSS)",
				zap.String("table", live))
			continue
		}
		r.log.Warn("dropping table absent from configuration (DATA LOSS)", zap.String("table", live))
		if err := r.backend.DropTable(live); err != nil {
			r.log.Error("failed to drop table", zap.String("table", live), zap.Error(err))
			continue
		}
		diff.Done++
	}

	diff.add(r.reconcileIndexes(tables))

	r.log.Info("reconciliation summary",
		zap.String("database", spec.Name),
		zap.Int("found", diff.Found),
		zap.Int("done", diff.Done),
		zap.Int("data_loss", diff.DataLoss))
	if diff.Unresolved() > 0 {
		r.log.Warn("unresolved schema differences remain",
			zap.String("database", spec.Name),
			zap.Int("unresolved", diff.Unresolved()))
	}

	return diff, nil
}

// reconcileTable handles one declared table: create it when missing,
// otherwise compare columns and repair.
func (r *Reconciler) reconcileTable(table schema.TableSpec, exists bool) Diff {
	var diff Diff
	name := schema.Canonical(table.Name)
	log := r.log.With(zap.String("table", name))

	if !exists {
		diff.Found++
		if r.opts.DryRun {
			log.Info("table missing in backend, would create it")
			return diff
		}
		log.Info("creating missing table")
		if err := r.backend.CreateTable(table); err != nil {
			log.Error("failed to create table", zap.Error(err))
			return diff
		}
		diff.Done++
		return diff
	}

	live, err := r.backend.ListColumns(name)
	if err != nil {
		log.Error("failed to inspect table", zap.Error(err))
		return diff
	}

	// Columns declared but absent in the backend can be added in place.
	// Type changes and surplus columns force a table recreation, the only
	// path that can alter a type or remove a column.
	var missing []schema.ColumnSpec
	recreate := false

	for _, want := range table.Columns {
		got, ok := findColumn(live, want.Name)
		if !ok {
			diff.Found++
			missing = append(missing, want)
			continue
		}
		if !strings.EqualFold(strings.TrimSpace(got.SQLType), strings.TrimSpace(want.SQLType)) {
			diff.Found++
			recreate = true
			log.Warn("column type differs",
				zap.String("column", schema.Canonical(want.Name)),
				zap.String("backend_type", got.SQLType),
				zap.String("config_type", want.SQLType))
		}
	}

	for _, got := range live {
		if _, ok := table.Column(got.Name); !ok {
			diff.Found++
			diff.DataLoss++
			recreate = true
			log.Warn("column exists in backend but not in configuration, recreation drops it (DATA LOSS)",
				zap.String("column", got.Name))
		}
	}

	if recreate {
		if r.opts.DryRun {
			log.Info("table needs recreation, would rebuild it under the configured schema")
			return diff
		}
		log.Warn("recreating table under the configured schema")
		if err := r.backend.RecreateTable(name, table); err != nil {
			log.Error("failed to recreate table", zap.Error(err))
			return diff
		}
		// Recreation resolves every difference flagged on this table.
		diff.Done = diff.Found
		return diff
	}

	for _, col := range missing {
		if r.opts.DryRun {
			log.Info("column missing in backend, would add it",
				zap.String("column", schema.Canonical(col.Name)),
				zap.String("type", col.SQLType))
			continue
		}
		log.Info("adding missing column",
			zap.String("column", schema.Canonical(col.Name)),
			zap.String("type", col.SQLType))
		if err := r.backend.AddColumn(name, col); err != nil {
			log.Error("failed to add column", zap.String("column", col.Name), zap.Error(err))
			continue
		}
		diff.Done++
	}

	return diff
}

func findColumn(cols []schema.ColumnSpec, name string) (schema.ColumnSpec, bool) {
	for _, c := range cols {
		if schema.SameName(c.Name, name) {
			return c, true
		}
	}
	return schema.ColumnSpec{}, false
}
