package reconcile

import (
	"data-manager/core/schema"

	"go.uber.org/zap"
)

// reconcileIndexes runs after table reconciliation, independently. Index
// names are derived from the declaring table (<table>_idx, <table>_N_idx),
// so the derived name is the index's identity in the backend.
func (r *Reconciler) reconcileIndexes(tables []schema.TableSpec) Diff {
	var diff Diff

	liveIndexes, err := r.backend.ListIndexes()
	if err != nil {
		r.log.Error("failed to list indexes, skipping index reconciliation", zap.Error(err))
		return diff
	}
	liveSet := make(map[string]bool, len(liveIndexes))
	for _, idx := range liveIndexes {
		liveSet[idx] = true
	}

	configured := make(map[string]bool)

	for _, table := range tables {
		for i, spec := range table.Indexes {
			if len(spec.Columns) == 0 {
				continue
			}
			name := table.IndexName(i)
			configured[name] = true

			want := make([]string, 0, len(spec.Columns))
			for _, c := range spec.Columns {
				want = append(want, schema.Canonical(c))
			}

			if liveSet[name] {
				got, err := r.backend.ListIndexColumns(name)
				if err != nil {
					r.log.Error("failed to inspect index", zap.String("index", name), zap.Error(err))
					continue
				}
				// Column order matters for index semantics.
				if sameColumns(got, want) {
					continue
				}
				r.log.Warn("index column list differs",
					zap.String("index", name),
					zap.Strings("backend", got),
					zap.Strings("config", want))
			}

			diff.Found++
			if r.opts.DryRun {
				r.log.Info("would recreate index",
					zap.String("index", name), zap.Strings("columns", want))
				continue
			}
			r.log.Info("recreating index", zap.String("index", name), zap.Strings("columns", want))
			if liveSet[name] {
				if err := r.backend.DropIndex(name); err != nil {
					r.log.Error("failed to drop index", zap.String("index", name), zap.Error(err))
					continue
				}
			}
			if err := r.backend.CreateIndex(table.Name, name, want); err != nil {
				r.log.Error("failed to create index", zap.String("index", name), zap.Error(err))
				continue
			}
			diff.Done++
		}
	}

	// Indexes following the derived naming convention of a configured table
	// but no longer mapped to any declared spec are leftovers.
	for _, live := range liveIndexes {
		if configured[live] {
			continue
		}
		owned := false
		for _, table := range tables {
			if table.OwnsIndexName(live) {
				owned = true
				break
			}
		}
		if !owned {
			continue
		}

		diff.Found++
		if r.opts.DryRun {
			r.log.Info("index not mapped to any configuration, would drop it", zap.String("index", live))
			continue
		}
		r.log.Info("dropping index not mapped to any configuration", zap.String("index", live))
		if err := r.backend.DropIndex(live); err != nil {
			r.log.Error("failed to drop index", zap.String("index", live), zap.Error(err))
			continue
		}
		diff.Done++
	}

	return diff
}

func sameColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !schema.SameName(a[i], b[i]) {
			return false
		}
	}
	return true
}
