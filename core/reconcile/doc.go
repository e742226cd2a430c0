// Package reconcile keeps a live database's physical schema synchronized
// with its declarative configuration.
//
// The reconciler diffs tables, columns and indexes against the configured
// specs and applies the minimal safe set of mutations: add column, recreate
// table, create/drop index, create/drop table. Identity comparisons use
// canonicalized names throughout, so quoting differences never produce a
// spurious diff.
//
// # Destructive resolutions
//
// A column type change and a column removal cannot be altered in place on
// every backend, so both go through table recreation: create a shadow
// table under the new schema, copy the columns common to both schemas,
// drop the old table and rename the shadow into place. Any resolution that
// discards stored values (surplus column, surplus table) is counted as
// data loss and logged as destructive.
//
// # Dry-run
//
// In dry-run mode every mutation is replaced by a report line. Differences
// are still counted as found, never as done, and no mutating backend
// method is called.
//
// A single broken table never aborts the run: per-object errors are logged
// and accumulated so the rest of the database still gets reconciled.
//
// # Usage
//
//	r := reconcile.New(backend, log, reconcile.Options{DryRun: true})
//	diff, err := r.Reconcile(dbSpec)
//	if diff.Unresolved() > 0 {
//	    log.Warn("unresolved schema differences remain")
//	}
package reconcile
