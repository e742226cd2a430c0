// Package database implements the backend contract consumed by the schema
// reconciler and the dataset exporter.
//
// It wraps GORM (Go Object Relational Mapping) so that the same code drives
// the embedded SQLite files the monitoring platform normally uses and a
// hosted MySQL deployment. Metadata queries switch on the dialect
// (PRAGMA table_info vs SHOW COLUMNS); everything above this package is
// dialect-agnostic.
//
// # Streaming
//
// Execute drives a single-pass row callback over a result set. The backend
// never holds more than one row in memory, which keeps exports bounded no
// matter how much monitoring history has accumulated. Row order is
// preserved end-to-end.
//
// # Usage
//
//	backend := database.New(cfg, dbSpec)
//	if err := backend.Init(); err != nil {
//	    log.Fatal("backend unavailable", err)
//	}
//	defer backend.Close()
//
//	cols, err := backend.ListColumns("jobs")
package database
