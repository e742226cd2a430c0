// Package schema holds the in-memory representation of the declaratively
// configured database layout: tables, ordered columns with their SQL type
// strings, and index column lists.
//
// Identifiers may arrive quoted or unquoted from either the configuration
// file or the backend's metadata queries. The Identifier type and the
// Canonical helper strip a single pair of surrounding quote characters, and
// every identity comparison in the reconciler and the query compiler goes
// through that canonical form. Two identifiers that differ only by quoting
// are the same identifier.
//
// # Index naming
//
// Index names are derived, never stored: the first index declared for a
// table is named <table>_idx, the second and subsequent ones
// <table>_<ordinal>_idx with the ordinal starting at 2. The derived name is
// the index's identity in the backend.
//
// # Loading
//
//	dbs, err := schema.LoadDatabases("cluster.yaml")
//	if err != nil {
//	    log.Fatal("invalid cluster configuration", err)
//	}
package schema
