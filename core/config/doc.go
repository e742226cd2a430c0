// Package config loads application configuration from environment
// variables and an optional .env file.
//
// Defaults come from `default:` struct tags resolved by reflection, and
// every key can be overridden through the environment using underscores
// for nesting (DATABASE_PATH, EXPORT_OUTPUT_DIR, LOG_LEVEL, ...).
//
// The declarative cluster configuration (databases, tables, datasets) is a
// separate YAML document whose path is the `cluster` key; it is parsed by
// the schema and datasets packages.
package config
