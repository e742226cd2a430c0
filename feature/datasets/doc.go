// Package datasets materializes derived, query-driven datasets into flat
// files consumed by downstream reporting.
//
// A dataset definition names one or more source tables (joined on a shared
// key column), a column projection, an output format (csv or line-oriented
// dat), and optionally a filter, an ordering, a fan-out column that routes
// rows to different output files, a delta renewal policy, and a
// time-aggregation mode.
//
// The Compiler turns a definition into SQL text plus a column plan; the
// Exporter consumes the backend's row stream one row at a time and writes
// formatted output files, tracking a per-file watermark so repeated delta
// invocations only append genuinely new rows.
//
// # Watermarks
//
// Every output file has a FileState holding the maximum timestamp already
// written. Delta compilation restricts the query to rows strictly newer
// than the watermark; the exporter advances it as rows are written. States
// persist across runs in a JSON snapshot so restarts never re-export old
// rows.
//
// # Fan-out
//
// When a fan-out column is configured the compiled query is ordered by
// that column first, then by timestamp, and the first projected value of
// each row names the destination file. The exporter keeps at most one
// output handle open and switches it exactly at fan-out boundaries.
package datasets
