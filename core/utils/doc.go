// Package utils provides value conversion helpers for row values coming
// out of the database drivers.
//
// Different drivers hand back different Go types for the same SQL column
// (int64 vs []byte vs string). The exporter and the column converters use
// these helpers to normalize driver values before formatting.
package utils
