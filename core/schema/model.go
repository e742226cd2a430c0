package schema

import (
	"fmt"
	"regexp"
)

// ColumnSpec declares one column: its name and the SQL type string used
// verbatim in DDL statements.
type ColumnSpec struct {
	Name    string `yaml:"name"`
	SQLType string `yaml:"type"`
}

// IndexSpec declares one index as an ordered list of column names. Column
// order matters for index semantics, so comparisons against backend
// metadata are position-sensitive.
type IndexSpec struct {
	Columns []string `yaml:"columns"`
}

// TableSpec declares a table: its name, ordered columns and indexes. It is
// produced by the configuration loader and treated as read-only by the
// reconciler and the query compiler.
type TableSpec struct {
	Name    string       `yaml:"name"`
	Columns []ColumnSpec `yaml:"columns"`
	Indexes []IndexSpec  `yaml:"indexes"`
}

// IndexName derives the backend name of the i-th declared index
// (zero-based). The first index is <table>_idx, later ones
// <table>_<ordinal>_idx with the ordinal starting at 2.
func (t TableSpec) IndexName(i int) string {
	table := Canonical(t.Name)
	if i == 0 {
		return table + "_idx"
	}
	return fmt.Sprintf("%s_%d_idx", table, i+1)
}

// OwnsIndexName reports whether name follows this table's derived index
// naming convention. The reconciler uses it to spot orphan indexes left
// behind by earlier configurations.
func (t TableSpec) OwnsIndexName(name string) bool {
	table := Canonical(t.Name)
	if name == table+"_idx" {
		return true
	}
	matched, _ := regexp.MatchString("^"+regexp.QuoteMeta(table)+`_[0-9]+_idx$`, name)
	return matched
}

// Column returns the declared column matching name under canonicalization.
func (t TableSpec) Column(name string) (ColumnSpec, bool) {
	for _, c := range t.Columns {
		if SameName(c.Name, name) {
			return c, true
		}
	}
	return ColumnSpec{}, false
}

// ColumnNames returns the canonical column names in declaration order.
func (t TableSpec) ColumnNames() []string {
	names := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		names = append(names, Canonical(c.Name))
	}
	return names
}

// DatabaseSpec declares one embedded database: its logical name, the
// backing file path, and its tables.
type DatabaseSpec struct {
	Name   string      `yaml:"name"`
	File   string      `yaml:"file"`
	Tables []TableSpec `yaml:"tables"`
}

// Table returns the declared table matching name under canonicalization.
func (d DatabaseSpec) Table(name string) (TableSpec, bool) {
	for _, t := range d.Tables {
		if SameName(t.Name, name) {
			return t, true
		}
	}
	return TableSpec{}, false
}
