package database

// Schema mutation statements. These are only reached by the reconciler in
// non-dry-run mode; dry-run replaces every call with a report line.

import (
	"fmt"
	"strings"

	"data-manager/core/schema"
)

func (b *GormBackend) exec(stmt string, args ...any) error {
	if err := b.db.Exec(stmt, args...).Error; err != nil {
		return fmt.Errorf("%w: %s: %v", ErrBackendIO, stmt, err)
	}
	return nil
}

// columnDefs renders the column definition list of a CREATE TABLE.
func (b *GormBackend) columnDefs(spec schema.TableSpec) string {
	defs := make([]string, 0, len(spec.Columns))
	for _, c := range spec.Columns {
		defs = append(defs, b.quote(c.Name)+" "+c.SQLType)
	}
	return strings.Join(defs, ", ")
}

// CreateTable creates a table from its declared spec.
func (b *GormBackend) CreateTable(spec schema.TableSpec) error {
	return b.exec(fmt.Sprintf("CREATE TABLE %s (%s)", b.quote(spec.Name), b.columnDefs(spec)))
}

// AddColumn appends a column to an existing table. Non-destructive.
func (b *GormBackend) AddColumn(table string, col schema.ColumnSpec) error {
	return b.exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s",
		b.quote(table), b.quote(col.Name), col.SQLType))
}

// DropTable removes a table and all its data.
func (b *GormBackend) DropTable(table string) error {
	return b.exec(fmt.Sprintf("DROP TABLE %s", b.quote(table)))
}

// RecreateTable rebuilds table under the new spec: create a shadow table,
// copy the columns common to both schemas, drop the old table and rename
// the shadow into place. This is the only path that changes a column type
// or removes a column; data in columns absent from the new spec is lost.
func (b *GormBackend) RecreateTable(table string, spec schema.TableSpec) error {
	table = schema.Canonical(table)
	shadow := table + "_new"

	live, err := b.ListColumns(table)
	if err != nil {
		return err
	}

	shadowSpec := spec
	shadowSpec.Name = shadow
	if err := b.CreateTable(shadowSpec); err != nil {
		return err
	}

	// Copy data for columns present in both the live table and the new
	// spec. Columns new to the spec stay at their defaults.
	var common []string
	for _, c := range spec.Columns {
		for _, liveCol := range live {
			if schema.SameName(c.Name, liveCol.Name) {
				common = append(common, b.quote(c.Name))
				break
			}
		}
	}
	if len(common) > 0 {
		cols := strings.Join(common, ", ")
		if err := b.exec(fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s",
			b.quote(shadow), cols, cols, b.quote(table))); err != nil {
			return err
		}
	}

	if err := b.DropTable(table); err != nil {
		return err
	}
	return b.exec(fmt.Sprintf("ALTER TABLE %s RENAME TO %s", b.quote(shadow), b.quote(table)))
}

// CreateIndex creates an index with the declared column order.
func (b *GormBackend) CreateIndex(table, index string, columns []string) error {
	quoted := make([]string, 0, len(columns))
	for _, c := range columns {
		quoted = append(quoted, b.quote(c))
	}
	return b.exec(fmt.Sprintf("CREATE INDEX %s ON %s (%s)",
		b.quote(index), b.quote(table), strings.Join(quoted, ", ")))
}

// DropIndex removes an index if it exists.
func (b *GormBackend) DropIndex(index string) error {
	if b.dialect() == DriverMySQL {
		// MySQL scopes indexes to their table.
		table, err := b.indexTable(index)
		if err != nil {
			return err
		}
		if table == "" {
			return nil
		}
		return b.exec(fmt.Sprintf("DROP INDEX %s ON %s", b.quote(index), b.quote(table)))
	}
	return b.exec(fmt.Sprintf("DROP INDEX IF EXISTS %s", b.quote(index)))
}
