package database

import (
	"fmt"
	"sort"

	"data-manager/core/schema"
)

// ColumnInfo matches the output of SHOW COLUMNS.
type ColumnInfo struct {
	Field   string
	Type    string
	Null    string
	Key     string
	Default *string // Pointer because NULL default is possible
	Extra   string
}

// ListTables returns the canonical names of the live tables, sorted for
// deterministic iteration.
func (b *GormBackend) ListTables() ([]string, error) {
	var names []string
	var err error

	if b.dialect() == DriverMySQL {
		err = b.db.Raw("SHOW TABLES").Scan(&names).Error
	} else {
		err = b.db.Raw("SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'").Scan(&names).Error
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list tables: %v", ErrBackendIO, err)
	}

	for i := range names {
		names[i] = schema.Canonical(names[i])
	}
	sort.Strings(names)
	return names, nil
}

// ListColumns retrieves the live column definitions of a table, in
// definition order, with canonicalized names.
func (b *GormBackend) ListColumns(table string) ([]schema.ColumnSpec, error) {
	table = schema.Canonical(table)

	if b.dialect() != DriverMySQL {
		// SQLite exposes column metadata through PRAGMA table_info.
		type sqliteColumn struct {
			Cid       int
			Name      string
			Type      string
			Notnull   int
			DfltValue *string
			Pk        int
		}
		var sqliteCols []sqliteColumn
		if err := b.db.Raw(fmt.Sprintf("PRAGMA table_info('%s')", table)).Scan(&sqliteCols).Error; err != nil {
			return nil, fmt.Errorf("%w: failed to get columns for table %s: %v", ErrBackendIO, table, err)
		}
		columns := make([]schema.ColumnSpec, 0, len(sqliteCols))
		for _, col := range sqliteCols {
			columns = append(columns, schema.ColumnSpec{
				Name:    schema.Canonical(col.Name),
				SQLType: col.Type,
			})
		}
		return columns, nil
	}

	var infos []ColumnInfo
	if err := b.db.Raw(fmt.Sprintf("SHOW COLUMNS FROM %s", b.quote(table))).Scan(&infos).Error; err != nil {
		return nil, fmt.Errorf("%w: failed to get columns for table %s: %v", ErrBackendIO, table, err)
	}
	columns := make([]schema.ColumnSpec, 0, len(infos))
	for _, info := range infos {
		columns = append(columns, schema.ColumnSpec{
			Name:    schema.Canonical(info.Field),
			SQLType: info.Type,
		})
	}
	return columns, nil
}

// ListIndexes returns the canonical names of the live indexes, sorted.
func (b *GormBackend) ListIndexes() ([]string, error) {
	var names []string
	var err error

	if b.dialect() == DriverMySQL {
		err = b.db.Raw(
			"SELECT DISTINCT index_name FROM information_schema.statistics WHERE table_schema = DATABASE() AND index_name <> 'PRIMARY'",
		).Scan(&names).Error
	} else {
		err = b.db.Raw("SELECT name FROM sqlite_master WHERE type = 'index' AND name NOT LIKE 'sqlite_%'").Scan(&names).Error
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list indexes: %v", ErrBackendIO, err)
	}

	for i := range names {
		names[i] = schema.Canonical(names[i])
	}
	sort.Strings(names)
	return names, nil
}

// ListIndexColumns returns the ordered column names of an index.
func (b *GormBackend) ListIndexColumns(index string) ([]string, error) {
	index = schema.Canonical(index)

	if b.dialect() != DriverMySQL {
		type indexColumn struct {
			Seqno int
			Cid   int
			Name  string
		}
		var cols []indexColumn
		if err := b.db.Raw(fmt.Sprintf("PRAGMA index_info('%s')", index)).Scan(&cols).Error; err != nil {
			return nil, fmt.Errorf("%w: failed to get columns for index %s: %v", ErrBackendIO, index, err)
		}
		sort.Slice(cols, func(i, j int) bool { return cols[i].Seqno < cols[j].Seqno })
		names := make([]string, 0, len(cols))
		for _, c := range cols {
			names = append(names, schema.Canonical(c.Name))
		}
		return names, nil
	}

	var names []string
	err := b.db.Raw(
		"SELECT column_name FROM information_schema.statistics WHERE table_schema = DATABASE() AND index_name = ? ORDER BY seq_in_index",
		index,
	).Scan(&names).Error
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get columns for index %s: %v", ErrBackendIO, index, err)
	}
	for i := range names {
		names[i] = schema.Canonical(names[i])
	}
	return names, nil
}

// indexTable resolves which table owns an index. MySQL needs it because
// DROP INDEX requires the table name.
func (b *GormBackend) indexTable(index string) (string, error) {
	var table string
	err := b.db.Raw(
		"SELECT table_name FROM information_schema.statistics WHERE table_schema = DATABASE() AND index_name = ? LIMIT 1",
		schema.Canonical(index),
	).Scan(&table).Error
	if err != nil {
		return "", fmt.Errorf("%w: failed to resolve table for index %s: %v", ErrBackendIO, index, err)
	}
	return table, nil
}
