package reconcile

import (
	"fmt"
	"testing"

	"data-manager/core/database"
	"data-manager/core/schema"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestBackend(t *testing.T, dbName string) *database.GormBackend {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", dbName)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect database: %v", err)
	}
	return database.NewWithDB(db, schema.DatabaseSpec{Name: dbName})
}

func jobsDatabase(tables ...schema.TableSpec) schema.DatabaseSpec {
	return schema.DatabaseSpec{Name: "jobs", File: "jobs.sqlite", Tables: tables}
}

var jobsTable = schema.TableSpec{
	Name: "jobs",
	Columns: []schema.ColumnSpec{
		{Name: "id", SQLType: "INTEGER"},
		{Name: "ts", SQLType: "INTEGER"},
	},
}

func TestCreatesMissingTableAndIsIdempotent(t *testing.T) {
	b := setupTestBackend(t, "rec_create")
	r := New(b, zap.NewNop(), Options{})

	diff, err := r.Reconcile(jobsDatabase(jobsTable))
	require.NoError(t, err)
	assert.Equal(t, 1, diff.Found)
	assert.Equal(t, 1, diff.Done)
	assert.Equal(t, 0, diff.DataLoss)

	tables, err := b.ListTables()
	require.NoError(t, err)
	assert.Equal(t, []string{"jobs"}, tables)

	// Second run with unchanged configuration finds nothing.
	diff, err = r.Reconcile(jobsDatabase(jobsTable))
	require.NoError(t, err)
	assert.Equal(t, 0, diff.Found)
	assert.Equal(t, 0, diff.Done)
}

func TestDryRunNeverMutates(t *testing.T) {
	b := setupTestBackend(t, "rec_dryrun")
	r := New(b, zap.NewNop(), Options{DryRun: true})

	diff, err := r.Reconcile(jobsDatabase(jobsTable))
	require.NoError(t, err)
	assert.Equal(t, 1, diff.Found)
	assert.Equal(t, 0, diff.Done)
	assert.Equal(t, 1, diff.Unresolved())

	tables, err := b.ListTables()
	require.NoError(t, err)
	assert.Empty(t, tables)
}

func TestTypeChangeRecreatesTablePreservingData(t *testing.T) {
	b := setupTestBackend(t, "rec_typechange")
	require.NoError(t, b.CreateTable(schema.TableSpec{
		Name:    "jobs",
		Columns: []schema.ColumnSpec{{Name: "id", SQLType: "TEXT"}},
	}))
	require.NoError(t, b.Execute(`INSERT INTO "jobs" (id) VALUES ('7'), ('9')`, nil, func([]any) error { return nil }))

	r := New(b, zap.NewNop(), Options{})
	diff, err := r.Reconcile(jobsDatabase(jobsTable))
	require.NoError(t, err)

	// One type change plus one missing column.
	assert.Equal(t, 2, diff.Found)
	assert.Equal(t, 2, diff.Done)
	assert.Equal(t, 0, diff.DataLoss)

	cols, err := b.ListColumns("jobs")
	require.NoError(t, err)
	require.Len(t, cols, 2)
	assert.Equal(t, "INTEGER", cols[0].SQLType)
	assert.Equal(t, "ts", cols[1].Name)

	// id data survived the recreation.
	var ids []int64
	require.NoError(t, b.Execute(`SELECT id FROM "jobs" ORDER BY id`, nil, func(values []any) error {
		ids = append(ids, values[0].(int64))
		return nil
	}))
	assert.Equal(t, []int64{7, 9}, ids)
}

func TestRemovedColumnFlagsDataLoss(t *testing.T) {
	b := setupTestBackend(t, "rec_dataloss")
	require.NoError(t, b.CreateTable(schema.TableSpec{
		Name: "jobs",
		Columns: []schema.ColumnSpec{
			{Name: "id", SQLType: "INTEGER"},
			{Name: "ts", SQLType: "INTEGER"},
			{Name: "secret", SQLType: "TEXT"},
		},
	}))

	r := New(b, zap.NewNop(), Options{})
	diff, err := r.Reconcile(jobsDatabase(jobsTable))
	require.NoError(t, err)

	assert.Equal(t, 1, diff.Found)
	assert.Equal(t, 1, diff.Done)
	assert.Equal(t, 1, diff.DataLoss)

	cols, err := b.ListColumns("jobs")
	require.NoError(t, err)
	require.Len(t, cols, 2)
	assert.Equal(t, "id", cols[0].Name)
	assert.Equal(t, "ts", cols[1].Name)
}

func TestRemovedColumnDryRunKeepsData(t *testing.T) {
	b := setupTestBackend(t, "rec_dataloss_dry")
	require.NoError(t, b.CreateTable(schema.TableSpec{
		Name: "jobs",
		Columns: []schema.ColumnSpec{
			{Name: "id", SQLType: "INTEGER"},
			{Name: "ts", SQLType: "INTEGER"},
			{Name: "secret", SQLType: "TEXT"},
		},
	}))

	r := New(b, zap.NewNop(), Options{DryRun: true})
	diff, err := r.Reconcile(jobsDatabase(jobsTable))
	require.NoError(t, err)

	assert.Equal(t, 1, diff.Found)
	assert.Equal(t, 0, diff.Done)
	assert.Equal(t, 1, diff.DataLoss)

	cols, err := b.ListColumns("jobs")
	require.NoError(t, err)
	assert.Len(t, cols, 3)
}

func TestOrphanTableDropped(t *testing.T) {
	b := setupTestBackend(t, "rec_orphan")
	require.NoError(t, b.CreateTable(schema.TableSpec{
		Name:    "leftover",
		Columns: []schema.ColumnSpec{{Name: "x", SQLType: "TEXT"}},
	}))

	r := New(b, zap.NewNop(), Options{})
	diff, err := r.Reconcile(jobsDatabase(jobsTable))
	require.NoError(t, err)

	// Missing jobs table plus the orphan drop.
	assert.Equal(t, 2, diff.Found)
	assert.Equal(t, 2, diff.Done)
	assert.Equal(t, 1, diff.DataLoss)

	tables, err := b.ListTables()
	require.NoError(t, err)
	assert.Equal(t, []string{"jobs"}, tables)
}

func TestQuotedIdentifiersProduceNoSpuriousDiff(t *testing.T) {
	b := setupTestBackend(t, "rec_quotes")
	require.NoError(t, b.CreateTable(jobsTable))

	quoted := schema.TableSpec{
		Name: `"jobs"`,
		Columns: []schema.ColumnSpec{
			{Name: `"id"`, SQLType: "INTEGER"},
			{Name: `"ts"`, SQLType: "INTEGER"},
		},
	}

	r := New(b, zap.NewNop(), Options{})
	diff, err := r.Reconcile(jobsDatabase(quoted))
	require.NoError(t, err)
	assert.Equal(t, 0, diff.Found)
}

func TestIndexReconciliation(t *testing.T) {
	indexed := schema.TableSpec{
		Name: "jobs",
		Columns: []schema.ColumnSpec{
			{Name: "id", SQLType: "INTEGER"},
			{Name: "ts", SQLType: "INTEGER"},
			{Name: "owner", SQLType: "TEXT"},
		},
		Indexes: []schema.IndexSpec{
			{Columns: []string{"id", "ts"}},
			{Columns: []string{"owner"}},
			{Columns: []string{"ts"}},
		},
	}

	b := setupTestBackend(t, "rec_index")
	r := New(b, zap.NewNop(), Options{})

	diff, err := r.Reconcile(jobsDatabase(indexed))
	require.NoError(t, err)
	assert.Equal(t, 4, diff.Found) // table + three indexes
	assert.Equal(t, 4, diff.Done)

	indexes, err := b.ListIndexes()
	require.NoError(t, err)
	assert.Equal(t, []string{"jobs_2_idx", "jobs_3_idx", "jobs_idx"}, indexes)

	cols, err := b.ListIndexColumns("jobs_idx")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "ts"}, cols)

	// Unchanged configuration: nothing to do.
	diff, err = r.Reconcile(jobsDatabase(indexed))
	require.NoError(t, err)
	assert.Equal(t, 0, diff.Found)
}

func TestIndexOrderMismatchRecreates(t *testing.T) {
	table := schema.TableSpec{
		Name: "jobs",
		Columns: []schema.ColumnSpec{
			{Name: "id", SQLType: "INTEGER"},
			{Name: "ts", SQLType: "INTEGER"},
		},
		Indexes: []schema.IndexSpec{{Columns: []string{"id", "ts"}}},
	}

	b := setupTestBackend(t, "rec_index_order")
	require.NoError(t, b.CreateTable(table))
	// Same columns, wrong order. Column order matters.
	require.NoError(t, b.CreateIndex("jobs", "jobs_idx", []string{"ts", "id"}))

	r := New(b, zap.NewNop(), Options{})
	diff, err := r.Reconcile(jobsDatabase(table))
	require.NoError(t, err)
	assert.Equal(t, 1, diff.Found)
	assert.Equal(t, 1, diff.Done)

	cols, err := b.ListIndexColumns("jobs_idx")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "ts"}, cols)
}

func TestOrphanDerivedIndexDropped(t *testing.T) {
	table := schema.TableSpec{
		Name: "jobs",
		Columns: []schema.ColumnSpec{
			{Name: "id", SQLType: "INTEGER"},
			{Name: "ts", SQLType: "INTEGER"},
		},
	}

	b := setupTestBackend(t, "rec_index_orphan")
	require.NoError(t, b.CreateTable(table))
	require.NoError(t, b.CreateIndex("jobs", "jobs_2_idx", []string{"ts"}))

	r := New(b, zap.NewNop(), Options{})
	diff, err := r.Reconcile(jobsDatabase(table))
	require.NoError(t, err)
	assert.Equal(t, 1, diff.Found)
	assert.Equal(t, 1, diff.Done)

	indexes, err := b.ListIndexes()
	require.NoError(t, err)
	assert.NotContains(t, indexes, "jobs_2_idx")
}
