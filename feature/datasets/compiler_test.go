package datasets

import (
	"testing"

	"data-manager/core/database"
	"data-manager/core/schema"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeBackend serves canned rows and scalar maps so query compilation and
// export can be tested without a database.
type fakeBackend struct {
	rows      [][]any
	scalarMap map[string]string
	queries   []string
}

func (f *fakeBackend) FileExists() bool { return true }
func (f *fakeBackend) Init() error      { return nil }
func (f *fakeBackend) Close() error     { return nil }

func (f *fakeBackend) ListTables() ([]string, error)                          { return nil, nil }
func (f *fakeBackend) ListColumns(string) ([]schema.ColumnSpec, error)        { return nil, nil }
func (f *fakeBackend) AddColumn(string, schema.ColumnSpec) error              { return nil }
func (f *fakeBackend) CreateTable(schema.TableSpec) error                     { return nil }
func (f *fakeBackend) RecreateTable(string, schema.TableSpec) error           { return nil }
func (f *fakeBackend) DropTable(string) error                                 { return nil }
func (f *fakeBackend) ListIndexes() ([]string, error)                         { return nil, nil }
func (f *fakeBackend) ListIndexColumns(string) ([]string, error)              { return nil, nil }
func (f *fakeBackend) CreateIndex(string, string, []string) error             { return nil }
func (f *fakeBackend) DropIndex(string) error                                 { return nil }

func (f *fakeBackend) Execute(query string, args []any, fn database.RowFunc) error {
	f.queries = append(f.queries, query)
	for _, row := range f.rows {
		if err := fn(row); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeBackend) ExecuteScalarMap(query, keyCol, valueCol string) (map[string]string, error) {
	f.queries = append(f.queries, query)
	return f.scalarMap, nil
}

func newTestCompiler(t *testing.T) (*Compiler, *fakeBackend, *StateRegistry) {
	t.Helper()
	states, err := LoadStates(t.TempDir() + "/state.json")
	require.NoError(t, err)
	backend := &fakeBackend{}
	return NewCompiler(backend, states, zap.NewNop()), backend, states
}

func TestCompileJoinedTables(t *testing.T) {
	c, _, _ := newTestCompiler(t)

	q, err := c.Compile(Spec{
		Name:   "combined",
		Tables: []string{"t1", "t2"},
		Join:   "ukey",
		Columns: []ColumnRef{
			{Name: "c1", Table: "t1"},
			{Name: "c2", Table: "t2"},
		},
		Format: FormatCSV,
		Output: "combined.csv",
		Order:  []OrderRef{{Column: "c1"}},
	})
	require.NoError(t, err)

	assert.Equal(t,
		`SELECT D1."c1",D2."c2" FROM "t1" AS D1,"t2" AS D2 WHERE D1."ukey"=D2."ukey" ORDER BY D1."c1"`,
		q.SQL)
	assert.Empty(t, q.Args)
	assert.False(t, q.HasFileColumn)
	assert.Equal(t, -1, q.TsIndex)
}

func TestCompileMultiTableWithoutJoin(t *testing.T) {
	c, _, _ := newTestCompiler(t)

	_, err := c.Compile(Spec{
		Name:    "broken",
		Tables:  []string{"t1", "t2"},
		Columns: []ColumnRef{{Name: "c1"}},
		Format:  FormatCSV,
		Output:  "broken.csv",
		Order:   []OrderRef{{Column: "c1"}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, schema.ErrConfig)
}

func TestCompileDeltaUsesWatermark(t *testing.T) {
	c, _, states := newTestCompiler(t)
	states.Get("jobs.csv").LastTsSaved = 500

	q, err := c.Compile(Spec{
		Name:       "jobs",
		Tables:     []string{"jobs"},
		Columns:    []ColumnRef{{Name: "id"}, {Name: "ts"}},
		Format:     FormatCSV,
		Output:     "jobs.csv",
		Renew:      RenewDelta,
		TimeColumn: "ts",
	})
	require.NoError(t, err)

	assert.Equal(t, `SELECT "id","ts" FROM "jobs" WHERE "ts" > ? ORDER BY "ts"`, q.SQL)
	assert.Equal(t, []any{int64(500)}, q.Args)
	assert.Equal(t, 1, q.TsIndex)
}

func TestCompileDeltaWithoutTimeColumn(t *testing.T) {
	c, _, _ := newTestCompiler(t)

	_, err := c.Compile(Spec{
		Name:    "jobs",
		Tables:  []string{"jobs"},
		Columns: []ColumnRef{{Name: "id"}},
		Format:  FormatCSV,
		Output:  "jobs.csv",
		Renew:   RenewDelta,
		Order:   []OrderRef{{Column: "id"}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, schema.ErrConfig)
}

func TestCompileWithoutAnyOrder(t *testing.T) {
	c, _, _ := newTestCompiler(t)

	_, err := c.Compile(Spec{
		Name:    "jobs",
		Tables:  []string{"jobs"},
		Columns: []ColumnRef{{Name: "id"}},
		Format:  FormatCSV,
		Output:  "jobs.csv",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, schema.ErrConfig)
}

func TestCompileFanOutOrdersByFileThenTime(t *testing.T) {
	c, _, _ := newTestCompiler(t)

	q, err := c.Compile(Spec{
		Name:       "perjob",
		Tables:     []string{"loads"},
		Columns:    []ColumnRef{{Name: "id"}, {Name: "ts"}},
		Format:     FormatDAT,
		Output:     "out/%s.dat",
		FileColumn: "job",
		TimeColumn: "ts",
	})
	require.NoError(t, err)

	assert.Equal(t, `SELECT "job","id","ts" FROM "loads" ORDER BY "job","ts"`, q.SQL)
	assert.True(t, q.HasFileColumn)
	assert.Equal(t, 1, q.TsIndex)
}

func TestCompileFanOutWithFileTable(t *testing.T) {
	c, _, _ := newTestCompiler(t)

	q, err := c.Compile(Spec{
		Name:           "perjob",
		Tables:         []string{"loads"},
		Columns:        []ColumnRef{{Name: "id"}, {Name: "ts"}},
		Format:         FormatDAT,
		Output:         "unused",
		FileColumn:     "job",
		FileTable:      "jobfiles",
		FilePathColumn: "path",
		TimeColumn:     "ts",
	})
	require.NoError(t, err)

	assert.Equal(t,
		`SELECT DF."path","id","ts" FROM "loads","jobfiles" AS DF WHERE DF."job"="job" ORDER BY "job","ts"`,
		q.SQL)
	assert.True(t, q.HasFileColumn)
}

func TestCompileSpanClause(t *testing.T) {
	c, backend, _ := newTestCompiler(t)
	backend.scalarMap = map[string]string{"1": "600", "60": "100"}

	q, err := c.Compile(Spec{
		Name:             "sysload",
		Tables:           []string{"hist"},
		Columns:          []ColumnRef{{Name: "ts"}, {Name: "load"}},
		Format:           FormatCSV,
		Output:           "sysload.csv",
		TimeColumn:       "ts",
		TimeMode:         TimeModeSpan,
		ResolutionColumn: "res",
	})
	require.NoError(t, err)

	// The finest tier (res=1) contributes everything; the coarser tier only
	// rows before the finest tier's minimum.
	assert.Equal(t,
		`SELECT "ts","load" FROM "hist" WHERE ("res" = ? OR ("res" = ? AND "ts" < ?)) ORDER BY "ts"`,
		q.SQL)
	assert.Equal(t, []any{int64(1), int64(60), int64(600)}, q.Args)

	require.Len(t, backend.queries, 1)
	assert.Contains(t, backend.queries[0], "GROUP BY")
}

func TestCompileSpanWithEmptyHistory(t *testing.T) {
	c, backend, _ := newTestCompiler(t)
	backend.scalarMap = map[string]string{}

	q, err := c.Compile(Spec{
		Name:             "sysload",
		Tables:           []string{"hist"},
		Columns:          []ColumnRef{{Name: "ts"}},
		Format:           FormatCSV,
		Output:           "sysload.csv",
		TimeColumn:       "ts",
		TimeMode:         TimeModeSpan,
		ResolutionColumn: "res",
	})
	require.NoError(t, err)
	assert.Equal(t, `SELECT "ts" FROM "hist" ORDER BY "ts"`, q.SQL)
}

func TestCompileFilterAndExpressionPassThrough(t *testing.T) {
	c, _, _ := newTestCompiler(t)

	q, err := c.Compile(Spec{
		Name:       "usage",
		Tables:     []string{"jobs"},
		Columns:    []ColumnRef{{Name: "nodes*cores", Alias: "slots"}, {Name: "ts"}},
		Format:     FormatCSV,
		Output:     "usage.csv",
		Filter:     "state = 'RUNNING'",
		TimeColumn: "ts",
	})
	require.NoError(t, err)

	assert.Equal(t,
		`SELECT nodes*cores AS "slots","ts" FROM "jobs" WHERE (state = 'RUNNING') ORDER BY "ts"`,
		q.SQL)
	assert.Equal(t, "slots", q.Columns[0].Name)
}

func TestCompileDefaultFormatAndHeader(t *testing.T) {
	c, _, _ := newTestCompiler(t)

	q, err := c.Compile(Spec{
		Name:       "loads",
		Tables:     []string{"loads"},
		Columns:    []ColumnRef{{Name: "id"}, {Name: "ts"}},
		Format:     FormatDAT,
		Output:     "loads.dat",
		TimeColumn: "ts",
	})
	require.NoError(t, err)

	assert.Equal(t, "%v %v", q.FormatStr)
	assert.Equal(t, "#id ts", q.Header)
	assert.Equal(t, " ", q.Delimiter)
	assert.Equal(t, 2, q.PlaceholderCount())
}

func TestCompileBindsVerbsToColumns(t *testing.T) {
	c, _, _ := newTestCompiler(t)

	q, err := c.Compile(Spec{
		Name:       "loads",
		Tables:     []string{"loads"},
		Columns:    []ColumnRef{{Name: "id"}, {Name: "load"}, {Name: "ts"}},
		Format:     FormatCSV,
		FormatStr:  "%d,%.2f,%s",
		Output:     "loads.csv",
		TimeColumn: "ts",
	})
	require.NoError(t, err)

	assert.Equal(t, byte('d'), q.Columns[0].Verb)
	assert.Equal(t, byte('f'), q.Columns[1].Verb)
	assert.Equal(t, byte('s'), q.Columns[2].Verb)
	assert.Equal(t, 3, q.PlaceholderCount())
}

func TestValidateRejectsReservedAlias(t *testing.T) {
	err := Validate(Spec{
		Name:    "bad",
		Tables:  []string{"jobs"},
		Columns: []ColumnRef{{Name: "id", Alias: "ukey"}},
		Format:  FormatCSV,
		Output:  "bad.csv",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, schema.ErrConfig)
}

func TestValidateRejectsUnknownConverter(t *testing.T) {
	err := Validate(Spec{
		Name:    "bad",
		Tables:  []string{"jobs"},
		Columns: []ColumnRef{{Name: "id", Convert: "nope"}},
		Format:  FormatCSV,
		Output:  "bad.csv",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, schema.ErrConfig)
}

func TestValidateFanOutNeedsPlaceholder(t *testing.T) {
	err := Validate(Spec{
		Name:       "bad",
		Tables:     []string{"jobs"},
		Columns:    []ColumnRef{{Name: "id"}},
		Format:     FormatCSV,
		Output:     "fixed.csv",
		FileColumn: "job",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, schema.ErrConfig)
}
