package database

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"data-manager/core/schema"
	"data-manager/core/utils"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// ErrBackendIO marks failures to open or talk to the backend. They are
// fatal for the affected database's reconciliation or export pass.
var ErrBackendIO = errors.New("backend I/O failure")

// RowFunc is invoked once per result row, in result-set order, with the
// scanned values. Returning an error stops the scan and surfaces the error
// to the Execute caller.
type RowFunc func(values []any) error

// Backend is the contract the reconciler and exporter consume. A Backend
// instance is bound to one physical database.
type Backend interface {
	// FileExists reports whether the backing database file already exists.
	FileExists() bool
	// Init opens the connection. It must be called before any other method.
	Init() error
	// Close releases the connection.
	Close() error

	ListTables() ([]string, error)
	// ListColumns returns the live columns of table in definition order.
	ListColumns(table string) ([]schema.ColumnSpec, error)
	AddColumn(table string, col schema.ColumnSpec) error
	CreateTable(spec schema.TableSpec) error
	// RecreateTable rebuilds table under the new spec, preserving data for
	// columns common to both schemas.
	RecreateTable(table string, spec schema.TableSpec) error
	DropTable(table string) error

	ListIndexes() ([]string, error)
	// ListIndexColumns returns the ordered column names of an index.
	ListIndexColumns(index string) ([]string, error)
	CreateIndex(table, index string, columns []string) error
	DropIndex(index string) error

	// Execute streams the result set of query through fn, one row at a
	// time.
	Execute(query string, args []any, fn RowFunc) error
	// ExecuteScalarMap runs query and returns a keyCol -> valueCol map.
	ExecuteScalarMap(query string, keyCol, valueCol string) (map[string]string, error)
}

// GormBackend implements Backend on top of a GORM connection.
type GormBackend struct {
	cfg  Config
	spec schema.DatabaseSpec
	db   *gorm.DB
}

// New creates a backend for one configured database. The connection is not
// opened until Init.
func New(cfg Config, spec schema.DatabaseSpec) *GormBackend {
	return &GormBackend{cfg: cfg, spec: spec}
}

// NewWithDB wraps an already open GORM connection. Used by tests and by
// hosts that manage connections themselves.
func NewWithDB(db *gorm.DB, spec schema.DatabaseSpec) *GormBackend {
	return &GormBackend{spec: spec, db: db}
}

// filePath returns the sqlite file backing this database.
func (b *GormBackend) filePath() string {
	return filepath.Join(b.cfg.Path, b.spec.File)
}

// FileExists reports whether the sqlite file is already on disk. MySQL
// deployments have no file; the schema either answers or Init fails.
func (b *GormBackend) FileExists() bool {
	if b.cfg.Driver == DriverMySQL {
		return true
	}
	_, err := os.Stat(b.filePath())
	return err == nil
}

// Init opens the database connection.
func (b *GormBackend) Init() error {
	if b.db != nil {
		return nil
	}

	// Suppress GORM logging; the callers own reporting.
	gormConfig := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	}

	var err error
	switch b.cfg.Driver {
	case DriverMySQL:
		b.db, err = gorm.Open(mysql.Open(b.mysqlDSN()), gormConfig)
	default:
		if dir := filepath.Dir(b.filePath()); dir != "." {
			if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
				return fmt.Errorf("%w: %v", ErrBackendIO, mkErr)
			}
		}
		b.db, err = gorm.Open(sqlite.Open(b.filePath()), gormConfig)
	}
	if err != nil {
		b.db = nil
		return fmt.Errorf("%w: failed to open database %s: %v", ErrBackendIO, b.spec.Name, err)
	}

	sqlDB, err := b.db.DB()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendIO, err)
	}

	timeout := b.cfg.TimeoutSeconds
	if timeout <= 0 {
		timeout = 30
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeout)*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: failed to ping database %s: %v", ErrBackendIO, b.spec.Name, err)
	}

	return nil
}

// mysqlDSN builds the DSN for a hosted deployment. Each configured
// database maps to a MySQL schema of the same name.
func (b *GormBackend) mysqlDSN() string {
	userInfo := url.UserPassword(b.cfg.User, b.cfg.Password).String()

	timeout := b.cfg.TimeoutSeconds
	if timeout <= 0 {
		timeout = 30
	}

	return fmt.Sprintf("%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local&timeout=%ds&readTimeout=%ds&writeTimeout=%ds",
		userInfo, b.cfg.Host, b.cfg.Port, b.spec.Name, timeout, timeout, timeout)
}

// Close releases the underlying connection.
func (b *GormBackend) Close() error {
	if b.db == nil {
		return nil
	}
	sqlDB, err := b.db.DB()
	if err != nil {
		return err
	}
	b.db = nil
	return sqlDB.Close()
}

// quote renders an identifier in the dialect's quoting syntax.
func (b *GormBackend) quote(name string) string {
	id := schema.NewIdentifier(name)
	if b.dialect() == DriverMySQL {
		return id.QuotedWith('`')
	}
	return id.Quoted()
}

func (b *GormBackend) dialect() string {
	if b.db != nil && b.db.Dialector.Name() == "mysql" {
		return DriverMySQL
	}
	if b.db != nil && b.db.Dialector.Name() == "sqlite" {
		return DriverSQLite
	}
	return b.cfg.Driver
}

// Execute streams the result set of query through fn, one row at a time.
// Values are scanned as the driver's native types.
func (b *GormBackend) Execute(query string, args []any, fn RowFunc) error {
	rows, err := b.db.Raw(query, args...).Rows()
	if err != nil {
		return fmt.Errorf("%w: query failed: %v", ErrBackendIO, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendIO, err)
	}

	values := make([]any, len(cols))
	scanTargets := make([]any, len(cols))
	for i := range values {
		scanTargets[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(scanTargets...); err != nil {
			return fmt.Errorf("%w: row scan failed: %v", ErrBackendIO, err)
		}
		if err := fn(values); err != nil {
			return err
		}
	}

	return rows.Err()
}

// ExecuteScalarMap runs query and collects a keyCol -> valueCol map from
// the result set.
func (b *GormBackend) ExecuteScalarMap(query string, keyCol, valueCol string) (map[string]string, error) {
	rows, err := b.db.Raw(query).Rows()
	if err != nil {
		return nil, fmt.Errorf("%w: query failed: %v", ErrBackendIO, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendIO, err)
	}

	keyIdx, valueIdx := -1, -1
	for i, c := range cols {
		if schema.SameName(c, keyCol) {
			keyIdx = i
		}
		if schema.SameName(c, valueCol) {
			valueIdx = i
		}
	}
	if keyIdx < 0 || valueIdx < 0 {
		return nil, fmt.Errorf("%w: columns %s/%s not in result set", ErrBackendIO, keyCol, valueCol)
	}

	result := make(map[string]string)
	values := make([]any, len(cols))
	scanTargets := make([]any, len(cols))
	for i := range values {
		scanTargets[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, fmt.Errorf("%w: row scan failed: %v", ErrBackendIO, err)
		}
		result[utils.ToString(values[keyIdx])] = utils.ToString(values[valueIdx])
	}

	return result, rows.Err()
}
