// Copyright ©2024 The sensors Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sqlstore provides an implementation of a sensors store, backed by
// a relational database (SQLite or PostgreSQL).
package sqlstore // import "sbinet.org/x/sensors/internal/sqlstore"

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"iter"
	"net"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
	"sbinet.org/x/sensors"
)

// Dialect is the SQL flavour spoken by the database.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// ParseDialect parses a dialect or driver name.
func ParseDialect(v string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "sqlite", "sqlite3", "":
		return SQLite, nil
	case "postgres", "postgresql", "pq":
		return Postgres, nil
	default:
		return "", fmt.Errorf("%w: unknown SQL dialect %q", sensors.ErrValidation, v)
	}
}

// driver returns the database/sql driver name.
func (d Dialect) driver() string {
	switch d {
	case Postgres:
		return "postgres"
	default:
		return "sqlite"
	}
}

// goqu returns the goqu dialect name.
func (d Dialect) goqu() string {
	switch d {
	case Postgres:
		return "postgres"
	default:
		return "sqlite3"
	}
}

// maxRows returns the largest number of readings one INSERT statement may
// bind, given the bound-parameter limit of the database.
func (d Dialect) maxRows() int {
	switch d {
	case Postgres:
		return 65535 / len(columns)
	default:
		return 32766 / len(columns)
	}
}

func (d Dialect) placeholder(i int) string {
	switch d {
	case Postgres:
		return fmt.Sprintf("$%d", i)
	default:
		return fmt.Sprintf("?%d", i)
	}
}

// Options configures a SQL store.
type Options struct {
	Dialect  Dialect
	DSN      string
	Table    string // defaults to "sensors" (append) or "sensors_latest" (upsert).
	Mode     sensors.Mode
	MaxConns int // SQLite defaults to a single connection.
	MaxIdle  int
}

// sqliteBusyTimeout is how long a SQLite connection waits on a locked
// database before failing.
const sqliteBusyTimeout = 5 * time.Second

var columns = []string{"sensor_id", "temperature", "wind", "rhumidity", "co2", "reading_time"}

var validTable = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// DefaultTable returns the default table name of a persistence model.
func DefaultTable(mode sensors.Mode) string {
	if mode == sensors.Upsert {
		return "sensors_latest"
	}
	return "sensors"
}

type DB struct {
	db      *sql.DB
	dialect Dialect
	table   string
	ident   string // quoted table name
	mode    sensors.Mode
	maxRows int // readings per INSERT statement

	query string // select statement of all rows
}

var _ sensors.Store = (*DB)(nil)

// Open opens and initializes a SQL-backed sensors store.
func Open(ctx context.Context, opts Options) (*DB, error) {
	if opts.Table == "" {
		opts.Table = DefaultTable(opts.Mode)
	}
	if !validTable.MatchString(opts.Table) {
		return nil, fmt.Errorf("%w: invalid table name %q", sensors.ErrValidation, opts.Table)
	}

	dsn := opts.DSN
	if opts.Dialect == SQLite {
		dsn = sqliteDSN(dsn)
		if opts.MaxConns <= 0 {
			// SQLite serializes writers anyway.
			opts.MaxConns = 1
		}
	}

	db, err := sql.Open(opts.Dialect.driver(), dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: could not open %s db: %w", sensors.ErrConnection, opts.Dialect, err)
	}
	if opts.MaxConns > 0 {
		db.SetMaxOpenConns(opts.MaxConns)
	}
	if opts.MaxIdle > 0 {
		db.SetMaxIdleConns(opts.MaxIdle)
	}

	err = db.PingContext(ctx)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: could not ping %s db: %w", sensors.ErrConnection, opts.Dialect, err)
	}

	store, err := New(db, opts.Dialect, opts.Table, opts.Mode)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	err = store.init(ctx, opts.DSN)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("could not setup sensors db: %w", err)
	}

	return store, nil
}

// sqliteDSN adds a busy timeout to a SQLite data source name, unless it
// already sets one.
func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "busy_timeout") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%s_pragma=busy_timeout(%d)", dsn, sep, sqliteBusyTimeout.Milliseconds())
}

// quoteIdent quotes a possibly schema-qualified identifier, preserving its case.
func quoteIdent(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = `"` + p + `"`
	}
	return strings.Join(parts, ".")
}

// New wraps an already opened database handle.
// The table is expected to exist.
func New(db *sql.DB, dialect Dialect, table string, mode sensors.Mode) (*DB, error) {
	if table == "" {
		table = DefaultTable(mode)
	}
	if !validTable.MatchString(table) {
		return nil, fmt.Errorf("%w: invalid table name %q", sensors.ErrValidation, table)
	}

	cols := make([]any, len(columns))
	for i, c := range columns {
		cols[i] = c
	}
	query, _, err := goqu.Dialect(dialect.goqu()).
		From(table).
		Select(cols...).
		Order(goqu.I("sensor_id").Asc(), goqu.I("reading_time").Asc()).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("could not build select statement: %w", err)
	}

	return &DB{
		db:      db,
		dialect: dialect,
		table:   table,
		ident:   quoteIdent(table),
		mode:    mode,
		maxRows: dialect.maxRows(),
		query:   query,
	}, nil
}

func (db *DB) init(ctx context.Context, dsn string) error {
	key := "sensor_id    TEXT NOT NULL,"
	if db.mode == sensors.Upsert {
		key = "sensor_id    TEXT NOT NULL PRIMARY KEY,"
	}
	stmt := `CREATE TABLE IF NOT EXISTS ` + db.ident + ` (
	` + key + `             -- sensor identifier
	temperature  DOUBLE PRECISION NOT NULL, -- temperature (in °C)
	wind         DOUBLE PRECISION NOT NULL, -- wind speed (in km/h)
	rhumidity    DOUBLE PRECISION NOT NULL, -- relative humidity (in %)
	co2          DOUBLE PRECISION NOT NULL, -- CO2 level (in ppm)
	reading_time BIGINT NOT NULL            -- capture time (milliseconds since epoch UTC)
)
`
	_, err := db.db.ExecContext(ctx, stmt)
	if err != nil {
		return fmt.Errorf("%w: could not create table %q: %w", sensors.ErrStore, db.table, err)
	}

	if db.mode == sensors.Append {
		schema, name := "", db.table
		if i := strings.Index(db.table, "."); i >= 0 {
			schema, name = db.table[:i], db.table[i+1:]
		}
		// sqlite qualifies the index, postgres qualifies the table.
		index := quoteIdent(name + "_sensor_id_idx")
		stmt := `CREATE INDEX IF NOT EXISTS ` + index + ` ON ` + db.ident + ` (sensor_id, reading_time)`
		if db.dialect == SQLite {
			if schema != "" {
				index = quoteIdent(schema) + "." + index
			}
			stmt = `CREATE INDEX IF NOT EXISTS ` + index + ` ON ` + quoteIdent(name) + ` (sensor_id, reading_time)`
		}
		_, err = db.db.ExecContext(ctx, stmt)
		if err != nil {
			return fmt.Errorf("%w: could not create index on %q: %w", sensors.ErrStore, db.table, err)
		}
	}

	if db.dialect != SQLite || strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
		return nil
	}

	// Use Write Ahead Logging which improves SQLite concurrency.
	// Requires SQLite >= 3.7.0
	_, err = db.db.ExecContext(ctx, "PRAGMA journal_mode = WAL")
	if err != nil {
		return fmt.Errorf("could not set WAL mode: %w", err)
	}

	// Check if the WAL mode was set correctly
	var journalMode string
	if err = db.db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&journalMode); err != nil {
		return fmt.Errorf("could not determine sqlite3 journal_mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("could not set sqlite WAL mode")
	}

	return nil
}

// Close closes the sensors database.
func (db *DB) Close() error {
	if db.db != nil {
		err := db.db.Close()
		if err != nil {
			return fmt.Errorf("could not close %s db: %w", db.dialect, err)
		}
		db.db = nil
	}

	return nil
}

// Mode returns the persistence model of the store.
func (db *DB) Mode() sensors.Mode { return db.mode }

// Table returns the name of the readings table.
func (db *DB) Table() string { return db.table }

// WriteChunk writes the provided readings in one transaction.
// Append chunks larger than the bound-parameter limit of the database are
// inserted with several statements of that transaction.
func (db *DB) WriteChunk(ctx context.Context, vs []sensors.Reading) (err error) {
	if len(vs) == 0 {
		return nil
	}

	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(fmt.Errorf("could not create transaction: %w", err))
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, tx.Rollback())
		}
	}()

	switch db.mode {
	case sensors.Upsert:
		stmt := db.upsertQuery()
		for _, v := range vs {
			_, err = tx.ExecContext(ctx, stmt, args(v)...)
			if err != nil {
				return classify(fmt.Errorf("could not upsert reading of sensor %q: %w", v.ID, err))
			}
		}
	default:
		for part := range slices.Chunk(vs, db.maxRows) {
			vals := make([]any, 0, len(part)*len(columns))
			for _, v := range part {
				vals = append(vals, args(v)...)
			}
			_, err = tx.ExecContext(ctx, db.insertQuery(len(part)), vals...)
			if err != nil {
				return classify(fmt.Errorf("could not insert %d readings: %w", len(part), err))
			}
		}
	}

	err = tx.Commit()
	if err != nil {
		return classify(fmt.Errorf("could not commit transaction: %w", err))
	}

	return nil
}

func (db *DB) insertQuery(n int) string {
	o := new(strings.Builder)
	o.WriteString("INSERT INTO " + db.ident + " (" + strings.Join(columns, ", ") + ") VALUES ")
	for i := 0; i < n; i++ {
		if i != 0 {
			o.WriteString(", ")
		}
		o.WriteString("(")
		for k := range columns {
			if k != 0 {
				o.WriteString(", ")
			}
			o.WriteString(db.dialect.placeholder(i*len(columns) + k + 1))
		}
		o.WriteString(")")
	}
	return o.String()
}

func (db *DB) upsertQuery() string {
	o := new(strings.Builder)
	o.WriteString(db.insertQuery(1))
	o.WriteString(" ON CONFLICT (sensor_id) DO UPDATE SET ")
	for i, c := range columns[1:] {
		if i != 0 {
			o.WriteString(", ")
		}
		o.WriteString(c + " = EXCLUDED." + c)
	}
	return o.String()
}

func args(v sensors.Reading) []any {
	return []any{v.ID, v.T, v.Wind, v.H, v.CO2, v.Time.UTC().UnixMilli()}
}

// Readings iterates over all the readings of the table.
func (db *DB) Readings(ctx context.Context) iter.Seq2[sensors.Reading, error] {
	return func(yield func(sensors.Reading, error) bool) {
		rows, err := db.db.QueryContext(ctx, db.query)
		if err != nil {
			_ = yield(sensors.Reading{}, classify(fmt.Errorf("could not issue query: %w", err)))
			return
		}
		defer rows.Close()

		for i := 0; rows.Next(); i++ {
			var (
				row sensors.Reading
				ms  int64
			)
			err = rows.Scan(&row.ID, &row.T, &row.Wind, &row.H, &row.CO2, &ms)
			if err != nil {
				_ = yield(row, classify(fmt.Errorf("could not scan row %d: %w", i, err)))
				return
			}
			row.Time = time.UnixMilli(ms).UTC()
			if !yield(row, nil) {
				return
			}
		}

		err = rows.Err()
		if err != nil {
			_ = yield(sensors.Reading{}, classify(fmt.Errorf("could not iterate over rows: %w", err)))
		}
	}
}

// classify tags err with the kind of store failure it denotes.
func classify(err error) error {
	var nerr net.Error
	switch {
	case errors.Is(err, driver.ErrBadConn), errors.As(err, &nerr):
		return fmt.Errorf("%w: %w", sensors.ErrConnection, err)
	default:
		return fmt.Errorf("%w: %w", sensors.ErrStore, err)
	}
}
