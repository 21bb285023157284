package sqlback

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/tably/tably/internal/engine"
	"github.com/tably/tably/internal/shape"
)

// DB is a SQLite database that backs symbol leaves with tables.
type DB struct {
	db     *sql.DB
	logger *slog.Logger
}

// Option configures a DB.
type Option func(*DB)

// WithLogger sets the logger used for query debug lines.
func WithLogger(l *slog.Logger) Option {
	return func(d *DB) { d.logger = l }
}

// Open creates or opens a SQLite database at the given path. Use
// ":memory:" for an ephemeral database.
func Open(path string, opts ...Option) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sqlback: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlback: connect: %w", err)
	}

	// SQLite allows one writer; a single connection avoids SQLITE_BUSY
	// and keeps ":memory:" databases on one handle.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlback: execute %q: %w", pragma, err)
		}
	}

	d := &DB{db: db, logger: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("component", "sqlback")
	return d, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	if d.db == nil {
		return nil
	}
	return d.db.Close()
}

// CreateTable creates a table with one column per record field, typed
// so scans come back as the right Go kinds. Idempotent.
func (d *DB) CreateTable(ctx context.Context, name string, rec shape.Record) error {
	cols := make([]string, len(rec.Fields))
	for i, f := range rec.Fields {
		cols[i] = quoteIdent(f.Name) + " " + sqlType(f.Type)
	}
	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quoteIdent(name), strings.Join(cols, ", "))
	if _, err := d.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("sqlback: create table %s: %w", name, err)
	}
	return nil
}

// Insert appends rows in one transaction. Every value is bound as a
// statement parameter.
func (d *DB) Insert(ctx context.Context, name string, rows ...engine.Row) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlback: begin insert into %s: %w", name, err)
	}
	defer tx.Rollback()

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(rows[0])), ", ")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s VALUES (%s)", quoteIdent(name), placeholders))
	if err != nil {
		return fmt.Errorf("sqlback: prepare insert into %s: %w", name, err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, []any(row)...); err != nil {
			return fmt.Errorf("sqlback: insert into %s: %w", name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlback: commit insert into %s: %w", name, err)
	}
	return nil
}

// Load creates the table and inserts the rows.
func (d *DB) Load(ctx context.Context, name string, rec shape.Record, rows ...engine.Row) error {
	if err := d.CreateTable(ctx, name, rec); err != nil {
		return err
	}
	return d.Insert(ctx, name, rows...)
}

// sqlType maps a column shape to a SQLite declared type. BOOLEAN and
// DATETIME matter: the driver uses the declared type to produce bool
// and time.Time values on scan.
func sqlType(s shape.Shape) string {
	switch shape.Unwrap(s) {
	case shape.Int:
		return "INTEGER"
	case shape.Float:
		return "REAL"
	case shape.Bool:
		return "BOOLEAN"
	case shape.DateTime:
		return "DATETIME"
	default:
		return "TEXT"
	}
}
