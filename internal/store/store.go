// Package store owns the archive schema: one SQLite table per logical
// archive, holding file names, content digests and raw bytes.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Store provides durable storage for one archive table inside a SQLite
// database file. All access within a run goes through a single handle;
// concurrent external writers are not coordinated against.
type Store struct {
	db    *sql.DB
	path  string
	table string
}

// expected archive columns, in PRAGMA table_info order.
var archiveColumns = []struct {
	name, typ string
}{
	{"name", "TEXT"},
	{"hash", "BLOB"},
	{"data", "BLOB"},
}

// Open creates or opens the database at path and ensures the named
// archive table exists with the expected columns.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//
// Idempotent: safe to call against an existing archive. An existing
// table with a different column set is a SchemaError.
func Open(path, table string) (*Store, error) {
	return open(path, table, true)
}

// OpenExisting opens the database at path and requires the named table
// to already exist. Used by extraction, where there is nothing sensible
// to create.
func OpenExisting(path, table string) (*Store, error) {
	return open(path, table, false)
}

func open(path, table string, create bool) (*Store, error) {
	if err := validateTableName(table); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite supports one writer at a time; a single connection avoids
	// SQLITE_BUSY inside our own process.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	s := &Store{db: db, path: path, table: table}

	exists, err := s.tableExists()
	if err != nil {
		db.Close()
		return nil, err
	}

	switch {
	case !exists && !create:
		db.Close()
		return nil, &SchemaError{Table: table, Reason: "table does not exist"}
	case !exists:
		if err := s.createSchema(); err != nil {
			db.Close()
			return nil, err
		}
	default:
		if err := s.verifyColumns(); err != nil {
			db.Close()
			return nil, err
		}
	}

	return s, nil
}

// Close runs PRAGMA optimize and closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	// Best effort; optimize failing should not mask the close itself.
	_, _ = s.db.Exec("PRAGMA optimize")
	return s.db.Close()
}

// Path returns the database file path this store was opened with.
func (s *Store) Path() string { return s.path }

// Table returns the archive table name this store operates on.
func (s *Store) Table() string { return s.table }

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// validateTableName rejects names that cannot be safely embedded as a
// quoted SQLite identifier. The table name is operator- or
// inference-provided and cannot be bound as a query parameter.
func validateTableName(table string) error {
	if table == "" {
		return &SchemaError{Table: table, Reason: "empty table name"}
	}
	if strings.ContainsAny(table, "\"\x00") {
		return &SchemaError{Table: table, Reason: "table name contains invalid characters"}
	}
	return nil
}

// quoted returns the table name as a quoted identifier for embedding
// in SQL text.
func (s *Store) quoted() string {
	return `"` + s.table + `"`
}

func (s *Store) tableExists() (bool, error) {
	var name string
	err := s.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
		s.table,
	).Scan(&name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking for table %q: %w", s.table, err)
	}
	return true, nil
}

// createSchema creates the archive table and its unique name index.
// Uniqueness keys off name, not hash: the digest is stored for
// integrity and future dedup use, not identity.
func (s *Store) createSchema() error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	name TEXT NOT NULL UNIQUE,
	hash BLOB NOT NULL,
	data BLOB NOT NULL
)`, s.quoted())
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("failed to create table %q: %w", s.table, err)
	}
	idx := fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS "%s_name_idx" ON %s (name ASC)`,
		s.table, s.quoted())
	if _, err := s.db.Exec(idx); err != nil {
		return fmt.Errorf("failed to create name index on %q: %w", s.table, err)
	}
	return nil
}

// verifyColumns checks an existing table against the expected archive
// column set. Extra, missing or retyped columns make the table
// unusable by this tool rather than silently corruptible.
func (s *Store) verifyColumns() error {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", s.quoted()))
	if err != nil {
		return fmt.Errorf("reading table info for %q: %w", s.table, err)
	}
	defer rows.Close()

	type column struct{ name, typ string }
	var got []column
	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultVal, &pk); err != nil {
			return fmt.Errorf("scanning table info for %q: %w", s.table, err)
		}
		got = append(got, column{name: name, typ: strings.ToUpper(typ)})
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("reading table info for %q: %w", s.table, err)
	}

	if len(got) != len(archiveColumns) {
		return &SchemaError{
			Table:  s.table,
			Reason: fmt.Sprintf("expected %d columns, found %d", len(archiveColumns), len(got)),
		}
	}
	for i, want := range archiveColumns {
		if got[i].name != want.name || got[i].typ != want.typ {
			return &SchemaError{
				Table: s.table,
				Reason: fmt.Sprintf("column %d is %s %s, expected %s %s",
					i, got[i].name, got[i].typ, want.name, want.typ),
			}
		}
	}
	return nil
}

// Drop removes the archive table entirely.
func (s *Store) Drop(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DROP TABLE "+s.quoted()); err != nil {
		return fmt.Errorf("dropping table %q: %w", s.table, err)
	}
	return nil
}

// Vacuum compacts the database file. Can take a while on large
// archives.
func (s *Store) Vacuum(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("vacuuming %s: %w", s.path, err)
	}
	return nil
}

// Compact vacuums a database without binding to any archive table.
func Compact(ctx context.Context, path string) error {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if _, err := db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("vacuuming %s: %w", path, err)
	}
	return nil
}
