package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/sqlarc/internal/digest"
)

// FileRecord is one archived file: its stored name, the SHA-512 digest
// of its content, and the raw bytes. Rows are created on add and never
// mutated (outside of explicit replace mode).
type FileRecord struct {
	Name string
	Hash []byte
	Data []byte
}

// Conflict reports a failed insert caused by a UNIQUE violation on the
// name column. ExistingName is the name of the row already occupying
// the slot.
type Conflict struct {
	ExistingName string
}

// Insert attempts to add a record to the archive table.
//
// A UNIQUE violation on name returns a non-nil Conflict and a nil
// error: the caller records it and continues with the rest of the
// batch. Any other failure is fatal to the batch.
func (s *Store) Insert(ctx context.Context, rec *FileRecord) (*Conflict, error) {
	query := fmt.Sprintf("INSERT INTO %s (name, hash, data) VALUES (?, ?, ?)", s.quoted())
	_, err := s.db.ExecContext(ctx, query, rec.Name, rec.Hash, rec.Data)
	if err == nil {
		return nil, nil
	}

	var serr sqlite3.Error
	if errors.As(err, &serr) && serr.ExtendedCode == sqlite3.ErrConstraintUnique {
		existing, lookupErr := s.nameFor(ctx, rec.Name)
		if lookupErr != nil {
			return nil, fmt.Errorf("resolving conflicting row for %q: %w", rec.Name, lookupErr)
		}
		return &Conflict{ExistingName: existing}, nil
	}
	return nil, fmt.Errorf("inserting %q into %q: %w", rec.Name, s.table, err)
}

// Replace inserts a record, overwriting any existing row with the same
// name. Used by replace mode instead of conflict recording.
func (s *Store) Replace(ctx context.Context, rec *FileRecord) error {
	query := fmt.Sprintf("INSERT OR REPLACE INTO %s (name, hash, data) VALUES (?, ?, ?)", s.quoted())
	if _, err := s.db.ExecContext(ctx, query, rec.Name, rec.Hash, rec.Data); err != nil {
		return fmt.Errorf("replacing %q in %q: %w", rec.Name, s.table, err)
	}
	return nil
}

// Contains reports whether a row with the given name exists.
func (s *Store) Contains(ctx context.Context, name string) (bool, error) {
	_, err := s.nameFor(ctx, name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("looking up %q in %q: %w", name, s.table, err)
	}
	return true, nil
}

// nameFor returns the stored name of the row keyed by name, as SQLite
// holds it.
func (s *Store) nameFor(ctx context.Context, name string) (string, error) {
	query := fmt.Sprintf("SELECT name FROM %s WHERE name = ?", s.quoted())
	var stored string
	err := s.db.QueryRowContext(ctx, query, name).Scan(&stored)
	return stored, err
}

// RenameEntry changes the stored name of one row. A UNIQUE violation
// on the new name returns a Conflict, mirroring Insert.
func (s *Store) RenameEntry(ctx context.Context, oldName, newName string) (*Conflict, error) {
	query := fmt.Sprintf("UPDATE %s SET name = ? WHERE name = ?", s.quoted())
	res, err := s.db.ExecContext(ctx, query, newName, oldName)
	if err != nil {
		var serr sqlite3.Error
		if errors.As(err, &serr) && serr.ExtendedCode == sqlite3.ErrConstraintUnique {
			existing, lookupErr := s.nameFor(ctx, newName)
			if lookupErr != nil {
				return nil, fmt.Errorf("resolving conflicting row for %q: %w", newName, lookupErr)
			}
			return &Conflict{ExistingName: existing}, nil
		}
		return nil, fmt.Errorf("renaming %q to %q in %q: %w", oldName, newName, s.table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("renaming %q in %q: %w", oldName, s.table, err)
	}
	if n == 0 {
		return nil, fmt.Errorf("no row named %q in %q", oldName, s.table)
	}
	return nil, nil
}

// Count returns the number of rows in the archive table.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", s.quoted())
	if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting rows in %q: %w", s.table, err)
	}
	return n, nil
}

// Cursor is a lazy, single-pass iteration over an archive table. It is
// finite and not restartable mid-stream; re-open to iterate again.
type Cursor struct {
	rows *sql.Rows
	rec  FileRecord
	err  error
}

// StreamAll yields all rows ordered by name, one at a time, without
// loading the table into memory. The caller must Close the cursor.
func (s *Store) StreamAll(ctx context.Context) (*Cursor, error) {
	query := fmt.Sprintf("SELECT name, hash, data FROM %s ORDER BY name ASC", s.quoted())
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("streaming %q: %w", s.table, err)
	}
	return &Cursor{rows: rows}, nil
}

// Next advances to the next record. It returns false at the end of the
// table or on a scan error; check Err afterwards.
func (c *Cursor) Next() bool {
	if c.err != nil || !c.rows.Next() {
		return false
	}
	c.rec = FileRecord{}
	if err := c.rows.Scan(&c.rec.Name, &c.rec.Hash, &c.rec.Data); err != nil {
		c.err = fmt.Errorf("scanning archive row: %w", err)
		return false
	}
	return true
}

// Record returns the row most recently read by Next. Valid until the
// next call to Next.
func (c *Cursor) Record() *FileRecord {
	return &c.rec
}

// Err returns the first error encountered during iteration.
func (c *Cursor) Err() error {
	if c.err != nil {
		return c.err
	}
	return c.rows.Err()
}

// Close releases the underlying rows.
func (c *Cursor) Close() error {
	return c.rows.Close()
}

// ExtractOptions control how records are written back to files.
type ExtractOptions struct {
	// Overwrite replaces an existing destination file instead of the
	// default skip-and-report.
	Overwrite bool

	// VerifyDigest recomputes the content digest after staging the
	// bytes and fails with an IntegrityError on mismatch.
	VerifyDigest bool
}

// Extract writes rec.Data to dir/rec.Name, creating parent directories
// as needed for nested entry names. An existing destination returns
// ErrDestinationExists unless Overwrite is set; a digest mismatch under
// VerifyDigest returns an IntegrityError before any bytes land on disk.
func Extract(rec *FileRecord, dir string, opts ExtractOptions) error {
	if opts.VerifyDigest {
		got := digest.Sum(rec.Data)
		if !digest.Equal(got, rec.Hash) {
			return &IntegrityError{Name: rec.Name, Want: rec.Hash, Got: got}
		}
	}

	dest := filepath.Join(dir, filepath.FromSlash(rec.Name))
	if !opts.Overwrite {
		if _, err := os.Stat(dest); err == nil {
			return fmt.Errorf("extracting %q: %w", rec.Name, ErrDestinationExists)
		} else if !os.IsNotExist(err) {
			return fmt.Errorf("checking destination for %q: %w", rec.Name, err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("creating directories for %q: %w", rec.Name, err)
	}
	if err := os.WriteFile(dest, rec.Data, 0o644); err != nil {
		return fmt.Errorf("writing %q: %w", dest, err)
	}
	return nil
}
