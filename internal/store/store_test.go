package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/roach88/sqlarc/internal/digest"
)

func sumOf(data []byte) []byte {
	return digest.Sum(data)
}

func isDestinationExists(err error) bool {
	return errors.Is(err, ErrDestinationExists)
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path, "files")
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	// Verify file was created
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path, "files")
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path, "files")
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	var name string
	err = s.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
		"files",
	).Scan(&name)
	if err != nil {
		t.Errorf("table not found after idempotent opens: %v", err)
	}
}

func TestOpen_MultipleTablesCoexist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for _, table := range []string{"photos", "docs"} {
		s, err := Open(path, table)
		if err != nil {
			t.Fatalf("Open(%q) failed: %v", table, err)
		}
		s.Close()
	}

	s, err := Open(path, "photos")
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()

	for _, table := range []string{"photos", "docs"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found: %v", table, err)
		}
	}
}

func TestOpen_InvalidTableName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for _, table := range []string{"", `bad"name`} {
		_, err := Open(path, table)
		if !IsSchemaError(err) {
			t.Errorf("Open with table %q: expected SchemaError, got %v", table, err)
		}
	}
}

func TestOpen_IncompatibleColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path, "files")
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if _, err := s.db.Exec("DROP TABLE files"); err != nil {
		t.Fatalf("drop failed: %v", err)
	}
	if _, err := s.db.Exec("CREATE TABLE files (id INTEGER PRIMARY KEY, body TEXT)"); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	s.Close()

	_, err = Open(path, "files")
	if !IsSchemaError(err) {
		t.Errorf("expected SchemaError for incompatible columns, got %v", err)
	}
}

func TestOpenExisting_MissingTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path, "files")
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	s.Close()

	_, err = OpenExisting(path, "no_such_table")
	if !IsSchemaError(err) {
		t.Errorf("expected SchemaError for missing table, got %v", err)
	}
}

func mustOpen(t *testing.T, path, table string) *Store {
	t.Helper()
	s, err := Open(path, table)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func record(name, content string) *FileRecord {
	data := []byte(content)
	return &FileRecord{Name: name, Hash: sumOf(data), Data: data}
}

func TestInsert_And_Conflict(t *testing.T) {
	ctx := context.Background()
	s := mustOpen(t, filepath.Join(t.TempDir(), "test.db"), "files")

	conflict, err := s.Insert(ctx, record("a.txt", "first"))
	if err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	if conflict != nil {
		t.Fatalf("unexpected conflict on first insert: %+v", conflict)
	}

	// Same name, different content: rejected, identity is name-based.
	conflict, err = s.Insert(ctx, record("a.txt", "second"))
	if err != nil {
		t.Fatalf("second insert errored fatally: %v", err)
	}
	if conflict == nil {
		t.Fatal("expected a conflict for duplicate name")
	}
	if conflict.ExistingName != "a.txt" {
		t.Errorf("conflict references %q, expected %q", conflict.ExistingName, "a.txt")
	}

	// The table retains exactly one row for that name, with the
	// original content.
	n, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("Count() failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 row, found %d", n)
	}

	var data []byte
	if err := s.db.QueryRow(`SELECT data FROM "files" WHERE name = ?`, "a.txt").Scan(&data); err != nil {
		t.Fatalf("readback failed: %v", err)
	}
	if string(data) != "first" {
		t.Errorf("row data = %q, expected original content", data)
	}
}

func TestInsert_BatchContinuesPastConflict(t *testing.T) {
	ctx := context.Background()
	s := mustOpen(t, filepath.Join(t.TempDir(), "test.db"), "files")

	recs := []*FileRecord{
		record("one.txt", "1"),
		record("one.txt", "collides with the first"),
		record("three.txt", "3"),
	}

	var conflicts int
	for _, rec := range recs {
		conflict, err := s.Insert(ctx, rec)
		if err != nil {
			t.Fatalf("insert %q failed: %v", rec.Name, err)
		}
		if conflict != nil {
			conflicts++
		}
	}

	if conflicts != 1 {
		t.Errorf("expected exactly 1 conflict, got %d", conflicts)
	}
	n, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("Count() failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected rows for one.txt and three.txt only, found %d rows", n)
	}
}

func TestReplace(t *testing.T) {
	ctx := context.Background()
	s := mustOpen(t, filepath.Join(t.TempDir(), "test.db"), "files")

	if _, err := s.Insert(ctx, record("a.txt", "old")); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if err := s.Replace(ctx, record("a.txt", "new")); err != nil {
		t.Fatalf("replace failed: %v", err)
	}

	var data []byte
	if err := s.db.QueryRow(`SELECT data FROM "files" WHERE name = ?`, "a.txt").Scan(&data); err != nil {
		t.Fatalf("readback failed: %v", err)
	}
	if string(data) != "new" {
		t.Errorf("data = %q after replace, expected %q", data, "new")
	}
}

func TestRenameEntry(t *testing.T) {
	ctx := context.Background()
	s := mustOpen(t, filepath.Join(t.TempDir(), "test.db"), "files")

	if _, err := s.Insert(ctx, record("a.txt", "1")); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if _, err := s.Insert(ctx, record("b.txt", "2")); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	conflict, err := s.RenameEntry(ctx, "a.txt", "c.txt")
	if err != nil {
		t.Fatalf("rename failed: %v", err)
	}
	if conflict != nil {
		t.Fatalf("unexpected conflict: %+v", conflict)
	}

	exists, err := s.Contains(ctx, "c.txt")
	if err != nil || !exists {
		t.Errorf("renamed entry not found (exists=%v, err=%v)", exists, err)
	}

	// Renaming onto an occupied name is a conflict, not an error.
	conflict, err = s.RenameEntry(ctx, "c.txt", "b.txt")
	if err != nil {
		t.Fatalf("rename errored fatally: %v", err)
	}
	if conflict == nil || conflict.ExistingName != "b.txt" {
		t.Errorf("expected conflict with b.txt, got %+v", conflict)
	}

	// Renaming a missing entry is an error.
	if _, err := s.RenameEntry(ctx, "ghost.txt", "x.txt"); err == nil {
		t.Error("expected error renaming a missing entry")
	}
}

func TestStreamAll_OrderedSinglePass(t *testing.T) {
	ctx := context.Background()
	s := mustOpen(t, filepath.Join(t.TempDir(), "test.db"), "files")

	for _, name := range []string{"c.txt", "a.txt", "b.txt"} {
		if _, err := s.Insert(ctx, record(name, "data for "+name)); err != nil {
			t.Fatalf("insert %q failed: %v", name, err)
		}
	}

	cur, err := s.StreamAll(ctx)
	if err != nil {
		t.Fatalf("StreamAll() failed: %v", err)
	}
	defer cur.Close()

	var names []string
	for cur.Next() {
		rec := cur.Record()
		names = append(names, rec.Name)
		if string(rec.Data) != "data for "+rec.Name {
			t.Errorf("record %q has wrong data", rec.Name)
		}
	}
	if err := cur.Err(); err != nil {
		t.Fatalf("cursor error: %v", err)
	}

	want := []string{"a.txt", "b.txt", "c.txt"}
	if len(names) != len(want) {
		t.Fatalf("got %d records, expected %d", len(names), len(want))
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("record %d = %q, expected %q", i, names[i], want[i])
		}
	}
}

func TestExtract(t *testing.T) {
	dir := t.TempDir()
	rec := record("sub/a.txt", "payload")

	if err := Extract(rec, dir, ExtractOptions{VerifyDigest: true}); err != nil {
		t.Fatalf("Extract() failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "sub", "a.txt"))
	if err != nil {
		t.Fatalf("reading extracted file: %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("extracted content = %q, expected %q", data, "payload")
	}
}

func TestExtract_SkipsExistingByDefault(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(dest, []byte("keep me"), 0o644); err != nil {
		t.Fatal(err)
	}

	rec := record("a.txt", "new content")
	err := Extract(rec, dir, ExtractOptions{})
	if err == nil {
		t.Fatal("expected ErrDestinationExists")
	}
	if !isDestinationExists(err) {
		t.Fatalf("expected ErrDestinationExists, got %v", err)
	}

	data, _ := os.ReadFile(dest)
	if string(data) != "keep me" {
		t.Error("existing file was clobbered")
	}

	// Overwrite mode replaces the file.
	if err := Extract(rec, dir, ExtractOptions{Overwrite: true}); err != nil {
		t.Fatalf("overwrite extract failed: %v", err)
	}
	data, _ = os.ReadFile(dest)
	if string(data) != "new content" {
		t.Error("overwrite did not replace the file")
	}
}

func TestExtract_IntegrityMismatch(t *testing.T) {
	dir := t.TempDir()
	rec := record("a.txt", "payload")
	rec.Data = []byte("tampered")

	err := Extract(rec, dir, ExtractOptions{VerifyDigest: true})
	if !IsIntegrityError(err) {
		t.Fatalf("expected IntegrityError, got %v", err)
	}

	// Nothing may land on disk when verification fails.
	if _, statErr := os.Stat(filepath.Join(dir, "a.txt")); !os.IsNotExist(statErr) {
		t.Error("file was written despite failed verification")
	}
}

func TestDrop(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")
	s := mustOpen(t, path, "files")

	if _, err := s.Insert(ctx, record("a.txt", "1")); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if err := s.Drop(ctx); err != nil {
		t.Fatalf("Drop() failed: %v", err)
	}
	if err := s.Vacuum(ctx); err != nil {
		t.Fatalf("Vacuum() failed: %v", err)
	}
	s.Close()

	if _, err := OpenExisting(path, "files"); !IsSchemaError(err) {
		t.Errorf("expected SchemaError after drop, got %v", err)
	}
}

func TestCompact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s := mustOpen(t, path, "files")
	s.Close()

	if err := Compact(context.Background(), path); err != nil {
		t.Fatalf("Compact() failed: %v", err)
	}
}
