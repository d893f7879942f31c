// Package ledger tracks filename collisions encountered during an
// archive run and persists them to a JSON sidecar file.
//
// The sidecar is a two-level mapping: database path -> conflicting file
// path -> name of the pre-existing row it collided with. Multiple runs
// (and multiple databases) may share one sidecar, so persistence is a
// load -> merge -> atomic-write sequence, never an in-place overwrite.
package ledger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/google/renameio"
)

// Ledger accumulates duplicate records for one run.
type Ledger struct {
	// entries maps database path -> conflicting path -> existing row name.
	entries map[string]map[string]string
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{entries: make(map[string]map[string]string)}
}

// Record notes that conflictPath failed to insert into the database at
// dbKey because a row named existingName was already present.
func (l *Ledger) Record(dbKey, conflictPath, existingName string) {
	bucket, ok := l.entries[dbKey]
	if !ok {
		bucket = make(map[string]string)
		l.entries[dbKey] = bucket
	}
	bucket[conflictPath] = existingName
}

// Len returns the total number of recorded conflicts across all
// database buckets.
func (l *Ledger) Len() int {
	n := 0
	for _, bucket := range l.entries {
		n += len(bucket)
	}
	return n
}

// Bucket returns a copy of the entries recorded under dbKey.
func (l *Ledger) Bucket(dbKey string) map[string]string {
	out := make(map[string]string, len(l.entries[dbKey]))
	for path, name := range l.entries[dbKey] {
		out[path] = name
	}
	return out
}

// MergeFile loads an existing sidecar and merges its contents under the
// current state. Disk entries for keys this run also recorded are
// superseded by the run's entries; everything else is kept, so two
// databases sharing one sidecar never clobber each other. A missing
// file is not an error.
func (l *Ledger) MergeFile(path string) error {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading sidecar %s: %w", path, err)
	}

	var disk map[string]map[string]string
	if err := json.Unmarshal(raw, &disk); err != nil {
		return fmt.Errorf("parsing sidecar %s: %w", path, err)
	}

	for dbKey, bucket := range disk {
		for conflictPath, existingName := range bucket {
			if _, taken := l.entries[dbKey][conflictPath]; taken {
				continue
			}
			l.Record(dbKey, conflictPath, existingName)
		}
	}
	return nil
}

// Persist writes the merged ledger to path atomically via a temp file
// and rename, so a crash mid-write cannot corrupt a valid sidecar.
func (l *Ledger) Persist(path string) error {
	data, err := json.MarshalIndent(l.entries, "", "    ")
	if err != nil {
		return fmt.Errorf("encoding sidecar: %w", err)
	}
	data = append(data, '\n')
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing sidecar %s: %w", path, err)
	}
	return nil
}

// Summary writes a human-readable conflict listing to w, one
// "conflicting path -> existing name" pair per line. When onlyDB is
// non-empty, only that database's bucket is shown.
func (l *Ledger) Summary(w io.Writer, onlyDB string) {
	dbKeys := make([]string, 0, len(l.entries))
	for dbKey := range l.entries {
		if onlyDB != "" && dbKey != onlyDB {
			continue
		}
		if len(l.entries[dbKey]) == 0 {
			continue
		}
		dbKeys = append(dbKeys, dbKey)
	}
	sort.Strings(dbKeys)

	for _, dbKey := range dbKeys {
		fmt.Fprintf(w, "Duplicate files in %s:\n", dbKey)
		bucket := l.entries[dbKey]
		paths := make([]string, 0, len(bucket))
		for path := range bucket {
			paths = append(paths, path)
		}
		sort.Strings(paths)
		for _, path := range paths {
			fmt.Fprintf(w, "  %s -> %s\n", path, bucket[path])
		}
	}
}
