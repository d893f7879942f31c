// Package engine orchestrates archive runs: expanding input paths,
// hashing and inserting files in add mode, and streaming records back
// to disk in extract mode.
//
// Per-file failures (unreadable sources, name conflicts, integrity
// mismatches) are absorbed at the batch loop and reported; only an
// unusable store or invalid configuration aborts a run.
package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/roach88/sqlarc/internal/digest"
	"github.com/roach88/sqlarc/internal/ledger"
	"github.com/roach88/sqlarc/internal/names"
	"github.com/roach88/sqlarc/internal/store"
)

// Engine runs add and extract batches. One engine per process; runs
// are sequential, there is no internal parallelism.
type Engine struct {
	log   *slog.Logger
	runID string
}

// New creates an engine logging through log. Every log line carries a
// run correlation ID.
func New(log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	runID := uuid.NewString()
	return &Engine{
		log:   log.With("run_id", runID),
		runID: runID,
	}
}

// RunID returns this engine's log correlation ID.
func (e *Engine) RunID() string { return e.runID }

// AddOptions configure one add-mode run.
type AddOptions struct {
	Database string
	// Table is the explicit table name; empty means infer from the
	// first input path.
	Table string
	// Lower lowercases the cleaned or inferred table name.
	Lower bool
	// Paths are the raw CLI path arguments (files, directories,
	// globs).
	Paths []string
	// Exclude lists basenames to skip; nil means DefaultExclusions.
	Exclude []string
	// Replace overwrites existing rows instead of recording conflicts.
	Replace bool

	// DupsPath is the duplicate sidecar location.
	DupsPath string
	// NoDups disables sidecar reading and writing.
	NoDups bool
	// HideDups suppresses the printed duplicate summary.
	HideDups bool
	// DupsCurrentOnly limits the printed summary to this run's
	// database.
	DupsCurrentOnly bool
	// FullDupPath keys ledger entries by absolute path instead of
	// path relative to the root's parent.
	FullDupPath bool

	// DupsOut receives the human-readable duplicate summary. Defaults
	// to os.Stdout.
	DupsOut io.Writer
}

// AddReport summarizes a completed add run.
type AddReport struct {
	Table     string `json:"table"`
	Added     int    `json:"added"`
	Replaced  int    `json:"replaced"`
	Conflicts int    `json:"conflicts"`
	Skipped   int    `json:"skipped"`
}

// Add archives a batch of files. Conflicts and unreadable files are
// recorded and skipped; the run still finishes. A non-nil error means
// the run aborted.
func (e *Engine) Add(ctx context.Context, opts AddOptions) (*AddReport, error) {
	table, err := e.resolveAddTable(opts)
	if err != nil {
		return nil, err
	}

	exclude := opts.Exclude
	if exclude == nil {
		exclude = DefaultExclusions
	}
	inputs, err := CollectInputs(opts.Paths, opts.Database, exclude)
	if err != nil {
		return nil, &ArchiveError{Code: ErrCodeIO, Message: "collecting input files", Err: err}
	}
	if len(inputs) == 0 {
		return nil, &ArchiveError{Code: ErrCodeConfig, Message: "no files to archive", Database: opts.Database, Table: table}
	}

	st, err := store.Open(opts.Database, table)
	if err != nil {
		return nil, storeOpenError(err, opts.Database, table)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			e.log.Error("error closing database", "error", closeErr)
		}
	}()

	led := ledger.New()
	report := &AddReport{Table: table}
	dbKey := opts.Database

	e.log.Info("archiving files", "db", opts.Database, "table", table, "files", len(inputs))

	for _, in := range inputs {
		rec, err := readRecord(in)
		if err != nil {
			// Unreadable source: log and move on, the store is fine.
			e.log.Warn("skipping unreadable file", "path", in.Path, "error", err)
			report.Skipped++
			continue
		}

		if opts.Replace {
			exists, err := st.Contains(ctx, rec.Name)
			if err != nil {
				return nil, &ArchiveError{Code: ErrCodeStorage, Message: "checking existing row", Database: opts.Database, Table: table, Err: err}
			}
			if exists {
				if err := st.Replace(ctx, rec); err != nil {
					return nil, &ArchiveError{Code: ErrCodeStorage, Message: "replacing row", Database: opts.Database, Table: table, Err: err}
				}
				e.log.Info("replaced", "name", rec.Name)
				report.Replaced++
				continue
			}
		}

		conflict, err := st.Insert(ctx, rec)
		if err != nil {
			return nil, &ArchiveError{Code: ErrCodeStorage, Message: "inserting row", Database: opts.Database, Table: table, Err: err}
		}
		if conflict != nil {
			key := dupKey(in, opts.FullDupPath)
			led.Record(dbKey, key, conflict.ExistingName)
			e.log.Info("duplicate", "path", in.Path, "existing", conflict.ExistingName)
			report.Conflicts++
			continue
		}
		e.log.Debug("added", "name", rec.Name)
		report.Added++
	}

	if err := e.finalizeLedger(led, dbKey, opts); err != nil {
		return nil, err
	}
	return report, nil
}

// resolveAddTable applies the explicit table name or falls back to
// inference from the first input path.
func (e *Engine) resolveAddTable(opts AddOptions) (string, error) {
	if opts.Table != "" {
		table := names.CleanTableName(opts.Table, opts.Lower)
		if table == "" {
			return "", &ArchiveError{Code: ErrCodeConfig, Message: fmt.Sprintf("table name %q cleans to an empty string", opts.Table)}
		}
		return table, nil
	}
	table, err := names.TableNameFromInputs(opts.Paths, opts.Lower)
	if err != nil {
		return "", &ArchiveError{Code: ErrCodeConfig, Message: "cannot infer table name", Err: err}
	}
	e.log.Debug("inferred table name", "table", table)
	return table, nil
}

// finalizeLedger merges and persists the duplicate sidecar, or prints
// the summary when persistence is disabled. Runs with no conflicts
// leave an existing sidecar untouched.
func (e *Engine) finalizeLedger(led *ledger.Ledger, dbKey string, opts AddOptions) error {
	if led.Len() == 0 {
		return nil
	}

	out := opts.DupsOut
	if out == nil {
		out = os.Stdout
	}
	if !opts.HideDups {
		if opts.DupsCurrentOnly {
			led.Summary(out, dbKey)
		} else {
			led.Summary(out, "")
		}
	}

	if opts.NoDups {
		return nil
	}
	if err := led.MergeFile(opts.DupsPath); err != nil {
		return &ArchiveError{Code: ErrCodeIO, Message: "merging duplicate sidecar", Database: dbKey, Err: err}
	}
	if err := led.Persist(opts.DupsPath); err != nil {
		return &ArchiveError{Code: ErrCodeIO, Message: "persisting duplicate sidecar", Database: dbKey, Err: err}
	}
	e.log.Info("duplicate sidecar written", "path", opts.DupsPath, "entries", led.Len())
	return nil
}

// readRecord reads and hashes one input file. The content is digested
// in bounded chunks while being buffered for insertion, and the handle
// is closed on every exit path.
func readRecord(in Input) (*store.FileRecord, error) {
	f, err := os.Open(in.Path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", in.Path, err)
	}
	defer f.Close()

	var buf bytes.Buffer
	sum, err := digest.Stream(io.TeeReader(f, &buf))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", in.Path, err)
	}

	return &store.FileRecord{
		Name: names.EntryName(in.Path, in.Root),
		Hash: sum,
		Data: buf.Bytes(),
	}, nil
}

// storeOpenError maps store open failures onto the fatal taxonomy.
func storeOpenError(err error, db, table string) error {
	if store.IsSchemaError(err) {
		return &ArchiveError{Code: ErrCodeSchema, Message: "archive table unusable", Database: db, Table: table, Err: err}
	}
	return &ArchiveError{Code: ErrCodeStorage, Message: "cannot open database", Database: db, Table: table, Err: err}
}
