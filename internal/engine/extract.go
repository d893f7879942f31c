package engine

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/roach88/sqlarc/internal/names"
	"github.com/roach88/sqlarc/internal/store"
)

// ExtractOptions configure one extract-mode run.
type ExtractOptions struct {
	Database string
	// Table must be supplied explicitly: there is no inference in
	// extract mode, the forward transform is not invertible.
	Table string
	// OutputDir receives the extracted files; empty means a directory
	// derived from the table name in the working directory.
	OutputDir string
	// Overwrite replaces existing destination files instead of
	// skip-and-report.
	Overwrite bool
	// NoVerify skips the digest check on extracted content.
	NoVerify bool
	// Strict turns an integrity mismatch into a fatal error instead of
	// a logged skip.
	Strict bool
}

// ExtractReport summarizes a completed extract run.
type ExtractReport struct {
	Table             string `json:"table"`
	OutputDir         string `json:"output_dir"`
	Extracted         int    `json:"extracted"`
	SkippedExisting   int    `json:"skipped_existing"`
	IntegrityFailures int    `json:"integrity_failures"`
}

// Extract streams every record in the table back to files under the
// output directory. Existing destinations and (non-strict) integrity
// mismatches are counted and skipped; the run still finishes.
func (e *Engine) Extract(ctx context.Context, opts ExtractOptions) (*ExtractReport, error) {
	// Validate configuration before touching the database.
	if opts.Table == "" {
		return nil, &ArchiveError{Code: ErrCodeConfig, Message: "extract mode requires an explicit table name", Database: opts.Database}
	}
	if info, err := os.Stat(opts.Database); err != nil {
		return nil, &ArchiveError{Code: ErrCodeStorage, Message: "database file does not exist", Database: opts.Database, Err: err}
	} else if info.IsDir() {
		return nil, &ArchiveError{Code: ErrCodeStorage, Message: "database path is a directory", Database: opts.Database}
	}

	outDir := opts.OutputDir
	if outDir == "" {
		outDir = names.DirNameFromTable(opts.Table)
		e.log.Debug("derived output directory", "dir", outDir)
	}
	if info, err := os.Stat(outDir); err == nil && !info.IsDir() {
		return nil, &ArchiveError{Code: ErrCodeConfig, Message: fmt.Sprintf("output directory %s points to a file", outDir)}
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, &ArchiveError{Code: ErrCodeIO, Message: "creating output directory", Err: err}
	}

	st, err := store.OpenExisting(opts.Database, opts.Table)
	if err != nil {
		return nil, storeOpenError(err, opts.Database, opts.Table)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			e.log.Error("error closing database", "error", closeErr)
		}
	}()

	cur, err := st.StreamAll(ctx)
	if err != nil {
		return nil, &ArchiveError{Code: ErrCodeStorage, Message: "streaming archive rows", Database: opts.Database, Table: opts.Table, Err: err}
	}
	defer cur.Close()

	report := &ExtractReport{Table: opts.Table, OutputDir: outDir}
	extractOpts := store.ExtractOptions{
		Overwrite:    opts.Overwrite,
		VerifyDigest: !opts.NoVerify,
	}

	e.log.Info("extracting archive", "db", opts.Database, "table", opts.Table, "dir", outDir)

	for cur.Next() {
		rec := cur.Record()
		err := store.Extract(rec, outDir, extractOpts)
		switch {
		case err == nil:
			e.log.Debug("extracted", "name", rec.Name)
			report.Extracted++
		case errors.Is(err, store.ErrDestinationExists):
			e.log.Warn("destination exists, skipping", "name", rec.Name)
			report.SkippedExisting++
		case store.IsIntegrityError(err):
			if opts.Strict {
				return nil, &ArchiveError{Code: ErrCodeIntegrity, Message: "extracted content failed verification", Database: opts.Database, Table: opts.Table, Err: err}
			}
			e.log.Warn("integrity mismatch, skipping", "name", rec.Name, "error", err)
			report.IntegrityFailures++
		default:
			return nil, &ArchiveError{Code: ErrCodeIO, Message: "writing extracted file", Database: opts.Database, Table: opts.Table, Err: err}
		}
	}
	if err := cur.Err(); err != nil {
		return nil, &ArchiveError{Code: ErrCodeStorage, Message: "reading archive rows", Database: opts.Database, Table: opts.Table, Err: err}
	}

	return report, nil
}
