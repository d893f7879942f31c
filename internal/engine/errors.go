package engine

import (
	"errors"
	"fmt"
)

// ArchiveError represents a fatal error surfaced by an archive run.
//
// Per-file problems (unreadable sources, name conflicts, integrity
// mismatches in non-strict mode) are handled inside the batch loop and
// never become ArchiveErrors; only conditions that abort the whole run
// do.
type ArchiveError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Database is the database file path, when known.
	Database string

	// Table is the archive table name, when known.
	Table string

	// Err is the underlying cause.
	Err error
}

// ErrorCode categorizes fatal archive errors.
type ErrorCode string

const (
	// ErrCodeConfig indicates invalid pre-run configuration: an empty
	// inferred table name, or extract mode without an explicit table.
	ErrCodeConfig ErrorCode = "CONFIG_ERROR"

	// ErrCodeSchema indicates the table exists with incompatible
	// columns, or a table required for extraction does not exist.
	ErrCodeSchema ErrorCode = "SCHEMA_ERROR"

	// ErrCodeStorage indicates the underlying database is unusable.
	ErrCodeStorage ErrorCode = "STORAGE_ERROR"

	// ErrCodeIntegrity indicates a digest mismatch under strict
	// extraction.
	ErrCodeIntegrity ErrorCode = "INTEGRITY_ERROR"

	// ErrCodeIO indicates a filesystem failure outside the per-file
	// skip path, such as an uncreatable output directory.
	ErrCodeIO ErrorCode = "IO_ERROR"
)

// Error implements the error interface.
func (e *ArchiveError) Error() string {
	ctx := ""
	switch {
	case e.Database != "" && e.Table != "":
		ctx = fmt.Sprintf(" (db=%s, table=%s)", e.Database, e.Table)
	case e.Database != "":
		ctx = fmt.Sprintf(" (db=%s)", e.Database)
	case e.Table != "":
		ctx = fmt.Sprintf(" (table=%s)", e.Table)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s%s: %v", e.Code, e.Message, ctx, e.Err)
	}
	return fmt.Sprintf("%s: %s%s", e.Code, e.Message, ctx)
}

// Unwrap exposes the underlying cause to errors.Is/As.
func (e *ArchiveError) Unwrap() error {
	return e.Err
}

// IsConfigError reports whether err is a configuration error.
// Uses errors.As to handle wrapped errors.
func IsConfigError(err error) bool {
	return hasCode(err, ErrCodeConfig)
}

// IsSchemaError reports whether err is a schema error.
func IsSchemaError(err error) bool {
	return hasCode(err, ErrCodeSchema)
}

// IsStorageError reports whether err is a storage error.
func IsStorageError(err error) bool {
	return hasCode(err, ErrCodeStorage)
}

func hasCode(err error, code ErrorCode) bool {
	var ae *ArchiveError
	if errors.As(err, &ae) {
		return ae.Code == code
	}
	return false
}
