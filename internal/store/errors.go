package store

import (
	"errors"
	"fmt"

	"github.com/roach88/sqlarc/internal/digest"
)

// SchemaError indicates the requested table cannot be used: it is
// missing when it must exist, its name is unusable, or it already
// exists with an incompatible column set.
type SchemaError struct {
	Table  string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("table %q: %s", e.Table, e.Reason)
}

// IsSchemaError reports whether err is (or wraps) a SchemaError.
func IsSchemaError(err error) bool {
	var se *SchemaError
	return errors.As(err, &se)
}

// IntegrityError indicates extracted bytes do not match the digest
// stored with the row.
type IntegrityError struct {
	Name string
	Want []byte
	Got  []byte
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity check failed for %q: stored %s, computed %s",
		e.Name, digest.Hex(e.Want), digest.Hex(e.Got))
}

// IsIntegrityError reports whether err is (or wraps) an IntegrityError.
func IsIntegrityError(err error) bool {
	var ie *IntegrityError
	return errors.As(err, &ie)
}

// ErrDestinationExists is returned by Extract when the output file is
// already present and overwrite mode is off. Skip-and-report, never
// silent data loss.
var ErrDestinationExists = errors.New("destination file already exists")
