// Package digest computes content digests for archived files.
//
// SHA-512 over the full byte stream. The digest is stored alongside the
// data for integrity verification on extraction; it is not (currently)
// the uniqueness key for rows.
package digest

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"
)

// Size is the digest length in bytes.
const Size = sha512.Size

// copyBufSize bounds per-read memory while hashing. Large files are
// consumed in chunks of this size, never buffered whole by the hasher.
const copyBufSize = 128 * 1024

// Stream consumes r to EOF and returns the SHA-512 digest of everything
// read. Read failures propagate unchanged apart from wrapping.
func Stream(r io.Reader) ([]byte, error) {
	h := sha512.New()
	buf := make([]byte, copyBufSize)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return nil, fmt.Errorf("hashing stream: %w", err)
	}
	return h.Sum(nil), nil
}

// Sum returns the SHA-512 digest of an in-memory byte slice.
func Sum(data []byte) []byte {
	sum := sha512.Sum512(data)
	return sum[:]
}

// Equal reports whether two digests match, in constant time.
func Equal(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// Hex renders a digest for log lines and error messages.
func Hex(d []byte) string {
	return hex.EncodeToString(d)
}
