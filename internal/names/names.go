// Package names derives archive table names from filesystem inputs and
// entry names for stored files.
//
// Table-name inference is defined for add mode only. Extraction has no
// inference fallback: DirNameFromTable is lossy (underscores map back to
// spaces regardless of what they replaced), so the original path can
// never be recovered from a table name.
package names

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// tableReplacer maps characters SQLite identifiers can't comfortably
// carry. Commas are dropped outright, everything else becomes an
// underscore.
var tableReplacer = strings.NewReplacer(
	".", "_",
	"'", "_",
	" ", "_",
	",", "",
)

// CleanTableName normalizes an arbitrary string into a usable table
// name. The transform is not invertible.
func CleanTableName(in string, lower bool) string {
	out := tableReplacer.Replace(in)
	if lower {
		out = strings.ToLower(out)
	}
	return out
}

// TableNameFromInputs infers a table name from the first input path.
// Directories contribute their base name; files contribute their base
// name minus exactly one trailing extension (archive.tar.gz -> archive.tar).
// An empty result is a configuration error, not a fallback.
func TableNameFromInputs(paths []string, lower bool) (string, error) {
	if len(paths) == 0 {
		return "", fmt.Errorf("no input paths to infer a table name from")
	}

	first := paths[0]
	base := filepath.Base(filepath.Clean(first))

	info, err := os.Stat(first)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", first, err)
	}
	if !info.IsDir() {
		// Strip one extension component only: multi-extension files
		// keep everything up to the final suffix.
		if ext := filepath.Ext(base); ext != "" {
			base = base[:len(base)-len(ext)]
		}
	}

	name := CleanTableName(base, lower)
	if name == "" {
		return "", fmt.Errorf("inferred table name from %q is empty", first)
	}
	return name, nil
}

// DirNameFromTable derives an output directory name from a table name
// by mapping underscores back to spaces. Lossy: characters that were
// originally '.', "'" or ' ' all come back as spaces.
func DirNameFromTable(table string) string {
	return strings.ReplaceAll(table, "_", " ")
}

// EntryName computes the name a file is stored under: its path relative
// to the parent directory of the originally specified root, with
// forward slashes and NFC-normalized runes so archives built on
// NFD-path filesystems collide with their NFC equivalents.
func EntryName(path, root string) string {
	parent := filepath.Dir(filepath.Clean(root))
	rel, err := filepath.Rel(parent, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = filepath.Base(path)
	}
	return norm.NFC.String(filepath.ToSlash(rel))
}
