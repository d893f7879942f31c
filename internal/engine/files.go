package engine

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Input is one file slated for archiving, paired with the originally
// specified root it was discovered under. The root anchors relative
// entry names and duplicate-ledger keys.
type Input struct {
	Path string
	Root string
}

// DefaultExclusions are basenames skipped when the operator supplies
// no exclusion list of their own.
var DefaultExclusions = []string{"Thumbs.db"}

// CollectInputs expands the raw CLI path arguments into a
// deduplicated, sorted list of files to archive.
//
//   - Arguments containing glob metacharacters are expanded with
//     filepath.Glob; only file matches are kept.
//   - Directories are walked recursively.
//   - Plain files are taken as-is; arguments that match nothing are
//     dropped silently, matching the original tool's behavior.
//
// The database file itself and any excluded basenames are filtered
// out.
func CollectInputs(args []string, dbPath string, exclude []string) ([]Input, error) {
	excluded := make(map[string]struct{}, len(exclude))
	for _, e := range exclude {
		// Exclusions match on basename only; directory components in
		// the exclusion list are stripped.
		excluded[filepath.Base(e)] = struct{}{}
	}

	dbAbs, err := filepath.Abs(dbPath)
	if err != nil {
		return nil, fmt.Errorf("resolving database path %s: %w", dbPath, err)
	}

	seen := make(map[string]struct{})
	var out []Input

	add := func(path, root string) error {
		abs, err := filepath.Abs(path)
		if err != nil {
			return fmt.Errorf("resolving %s: %w", path, err)
		}
		if abs == dbAbs {
			return nil
		}
		if _, ok := excluded[filepath.Base(path)]; ok {
			return nil
		}
		if _, ok := seen[abs]; ok {
			return nil
		}
		seen[abs] = struct{}{}
		out = append(out, Input{Path: path, Root: root})
		return nil
	}

	for _, arg := range args {
		switch {
		case strings.ContainsAny(arg, "*?["):
			matches, err := filepath.Glob(arg)
			if err != nil {
				return nil, fmt.Errorf("bad glob pattern %q: %w", arg, err)
			}
			for _, m := range matches {
				info, err := os.Stat(m)
				if err != nil || info.IsDir() {
					continue
				}
				if err := add(m, m); err != nil {
					return nil, err
				}
			}
		default:
			info, err := os.Stat(arg)
			if err != nil {
				// Nonexistent argument: drop it, the batch goes on.
				continue
			}
			if !info.IsDir() {
				if err := add(arg, arg); err != nil {
					return nil, err
				}
				continue
			}
			walkErr := filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if d.IsDir() {
					return nil
				}
				return add(path, arg)
			})
			if walkErr != nil {
				return nil, fmt.Errorf("walking %s: %w", arg, walkErr)
			}
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// dupKey computes the ledger key for a conflicting file: absolute when
// fullPath mode is on, otherwise relative to the parent directory of
// the root it was specified under.
func dupKey(in Input, fullPath bool) string {
	if fullPath {
		if abs, err := filepath.Abs(in.Path); err == nil {
			return abs
		}
		return in.Path
	}
	parent := filepath.Dir(filepath.Clean(in.Root))
	rel, err := filepath.Rel(parent, in.Path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return in.Path
	}
	return rel
}
