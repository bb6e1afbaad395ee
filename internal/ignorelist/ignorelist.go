// Package ignorelist implements SPEC_FULL §4.M: the ".retain" ignore
// file, a flat list of path prefixes excluded from tree building. Ported
// from exodus-anchor-weaver.c's load_ignore_list/is_path_ignored.
package ignorelist

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/anchorweave/anchorweave/internal/awerr"
)

// List is an ordered set of prefix patterns read from a node's .retain
// file, plus the two entries that are always ignored.
type List struct {
	patterns []string
}

// Load reads nodeRoot/.retain. A missing file yields an empty (but still
// usable) List — matching the reference's silent fopen failure.
func Load(nodeRoot string) (*List, error) {
	f, err := os.Open(filepath.Join(nodeRoot, ".retain"))
	if err != nil {
		if os.IsNotExist(err) {
			return &List{}, nil
		}
		return nil, awerr.Wrap(awerr.ErrIO, "open .retain", err)
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "/")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, awerr.Wrap(awerr.ErrIO, "scan .retain", err)
	}
	return &List{patterns: patterns}, nil
}

// Ignored reports whether relPath (slash-separated, relative to the node
// root) should be excluded from tree building: the node's own metadata
// directory, the ignore file itself, or any path under a listed prefix.
func (l *List) Ignored(relPath string) bool {
	if relPath == ".log" || relPath == ".retain" {
		return true
	}
	for _, pattern := range l.patterns {
		if !strings.HasPrefix(relPath, pattern) {
			continue
		}
		rest := relPath[len(pattern):]
		if rest == "" || rest[0] == '/' {
			return true
		}
	}
	return false
}
