package merge

import (
	"bytes"
	"strings"

	"github.com/anchorweave/anchorweave/internal/objstore"
	"github.com/anchorweave/anchorweave/internal/tree"
)

// DiffOp is one line of a reconstructed line-oriented diff.
type DiffOp struct {
	Kind string // "same", "add", "del"
	Text string
}

// DiffEntry describes one changed path between two trees. Lines is only
// populated for a "modified" file-like entry whose content is not binary.
type DiffEntry struct {
	Name       string
	Status     string // "added", "removed", "modified", "type-changed", "binary-differ"
	OldHashHex string
	NewHashHex string
	Lines      []DiffOp
}

// Diff implements SPEC_FULL §4.I's pairwise diff: a recursive,
// name-keyed comparison of two trees that recurses into subdirectories
// present (and changed) on both sides, emits an LCS line diff of
// reconstructed file content on a content change, and reports "binary
// files differ" instead when either side's content has a NUL in its
// first 4KiB. Ported from exodus-anchor-weaver.c's diff_trees/
// print_file_diff/generate_diff.
func Diff(objs *objstore.Store, fromHashHex, toHashHex string) ([]DiffEntry, error) {
	return diffTrees(objs, fromHashHex, toHashHex, "")
}

func diffTrees(objs *objstore.Store, fromHashHex, toHashHex, prefix string) ([]DiffEntry, error) {
	if fromHashHex == toHashHex {
		return nil, nil
	}

	fromEntries, err := loadOrEmpty(objs, fromHashHex)
	if err != nil {
		return nil, err
	}
	toEntries, err := loadOrEmpty(objs, toHashHex)
	if err != nil {
		return nil, err
	}

	type pair struct{ old, new *tree.Entry }
	byName := map[string]*pair{}
	var order []string
	for i := range fromEntries {
		e := fromEntries[i]
		p, ok := byName[e.Name]
		if !ok {
			p = &pair{}
			byName[e.Name] = p
			order = append(order, e.Name)
		}
		p.old = &e
	}
	for i := range toEntries {
		e := toEntries[i]
		p, ok := byName[e.Name]
		if !ok {
			p = &pair{}
			byName[e.Name] = p
			order = append(order, e.Name)
		}
		p.new = &e
	}

	var out []DiffEntry
	for _, name := range order {
		p := byName[name]
		fullPath := prefix + name

		switch {
		case p.old != nil && p.new == nil:
			out = append(out, DiffEntry{Name: fullPath, Status: "removed", OldHashHex: objstore.HashHex(p.old.Hash)})

		case p.old == nil && p.new != nil:
			out = append(out, DiffEntry{Name: fullPath, Status: "added", NewHashHex: objstore.HashHex(p.new.Hash)})

		case p.old.Hash == p.new.Hash && p.old.Kind == p.new.Kind:
			// identical, nothing to report

		case p.old.Kind == tree.KindTree && p.new.Kind == tree.KindTree:
			nested, err := diffTrees(objs, objstore.HashHex(p.old.Hash), objstore.HashHex(p.new.Hash), fullPath+"/")
			if err != nil {
				return nil, err
			}
			out = append(out, nested...)

		case p.old.Kind != p.new.Kind:
			out = append(out, DiffEntry{
				Name: fullPath, Status: "type-changed",
				OldHashHex: objstore.HashHex(p.old.Hash), NewHashHex: objstore.HashHex(p.new.Hash),
			})

		default:
			entry, err := diffFileContent(objs, fullPath, objstore.HashHex(p.old.Hash), objstore.HashHex(p.new.Hash))
			if err != nil {
				return nil, err
			}
			out = append(out, entry)
		}
	}
	return out, nil
}

// isBinaryForDiff reports whether content looks binary, by the same
// rule as the reference's is_binary_file_for_diff: a NUL byte anywhere
// in the first 4KiB.
func isBinaryForDiff(content []byte) bool {
	checkLen := len(content)
	if checkLen > 4096 {
		checkLen = 4096
	}
	return bytes.IndexByte(content[:checkLen], 0) >= 0
}

func diffFileContent(objs *objstore.Store, fullPath, oldHashHex, newHashHex string) (DiffEntry, error) {
	oldContent, err := objs.ReadObject(oldHashHex)
	if err != nil {
		return DiffEntry{}, err
	}
	newContent, err := objs.ReadObject(newHashHex)
	if err != nil {
		return DiffEntry{}, err
	}

	entry := DiffEntry{Name: fullPath, Status: "modified", OldHashHex: oldHashHex, NewHashHex: newHashHex}

	if isBinaryForDiff(oldContent) || isBinaryForDiff(newContent) {
		entry.Status = "binary-differ"
		return entry, nil
	}

	entry.Lines = lineDiff(splitLines(oldContent), splitLines(newContent))
	return entry, nil
}

// splitLines splits content into lines the same way
// split_content_to_lines does: a trailing partial line (no final
// newline) is still emitted, and an empty buffer produces no lines.
func splitLines(content []byte) []string {
	if len(content) == 0 {
		return nil
	}
	s := string(content)
	lines := strings.Split(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// lineDiff computes a line-oriented diff between a and b via the
// classic dynamic-programming longest-common-subsequence table,
// ported from generate_diff.
func lineDiff(a, b []string) []DiffOp {
	n, m := len(a), len(b)
	lcs := make([][]int, n+1)
	for i := range lcs {
		lcs[i] = make([]int, m+1)
	}
	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			if a[i-1] == b[j-1] {
				lcs[i][j] = lcs[i-1][j-1] + 1
			} else if lcs[i-1][j] > lcs[i][j-1] {
				lcs[i][j] = lcs[i-1][j]
			} else {
				lcs[i][j] = lcs[i][j-1]
			}
		}
	}

	var rev []DiffOp
	i, j := n, m
	for i > 0 || j > 0 {
		switch {
		case i > 0 && j > 0 && a[i-1] == b[j-1]:
			rev = append(rev, DiffOp{Kind: "same", Text: a[i-1]})
			i--
			j--
		case j > 0 && (i == 0 || lcs[i][j-1] >= lcs[i-1][j]):
			rev = append(rev, DiffOp{Kind: "add", Text: b[j-1]})
			j--
		default:
			rev = append(rev, DiffOp{Kind: "del", Text: a[i-1]})
			i--
		}
	}

	out := make([]DiffOp, len(rev))
	for k, op := range rev {
		out[len(rev)-1-k] = op
	}
	return out
}
