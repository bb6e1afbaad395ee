// Package merge implements SPEC_FULL §4.I: the three-way tree merge used
// by promotion. Ported from exodus-anchor-weaver.c's merge_trees, with the
// C original's sentinel empty-string hash represented here as an empty Go
// string meaning "no tree" (e.g. a path new on one side).
package merge

import (
	"sort"

	"github.com/anchorweave/anchorweave/internal/awerr"
	"github.com/anchorweave/anchorweave/internal/hashutil"
	"github.com/anchorweave/anchorweave/internal/objstore"
	"github.com/anchorweave/anchorweave/internal/tree"
)

// Conflict describes one unresolved entry; Merge returns these (wrapped
// in awerr.ErrMergeConflict) instead of emitting conflict markers, per
// SPEC_FULL §4.I ("abort-on-real-conflict").
type Conflict struct {
	Name string
	Base, Ours, Theirs string // hex hashes, empty if absent
}

// side holds one tree's view of a single name across the merge.
type side struct {
	present bool
	kind    byte
	hashHex string
	mode    uint32
	entropy float64
	author  string
}

// Merge performs the three-way merge of baseHex/oursHex/theirsHex (empty
// string = no tree at that side) and returns the merged tree's hex hash.
func Merge(objs *objstore.Store, baseHex, oursHex, theirsHex string) (string, error) {
	// 1. Fast-forward / trivial shortcuts, exactly as the reference checks
	// them before ever parsing a tree.
	if baseHex == oursHex && baseHex != theirsHex {
		return theirsHex, nil
	}
	if baseHex == theirsHex && baseHex != oursHex {
		return oursHex, nil
	}
	if oursHex == theirsHex {
		return oursHex, nil
	}

	baseEntries, err := loadOrEmpty(objs, baseHex)
	if err != nil {
		return "", err
	}
	oursEntries, err := loadOrEmpty(objs, oursHex)
	if err != nil {
		return "", err
	}
	theirsEntries, err := loadOrEmpty(objs, theirsHex)
	if err != nil {
		return "", err
	}

	type triple struct{ b, o, t side }
	names := map[string]*triple{}
	get := func(name string) *triple {
		s, ok := names[name]
		if !ok {
			s = &triple{}
			names[name] = s
		}
		return s
	}
	for _, e := range baseEntries {
		get(e.Name).b = sideFrom(e)
	}
	for _, e := range oursEntries {
		get(e.Name).o = sideFrom(e)
	}
	for _, e := range theirsEntries {
		get(e.Name).t = sideFrom(e)
	}

	sortedNames := make([]string, 0, len(names))
	for name := range names {
		sortedNames = append(sortedNames, name)
	}
	sort.Strings(sortedNames)

	var out []tree.Entry
	for _, name := range sortedNames {
		s := names[name]
		changedO := s.o.kind != s.b.kind || s.o.hashHex != s.b.hashHex
		changedT := s.t.kind != s.b.kind || s.t.hashHex != s.b.hashHex

		var result side
		switch {
		case !changedO && !changedT:
			if !s.b.present {
				continue
			}
			result = s.b
			result.mode, result.entropy, result.author = s.o.mode, s.o.entropy, s.o.author

		case !changedO && changedT:
			result = s.t

		case changedO && !changedT:
			result = s.o

		default:
			if s.o.kind == tree.KindTree && s.t.kind == tree.KindTree {
				mergedHex, err := Merge(objs, s.b.hashHex, s.o.hashHex, s.t.hashHex)
				if err != nil {
					return "", err
				}
				result = side{present: true, kind: tree.KindTree, hashHex: mergedHex, mode: s.o.mode, author: "n/a"}
			} else if s.o.hashHex == s.t.hashHex && s.o.kind == s.t.kind {
				result = s.o
			} else {
				return "", awerr.Wrap(awerr.ErrMergeConflict, "conflicting change", &ConflictError{Conflict{
					Name: name, Base: s.b.hashHex, Ours: s.o.hashHex, Theirs: s.t.hashHex,
				}})
			}
		}

		if !result.present {
			continue
		}
		h, err := hashutil.ParseHex(result.hashHex)
		if err != nil {
			return "", awerr.Wrap(awerr.ErrCorruptObject, "decode merge result hash", err)
		}
		author := result.author
		if author == "" {
			author = "unknown"
		}
		out = append(out, tree.Entry{
			Mode:    result.mode,
			Kind:    result.kind,
			Hash:    h,
			Entropy: result.entropy,
			Author:  author,
			Name:    name,
		})
	}

	content := tree.Encode(out)
	h := hashutil.SumSHA256(content)
	hashHex := objstore.HashHex(h)
	if err := objs.WriteBlob(hashHex, content); err != nil {
		return "", err
	}
	return hashHex, nil
}

// ConflictError is the concrete error value wrapped by ErrMergeConflict;
// callers can type-assert (via errors.As) to inspect which path and sides
// collided.
type ConflictError struct {
	Conflict
}

func (c *ConflictError) Error() string {
	return "merge conflict at " + c.Name
}

func sideFrom(e tree.Entry) side {
	return side{
		present: true,
		kind:    e.Kind,
		hashHex: objstore.HashHex(e.Hash),
		mode:    e.Mode,
		entropy: e.Entropy,
		author:  e.Author,
	}
}

func loadOrEmpty(objs *objstore.Store, hashHex string) ([]tree.Entry, error) {
	if hashHex == "" {
		return nil, nil
	}
	return tree.Load(objs, hashHex)
}
