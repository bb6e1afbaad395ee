// Package tree implements SPEC_FULL §4.H: building a tree object from a
// working-tree directory, and the flat text encoding/decoding/lookup
// operations every higher layer (merge, checkout, commitgraph) needs.
// Ported from exodus-anchor-weaver.c's build_tree_recursive and
// find_file_in_tree.
package tree

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/anchorweave/anchorweave/internal/awerr"
	"github.com/anchorweave/anchorweave/internal/blobstore"
	"github.com/anchorweave/anchorweave/internal/ebof"
	"github.com/anchorweave/anchorweave/internal/hashutil"
	"github.com/anchorweave/anchorweave/internal/ignorelist"
	"github.com/anchorweave/anchorweave/internal/objindex"
	"github.com/anchorweave/anchorweave/internal/objstore"
)

// Kind identifies what a tree entry names.
const (
	KindTree     = 'T'
	KindBlob     = 'B'
	KindSymlink  = 'L'
	KindManifest = 'M'
)

// Entry is one line of a tree object.
type Entry struct {
	Mode    uint32 // permission bits only (0-07777)
	Kind    byte
	Hash    hashutil.Hash
	Entropy float64
	Author  string
	Name    string
}

// Encode renders entries as the canonical tree text: one line per entry,
// "<octal-mode> <type> <hash> E:<entropy> U:<author>\t<name>\n". An empty
// tree encodes to zero bytes.
func Encode(entries []Entry) []byte {
	var buf bytes.Buffer
	for _, e := range entries {
		author := e.Author
		if author == "" {
			author = "unknown"
		}
		fmt.Fprintf(&buf, "%o %c %s E:%.4f U:%s\t%s\n",
			e.Mode&07777, e.Kind, objstore.HashHex(e.Hash), e.Entropy, author, e.Name)
	}
	return buf.Bytes()
}

// Parse decodes canonical tree text back into entries.
func Parse(text []byte) ([]Entry, error) {
	var entries []Entry
	scanner := bufio.NewScanner(bytes.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		tab := strings.IndexByte(line, '\t')
		if tab < 0 {
			return nil, awerr.Wrap(awerr.ErrCorruptObject, "tree line missing name separator", fmt.Errorf("line %q", line))
		}
		name := line[tab+1:]
		fields := strings.SplitN(line[:tab], " ", 5)
		if len(fields) != 5 {
			return nil, awerr.Wrap(awerr.ErrCorruptObject, "malformed tree line", fmt.Errorf("line %q", line))
		}
		mode, err := strconv.ParseUint(fields[0], 8, 32)
		if err != nil {
			return nil, awerr.Wrap(awerr.ErrCorruptObject, "malformed tree mode", err)
		}
		if len(fields[1]) != 1 {
			return nil, awerr.Wrap(awerr.ErrCorruptObject, "malformed tree type", fmt.Errorf("field %q", fields[1]))
		}
		hash, err := hashutil.ParseHex(fields[2])
		if err != nil {
			return nil, awerr.Wrap(awerr.ErrCorruptObject, "malformed tree hash", err)
		}
		if !strings.HasPrefix(fields[3], "E:") {
			return nil, awerr.Wrap(awerr.ErrCorruptObject, "malformed tree entropy field", fmt.Errorf("field %q", fields[3]))
		}
		entropy, err := strconv.ParseFloat(strings.TrimPrefix(fields[3], "E:"), 64)
		if err != nil {
			return nil, awerr.Wrap(awerr.ErrCorruptObject, "malformed tree entropy value", err)
		}
		if !strings.HasPrefix(fields[4], "U:") {
			return nil, awerr.Wrap(awerr.ErrCorruptObject, "malformed tree author field", fmt.Errorf("field %q", fields[4]))
		}
		author := strings.TrimPrefix(fields[4], "U:")

		entries = append(entries, Entry{
			Mode:    uint32(mode),
			Kind:    fields[1][0],
			Hash:    hash,
			Entropy: entropy,
			Author:  author,
			Name:    name,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, awerr.Wrap(awerr.ErrCorruptObject, "scan tree text", err)
	}
	return entries, nil
}

// Load reads and parses the tree object at hashHex.
func Load(objs *objstore.Store, hashHex string) ([]Entry, error) {
	content, err := objs.ReadObject(hashHex)
	if err != nil {
		return nil, err
	}
	return Parse(content)
}

// Lookup walks relPath's components through nested trees starting at
// rootHashHex and returns the final entry. Ported from find_file_in_tree.
func Lookup(objs *objstore.Store, rootHashHex, relPath string) (Entry, bool, error) {
	relPath = strings.Trim(relPath, "/")
	if relPath == "" {
		return Entry{}, false, nil
	}
	parts := strings.Split(relPath, "/")
	currentHashHex := rootHashHex
	for i, part := range parts {
		entries, err := Load(objs, currentHashHex)
		if err != nil {
			return Entry{}, false, err
		}
		found := false
		var match Entry
		for _, e := range entries {
			if e.Name == part {
				match = e
				found = true
				break
			}
		}
		if !found {
			return Entry{}, false, nil
		}
		if i == len(parts)-1 {
			return match, true, nil
		}
		if match.Kind != KindTree {
			return Entry{}, false, nil
		}
		currentHashHex = objstore.HashHex(match.Hash)
	}
	return Entry{}, false, nil
}

// AuthorResolver supplies the attribution string recorded for a
// working-tree-relative path, defaulting to "unknown" when absent.
type AuthorResolver func(relPath string) string

// BuildOptions carries the dependencies Build needs to ingest file
// content while walking a directory.
type BuildOptions struct {
	Objects     *objstore.Store
	Blocks      *ebof.Store
	Manifests   *ebof.Store
	Ignore      *ignorelist.List
	Thresholds  blobstore.Thresholds
	Deconstruct blobstore.Deconstructor
	Author      AuthorResolver

	// Index, when non-nil, lets buildFileEntry skip the expensive
	// SHA-256/entropy/delta pipeline for a file whose size, mtime, and
	// BLAKE3 quick digest all still match what was recorded the last
	// time it was ingested.
	Index *objindex.DB
}

// Build recursively constructs a tree object for dirPath (a working-tree
// directory under nodeRoot), returning its hex hash. parentTreeHashHex,
// when non-empty, is the corresponding tree from the previous commit and
// drives both parent-block linkage (manifests) and single-byte delta
// parenting (blobs).
func Build(nodeRoot, dirPath, parentTreeHashHex string, opts BuildOptions) (string, error) {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return "", awerr.Wrap(awerr.ErrIO, "read directory for tree build", err)
	}

	names := make([]string, 0, len(entries))
	byName := make(map[string]os.DirEntry, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
		byName[e.Name()] = e
	}
	sort.Strings(names)

	var out []Entry
	for _, name := range names {
		de := byName[name]
		fullPath := filepath.Join(dirPath, name)
		relPath, err := filepath.Rel(nodeRoot, fullPath)
		if err != nil {
			return "", awerr.Wrap(awerr.ErrIO, "resolve relative path", err)
		}
		relPath = filepath.ToSlash(relPath)
		if opts.Ignore != nil && opts.Ignore.Ignored(relPath) {
			continue
		}

		info, err := de.Info()
		if err != nil {
			continue
		}

		switch {
		case info.Mode()&os.ModeSymlink != 0:
			entry, err := buildSymlinkEntry(fullPath, name, opts.Objects)
			if err != nil {
				continue
			}
			out = append(out, entry)

		case info.IsDir():
			var subParent string
			if parentTreeHashHex != "" {
				if e, found, _ := Lookup(opts.Objects, parentTreeHashHex, relPath); found && e.Kind == KindTree {
					subParent = objstore.HashHex(e.Hash)
				}
			}
			subHashHex, err := Build(nodeRoot, fullPath, subParent, opts)
			if err != nil {
				return "", err
			}
			h, err := hashutil.ParseHex(subHashHex)
			if err != nil {
				return "", err
			}
			out = append(out, Entry{
				Mode:   uint32(info.Mode().Perm()),
				Kind:   KindTree,
				Hash:   h,
				Author: "n/a",
				Name:   name,
			})

		case info.Mode().IsRegular():
			entry, err := buildFileEntry(fullPath, relPath, name, parentTreeHashHex, info, opts)
			if err != nil {
				continue
			}
			out = append(out, entry)
		}
	}

	content := Encode(out)
	h := hashutil.SumSHA256(content)
	hashHex := objstore.HashHex(h)
	if err := opts.Objects.WriteBlob(hashHex, content); err != nil {
		return "", err
	}
	return hashHex, nil
}

func buildSymlinkEntry(fullPath, name string, objs *objstore.Store) (Entry, error) {
	target, err := os.Readlink(fullPath)
	if err != nil {
		return Entry{}, err
	}
	raw := []byte(target)
	h := hashutil.SumSHA256(raw)
	entropy := hashutil.ShannonEntropy(raw)
	hashHex := objstore.HashHex(h)
	if err := objs.WriteBlob(hashHex, raw); err != nil {
		return Entry{}, err
	}
	return Entry{Kind: KindSymlink, Hash: h, Entropy: entropy, Name: name}, nil
}

func buildFileEntry(fullPath, relPath, name, parentTreeHashHex string, info os.FileInfo, opts BuildOptions) (Entry, error) {
	author := "unknown"
	if opts.Author != nil {
		if a := opts.Author(relPath); a != "" {
			author = a
		}
	}

	quickDigest, quickDigestErr := [32]byte{}, error(nil)
	if opts.Index != nil {
		quickDigest, quickDigestErr = quickDigestFile(fullPath)
		if quickDigestErr == nil {
			if cached, found, err := opts.Index.Lookup(relPath); err == nil && found &&
				cached.Size == info.Size() && cached.ModUnixNs == info.ModTime().UnixNano() &&
				cached.QuickDigest == quickDigest {
				hash, err := hashutil.ParseHex(cached.SHA256Hex)
				if err == nil {
					return Entry{
						Mode:    uint32(info.Mode().Perm()),
						Kind:    cached.ObjectType,
						Hash:    hash,
						Entropy: cached.Entropy,
						Author:  author,
						Name:    name,
					}, nil
				}
			}
		}
	}

	parent := blobstore.Parent{Kind: blobstore.ParentNone}
	if parentTreeHashHex != "" {
		if e, found, _ := Lookup(opts.Objects, parentTreeHashHex, relPath); found {
			switch e.Kind {
			case KindBlob:
				parent = blobstore.Parent{Kind: blobstore.ParentBlob, Hash: e.Hash}
			case KindSymlink:
				parent = blobstore.Parent{Kind: blobstore.ParentSymlink, Hash: e.Hash}
			case KindManifest:
				if data, err := loadManifest(opts.Manifests, objstore.HashHex(e.Hash)); err == nil {
					parent = blobstore.Parent{Kind: blobstore.ParentManifest, Hash: e.Hash, Manifest: data}
				}
			}
		}
	}

	result, err := blobstore.Ingest(fullPath, relPath, uint32(info.Mode().Perm()), uint64(info.Size()),
		opts.Objects, opts.Blocks, opts.Manifests, parent, opts.Thresholds, opts.Deconstruct)
	if err != nil {
		return Entry{}, err
	}

	kind := byte(KindBlob)
	if result.IsManifest {
		kind = KindManifest
	}

	if opts.Index != nil && quickDigestErr == nil {
		_ = opts.Index.Put(relPath, objindex.Entry{
			Size:        info.Size(),
			ModUnixNs:   info.ModTime().UnixNano(),
			QuickDigest: quickDigest,
			SHA256Hex:   objstore.HashHex(result.Hash),
			Entropy:     result.Entropy,
			ObjectType:  kind,
		})
	}

	return Entry{
		Mode:    uint32(info.Mode().Perm()),
		Kind:    kind,
		Hash:    result.Hash,
		Entropy: result.Entropy,
		Author:  author,
		Name:    name,
	}, nil
}

func quickDigestFile(path string) ([32]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return [32]byte{}, err
	}
	defer f.Close()
	return objindex.QuickDigestStream(f)
}

func loadManifest(mobjs *ebof.Store, hashHex string) (*ebof.ManifestData, error) {
	payload, err := mobjs.Read(hashHex)
	if err != nil {
		return nil, err
	}
	return ebof.DecodeManifest(payload)
}
