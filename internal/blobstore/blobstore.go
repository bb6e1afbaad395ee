// Package blobstore implements SPEC_FULL §4.G: the blob ingestor that
// decides, per file, whether to store it as a full blob, a byte-level
// delta against a parent blob, or a chunked manifest. Ported from
// exodus-anchor-weaver.c's hash_and_write_blob.
package blobstore

import (
	"io"
	"os"

	"github.com/anchorweave/anchorweave/internal/awerr"
	"github.com/anchorweave/anchorweave/internal/deltasum"
	"github.com/anchorweave/anchorweave/internal/ebof"
	"github.com/anchorweave/anchorweave/internal/hashutil"
	"github.com/anchorweave/anchorweave/internal/manifest"
	"github.com/anchorweave/anchorweave/internal/objstore"
)

// Thresholds hold the two size breakpoints SPEC_FULL §4.G defines. Both
// are configurable (internal/config.CoreConfig) rather than the C
// reference's compile-time constants.
type Thresholds struct {
	// LargeFile is the size above which a file is always chunked into a
	// manifest, regardless of its parent. Default 5 GiB.
	LargeFile uint64
	// Stream is the size above which a file is hashed and stored
	// by streaming (full blob only, no delta attempt) rather than being
	// read entirely into memory. Default 512 MiB.
	Stream uint64
}

// DefaultThresholds returns SPEC_FULL §4.G's stated defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		LargeFile: 5 * 1 << 30,
		Stream:    512 * 1 << 20,
	}
}

// ParentKind distinguishes the three object kinds a tree entry can name,
// used to decide whether a delta attempt against a prior blob is legal.
type ParentKind byte

const (
	ParentNone ParentKind = iota
	ParentBlob
	ParentSymlink
	ParentManifest
)

// Parent describes the previous object recorded for this path, if any.
type Parent struct {
	Kind ParentKind
	Hash hashutil.Hash
	// Manifest is the parent's decoded manifest, populated only when
	// Kind == ParentManifest, so Deconstruct can compute parent-block
	// linkage against it.
	Manifest *ebof.ManifestData
}

// Result is what the ingestor decided for one file: the identity hash to
// record in the tree entry, its Shannon entropy (for the tree line and,
// when chunked, the manifest's mean), and whether it was stored as a
// manifest (vs. a blob/delta).
type Result struct {
	Hash       hashutil.Hash
	Entropy    float64
	IsManifest bool
}

// Deconstructor splits path into content-defined blocks and writes them
// to blockStore, honoring parent-block linkage against old (nil if this
// path has no prior manifest). internal/chunker.Deconstruct returns a
// chunker.Result instead; internal/engine adapts it to this signature.
type Deconstructor func(path string, blockStore *ebof.Store, old *ebof.ManifestData) ([]ebof.ManifestEntry, float32, error)

// Ingest implements the full size-based policy tree of SPEC_FULL §4.G:
//
//   - size > thresholds.LargeFile: always chunked into a manifest via
//     deconstruct, regardless of parent.
//   - thresholds.Stream < size <= thresholds.LargeFile: streamed into a
//     full blob; no delta is attempted (the base would have to be held
//     in memory alongside the new content).
//   - size <= thresholds.Stream: read into memory, hashed, and — only
//     when parent is a full blob or symlink blob (never a manifest) —
//     a byte-level delta is attempted and kept if it beats the 75% rule;
//     otherwise a full blob is written.
func Ingest(path, relPath string, mode uint32, size uint64, objs *objstore.Store, blocks, mobjs *ebof.Store, parent Parent, thresholds Thresholds, deconstruct Deconstructor) (Result, error) {
	switch {
	case size > thresholds.LargeFile:
		return ingestManifest(path, relPath, mode, size, blocks, mobjs, parent, deconstruct)
	case size > thresholds.Stream:
		return ingestStreamed(path, objs)
	default:
		return ingestSmall(path, objs, parent)
	}
}

func ingestManifest(path, relPath string, mode uint32, size uint64, blocks, mobjs *ebof.Store, parent Parent, deconstruct Deconstructor) (Result, error) {
	var old *ebof.ManifestData
	if parent.Kind == ParentManifest {
		old = parent.Manifest
	}
	entries, meanEntropy, err := deconstruct(path, blocks, old)
	if err != nil {
		return Result{}, err
	}
	hashHex, err := manifest.Assemble(mobjs, relPath, mode, size, meanEntropy, entries)
	if err != nil {
		return Result{}, err
	}
	h, err := hashutil.ParseHex(hashHex)
	if err != nil {
		return Result{}, awerr.Wrap(awerr.ErrCorruptObject, "decode manifest hash", err)
	}
	return Result{Hash: h, Entropy: float64(meanEntropy), IsManifest: true}, nil
}

func ingestStreamed(path string, objs *objstore.Store) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, awerr.Wrap(awerr.ErrIO, "open file for streamed ingestion", err)
	}
	defer f.Close()

	hasher := hashutil.NewStreamHasher()
	teed := io.TeeReader(f, hasher)
	entropy, err := hashutil.ShannonEntropyStream(teed)
	if err != nil {
		return Result{}, awerr.Wrap(awerr.ErrIO, "stream file for entropy/hash", err)
	}
	hash := hasher.Sum()
	hashHex := objstore.HashHex(hash)

	if objs.Has(hashHex) {
		return Result{Hash: hash, Entropy: entropy}, nil
	}

	f2, err := os.Open(path)
	if err != nil {
		return Result{}, awerr.Wrap(awerr.ErrIO, "reopen file to write streamed blob", err)
	}
	defer f2.Close()
	if err := objs.WriteBlobStream(hashHex, f2); err != nil {
		return Result{}, err
	}
	return Result{Hash: hash, Entropy: entropy}, nil
}

func ingestSmall(path string, objs *objstore.Store, parent Parent) (Result, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Result{}, awerr.Wrap(awerr.ErrIO, "read file for in-memory ingestion", err)
	}
	hash := hashutil.SumSHA256(content)
	entropy := hashutil.ShannonEntropy(content)
	hashHex := objstore.HashHex(hash)

	if objs.Has(hashHex) {
		return Result{Hash: hash, Entropy: entropy}, nil
	}

	if parent.Kind == ParentBlob || parent.Kind == ParentSymlink {
		base, err := objs.ReadObject(objstore.HashHex(parent.Hash))
		if err == nil {
			script := deltasum.Generate(base, content)
			if deltasum.Accept(len(script), len(content)) {
				if err := objs.WriteDelta(hashHex, objstore.HashHex(parent.Hash), script); err != nil {
					return Result{}, err
				}
				return Result{Hash: hash, Entropy: entropy}, nil
			}
		}
	}

	if err := objs.WriteBlob(hashHex, content); err != nil {
		return Result{}, err
	}
	return Result{Hash: hash, Entropy: entropy}, nil
}
