package blobstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/anchorweave/anchorweave/internal/ebof"
	"github.com/anchorweave/anchorweave/internal/hashutil"
	"github.com/anchorweave/anchorweave/internal/objstore"
)

func newStores(t *testing.T) (*objstore.Store, *ebof.Store, *ebof.Store) {
	t.Helper()
	root := t.TempDir()
	return objstore.New(filepath.Join(root, "objects")),
		ebof.NewBlockStore(filepath.Join(root, "b")),
		ebof.NewManifestStore(filepath.Join(root, "m"))
}

func writeFile(t *testing.T, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "f")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func bigThresholds() Thresholds {
	return Thresholds{LargeFile: 1 << 40, Stream: 1 << 40}
}

func TestIngestSmallNoParentWritesFullBlob(t *testing.T) {
	objs, blocks, mobjs := newStores(t)
	content := []byte("small file content")
	path := writeFile(t, content)

	result, err := Ingest(path, "f.txt", 0o644, uint64(len(content)), objs, blocks, mobjs, Parent{}, bigThresholds(), nil)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if result.IsManifest {
		t.Fatal("expected a small file to not be manifested")
	}
	got, err := objs.ReadObject(objstore.HashHex(result.Hash))
	if err != nil {
		t.Fatalf("ReadObject: %v", err)
	}
	if string(got) != string(content) {
		t.Fatalf("got %q, want %q", got, content)
	}
}

func TestIngestSmallIdenticalContentIsIdempotent(t *testing.T) {
	objs, blocks, mobjs := newStores(t)
	content := []byte("same content both times")
	path := writeFile(t, content)

	r1, err := Ingest(path, "f.txt", 0o644, uint64(len(content)), objs, blocks, mobjs, Parent{}, bigThresholds(), nil)
	if err != nil {
		t.Fatalf("Ingest 1: %v", err)
	}
	r2, err := Ingest(path, "f.txt", 0o644, uint64(len(content)), objs, blocks, mobjs, Parent{Kind: ParentBlob, Hash: r1.Hash}, bigThresholds(), nil)
	if err != nil {
		t.Fatalf("Ingest 2: %v", err)
	}
	if r1.Hash != r2.Hash {
		t.Fatal("expected identical content to produce the identical hash")
	}
}

func TestIngestSmallWithBlobParentRoundTrips(t *testing.T) {
	objs, blocks, mobjs := newStores(t)
	base := []byte("the quick brown fox jumps over the lazy dog, over and over and over and over")
	basePath := writeFile(t, base)
	baseResult, err := Ingest(basePath, "f.txt", 0o644, uint64(len(base)), objs, blocks, mobjs, Parent{}, bigThresholds(), nil)
	if err != nil {
		t.Fatalf("Ingest base: %v", err)
	}

	newContent := append(append([]byte{}, base...), []byte(" plus a small tail")...)
	newPath := writeFile(t, newContent)
	parent := Parent{Kind: ParentBlob, Hash: baseResult.Hash}
	result, err := Ingest(newPath, "f.txt", 0o644, uint64(len(newContent)), objs, blocks, mobjs, parent, bigThresholds(), nil)
	if err != nil {
		t.Fatalf("Ingest new: %v", err)
	}

	got, err := objs.ReadObject(objstore.HashHex(result.Hash))
	if err != nil {
		t.Fatalf("ReadObject: %v", err)
	}
	if string(got) != string(newContent) {
		t.Fatalf("got %q, want %q", got, newContent)
	}
}

func TestIngestSmallNeverDeltasAgainstManifestParent(t *testing.T) {
	objs, blocks, mobjs := newStores(t)
	content := []byte("content with a manifest parent, should just become a blob")
	path := writeFile(t, content)

	parent := Parent{Kind: ParentManifest, Hash: hashutil.SumSHA256([]byte("irrelevant"))}
	result, err := Ingest(path, "f.txt", 0o644, uint64(len(content)), objs, blocks, mobjs, parent, bigThresholds(), nil)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	got, err := objs.ReadObject(objstore.HashHex(result.Hash))
	if err != nil {
		t.Fatalf("ReadObject: %v", err)
	}
	if string(got) != string(content) {
		t.Fatalf("got %q, want %q", got, content)
	}
}

func TestIngestStreamedPathHashesAndStoresFullBlob(t *testing.T) {
	objs, blocks, mobjs := newStores(t)
	content := []byte("content ingested via the streaming path")
	path := writeFile(t, content)

	thresholds := Thresholds{LargeFile: 1 << 40, Stream: 1}
	result, err := Ingest(path, "f.txt", 0o644, uint64(len(content)), objs, blocks, mobjs, Parent{}, thresholds, nil)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if result.IsManifest {
		t.Fatal("expected the streamed path to never produce a manifest")
	}
	got, err := objs.ReadObject(objstore.HashHex(result.Hash))
	if err != nil {
		t.Fatalf("ReadObject: %v", err)
	}
	if string(got) != string(content) {
		t.Fatalf("got %q, want %q", got, content)
	}
}

func TestIngestAtExactStreamThresholdStaysInMemory(t *testing.T) {
	objs, blocks, mobjs := newStores(t)
	content := []byte("0123456789")
	path := writeFile(t, content)
	base := []byte("9876543210")
	basePath := writeFile(t, base)
	baseResult, err := Ingest(basePath, "f.txt", 0o644, uint64(len(base)), objs, blocks, mobjs, Parent{}, bigThresholds(), nil)
	if err != nil {
		t.Fatalf("Ingest base: %v", err)
	}

	thresholds := Thresholds{LargeFile: 1 << 40, Stream: uint64(len(content))}
	parent := Parent{Kind: ParentBlob, Hash: baseResult.Hash}
	result, err := Ingest(path, "f.txt", 0o644, uint64(len(content)), objs, blocks, mobjs, parent, thresholds, nil)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if result.IsManifest {
		t.Fatal("expected a file exactly at the stream threshold to take the in-memory path, not a manifest")
	}
	got, err := objs.ReadObject(objstore.HashHex(result.Hash))
	if err != nil {
		t.Fatalf("ReadObject: %v", err)
	}
	if string(got) != string(content) {
		t.Fatalf("got %q, want %q", got, content)
	}
}

func TestIngestAtExactLargeFileThresholdStreamsRatherThanManifests(t *testing.T) {
	objs, blocks, mobjs := newStores(t)
	content := []byte("content sized exactly at the large-file threshold")
	path := writeFile(t, content)

	thresholds := Thresholds{LargeFile: uint64(len(content)), Stream: 1}
	result, err := Ingest(path, "f.txt", 0o644, uint64(len(content)), objs, blocks, mobjs, Parent{}, thresholds, nil)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if result.IsManifest {
		t.Fatal("expected a file exactly at the large-file threshold to stream rather than manifest")
	}
}

func TestIngestManifestPathUsesDeconstructorAndIsManifest(t *testing.T) {
	objs, blocks, mobjs := newStores(t)
	content := []byte("content ingested via the manifest (chunked) path")
	path := writeFile(t, content)

	stub := func(p string, blockStore *ebof.Store, old *ebof.ManifestData) ([]ebof.ManifestEntry, float32, error) {
		raw := []byte("a single fabricated block")
		header := ebof.BlockHeader{OriginalLength: uint64(len(raw)), CRC32: hashutil.CRC32(raw)}
		payload := ebof.EncodeBlock(header, raw)
		h := hashutil.SumSHA256(raw)
		if err := blockStore.Write(objstore.HashHex(h), payload); err != nil {
			return nil, 0, err
		}
		return []ebof.ManifestEntry{{Hash: h, Offset: 0, Length: uint64(len(raw))}}, 2.0, nil
	}

	thresholds := Thresholds{LargeFile: 1, Stream: 1 << 40}
	result, err := Ingest(path, "f.txt", 0o644, uint64(len(content)), objs, blocks, mobjs, Parent{}, thresholds, stub)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if !result.IsManifest {
		t.Fatal("expected the large-file path to produce a manifest")
	}
	if result.Entropy != 2.0 {
		t.Fatalf("expected the manifest's mean entropy to surface, got %v", result.Entropy)
	}
}
