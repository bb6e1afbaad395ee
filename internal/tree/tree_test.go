package tree

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/anchorweave/anchorweave/internal/blobstore"
	"github.com/anchorweave/anchorweave/internal/ebof"
	"github.com/anchorweave/anchorweave/internal/hashutil"
	"github.com/anchorweave/anchorweave/internal/ignorelist"
	"github.com/anchorweave/anchorweave/internal/objindex"
	"github.com/anchorweave/anchorweave/internal/objstore"
)

func testOptions(t *testing.T) BuildOptions {
	t.Helper()
	root := t.TempDir()
	return BuildOptions{
		Objects:    objstore.New(filepath.Join(root, "objects")),
		Blocks:     ebof.NewBlockStore(filepath.Join(root, "objects", "b")),
		Manifests:  ebof.NewManifestStore(filepath.Join(root, "objects", "m")),
		Thresholds: blobstore.DefaultThresholds(),
	}
}

func TestEncodeParseRoundTrip(t *testing.T) {
	entries := []Entry{
		{Mode: 0644, Kind: KindBlob, Hash: hashutil.SumSHA256([]byte("a")), Entropy: 1.5, Author: "al", Name: "a.txt"},
		{Mode: 0755, Kind: KindTree, Hash: hashutil.SumSHA256([]byte("b")), Entropy: 0, Author: "n/a", Name: "sub"},
	}
	encoded := Encode(entries)
	got, err := Parse(encoded)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].Name != "a.txt" || got[0].Kind != KindBlob || got[0].Author != "al" {
		t.Fatalf("entry 0 mismatch: %+v", got[0])
	}
	if got[1].Name != "sub" || got[1].Kind != KindTree {
		t.Fatalf("entry 1 mismatch: %+v", got[1])
	}
}

func TestEncodeDefaultsMissingAuthor(t *testing.T) {
	entries := []Entry{{Mode: 0644, Kind: KindBlob, Hash: hashutil.SumSHA256([]byte("x")), Name: "x"}}
	got, err := Parse(Encode(entries))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got[0].Author != "unknown" {
		t.Fatalf("expected default author 'unknown', got %q", got[0].Author)
	}
}

func TestBuildAndLookup(t *testing.T) {
	nodeRoot := t.TempDir()
	if err := os.WriteFile(filepath.Join(nodeRoot, "top.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(nodeRoot, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(nodeRoot, "sub", "nested.txt"), []byte("world"), 0o644); err != nil {
		t.Fatal(err)
	}

	opts := testOptions(t)
	rootHashHex, err := Build(nodeRoot, nodeRoot, "", opts)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	entry, found, err := Lookup(opts.Objects, rootHashHex, "top.txt")
	if err != nil {
		t.Fatalf("Lookup top.txt: %v", err)
	}
	if !found || entry.Kind != KindBlob {
		t.Fatalf("expected top.txt to be found as a blob, got found=%v entry=%+v", found, entry)
	}

	entry, found, err = Lookup(opts.Objects, rootHashHex, "sub/nested.txt")
	if err != nil {
		t.Fatalf("Lookup sub/nested.txt: %v", err)
	}
	if !found || entry.Kind != KindBlob {
		t.Fatalf("expected sub/nested.txt to be found as a blob, got found=%v entry=%+v", found, entry)
	}

	content, err := opts.Objects.ReadObject(objstore.HashHex(entry.Hash))
	if err != nil {
		t.Fatalf("ReadObject: %v", err)
	}
	if string(content) != "world" {
		t.Fatalf("expected content 'world', got %q", content)
	}

	if _, found, err := Lookup(opts.Objects, rootHashHex, "does/not/exist"); err != nil || found {
		t.Fatalf("expected missing path to report not-found, got found=%v err=%v", found, err)
	}
}

func TestBuildSkipsIgnoredPaths(t *testing.T) {
	nodeRoot := t.TempDir()
	if err := os.WriteFile(filepath.Join(nodeRoot, "keep.txt"), []byte("keep"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(nodeRoot, ".retain"), []byte("skip.txt\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(nodeRoot, "skip.txt"), []byte("skip"), 0o644); err != nil {
		t.Fatal(err)
	}

	opts := testOptions(t)
	ignore, err := ignorelist.Load(nodeRoot)
	if err != nil {
		t.Fatal(err)
	}
	opts.Ignore = ignore

	rootHashHex, err := Build(nodeRoot, nodeRoot, "", opts)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if _, found, _ := Lookup(opts.Objects, rootHashHex, "skip.txt"); found {
		t.Fatal("expected skip.txt to be excluded from the tree")
	}
	if _, found, _ := Lookup(opts.Objects, rootHashHex, "keep.txt"); !found {
		t.Fatal("expected keep.txt to be present in the tree")
	}
}

func TestBuildWithIndexReusesCachedIdentityWhenFileUnchanged(t *testing.T) {
	nodeRoot := t.TempDir()
	filePath := filepath.Join(nodeRoot, "f.txt")
	if err := os.WriteFile(filePath, []byte("unchanging content"), 0o644); err != nil {
		t.Fatal(err)
	}
	mtime := time.Now().Add(-time.Hour)
	if err := os.Chtimes(filePath, mtime, mtime); err != nil {
		t.Fatal(err)
	}

	idx, err := objindex.Open(filepath.Join(t.TempDir(), "index.bolt"))
	if err != nil {
		t.Fatalf("objindex.Open: %v", err)
	}
	defer idx.Close()

	opts := testOptions(t)
	opts.Index = idx

	firstHashHex, err := Build(nodeRoot, nodeRoot, "", opts)
	if err != nil {
		t.Fatalf("first Build: %v", err)
	}
	firstEntry, found, _ := Lookup(opts.Objects, firstHashHex, "f.txt")
	if !found {
		t.Fatal("expected f.txt in the first built tree")
	}

	cached, found, err := idx.Lookup("f.txt")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !found {
		t.Fatal("expected Build to have populated the index cache")
	}
	if cached.SHA256Hex != objstore.HashHex(firstEntry.Hash) {
		t.Fatalf("cached identity %s does not match ingested hash %s", cached.SHA256Hex, objstore.HashHex(firstEntry.Hash))
	}

	// Poison the cached SHA-256 so a cache hit is distinguishable from a
	// coincidental re-ingest producing the same hash.
	poisoned := cached
	poisoned.SHA256Hex = objstore.HashHex(hashutil.SumSHA256([]byte("not the real content")))
	if err := idx.Put("f.txt", poisoned); err != nil {
		t.Fatalf("Put: %v", err)
	}

	secondHashHex, err := Build(nodeRoot, nodeRoot, "", opts)
	if err != nil {
		t.Fatalf("second Build: %v", err)
	}
	secondEntry, found, _ := Lookup(opts.Objects, secondHashHex, "f.txt")
	if !found {
		t.Fatal("expected f.txt in the second built tree")
	}
	if objstore.HashHex(secondEntry.Hash) != poisoned.SHA256Hex {
		t.Fatalf("expected Build to trust the cached (poisoned) identity, got %s", objstore.HashHex(secondEntry.Hash))
	}
}
