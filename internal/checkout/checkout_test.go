package checkout

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/anchorweave/anchorweave/internal/awerr"
	"github.com/anchorweave/anchorweave/internal/blobstore"
	"github.com/anchorweave/anchorweave/internal/commitgraph"
	"github.com/anchorweave/anchorweave/internal/ebof"
	"github.com/anchorweave/anchorweave/internal/objstore"
	"github.com/anchorweave/anchorweave/internal/refstore"
	"github.com/anchorweave/anchorweave/internal/tree"
)

func testStores(t *testing.T) (Stores, tree.BuildOptions) {
	t.Helper()
	root := t.TempDir()
	objs := objstore.New(filepath.Join(root, "objects"))
	blocks := ebof.NewBlockStore(filepath.Join(root, "objects", "b"))
	mobjs := ebof.NewManifestStore(filepath.Join(root, "objects", "m"))
	return Stores{Objects: objs, Blocks: blocks, Manifests: mobjs},
		tree.BuildOptions{Objects: objs, Blocks: blocks, Manifests: mobjs, Thresholds: blobstore.DefaultThresholds()}
}

func TestFileChecksOutSingleBlob(t *testing.T) {
	stores, opts := testStores(t)
	srcRoot := t.TempDir()
	if err := os.WriteFile(filepath.Join(srcRoot, "a.txt"), []byte("content a"), 0o644); err != nil {
		t.Fatal(err)
	}
	rootHashHex, err := tree.Build(srcRoot, srcRoot, "", opts)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	destRoot := t.TempDir()
	if err := File(stores, rootHashHex, "a.txt", destRoot); err != nil {
		t.Fatalf("File: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(destRoot, "a.txt"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "content a" {
		t.Fatalf("got %q", got)
	}
}

func TestFileMissingPathReturnsErrMissingReference(t *testing.T) {
	stores, opts := testStores(t)
	srcRoot := t.TempDir()
	if err := os.WriteFile(filepath.Join(srcRoot, "a.txt"), []byte("a"), 0o644); err != nil {
		t.Fatal(err)
	}
	rootHashHex, err := tree.Build(srcRoot, srcRoot, "", opts)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	err = File(stores, rootHashHex, "no-such-file.txt", t.TempDir())
	if err == nil || !errors.Is(err, awerr.ErrMissingReference) {
		t.Fatalf("expected ErrMissingReference, got %v", err)
	}
}

func TestApplyTreeDiffCreatesUpdatesAndDeletes(t *testing.T) {
	stores, opts := testStores(t)

	srcRoot1 := t.TempDir()
	os.WriteFile(filepath.Join(srcRoot1, "keep.txt"), []byte("keep v1"), 0o644)
	os.WriteFile(filepath.Join(srcRoot1, "remove.txt"), []byte("going away"), 0o644)
	os.WriteFile(filepath.Join(srcRoot1, "update.txt"), []byte("old content"), 0o644)
	tree1, err := tree.Build(srcRoot1, srcRoot1, "", opts)
	if err != nil {
		t.Fatalf("Build tree1: %v", err)
	}

	srcRoot2 := t.TempDir()
	os.WriteFile(filepath.Join(srcRoot2, "keep.txt"), []byte("keep v1"), 0o644)
	os.WriteFile(filepath.Join(srcRoot2, "update.txt"), []byte("new content"), 0o644)
	os.MkdirAll(filepath.Join(srcRoot2, "newdir"), 0o755)
	os.WriteFile(filepath.Join(srcRoot2, "newdir", "added.txt"), []byte("freshly added"), 0o644)
	tree2, err := tree.Build(srcRoot2, srcRoot2, tree1, opts)
	if err != nil {
		t.Fatalf("Build tree2: %v", err)
	}

	workdir := t.TempDir()
	os.WriteFile(filepath.Join(workdir, "keep.txt"), []byte("keep v1"), 0o644)
	os.WriteFile(filepath.Join(workdir, "remove.txt"), []byte("going away"), 0o644)
	os.WriteFile(filepath.Join(workdir, "update.txt"), []byte("old content"), 0o644)

	if err := ApplyTreeDiff(stores, tree1, tree2, workdir); err != nil {
		t.Fatalf("ApplyTreeDiff: %v", err)
	}

	if _, err := os.Stat(filepath.Join(workdir, "remove.txt")); !os.IsNotExist(err) {
		t.Fatal("expected remove.txt to be deleted")
	}
	got, err := os.ReadFile(filepath.Join(workdir, "update.txt"))
	if err != nil {
		t.Fatalf("ReadFile update.txt: %v", err)
	}
	if string(got) != "new content" {
		t.Fatalf("got %q, want %q", got, "new content")
	}
	got, err = os.ReadFile(filepath.Join(workdir, "newdir", "added.txt"))
	if err != nil {
		t.Fatalf("ReadFile newdir/added.txt: %v", err)
	}
	if string(got) != "freshly added" {
		t.Fatalf("got %q", got)
	}
	got, err = os.ReadFile(filepath.Join(workdir, "keep.txt"))
	if err != nil {
		t.Fatalf("ReadFile keep.txt: %v", err)
	}
	if string(got) != "keep v1" {
		t.Fatalf("expected keep.txt to survive untouched, got %q", got)
	}
}

func TestApplyTreeDiffFromEmptyCreatesEverything(t *testing.T) {
	stores, opts := testStores(t)
	srcRoot := t.TempDir()
	os.MkdirAll(filepath.Join(srcRoot, "sub"), 0o755)
	os.WriteFile(filepath.Join(srcRoot, "sub", "f.txt"), []byte("nested"), 0o644)
	treeHex, err := tree.Build(srcRoot, srcRoot, "", opts)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	workdir := t.TempDir()
	if err := ApplyTreeDiff(stores, "", treeHex, workdir); err != nil {
		t.Fatalf("ApplyTreeDiff: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(workdir, "sub", "f.txt"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "nested" {
		t.Fatalf("got %q", got)
	}
}

func TestRebuildRequiresExplicitOldCommit(t *testing.T) {
	stores, _ := testStores(t)
	refs := refstore.New(t.TempDir())
	_, err := Rebuild(stores, refs, refstore.Trunk, "", "LATEST_HEAD", t.TempDir())
	if err == nil || !errors.Is(err, awerr.ErrMalformedInput) {
		t.Fatalf("expected ErrMalformedInput for a missing old commit, got %v", err)
	}
}

func TestRebuildAppliesDiffAndAdvancesHead(t *testing.T) {
	stores, opts := testStores(t)
	nodeRoot := t.TempDir()
	refs := refstore.New(nodeRoot)

	srcRoot1 := t.TempDir()
	os.WriteFile(filepath.Join(srcRoot1, "a.txt"), []byte("version 1"), 0o644)
	tree1, err := tree.Build(srcRoot1, srcRoot1, "", opts)
	if err != nil {
		t.Fatalf("Build tree1: %v", err)
	}
	commit1, err := commitgraph.Write(stores.Objects, commitgraph.Commit{
		Kind: commitgraph.KindTrunk, Tree: tree1, Author: "a", Committer: "a", Message: "v1",
	})
	if err != nil {
		t.Fatalf("write commit1: %v", err)
	}

	srcRoot2 := t.TempDir()
	os.WriteFile(filepath.Join(srcRoot2, "a.txt"), []byte("version 2"), 0o644)
	tree2, err := tree.Build(srcRoot2, srcRoot2, tree1, opts)
	if err != nil {
		t.Fatalf("Build tree2: %v", err)
	}
	commit2, err := commitgraph.Write(stores.Objects, commitgraph.Commit{
		Kind: commitgraph.KindTrunk, Tree: tree2, Parent: commit1, Author: "a", Committer: "a", Message: "v2",
	})
	if err != nil {
		t.Fatalf("write commit2: %v", err)
	}
	if err := refs.WriteHead(refstore.Trunk, commit2); err != nil {
		t.Fatalf("WriteHead: %v", err)
	}

	workdir := t.TempDir()
	os.WriteFile(filepath.Join(workdir, "a.txt"), []byte("version 1"), 0o644)

	result, err := Rebuild(stores, refs, refstore.Trunk, commit1, "LATEST_HEAD", workdir)
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if result.NewHead != commit2 {
		t.Fatalf("expected new head %s, got %s", commit2, result.NewHead)
	}
	if result.TreesEqual {
		t.Fatal("expected trees to differ")
	}

	got, err := os.ReadFile(filepath.Join(workdir, "a.txt"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "version 2" {
		t.Fatalf("got %q, want version 2", got)
	}

	head, err := refs.ReadHead(refstore.Trunk)
	if err != nil {
		t.Fatalf("ReadHead: %v", err)
	}
	if head != commit2 {
		t.Fatalf("expected branch HEAD to advance to %s, got %s", commit2, head)
	}
}
