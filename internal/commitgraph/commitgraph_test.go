package commitgraph

import (
	"strings"
	"testing"

	"github.com/anchorweave/anchorweave/internal/objstore"
)

func TestEncodeParseRoundTrip(t *testing.T) {
	c := Commit{
		Kind:      KindSubsection,
		Tree:      strings.Repeat("a", 64),
		Parent:    strings.Repeat("b", 64),
		Anchor:    strings.Repeat("c", 64),
		Author:    "Ada Lovelace",
		AuthorUID: 1001,
		Timestamp: 1700000000,
		Committer: "Ada Lovelace",
		CommUID:   1001,
		CommTS:    1700000000,
		Message:   "v1.2.3\n\nExtra detail that should not affect the tag",
	}

	encoded := Encode(c)
	got, err := Parse(encoded)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if got.Kind != c.Kind || got.Tree != c.Tree || got.Parent != c.Parent || got.Anchor != c.Anchor {
		t.Fatalf("header fields mismatch: got %+v", got)
	}
	if got.Author != c.Author || got.AuthorUID != c.AuthorUID || got.Timestamp != c.Timestamp {
		t.Fatalf("author signature mismatch: got %+v", got)
	}
	if got.Message != "v1.2.3" {
		t.Fatalf("expected only the first message line to survive, got %q", got.Message)
	}
}

func TestEncodeOmitsEmptyOptionalFields(t *testing.T) {
	c := Commit{
		Kind:      KindTrunk,
		Tree:      strings.Repeat("d", 64),
		Author:    "bob",
		Timestamp: 1,
		Committer: "bob",
		CommTS:    1,
		Message:   "initial",
	}
	encoded := string(Encode(c))
	if strings.Contains(encoded, "parent ") || strings.Contains(encoded, "anchor ") || strings.Contains(encoded, "promoted ") {
		t.Fatalf("expected no parent/anchor/promoted lines for a first commit, got:\n%s", encoded)
	}
}

func TestFindByTagWalksParentChain(t *testing.T) {
	objs := objstore.New(t.TempDir())

	root, err := Write(objs, Commit{Kind: KindTrunk, Tree: strings.Repeat("1", 64), Author: "a", Committer: "a", Message: "root"})
	if err != nil {
		t.Fatalf("write root: %v", err)
	}
	mid, err := Write(objs, Commit{Kind: KindTrunk, Tree: strings.Repeat("2", 64), Parent: root, Author: "a", Committer: "a", Message: "v1"})
	if err != nil {
		t.Fatalf("write mid: %v", err)
	}
	head, err := Write(objs, Commit{Kind: KindTrunk, Tree: strings.Repeat("3", 64), Parent: mid, Author: "a", Committer: "a", Message: "v2"})
	if err != nil {
		t.Fatalf("write head: %v", err)
	}

	found, err := FindByTag(objs, head, "v1")
	if err != nil {
		t.Fatalf("FindByTag: %v", err)
	}
	if found != mid {
		t.Fatalf("expected to resolve to mid commit %s, got %s", mid, found)
	}

	latest, err := FindByTag(objs, head, "LATEST_HEAD")
	if err != nil {
		t.Fatalf("FindByTag LATEST_HEAD: %v", err)
	}
	if latest != head {
		t.Fatalf("expected LATEST_HEAD to resolve to head itself, got %s", latest)
	}

	if _, err := FindByTag(objs, head, "nonexistent"); err == nil {
		t.Fatal("expected error for a tag that is not in history")
	}
}

func TestAncestryOrderAndFields(t *testing.T) {
	objs := objstore.New(t.TempDir())

	root, err := Write(objs, Commit{Kind: KindTrunk, Tree: strings.Repeat("1", 64), Author: "a", Committer: "a", Message: "root"})
	if err != nil {
		t.Fatalf("write root: %v", err)
	}
	head, err := Write(objs, Commit{Kind: KindTrunk, Tree: strings.Repeat("2", 64), Parent: root, Author: "a", Committer: "a", Message: "v1"})
	if err != nil {
		t.Fatalf("write head: %v", err)
	}

	entries, err := Ancestry(objs, head)
	if err != nil {
		t.Fatalf("Ancestry: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].CommitHash != head || entries[1].CommitHash != root {
		t.Fatalf("expected most-recent-first ordering, got %+v", entries)
	}
}
