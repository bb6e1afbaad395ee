package ignorelist

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileYieldsEmptyUsableList(t *testing.T) {
	list, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if list.Ignored("anything.txt") {
		t.Fatal("expected a file not under any pattern to not be ignored")
	}
}

func TestLoadSkipsBlankLinesAndComments(t *testing.T) {
	root := t.TempDir()
	content := "# comment\n\nbuild\n"
	if err := os.WriteFile(filepath.Join(root, ".retain"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	list, err := Load(root)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !list.Ignored("build") {
		t.Fatal("expected 'build' to be ignored")
	}
	if !list.Ignored("build/output.o") {
		t.Fatal("expected a path under 'build/' to be ignored")
	}
	if list.Ignored("buildsomething") {
		t.Fatal("expected a path merely prefixed by the pattern string (no separator) to not be ignored")
	}
}

func TestLoadTrimsTrailingSlashFromPatterns(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, ".retain"), []byte("vendor/\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	list, err := Load(root)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !list.Ignored("vendor") {
		t.Fatal("expected the bare directory name to be ignored")
	}
	if !list.Ignored("vendor/pkg/file.go") {
		t.Fatal("expected a nested path to be ignored")
	}
}

func TestIgnoredAlwaysExcludesNodeMetadata(t *testing.T) {
	list := &List{}
	if !list.Ignored(".log") {
		t.Fatal("expected .log to always be ignored")
	}
	if !list.Ignored(".retain") {
		t.Fatal("expected .retain to always be ignored")
	}
}
