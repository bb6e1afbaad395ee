package config

import (
	"os"
	"path/filepath"
	"testing"
)

// chdirToFreshRepo sets HOME to an isolated temp dir (so global config never
// touches the real one) and moves the process into a fresh repo-root temp
// dir, returning that dir. t.Setenv and t.Cleanup restore both afterwards.
func chdirToFreshRepo(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)

	repoRoot := t.TempDir()
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(repoRoot); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		os.Chdir(cwd)
	})
	return repoRoot
}

func TestDefaultConfigHasSaneThresholds(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Core.LargeFileThreshold == 0 || cfg.Core.StreamThreshold == 0 {
		t.Fatalf("expected non-zero default thresholds, got %+v", cfg.Core)
	}
	if cfg.Core.LargeFileThreshold <= cfg.Core.StreamThreshold {
		t.Fatalf("expected LargeFileThreshold > StreamThreshold, got %+v", cfg.Core)
	}
}

func TestLoadConfigWithNoFilesReturnsDefaults(t *testing.T) {
	chdirToFreshRepo(t)
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	want := DefaultConfig()
	if cfg.Core.LargeFileThreshold != want.Core.LargeFileThreshold {
		t.Fatalf("got %d, want %d", cfg.Core.LargeFileThreshold, want.Core.LargeFileThreshold)
	}
}

func TestSetValueRepoRoundTripsThroughGetValue(t *testing.T) {
	chdirToFreshRepo(t)

	if err := SetValue("user.name", "Alice", false); err != nil {
		t.Fatalf("SetValue user.name: %v", err)
	}
	if err := SetValue("user.uid", "1001", false); err != nil {
		t.Fatalf("SetValue user.uid: %v", err)
	}
	if err := SetValue("core.large_file_threshold", "123456", false); err != nil {
		t.Fatalf("SetValue core.large_file_threshold: %v", err)
	}

	got, err := GetValue("user.name")
	if err != nil {
		t.Fatalf("GetValue user.name: %v", err)
	}
	if got != "Alice" {
		t.Fatalf("got %q, want Alice", got)
	}

	got, err = GetValue("user.uid")
	if err != nil {
		t.Fatalf("GetValue user.uid: %v", err)
	}
	if got != "1001" {
		t.Fatalf("got %q, want 1001", got)
	}

	got, err = GetValue("core.large_file_threshold")
	if err != nil {
		t.Fatalf("GetValue core.large_file_threshold: %v", err)
	}
	if got != "123456" {
		t.Fatalf("got %q, want 123456", got)
	}
}

func TestSetValueRejectsUnknownSection(t *testing.T) {
	chdirToFreshRepo(t)
	if err := SetValue("bogus.key", "v", false); err == nil {
		t.Fatal("expected an error for an unknown config section")
	}
}

func TestSetValueRejectsMalformedThreshold(t *testing.T) {
	chdirToFreshRepo(t)
	if err := SetValue("core.stream_threshold", "not-a-number", false); err == nil {
		t.Fatal("expected an error for a non-numeric threshold value")
	}
}

func TestRepoConfigWrittenUnderLogDirectory(t *testing.T) {
	repoRoot := chdirToFreshRepo(t)
	if err := SetValue("user.name", "Bob", false); err != nil {
		t.Fatalf("SetValue: %v", err)
	}
	if _, err := os.Stat(filepath.Join(repoRoot, ".log", "config")); err != nil {
		t.Fatalf("expected repo config under .log/config: %v", err)
	}
}

func TestRepoConfigOverridesGlobalConfig(t *testing.T) {
	chdirToFreshRepo(t)

	if err := SetValue("user.name", "Global Name", true); err != nil {
		t.Fatalf("SetValue global: %v", err)
	}
	if err := SetValue("user.name", "Repo Name", false); err != nil {
		t.Fatalf("SetValue repo: %v", err)
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.User.Name != "Repo Name" {
		t.Fatalf("expected repo config to win, got %q", cfg.User.Name)
	}
}

func TestGetAuthorRequiresNameAndEmail(t *testing.T) {
	chdirToFreshRepo(t)
	if _, err := GetAuthor(); err == nil {
		t.Fatal("expected an error when user.name/user.email are unset")
	}

	if err := SetValue("user.name", "Alice", false); err != nil {
		t.Fatal(err)
	}
	if err := SetValue("user.email", "alice@example.com", false); err != nil {
		t.Fatal(err)
	}
	got, err := GetAuthor()
	if err != nil {
		t.Fatalf("GetAuthor: %v", err)
	}
	if got != "Alice <alice@example.com>" {
		t.Fatalf("got %q", got)
	}
}
