package fileutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSearchPaths(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "repos.yaml")
	if err := os.WriteFile(existing, []byte("repositories: {}"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	found, err := SearchPaths([]string{
		filepath.Join(dir, "missing.yaml"),
		existing,
	})
	if err != nil {
		t.Fatalf("SearchPaths failed: %v", err)
	}
	if found != existing {
		t.Errorf("Expected %q, got %q", existing, found)
	}
}

func TestSearchPaths_NotFound(t *testing.T) {
	dir := t.TempDir()
	if _, err := SearchPaths([]string{filepath.Join(dir, "nope.yaml")}); err == nil {
		t.Error("Expected error when no path exists")
	}

	if got := SearchPathsOptional([]string{filepath.Join(dir, "nope.yaml")}); got != "" {
		t.Errorf("Expected empty string, got %q", got)
	}
}

func TestDefaultConfigPaths(t *testing.T) {
	paths := DefaultConfigPaths("repos.yaml")
	if len(paths) != 3 {
		t.Fatalf("Expected 3 search paths, got %d", len(paths))
	}
	if paths[0] != "repos.yaml" {
		t.Errorf("Expected current directory first, got %q", paths[0])
	}
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f")
	os.WriteFile(file, []byte("x"), 0644)

	if !FileExists(file) {
		t.Error("Expected FileExists to report an existing file")
	}
	if FileExists(dir) {
		t.Error("Expected FileExists to reject a directory")
	}
	if FileExists(filepath.Join(dir, "missing")) {
		t.Error("Expected FileExists to reject a missing path")
	}
	if !DirExists(dir) {
		t.Error("Expected DirExists to report an existing directory")
	}
}
