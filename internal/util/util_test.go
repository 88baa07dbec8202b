package util

import (
	"os"
	"path/filepath"
	"testing"
)

func TestExists(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "datasets.yaml")
	if err := os.WriteFile(file, []byte("datasets: []"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		path      string
		dir, file bool
	}{
		{dir, true, false},
		{file, false, true},
		{filepath.Join(dir, "missing"), false, false},
		{filepath.Join(file, "child"), false, false},
	}
	for _, tt := range tests {
		if DirExists(tt.path) != tt.dir || FileExists(tt.path) != tt.file {
			t.Errorf("%s: dir=%v file=%v", tt.path, DirExists(tt.path), FileExists(tt.path))
		}
	}
}

func TestIsURL(t *testing.T) {
	if !IsURL("https://example.org/datasets") || IsURL("./data/datasets.yaml") {
		t.Fatalf("unexpected IsURL result")
	}
}
