package modelregistry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/user0131/llamapool/config"
)

func writeFile(t *testing.T, dir, name string, size int) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

func TestListModelsFiltersBySuffix(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "llama-7b.gguf", 100)
	writeFile(t, dir, "llama-13b.gguf", 200)
	writeFile(t, dir, "README.md", 10)
	writeFile(t, dir, "notes.txt", 5)

	models, err := ListModels(dir, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(models) != 2 {
		t.Fatalf("expected 2 models, got %d: %+v", len(models), models)
	}

	byName := map[string]ModelDescriptor{}
	for _, m := range models {
		byName[m.Name] = m
	}
	if byName["llama-7b.gguf"].SizeBytes != 100 {
		t.Fatalf("expected size 100, got %d", byName["llama-7b.gguf"].SizeBytes)
	}
	if byName["llama-13b.gguf"].SizeBytes != 200 {
		t.Fatalf("expected size 200, got %d", byName["llama-13b.gguf"].SizeBytes)
	}
}

func TestListModelsIdempotent(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.gguf", 1)
	writeFile(t, dir, "b.gguf", 2)

	first, err := ListModels(dir, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := ListModels(dir, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("expected stable count across calls: %d vs %d", len(first), len(second))
	}
}

func TestListModelsRejectsNonDirectory(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, "notadir")
	writeFile(t, dir, "notadir", 1)

	_, err := ListModels(filePath, "")
	if err == nil {
		t.Fatal("expected ConfigError for non-directory path")
	}
	if _, ok := err.(*config.ConfigError); !ok {
		t.Fatalf("expected *config.ConfigError, got %T", err)
	}
}

func TestListModelsRejectsMissingDirectory(t *testing.T) {
	_, err := ListModels(filepath.Join(t.TempDir(), "missing"), "")
	if err == nil {
		t.Fatal("expected ConfigError for missing directory")
	}
}

func TestEqualByPath(t *testing.T) {
	a := ModelDescriptor{Name: "x.gguf", Path: "/models/x.gguf", SizeBytes: 1}
	b := ModelDescriptor{Name: "x.gguf", Path: "/models/x.gguf", SizeBytes: 999}
	c := ModelDescriptor{Name: "y.gguf", Path: "/models/y.gguf", SizeBytes: 1}

	if !a.Equal(b) {
		t.Fatal("expected equality by path despite differing size")
	}
	if a.Equal(c) {
		t.Fatal("expected inequality for distinct paths")
	}
}

func TestLookup(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "llama-7b.gguf", 42)

	found, ok, err := Lookup(dir, "", "llama-7b.gguf")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected model to be found")
	}
	if found.SizeBytes != 42 {
		t.Fatalf("expected size 42, got %d", found.SizeBytes)
	}

	_, ok, err = Lookup(dir, "", "missing.gguf")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected missing model to return ok=false")
	}
}
