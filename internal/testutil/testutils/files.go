// Package testutils holds filesystem fixtures and assertions shared by tests.
package testutils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// WriteTree creates files below root. Keys are slash separated relative paths.
func WriteTree(t testing.TB, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		full := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", filepath.Dir(full), err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", full, err)
		}
	}
}

// FileAssertions checks the state of a directory tree, usually a build output.
type FileAssertions struct {
	t       testing.TB
	baseDir string
}

// NewFileAssertions returns assertions rooted at baseDir.
func NewFileAssertions(t testing.TB, baseDir string) *FileAssertions {
	return &FileAssertions{t: t, baseDir: baseDir}
}

func (fa *FileAssertions) path(rel string) string {
	return filepath.Join(fa.baseDir, filepath.FromSlash(rel))
}

// Read returns the content of rel, failing the test if it cannot be read.
func (fa *FileAssertions) Read(rel string) string {
	fa.t.Helper()
	b, err := os.ReadFile(fa.path(rel))
	if err != nil {
		fa.t.Fatalf("read %s: %v", rel, err)
	}
	return string(b)
}

// AssertFileExists fails if rel is missing or is a directory.
func (fa *FileAssertions) AssertFileExists(rel string) *FileAssertions {
	fa.t.Helper()
	fi, err := os.Stat(fa.path(rel))
	switch {
	case err != nil:
		fa.t.Errorf("expected file %s: %v", rel, err)
	case fi.IsDir():
		fa.t.Errorf("expected %s to be a file, found a directory", rel)
	}
	return fa
}

// AssertNoFile fails if rel exists.
func (fa *FileAssertions) AssertNoFile(rel string) *FileAssertions {
	fa.t.Helper()
	if _, err := os.Stat(fa.path(rel)); err == nil {
		fa.t.Errorf("expected %s not to exist", rel)
	}
	return fa
}

// AssertFileContains fails unless rel contains want.
func (fa *FileAssertions) AssertFileContains(rel, want string) *FileAssertions {
	fa.t.Helper()
	b, err := os.ReadFile(fa.path(rel))
	if err != nil {
		fa.t.Errorf("read %s: %v", rel, err)
		return fa
	}
	if !strings.Contains(string(b), want) {
		fa.t.Errorf("expected %s to contain %q\nactual content:\n%s", rel, want, b)
	}
	return fa
}

// AssertFileCount fails unless the directory rel holds exactly n regular files.
func (fa *FileAssertions) AssertFileCount(rel string, n int) *FileAssertions {
	fa.t.Helper()
	entries, err := os.ReadDir(fa.path(rel))
	if err != nil {
		fa.t.Errorf("read dir %s: %v", rel, err)
		return fa
	}
	files := 0
	for _, e := range entries {
		if !e.IsDir() {
			files++
		}
	}
	if files != n {
		fa.t.Errorf("expected %d files in %s, found %d", n, rel, files)
	}
	return fa
}
