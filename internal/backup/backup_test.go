package backup

import (
	"archive/tar"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ulikunitz/xz"
)

func readBundle(t *testing.T, path string) map[string]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open bundle: %v", err)
	}
	defer f.Close()

	xr, err := xz.NewReader(f)
	if err != nil {
		t.Fatalf("xz reader: %v", err)
	}
	tr := tar.NewReader(xr)

	entries := make(map[string]string)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("tar next: %v", err)
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			t.Fatalf("tar read: %v", err)
		}
		entries[header.Name] = string(data)
	}
	return entries
}

func TestCreate(t *testing.T) {
	dir := t.TempDir()
	workspace := filepath.Join(dir, ".docprep")

	// Relative targets, as configuration names them.
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(wd)
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}

	targets := []string{
		filepath.Join("templates", "a", "template.docx"),
		filepath.Join("templates", "b", "template.docx"),
	}
	for i, target := range targets {
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(target, []byte{byte('a' + i)}, 0644); err != nil {
			t.Fatal(err)
		}
	}

	path, err := Create(workspace, targets)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	base := filepath.Base(path)
	if !strings.HasPrefix(base, "style-") || !strings.HasSuffix(base, ".tar.xz") {
		t.Errorf("bundle name = %s", base)
	}
	if filepath.Dir(path) != filepath.Join(workspace, "backups") {
		t.Errorf("bundle dir = %s", filepath.Dir(path))
	}

	entries := readBundle(t, path)
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if got := entries["templates/a/template.docx"]; got != "a" {
		t.Errorf("entry a = %q", got)
	}
	if got := entries["templates/b/template.docx"]; got != "b" {
		t.Errorf("entry b = %q", got)
	}
}

func TestCreateSkipsMissingTargets(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "template.docx")
	if err := os.WriteFile(existing, []byte("bytes"), 0644); err != nil {
		t.Fatal(err)
	}

	path, err := Create(filepath.Join(dir, "ws"), []string{
		existing,
		filepath.Join(dir, "absent.docx"),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	entries := readBundle(t, path)
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
}

func TestCreateEmptyBundle(t *testing.T) {
	dir := t.TempDir()
	path, err := Create(filepath.Join(dir, "ws"), nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if entries := readBundle(t, path); len(entries) != 0 {
		t.Errorf("entries = %d, want 0", len(entries))
	}
}
