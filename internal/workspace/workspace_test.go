package workspace

import (
	"archive/tar"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestManager_PrepareCleanup(t *testing.T) {
	root := t.TempDir()
	m, err := New(root)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	dir, err := m.Prepare("b1")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	writeFile(t, filepath.Join(dir, "a.txt"), "a")

	// повторный Prepare очищает каталог
	dir, err = m.Prepare("b1")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "a.txt")); !os.IsNotExist(err) {
		t.Error("expected clean workspace")
	}

	if err := m.Cleanup(dir); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("expected workspace removed")
	}

	if err := m.Cleanup(t.TempDir()); err == nil {
		t.Error("expected refusal outside root")
	}
	if _, err := m.Prepare("../escape"); err == nil {
		t.Error("expected invalid id error")
	}
}

func TestDirSize(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "12345")
	writeFile(t, filepath.Join(dir, "sub", "b.txt"), "123")

	size, err := DirSize(dir)
	if err != nil {
		t.Fatalf("DirSize: %v", err)
	}
	if size != 8 {
		t.Errorf("DirSize() = %d, want 8", size)
	}
}

func TestArchive_ExcludesArchiveAndGit(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "index.js"), "console.log(1)")
	writeFile(t, filepath.Join(src, "lib", "util.js"), "x")
	writeFile(t, filepath.Join(src, ArchiveName), "stale")
	writeFile(t, filepath.Join(src, ".git", "HEAD"), "ref")

	dst := filepath.Join(t.TempDir(), ArchiveName)
	if err := Archive(src, dst); err != nil {
		t.Fatalf("Archive: %v", err)
	}

	f, err := os.Open(dst)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		t.Fatal(err)
	}
	tr := tar.NewReader(gz)

	var names []string
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		names = append(names, hdr.Name)
	}

	for _, want := range []string{"index.js", "lib", "lib/util.js"} {
		if !slices.Contains(names, want) {
			t.Errorf("archive missing %s: %v", want, names)
		}
	}
	for _, unwanted := range []string{ArchiveName, ".git", ".git/HEAD"} {
		if slices.Contains(names, unwanted) {
			t.Errorf("archive contains %s", unwanted)
		}
	}
}

func TestCopyMissing(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	writeFile(t, filepath.Join(src, "index.js"), "template")
	writeFile(t, filepath.Join(src, "package.json"), "{}")
	writeFile(t, filepath.Join(dst, "index.js"), "user code")

	if err := CopyMissing(src, dst); err != nil {
		t.Fatalf("CopyMissing: %v", err)
	}

	data, _ := os.ReadFile(filepath.Join(dst, "index.js"))
	if string(data) != "user code" {
		t.Errorf("existing file overwritten: %q", data)
	}
	if _, err := os.Stat(filepath.Join(dst, "package.json")); err != nil {
		t.Errorf("missing copied file: %v", err)
	}
}
