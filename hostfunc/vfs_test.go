package hostfunc

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestVFS(t *testing.T) *VFS {
	t.Helper()
	dir := t.TempDir()
	v, err := NewVFS(dir)
	if err != nil {
		t.Fatalf("NewVFS: %v", err)
	}
	return v
}

func TestWriteThenReadFile(t *testing.T) {
	v := newTestVFS(t)

	if err := v.WriteFile("/greeting.txt", []byte("hello")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got, err := v.ReadFileText("/greeting.txt")
	if err != nil {
		t.Fatalf("ReadFileText: %v", err)
	}
	if got != "hello" {
		t.Fatalf("ReadFileText = %q, want %q", got, "hello")
	}
}

func TestReadFileTextStripsBOM(t *testing.T) {
	v := newTestVFS(t)
	bom := []byte{0xEF, 0xBB, 0xBF}
	if err := v.WriteFile("/bom.txt", append(bom, []byte("data")...)); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got, err := v.ReadFileText("/bom.txt")
	if err != nil {
		t.Fatalf("ReadFileText: %v", err)
	}
	if got != "data" {
		t.Fatalf("ReadFileText = %q, want %q", got, "data")
	}
}

func TestReadFileWithUnknownEncodingLabelErrors(t *testing.T) {
	v := newTestVFS(t)
	if err := v.WriteFile("/f.txt", []byte("x")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := v.ReadFileWithEncoding("/f.txt", "not-a-real-label"); err == nil {
		t.Fatalf("expected error for unknown encoding label")
	}
}

func TestWriteFileWithEncodingRejectsNonUTF8(t *testing.T) {
	v := newTestVFS(t)
	if err := v.WriteFileWithEncoding("/f.txt", "latin1", "x"); err == nil {
		t.Fatalf("expected error for non-utf8 write label")
	}
	if err := v.WriteFileWithEncoding("/f.txt", "utf8", "ok"); err != nil {
		t.Fatalf("WriteFileWithEncoding(utf8): %v", err)
	}
}

func TestRelativePathResolvesAgainstCwd(t *testing.T) {
	v := newTestVFS(t)
	if err := os.MkdirAll(filepath.Join(v.Root(), "sub"), 0o755); err != nil {
		t.Fatalf("mkdir sub: %v", err)
	}
	if err := v.WriteFile("/sub/inner.txt", []byte("v")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := v.SetCwd("/sub"); err != nil {
		t.Fatalf("SetCwd: %v", err)
	}
	got, err := v.ReadFileText("inner.txt")
	if err != nil {
		t.Fatalf("ReadFileText relative: %v", err)
	}
	if got != "v" {
		t.Fatalf("ReadFileText = %q, want %q", got, "v")
	}
}

func TestPathEscapeIsRejected(t *testing.T) {
	v := newTestVFS(t)
	if _, err := v.ReadFile("/../../etc/passwd"); err == nil {
		t.Fatalf("expected escape to be rejected")
	}
}

func TestListFilesOnMissingDirIsNotFound(t *testing.T) {
	v := newTestVFS(t)
	if _, err := v.ListFiles("/does-not-exist"); err == nil {
		t.Fatalf("expected error for missing directory")
	}
}

func TestListFilesReturnsEntries(t *testing.T) {
	v := newTestVFS(t)
	if err := v.WriteFile("/a.txt", []byte("1")); err != nil {
		t.Fatalf("WriteFile a: %v", err)
	}
	if err := v.WriteFile("/b.txt", []byte("22")); err != nil {
		t.Fatalf("WriteFile b: %v", err)
	}
	entries, err := v.ListFiles("/")
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
}
