package hostfunc

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/htmlindex"
)

// VFS is the jailed, single-rooted filesystem a Session exposes to its
// interpreter: every path a snippet sees is either data-root-relative
// (leading "/") or resolved against the session's mutable working
// directory. Unlike FS there are no mount tables or modes — a VFS has
// exactly one writable root, mirroring the data_root spec.md describes.
type VFS struct {
	root        string
	cwd         string // slash-form, relative to root, e.g. "/" or "/sub"
	maxFileSize int64
	maxWriteLen int64
	maxPathLen  int
}

// VFSOption configures a VFS at construction time.
type VFSOption func(*VFS)

func WithVFSMaxFileSize(n int64) VFSOption  { return func(v *VFS) { v.maxFileSize = n } }
func WithVFSMaxWriteSize(n int64) VFSOption { return func(v *VFS) { v.maxWriteLen = n } }
func WithVFSMaxPathLength(n int) VFSOption  { return func(v *VFS) { v.maxPathLen = n } }

// NewVFS roots a VFS at the given host directory, which must already
// exist. The working directory starts at the root.
func NewVFS(hostRoot string, opts ...VFSOption) (*VFS, error) {
	abs, err := filepath.Abs(hostRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve data root: %w", err)
	}
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		abs = real
	}
	v := &VFS{
		root:        abs,
		cwd:         "/",
		maxFileSize: DefaultMaxFileSize,
		maxWriteLen: DefaultMaxWriteSize,
		maxPathLen:  DefaultMaxPathLength,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Root returns the host directory this VFS is jailed to.
func (v *VFS) Root() string { return v.root }

// Cwd returns the current working directory in slash form.
func (v *VFS) Cwd() string { return v.cwd }

// SetCwd changes the working directory. path follows the same resolution
// rules as any other VFS path; it need not exist yet.
func (v *VFS) SetCwd(path string) error {
	_, vp, err := v.resolve(path)
	if err != nil {
		return err
	}
	v.cwd = vp
	return nil
}

func newNotFound(path string) error {
	return fmt.Errorf("not found: %s", path)
}

// resolve maps a virtual path to (hostPath, virtualPath) applying
// spec.md's rule: a leading "/" is data-root-relative, anything else is
// resolved against the session's cwd. It then rejects any resolution
// that would escape the root, including via symlinks.
func (v *VFS) resolve(path string) (hostPath string, virtualPath string, err error) {
	if len(path) > v.maxPathLen {
		return "", "", errors.New("path too long")
	}
	if path == "" {
		return "", "", errors.New("empty path")
	}

	var vp string
	if strings.HasPrefix(path, "/") {
		vp = filepath.Clean(path)
	} else {
		vp = filepath.Clean(filepath.Join(v.cwd, path))
	}
	vp = "/" + strings.TrimPrefix(vp, "/")

	rel := strings.TrimPrefix(vp, "/")
	hp, err := filepath.Abs(filepath.Join(v.root, rel))
	if err != nil {
		return "", "", errors.New("invalid path")
	}
	if hp != v.root && !strings.HasPrefix(hp, v.root+string(filepath.Separator)) {
		return "", "", errors.New("path escapes data root")
	}

	resolved, err := checkSymlinkEscape(hp, v.root)
	if err != nil {
		return "", "", err
	}
	return resolved, vp, nil
}

// ReadFile reads a file as raw bytes, enforcing the file-size cap.
func (v *VFS) ReadFile(path string) ([]byte, error) {
	hostPath, _, err := v.resolve(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(hostPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, newNotFound(path)
		}
		return nil, err
	}
	if info.IsDir() {
		return nil, errors.New("is a directory: " + path)
	}
	if info.Size() > v.maxFileSize {
		return nil, errors.New("file too large: " + path)
	}
	return os.ReadFile(hostPath)
}

// ReadFileText reads a file and decodes it as UTF-8, stripping a leading
// BOM if present. This is the default read_file text path.
func (v *VFS) ReadFileText(path string) (string, error) {
	data, err := v.ReadFile(path)
	if err != nil {
		return "", err
	}
	return stripBOM(data), nil
}

// ReadFileWithEncoding decodes a file using the named IANA label (per
// golang.org/x/text/encoding/htmlindex), stripping a BOM when the target
// encoding is a UTF variant. An unrecognized label is an in-band error,
// matching the snippet-visible failure spec.md requires rather than a
// host-internal one.
func (v *VFS) ReadFileWithEncoding(path, label string) (string, error) {
	data, err := v.ReadFile(path)
	if err != nil {
		return "", err
	}

	enc, err := htmlindex.Get(label)
	if err != nil {
		return "", fmt.Errorf("unknown encoding label: %s", label)
	}
	decoded, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("decode with %s: %w", label, err)
	}
	return stripBOM(decoded), nil
}

func stripBOM(data []byte) string {
	if bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}) {
		data = data[3:]
	}
	if !utf8.Valid(data) {
		return string(bytes.ToValidUTF8(data, []byte("�")))
	}
	return string(data)
}

// WriteFile writes raw bytes to path, creating the file and any parent
// directories if needed, and enforces the write-size cap.
func (v *VFS) WriteFile(path string, content []byte) error {
	if int64(len(content)) > v.maxWriteLen {
		return errors.New("content too large")
	}
	hostPath, _, err := v.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(hostPath), 0o755); err != nil {
		return fmt.Errorf("mkdir parents: %w", err)
	}
	return os.WriteFile(hostPath, content, 0o644)
}

// WriteFileWithEncoding writes text to path under the given label. Only
// "utf8" is accepted; any other label is an in-band error, matching
// spec.md's write_file_with_encoding restriction.
func (v *VFS) WriteFileWithEncoding(path, label, text string) error {
	if label != "utf8" {
		return fmt.Errorf("unsupported write encoding: %s", label)
	}
	return v.WriteFile(path, []byte(text))
}

// Upload materializes a host-provided file into the data root before any
// run call, independent of the interpreter-visible read/write surface.
func (v *VFS) Upload(name string, content []byte) error {
	return v.WriteFile(name, content)
}

// Download reads a file back out for the host side (the external
// interface's download boundary op), with no size cap beyond the normal
// read cap.
func (v *VFS) Download(name string) ([]byte, error) {
	return v.ReadFile(name)
}

// FileEntry describes one entry returned by ListFiles.
type FileEntry struct {
	Name  string
	Size  int64
	IsDir bool
}

// ListFiles lists the direct children of path, files and directories
// alike, one level deep.
func (v *VFS) ListFiles(path string) ([]FileEntry, error) {
	hostPath, _, err := v.resolve(path)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(hostPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, newNotFound(path)
		}
		return nil, err
	}
	out := make([]FileEntry, 0, len(entries))
	for _, e := range entries {
		info, _ := e.Info()
		var size int64
		if info != nil {
			size = info.Size()
		}
		out = append(out, FileEntry{Name: e.Name(), Size: size, IsDir: e.IsDir()})
	}
	return out, nil
}
