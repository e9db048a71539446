package installer

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/rfdeck/appos/internal/logging"
	"github.com/rfdeck/appos/internal/shared/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeZipPackage(t *testing.T, dir string, files map[string]string) string {
	t.Helper()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	path := filepath.Join(dir, "pkg.zip")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func writeTarGzPackage(t *testing.T, dir string, files map[string]string) string {
	t.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, content := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name: name,
			Mode: 0o644,
			Size: int64(len(content)),
		}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())

	path := filepath.Join(dir, "pkg.tar.gz")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

const testManifest = `{
  "name": "Scanner",
  "version": "1.0.0",
  "author": "dev",
  "entry_point": "index.js",
  "permissions": "rf.receive, ui.create"
}`

func TestExtractZip(t *testing.T) {
	dir := t.TempDir()
	pkg := writeZipPackage(t, dir, map[string]string{
		"index.js":      "var x = 1;",
		"manifest.json": testManifest,
	})

	dest := filepath.Join(dir, "installed")
	inst := New(logging.NewNop())
	require.NoError(t, inst.Extract(pkg, dest))

	assert.FileExists(t, filepath.Join(dest, "index.js"))
	assert.FileExists(t, filepath.Join(dest, ManifestFile))
}

func TestExtractTarGz(t *testing.T) {
	dir := t.TempDir()
	pkg := writeTarGzPackage(t, dir, map[string]string{
		"index.js":      "var x = 1;",
		"manifest.json": testManifest,
	})

	dest := filepath.Join(dir, "installed")
	inst := New(logging.NewNop())
	require.NoError(t, inst.Extract(pkg, dest))

	assert.FileExists(t, filepath.Join(dest, "index.js"))
}

func TestExtractBareScript(t *testing.T) {
	dir := t.TempDir()
	pkg := filepath.Join(dir, "app.js")
	require.NoError(t, os.WriteFile(pkg, []byte("var x = 1;"), 0o644))

	dest := filepath.Join(dir, "installed")
	inst := New(logging.NewNop())
	require.NoError(t, inst.Extract(pkg, dest))

	assert.FileExists(t, filepath.Join(dest, "index.js"))

	// Bare scripts get the default manifest.
	m, err := LoadManifest(filepath.Join(dest, ManifestFile))
	require.NoError(t, err)
	assert.Equal(t, "index.js", m.EntryPoint)
	require.NoError(t, m.Validate())
}

func TestExtractMissingPackage(t *testing.T) {
	dir := t.TempDir()
	inst := New(logging.NewNop())

	err := inst.Extract(filepath.Join(dir, "nope.zip"), filepath.Join(dir, "out"))
	assert.True(t, errors.Is(err, errs.ErrNotFound))
}

func TestExtractRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	pkg := writeZipPackage(t, dir, map[string]string{
		"../escape.js": "var x = 1;",
	})

	dest := filepath.Join(dir, "installed")
	inst := New(logging.NewNop())
	assert.Error(t, inst.Extract(pkg, dest))
	assert.NoDirExists(t, dest)
}

func TestManifestValidate(t *testing.T) {
	m := &Manifest{Name: "A", Version: "1.0", EntryPoint: "index.js"}
	assert.NoError(t, m.Validate())

	for _, broken := range []*Manifest{
		{Version: "1.0", EntryPoint: "index.js"},
		{Name: "A", EntryPoint: "index.js"},
		{Name: "A", Version: "1.0"},
	} {
		err := broken.Validate()
		assert.True(t, errors.Is(err, errs.ErrInvalidArgument))
	}
}

func TestCopyDirAndSize(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.js"), []byte("aaaa"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "sub", "b.js"), []byte("bb"), 0o644))

	dst := filepath.Join(t.TempDir(), "copy")
	require.NoError(t, CopyDir(src, dst))
	assert.FileExists(t, filepath.Join(dst, "a.js"))
	assert.FileExists(t, filepath.Join(dst, "sub", "b.js"))

	size, err := DirSize(dst)
	require.NoError(t, err)
	assert.Equal(t, int64(6), size)
}
