package archive_test

import (
	"archive/zip"
	"bytes"
	"io"
	"testing"

	"github.com/input-output-hk/catalyst-forge-libs/fs/billy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/catalyst-forge-libs/assets/internal/archive"
)

func writeTree(t *testing.T, fsys *billy.FS) {
	t.Helper()
	require.NoError(t, fsys.WriteFile("/src/b.txt", []byte("bee"), 0o644))
	require.NoError(t, fsys.WriteFile("/src/a.txt", []byte("ay"), 0o644))
	require.NoError(t, fsys.WriteFile("/src/sub/c.txt", []byte("sea"), 0o755))
}

func readZip(t *testing.T, fsys *billy.FS, path string) map[string]string {
	t.Helper()

	raw, err := fsys.ReadFile(path)
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	require.NoError(t, err)

	contents := make(map[string]string)
	for _, f := range zr.File {
		r, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(r)
		require.NoError(t, err)
		require.NoError(t, r.Close())
		contents[f.Name] = string(data)
	}
	return contents
}

func TestZipDirectory(t *testing.T) {
	t.Parallel()

	fsys := billy.NewInMemoryFS()
	writeTree(t, fsys)

	require.NoError(t, archive.ZipDirectory(fsys, "/src", "/out.zip", nil))

	assert.Equal(t, map[string]string{
		"a.txt":     "ay",
		"b.txt":     "bee",
		"sub/c.txt": "sea",
	}, readZip(t, fsys, "/out.zip"))
}

func TestZipDirectoryIsDeterministic(t *testing.T) {
	t.Parallel()

	fsys := billy.NewInMemoryFS()
	writeTree(t, fsys)

	require.NoError(t, archive.ZipDirectory(fsys, "/src", "/one.zip", nil))
	require.NoError(t, archive.ZipDirectory(fsys, "/src", "/two.zip", nil))

	one, err := fsys.ReadFile("/one.zip")
	require.NoError(t, err)
	two, err := fsys.ReadFile("/two.zip")
	require.NoError(t, err)

	assert.Equal(t, one, two)
}

func TestZipDirectoryMissingSource(t *testing.T) {
	t.Parallel()

	fsys := billy.NewInMemoryFS()
	err := archive.ZipDirectory(fsys, "/missing", "/out.zip", nil)
	assert.Error(t, err)
}

func TestIsArchivePath(t *testing.T) {
	t.Parallel()

	assert.True(t, archive.IsArchivePath("asset.zip"))
	assert.True(t, archive.IsArchivePath("ASSET.ZIP"))
	assert.False(t, archive.IsArchivePath("asset.tar.gz"))
	assert.False(t, archive.IsArchivePath("asset"))
}
