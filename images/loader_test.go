package images

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDirectoryOrdering(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"frame-10.jpg", "b.png", "frame-2.webp", "a.jpeg", "notes.txt", "frame-x.jpg"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(name), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.jpg"), 0o755))

	files, err := LoadDirectory(dir)
	require.NoError(t, err)

	var names []string
	for _, f := range files {
		names = append(names, filepath.Base(f.Path))
	}
	assert.Equal(t, []string{"frame-2.webp", "frame-10.jpg", "a.jpeg", "b.png", "frame-x.jpg"}, names)
	assert.Equal(t, 2, files[0].Frame)
	assert.Equal(t, -1, files[2].Frame)
	assert.Equal(t, []byte("frame-2.webp"), files[0].Data)
}

func TestLoadDirectoryMissing(t *testing.T) {
	_, err := LoadDirectory(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestIsImageFile(t *testing.T) {
	assert.True(t, IsImageFile("x.JPG"))
	assert.True(t, IsImageFile("x.webp"))
	assert.False(t, IsImageFile("x.gif"))
	assert.False(t, IsImageFile("x"))
}
