package files

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateDetectsContentType(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes")
	require.NoError(t, os.WriteFile(path, []byte("plain words, no extension\n"), 0o644))

	info, err := Validate(path)
	require.NoError(t, err)
	assert.Equal(t, "notes", info.Name)
	assert.Equal(t, int64(26), info.Size)
	assert.True(t, strings.HasPrefix(info.Type, "text/plain"), info.Type)
	assert.True(t, filepath.IsAbs(info.Path))
}

func TestValidateAllowsEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.bin")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	info, err := Validate(path)
	require.NoError(t, err)
	assert.Zero(t, info.Size)
}

func TestValidateRejects(t *testing.T) {
	dir := t.TempDir()

	_, err := Validate("")
	assert.Error(t, err)

	_, err = Validate(filepath.Join(dir, "missing.txt"))
	assert.ErrorContains(t, err, "does not exist")

	_, err = Validate(dir)
	assert.ErrorContains(t, err, "is a directory")
}

func TestOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	info, err := Validate(path)
	require.NoError(t, err)

	src, closer, err := info.Open()
	require.NoError(t, err)
	defer closer.Close()

	assert.Equal(t, "data.txt", src.Name)
	assert.Equal(t, int64(5), src.Size)
	data, err := io.ReadAll(src.Reader)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}
