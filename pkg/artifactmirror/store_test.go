package artifactmirror

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreStoreAndGetRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	hash, err := store.Store(context.Background(), []byte("hello world"))
	require.NoError(t, err)
	assert.Regexp(t, `^sha256:[0-9a-f]{64}$`, hash)

	got, err := store.Get(context.Background(), hash)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello world"), got)
}

func TestFileStoreStoreIsContentAddressedDedup(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	h1, err := store.Store(context.Background(), []byte("same bytes"))
	require.NoError(t, err)
	h2, err := store.Store(context.Background(), []byte("same bytes"))
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestFileStoreExists(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	hash, err := store.Store(context.Background(), []byte("data"))
	require.NoError(t, err)

	ok, err := store.Exists(context.Background(), hash)
	require.NoError(t, err)
	assert.True(t, ok)

	missing, err := store.Exists(context.Background(), "sha256:"+"00000000000000000000000000000000000000000000000000000000000000"[:64])
	require.NoError(t, err)
	assert.False(t, missing)
}

func TestFileStoreGetMissingIsError(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Get(context.Background(), "sha256:"+"11111111111111111111111111111111111111111111111111111111111111"[:64])
	assert.Error(t, err)
}

func TestFileStoreDeleteRemovesBlob(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	hash, err := store.Store(context.Background(), []byte("to be deleted"))
	require.NoError(t, err)

	require.NoError(t, store.Delete(context.Background(), hash))
	ok, err := store.Exists(context.Background(), hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileStoreDeleteMissingIsNotAnError(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	assert.NoError(t, store.Delete(context.Background(), "sha256:"+"22222222222222222222222222222222222222222222222222222222222222"[:64]))
}

func TestRawHexOfRejectsBadFormat(t *testing.T) {
	_, err := rawHexOf("not-a-valid-hash")
	assert.Error(t, err)
}

func TestNewFileStoreCreatesBaseDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "mirror")
	_, err := NewFileStore(dir)
	require.NoError(t, err)
	assert.DirExists(t, dir)
}
