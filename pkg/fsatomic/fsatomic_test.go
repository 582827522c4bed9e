package fsatomic

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafeRelPath(t *testing.T) {
	t.Run("accepts plain relative paths", func(t *testing.T) {
		got, err := SafeRelPath("a/b/c.json")
		require.NoError(t, err)
		assert.Equal(t, "a/b/c.json", got)
	})

	t.Run("rejects traversal", func(t *testing.T) {
		_, err := SafeRelPath("../escape.json")
		assert.ErrorIs(t, err, ErrUnsafePath)
	})

	t.Run("rejects absolute paths", func(t *testing.T) {
		_, err := SafeRelPath("/etc/passwd")
		assert.ErrorIs(t, err, ErrUnsafePath)
	})

	t.Run("rejects empty path", func(t *testing.T) {
		_, err := SafeRelPath("")
		assert.ErrorIs(t, err, ErrUnsafePath)
	})
}

func TestWriteBytesThenReadJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "doc.json")

	type doc struct {
		Name string `json:"name"`
	}
	require.NoError(t, WriteJSON(path, doc{Name: "alpha"}))

	var got doc
	require.NoError(t, ReadJSON(path, &got))
	assert.Equal(t, "alpha", got.Name)

	// no leftover .tmp sibling after a successful write
	assert.False(t, Exists(path+".tmp"))
}

func TestFileSHA256StableAcrossRewrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.bin")
	require.NoError(t, WriteBytes(path, []byte("hello")))
	sha1, err := FileSHA256(path)
	require.NoError(t, err)
	assert.Equal(t, BytesSHA256([]byte("hello")), sha1)

	require.NoError(t, WriteBytes(path, []byte("hello")))
	sha2, err := FileSHA256(path)
	require.NoError(t, err)
	assert.Equal(t, sha1, sha2)
}

func TestListReadyFilesSkipsTmpAndDotfiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteBytes(filepath.Join(dir, "b.msg.json"), []byte("{}")))
	require.NoError(t, WriteBytes(filepath.Join(dir, "a.msg.json"), []byte("{}")))
	require.NoError(t, WriteBytes(filepath.Join(dir, "c.msg.json.tmp"), []byte("{}")))
	require.NoError(t, WriteBytes(filepath.Join(dir, ".hidden.msg.json"), []byte("{}")))

	names, err := ListReadyFiles(dir, ".msg.json")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.msg.json", "b.msg.json"}, names)
}

func TestListReadyFilesMissingDir(t *testing.T) {
	names, err := ListReadyFiles(filepath.Join(t.TempDir(), "missing"), ".json")
	require.NoError(t, err)
	assert.Nil(t, names)
}

func TestJoinSafeRejectsTraversal(t *testing.T) {
	_, err := JoinSafe(t.TempDir(), "../outside")
	assert.Error(t, err)
}

func TestMoveAndCopy(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	require.NoError(t, WriteBytes(src, []byte("payload")))

	copied := filepath.Join(dir, "sub", "copied.txt")
	require.NoError(t, Copy(src, copied))
	data, err := os.ReadFile(copied)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	moved := filepath.Join(dir, "sub2", "moved.txt")
	require.NoError(t, Move(copied, moved))
	assert.False(t, Exists(copied))
	assert.True(t, Exists(moved))
}
