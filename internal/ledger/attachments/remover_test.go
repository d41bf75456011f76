package attachments

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalRemoverRemovesFileBelowRoot(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "2024"), 0o755))
	file := filepath.Join(root, "2024", "client.pdf")
	require.NoError(t, os.WriteFile(file, []byte("pdf"), 0o600))

	r, err := NewLocalRemover(root)
	require.NoError(t, err)

	require.NoError(t, r.Remove(context.Background(), "2024/client.pdf"))
	_, err = os.Stat(file)
	assert.True(t, os.IsNotExist(err))
}

func TestLocalRemoverIgnoresMissingFile(t *testing.T) {
	r, err := NewLocalRemover(t.TempDir())
	require.NoError(t, err)
	assert.NoError(t, r.Remove(context.Background(), "gone.pdf"))
}

func TestLocalRemoverRejectsTraversal(t *testing.T) {
	root := t.TempDir()
	r, err := NewLocalRemover(root)
	require.NoError(t, err)

	for _, path := range []string{"../secret", "", "a/../../b", "/etc/passwd"} {
		err := r.Remove(context.Background(), path)
		assert.ErrorIs(t, err, ErrOutsideRoot, path)
	}
}

func TestLocalRemoverAcceptsAbsolutePathInsideRoot(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "x.png")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
	r, err := NewLocalRemover(root)
	require.NoError(t, err)

	require.NoError(t, r.Remove(context.Background(), file))
	_, err = os.Stat(file)
	assert.True(t, os.IsNotExist(err))
}

func TestNewLocalRemoverRequiresRoot(t *testing.T) {
	_, err := NewLocalRemover("  ")
	assert.Error(t, err)
}

func TestLocalRemoverExists(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "kept.pdf"), []byte("pdf"), 0o600))
	r, err := NewLocalRemover(root)
	require.NoError(t, err)

	ok, err := r.Exists("kept.pdf")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.Exists("gone.pdf")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = r.Exists("../outside.pdf")
	assert.ErrorIs(t, err, ErrOutsideRoot)
}
