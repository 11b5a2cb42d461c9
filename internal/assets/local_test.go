package assets

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"survey-engine/internal/model"
)

func TestLocalStoreRoundTrip(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	store, err := NewLocalStore(root)
	require.NoError(t, err)
	ctx := context.Background()

	data := []byte("%PDF-1.4\nbody")
	ref, err := store.UploadBinary(ctx, "tenant-1", data)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(ref, "tenant-1/"))
	require.True(t, strings.HasSuffix(ref, ".pdf"))

	reader, err := store.Open(ref)
	require.NoError(t, err)
	content, err := io.ReadAll(reader)
	require.NoError(t, err)
	require.NoError(t, reader.Close())
	require.Equal(t, data, content)

	require.NoError(t, store.DeleteBinary(ctx, ref))
	_, err = os.Stat(filepath.Join(root, filepath.FromSlash(ref)))
	require.True(t, os.IsNotExist(err))

	// Deleting twice is harmless.
	require.NoError(t, store.DeleteBinary(ctx, ref))
}

func TestLocalStoreRejectsEscapingRefs(t *testing.T) {
	t.Parallel()

	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	err = store.DeleteBinary(context.Background(), "../outside.txt")
	require.ErrorIs(t, err, model.ErrValidation)

	_, err = store.Open("/etc/passwd")
	require.ErrorIs(t, err, model.ErrValidation)
}

func TestLocalStoreHonoursCancellation(t *testing.T) {
	t.Parallel()

	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = store.UploadBinary(ctx, "tenant-1", []byte("x"))
	require.ErrorIs(t, err, context.Canceled)
}

func TestNewLocalStoreRequiresRoot(t *testing.T) {
	t.Parallel()

	_, err := NewLocalStore("  ")
	require.Error(t, err)
}
