package remote

import (
	"context"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

// TestFSStore_Lifecycle exercises store, list, retrieve, rename and delete on an in-memory fs.
func TestFSStore_Lifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fsys := afero.NewMemMapFs()

	store, err := NewFSStore(fsys, "/srv/firmware")
	require.NoError(t, err)

	defer func() {
		require.NoError(t, store.Close())
	}()

	require.NoError(t, store.Store(ctx, "b.npk.part", strings.NewReader("bbb")))
	require.NoError(t, store.Store(ctx, "a.npk", strings.NewReader("aaa")))
	require.NoError(t, fsys.Mkdir("/srv/firmware/subdir", 0o755))

	names, err := store.List(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"a.npk", "b.npk.part"}, names)

	require.NoError(t, store.Rename(ctx, "b.npk.part", "b.npk"))

	data, err := store.Retrieve(ctx, "b.npk")
	require.NoError(t, err)
	require.Equal(t, "bbb", string(data))

	require.NoError(t, store.Delete(ctx, "a.npk"))

	exists, err := afero.Exists(fsys, "/srv/firmware/a.npk")
	require.NoError(t, err)
	require.False(t, exists)
}

// TestFSStore_NotFound verifies missing objects map to ErrNotFound.
func TestFSStore_NotFound(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	store, err := NewFSStore(afero.NewMemMapFs(), "/srv")
	require.NoError(t, err)

	_, err = store.Retrieve(ctx, "version")
	require.ErrorIs(t, err, ErrNotFound)

	require.ErrorIs(t, store.Delete(ctx, "version"), ErrNotFound)
	require.ErrorIs(t, store.Rename(ctx, "x.part", "x"), ErrNotFound)
}

// TestFSStore_NamesStayInRoot checks that path components in names cannot escape the root.
func TestFSStore_NamesStayInRoot(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fsys := afero.NewMemMapFs()

	store, err := NewFSStore(fsys, "/srv/firmware")
	require.NoError(t, err)

	require.NoError(t, store.Store(ctx, "../../etc/passwd", strings.NewReader("x")))

	exists, err := afero.Exists(fsys, "/srv/firmware/passwd")
	require.NoError(t, err)
	require.True(t, exists)

	exists, err = afero.Exists(fsys, "/etc/passwd")
	require.NoError(t, err)
	require.False(t, exists)
}
