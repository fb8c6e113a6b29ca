package remote

import (
	"context"
	"errors"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var errTestNetwork = errors.New("connection reset")

// TestClassifyFTP checks how FTP replies map onto store sentinels.
func TestClassifyFTP(t *testing.T) {
	t.Parallel()

	notFound := classifyFTP(&textproto.Error{Code: 550, Msg: "No such file"})
	require.ErrorIs(t, notFound, ErrNotFound)
	require.NotErrorIs(t, notFound, ErrPermission)

	denied := classifyFTP(&textproto.Error{Code: 553, Msg: "Not allowed"})
	require.ErrorIs(t, denied, ErrPermission)

	transient := classifyFTP(&textproto.Error{Code: 450, Msg: "Busy"})
	require.NotErrorIs(t, transient, ErrNotFound)
	require.NotErrorIs(t, transient, ErrPermission)

	require.Equal(t, errTestNetwork, classifyFTP(errTestNetwork))
}

// TestOpen_RejectsUnknownScheme ensures only ftp and file targets are accepted.
func TestOpen_RejectsUnknownScheme(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), Target{URL: "sftp://example.com/fw"})
	require.ErrorIs(t, err, errUnsupportedScheme)
}

// TestOpen_FileTarget opens a local directory store.
func TestOpen_FileTarget(t *testing.T) {
	t.Parallel()

	store, err := Open(context.Background(), Target{URL: "file://" + t.TempDir()})
	require.NoError(t, err)
	require.IsType(t, &FSStore{}, store)
	require.NoError(t, store.Close())
}

func dialTestServer(t *testing.T, server *ftpServer, username, password string) *FTPStore {
	t.Helper()

	store, err := DialFTP(context.Background(), server.url(), username, password, 5*time.Second)
	require.NoError(t, err)

	return store
}

// TestFTPStore_Operations walks every store operation against an in-memory FTP server.
func TestFTPStore_Operations(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	server := newFTPServer(t, "/routeros", map[string]string{
		"version": "7.14.1",
		"old.npk": "old",
	}, func(s *ftpServer) {
		s.qualifyNames = true
	})

	store := dialTestServer(t, server, "mirror", "secret")

	names, err := store.List(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"old.npk", "version"}, names, "directory prefixes are trimmed")

	marker, err := store.Retrieve(ctx, "version")
	require.NoError(t, err)
	require.Equal(t, "7.14.1", string(marker))

	require.NoError(t, store.Store(ctx, "a.npk.part", strings.NewReader("new package")))
	require.NoError(t, store.Rename(ctx, "a.npk.part", "a.npk"))
	require.NoError(t, store.Delete(ctx, "old.npk"))

	data, err := store.Retrieve(ctx, "a.npk")
	require.NoError(t, err)
	require.Equal(t, "new package", string(data))

	require.NoError(t, store.Close())

	_, ok := server.file("old.npk")
	require.False(t, ok)

	contents, ok := server.file("a.npk")
	require.True(t, ok)
	require.Equal(t, "new package", contents)

	received := server.received()
	require.Contains(t, received, "USER mirror")
	require.Contains(t, received, "CWD /routeros")
	require.Contains(t, received, "TYPE I")
}

// TestFTPStore_MissingFiles maps 550 replies to ErrNotFound and keeps the session usable.
func TestFTPStore_MissingFiles(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	server := newFTPServer(t, "/routeros", map[string]string{"a.npk": "a"})
	store := dialTestServer(t, server, "", "")

	defer func() {
		_ = store.Close()
	}()

	_, err := store.Retrieve(ctx, "version")
	require.ErrorIs(t, err, ErrNotFound)

	err = store.Delete(ctx, "version")
	require.ErrorIs(t, err, ErrNotFound)

	err = store.Rename(ctx, "missing.npk", "b.npk")
	require.ErrorIs(t, err, ErrNotFound)

	names, err := store.List(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"a.npk"}, names)

	require.Contains(t, server.received(), "USER anonymous")
}

// TestDialFTP_Refusals covers rejected logins and missing target directories.
func TestDialFTP_Refusals(t *testing.T) {
	t.Parallel()

	t.Run("bad password", func(t *testing.T) {
		t.Parallel()

		server := newFTPServer(t, "/routeros", nil, func(s *ftpServer) {
			s.badPassword = "wrong"
		})

		_, err := DialFTP(context.Background(), server.url(), "mirror", "wrong", 5*time.Second)
		require.ErrorIs(t, err, ErrPermission)
	})

	t.Run("missing directory", func(t *testing.T) {
		t.Parallel()

		server := newFTPServer(t, "/routeros", nil)
		target := server.url()
		target.Path = "/elsewhere"

		_, err := DialFTP(context.Background(), target, "mirror", "secret", 5*time.Second)
		require.ErrorIs(t, err, ErrNotFound)
	})
}
