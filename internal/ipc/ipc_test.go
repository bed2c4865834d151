package ipc

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSocketPathPrecedence(t *testing.T) {
	t.Setenv(EnvSocket, "/custom/cs.sock")
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
	assert.Equal(t, "/custom/cs.sock", SocketPath())

	t.Setenv(EnvSocket, "")
	assert.Equal(t, "/run/user/1000/clipshare.sock", SocketPath())

	t.Setenv("XDG_RUNTIME_DIR", "")
	assert.Equal(t, os.TempDir(), filepath.Dir(SocketPath()))
	assert.Contains(t, SocketPath(), "clipshare-")
}

func TestListenReplacesStaleSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cs.sock")
	require.NoError(t, os.WriteFile(path, nil, 0o600))
	assert.False(t, IsRunning(path))

	ln, err := Listen(path)
	require.NoError(t, err)
	defer ln.Close()
	assert.True(t, IsRunning(path))

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), fi.Mode().Perm())

	_, err = Listen(path)
	assert.ErrorIs(t, err, ErrInUse)
}

func TestTarget(t *testing.T) {
	assert.Equal(t, "unix:///tmp/x.sock", Target("/tmp/x.sock"))
}
