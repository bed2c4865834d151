// Package ipc locates the Unix socket a clipshare daemon serves on.
//
// The daemon listens on the socket; every other clipshare process (the copy,
// paste and formats tools, the host bridge) dials it to reach the arbiter.
// Clipboard state is per login session, so the socket lives in the user's
// runtime directory rather than somewhere shared.
package ipc

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"time"
)

// EnvSocket overrides the socket path.
const EnvSocket = "CLIPSHARE_SOCKET"

const socketName = "clipshare.sock"

// SocketPath returns the path of the daemon socket.
//
//   - $CLIPSHARE_SOCKET when set
//   - $XDG_RUNTIME_DIR/clipshare.sock on systems that provide it
//   - $TMPDIR/clipshare-<uid>.sock otherwise
func SocketPath() string {
	if s := os.Getenv(EnvSocket); s != "" {
		return s
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, socketName)
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("clipshare-%d.sock", os.Getuid()))
}

// Target returns the gRPC dial target for path.
func Target(path string) string {
	return "unix://" + path
}

// IsRunning reports whether a daemon appears to be listening on path. It
// does a cheap dial-and-close; no data is exchanged.
func IsRunning(path string) bool {
	c, err := net.DialTimeout("unix", path, time.Second)
	if err != nil {
		return false
	}
	_ = c.Close()
	return true
}

// ErrInUse is returned by Listen when another daemon already serves path.
var ErrInUse = errors.New("ipc: socket in use")

// Listen creates a listener on path, removing a stale socket left by a
// crashed daemon. The socket is made accessible to its owner only.
func Listen(path string) (net.Listener, error) {
	if IsRunning(path) {
		return nil, fmt.Errorf("%w: %s", ErrInUse, path)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(path, 0o600); err != nil {
		_ = ln.Close()
		return nil, err
	}
	return ln, nil
}
