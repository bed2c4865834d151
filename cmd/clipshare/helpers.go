package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	"google.golang.org/grpc"

	"go.klb.dev/clipshare/internal/arbiter"
	"go.klb.dev/clipshare/internal/format"
	"go.klb.dev/clipshare/internal/ipc"
	"go.klb.dev/clipshare/internal/rpc"
	"go.klb.dev/clipshare/internal/session"
	"go.klb.dev/clipshare/internal/tlsconf"
	"go.klb.dev/clipshare/internal/window"
)

// dialDaemon connects to the daemon named by the remote or socket flag.
func dialDaemon(v *viper.Viper) (*rpc.Client, error) {
	token := v.GetString("token")
	if remote := v.GetString("remote"); remote != "" {
		creds, err := tlsconf.ClientCredentials(token)
		if err != nil {
			return nil, fmt.Errorf("--remote requires --token: %w", err)
		}
		return rpc.Dial("dns:///"+remote, token, grpc.WithTransportCredentials(creds))
	}
	path := v.GetString("socket")
	if !ipc.IsRunning(path) {
		return nil, fmt.Errorf("no clipshare daemon on %s (start one with \"clipshare serve\")", path)
	}
	return rpc.Dial(ipc.Target(path), token)
}

// client is a session on an attached window of a remote daemon.
type client struct {
	conn *rpc.Client
	win  *rpc.Window
	sess *session.Session
}

// attachSession dials the daemon, attaches a window served by handler and
// opens a session on it.
func attachSession(ctx context.Context, v *viper.Viper, handler window.Handler) (*client, error) {
	opts, err := sessionOptions(v)
	if err != nil {
		return nil, err
	}
	conn, err := dialDaemon(v)
	if err != nil {
		return nil, err
	}
	if handler == nil {
		handler = func(context.Context, window.Message) {}
	}
	w, err := conn.Attach(ctx, handler)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("attach: %w", err)
	}
	return &client{conn: conn, win: w, sess: session.New(conn, conn, w.Handle(), opts...)}, nil
}

func (c *client) Close() {
	_ = c.win.Close()
	_ = c.conn.Close()
}

// resolveFormat maps a command-line format name to an id: "text" and
// "unicode" for the text formats, built-in names ("CF_DIB"), numbers
// ("0x000d", "13"), or any other name registered as a custom format.
func resolveFormat(ctx context.Context, arb arbiter.Arbiter, name string) (format.ID, error) {
	switch strings.ToLower(name) {
	case "", "text", "unicode":
		return format.UnicodeText, nil
	case "ansi":
		return format.Text, nil
	}
	if id, ok := format.Lookup(strings.ToUpper(name)); ok {
		return id, nil
	}
	if n, err := strconv.ParseUint(name, 0, 32); err == nil && n != 0 {
		return format.ID(n), nil
	}
	return arb.RegisterFormat(ctx, name)
}

// formatLabel names id for display, asking the arbiter for custom names.
func formatLabel(ctx context.Context, arb arbiter.Arbiter, id format.ID) string {
	if n := id.Name(); n != "" {
		return n
	}
	if id.Custom() {
		if n, err := arb.FormatName(ctx, id); err == nil {
			return n
		}
	}
	return fmt.Sprintf("%#04x", uint32(id))
}
