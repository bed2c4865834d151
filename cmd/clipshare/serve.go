package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipshare/internal/arbiter"
	"go.klb.dev/clipshare/internal/bridge"
	"go.klb.dev/clipshare/internal/clip"
	"go.klb.dev/clipshare/internal/ipc"
	"go.klb.dev/clipshare/internal/logging"
	"go.klb.dev/clipshare/internal/rpc"
	"go.klb.dev/clipshare/internal/session"
	"go.klb.dev/clipshare/internal/tlsconf"
	"go.klb.dev/clipshare/internal/window"
)

func newServeCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the clipboard daemon for this session",
		Long: `Starts the clipshare daemon. It holds the clipboard for the login
session and serves it on a Unix socket to every clipshare process.

The same socket answers plain HTTP, so "curl --unix-socket <socket>
http://clipshare/status" prints the clipboard state as JSON.

With --host set to "system" the daemon also mirrors the desktop clipboard.

Precedence (lowest → highest): defaults → config file → CLIPSHARE_* env vars → flags`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(cmd *cobra.Command, _ []string) error { return runServe(cmd.Context(), v) },
	}

	f := cmd.Flags()
	f.String("listen", "", "additional TCP listen address, e.g. 0.0.0.0:8753 (TLS keyed by --token, which is required)")
	f.String("host", "none", "host clipboard to mirror: system|memory|none")
	addDaemonFlags(cmd)
	addSessionFlags(cmd)
	addLoggingFlags(cmd)
	addConfigFlag(cmd)

	return cmd
}

func runServe(ctx context.Context, v *viper.Viper) error {
	setupLogging(v, logging.Service)
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	path := v.GetString("socket")
	token := v.GetString("token")
	tcpAddr := v.GetString("listen")
	if tcpAddr != "" && token == "" {
		return errors.New("--listen requires --token")
	}

	reg := window.NewRegistry()
	mem := arbiter.NewMemory(reg)
	srv := rpc.NewServer(mem, reg, rpc.WithToken(token), rpc.WithVersion(Version))

	ln, err := ipc.Listen(path)
	if err != nil {
		return fmt.Errorf("listen %s: %w", path, err)
	}
	slog.Info("clipshare daemon starting", "version", Version, "socket", path, "auth", token != "")

	errc := make(chan error, 2)
	go func() { errc <- srv.Serve(ctx, ln) }()

	if tcpAddr != "" {
		cfg, err := tlsconf.ServerConfig(token)
		if err != nil {
			return err
		}
		tln, err := net.Listen("tcp", tcpAddr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", tcpAddr, err)
		}
		slog.Info("listening", "addr", tln.Addr(), "tls", true)
		go func() { errc <- srv.Serve(ctx, tls.NewListener(tln, cfg)) }()
	}

	bridged := make(chan struct{})
	if kind := v.GetString("host"); kind == "none" {
		close(bridged)
	} else {
		opts, err := sessionOptions(v)
		if err != nil {
			return err
		}
		host := clip.New(kind)
		defer host.Close()
		b := bridge.New(host)
		h := reg.Create(b.Handle)
		defer reg.Destroy(h)
		b.Bind(session.New(mem, reg, h, opts...))
		b.Sync(ctx)
		go func() {
			defer close(bridged)
			if err := b.Run(ctx); err != nil {
				slog.Warn("host bridge stopped", "err", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		slog.Info("clipshare daemon stopping")
		<-bridged
		return nil
	case err := <-errc:
		return err
	}
}
