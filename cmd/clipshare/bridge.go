package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipshare/internal/bridge"
	"go.klb.dev/clipshare/internal/clip"
	"go.klb.dev/clipshare/internal/logging"
)

func newBridgeCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "bridge",
		Short: "Mirror the desktop clipboard into a running daemon",
		Long: `Connects to the clipshare daemon and keeps the desktop clipboard in
sync with it: desktop text and images are published to clipshare, and
anything another program publishes is copied to the desktop.

Use this when the daemon runs without a display, for example in a container,
and the desktop lives in another process.`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(cmd *cobra.Command, _ []string) error { return runBridge(cmd.Context(), v) },
	}

	cmd.Flags().String("host", "system", "host clipboard to mirror: system|memory")
	addDaemonFlags(cmd)
	addSessionFlags(cmd)
	addLoggingFlags(cmd)
	addConfigFlag(cmd)

	return cmd
}

func runBridge(ctx context.Context, v *viper.Viper) error {
	setupLogging(v, logging.Service)
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	host := clip.New(v.GetString("host"))
	defer host.Close()
	slog.Info("clipboard backend", "name", host.Name())

	b := bridge.New(host)
	c, err := attachSession(ctx, v, b.Handle)
	if err != nil {
		return err
	}
	defer c.Close()
	b.Bind(c.sess)
	b.Sync(ctx)

	errc := make(chan error, 1)
	go func() { errc <- b.Run(ctx) }()
	select {
	case err := <-errc:
		return err
	case <-c.win.Done():
		stop()
		<-errc
		return c.win.Err()
	}
}
