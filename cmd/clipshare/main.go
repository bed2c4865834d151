// clipshare: a shared, session-wide clipboard with format synthesis.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags "-X main.Version=x.y.z".
var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "clipshare",
		Short: "Session-wide clipboard with format synthesis",
		Long: `clipshare keeps one clipboard for a login session. Any process can
publish data in one or more formats; readers get every format of the same
family, converted on first request (text code pages, bitmaps, metafiles).

Run "clipshare serve" once per session. Use "clipshare copy/paste/formats/status"
as CLI tools against it, and "clipshare bridge" to mirror the desktop clipboard.

Config file search order (first found wins):
  /etc/clipshare/clipshare.toml
  $HOME/.config/clipshare/clipshare.toml
  path supplied via --config

All flags can be set via CLIPSHARE_<FLAG> env vars or config-file keys.`,
		SilenceUsage: true,
	}

	root.AddCommand(
		newServeCmd(),
		newCopyCmd(),
		newPasteCmd(),
		newFormatsCmd(),
		newStatusCmd(),
		newBridgeCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "clipshare %s\n", Version)
		},
	}
}
