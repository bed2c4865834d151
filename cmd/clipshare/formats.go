package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipshare/internal/arbiter"
	"go.klb.dev/clipshare/internal/logging"
)

func newFormatsCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:     "formats",
		Short:   "List the formats on the clipboard",
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE: func(cmd *cobra.Command, _ []string) error {
			setupLogging(v, logging.OneShot)
			conn, err := dialDaemon(v)
			if err != nil {
				return err
			}
			defer conn.Close()
			return printFormats(cmd.Context(), conn, cmd.OutOrStdout())
		},
	}

	addDaemonFlags(cmd)
	addLoggingFlags(cmd)
	addConfigFlag(cmd)

	return cmd
}

func printFormats(ctx context.Context, arb arbiter.Arbiter, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	st, err := arb.Info(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tORIGIN\tFROM\tSIZE")
	for _, f := range st.Formats {
		name := f.Name
		if name == "" {
			name = formatLabel(ctx, arb, f.ID)
		}
		from := "-"
		if f.From != 0 {
			from = formatLabel(ctx, arb, f.From)
		}
		fmt.Fprintf(tw, "%#04x\t%s\t%s\t%s\t%d\n", uint32(f.ID), name, f.Origin, from, f.Size)
	}
	return tw.Flush()
}
