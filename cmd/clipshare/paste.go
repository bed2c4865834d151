package main

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipshare/internal/format"
	"go.klb.dev/clipshare/internal/logging"
	"go.klb.dev/clipshare/internal/object"
	"go.klb.dev/clipshare/internal/textconv"
)

func newPasteCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "paste",
		Short: "Write the clipboard to stdout (like pbpaste)",
		Long: `Reads the clipboard and writes it to stdout.

By default the text is written as UTF-8, converted from whichever text
format was published. --format writes the stored bytes of another format.`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPaste(cmd.Context(), v, cmd.OutOrStdout())
		},
	}

	cmd.Flags().String("format", "text", "format to read")
	addDaemonFlags(cmd)
	addSessionFlags(cmd)
	addLoggingFlags(cmd)
	addConfigFlag(cmd)

	return cmd
}

func runPaste(ctx context.Context, v *viper.Viper, out io.Writer) error {
	setupLogging(v, logging.OneShot)
	if ctx == nil {
		ctx = context.Background()
	}

	c, err := attachSession(ctx, v, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	f, err := resolveFormat(ctx, c.conn, v.GetString("format"))
	if err != nil {
		return err
	}

	s := c.sess
	if err := s.Open(ctx); err != nil {
		return err
	}
	data, err := pasteBytes(ctx, s, f)
	if cerr := s.Close(ctx); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	_, err = out.Write(data)
	return err
}

type reader interface {
	GetData(ctx context.Context, f format.ID) (object.Object, error)
	GetRaw(ctx context.Context, f format.ID) ([]byte, error)
}

func pasteBytes(ctx context.Context, s reader, f format.ID) ([]byte, error) {
	switch f {
	case format.UnicodeText:
		obj, err := s.GetData(ctx, f)
		if err != nil {
			return nil, err
		}
		g, ok := obj.(object.Global)
		if !ok {
			return nil, fmt.Errorf("unexpected %T for %s", obj, f)
		}
		text, err := textconv.DecodeWide(g)
		return []byte(text), err
	case format.Text, format.OEMText:
		data, err := s.GetRaw(ctx, f)
		if i := bytes.IndexByte(data, 0); i >= 0 {
			data = data[:i]
		}
		return data, err
	}
	return s.GetRaw(ctx, f)
}
