package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipshare/internal/format"
	"go.klb.dev/clipshare/internal/logging"
	"go.klb.dev/clipshare/internal/object"
	"go.klb.dev/clipshare/internal/textconv"
)

func newCopyCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "copy",
		Short: "Copy stdin to the clipboard (like pbcopy)",
		Long: `Reads stdin and publishes it on the clipboard, replacing its contents.

Text is stored as CF_UNICODETEXT; the ANSI and OEM forms are derived for
readers that ask for them. --format stores the bytes unchanged under another
format: a built-in name such as CF_DIB, a number, or a custom format name.`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCopy(cmd.Context(), v, cmd.InOrStdin())
		},
	}

	cmd.Flags().String("format", "text", "format to store the data as")
	addDaemonFlags(cmd)
	addSessionFlags(cmd)
	addLoggingFlags(cmd)
	addConfigFlag(cmd)

	return cmd
}

func runCopy(ctx context.Context, v *viper.Viper, in io.Reader) error {
	setupLogging(v, logging.OneShot)
	if ctx == nil {
		ctx = context.Background()
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("read stdin: %w", err)
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
	obj, err := copyObject(f, data)
	if err != nil {
		return err
	}

	s := c.sess
	if err := s.Open(ctx); err != nil {
		return err
	}
	if err := s.Empty(ctx); err != nil {
		_ = s.Close(ctx)
		return err
	}
	if err := s.SetData(ctx, f, obj); err != nil {
		_ = s.Close(ctx)
		return err
	}
	if err := s.Close(ctx); err != nil {
		return err
	}
	slog.Debug("copied", "format", f, "bytes", len(data))
	return nil
}

// copyObject wraps stdin for f. Text gains its terminator; formats whose
// objects are not plain buffers are refused by SetData.
func copyObject(f format.ID, data []byte) (object.Object, error) {
	switch f {
	case format.UnicodeText:
		wide, err := textconv.EncodeWide(string(data))
		if err != nil {
			return nil, err
		}
		return object.Global(wide), nil
	case format.Text, format.OEMText:
		if i := bytes.IndexByte(data, 0); i >= 0 {
			data = data[:i]
		}
		return object.Global(append(data, 0)), nil
	}
	return object.Global(data), nil
}
