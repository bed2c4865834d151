package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipshare/internal/ipc"
	"go.klb.dev/clipshare/internal/logging"
	"go.klb.dev/clipshare/internal/render"
	"go.klb.dev/clipshare/internal/session"
	"go.klb.dev/clipshare/internal/textconv"
)

// bindViper wires a command's flags into a viper instance with the standard
// config file search order and CLIPSHARE_* env var prefix.
//
// Precedence (lowest → highest): defaults → config file → CLIPSHARE_* env vars → flags
func bindViper(cmd *cobra.Command, v *viper.Viper) error {
	configFlag, _ := cmd.Flags().GetString("config")
	if configFlag != "" {
		v.SetConfigFile(configFlag)
	} else {
		v.SetConfigName("clipshare")
		v.SetConfigType("toml")
		v.AddConfigPath("/etc/clipshare/")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(fmt.Sprintf("%s/.config/clipshare", home))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("config: %w", err)
		}
	}

	v.SetEnvPrefix("CLIPSHARE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("binding flags: %w", err)
	}
	return nil
}

// addLoggingFlags adds the standard logging flags to a command.
func addLoggingFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("no-background", false, "run interactively: tinter logs + debug level")
	cmd.Flags().String("log-format", "auto", "log format: auto|text|json")
	cmd.Flags().String("log-level", "", "log level: debug|info|warn|error (default: warn for one-shot commands, info for services, debug when interactive)")
}

// addConfigFlag adds the --config flag to a command.
func addConfigFlag(cmd *cobra.Command) {
	cmd.Flags().String("config", "", "path to config file (overrides auto-discovery)")
}

// addDaemonFlags adds the flags locating the daemon.
func addDaemonFlags(cmd *cobra.Command) {
	cmd.Flags().String("socket", ipc.SocketPath(), "daemon socket path")
	cmd.Flags().String("token", "", "shared secret (empty = no auth)")
	cmd.Flags().String("remote", "", "TCP address of a daemon started with --listen (overrides --socket)")
}

// addSessionFlags adds the flags tuning a clipboard session.
func addSessionFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Duration("render-timeout", render.DefaultTimeout, "how long to wait for an owner to render a delayed format")
	f.Duration("empty-timeout", render.DefaultTimeout, "how long to wait for the previous owner when emptying")
	f.Uint32("read-size", session.DefaultReadSize, "initial read buffer size in bytes")
	f.Int("read-attempts", session.DefaultReadAttempts, "reads tried before a format is given up on")
	f.String("locale", "", "locale for text conversion, e.g. de_DE or ja-JP (default: from LC_ALL/LC_CTYPE/LANG)")
}

// setupLogging reads logging flags from viper and configures slog for a
// command of the given role.
func setupLogging(v *viper.Viper, role logging.Role) {
	logging.Setup(logging.Options{
		Role:        role,
		Format:      v.GetString("log-format"),
		Level:       v.GetString("log-level"),
		Interactive: v.GetBool("no-background"),
	})
}

// sessionOptions turns the session flags into session options.
func sessionOptions(v *viper.Viper) ([]session.Option, error) {
	opts := []session.Option{
		session.WithRenderTimeout(v.GetDuration("render-timeout")),
		session.WithEmptyTimeout(v.GetDuration("empty-timeout")),
		session.WithReadSize(v.GetUint32("read-size")),
		session.WithReadAttempts(v.GetInt("read-attempts")),
	}
	if name := v.GetString("locale"); name != "" {
		lcid, ok := textconv.Parse(name)
		if !ok {
			return nil, fmt.Errorf("unknown locale %q", name)
		}
		opts = append(opts, session.WithLocale(lcid))
	}
	return opts, nil
}
