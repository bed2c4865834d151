// Package logging configures the global slog logger for clipshare binaries.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/pwntr/tinter"
)

// Role says how a command runs, which decides how much it logs by default.
type Role uint8

const (
	// Service is a long-running command such as serve or bridge.
	Service Role = iota
	// OneShot is a command that moves clipboard data or prints a report and
	// exits. Its stderr stays quiet unless something goes wrong.
	OneShot
)

// Options is the logging configuration of one command invocation, as read
// from the --log-format, --log-level and --no-background flags.
type Options struct {
	Role        Role
	Format      string
	Level       string
	Interactive bool
}

// ParseLevel converts a string to a slog.Level. The empty string and
// unknown names yield def.
func ParseLevel(s string, def slog.Level) slog.Level {
	var l slog.Level
	if s == "" || l.UnmarshalText([]byte(s)) != nil {
		return def
	}
	return l
}

// DefaultLevel is the level used when --log-level is not given. Services
// log at info, or debug when someone is watching; one-shot commands only
// report warnings.
func (o Options) DefaultLevel(attended bool) slog.Level {
	switch {
	case o.Role == OneShot:
		return slog.LevelWarn
	case o.Interactive || attended:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// Handler builds the handler writing to w: colourised for people, JSON for
// log collectors.
func (o Options) Handler(w io.Writer) slog.Handler {
	attended := o.Interactive || terminal(w)
	level := ParseLevel(o.Level, o.DefaultLevel(attended))

	tint := attended
	switch strings.ToLower(o.Format) {
	case "text", "tint", "human":
		tint = true
	case "json":
		tint = false
	}
	if tint {
		return tinter.NewHandler(w, &tinter.Options{
			Level:      level,
			TimeFormat: "15:04:05.000",
		})
	}
	return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
}

// Setup installs the global slog logger writing to stderr. Call once after
// flag/viper parsing.
func Setup(o Options) {
	slog.SetDefault(slog.New(o.Handler(os.Stderr)))
}

func terminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}
