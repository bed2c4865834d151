// Package clip reaches the desktop clipboard of the machine clipshare runs
// on. The host bridge uses it to mirror text and images between the desktop
// and the clipshare arbiter.
package clip

import "log/slog"

// MIME types the backends exchange.
const (
	MimeText = "text/plain"
	MimePNG  = "image/png"
)

// Item is one representation of the host clipboard contents.
type Item struct {
	Mime string
	Data []byte
}

// Backend is the interface that all clipboard implementations satisfy.
type Backend interface {
	// Name returns a human-readable name for the backend.
	Name() string

	// Read returns the current clipboard contents as a slice of typed items.
	// Returns nil, nil if the clipboard is empty or contains only unsupported types.
	Read() ([]Item, error)

	// Write sets the clipboard contents to the provided items. A write does
	// not signal Watch.
	Write(items []Item) error

	// Watch returns a channel that receives a signal whenever the clipboard
	// changes. The channel is never closed. The caller should call Read()
	// when it receives from the channel.
	Watch() <-chan struct{}

	// Close releases any resources held by the backend.
	Close()
}

// New returns the backend named by kind: "system" for the desktop clipboard,
// "memory" for a private in-process one, anything else for a no-op. A
// system clipboard that cannot be initialised degrades to the no-op backend.
func New(kind string) Backend {
	switch kind {
	case "system", "":
		b, err := NewSystem()
		if err != nil {
			slog.Warn("clipboard unavailable, running headless", "err", err)
			return Headless()
		}
		return b
	case "memory":
		return NewMemory()
	default:
		return Headless()
	}
}

func find(items []Item, mime string) []byte {
	for _, it := range items {
		if it.Mime == mime {
			return it.Data
		}
	}
	return nil
}
