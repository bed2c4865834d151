// Package arbiter defines the session-wide clipboard authority the client
// library talks to, and an in-memory implementation of it.
//
// The arbiter owns the format directory, tracks which window has the
// clipboard open and which one owns its contents, keeps the viewer chain and
// format listeners, and assigns ids to registered format names. Every call
// names the acting window.
package arbiter

import (
	"context"
	"errors"

	"go.klb.dev/clipshare/internal/directory"
	"go.klb.dev/clipshare/internal/format"
	"go.klb.dev/clipshare/internal/window"
)

// ErrBufferTooSmall is returned by Get when the stored bytes do not fit the
// caller's buffer. GetReply.Total carries the size needed.
var ErrBufferTooSmall = errors.New("arbiter: buffer too small")

// OpenReply describes the clipboard as found by Open. Owner is the owner
// before the call, zero when nobody owned the data; Empty is true when the
// directory had no entries.
type OpenReply struct {
	Owner window.Handle `cbor:"owner"`
	Empty bool          `cbor:"empty"`
	Seq   uint32        `cbor:"seq"`
}

// CloseReply tells the closer whom to notify. Viewer is set only when the
// contents changed while the clipboard was open.
type CloseReply struct {
	Viewer  window.Handle `cbor:"viewer,omitempty"`
	Owner   window.Handle `cbor:"owner,omitempty"`
	Changed bool          `cbor:"changed"`
}

// GetReply is the result of Get. Owner is filled in even when the call
// fails so the reader knows whom to ask for a render.
type GetReply struct {
	Data   []byte           `cbor:"data,omitempty"`
	Total  uint32           `cbor:"total"`
	Owner  window.Handle    `cbor:"owner,omitempty"`
	Origin directory.Origin `cbor:"origin"`
	From   format.ID        `cbor:"from,omitempty"`
}

// ChainReply is the result of ChangeChain. When Forward is set the caller
// must tell Viewer about the change itself.
type ChainReply struct {
	Viewer  window.Handle `cbor:"viewer,omitempty"`
	Forward bool          `cbor:"forward"`
}

// State is a snapshot of the clipboard for status reporting.
type State struct {
	Owner     window.Handle `cbor:"owner" json:"owner"`
	Open      bool          `cbor:"open" json:"open"`
	Opener    window.Handle `cbor:"opener" json:"opener"`
	Viewer    window.Handle `cbor:"viewer" json:"viewer"`
	Seq       uint32        `cbor:"seq" json:"seq"`
	Listeners int           `cbor:"listeners" json:"listeners"`
	Formats   []FormatInfo  `cbor:"formats" json:"formats"`
}

// FormatInfo describes one directory entry without its bytes.
type FormatInfo struct {
	ID     format.ID        `cbor:"id" json:"id"`
	Name   string           `cbor:"name,omitempty" json:"name,omitempty"`
	Origin directory.Origin `cbor:"origin" json:"origin"`
	From   format.ID        `cbor:"from,omitempty" json:"from,omitempty"`
	Size   int              `cbor:"size" json:"size"`
}

// Arbiter is the clipboard authority.
type Arbiter interface {
	// Open gives h exclusive access. It fails with SessionState when another
	// window has the clipboard open.
	Open(ctx context.Context, h window.Handle) (OpenReply, error)
	// Close ends h's access and notifies listeners if anything changed.
	Close(ctx context.Context, h window.Handle) (CloseReply, error)
	// Empty discards the directory and makes h the owner. The caller is
	// responsible for telling the previous owner first.
	Empty(ctx context.Context, h window.Handle) error

	// Put stores data under f, replacing any entry. Nil data registers a
	// delayed-render placeholder. h must be the opener or the owner.
	Put(ctx context.Context, h window.Handle, f format.ID, data []byte) error
	// PutSynthesized registers f as derivable from from, unless f is present.
	PutSynthesized(ctx context.Context, h window.Handle, f, from format.ID) error
	// Commit stores the rendered bytes of a synthesized entry and returns
	// what the directory holds afterwards. When another reader committed
	// first, its bytes are returned.
	Commit(ctx context.Context, h window.Handle, f format.ID, data []byte) ([]byte, error)
	// Drop removes a synthesized entry that could not be rendered.
	Drop(ctx context.Context, h window.Handle, f format.ID) error

	// Get reads f into a buffer of size bytes. It fails with
	// ErrBufferTooSmall or NotAvailable.
	Get(ctx context.Context, h window.Handle, f format.ID, size uint32) (GetReply, error)
	Has(ctx context.Context, f format.ID) (bool, error)
	Next(ctx context.Context, after format.ID) (format.ID, error)
	Count(ctx context.Context) (int, error)
	Formats(ctx context.Context) ([]format.ID, error)
	Info(ctx context.Context) (State, error)

	// SetViewer makes h the first viewer and returns the previous one.
	SetViewer(ctx context.Context, h window.Handle) (window.Handle, error)
	// ChangeChain removes remove from the viewer chain, with next taking
	// its place.
	ChangeChain(ctx context.Context, remove, next window.Handle) (ChainReply, error)
	// Release gives up ownership held by h. Delayed formats that were never
	// rendered are dropped. It returns the viewer to notify, if any.
	Release(ctx context.Context, h window.Handle) (window.Handle, error)

	AddListener(ctx context.Context, h window.Handle) error
	RemoveListener(ctx context.Context, h window.Handle) error

	// RegisterFormat returns the id for name, assigning one on first use.
	// Names compare case-insensitively.
	RegisterFormat(ctx context.Context, name string) (format.ID, error)
	// FormatName returns the registered name of a custom format id.
	FormatName(ctx context.Context, f format.ID) (string, error)
}
