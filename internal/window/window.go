// Package window models the messaging the clipboard needs between
// applications: render requests to the data owner, ownership hand-off,
// viewer and listener notifications.
//
// Every participating application has a Handle. Messages are delivered
// through a Messenger, either blocking (Send, which waits for the handler to
// finish) or fire-and-forget (Post).
package window

import (
	"context"
	"errors"
	"fmt"

	"go.klb.dev/clipshare/internal/format"
)

// Handle identifies a window. Zero means none.
type Handle uint32

func (h Handle) String() string { return fmt.Sprintf("%#x", uint32(h)) }

// Kind is the message type.
type Kind uint8

const (
	// RenderFormat asks the owner to render Format now and store it.
	RenderFormat Kind = iota + 1
	// RenderAllFormats asks the owner to render every delayed format before
	// it gives up ownership.
	RenderAllFormats
	// DestroyClipboard tells the owner its data is being discarded.
	DestroyClipboard
	// DrawClipboard tells the viewer the contents changed.
	DrawClipboard
	// ChangeCBChain tells the viewer that Remove leaves the chain and Next
	// follows it.
	ChangeCBChain
	// ClipboardUpdate tells a format listener the contents changed.
	ClipboardUpdate
)

var kindNames = map[Kind]string{
	RenderFormat:     "render_format",
	RenderAllFormats: "render_all_formats",
	DestroyClipboard: "destroy_clipboard",
	DrawClipboard:    "draw_clipboard",
	ChangeCBChain:    "change_cb_chain",
	ClipboardUpdate:  "clipboard_update",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Message is one window message.
type Message struct {
	Kind   Kind      `cbor:"kind" json:"kind"`
	Format format.ID `cbor:"format,omitempty" json:"format,omitempty"`
	Remove Handle    `cbor:"remove,omitempty" json:"remove,omitempty"`
	Next   Handle    `cbor:"next,omitempty" json:"next,omitempty"`

	// Owner is the clipboard owner when the contents changed.
	Owner Handle `cbor:"owner,omitempty" json:"owner,omitempty"`
}

var (
	ErrNoWindow  = errors.New("window: no such window")
	ErrQueueFull = errors.New("window: message queue full")
)

// Messenger delivers messages to windows.
type Messenger interface {
	// Send delivers m and waits for the handler to return or ctx to end.
	Send(ctx context.Context, h Handle, m Message) error
	// Post queues m without waiting.
	Post(h Handle, m Message) error
}
