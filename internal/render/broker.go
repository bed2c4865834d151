// Package render hands work to the clipboard owner: rendering a delayed
// format, rendering everything before ownership is released, and
// acknowledging that its data is about to be destroyed.
//
// Each hand-off is a blocking window message bounded by a timeout. A hand-off
// happens once per request; retrying the read afterwards is the caller's job.
package render

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.klb.dev/clipshare/internal/errs"
	"go.klb.dev/clipshare/internal/format"
	"go.klb.dev/clipshare/internal/window"
)

// DefaultTimeout bounds every hand-off unless configured otherwise.
const DefaultTimeout = 5 * time.Second

// Broker sends render and destroy requests to the clipboard owner.
type Broker struct {
	win           window.Messenger
	renderTimeout time.Duration
	emptyTimeout  time.Duration
}

// Option configures a Broker.
type Option func(*Broker)

// WithRenderTimeout bounds RequestRender and RequestRenderAll.
func WithRenderTimeout(d time.Duration) Option {
	return func(b *Broker) {
		if d > 0 {
			b.renderTimeout = d
		}
	}
}

// WithEmptyTimeout bounds RequestDestroy.
func WithEmptyTimeout(d time.Duration) Option {
	return func(b *Broker) {
		if d > 0 {
			b.emptyTimeout = d
		}
	}
}

// New returns a Broker delivering through win.
func New(win window.Messenger, opts ...Option) *Broker {
	b := &Broker{win: win, renderTimeout: DefaultTimeout, emptyTimeout: DefaultTimeout}
	for _, o := range opts {
		o(b)
	}
	return b
}

// RequestRender asks owner to render f and waits for it to finish.
func (b *Broker) RequestRender(ctx context.Context, owner window.Handle, f format.ID) error {
	if owner == 0 {
		return errs.New("render", f, errs.KindNotAvailable, "no clipboard owner")
	}
	slog.Debug("requesting render", "format", f, "owner", owner)
	return b.send(ctx, "render", f, owner, window.Message{Kind: window.RenderFormat, Format: f}, b.renderTimeout)
}

// RequestRenderAll asks owner to render every delayed format.
func (b *Broker) RequestRenderAll(ctx context.Context, owner window.Handle) error {
	if owner == 0 {
		return nil
	}
	return b.send(ctx, "render_all", 0, owner, window.Message{Kind: window.RenderAllFormats}, b.renderTimeout)
}

// RequestDestroy tells owner its data is about to be discarded and waits for
// it to acknowledge.
func (b *Broker) RequestDestroy(ctx context.Context, owner window.Handle) error {
	if owner == 0 {
		return nil
	}
	return b.send(ctx, "empty", 0, owner, window.Message{Kind: window.DestroyClipboard}, b.emptyTimeout)
}

// Send delivers any other message to h, bounded like a render request.
func (b *Broker) Send(ctx context.Context, h window.Handle, m window.Message) error {
	return b.send(ctx, m.Kind.String(), m.Format, h, m, b.renderTimeout)
}

func (b *Broker) send(ctx context.Context, op string, f format.ID, owner window.Handle, m window.Message, timeout time.Duration) error {
	if b.win == nil {
		return errs.New(op, f, errs.KindNotAvailable, "no messenger")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := b.win.Send(ctx, owner, m)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return errs.Wrap(op, f, errs.KindOwnerUnresponsive, err)
	case errors.Is(err, window.ErrNoWindow):
		return errs.Wrap(op, f, errs.KindNotAvailable, err)
	default:
		return errs.Wrap(op, f, errs.KindOwnerUnresponsive, err)
	}
}
