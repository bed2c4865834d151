// Package bridge mirrors the desktop clipboard of the host into a clipshare
// session and back.
//
// Host text is published as CF_UNICODETEXT and host images as a delayed
// CF_DIB, converted from PNG only when a reader asks for it. In the other
// direction the bridge listens for clipboard updates and copies whatever
// another owner published out to the host.
package bridge

import (
	"bytes"
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.klb.dev/clipshare/internal/clip"
	"go.klb.dev/clipshare/internal/format"
	"go.klb.dev/clipshare/internal/object"
	"go.klb.dev/clipshare/internal/session"
	"go.klb.dev/clipshare/internal/textconv"
	"go.klb.dev/clipshare/internal/window"
)

// Bridge connects a clip.Backend to a session.
type Bridge struct {
	host clip.Backend
	sess atomic.Pointer[session.Session]

	op sync.Mutex // one import or export at a time

	mu      sync.Mutex
	lastPNG []byte // host image behind the delayed CF_DIB

	imported atomic.Uint64
	exported atomic.Uint64
}

// New returns a Bridge for host. Create its window with Handle as the
// handler, then Bind the session built on that window.
func New(host clip.Backend) *Bridge {
	return &Bridge{host: host}
}

// Bind attaches the session the bridge acts through. Messages arriving
// before Bind are ignored.
func (b *Bridge) Bind(s *session.Session) { b.sess.Store(s) }

// Imported counts host changes published to clipshare.
func (b *Bridge) Imported() uint64 { return b.imported.Load() }

// Exported counts clipshare changes written to the host.
func (b *Bridge) Exported() uint64 { return b.exported.Load() }

// Handle is the window handler of the bridge.
func (b *Bridge) Handle(ctx context.Context, m window.Message) {
	s := b.sess.Load()
	if s == nil {
		return
	}
	switch m.Kind {
	case window.RenderFormat:
		if m.Format == format.DIB {
			b.renderDIB(ctx, s)
		}
	case window.RenderAllFormats:
		b.renderDIB(ctx, s)
	case window.DestroyClipboard:
		b.mu.Lock()
		b.lastPNG = nil
		b.mu.Unlock()
	case window.ClipboardUpdate:
		b.export(ctx, s)
	}
}

// Run imports the host clipboard whenever it changes until ctx ends. On
// return the bridge stops listening and hands over any delayed image.
func (b *Bridge) Run(ctx context.Context) error {
	s := b.sess.Load()
	if s == nil {
		panic("bridge: Run before Bind")
	}
	if err := s.AddListener(ctx); err != nil {
		return err
	}
	slog.Info("bridge running", "host", b.host.Name(), "hwnd", s.Handle())

	defer func() {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := s.RemoveListener(cctx); err != nil {
			slog.Debug("bridge: remove listener", "err", err)
		}
		if err := s.ReleaseOwner(cctx); err != nil {
			slog.Warn("bridge: release ownership", "err", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-b.host.Watch():
			b.importHost(ctx, s)
		}
	}
}

// Sync publishes the current host clipboard once.
func (b *Bridge) Sync(ctx context.Context) {
	if s := b.sess.Load(); s != nil {
		b.importHost(ctx, s)
	}
}

func (b *Bridge) importHost(ctx context.Context, s *session.Session) {
	items, err := b.host.Read()
	if err != nil {
		slog.Warn("bridge: read host clipboard", "err", err)
		return
	}
	if len(items) == 0 {
		return
	}

	b.op.Lock()
	defer b.op.Unlock()

	if err := s.Open(ctx); err != nil {
		slog.Warn("bridge: open clipboard", "err", err)
		return
	}
	defer func() {
		if err := s.Close(ctx); err != nil {
			slog.Warn("bridge: close clipboard", "err", err)
		}
	}()
	if err := s.Empty(ctx); err != nil {
		slog.Warn("bridge: empty clipboard", "err", err)
		return
	}

	var published []string
	for _, it := range items {
		switch it.Mime {
		case clip.MimeText:
			data, err := textconv.EncodeWide(string(it.Data))
			if err == nil {
				err = s.SetData(ctx, format.UnicodeText, object.Global(data))
			}
			if err != nil {
				slog.Warn("bridge: publish text", "err", err)
				continue
			}
		case clip.MimePNG:
			b.mu.Lock()
			b.lastPNG = it.Data
			b.mu.Unlock()
			if err := s.SetData(ctx, format.DIB, nil); err != nil {
				slog.Warn("bridge: publish image", "err", err)
				continue
			}
		default:
			continue
		}
		published = append(published, it.Mime)
	}
	b.imported.Add(1)
	clip.LogItems("host clipboard published", items, "host", b.host.Name(), "published", published)
}

// renderDIB fulfils the delayed CF_DIB from the last host image.
func (b *Bridge) renderDIB(ctx context.Context, s *session.Session) {
	b.mu.Lock()
	data := b.lastPNG
	b.lastPNG = nil
	b.mu.Unlock()
	if data == nil {
		return
	}
	dib, err := pngToDIB(data)
	if err != nil {
		slog.Warn("bridge: convert host image", "err", err)
		return
	}
	if err := s.SetData(ctx, format.DIB, object.Global(dib)); err != nil {
		slog.Warn("bridge: render image", "err", err)
	}
}

// export copies text and images published by another owner to the host.
func (b *Bridge) export(ctx context.Context, s *session.Session) {
	owner, err := s.Owner(ctx)
	if err != nil || owner == 0 || owner == s.Handle() {
		return
	}

	b.op.Lock()
	defer b.op.Unlock()

	if err := s.Open(ctx); err != nil {
		slog.Debug("bridge: clipboard busy, skipping export", "err", err)
		return
	}
	items := b.collect(ctx, s)
	if err := s.Close(ctx); err != nil {
		slog.Warn("bridge: close clipboard", "err", err)
	}
	if len(items) == 0 {
		return
	}
	if cur, err := b.host.Read(); err == nil && sameItems(cur, items) {
		return
	}
	if err := b.host.Write(items); err != nil {
		slog.Warn("bridge: write host clipboard", "err", err)
		return
	}
	b.exported.Add(1)
	clip.LogItems("clipboard exported to host", items, "host", b.host.Name(), "owner", owner)
}

func (b *Bridge) collect(ctx context.Context, s *session.Session) []clip.Item {
	var items []clip.Item
	if ok, _ := s.IsAvailable(ctx, format.UnicodeText); ok {
		obj, err := s.GetData(ctx, format.UnicodeText)
		if g, isGlobal := obj.(object.Global); err == nil && isGlobal {
			if text, err := textconv.DecodeWide(g); err == nil {
				items = append(items, clip.Item{Mime: clip.MimeText, Data: []byte(text)})
			}
		} else if err != nil {
			slog.Debug("bridge: read text", "err", err)
		}
	}
	if ok, _ := s.IsAvailable(ctx, format.DIB); ok {
		obj, err := s.GetData(ctx, format.DIB)
		if g, isGlobal := obj.(object.Global); err == nil && isGlobal {
			if data, err := dibToPNG(g); err == nil {
				items = append(items, clip.Item{Mime: clip.MimePNG, Data: data})
			} else {
				slog.Debug("bridge: convert image", "err", err)
			}
		} else if err != nil {
			slog.Debug("bridge: read image", "err", err)
		}
	}
	return items
}

func sameItems(a, b []clip.Item) bool {
	return slices.EqualFunc(a, b, func(x, y clip.Item) bool {
		return x.Mime == y.Mime && bytes.Equal(x.Data, y.Data)
	})
}
