// Package session is the per-process clipboard client: it opens and closes
// the shared clipboard, flattens objects on write, rebuilds them on read and
// fills in derived formats.
//
// A Session holds two pieces of process-local state, both behind one mutex:
// a changed flag set by every successful write, and the synthesis table
// mapping each not-yet-rendered derived format to its source. The table is
// filled when the session closes after changes and emptied when this process
// opens a clipboard nobody owned. No lock is held across arbiter calls.
package session

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"go.klb.dev/clipshare/internal/arbiter"
	"go.klb.dev/clipshare/internal/codec"
	"go.klb.dev/clipshare/internal/directory"
	"go.klb.dev/clipshare/internal/errs"
	"go.klb.dev/clipshare/internal/format"
	"go.klb.dev/clipshare/internal/gdi"
	"go.klb.dev/clipshare/internal/object"
	"go.klb.dev/clipshare/internal/render"
	"go.klb.dev/clipshare/internal/synth"
	"go.klb.dev/clipshare/internal/textconv"
	"go.klb.dev/clipshare/internal/window"
)

// Read defaults.
const (
	DefaultReadSize     = 1024
	DefaultReadAttempts = 4
	// MaxReadSize caps a single format's size on read.
	MaxReadSize = 256 << 20
)

// Session is one process's view of the clipboard.
type Session struct {
	arb    arbiter.Arbiter
	win    window.Messenger
	self   window.Handle
	codec  *codec.Codec
	engine *synth.Engine
	broker *render.Broker
	lcid   textconv.LCID

	renderTimeout time.Duration
	emptyTimeout  time.Duration
	readSize      uint32
	readAttempts  int

	mu          sync.Mutex
	open        bool
	changed     bool
	synthesized map[format.ID]format.ID
}

// Option configures a Session.
type Option func(*Session)

// WithMetafiles sets the metafile bridge used by the codecs and the
// synthesis engine.
func WithMetafiles(mf gdi.Metafiles) Option {
	return func(s *Session) {
		s.codec = codec.New(mf)
		s.engine = synth.NewEngine(mf)
	}
}

// WithEngine replaces the synthesis engine.
func WithEngine(e *synth.Engine) Option {
	return func(s *Session) { s.engine = e }
}

// WithLocale sets the locale recorded with text this session publishes.
// The default comes from the environment.
func WithLocale(lcid textconv.LCID) Option {
	return func(s *Session) { s.lcid = lcid }
}

// WithRenderTimeout bounds render requests to the owner.
func WithRenderTimeout(d time.Duration) Option {
	return func(s *Session) { s.renderTimeout = d }
}

// WithEmptyTimeout bounds the owner's acknowledgement in Empty.
func WithEmptyTimeout(d time.Duration) Option {
	return func(s *Session) { s.emptyTimeout = d }
}

// WithReadSize sets the initial read buffer size.
func WithReadSize(n uint32) Option {
	return func(s *Session) {
		if n > 0 {
			s.readSize = n
		}
	}
}

// WithReadAttempts bounds the arbiter round-trips of a single read.
func WithReadAttempts(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.readAttempts = n
		}
	}
}

// New returns a closed session acting as window self.
func New(arb arbiter.Arbiter, win window.Messenger, self window.Handle, opts ...Option) *Session {
	mf := gdi.NewMemory()
	s := &Session{
		arb:          arb,
		win:          win,
		self:         self,
		codec:        codec.New(mf),
		engine:       synth.NewEngine(mf),
		lcid:         textconv.SystemLCID(),
		readSize:     DefaultReadSize,
		readAttempts: DefaultReadAttempts,
		synthesized:  make(map[format.ID]format.ID),
	}
	for _, o := range opts {
		o(s)
	}
	s.broker = render.New(win, render.WithRenderTimeout(s.renderTimeout), render.WithEmptyTimeout(s.emptyTimeout))
	return s
}

// Handle returns the window this session acts as.
func (s *Session) Handle() window.Handle { return s.self }

// Codec returns the session's codec, for callers that handle raw bytes.
func (s *Session) Codec() *codec.Codec { return s.codec }

// Conversions returns the number of synthesized renders this session ran.
func (s *Session) Conversions() uint64 { return s.engine.Conversions() }

// Open acquires the clipboard. State is reset when nobody owned the
// clipboard or it held no formats.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	if s.open {
		s.mu.Unlock()
		return errs.New("open", 0, errs.KindSessionState, "already open")
	}
	s.mu.Unlock()

	reply, err := s.arb.Open(ctx, s.self)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.open = true
	if reply.Owner == 0 || reply.Empty {
		s.changed = false
		clear(s.synthesized)
	}
	s.mu.Unlock()
	slog.Debug("session opened", "hwnd", s.self, "owner", reply.Owner, "empty", reply.Empty)
	return nil
}

// Close releases the clipboard. If anything was written since the last
// close, the missing members of each family are registered for synthesis
// first. The viewer is notified of changes. When the arbiter refuses, the
// session stays open and a later Close retries.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return errs.New("close", 0, errs.KindSessionState, "not open")
	}
	changed := s.changed
	s.mu.Unlock()

	if changed {
		table := s.addSynthesized(ctx)
		s.mu.Lock()
		clear(s.synthesized)
		maps.Copy(s.synthesized, table)
		s.mu.Unlock()
	}

	reply, err := s.arb.Close(ctx, s.self)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if changed {
		s.changed = false
	}
	s.open = false
	s.mu.Unlock()
	if reply.Viewer != 0 && reply.Viewer != s.self {
		s.post(reply.Viewer, window.Message{Kind: window.DrawClipboard, Owner: reply.Owner})
	}
	return nil
}

// addSynthesized plans and registers the derived formats. Failures only
// cost the affected format.
func (s *Session) addSynthesized(ctx context.Context) map[format.ID]format.ID {
	has := func(f format.ID) bool {
		ok, err := s.arb.Has(ctx, f)
		return err == nil && ok
	}
	edges, needLocale := synth.Plan(has)
	if needLocale {
		var tag [4]byte
		binary.LittleEndian.PutUint32(tag[:], uint32(s.lcid))
		if err := s.arb.Put(ctx, s.self, format.Locale, tag[:]); err != nil {
			slog.Warn("storing locale failed", "lcid", fmt.Sprintf("%04x", uint32(s.lcid)), "err", err)
		}
	}

	table := make(map[format.ID]format.ID, len(edges))
	for _, e := range edges {
		if err := s.arb.PutSynthesized(ctx, s.self, e.Target, e.From); err != nil {
			slog.Debug("synthesis skipped", "format", e.Target, "from", e.From, "err", err)
			continue
		}
		table[e.Target] = e.From
		slog.Debug("format synthesized", "format", e.Target, "from", e.From)
	}
	return table
}

// Empty discards the clipboard contents and makes this session the owner.
// The previous owner is told first; if it does not answer within the empty
// timeout the operation proceeds anyway.
func (s *Session) Empty(ctx context.Context) error {
	st, err := s.arb.Info(ctx)
	if err != nil {
		return err
	}
	if st.Owner != 0 && st.Owner != s.self {
		if err := s.broker.RequestDestroy(ctx, st.Owner); err != nil {
			slog.Warn("clipboard owner did not acknowledge empty", "owner", st.Owner, "err", err)
		}
	}
	if err := s.arb.Empty(ctx, s.self); err != nil {
		return err
	}
	s.mu.Lock()
	s.changed = false
	clear(s.synthesized)
	s.mu.Unlock()
	return nil
}

// SetData stores obj under f. A nil obj promises to render f on request.
// A marshal failure returns before the arbiter is contacted.
func (s *Session) SetData(ctx context.Context, f format.ID, obj object.Object) error {
	var data []byte
	if obj != nil {
		var err error
		if data, err = s.codec.Marshal(f, obj); err != nil {
			return err
		}
	}
	if err := s.arb.Put(ctx, s.self, f, data); err != nil {
		return err
	}
	s.mu.Lock()
	s.changed = true
	delete(s.synthesized, f)
	s.mu.Unlock()
	return nil
}

// GetData returns the live object for f, rendering it from its source if it
// is a synthesized format, or asking the owner to render it if it is
// missing.
func (s *Session) GetData(ctx context.Context, f format.ID) (object.Object, error) {
	s.mu.Lock()
	from, synthesized := s.synthesized[f]
	s.mu.Unlock()

	if synthesized {
		return s.renderSynthesized(ctx, f, from)
	}

	reply, err := s.fetch(ctx, f, true)
	if err != nil {
		return nil, err
	}
	if reply.Origin == directory.Synthesized {
		return s.renderSynthesized(ctx, f, reply.From)
	}
	return s.codec.Unmarshal(f, reply.Data)
}

// GetRaw returns the stored bytes of f without rebuilding an object.
// Synthesized formats are rendered and committed first.
func (s *Session) GetRaw(ctx context.Context, f format.ID) ([]byte, error) {
	s.mu.Lock()
	_, synthesized := s.synthesized[f]
	s.mu.Unlock()

	if !synthesized {
		reply, err := s.fetch(ctx, f, true)
		if err != nil {
			return nil, err
		}
		if reply.Origin != directory.Synthesized {
			return reply.Data, nil
		}
	}
	obj, err := s.GetData(ctx, f)
	if err != nil {
		return nil, err
	}
	return s.codec.Marshal(f, obj)
}

// fetch reads f's stored bytes. The buffer starts at the configured read
// size and grows to the size the arbiter reports. When the format is missing
// or still pending and an owner exists, the owner is asked once to render
// it.
func (s *Session) fetch(ctx context.Context, f format.ID, askOwner bool) (arbiter.GetReply, error) {
	size := s.readSize
	for attempt := 0; attempt < s.readAttempts; attempt++ {
		reply, err := s.arb.Get(ctx, s.self, f, size)
		switch {
		case err == nil:
			return reply, nil
		case errors.Is(err, arbiter.ErrBufferTooSmall):
			if reply.Total > MaxReadSize {
				return reply, errs.New("get", f, errs.KindAllocationFailure,
					fmt.Sprintf("%d bytes exceeds the read limit", reply.Total))
			}
			slog.Debug("read buffer too small", "format", f, "size", size, "need", reply.Total)
			size = reply.Total
		case errs.KindOf(err) == errs.KindNotAvailable && askOwner && reply.Owner != 0:
			askOwner = false
			if rerr := s.broker.RequestRender(ctx, reply.Owner, f); rerr != nil {
				return reply, rerr
			}
		default:
			return reply, err
		}
	}
	return arbiter.GetReply{}, errs.New("get", f, errs.KindAllocationFailure,
		fmt.Sprintf("no stable read after %d attempts", s.readAttempts))
}

// renderSynthesized derives f from its source, commits the bytes and
// returns the committed object. The arbiter keeps the first commit, so
// racing readers all see the same bytes.
func (s *Session) renderSynthesized(ctx context.Context, f, from format.ID) (object.Object, error) {
	fail := func(err error) (object.Object, error) {
		s.forget(f)
		if derr := s.arb.Drop(ctx, s.self, f); derr != nil {
			slog.Debug("dropping synthesized format failed", "format", f, "err", derr)
		}
		if errs.KindOf(err) == errs.KindSessionState {
			return nil, err
		}
		return nil, errs.Wrap("get", f, errs.KindNotAvailable, err)
	}

	reply, err := s.fetch(ctx, from, true)
	if err != nil {
		return fail(err)
	}
	src, err := s.codec.Unmarshal(from, reply.Data)
	if err != nil {
		return fail(err)
	}
	lcid := s.lcid
	if fam, _ := format.FamilyOf(f); fam == format.FamilyText {
		lcid = s.sessionLocale(ctx)
	}
	obj, err := s.engine.Render(ctx, f, from, src, lcid)
	if err != nil {
		return fail(err)
	}
	data, err := s.codec.Marshal(f, obj)
	if err != nil {
		return fail(err)
	}
	stored, err := s.arb.Commit(ctx, s.self, f, data)
	if err != nil {
		return fail(err)
	}
	s.forget(f)
	if string(stored) != string(data) {
		return s.codec.Unmarshal(f, stored)
	}
	return obj, nil
}

// sessionLocale returns the locale published with the clipboard text,
// falling back to this session's own.
func (s *Session) sessionLocale(ctx context.Context) textconv.LCID {
	reply, err := s.fetch(ctx, format.Locale, false)
	if err != nil || len(reply.Data) < 4 {
		return s.lcid
	}
	return textconv.LCID(binary.LittleEndian.Uint32(reply.Data))
}

func (s *Session) forget(f format.ID) {
	s.mu.Lock()
	delete(s.synthesized, f)
	s.mu.Unlock()
}

func (s *Session) post(h window.Handle, m window.Message) {
	if s.win == nil {
		return
	}
	if err := s.win.Post(h, m); err != nil {
		slog.Debug("notification dropped", "hwnd", h, "kind", m.Kind, "err", err)
	}
}
