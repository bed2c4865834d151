package arbiter

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"go.klb.dev/clipshare/internal/directory"
	"go.klb.dev/clipshare/internal/errs"
	"go.klb.dev/clipshare/internal/format"
	"go.klb.dev/clipshare/internal/window"
)

// Memory is an in-process Arbiter. Notifications to listeners go out through
// a window.Messenger after the lock is released and never block.
type Memory struct {
	win window.Messenger

	mu        sync.RWMutex
	dir       *directory.Directory
	open      bool
	opener    window.Handle
	openSeq   uint32
	owner     window.Handle
	viewer    window.Handle
	seq       uint32
	listeners map[window.Handle]struct{}

	atomMu sync.RWMutex
	atoms  map[string]format.ID // lower-cased name → id
	names  map[format.ID]string
	next   format.ID
}

var _ Arbiter = (*Memory)(nil)

// NewMemory returns an empty clipboard. win may be nil, in which case
// listeners are not notified.
func NewMemory(win window.Messenger) *Memory {
	return &Memory{
		win:       win,
		dir:       directory.New(),
		listeners: make(map[window.Handle]struct{}),
		atoms:     make(map[string]format.ID),
		names:     make(map[format.ID]string),
		next:      format.CustomFirst,
	}
}

func stateError(op, msg string, args ...any) error {
	return errs.New(op, 0, errs.KindSessionState, fmt.Sprintf(msg, args...))
}

// Open implements Arbiter.
func (m *Memory) Open(_ context.Context, h window.Handle) (OpenReply, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.open {
		if m.opener == h {
			return OpenReply{}, stateError("open", "already open by %s", h)
		}
		return OpenReply{}, stateError("open", "clipboard held by %s", m.opener)
	}
	m.open, m.opener, m.openSeq = true, h, m.seq
	slog.Debug("clipboard opened", "hwnd", h, "owner", m.owner, "formats", m.dir.Len())
	return OpenReply{Owner: m.owner, Empty: m.dir.Len() == 0, Seq: m.seq}, nil
}

// Close implements Arbiter.
func (m *Memory) Close(_ context.Context, h window.Handle) (CloseReply, error) {
	m.mu.Lock()
	if !m.open || m.opener != h {
		m.mu.Unlock()
		return CloseReply{}, stateError("close", "not open by %s", h)
	}
	m.open, m.opener = false, 0
	reply := CloseReply{Owner: m.owner, Changed: m.seq != m.openSeq}
	var targets []window.Handle
	if reply.Changed {
		reply.Viewer = m.viewer
		targets = m.listenersLocked()
	}
	m.mu.Unlock()

	slog.Debug("clipboard closed", "hwnd", h, "changed", reply.Changed)
	m.notify(targets, window.Message{Kind: window.ClipboardUpdate})
	return reply, nil
}

// Empty implements Arbiter.
func (m *Memory) Empty(_ context.Context, h window.Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.open && m.opener != h {
		return stateError("empty", "clipboard held by %s", m.opener)
	}
	m.dir.Reset()
	m.owner = h
	m.seq++
	slog.Debug("clipboard emptied", "owner", h, "seq", m.seq)
	return nil
}

func (m *Memory) mayWriteLocked(h window.Handle) bool {
	return (m.open && m.opener == h) || (m.owner != 0 && m.owner == h)
}

// Put implements Arbiter.
func (m *Memory) Put(_ context.Context, h window.Handle, f format.ID, data []byte) error {
	if f == 0 {
		return errs.New("put", f, errs.KindInvalidObject, "format 0")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.mayWriteLocked(h) {
		return stateError("put", "%s neither opened nor owns the clipboard", h)
	}
	e := directory.Entry{ID: f, Data: bytes.Clone(data)}
	if data == nil {
		e.Origin = directory.Pending
	}
	m.dir.Put(e)
	m.seq++
	slog.Debug("format stored", "format", f, "hwnd", h, "size", len(data), "origin", e.Origin)
	return nil
}

// PutSynthesized implements Arbiter.
func (m *Memory) PutSynthesized(_ context.Context, h window.Handle, f, from format.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open || m.opener != h {
		return stateError("synthesize", "not open by %s", h)
	}
	if m.dir.Has(f) {
		return nil
	}
	if !m.dir.Has(from) {
		return errs.New("synthesize", f, errs.KindNotAvailable, fmt.Sprintf("source %s absent", from))
	}
	m.dir.Put(directory.Entry{ID: f, Origin: directory.Synthesized, From: from})
	return nil
}

// Commit implements Arbiter.
func (m *Memory) Commit(_ context.Context, h window.Handle, f format.ID, data []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open || m.opener != h {
		return nil, stateError("commit", "not open by %s", h)
	}
	e, ok := m.dir.Get(f)
	if !ok {
		return nil, errs.New("commit", f, errs.KindNotAvailable, "no entry")
	}
	switch e.Origin {
	case directory.Stored:
		return bytes.Clone(e.Data), nil
	case directory.Synthesized:
		m.dir.Store(f, bytes.Clone(data))
		return bytes.Clone(data), nil
	default:
		return nil, errs.New("commit", f, errs.KindNotAvailable, "entry is "+e.Origin.String())
	}
}

// Drop implements Arbiter.
func (m *Memory) Drop(_ context.Context, h window.Handle, f format.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open || m.opener != h {
		return stateError("drop", "not open by %s", h)
	}
	if e, ok := m.dir.Get(f); ok && e.Origin == directory.Synthesized {
		m.dir.Remove(f)
	}
	return nil
}

// Get implements Arbiter.
func (m *Memory) Get(_ context.Context, h window.Handle, f format.ID, size uint32) (GetReply, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	reply := GetReply{Owner: m.owner}
	if !m.open || m.opener != h {
		return reply, stateError("get", "not open by %s", h)
	}
	e, ok := m.dir.Get(f)
	if !ok {
		return reply, errs.New("get", f, errs.KindNotAvailable, "no such format")
	}
	reply.Origin, reply.From = e.Origin, e.From
	if !e.Available() {
		return reply, errs.New("get", f, errs.KindNotAvailable, "not rendered yet")
	}
	if e.Origin == directory.Synthesized {
		return reply, nil
	}
	reply.Total = uint32(len(e.Data))
	if size < reply.Total {
		return reply, ErrBufferTooSmall
	}
	reply.Data = bytes.Clone(e.Data)
	return reply, nil
}

// Has implements Arbiter.
func (m *Memory) Has(_ context.Context, f format.ID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dir.Has(f), nil
}

// Next implements Arbiter.
func (m *Memory) Next(_ context.Context, after format.ID) (format.ID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dir.Next(after), nil
}

// Count implements Arbiter.
func (m *Memory) Count(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dir.Len(), nil
}

// Formats implements Arbiter.
func (m *Memory) Formats(context.Context) ([]format.ID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dir.IDs(), nil
}

// Info implements Arbiter.
func (m *Memory) Info(ctx context.Context) (State, error) {
	m.mu.RLock()
	st := State{
		Owner:     m.owner,
		Open:      m.open,
		Opener:    m.opener,
		Viewer:    m.viewer,
		Seq:       m.seq,
		Listeners: len(m.listeners),
	}
	entries := m.dir.Entries()
	m.mu.RUnlock()

	for _, e := range entries {
		name := e.ID.Name()
		if e.ID.Custom() {
			name, _ = m.FormatName(ctx, e.ID)
		}
		st.Formats = append(st.Formats, FormatInfo{
			ID: e.ID, Name: name, Origin: e.Origin, From: e.From, Size: len(e.Data),
		})
	}
	return st, nil
}

// SetViewer implements Arbiter.
func (m *Memory) SetViewer(_ context.Context, h window.Handle) (window.Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.viewer
	m.viewer = h
	return prev, nil
}

// ChangeChain implements Arbiter.
func (m *Memory) ChangeChain(_ context.Context, remove, next window.Handle) (ChainReply, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.viewer == remove {
		m.viewer = next
		return ChainReply{Viewer: next}, nil
	}
	if m.viewer == 0 {
		return ChainReply{}, nil
	}
	return ChainReply{Viewer: m.viewer, Forward: true}, nil
}

// Release implements Arbiter.
func (m *Memory) Release(_ context.Context, h window.Handle) (window.Handle, error) {
	m.mu.Lock()
	if m.owner == 0 || m.owner != h {
		m.mu.Unlock()
		return 0, stateError("release", "%s does not own the clipboard", h)
	}
	m.owner = 0
	dropped := 0
	for _, e := range m.dir.Entries() {
		if e.Origin == directory.Pending {
			m.dir.Remove(e.ID)
			dropped++
		}
	}
	var (
		viewer  window.Handle
		targets []window.Handle
	)
	if dropped > 0 {
		m.seq++
		viewer = m.viewer
		targets = m.listenersLocked()
	}
	m.mu.Unlock()

	slog.Debug("clipboard released", "hwnd", h, "dropped", dropped)
	m.notify(targets, window.Message{Kind: window.ClipboardUpdate})
	return viewer, nil
}

// AddListener implements Arbiter.
func (m *Memory) AddListener(_ context.Context, h window.Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.listeners[h]; ok {
		return errs.New("add_listener", 0, errs.KindInvalidObject, fmt.Sprintf("%s already listening", h))
	}
	m.listeners[h] = struct{}{}
	return nil
}

// RemoveListener implements Arbiter.
func (m *Memory) RemoveListener(_ context.Context, h window.Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.listeners[h]; !ok {
		return errs.New("remove_listener", 0, errs.KindInvalidObject, fmt.Sprintf("%s not listening", h))
	}
	delete(m.listeners, h)
	return nil
}

// RegisterFormat implements Arbiter.
func (m *Memory) RegisterFormat(_ context.Context, name string) (format.ID, error) {
	if name == "" || len(name) > 255 {
		return 0, errs.New("register", 0, errs.KindInvalidObject, fmt.Sprintf("bad format name %q", name))
	}
	key := strings.ToLower(name)

	m.atomMu.Lock()
	defer m.atomMu.Unlock()
	if id, ok := m.atoms[key]; ok {
		return id, nil
	}
	if m.next > format.CustomLast {
		return 0, errs.New("register", 0, errs.KindAllocationFailure, "format table full")
	}
	id := m.next
	m.next++
	m.atoms[key] = id
	m.names[id] = name
	slog.Debug("format registered", "format", id, "name", name)
	return id, nil
}

// FormatName implements Arbiter.
func (m *Memory) FormatName(_ context.Context, f format.ID) (string, error) {
	m.atomMu.RLock()
	defer m.atomMu.RUnlock()
	name, ok := m.names[f]
	if !ok {
		return "", errs.New("format_name", f, errs.KindNotAvailable, "not a registered format")
	}
	return name, nil
}

// listenersLocked snapshots the listener set. Must be called with m.mu held.
func (m *Memory) listenersLocked() []window.Handle {
	out := make([]window.Handle, 0, len(m.listeners))
	for h := range m.listeners {
		out = append(out, h)
	}
	return out
}

func (m *Memory) notify(targets []window.Handle, msg window.Message) {
	if m.win == nil {
		return
	}
	for _, h := range targets {
		if err := m.win.Post(h, msg); err != nil {
			slog.Debug("listener notification dropped", "hwnd", h, "err", err)
		}
	}
}
