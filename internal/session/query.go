package session

import (
	"context"
	"log/slog"
	"slices"

	"go.klb.dev/clipshare/internal/arbiter"
	"go.klb.dev/clipshare/internal/format"
	"go.klb.dev/clipshare/internal/window"
)

// IsAvailable reports whether f is on the clipboard, stored, promised by the
// owner or derivable.
func (s *Session) IsAvailable(ctx context.Context, f format.ID) (bool, error) {
	return s.arb.Has(ctx, f)
}

// NextFormat enumerates formats in directory order. Pass 0 to start; 0 is
// returned after the last.
func (s *Session) NextFormat(ctx context.Context, after format.ID) (format.ID, error) {
	return s.arb.Next(ctx, after)
}

// CountFormats returns the number of formats on the clipboard.
func (s *Session) CountFormats(ctx context.Context) (int, error) {
	return s.arb.Count(ctx)
}

// UpdatedFormats returns every format on the clipboard in directory order.
func (s *Session) UpdatedFormats(ctx context.Context) ([]format.ID, error) {
	return s.arb.Formats(ctx)
}

// PriorityFormat returns the first format of list that is available. It
// returns 0 when the clipboard is empty and -1 when none of list is there.
func (s *Session) PriorityFormat(ctx context.Context, list []format.ID) (int64, error) {
	n, err := s.arb.Count(ctx)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	ids, err := s.arb.Formats(ctx)
	if err != nil {
		return 0, err
	}
	for _, f := range list {
		if slices.Contains(ids, f) {
			return int64(f), nil
		}
	}
	return -1, nil
}

// SequenceNumber returns the clipboard's change counter.
func (s *Session) SequenceNumber(ctx context.Context) (uint32, error) {
	st, err := s.arb.Info(ctx)
	return st.Seq, err
}

// Owner returns the window owning the clipboard contents.
func (s *Session) Owner(ctx context.Context) (window.Handle, error) {
	st, err := s.arb.Info(ctx)
	return st.Owner, err
}

// OpenWindow returns the window that has the clipboard open, or 0.
func (s *Session) OpenWindow(ctx context.Context) (window.Handle, error) {
	st, err := s.arb.Info(ctx)
	if err != nil || !st.Open {
		return 0, err
	}
	return st.Opener, nil
}

// Viewer returns the first window of the viewer chain.
func (s *Session) Viewer(ctx context.Context) (window.Handle, error) {
	st, err := s.arb.Info(ctx)
	return st.Viewer, err
}

// State returns the arbiter's full snapshot.
func (s *Session) State(ctx context.Context) (arbiter.State, error) {
	return s.arb.Info(ctx)
}

// SetViewer puts this session's window at the head of the viewer chain and
// returns the window it displaced, which the caller passes messages on to.
// The new viewer is sent DrawClipboard right away.
func (s *Session) SetViewer(ctx context.Context) (window.Handle, error) {
	prev, err := s.arb.SetViewer(ctx, s.self)
	if err != nil {
		return 0, err
	}
	s.post(s.self, window.Message{Kind: window.DrawClipboard})
	return prev, nil
}

// ChangeChain removes remove from the viewer chain, next taking its place.
// When remove is not the head, the head is told so it can pass the change
// along.
func (s *Session) ChangeChain(ctx context.Context, remove, next window.Handle) error {
	reply, err := s.arb.ChangeChain(ctx, remove, next)
	if err != nil || !reply.Forward {
		return err
	}
	return s.broker.Send(ctx, reply.Viewer, window.Message{Kind: window.ChangeCBChain, Remove: remove, Next: next})
}

// AddListener subscribes this session's window to ClipboardUpdate messages.
func (s *Session) AddListener(ctx context.Context) error {
	return s.arb.AddListener(ctx, s.self)
}

// RemoveListener cancels AddListener.
func (s *Session) RemoveListener(ctx context.Context) error {
	return s.arb.RemoveListener(ctx, s.self)
}

// RegisterFormat returns the custom format id for name.
func (s *Session) RegisterFormat(ctx context.Context, name string) (format.ID, error) {
	return s.arb.RegisterFormat(ctx, name)
}

// FormatName returns the name of a registered format.
func (s *Session) FormatName(ctx context.Context, f format.ID) (string, error) {
	return s.arb.FormatName(ctx, f)
}

// ReleaseOwner renders every delayed format and then gives up ownership, as
// a closing owner must. Viewers are told if formats were lost.
func (s *Session) ReleaseOwner(ctx context.Context) error {
	owner, err := s.Owner(ctx)
	if err != nil {
		return err
	}
	if owner != s.self {
		return nil
	}
	if err := s.broker.RequestRenderAll(ctx, s.self); err != nil {
		// Unrendered formats are dropped by the arbiter below.
		slog.Warn("owner failed to render all formats", "hwnd", s.self, "err", err)
	}
	viewer, err := s.arb.Release(ctx, s.self)
	if err != nil {
		return err
	}
	if viewer != 0 {
		s.post(viewer, window.Message{Kind: window.DrawClipboard})
	}
	return nil
}
