package rpc

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"net"
	"net/http"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"go.klb.dev/clipshare/internal/arbiter"
	"go.klb.dev/clipshare/internal/directory"
	"go.klb.dev/clipshare/internal/errs"
	"go.klb.dev/clipshare/internal/format"
	"go.klb.dev/clipshare/internal/object"
	"go.klb.dev/clipshare/internal/render"
	"go.klb.dev/clipshare/internal/session"
	"go.klb.dev/clipshare/internal/tlsconf"
	"go.klb.dev/clipshare/internal/window"
)

var ctx = context.Background()

type harness struct {
	mem *arbiter.Memory
	reg *window.Registry
	srv *Server
	lis *bufconn.Listener
}

func start(t *testing.T, opts ...ServerOption) *harness {
	t.Helper()
	reg := window.NewRegistry()
	mem := arbiter.NewMemory(reg)
	h := &harness{mem: mem, reg: reg, srv: NewServer(mem, reg, opts...), lis: bufconn.Listen(1 << 20)}
	gs := h.srv.NewGRPCServer()
	go func() { _ = gs.Serve(h.lis) }()
	t.Cleanup(gs.Stop)
	return h
}

func (h *harness) dial(t *testing.T, token string) *Client {
	t.Helper()
	c, err := Dial("passthrough:///bufnet", token,
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return h.lis.DialContext(ctx)
		}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func attach(t *testing.T, c *Client, handler window.Handler) *Window {
	t.Helper()
	if handler == nil {
		handler = func(context.Context, window.Message) {}
	}
	w, err := c.Attach(ctx, handler)
	require.NoError(t, err)
	require.NotZero(t, w.Handle())
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func TestArbiterCallsRoundTrip(t *testing.T) {
	h := start(t)
	c := h.dial(t, "")

	reply, err := c.Open(ctx, 1)
	require.NoError(t, err)
	assert.True(t, reply.Empty)

	_, err = c.Open(ctx, 2)
	assert.ErrorIs(t, err, errs.ErrSessionState)

	require.NoError(t, c.Empty(ctx, 1))
	require.NoError(t, c.Put(ctx, 1, format.Text, []byte("hello\x00")))
	require.NoError(t, c.Put(ctx, 1, format.DIB, nil))

	got, err := c.Get(ctx, 1, format.Text, 2)
	assert.ErrorIs(t, err, arbiter.ErrBufferTooSmall)
	assert.Equal(t, uint32(6), got.Total)

	got, err = c.Get(ctx, 1, format.Text, got.Total)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello\x00"), got.Data)
	assert.Equal(t, directory.Stored, got.Origin)

	got, err = c.Get(ctx, 1, format.DIB, 1024)
	assert.ErrorIs(t, err, errs.ErrNotAvailable)
	assert.Equal(t, directory.Pending, got.Origin)
	assert.Equal(t, window.Handle(1), got.Owner)

	ok, err := c.Has(ctx, format.DIB)
	require.NoError(t, err)
	assert.True(t, ok)

	first, err := c.Next(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, format.Text, first)

	n, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	ids, err := c.Formats(ctx)
	require.NoError(t, err)
	assert.Equal(t, []format.ID{format.Text, format.DIB}, ids)

	closed, err := c.Close(ctx, 1)
	require.NoError(t, err)
	assert.True(t, closed.Changed)

	st, err := c.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, window.Handle(1), st.Owner)
	assert.False(t, st.Open)
	assert.Len(t, st.Formats, 2)
}

func TestEmptyDataIsNotDelayed(t *testing.T) {
	h := start(t)
	c := h.dial(t, "")

	_, err := c.Open(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, c.Put(ctx, 1, format.Text, []byte{}))

	got, err := c.Get(ctx, 1, format.Text, 16)
	require.NoError(t, err)
	assert.Equal(t, directory.Stored, got.Origin)
	assert.Empty(t, got.Data)
}

func TestSynthesizedCommitAndDrop(t *testing.T) {
	h := start(t)
	c := h.dial(t, "")

	_, err := c.Open(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, c.Put(ctx, 1, format.DIB, []byte("dib")))
	require.NoError(t, c.PutSynthesized(ctx, 1, format.Bitmap, format.DIB))
	require.NoError(t, c.PutSynthesized(ctx, 1, format.DIBV5, format.DIB))

	got, err := c.Get(ctx, 1, format.Bitmap, 64)
	require.NoError(t, err)
	assert.Equal(t, directory.Synthesized, got.Origin)
	assert.Equal(t, format.DIB, got.From)

	stored, err := c.Commit(ctx, 1, format.Bitmap, []byte("bm"))
	require.NoError(t, err)
	assert.Equal(t, []byte("bm"), stored)

	require.NoError(t, c.Drop(ctx, 1, format.DIBV5))
	ids, err := c.Formats(ctx)
	require.NoError(t, err)
	assert.Equal(t, []format.ID{format.DIB, format.Bitmap}, ids)
}

func TestRegisteredNamesAndChain(t *testing.T) {
	h := start(t)
	c := h.dial(t, "")

	id, err := c.RegisterFormat(ctx, "HTML Format")
	require.NoError(t, err)
	assert.Equal(t, format.CustomFirst, id)
	name, err := c.FormatName(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "HTML Format", name)
	_, err = c.RegisterFormat(ctx, "")
	assert.ErrorIs(t, err, errs.ErrInvalidObject)

	_, err = c.SetViewer(ctx, 3)
	require.NoError(t, err)
	prev, err := c.SetViewer(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, window.Handle(3), prev)

	chain, err := c.ChangeChain(ctx, 3, 0)
	require.NoError(t, err)
	assert.Equal(t, arbiter.ChainReply{Viewer: 4, Forward: true}, chain)

	require.NoError(t, c.AddListener(ctx, 9))
	assert.ErrorIs(t, c.AddListener(ctx, 9), errs.ErrInvalidObject)
	require.NoError(t, c.RemoveListener(ctx, 9))
}

func TestAttachedWindowReceivesMessages(t *testing.T) {
	h := start(t)
	c := h.dial(t, "")

	var handled atomic.Int32
	w := attach(t, c, func(_ context.Context, m window.Message) {
		if m.Kind == window.RenderFormat && m.Format == format.Text {
			handled.Add(1)
		}
	})
	assert.True(t, h.reg.Exists(w.Handle()))

	// Send returns only after the handler has run.
	require.NoError(t, c.Send(ctx, w.Handle(), window.Message{Kind: window.RenderFormat, Format: format.Text}))
	assert.Equal(t, int32(1), handled.Load())

	require.NoError(t, c.Post(w.Handle(), window.Message{Kind: window.RenderFormat, Format: format.Text}))
	assert.Eventually(t, func() bool { return handled.Load() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, h.srv.Attached())
}

func TestSendToMissingWindow(t *testing.T) {
	h := start(t)
	c := h.dial(t, "")

	err := c.Send(ctx, 0xdead, window.Message{Kind: window.DrawClipboard})
	assert.ErrorIs(t, err, window.ErrNoWindow)

	broker := render.New(c)
	assert.ErrorIs(t, broker.RequestRender(ctx, 0xdead, format.Text), errs.ErrNotAvailable)
}

func TestUnresponsiveRemoteOwner(t *testing.T) {
	h := start(t)
	c := h.dial(t, "")

	release := make(chan struct{})
	w := attach(t, c, func(context.Context, window.Message) { <-release })
	t.Cleanup(func() { close(release) })

	broker := render.New(c, render.WithRenderTimeout(50*time.Millisecond))
	err := broker.RequestRender(ctx, w.Handle(), format.Text)
	assert.ErrorIs(t, err, errs.ErrOwnerUnresponsive)
}

func TestDetachReleasesClipboard(t *testing.T) {
	h := start(t)
	c := h.dial(t, "")

	w, err := c.Attach(ctx, func(context.Context, window.Message) {})
	require.NoError(t, err)
	hwnd := w.Handle()

	_, err = c.Open(ctx, hwnd)
	require.NoError(t, err)
	require.NoError(t, c.Empty(ctx, hwnd))
	require.NoError(t, c.Put(ctx, hwnd, format.Text, []byte("kept\x00")))
	require.NoError(t, c.Put(ctx, hwnd, format.DIB, nil))
	require.NoError(t, c.AddListener(ctx, hwnd))

	require.NoError(t, w.Close())
	assert.NoError(t, w.Err())

	assert.Eventually(t, func() bool {
		st, err := c.Info(ctx)
		return err == nil && !st.Open && st.Owner == 0 && st.Listeners == 0
	}, time.Second, 5*time.Millisecond)

	ids, err := c.Formats(ctx)
	require.NoError(t, err)
	assert.Equal(t, []format.ID{format.Text}, ids)
	assert.False(t, h.reg.Exists(hwnd))
}

func TestSessionsAcrossProcesses(t *testing.T) {
	h := start(t)
	writerConn := h.dial(t, "")
	readerConn := h.dial(t, "")

	var writer atomic.Pointer[session.Session]
	var renders atomic.Int32
	ww := attach(t, writerConn, func(ctx context.Context, m window.Message) {
		if m.Kind != window.RenderFormat {
			return
		}
		renders.Add(1)
		_ = writer.Load().SetData(ctx, m.Format, object.Global("late text\x00"))
	})
	writer.Store(session.New(writerConn, writerConn, ww.Handle()))

	rw := attach(t, readerConn, nil)
	reader := session.New(readerConn, readerConn, rw.Handle())

	ws := writer.Load()
	require.NoError(t, ws.Open(ctx))
	require.NoError(t, ws.Empty(ctx))
	require.NoError(t, ws.SetData(ctx, format.Text, nil))
	require.NoError(t, ws.Close(ctx))

	require.NoError(t, reader.Open(ctx))
	obj, err := reader.GetData(ctx, format.Text)
	require.NoError(t, err)
	assert.Equal(t, object.Global("late text\x00"), obj)

	uni, err := reader.GetData(ctx, format.UnicodeText)
	require.NoError(t, err)
	assert.Equal(t, object.Global("l\x00a\x00t\x00e\x00 \x00t\x00e\x00x\x00t\x00\x00\x00"), uni)
	require.NoError(t, reader.Close(ctx))

	assert.Equal(t, int32(1), renders.Load())
}

func TestTokenRequired(t *testing.T) {
	h := start(t, WithToken("s3cret"))

	_, err := h.dial(t, "").Count(ctx)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	_, err = h.dial(t, "wrong").Count(ctx)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	_, err = h.dial(t, "s3cret").Count(ctx)
	assert.NoError(t, err)
}

func TestServeSplitsGRPCAndHTTP(t *testing.T) {
	reg := window.NewRegistry()
	mem := arbiter.NewMemory(reg)
	srv := NewServer(mem, reg, WithVersion("test"))

	path := filepath.Join(t.TempDir(), "cs.sock")
	ln, err := net.Listen("unix", path)
	require.NoError(t, err)

	sctx, cancel := context.WithCancel(ctx)
	served := make(chan error, 1)
	go func() { served <- srv.Serve(sctx, ln) }()

	c, err := Dial("unix://"+path, "")
	require.NoError(t, err)
	defer c.Close()
	_, err = c.Open(ctx, 7)
	require.NoError(t, err)

	hc := &http.Client{Transport: &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", path)
		},
	}}
	resp, err := hc.Get("http://clipshare/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var st Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.Equal(t, "test", st.Version)
	assert.True(t, st.State.Open)
	assert.Equal(t, window.Handle(7), st.State.Opener)

	cancel()
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestServeOverTLS(t *testing.T) {
	reg := window.NewRegistry()
	mem := arbiter.NewMemory(reg)
	srv := NewServer(mem, reg, WithToken("s3cret"))

	cfg, err := tlsconf.ServerConfig("s3cret")
	require.NoError(t, err)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	sctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() { _ = srv.Serve(sctx, tls.NewListener(ln, cfg)) }()

	creds, err := tlsconf.ClientCredentials("s3cret")
	require.NoError(t, err)
	c, err := Dial("passthrough:///"+ln.Addr().String(), "s3cret", grpc.WithTransportCredentials(creds))
	require.NoError(t, err)
	defer c.Close()
	id, err := c.RegisterFormat(ctx, "over tls")
	require.NoError(t, err)
	assert.True(t, id.Custom())

	ccfg, err := tlsconf.ClientConfig("s3cret")
	require.NoError(t, err)
	hc := &http.Client{Transport: &http.Transport{TLSClientConfig: ccfg}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://"+ln.Addr().String()+"/status", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer s3cret")
	resp, err := hc.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	wrong, err := tlsconf.ClientCredentials("guess")
	require.NoError(t, err)
	bad, err := Dial("passthrough:///"+ln.Addr().String(), "guess", grpc.WithTransportCredentials(wrong))
	require.NoError(t, err)
	defer bad.Close()
	tctx, tcancel := context.WithTimeout(ctx, 2*time.Second)
	defer tcancel()
	_, err = bad.Count(tctx)
	assert.Error(t, err)
}
