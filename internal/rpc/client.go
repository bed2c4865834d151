package rpc

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"go.klb.dev/clipshare/internal/arbiter"
	"go.klb.dev/clipshare/internal/format"
	"go.klb.dev/clipshare/internal/window"
)

// Client is a remote arbiter.Arbiter and window.Messenger.
type Client struct {
	conn *grpc.ClientConn
	opts []grpc.CallOption
}

var (
	_ arbiter.Arbiter  = (*Client)(nil)
	_ window.Messenger = (*Client)(nil)
)

// Dial connects to a clipshare daemon at target, for example
// "unix:///run/user/1000/clipshare.sock". No connection is made until the
// first call.
func Dial(target, token string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	if token != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(bearer(token)))
	}
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, err
	}
	return NewClient(conn), nil
}

// NewClient wraps an existing connection.
func NewClient(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn, opts: []grpc.CallOption{grpc.CallContentSubtype(Codec)}}
}

// Close closes the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

type bearer string

func (b bearer) GetRequestMetadata(_ context.Context, _ ...string) (map[string]string, error) {
	return map[string]string{"authorization": "Bearer " + string(b)}, nil
}

func (bearer) RequireTransportSecurity() bool { return false }

func (c *Client) invoke(ctx context.Context, method string, req, resp any) error {
	return c.conn.Invoke(ctx, fullMethod(method), req, resp, c.opts...)
}

func (c *Client) Open(ctx context.Context, h window.Handle) (arbiter.OpenReply, error) {
	var reply arbiter.OpenReply
	err := c.invoke(ctx, "Open", &handleRequest{Handle: h}, &reply)
	return reply, fromStatus("open", 0, err)
}

func (c *Client) Close(ctx context.Context, h window.Handle) (arbiter.CloseReply, error) {
	var reply arbiter.CloseReply
	err := c.invoke(ctx, "Close", &handleRequest{Handle: h}, &reply)
	return reply, fromStatus("close", 0, err)
}

func (c *Client) Empty(ctx context.Context, h window.Handle) error {
	return fromStatus("empty", 0, c.invoke(ctx, "Empty", &handleRequest{Handle: h}, &none{}))
}

func (c *Client) Put(ctx context.Context, h window.Handle, f format.ID, data []byte) error {
	req := &putRequest{Handle: h, Format: f, Data: data, Pending: data == nil}
	return fromStatus("set", f, c.invoke(ctx, "Put", req, &none{}))
}

func (c *Client) PutSynthesized(ctx context.Context, h window.Handle, f, from format.ID) error {
	req := &synthRequest{Handle: h, Format: f, From: from}
	return fromStatus("synthesize", f, c.invoke(ctx, "PutSynthesized", req, &none{}))
}

func (c *Client) Commit(ctx context.Context, h window.Handle, f format.ID, data []byte) ([]byte, error) {
	var resp dataResponse
	err := c.invoke(ctx, "Commit", &putRequest{Handle: h, Format: f, Data: data}, &resp)
	return resp.Data, fromStatus("commit", f, err)
}

func (c *Client) Drop(ctx context.Context, h window.Handle, f format.ID) error {
	return fromStatus("drop", f, c.invoke(ctx, "Drop", &formatRequest{Handle: h, Format: f}, &none{}))
}

func (c *Client) Get(ctx context.Context, h window.Handle, f format.ID, size uint32) (arbiter.GetReply, error) {
	var resp getResponse
	if err := c.invoke(ctx, "Get", &getRequest{Handle: h, Format: f, Size: size}, &resp); err != nil {
		return arbiter.GetReply{}, fromStatus("get", f, err)
	}
	if resp.Fault != nil {
		return resp.Reply, fromStatus("get", f, status.Error(resp.Fault.Code, resp.Fault.Message))
	}
	return resp.Reply, nil
}

func (c *Client) Has(ctx context.Context, f format.ID) (bool, error) {
	var resp boolResponse
	err := c.invoke(ctx, "Has", &formatRequest{Format: f}, &resp)
	return resp.Value, fromStatus("is_available", f, err)
}

func (c *Client) Next(ctx context.Context, after format.ID) (format.ID, error) {
	var resp formatResponse
	err := c.invoke(ctx, "Next", &formatRequest{Format: after}, &resp)
	return resp.Format, fromStatus("enum", after, err)
}

func (c *Client) Count(ctx context.Context) (int, error) {
	var resp countResponse
	err := c.invoke(ctx, "Count", &none{}, &resp)
	return resp.Count, fromStatus("count", 0, err)
}

func (c *Client) Formats(ctx context.Context) ([]format.ID, error) {
	var resp formatsResponse
	err := c.invoke(ctx, "Formats", &none{}, &resp)
	return resp.Formats, fromStatus("formats", 0, err)
}

func (c *Client) Info(ctx context.Context) (arbiter.State, error) {
	var st arbiter.State
	err := c.invoke(ctx, "Info", &none{}, &st)
	return st, fromStatus("info", 0, err)
}

func (c *Client) SetViewer(ctx context.Context, h window.Handle) (window.Handle, error) {
	var resp handleResponse
	err := c.invoke(ctx, "SetViewer", &handleRequest{Handle: h}, &resp)
	return resp.Handle, fromStatus("set_viewer", 0, err)
}

func (c *Client) ChangeChain(ctx context.Context, remove, next window.Handle) (arbiter.ChainReply, error) {
	var reply arbiter.ChainReply
	err := c.invoke(ctx, "ChangeChain", &chainRequest{Remove: remove, Next: next}, &reply)
	return reply, fromStatus("change_chain", 0, err)
}

func (c *Client) Release(ctx context.Context, h window.Handle) (window.Handle, error) {
	var resp handleResponse
	err := c.invoke(ctx, "Release", &handleRequest{Handle: h}, &resp)
	return resp.Handle, fromStatus("release", 0, err)
}

func (c *Client) AddListener(ctx context.Context, h window.Handle) error {
	return fromStatus("add_listener", 0, c.invoke(ctx, "AddListener", &handleRequest{Handle: h}, &none{}))
}

func (c *Client) RemoveListener(ctx context.Context, h window.Handle) error {
	return fromStatus("remove_listener", 0, c.invoke(ctx, "RemoveListener", &handleRequest{Handle: h}, &none{}))
}

func (c *Client) RegisterFormat(ctx context.Context, name string) (format.ID, error) {
	var resp formatResponse
	err := c.invoke(ctx, "RegisterFormat", &nameRequest{Name: name}, &resp)
	return resp.Format, fromStatus("register_format", 0, err)
}

func (c *Client) FormatName(ctx context.Context, f format.ID) (string, error) {
	var resp nameResponse
	err := c.invoke(ctx, "FormatName", &formatRequest{Format: f}, &resp)
	return resp.Name, fromStatus("format_name", f, err)
}

// Send delivers m to a window registered with the daemon and waits for it to
// be handled. The caller's deadline travels with the call.
func (c *Client) Send(ctx context.Context, h window.Handle, m window.Message) error {
	return sendError(h, c.invoke(ctx, "Send", &sendRequest{Handle: h, Message: m}, &none{}))
}

// Post queues m for a window registered with the daemon.
func (c *Client) Post(h window.Handle, m window.Message) error {
	req := &sendRequest{Handle: h, Message: m, Post: true}
	return sendError(h, c.invoke(context.Background(), "Send", req, &none{}))
}

// Window is a window hosted in this process and registered with the daemon.
type Window struct {
	h      window.Handle
	stream grpc.ClientStream
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Attach registers a window with the daemon. Messages for it are handed to
// handler one at a time, each acknowledged once handler returns. The window
// lives until Close is called, ctx ends or the connection drops.
func (c *Client) Attach(ctx context.Context, handler window.Handler) (*Window, error) {
	ctx, cancel := context.WithCancel(ctx)
	stream, err := c.conn.NewStream(ctx, &serviceDesc.Streams[0], fullMethod("Attach"), c.opts...)
	if err != nil {
		cancel()
		return nil, fromStatus("attach", 0, err)
	}
	var hello delivery
	if err := stream.RecvMsg(&hello); err != nil {
		cancel()
		return nil, fromStatus("attach", 0, err)
	}
	w := &Window{h: hello.Handle, stream: stream, cancel: cancel, done: make(chan struct{})}
	go w.run(ctx, handler)
	slog.Debug("window attached", "hwnd", w.h)
	return w, nil
}

func (w *Window) run(ctx context.Context, handler window.Handler) {
	defer close(w.done)
	for {
		var d delivery
		if err := w.stream.RecvMsg(&d); err != nil {
			if !errors.Is(err, io.EOF) && status.Code(err) != codes.Canceled {
				w.err = err
				slog.Warn("attached window lost", "hwnd", w.h, "err", err)
			}
			return
		}
		handler(ctx, d.Message)
		if err := w.stream.SendMsg(&ack{Seq: d.Seq}); err != nil {
			w.err = err
			return
		}
	}
}

// Handle returns the handle the daemon assigned.
func (w *Window) Handle() window.Handle { return w.h }

// Done is closed once the window stops receiving messages.
func (w *Window) Done() <-chan struct{} { return w.done }

// Err returns why the window stopped, nil after a clean Close.
func (w *Window) Err() error {
	select {
	case <-w.done:
		return w.err
	default:
		return nil
	}
}

// Close detaches the window. The daemon releases anything it still held.
func (w *Window) Close() error {
	w.cancel()
	<-w.done
	return nil
}
