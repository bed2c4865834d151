// Package rpc exposes an arbiter and its window registry to other processes
// over gRPC, and provides the client that stands in for both on the far side.
//
// Messages are plain Go structs carried by a CBOR codec, so the service is
// described by hand rather than generated from a schema. Windows living in a
// client process attach through a bidirectional stream: the daemon registers
// a stand-in window whose handler forwards each message down the stream and
// returns once the client acknowledges it.
package rpc

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"go.klb.dev/clipshare/internal/arbiter"
	"go.klb.dev/clipshare/internal/window"
)

// ServiceName is the gRPC service every method lives under.
const ServiceName = "clipshare.v1.Clipboard"

func fullMethod(name string) string { return "/" + ServiceName + "/" + name }

// Server serves an arbiter and a window registry.
type Server struct {
	arb     arbiter.Arbiter
	win     *window.Registry
	token   string
	version string

	attached atomic.Int64
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithToken requires every call to carry "authorization: Bearer <token>".
// An empty token disables the check.
func WithToken(token string) ServerOption {
	return func(s *Server) { s.token = token }
}

// WithVersion sets the version reported by the status endpoint.
func WithVersion(v string) ServerOption {
	return func(s *Server) { s.version = v }
}

// NewServer returns a Server for arb. Remote windows are created in win,
// which should also be the messenger arb notifies listeners through.
func NewServer(arb arbiter.Arbiter, win *window.Registry, opts ...ServerOption) *Server {
	s := &Server{arb: arb, win: win}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Register adds the service to gs.
func (s *Server) Register(gs *grpc.Server) {
	gs.RegisterService(&serviceDesc, s)
}

// NewGRPCServer returns a grpc.Server with the service registered and token
// checks installed.
func (s *Server) NewGRPCServer(opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts,
		grpc.ChainUnaryInterceptor(s.unaryAuth),
		grpc.ChainStreamInterceptor(s.streamAuth),
	)
	gs := grpc.NewServer(opts...)
	s.Register(gs)
	return gs
}

// Attached returns the number of windows attached over streams.
func (s *Server) Attached() int { return int(s.attached.Load()) }

func (s *Server) unaryAuth(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if err := s.auth(ctx); err != nil {
		return nil, err
	}
	return handler(ctx, req)
}

func (s *Server) streamAuth(srv any, ss grpc.ServerStream, _ *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	if err := s.auth(ss.Context()); err != nil {
		return err
	}
	return handler(srv, ss)
}

// auth validates the bearer token in ctx metadata. Skipped when s.token is empty.
func (s *Server) auth(ctx context.Context) error {
	if s.token == "" {
		return nil
	}
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return status.Error(codes.Unauthenticated, "missing metadata")
	}
	vals := md.Get("authorization")
	if len(vals) == 0 {
		return status.Error(codes.Unauthenticated, "missing authorization header")
	}
	const prefix = "Bearer "
	tok := vals[0]
	if len(tok) > len(prefix) && tok[:len(prefix)] == prefix {
		tok = tok[len(prefix):]
	}
	if tok != s.token {
		return status.Error(codes.Unauthenticated, "invalid token")
	}
	return nil
}

func addrFromCtx(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return "unknown"
}

// unary builds a method whose request and reply travel as Req and Resp.
func unary[Req, Resp any](name string, fn func(s *Server, ctx context.Context, req *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			req := new(Req)
			if err := dec(req); err != nil {
				return nil, err
			}
			s := srv.(*Server)
			call := func(ctx context.Context, r any) (any, error) {
				resp, err := fn(s, ctx, r.(*Req))
				if err != nil {
					return nil, toStatus(err)
				}
				return resp, nil
			}
			if interceptor == nil {
				return call(ctx, req)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			return interceptor(ctx, req, info, call)
		},
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		unary("Open", func(s *Server, ctx context.Context, r *handleRequest) (*arbiter.OpenReply, error) {
			reply, err := s.arb.Open(ctx, r.Handle)
			return &reply, err
		}),
		unary("Close", func(s *Server, ctx context.Context, r *handleRequest) (*arbiter.CloseReply, error) {
			reply, err := s.arb.Close(ctx, r.Handle)
			return &reply, err
		}),
		unary("Empty", func(s *Server, ctx context.Context, r *handleRequest) (*none, error) {
			return &none{}, s.arb.Empty(ctx, r.Handle)
		}),
		unary("Put", func(s *Server, ctx context.Context, r *putRequest) (*none, error) {
			data := r.Data
			switch {
			case r.Pending:
				data = nil
			case data == nil:
				data = []byte{}
			}
			return &none{}, s.arb.Put(ctx, r.Handle, r.Format, data)
		}),
		unary("PutSynthesized", func(s *Server, ctx context.Context, r *synthRequest) (*none, error) {
			return &none{}, s.arb.PutSynthesized(ctx, r.Handle, r.Format, r.From)
		}),
		unary("Commit", func(s *Server, ctx context.Context, r *putRequest) (*dataResponse, error) {
			data, err := s.arb.Commit(ctx, r.Handle, r.Format, r.Data)
			return &dataResponse{Data: data}, err
		}),
		unary("Drop", func(s *Server, ctx context.Context, r *formatRequest) (*none, error) {
			return &none{}, s.arb.Drop(ctx, r.Handle, r.Format)
		}),
		unary("Get", func(s *Server, ctx context.Context, r *getRequest) (*getResponse, error) {
			reply, err := s.arb.Get(ctx, r.Handle, r.Format, r.Size)
			resp := &getResponse{Reply: reply}
			if err != nil {
				st := status.Convert(toStatus(err))
				resp.Fault = &fault{Code: st.Code(), Message: st.Message()}
			}
			return resp, nil
		}),
		unary("Has", func(s *Server, ctx context.Context, r *formatRequest) (*boolResponse, error) {
			ok, err := s.arb.Has(ctx, r.Format)
			return &boolResponse{Value: ok}, err
		}),
		unary("Next", func(s *Server, ctx context.Context, r *formatRequest) (*formatResponse, error) {
			f, err := s.arb.Next(ctx, r.Format)
			return &formatResponse{Format: f}, err
		}),
		unary("Count", func(s *Server, ctx context.Context, _ *none) (*countResponse, error) {
			n, err := s.arb.Count(ctx)
			return &countResponse{Count: n}, err
		}),
		unary("Formats", func(s *Server, ctx context.Context, _ *none) (*formatsResponse, error) {
			ids, err := s.arb.Formats(ctx)
			return &formatsResponse{Formats: ids}, err
		}),
		unary("Info", func(s *Server, ctx context.Context, _ *none) (*arbiter.State, error) {
			st, err := s.arb.Info(ctx)
			return &st, err
		}),
		unary("SetViewer", func(s *Server, ctx context.Context, r *handleRequest) (*handleResponse, error) {
			prev, err := s.arb.SetViewer(ctx, r.Handle)
			return &handleResponse{Handle: prev}, err
		}),
		unary("ChangeChain", func(s *Server, ctx context.Context, r *chainRequest) (*arbiter.ChainReply, error) {
			reply, err := s.arb.ChangeChain(ctx, r.Remove, r.Next)
			return &reply, err
		}),
		unary("Release", func(s *Server, ctx context.Context, r *handleRequest) (*handleResponse, error) {
			viewer, err := s.arb.Release(ctx, r.Handle)
			return &handleResponse{Handle: viewer}, err
		}),
		unary("AddListener", func(s *Server, ctx context.Context, r *handleRequest) (*none, error) {
			return &none{}, s.arb.AddListener(ctx, r.Handle)
		}),
		unary("RemoveListener", func(s *Server, ctx context.Context, r *handleRequest) (*none, error) {
			return &none{}, s.arb.RemoveListener(ctx, r.Handle)
		}),
		unary("RegisterFormat", func(s *Server, ctx context.Context, r *nameRequest) (*formatResponse, error) {
			f, err := s.arb.RegisterFormat(ctx, r.Name)
			return &formatResponse{Format: f}, err
		}),
		unary("FormatName", func(s *Server, ctx context.Context, r *formatRequest) (*nameResponse, error) {
			name, err := s.arb.FormatName(ctx, r.Format)
			return &nameResponse{Name: name}, err
		}),
		unary("Send", func(s *Server, ctx context.Context, r *sendRequest) (*none, error) {
			if r.Post {
				return &none{}, s.win.Post(r.Handle, r.Message)
			}
			return &none{}, s.win.Send(ctx, r.Handle, r.Message)
		}),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Attach",
			Handler:       attachHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "clipshare/v1/clipboard.cbor",
}

func attachHandler(srv any, stream grpc.ServerStream) error {
	return srv.(*Server).attach(stream)
}

// remoteWindow is the daemon-side stand-in for a window attached over a
// stream.
type remoteWindow struct {
	stream grpc.ServerStream

	mu   sync.Mutex // serializes stream sends and guards acks
	seq  uint64
	acks map[uint64]chan struct{}
	done chan struct{}
}

// deliver is the window handler: it forwards m and blocks until the client
// acknowledges it, the sender gives up or the stream ends.
func (w *remoteWindow) deliver(ctx context.Context, m window.Message) {
	w.mu.Lock()
	w.seq++
	seq := w.seq
	ch := make(chan struct{})
	w.acks[seq] = ch
	err := w.stream.SendMsg(&delivery{Seq: seq, Message: m})
	w.mu.Unlock()

	if err == nil {
		select {
		case <-ch:
		case <-ctx.Done():
		case <-w.done:
		}
	} else {
		slog.Debug("attach: send failed", "kind", m.Kind, "err", err)
	}

	w.mu.Lock()
	delete(w.acks, seq)
	w.mu.Unlock()
}

func (w *remoteWindow) acknowledge(seq uint64) {
	w.mu.Lock()
	ch, ok := w.acks[seq]
	delete(w.acks, seq)
	w.mu.Unlock()
	if ok {
		close(ch)
	}
}

func (s *Server) attach(stream grpc.ServerStream) error {
	ctx := stream.Context()
	w := &remoteWindow{
		stream: stream,
		acks:   make(map[uint64]chan struct{}),
		done:   make(chan struct{}),
	}

	// The handle announcement must precede any delivery.
	w.mu.Lock()
	h := s.win.Create(w.deliver)
	err := stream.SendMsg(&delivery{Handle: h})
	w.mu.Unlock()

	s.attached.Add(1)
	defer func() {
		s.attached.Add(-1)
		s.win.Destroy(h)
		close(w.done)
		s.cleanupWindow(h)
	}()
	if err != nil {
		return err
	}
	slog.Info("window attached", "hwnd", h, "addr", addrFromCtx(ctx))

	for {
		var a ack
		if err := stream.RecvMsg(&a); err != nil {
			slog.Info("window detached", "hwnd", h)
			if err == io.EOF || status.Code(err) == codes.Canceled {
				return nil
			}
			return err
		}
		w.acknowledge(a.Seq)
	}
}

// cleanupWindow undoes whatever a vanished window still held: an open
// clipboard, ownership, a place in the viewer chain and a listener slot.
func (s *Server) cleanupWindow(h window.Handle) {
	ctx := context.Background()
	st, err := s.arb.Info(ctx)
	if err != nil {
		return
	}
	if st.Open && st.Opener == h {
		if reply, err := s.arb.Close(ctx, h); err == nil && reply.Viewer != 0 {
			_ = s.win.Post(reply.Viewer, window.Message{Kind: window.DrawClipboard, Owner: reply.Owner})
		}
	}
	if st.Owner == h {
		if viewer, err := s.arb.Release(ctx, h); err == nil && viewer != 0 {
			_ = s.win.Post(viewer, window.Message{Kind: window.DrawClipboard})
		}
	}
	if st.Viewer == h {
		_, _ = s.arb.ChangeChain(ctx, h, 0)
	}
	_ = s.arb.RemoveListener(ctx, h)
}
