package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/soheilhy/cmux"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"go.klb.dev/clipshare/internal/arbiter"
)

// Status is the JSON document served at /status.
type Status struct {
	Version  string        `json:"version,omitempty"`
	Attached int           `json:"attached"`
	State    arbiter.State `json:"state"`
}

// Serve accepts connections on ln until ctx ends, splitting them between the
// gRPC service and a small HTTP/1 endpoint for curl-friendly status.
func (s *Server) Serve(ctx context.Context, ln net.Listener, opts ...grpc.ServerOption) error {
	m := cmux.New(ln)
	httpL := m.Match(cmux.HTTP1Fast())
	grpcL := m.Match(cmux.HTTP2())

	gs := s.NewGRPCServer(opts...)
	hs := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := gs.Serve(grpcL); err != nil && !errors.Is(err, cmux.ErrListenerClosed) {
			slog.Debug("grpc server stopped", "err", err)
		}
	}()
	go func() {
		if err := hs.Serve(httpL); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Debug("http server stopped", "err", err)
		}
	}()

	stop := context.AfterFunc(ctx, func() {
		gs.Stop()
		_ = hs.Close()
		_ = ln.Close()
	})
	defer stop()

	err := m.Serve()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// Handler returns the HTTP status handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", s.serveStatus)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

func (s *Server) serveStatus(w http.ResponseWriter, r *http.Request) {
	if err := s.auth(tokenContext(r)); err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	st, err := s.arb.Info(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(Status{Version: s.version, Attached: s.Attached(), State: st})
}

// tokenContext exposes the request's Authorization header the way gRPC
// metadata would, so both transports share one check.
func tokenContext(r *http.Request) context.Context {
	md := metadata.MD{}
	if v := r.Header.Get("Authorization"); v != "" {
		md.Set("authorization", v)
	}
	return metadata.NewIncomingContext(r.Context(), md)
}
