package rpc

import (
	"google.golang.org/grpc/codes"

	"go.klb.dev/clipshare/internal/arbiter"
	"go.klb.dev/clipshare/internal/format"
	"go.klb.dev/clipshare/internal/window"
)

type none struct{}

type handleRequest struct {
	Handle window.Handle `cbor:"hwnd"`
}

type formatRequest struct {
	Handle window.Handle `cbor:"hwnd,omitempty"`
	Format format.ID     `cbor:"format"`
}

// putRequest marks delayed rendering explicitly; CBOR does not tell a nil
// byte string from an empty one.
type putRequest struct {
	Handle  window.Handle `cbor:"hwnd"`
	Format  format.ID     `cbor:"format"`
	Data    []byte        `cbor:"data,omitempty"`
	Pending bool          `cbor:"pending,omitempty"`
}

type synthRequest struct {
	Handle window.Handle `cbor:"hwnd"`
	Format format.ID     `cbor:"format"`
	From   format.ID     `cbor:"from"`
}

type getRequest struct {
	Handle window.Handle `cbor:"hwnd"`
	Format format.ID     `cbor:"format"`
	Size   uint32        `cbor:"size"`
}

// getResponse carries the reply even when the read failed, since the reader
// needs Total or Owner to retry.
type getResponse struct {
	Reply arbiter.GetReply `cbor:"reply"`
	Fault *fault           `cbor:"fault,omitempty"`
}

type fault struct {
	Code    codes.Code `cbor:"code"`
	Message string     `cbor:"message,omitempty"`
}

type chainRequest struct {
	Remove window.Handle `cbor:"remove"`
	Next   window.Handle `cbor:"next,omitempty"`
}

type nameRequest struct {
	Name string `cbor:"name"`
}

type sendRequest struct {
	Handle  window.Handle  `cbor:"hwnd"`
	Message window.Message `cbor:"msg"`
	Post    bool           `cbor:"post,omitempty"`
}

type boolResponse struct {
	Value bool `cbor:"value"`
}

type countResponse struct {
	Count int `cbor:"count"`
}

type formatResponse struct {
	Format format.ID `cbor:"format"`
}

type formatsResponse struct {
	Formats []format.ID `cbor:"formats"`
}

type handleResponse struct {
	Handle window.Handle `cbor:"hwnd"`
}

type dataResponse struct {
	Data []byte `cbor:"data"`
}

type nameResponse struct {
	Name string `cbor:"name"`
}

// delivery flows down an Attach stream. The first one carries only the
// handle assigned to the attached window.
type delivery struct {
	Seq     uint64         `cbor:"seq"`
	Handle  window.Handle  `cbor:"hwnd,omitempty"`
	Message window.Message `cbor:"msg"`
}

// ack flows up an Attach stream once the window has handled a delivery.
type ack struct {
	Seq uint64 `cbor:"seq"`
}
