package rpc

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"go.klb.dev/clipshare/internal/arbiter"
	"go.klb.dev/clipshare/internal/errs"
	"go.klb.dev/clipshare/internal/format"
	"go.klb.dev/clipshare/internal/window"
)

var kindCodes = map[errs.Kind]codes.Code{
	errs.KindInvalidObject:     codes.InvalidArgument,
	errs.KindMalformedData:     codes.DataLoss,
	errs.KindAllocationFailure: codes.ResourceExhausted,
	errs.KindNotAvailable:      codes.NotFound,
	errs.KindOwnerUnresponsive: codes.DeadlineExceeded,
	errs.KindSessionState:      codes.FailedPrecondition,
}

// toStatus converts a handler error into a gRPC status error.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	var e *errs.Error
	switch {
	case errors.Is(err, arbiter.ErrBufferTooSmall):
		return status.Error(codes.OutOfRange, err.Error())
	case errors.As(err, &e):
		msg := e.Detail
		if msg == "" && e.Cause != nil {
			msg = e.Cause.Error()
		}
		return status.Error(kindCodes[e.Kind], msg)
	case errors.Is(err, window.ErrNoWindow):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, window.ErrQueueFull):
		return status.Error(codes.ResourceExhausted, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// fromStatus turns a status returned by an arbiter method back into the
// error the in-process arbiter would have returned.
func fromStatus(op string, f format.ID, err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.OutOfRange:
		return arbiter.ErrBufferTooSmall
	case codes.Unavailable:
		return errs.Wrap(op, f, errs.KindNotAvailable, err)
	case codes.Canceled:
		return fmt.Errorf("%s: %w", op, context.Canceled)
	}
	for kind, code := range kindCodes {
		if code == st.Code() {
			return errs.New(op, f, kind, st.Message())
		}
	}
	return err
}

// sendError maps the status of a Send or Post call to the errors a local
// window.Registry returns.
func sendError(h window.Handle, err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.NotFound:
		return fmt.Errorf("%w: %s", window.ErrNoWindow, h)
	case codes.ResourceExhausted:
		return fmt.Errorf("%w: %s", window.ErrQueueFull, h)
	case codes.DeadlineExceeded:
		return context.DeadlineExceeded
	case codes.Canceled:
		return context.Canceled
	}
	return err
}
