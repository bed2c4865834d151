package window

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// queueSize bounds each window's pending messages.
const queueSize = 64

// Handler processes one message. Handlers for a window run one at a time on
// that window's own goroutine.
type Handler func(ctx context.Context, m Message)

type envelope struct {
	ctx  context.Context
	msg  Message
	done chan struct{} // nil for posted messages
}

type endpoint struct {
	h       Handle
	handler Handler
	queue   chan envelope
	quit    chan struct{}
}

func (e *endpoint) loop() {
	for {
		select {
		case env := <-e.queue:
			e.handler(env.ctx, env.msg)
			if env.done != nil {
				close(env.done)
			}
		case <-e.quit:
			return
		}
	}
}

// Registry is an in-process Messenger. Each created window gets a goroutine
// that drains its queue in order.
type Registry struct {
	mu      sync.RWMutex
	next    Handle
	windows map[Handle]*endpoint
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{next: 0x10000, windows: make(map[Handle]*endpoint)}
}

// Create registers a new window served by handler and returns its handle.
func (r *Registry) Create(handler Handler) Handle {
	r.mu.Lock()
	r.next++
	ep := &endpoint{
		h:       r.next,
		handler: handler,
		queue:   make(chan envelope, queueSize),
		quit:    make(chan struct{}),
	}
	r.windows[ep.h] = ep
	r.mu.Unlock()

	go ep.loop()
	slog.Debug("window created", "hwnd", ep.h)
	return ep.h
}

// Destroy unregisters h and stops its goroutine. Queued messages are dropped;
// blocked senders see their context expire.
func (r *Registry) Destroy(h Handle) {
	r.mu.Lock()
	ep, ok := r.windows[h]
	delete(r.windows, h)
	r.mu.Unlock()
	if ok {
		close(ep.quit)
		slog.Debug("window destroyed", "hwnd", h)
	}
}

// Exists reports whether h is a live window.
func (r *Registry) Exists(h Handle) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.windows[h]
	return ok
}

func (r *Registry) lookup(h Handle) (*endpoint, error) {
	r.mu.RLock()
	ep, ok := r.windows[h]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoWindow, h)
	}
	return ep, nil
}

// Send implements Messenger.
func (r *Registry) Send(ctx context.Context, h Handle, m Message) error {
	ep, err := r.lookup(h)
	if err != nil {
		return err
	}
	env := envelope{ctx: ctx, msg: m, done: make(chan struct{})}
	select {
	case ep.queue <- env:
	case <-ep.quit:
		return fmt.Errorf("%w: %s", ErrNoWindow, h)
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-env.done:
		return nil
	case <-ep.quit:
		return fmt.Errorf("%w: %s", ErrNoWindow, h)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Post implements Messenger.
func (r *Registry) Post(h Handle, m Message) error {
	ep, err := r.lookup(h)
	if err != nil {
		return err
	}
	select {
	case ep.queue <- envelope{ctx: context.Background(), msg: m}:
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrQueueFull, h)
	}
}
