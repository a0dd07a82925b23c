package transport

import (
	"context"
	"encoding/json"
	"sync"
)

// UnaryHandler serves a single request/response exchange.
type UnaryHandler func(ctx context.Context, payload json.RawMessage) (any, error)

// StreamHandler serves a server-streaming call. Returning nil sends END to
// the caller; returning an error sends ERR. The handler owns the loop and
// must honour ctx, which is cancelled on socket close or caller cancel.
type StreamHandler func(ctx context.Context, payload json.RawMessage, s *ServerStream) error

// Mux routes decoded envelopes to registered operation handlers.
type Mux struct {
	mu     sync.RWMutex
	unary  map[string]UnaryHandler
	stream map[string]StreamHandler
}

func NewMux() *Mux {
	return &Mux{
		unary:  make(map[string]UnaryHandler),
		stream: make(map[string]StreamHandler),
	}
}

func (m *Mux) Unary(op string, h UnaryHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unary[op] = h
}

func (m *Mux) Stream(op string, h StreamHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stream[op] = h
}

func (m *Mux) lookupUnary(op string) (UnaryHandler, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.unary[op]
	return h, ok
}

func (m *Mux) lookupStream(op string) (StreamHandler, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.stream[op]
	return h, ok
}
