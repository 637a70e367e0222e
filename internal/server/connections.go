package server

import (
	"context"
	"net"
	"sync"
)

type connEntry struct {
	idle    bool
	closing bool
}

// ConnRegistry keeps bookkeeping for open inbound connections.
//
// It holds non-owning references: the HTTP server owns each connection and
// reports its lifecycle through Track, SetIdle and Untrack. The registry only
// closes a connection when EndAll or DestroyAll asks it to, and forgets it at
// that moment.
type ConnRegistry struct {
	mu      sync.Mutex
	conns   map[net.Conn]*connEntry
	ending  bool
	changed chan struct{}
}

// NewConnRegistry creates an empty registry.
func NewConnRegistry() *ConnRegistry {
	return &ConnRegistry{
		conns:   make(map[net.Conn]*connEntry),
		changed: make(chan struct{}),
	}
}

// Track adds a connection accepted by the listener. Connections tracked after
// EndAll are already marked for a polite close.
func (r *ConnRegistry) Track(conn net.Conn) {
	if conn == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[conn]; ok {
		return
	}

	r.conns[conn] = &connEntry{closing: r.ending}
	r.signalLocked()
}

// Untrack removes a connection that closed on its own.
func (r *ConnRegistry) Untrack(conn net.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[conn]; !ok {
		return
	}

	delete(r.conns, conn)
	r.signalLocked()
}

// SetIdle records whether the connection is between requests. A connection
// marked for a polite close is closed as soon as it turns idle.
func (r *ConnRegistry) SetIdle(conn net.Conn, idle bool) {
	r.mu.Lock()

	entry, ok := r.conns[conn]
	if !ok {
		r.mu.Unlock()
		return
	}

	entry.idle = idle

	closeNow := idle && entry.closing
	if closeNow {
		delete(r.conns, conn)
		r.signalLocked()
	}
	r.mu.Unlock()

	if closeNow {
		_ = conn.Close()
	}
}

// Len returns the number of tracked connections.
func (r *ConnRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.conns)
}

// EndAll asks every tracked connection to close politely: idle connections
// are closed now and active ones right after their in-flight request. It
// returns the number of connections closed immediately.
func (r *ConnRegistry) EndAll() int {
	r.mu.Lock()

	r.ending = true

	var idle []net.Conn

	for conn, entry := range r.conns {
		entry.closing = true

		if entry.idle {
			idle = append(idle, conn)
			delete(r.conns, conn)
		}
	}

	if len(idle) > 0 {
		r.signalLocked()
	}
	r.mu.Unlock()

	for _, conn := range idle {
		_ = conn.Close()
	}

	return len(idle)
}

// DestroyAll force-closes every connection still tracked and returns how many
// it closed.
func (r *ConnRegistry) DestroyAll() int {
	r.mu.Lock()

	r.ending = true

	remaining := make([]net.Conn, 0, len(r.conns))
	for conn := range r.conns {
		remaining = append(remaining, conn)
	}

	clear(r.conns)

	if len(remaining) > 0 {
		r.signalLocked()
	}
	r.mu.Unlock()

	for _, conn := range remaining {
		_ = conn.Close()
	}

	return len(remaining)
}

// Wait blocks until no connection is tracked or ctx is done.
func (r *ConnRegistry) Wait(ctx context.Context) error {
	for {
		r.mu.Lock()
		if len(r.conns) == 0 {
			r.mu.Unlock()
			return nil
		}

		changed := r.changed
		r.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// signalLocked wakes every Wait caller. Caller must hold r.mu.
func (r *ConnRegistry) signalLocked() {
	close(r.changed)
	r.changed = make(chan struct{})
}
