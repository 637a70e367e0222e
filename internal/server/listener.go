package server

import (
	"errors"
	"net"
	"sync"
)

// Listener wraps a net.Listener so the coordinator can confirm that the
// accept loop has stopped handing out connections.
type Listener struct {
	net.Listener

	mu        sync.Mutex
	closed    bool
	inflight  int
	confirmed bool
	done      chan struct{}
}

// Listen announces on the local network address and wraps the listener.
func Listen(network, address string) (*Listener, error) {
	ln, err := net.Listen(network, address)
	if err != nil {
		return nil, err
	}

	return NewListener(ln), nil
}

// NewListener wraps an existing listener.
func NewListener(ln net.Listener) *Listener {
	return &Listener{
		Listener: ln,
		done:     make(chan struct{}),
	}
}

// Accept waits for the next connection. After Close it fails with net.ErrClosed.
func (l *Listener) Accept() (net.Conn, error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, net.ErrClosed
	}

	l.inflight++
	l.mu.Unlock()

	conn, err := l.Listener.Accept()

	l.mu.Lock()
	l.inflight--
	l.confirmLocked()
	l.mu.Unlock()

	return conn, err
}

// Close stops accepting new connections. Closing twice is a no-op.
func (l *Listener) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}

	l.closed = true
	l.mu.Unlock()

	err := l.Listener.Close()
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}

	l.mu.Lock()
	l.confirmLocked()
	l.mu.Unlock()

	return err
}

// Done is closed once the listener is closed and no Accept call is in flight.
func (l *Listener) Done() <-chan struct{} {
	return l.done
}

// confirmLocked closes done when the listener can no longer hand out
// connections. Caller must hold l.mu.
func (l *Listener) confirmLocked() {
	if l.closed && l.inflight == 0 && !l.confirmed {
		l.confirmed = true
		close(l.done)
	}
}
