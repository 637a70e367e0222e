//go:build unit

package server_test

import (
	"context"
	"sync"
	"time"

	"github.com/LerianStudio/opsdemo/internal/log"
	"github.com/LerianStudio/opsdemo/internal/server"
)

// recordingLogger is a Logger that records messages and can return a Sync error.
type recordingLogger struct {
	mu       sync.Mutex
	messages []string
	syncErr  error
	synced   int
}

func (l *recordingLogger) Log(_ context.Context, _ log.Level, msg string, _ ...log.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.messages = append(l.messages, msg)
}

func (l *recordingLogger) With(_ ...log.Field) log.Logger { return l }
func (l *recordingLogger) WithGroup(_ string) log.Logger  { return l }
func (l *recordingLogger) Enabled(_ log.Level) bool       { return true }

func (l *recordingLogger) Sync(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.synced++

	return l.syncErr
}

func (l *recordingLogger) getMessages() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	cp := make([]string, len(l.messages))
	copy(cp, l.messages)

	return cp
}

func (l *recordingLogger) count(msg string) int {
	n := 0

	for _, m := range l.getMessages() {
		if m == msg {
			n++
		}
	}

	return n
}

// exitRecorder stands in for os.Exit.
type exitRecorder struct {
	mu    sync.Mutex
	codes []int
}

func (e *exitRecorder) exit(code int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.codes = append(e.codes, code)
}

func (e *exitRecorder) getCodes() []int {
	e.mu.Lock()
	defer e.mu.Unlock()

	cp := make([]int, len(e.codes))
	copy(cp, e.codes)

	return cp
}

// fakeListener satisfies server.ListenerCloser.
type fakeListener struct {
	closeErr error
	done     chan struct{}
	once     sync.Once
	closes   int
	mu       sync.Mutex
}

func newFakeListener(closeErr error) *fakeListener {
	return &fakeListener{closeErr: closeErr, done: make(chan struct{})}
}

func (f *fakeListener) Close() error {
	f.mu.Lock()
	f.closes++
	f.mu.Unlock()

	f.confirm()

	return f.closeErr
}

func (f *fakeListener) Done() <-chan struct{} { return f.done }

func (f *fakeListener) confirm() {
	f.once.Do(func() { close(f.done) })
}

type fixture struct {
	coord  *server.Coordinator
	hooks  *server.HookRegistry
	conns  *server.ConnRegistry
	exits  *exitRecorder
	logger *recordingLogger
}

func newFixture(opts ...server.ExitOption) *fixture {
	f := &fixture{
		hooks:  server.NewHookRegistry(),
		conns:  server.NewConnRegistry(),
		exits:  &exitRecorder{},
		logger: &recordingLogger{},
	}

	opts = append([]server.ExitOption{server.WithExitFunc(f.exits.exit)}, opts...)
	f.coord = server.NewCoordinator(f.conns, f.hooks, server.NewExitPolicy(opts...), f.logger).
		WithHardDeadline(5 * time.Second).
		WithGraceWindow(time.Second)

	return f
}

func waitDone(coord *server.Coordinator, timeout time.Duration) bool {
	select {
	case <-coord.Done():
		return true
	case <-time.After(timeout):
		return false
	}
}
