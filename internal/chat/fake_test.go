package chat

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"bluetooth-chat/internal/transport"
)

// fakeSocket is a scripted transport.Socket. Bytes fed with deliver are
// returned by Read; hangup makes Read return io.EOF.
type fakeSocket struct {
	peer transport.Peer

	in     chan []byte
	eof    chan struct{}
	closed chan struct{}

	hangOnce  sync.Once
	closeOnce sync.Once

	mu       sync.Mutex
	written  bytes.Buffer
	writeErr error
}

func newFakeSocket(addr string) *fakeSocket {
	return &fakeSocket{
		peer:   transport.Peer{Address: addr, Name: addr},
		in:     make(chan []byte, 16),
		eof:    make(chan struct{}),
		closed: make(chan struct{}),
	}
}

func (s *fakeSocket) Peer() transport.Peer { return s.peer }

func (s *fakeSocket) Read(p []byte) (int, error) {
	// Pending data wins over a hangup that happened after it.
	select {
	case b := <-s.in:
		return copy(p, b), nil
	default:
	}
	select {
	case b := <-s.in:
		return copy(p, b), nil
	case <-s.eof:
		return 0, io.EOF
	case <-s.closed:
		return 0, net.ErrClosed
	}
}

func (s *fakeSocket) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return 0, s.writeErr
	}
	select {
	case <-s.closed:
		return 0, net.ErrClosed
	default:
	}
	return s.written.Write(p)
}

func (s *fakeSocket) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeSocket) deliver(b []byte) { s.in <- b }

func (s *fakeSocket) hangup() { s.hangOnce.Do(func() { close(s.eof) }) }

func (s *fakeSocket) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *fakeSocket) failWrites(err error) {
	s.mu.Lock()
	s.writeErr = err
	s.mu.Unlock()
}

func (s *fakeSocket) wrote() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return bytes.Clone(s.written.Bytes())
}

// fakeRendezvous hands out sockets pushed with offer.
type fakeRendezvous struct {
	incoming chan transport.Socket
	errs     chan error
	closed   chan struct{}
	once     sync.Once
}

func (r *fakeRendezvous) Accept() (transport.Socket, error) {
	select {
	case s := <-r.incoming:
		return s, nil
	case err := <-r.errs:
		return nil, err
	case <-r.closed:
		return nil, fmt.Errorf("fake: accept: %w", transport.ErrClosed)
	}
}

func (r *fakeRendezvous) Close() error {
	r.once.Do(func() { close(r.closed) })
	return nil
}

func (r *fakeRendezvous) offer(s transport.Socket) { r.incoming <- s }

func (r *fakeRendezvous) isClosed() bool {
	select {
	case <-r.closed:
		return true
	default:
		return false
	}
}

type dialResult struct {
	sock transport.Socket
	err  error
}

// fakeDial is one pending Dial call; the test completes it with succeed or
// refuse.
type fakeDial struct {
	peer transport.Peer
	ctx  context.Context
	resp chan dialResult
}

func (d *fakeDial) succeed(s transport.Socket) { d.resp <- dialResult{sock: s} }

func (d *fakeDial) refuse() {
	d.resp <- dialResult{err: fmt.Errorf("fake: dial %s: %w", d.peer.Address, transport.ErrRefused)}
}

// fakeTransport records every call. Dial blocks until the test answers it or,
// unless ignoreCancel is set, until its context is cancelled.
type fakeTransport struct {
	rvs   chan *fakeRendezvous
	dials chan *fakeDial

	mu           sync.Mutex
	listenErr    error
	ignoreCancel bool
	calls        []string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		rvs:   make(chan *fakeRendezvous, 64),
		dials: make(chan *fakeDial, 64),
	}
}

func (f *fakeTransport) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeTransport) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeTransport) setListenErr(err error) {
	f.mu.Lock()
	f.listenErr = err
	f.mu.Unlock()
}

func (f *fakeTransport) Listen(svc transport.Service) (transport.Rendezvous, error) {
	f.record("listen")
	f.mu.Lock()
	err := f.listenErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	rv := &fakeRendezvous{
		incoming: make(chan transport.Socket, 4),
		errs:     make(chan error, 1),
		closed:   make(chan struct{}),
	}
	f.rvs <- rv
	return rv, nil
}

func (f *fakeTransport) Dial(ctx context.Context, peer transport.Peer, svc transport.Service) (transport.Socket, error) {
	f.record("dial " + peer.Address)
	d := &fakeDial{peer: peer, ctx: ctx, resp: make(chan dialResult, 1)}
	f.dials <- d

	f.mu.Lock()
	ignore := f.ignoreCancel
	f.mu.Unlock()
	if ignore {
		r := <-d.resp
		return r.sock, r.err
	}
	select {
	case r := <-d.resp:
		return r.sock, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeTransport) CancelDiscovery() error {
	f.record("cancel discovery")
	return nil
}

func (f *fakeTransport) nextRendezvous(t *testing.T) *fakeRendezvous {
	t.Helper()
	select {
	case rv := <-f.rvs:
		return rv
	case <-time.After(2 * time.Second):
		t.Fatal("no rendezvous point was bound")
		return nil
	}
}

func (f *fakeTransport) nextDial(t *testing.T) *fakeDial {
	t.Helper()
	select {
	case d := <-f.dials:
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("no dial was attempted")
		return nil
	}
}

func (f *fakeTransport) expectNoRendezvous(t *testing.T) {
	t.Helper()
	select {
	case <-f.rvs:
		t.Fatal("unexpected rendezvous point")
	case <-time.After(50 * time.Millisecond):
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
