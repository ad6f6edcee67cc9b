package chat

import (
	"bytes"
	"sync"
	"sync/atomic"

	"bluetooth-chat/internal/logging"
	"bluetooth-chat/internal/transport"
)

// DefaultReadBufferSize is the read chunk size of a session.
const DefaultReadBufferSize = 1024

// session owns one open socket. The read loop and write may run concurrently;
// they share no buffers.
type session struct {
	gen     uint64
	sock    transport.Socket
	peer    transport.Peer
	bufSize int
	post    func(report)
	emit    func(Event)
	log     *logging.Logger

	wmu       sync.Mutex
	closeOnce sync.Once
	failOnce  sync.Once
	cancelled atomic.Bool
}

// newSession wraps an open socket. Received data and failures go to post;
// DataSent goes straight to emit once the bytes are on the socket.
func newSession(sock transport.Socket, peer transport.Peer, gen uint64, bufSize int, post func(report), emit func(Event), log *logging.Logger) *session {
	if bufSize <= 0 {
		bufSize = DefaultReadBufferSize
	}
	return &session{gen: gen, sock: sock, peer: peer, bufSize: bufSize, post: post, emit: emit, log: log}
}

// readLoop delivers every non-empty read until the socket fails or the
// session is cancelled.
func (s *session) readLoop() {
	buf := make([]byte, s.bufSize)
	for {
		n, err := s.sock.Read(buf)
		if n > 0 {
			s.post(report{kind: reportData, gen: s.gen, data: bytes.Clone(buf[:n])})
		}
		if err != nil {
			s.fail("read", err)
			return
		}
	}
}

// write sends p synchronously. Errors are reported to the manager and not
// returned. It never waits on the manager goroutine, so it is safe from
// inside a Sink.
func (s *session) write(p []byte) {
	data := bytes.Clone(p)

	s.wmu.Lock()
	_, err := s.sock.Write(data)
	s.wmu.Unlock()

	if err != nil {
		s.fail("write", err)
		return
	}
	s.log.Debug("gen %d: wrote %d bytes to %s", s.gen, len(data), s.peer)
	s.emit(Event{Kind: EventDataSent, Data: data})
}

// fail reports the first I/O failure of a live session.
func (s *session) fail(op string, err error) {
	if s.cancelled.Load() {
		s.log.Debug("gen %d: %s after cancel: %v", s.gen, op, err)
		return
	}
	s.failOnce.Do(func() {
		s.post(report{kind: reportSessionFailed, gen: s.gen, err: &Failure{Kind: SessionIOFailure, Op: op, Peer: s.peer, Err: err}})
	})
}

// cancel closes the socket. Idempotent.
func (s *session) cancel() {
	s.closeOnce.Do(func() {
		s.cancelled.Store(true)
		s.sock.Close()
	})
}
