package chat

import (
	"sync/atomic"

	"bluetooth-chat/internal/logging"
	"bluetooth-chat/internal/transport"
)

// listener owns one rendezvous point and accepts at most one socket from it.
type listener struct {
	gen  uint64
	rv   transport.Rendezvous
	post func(report)
	log  *logging.Logger

	cancelled atomic.Bool
}

// newListener binds the rendezvous point. It fails when the transport
// cannot allocate one.
func newListener(tr transport.Transport, svc transport.Service, gen uint64, post func(report), log *logging.Logger) (*listener, error) {
	rv, err := tr.Listen(svc)
	if err != nil {
		return nil, err
	}
	log.Debug("gen %d: bound %s", gen, svc.Name)
	return &listener{gen: gen, rv: rv, post: post, log: log}, nil
}

// run blocks until one socket is accepted or the listener is cancelled, then
// retires the rendezvous point.
func (l *listener) run() {
	sock, err := l.rv.Accept()
	l.rv.Close()
	if err != nil {
		if l.cancelled.Load() {
			l.log.Debug("gen %d: cancelled", l.gen)
			return
		}
		l.post(report{kind: reportAcceptFailed, gen: l.gen, err: &Failure{Kind: RendezvousFailure, Op: "accept", Err: err}})
		return
	}
	l.log.Verbose("gen %d: accepted %s", l.gen, sock.Peer())
	l.post(report{kind: reportAccepted, gen: l.gen, sock: sock, peer: sock.Peer()})
}

func (l *listener) cancel() {
	l.cancelled.Store(true)
	l.rv.Close()
}
