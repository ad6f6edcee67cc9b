package chat

import (
	"errors"
	"fmt"

	"bluetooth-chat/internal/transport"
)

var (
	// ErrClosed is returned by operations on a closed Manager.
	ErrClosed = errors.New("chat: manager closed")

	// ErrNoPeer is returned by Connect when the peer has no address.
	ErrNoPeer = errors.New("chat: peer address required")
)

// FailureKind classifies failures inside the manager.
type FailureKind int

const (
	// AdapterUnavailable: the transport cannot be used at all.
	AdapterUnavailable FailureKind = iota + 1
	// RendezvousFailure: the listener could not bind or accept.
	RendezvousFailure
	// ConnectFailure: an outbound attempt did not produce a socket.
	ConnectFailure
	// SessionIOFailure: a read or write on a live session failed.
	SessionIOFailure
	// StaleReport: a cancelled or superseded role reported late.
	StaleReport
)

func (k FailureKind) String() string {
	switch k {
	case AdapterUnavailable:
		return "adapter unavailable"
	case RendezvousFailure:
		return "rendezvous failure"
	case ConnectFailure:
		return "connect failure"
	case SessionIOFailure:
		return "session i/o failure"
	case StaleReport:
		return "stale report"
	default:
		return "unknown failure"
	}
}

// Failure is a classified error with the operation and peer involved.
type Failure struct {
	Kind FailureKind
	Op   string         // "listen", "accept", "dial", "read", "write"
	Peer transport.Peer // zero for listener failures
	Err  error
}

func (f *Failure) Error() string {
	if f.Peer.Address != "" {
		return fmt.Sprintf("chat: %s %s: %s: %v", f.Op, f.Peer, f.Kind, f.Err)
	}
	return fmt.Sprintf("chat: %s: %s: %v", f.Op, f.Kind, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// classify maps a listen error to its failure kind.
func classify(op string, err error) *Failure {
	kind := RendezvousFailure
	if errors.Is(err, transport.ErrAdapterUnavailable) {
		kind = AdapterUnavailable
	}
	return &Failure{Kind: kind, Op: op, Err: err}
}
