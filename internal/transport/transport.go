// Package transport defines the stream-socket abstraction the chat core runs
// on. A Transport produces Sockets either by accepting on a Rendezvous or by
// dialing a Peer. Implementations live in this package (Memory, for tests and
// loopback demos) and in the bluez subpackage (RFCOMM via BlueZ D-Bus).
package transport

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrAdapterUnavailable means the radio transport cannot be used at all.
	ErrAdapterUnavailable = errors.New("adapter unavailable")

	// ErrClosed is returned by Rendezvous.Accept after Close.
	ErrClosed = errors.New("rendezvous closed")

	// ErrRefused means no rendezvous point answered for the dialed peer.
	ErrRefused = errors.New("connection refused")
)

// Peer identifies a remote endpoint. Address is what Dial needs (a MAC, a
// BlueZ object path, or an in-memory name); Name is for display only.
type Peer struct {
	Address string
	Name    string
}

// String returns the display name, falling back to the address.
func (p Peer) String() string {
	if p.Name != "" {
		return p.Name
	}
	return p.Address
}

// Service is the well-known service record a rendezvous point is bound
// under and a dial targets.
type Service struct {
	Name string
	UUID string
}

// Socket is a duplex byte stream to one peer. Read and Write may be used
// concurrently from different goroutines. Close must unblock a pending Read.
type Socket interface {
	io.ReadWriteCloser
	Peer() Peer
}

// Rendezvous is a server-side listening point.
type Rendezvous interface {
	// Accept blocks until an inbound socket arrives or Close is called, in
	// which case it returns an error wrapping ErrClosed.
	Accept() (Socket, error)

	// Close is idempotent.
	Close() error
}

// Transport abstracts the adapter. The chat core uses only this interface so
// tests can substitute in-memory or scripted implementations.
type Transport interface {
	// Listen binds a rendezvous point under svc. It returns an error wrapping
	// ErrAdapterUnavailable when the adapter cannot allocate one.
	Listen(svc Service) (Rendezvous, error)

	// Dial performs one blocking connection attempt to peer. Cancelling ctx
	// aborts the attempt.
	Dial(ctx context.Context, peer Peer, svc Service) (Socket, error)

	// CancelDiscovery stops any in-progress device scan on the adapter.
	CancelDiscovery() error
}

// Discoverer is implemented by transports that can list nearby peers.
type Discoverer interface {
	Discover(ctx context.Context) ([]Peer, error)
}
