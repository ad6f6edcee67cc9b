//go:build !linux

package bluez

import (
	"context"
	"fmt"

	"bluetooth-chat/internal/transport"
)

// Transport is unavailable off Linux.
type Transport struct{ opts Options }

func New(opts Options) *Transport { return &Transport{opts: opts.withDefaults()} }

func (t *Transport) unavailable(op string) error {
	return fmt.Errorf("bluez: %s: %w", op, transport.ErrAdapterUnavailable)
}

func (t *Transport) Listen(transport.Service) (transport.Rendezvous, error) {
	return nil, t.unavailable("listen")
}

func (t *Transport) Dial(context.Context, transport.Peer, transport.Service) (transport.Socket, error) {
	return nil, t.unavailable("dial")
}

func (t *Transport) CancelDiscovery() error { return nil }

func (t *Transport) Discover(context.Context) ([]transport.Peer, error) {
	return nil, t.unavailable("discover")
}

func (t *Transport) Close() error { return nil }
