package chat

import (
	"context"
	"time"

	"bluetooth-chat/internal/logging"
	"bluetooth-chat/internal/transport"
)

// connector makes a single outbound attempt to one peer. It never retries.
type connector struct {
	gen     uint64
	peer    transport.Peer
	tr      transport.Transport
	svc     transport.Service
	timeout time.Duration
	post    func(report)
	log     *logging.Logger

	ctx  context.Context
	stop context.CancelFunc
}

// newConnector stores the target; nothing touches the transport until run.
func newConnector(tr transport.Transport, svc transport.Service, peer transport.Peer, gen uint64, timeout time.Duration, post func(report), log *logging.Logger) *connector {
	ctx, stop := context.WithCancel(context.Background())
	return &connector{
		gen:     gen,
		peer:    peer,
		tr:      tr,
		svc:     svc,
		timeout: timeout,
		post:    post,
		log:     log,
		ctx:     ctx,
		stop:    stop,
	}
}

func (c *connector) run() {
	defer c.stop()

	// Discovery slows the connection down.
	if err := c.tr.CancelDiscovery(); err != nil {
		c.log.Debug("cancel discovery: %v", err)
	}

	ctx := c.ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	c.log.Verbose("gen %d: dialing %s", c.gen, c.peer)
	sock, err := c.tr.Dial(ctx, c.peer, c.svc)
	if err != nil {
		if c.ctx.Err() != nil {
			c.log.Debug("gen %d: cancelled", c.gen)
			return
		}
		c.post(report{kind: reportConnectFailed, gen: c.gen, err: &Failure{Kind: ConnectFailure, Op: "dial", Peer: c.peer, Err: err}})
		return
	}
	if c.ctx.Err() != nil {
		c.log.Debug("gen %d: connected after cancel, closing", c.gen)
		sock.Close()
		return
	}

	peer := c.peer
	if peer.Name == "" {
		peer.Name = sock.Peer().Name
	}
	c.post(report{kind: reportConnected, gen: c.gen, sock: sock, peer: peer})
}

// cancel aborts a dial in progress. A socket obtained after cancel is closed
// by run.
func (c *connector) cancel() { c.stop() }
