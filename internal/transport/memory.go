package transport

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/akutz/memconn"
)

// memNetwork is memconn's buffered in-memory network.
const memNetwork = "memb"

// Memory is an in-process Transport. Every Memory has a name that acts as its
// address; Dial(Peer{Address: name}) reaches the rendezvous point that the
// Memory with that name currently has open. A package-level registry maps
// addresses to open rendezvous points, so all Memory values in a process
// share one "radio".
type Memory struct {
	name string

	down    atomic.Bool
	cancels atomic.Int64
}

var (
	registryMu sync.Mutex
	registry   = map[string]*memRendezvous{}
)

// NewMemory creates an in-process transport addressed by name.
func NewMemory(name string) *Memory {
	return &Memory{name: name}
}

// Peer returns the identity other transports see when this one dials them.
func (m *Memory) Peer() Peer { return Peer{Address: m.name, Name: m.name} }

// SetAvailable simulates the adapter being switched off or on.
func (m *Memory) SetAvailable(ok bool) { m.down.Store(!ok) }

// DiscoveryCancels reports how many times CancelDiscovery was called.
func (m *Memory) DiscoveryCancels() int64 { return m.cancels.Load() }

func memAddr(name, uuid string) string {
	return "btchat/" + name + "/" + strings.ToLower(uuid)
}

func (m *Memory) Listen(svc Service) (Rendezvous, error) {
	if m.down.Load() {
		return nil, fmt.Errorf("memory: listen %s: %w", m.name, ErrAdapterUnavailable)
	}
	addr := memAddr(m.name, svc.UUID)

	registryMu.Lock()
	defer registryMu.Unlock()
	if _, busy := registry[addr]; busy {
		return nil, fmt.Errorf("memory: listen %s: address in use", addr)
	}
	ln, err := memconn.Listen(memNetwork, addr)
	if err != nil {
		return nil, fmt.Errorf("memory: listen %s: %w", addr, err)
	}
	rv := &memRendezvous{
		owner:  m.name,
		addr:   addr,
		ln:     ln,
		closed: make(chan struct{}),
	}
	registry[addr] = rv
	return rv, nil
}

type dialResult struct {
	conn net.Conn
	err  error
}

func (m *Memory) Dial(ctx context.Context, peer Peer, svc Service) (Socket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.down.Load() {
		return nil, fmt.Errorf("memory: dial %s: %w", peer.Address, ErrAdapterUnavailable)
	}
	addr := memAddr(peer.Address, svc.UUID)

	registryMu.Lock()
	rv := registry[addr]
	registryMu.Unlock()
	if rv == nil {
		return nil, fmt.Errorf("memory: dial %s: %w", peer.Address, ErrRefused)
	}

	local := m.Peer()
	ch := make(chan dialResult, 1)
	go func() {
		// Dials to one rendezvous are serialized so Accept can pair each
		// connection with the identity queued for it.
		rv.dialMu.Lock()
		defer rv.dialMu.Unlock()
		rv.push(local)
		c, err := memconn.Dial(memNetwork, addr)
		if err != nil {
			rv.dropLast()
		}
		ch <- dialResult{conn: c, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("memory: dial %s: %w (%v)", peer.Address, ErrRefused, r.err)
		}
		return &memSocket{Conn: r.conn, peer: peer}, nil
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.conn != nil {
				r.conn.Close()
			}
		}()
		return nil, fmt.Errorf("memory: dial %s: %w", peer.Address, ctx.Err())
	}
}

func (m *Memory) CancelDiscovery() error {
	m.cancels.Add(1)
	return nil
}

// Discover lists the names of every other Memory with an open rendezvous.
func (m *Memory) Discover(ctx context.Context) ([]Peer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	registryMu.Lock()
	for _, rv := range registry {
		if rv.owner != m.name {
			seen[rv.owner] = true
		}
	}
	registryMu.Unlock()

	out := make([]Peer, 0, len(seen))
	for name := range seen {
		out = append(out, Peer{Address: name, Name: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out, nil
}

type memRendezvous struct {
	owner string
	addr  string
	ln    net.Listener

	dialMu sync.Mutex

	mu      sync.Mutex
	pending []Peer

	once   sync.Once
	closed chan struct{}
}

func (r *memRendezvous) push(p Peer) {
	r.mu.Lock()
	r.pending = append(r.pending, p)
	r.mu.Unlock()
}

func (r *memRendezvous) dropLast() {
	r.mu.Lock()
	if n := len(r.pending); n > 0 {
		r.pending = r.pending[:n-1]
	}
	r.mu.Unlock()
}

func (r *memRendezvous) pop() (Peer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pending) == 0 {
		return Peer{}, false
	}
	p := r.pending[0]
	r.pending = r.pending[1:]
	return p, true
}

func (r *memRendezvous) Accept() (Socket, error) {
	conn, err := r.ln.Accept()
	if err != nil {
		select {
		case <-r.closed:
			return nil, fmt.Errorf("memory: accept %s: %w", r.addr, ErrClosed)
		default:
			return nil, fmt.Errorf("memory: accept %s: %w", r.addr, err)
		}
	}
	peer, ok := r.pop()
	if !ok {
		peer = Peer{Address: conn.RemoteAddr().String()}
	}
	return &memSocket{Conn: conn, peer: peer}, nil
}

func (r *memRendezvous) Close() error {
	var err error
	r.once.Do(func() {
		close(r.closed)
		registryMu.Lock()
		if registry[r.addr] == r {
			delete(registry, r.addr)
		}
		registryMu.Unlock()
		err = r.ln.Close()
	})
	return err
}

type memSocket struct {
	net.Conn
	peer Peer
}

func (s *memSocket) Peer() Peer { return s.peer }
