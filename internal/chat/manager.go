// Package chat implements the connection manager of a point-to-point chat
// over a stream transport: it listens for one inbound peer, dials outbound
// peers on request, runs the session with whichever connects first, and
// returns to listening after a failure.
//
// A Manager owns a single goroutine. Public operations are commands to that
// goroutine and the listener, connector and session goroutines send it
// reports; nothing else mutates manager state. Each role instance carries a
// generation number, and reports from a cancelled or superseded generation
// are discarded (any socket they carry is closed).
//
// Events are queued without blocking and handed to the Sink, in order, by a
// separate delivery goroutine.
package chat

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"bluetooth-chat/internal/logging"
	"bluetooth-chat/internal/transport"
)

// Config configures a Manager. Transport is required.
type Config struct {
	Transport transport.Transport
	Service   transport.Service

	// Sink receives every event. Nil discards events.
	Sink Sink

	// Logger defaults to logging.Nop().
	Logger *logging.Logger

	// ReadBufferSize is the session read chunk size; 0 means
	// DefaultReadBufferSize.
	ReadBufferSize int

	// ConnectTimeout bounds each outbound attempt; 0 leaves it to the
	// transport.
	ConnectTimeout time.Duration
}

type opKind int

const (
	opStart opKind = iota
	opStop
	opConnect
	opClose
)

type command struct {
	op    opKind
	peer  transport.Peer
	reply chan error
}

type reportKind int

const (
	reportAccepted reportKind = iota
	reportAcceptFailed
	reportConnected
	reportConnectFailed
	reportData
	reportSessionFailed
)

func (k reportKind) String() string {
	switch k {
	case reportAccepted:
		return "accepted"
	case reportAcceptFailed:
		return "accept failed"
	case reportConnected:
		return "connected"
	case reportConnectFailed:
		return "connect failed"
	case reportData:
		return "data"
	case reportSessionFailed:
		return "session failed"
	default:
		return "unknown"
	}
}

// report is what a role goroutine sends to the manager.
type report struct {
	kind reportKind
	gen  uint64
	sock transport.Socket
	peer transport.Peer
	data []byte
	err  error
}

// Manager is the connection manager. Create it with New and release it with
// Close.
type Manager struct {
	cfg    Config
	events *dispatcher
	log    *logging.Logger

	cmds    chan command
	reports chan report
	done    chan struct{}
	wg      sync.WaitGroup

	// Snapshots published by the manager goroutine for Write and
	// CurrentState.
	current atomic.Int32
	live    atomic.Pointer[session]

	// Owned by the manager goroutine.
	state       State
	gen         uint64
	listener    *listener
	connector   *connector
	session     *session
	adapterDown bool
}

// New creates a Manager in StateNone and starts its goroutine.
func New(cfg Config) *Manager {
	sink := cfg.Sink
	if sink == nil {
		sink = nopSink{}
	}
	m := &Manager{
		cfg:     cfg,
		events:  newDispatcher(sink),
		log:     cfg.Logger,
		cmds:    make(chan command),
		reports: make(chan report, 64),
		done:    make(chan struct{}),
	}
	if m.log == nil {
		m.log = logging.Nop()
	}
	m.log = m.log.Named("chat")
	go m.loop()
	return m
}

// Start begins listening for an inbound connection. It does nothing while
// connecting, connected, or already listening. The returned error is a
// *Failure when the rendezvous point cannot be bound.
func (m *Manager) Start() error {
	return m.do(command{op: opStart})
}

// Stop cancels every role and returns to StateNone without relistening.
func (m *Manager) Stop() error {
	return m.do(command{op: opStop})
}

// Connect starts an outbound attempt to peer, superseding any attempt in
// flight. Listening stops and a live session is dropped.
func (m *Manager) Connect(peer transport.Peer) error {
	if peer.Address == "" {
		return ErrNoPeer
	}
	return m.do(command{op: opConnect, peer: peer})
}

// Write sends p to the connected peer. It is dropped unless the manager is
// connected. Failures surface as events, never to the caller. Every write
// that reaches the socket yields DataSent, even when the session is torn
// down right after. Write may be called from a Sink.
func (m *Manager) Write(p []byte) {
	if len(p) == 0 || m.CurrentState() != StateConnected {
		return
	}
	if s := m.live.Load(); s != nil {
		s.write(p)
	}
}

// CurrentState returns the state as of the last applied transition.
func (m *Manager) CurrentState() State {
	return State(m.current.Load())
}

// Close stops everything, ends the manager goroutine, waits for every role
// goroutine to exit and for queued events to reach the Sink. Later
// operations return ErrClosed. Close must not be called from a Sink.
func (m *Manager) Close() error {
	err := m.do(command{op: opClose})
	m.wg.Wait()
	// Reports that raced with shutdown may still hold sockets.
	for drained := false; !drained; {
		select {
		case r := <-m.reports:
			if r.sock != nil {
				r.sock.Close()
			}
		default:
			drained = true
		}
	}
	m.events.close()
	if errors.Is(err, ErrClosed) {
		return nil
	}
	return err
}

func (m *Manager) do(c command) error {
	c.reply = make(chan error, 1)
	select {
	case m.cmds <- c:
	case <-m.done:
		return ErrClosed
	}
	select {
	case err := <-c.reply:
		return err
	case <-m.done:
		return ErrClosed
	}
}

// post hands a report to the manager goroutine. After Close the report is
// dropped and its socket closed.
func (m *Manager) post(r report) {
	select {
	case m.reports <- r:
	case <-m.done:
		if r.sock != nil {
			r.sock.Close()
		}
	}
}

func (m *Manager) spawn(f func()) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		f()
	}()
}

func (m *Manager) loop() {
	defer close(m.done)
	for {
		select {
		case c := <-m.cmds:
			c.reply <- m.apply(c)
			if c.op == opClose {
				return
			}
		case r := <-m.reports:
			m.integrate(r)
		}
	}
}

func (m *Manager) apply(c command) error {
	switch c.op {
	case opStart:
		return m.start()
	case opConnect:
		m.connect(c.peer)
	case opStop, opClose:
		m.stop()
	}
	return nil
}

func (m *Manager) start() error {
	switch m.state {
	case StateConnecting, StateConnected:
		return nil
	case StateListening:
		if m.listener != nil {
			return nil
		}
	}

	m.cancelConnector()
	l, err := newListener(m.cfg.Transport, m.cfg.Service, m.nextGen(), m.post, m.log.Named("listener"))
	if err != nil {
		f := classify("listen", err)
		m.log.Error("%v", f)
		if f.Kind == AdapterUnavailable && !m.adapterDown {
			m.adapterDown = true
			m.notice(NoticeAdapterUnavailable)
		}
		m.setState(StateNone)
		return f
	}
	m.adapterDown = false
	m.listener = l
	m.spawn(l.run)
	m.setState(StateListening)
	return nil
}

func (m *Manager) connect(peer transport.Peer) {
	m.cancelConnector()
	m.cancelListener()
	m.cancelSession()

	c := newConnector(m.cfg.Transport, m.cfg.Service, peer, m.nextGen(), m.cfg.ConnectTimeout, m.post, m.log.Named("connector"))
	m.connector = c
	m.spawn(c.run)
	m.setState(StateConnecting)
}

func (m *Manager) stop() {
	m.cancelConnector()
	m.cancelListener()
	m.cancelSession()
	m.setState(StateNone)
}

func (m *Manager) integrate(r report) {
	switch r.kind {
	case reportAccepted:
		if m.listener == nil || m.listener.gen != r.gen {
			m.discard(r)
			return
		}
		m.listener = nil
		m.promote(r.sock, r.peer)

	case reportAcceptFailed:
		if m.listener == nil || m.listener.gen != r.gen {
			m.discard(r)
			return
		}
		// The listener has retired; the next Start relaunches it.
		m.listener = nil
		m.log.Error("%v", r.err)

	case reportConnected:
		if m.connector == nil || m.connector.gen != r.gen {
			m.discard(r)
			return
		}
		m.connector = nil
		m.promote(r.sock, r.peer)

	case reportConnectFailed:
		if m.connector == nil || m.connector.gen != r.gen {
			m.discard(r)
			return
		}
		m.connector = nil
		m.log.Warn("%v", r.err)
		m.fail(NoticeConnectFailed)

	case reportData:
		if m.session == nil || m.session.gen != r.gen {
			m.discard(r)
			return
		}
		m.emit(Event{Kind: EventDataReceived, Data: r.data})

	case reportSessionFailed:
		if m.session == nil || m.session.gen != r.gen {
			m.discard(r)
			return
		}
		m.log.Warn("%v", r.err)
		m.cancelSession()
		m.fail(NoticeDisconnected)
	}
}

// promote turns a freshly connected socket into the single live session.
func (m *Manager) promote(sock transport.Socket, peer transport.Peer) {
	m.cancelListener()
	m.cancelConnector()
	m.cancelSession()

	s := newSession(sock, peer, m.nextGen(), m.cfg.ReadBufferSize, m.post, m.emit, m.log.Named("session"))
	m.session = s
	m.live.Store(s)
	m.log.Info("connected to %s", peer)
	m.emit(Event{Kind: EventPeerIdentified, Peer: peer})
	m.setState(StateConnected)
	// The read loop starts after the events above so no data precedes them.
	m.spawn(s.readLoop)
}

// fail surfaces text, drops to StateNone and relistens once.
func (m *Manager) fail(text string) {
	m.notice(text)
	m.setState(StateNone)
	m.start() //nolint:errcheck // logged and surfaced by start
}

func (m *Manager) discard(r report) {
	if r.sock != nil {
		r.sock.Close()
	}
	m.log.Debug("%s: %s from generation %d", StaleReport, r.kind, r.gen)
}

func (m *Manager) cancelListener() {
	if m.listener != nil {
		m.listener.cancel()
		m.listener = nil
	}
}

func (m *Manager) cancelConnector() {
	if m.connector != nil {
		m.connector.cancel()
		m.connector = nil
	}
}

func (m *Manager) cancelSession() {
	if m.session != nil {
		m.live.Store(nil)
		m.session.cancel()
		m.session = nil
	}
}

func (m *Manager) nextGen() uint64 {
	m.gen++
	return m.gen
}

func (m *Manager) setState(s State) {
	if m.state == s {
		return
	}
	m.state = s
	m.current.Store(int32(s))
	m.emit(Event{Kind: EventStateChanged, State: s})
}

func (m *Manager) notice(text string) {
	m.emit(Event{Kind: EventNotice, Text: text})
}

// emit queues e for the Sink. It never blocks.
func (m *Manager) emit(e Event) {
	m.events.push(e)
}
