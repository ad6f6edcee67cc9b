//go:build linux

package bluez

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	dbus "github.com/godbus/dbus/v5"
	"golang.org/x/sys/unix"

	"bluetooth-chat/internal/logging"
	"bluetooth-chat/internal/transport"
)

var pathCounter uint64

// Transport talks to bluetoothd over a private system-bus connection, opened
// on first use.
type Transport struct {
	opts Options
	log  *logging.Logger

	mu     sync.Mutex
	closed bool
	bus    *dbus.Conn
}

// New creates a Transport. No D-Bus traffic happens until the first call.
func New(opts Options) *Transport {
	opts = opts.withDefaults()
	return &Transport{opts: opts, log: opts.Logger.Named("bluez")}
}

func (t *Transport) conn() (*dbus.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, errors.New("bluez: closed")
	}
	if t.bus != nil {
		return t.bus, nil
	}
	c, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("bluez: connect system bus: %w (%v)", transport.ErrAdapterUnavailable, err)
	}
	t.bus = c
	return c, nil
}

// adapter returns the configured adapter's object path, or an error wrapping
// ErrAdapterUnavailable when it is missing or powered off.
func (t *Transport) adapter(bus *dbus.Conn) (dbus.ObjectPath, error) {
	path := dbus.ObjectPath("/org/bluez/" + t.opts.Adapter)
	v, err := bus.Object(bluezService, path).GetProperty(adapterIface + ".Powered")
	if err != nil {
		return "", fmt.Errorf("bluez: adapter %s: %w (%v)", t.opts.Adapter, transport.ErrAdapterUnavailable, err)
	}
	if on, _ := v.Value().(bool); !on {
		return "", fmt.Errorf("bluez: adapter %s powered off: %w", t.opts.Adapter, transport.ErrAdapterUnavailable)
	}
	return path, nil
}

func nextProfilePath(role string) dbus.ObjectPath {
	id := atomic.AddUint64(&pathCounter, 1)
	return dbus.ObjectPath("/org/bluetooth_chat/profile/" + role + "/p" + strconv.FormatUint(id, 10))
}

// registerProfile exports prof at a fresh path and registers it with BlueZ.
// The returned function undoes both.
func (t *Transport) registerProfile(bus *dbus.Conn, prof *profile, role string, uuid string, opts map[string]dbus.Variant) (func(), error) {
	path := nextProfilePath(role)
	if err := bus.Export(prof, path, profileInterfaceName); err != nil {
		return nil, fmt.Errorf("bluez: export %s profile: %w", role, err)
	}
	pm := bus.Object(bluezService, dbus.ObjectPath("/org/bluez"))
	if call := pm.Call(profileManagerIface+".RegisterProfile", 0, path, uuid, opts); call.Err != nil {
		_ = bus.Export(nil, path, profileInterfaceName)
		return nil, fmt.Errorf("bluez: RegisterProfile(%s): %w", role, call.Err)
	}
	t.log.Debug("registered %s profile %s", role, path)
	return func() {
		_ = pm.Call(profileManagerIface+".UnregisterProfile", 0, path).Err
		_ = bus.Export(nil, path, profileInterfaceName)
		t.log.Debug("unregistered %s profile %s", role, path)
	}, nil
}

// Listen registers a server profile on the RFCOMM channel and returns a
// rendezvous that yields its first connection.
func (t *Transport) Listen(svc transport.Service) (transport.Rendezvous, error) {
	bus, err := t.conn()
	if err != nil {
		return nil, err
	}
	if _, err := t.adapter(bus); err != nil {
		return nil, err
	}

	prof := newProfile()
	unregister, err := t.registerProfile(bus, prof, "server", svc.UUID, map[string]dbus.Variant{
		"Name": dbus.MakeVariant(svc.Name),
		"Role": dbus.MakeVariant("server"),
		// BlueZ expects Channel as a uint16.
		"Channel": dbus.MakeVariant(t.opts.Channel),
	})
	if err != nil {
		return nil, err
	}
	return &rendezvous{t: t, bus: bus, prof: prof, unregister: unregister, done: make(chan struct{})}, nil
}

// Dial pairs with the device if needed, asks BlueZ to connect the service and
// waits for the socket. Cancelling ctx abandons the attempt.
func (t *Transport) Dial(ctx context.Context, peer transport.Peer, svc transport.Service) (transport.Socket, error) {
	bus, err := t.conn()
	if err != nil {
		return nil, err
	}
	adapterPath, err := t.adapter(bus)
	if err != nil {
		return nil, err
	}
	devPath := devicePath(adapterPath, peer.Address)
	if devPath == "" {
		return nil, fmt.Errorf("bluez: dial %q: not a device address", peer.Address)
	}

	prof := newProfile()
	unregister, err := t.registerProfile(bus, prof, "client", svc.UUID, map[string]dbus.Variant{
		"Role": dbus.MakeVariant("client"),
	})
	if err != nil {
		return nil, err
	}
	defer func() {
		prof.close()
		unregister()
	}()

	// Pairing needs an Agent registered outside this process.
	devObj := bus.Object(bluezService, devPath)
	if v, err := devObj.GetProperty(deviceIface + ".Paired"); err == nil {
		if paired, ok := v.Value().(bool); ok && !paired {
			if err := devObj.CallWithContext(ctx, deviceIface+".Pair", 0).Err; err != nil {
				return nil, fmt.Errorf("bluez: Pair %s: %w", peer.Address, err)
			}
		}
	}

	if err := devObj.CallWithContext(ctx, deviceIface+".ConnectProfile", 0, svc.UUID).Err; err != nil {
		return nil, fmt.Errorf("bluez: ConnectProfile %s: %w", peer.Address, err)
	}

	select {
	case res := <-prof.ch:
		if peer.Name == "" {
			peer.Name = t.alias(bus, res.dev)
		}
		return newSocket(res.fd, peer)
	case <-ctx.Done():
		return nil, fmt.Errorf("bluez: dial %s: %w", peer.Address, ctx.Err())
	}
}

// CancelDiscovery stops scanning on the adapter. "No discovery started" is
// not an error.
func (t *Transport) CancelDiscovery() error {
	bus, err := t.conn()
	if err != nil {
		return err
	}
	path := dbus.ObjectPath("/org/bluez/" + t.opts.Adapter)
	err = bus.Object(bluezService, path).Call(adapterIface+".StopDiscovery", 0).Err
	var de dbus.Error
	if errors.As(err, &de) && de.Name == "org.bluez.Error.Failed" {
		return nil
	}
	if err != nil {
		return fmt.Errorf("bluez: StopDiscovery: %w", err)
	}
	return nil
}

// Discover scans until ctx is done and returns every device seen that
// advertises Options.DiscoverUUID.
func (t *Transport) Discover(ctx context.Context) ([]transport.Peer, error) {
	bus, err := t.conn()
	if err != nil {
		return nil, err
	}
	adapterPath, err := t.adapter(bus)
	if err != nil {
		return nil, err
	}

	adapterObj := bus.Object(bluezService, adapterPath)
	if err := adapterObj.Call(adapterIface+".StartDiscovery", 0).Err; err != nil {
		t.log.Warn("StartDiscovery: %v", err)
	}
	defer func() { _ = adapterObj.Call(adapterIface+".StopDiscovery", 0).Err }()

	sigCh := make(chan *dbus.Signal, 16)
	bus.Signal(sigCh)
	defer bus.RemoveSignal(sigCh)
	match := []dbus.MatchOption{
		dbus.WithMatchInterface(objManagerIface),
		dbus.WithMatchMember("InterfacesAdded"),
	}
	if err := bus.AddMatchSignal(match...); err != nil {
		return nil, fmt.Errorf("bluez: AddMatchSignal: %w", err)
	}
	defer func() { _ = bus.RemoveMatchSignal(match...) }()

	// Prime from the devices BlueZ already knows about.
	found, err := t.snapshot(bus)
	if err != nil {
		return nil, err
	}

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case sig := <-sigCh:
			if sig == nil || len(sig.Body) < 2 {
				continue
			}
			path, _ := sig.Body[0].(dbus.ObjectPath)
			ifaces, _ := sig.Body[1].(map[string]map[string]dbus.Variant)
			if p, ok := peerFromIfaces(path, ifaces, t.opts.DiscoverUUID); ok {
				found[p.Address] = p
			}
		}
	}

	out := make([]transport.Peer, 0, len(found))
	for _, p := range found {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out, nil
}

func (t *Transport) snapshot(bus *dbus.Conn) (map[string]transport.Peer, error) {
	var objs map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	call := bus.Object(bluezService, "/").Call(objManagerIface+".GetManagedObjects", 0)
	if call.Err != nil {
		return nil, fmt.Errorf("bluez: GetManagedObjects: %w", call.Err)
	}
	if err := call.Store(&objs); err != nil {
		return nil, fmt.Errorf("bluez: decode GetManagedObjects: %w", err)
	}
	out := make(map[string]transport.Peer)
	for path, ifaces := range objs {
		if p, ok := peerFromIfaces(path, ifaces, t.opts.DiscoverUUID); ok {
			out[p.Address] = p
		}
	}
	return out, nil
}

// alias returns the device's display name, or "" if BlueZ does not know it.
func (t *Transport) alias(bus *dbus.Conn, dev dbus.ObjectPath) string {
	v, err := bus.Object(bluezService, dev).GetProperty(deviceIface + ".Alias")
	if err != nil {
		return ""
	}
	s, _ := v.Value().(string)
	return s
}

// Close drops the bus connection; BlueZ releases every profile the
// connection still owns. Idempotent.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if t.bus != nil {
		return t.bus.Close()
	}
	return nil
}

type connResult struct {
	fd  int
	dev dbus.ObjectPath
}

// profile implements org.bluez.Profile1 and hands over at most one socket.
type profile struct {
	ch chan connResult

	mu        sync.Mutex
	delivered bool
	closed    bool
}

func newProfile() *profile {
	return &profile{ch: make(chan connResult, 1)}
}

// Release is called by BlueZ when the profile is being released.
func (p *profile) Release() *dbus.Error { return nil }

// Cancel may be called to indicate a canceled request.
func (p *profile) Cancel() *dbus.Error { return nil }

// RequestDisconnection is ignored; the session closes its own socket.
func (p *profile) RequestDisconnection(_ dbus.ObjectPath) *dbus.Error { return nil }

// NewConnection delivers the RFCOMM socket. Any connection after the first,
// or after close, is rejected and its fd closed.
func (p *profile) NewConnection(dev dbus.ObjectPath, fd dbus.UnixFD, _ map[string]dbus.Variant) *dbus.Error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.delivered || p.closed {
		unix.Close(int(fd))
		return &dbus.Error{Name: "org.bluez.Error.Rejected", Body: []interface{}{"already connected"}}
	}
	p.delivered = true
	p.ch <- connResult{fd: int(fd), dev: dev}
	return nil
}

// close rejects further connections and closes a delivered fd nobody took.
func (p *profile) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	select {
	case res := <-p.ch:
		unix.Close(res.fd)
	default:
	}
}

type rendezvous struct {
	t          *Transport
	bus        *dbus.Conn
	prof       *profile
	unregister func()

	once sync.Once
	done chan struct{}
}

func (r *rendezvous) Accept() (transport.Socket, error) {
	select {
	case res := <-r.prof.ch:
		peer := transport.Peer{Address: macFromPath(res.dev), Name: r.t.alias(r.bus, res.dev)}
		if peer.Address == "" {
			peer.Address = string(res.dev)
		}
		return newSocket(res.fd, peer)
	case <-r.done:
		return nil, fmt.Errorf("bluez: accept: %w", transport.ErrClosed)
	}
}

func (r *rendezvous) Close() error {
	r.once.Do(func() {
		close(r.done)
		r.prof.close()
		r.unregister()
	})
	return nil
}

// socket is an RFCOMM stream. The fd is non-blocking so the runtime poller
// owns it and Close unblocks a pending Read.
type socket struct {
	*os.File
	peer transport.Peer
}

func newSocket(fd int, peer transport.Peer) (transport.Socket, error) {
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("bluez: socket for %s: %w", peer.Address, err)
	}
	return &socket{File: os.NewFile(uintptr(fd), "rfcomm:"+peer.Address), peer: peer}, nil
}

func (s *socket) Peer() transport.Peer { return s.peer }
