// Package bluez implements transport.Transport over RFCOMM using BlueZ's
// D-Bus API.
//
// The listener side registers an org.bluez.Profile1 object with
// Role="server" under the chat service UUID and waits for BlueZ to hand over
// the connected socket through NewConnection. The dial side registers a
// Role="client" profile, pairs the device if needed, calls
// Device1.ConnectProfile and waits for the same callback. Sockets are the
// raw RFCOMM file descriptors wrapped in *os.File.
//
// Only Linux with bluetoothd running is supported; on other platforms every
// operation fails with transport.ErrAdapterUnavailable.
package bluez

import (
	"bluetooth-chat/internal/logging"
)

const (
	bluezService         = "org.bluez"
	profileInterfaceName = "org.bluez.Profile1"
	profileManagerIface  = "org.bluez.ProfileManager1"
	deviceIface          = "org.bluez.Device1"
	adapterIface         = "org.bluez.Adapter1"
	objManagerIface      = "org.freedesktop.DBus.ObjectManager"
)

// DefaultChannel is the fixed RFCOMM channel of the server-side profile.
const DefaultChannel uint16 = 22

// Options configures a Transport.
type Options struct {
	// Adapter is the controller name, e.g. "hci0".
	Adapter string

	// Channel is the RFCOMM channel the server profile binds; 0 means
	// DefaultChannel.
	Channel uint16

	// DiscoverUUID restricts Discover to devices advertising this service
	// UUID. Empty lists every device.
	DiscoverUUID string

	Logger *logging.Logger
}

func (o Options) withDefaults() Options {
	if o.Adapter == "" {
		o.Adapter = "hci0"
	}
	if o.Channel == 0 {
		o.Channel = DefaultChannel
	}
	if o.Logger == nil {
		o.Logger = logging.Nop()
	}
	return o
}
