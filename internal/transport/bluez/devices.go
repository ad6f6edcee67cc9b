package bluez

import (
	"regexp"
	"strings"

	dbus "github.com/godbus/dbus/v5"

	"bluetooth-chat/internal/transport"
)

var macPattern = regexp.MustCompile(`^([0-9A-Fa-f]{2}[:_]){5}[0-9A-Fa-f]{2}$`)

// devicePath maps a peer address to its Device1 object path under adapter.
// The address may be a MAC or already an object path. It returns "" when the
// address is neither.
func devicePath(adapter dbus.ObjectPath, addr string) dbus.ObjectPath {
	if strings.HasPrefix(addr, "/") {
		return dbus.ObjectPath(addr)
	}
	if !macPattern.MatchString(addr) {
		return ""
	}
	mac := strings.ToUpper(strings.ReplaceAll(addr, ":", "_"))
	return adapter + dbus.ObjectPath("/dev_"+mac)
}

// macFromPath extracts XX:XX:XX:XX:XX:XX from .../dev_XX_XX_XX_XX_XX_XX.
func macFromPath(p dbus.ObjectPath) string {
	s := string(p)
	idx := strings.LastIndex(s, "/dev_")
	if idx < 0 {
		return ""
	}
	return strings.ReplaceAll(s[idx+5:], "_", ":")
}

func containsUUID(list []string, target string) bool {
	for _, s := range list {
		if strings.EqualFold(s, target) {
			return true
		}
	}
	return false
}

// peerFromIfaces builds a Peer from an ObjectManager entry. It reports false
// for non-device objects and, when uuid is set, for devices that do not
// advertise it.
func peerFromIfaces(path dbus.ObjectPath, ifaces map[string]map[string]dbus.Variant, uuid string) (transport.Peer, bool) {
	props, ok := ifaces[deviceIface]
	if !ok {
		return transport.Peer{}, false
	}
	if uuid != "" {
		v, ok := props["UUIDs"]
		if !ok {
			return transport.Peer{}, false
		}
		uu, _ := v.Value().([]string)
		if !containsUUID(uu, uuid) {
			return transport.Peer{}, false
		}
	}

	var mac, name string
	if v, ok := props["Address"]; ok {
		mac, _ = v.Value().(string)
	}
	if mac == "" {
		mac = macFromPath(path)
	}
	// Alias falls back to Name inside BlueZ, so prefer it.
	for _, key := range []string{"Alias", "Name"} {
		if v, ok := props[key]; ok && name == "" {
			name, _ = v.Value().(string)
		}
	}
	return transport.Peer{Address: mac, Name: name}, true
}
