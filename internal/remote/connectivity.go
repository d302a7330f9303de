package remote

import "net"

// Connectivity answers whether the device currently has a usable
// network path. Implementations must not block or perform I/O beyond a
// local kernel query.
type Connectivity interface {
	Online() bool
}

// InterfaceConnectivity reports online when at least one non-loopback
// interface is up and has an address assigned.
type InterfaceConnectivity struct{}

func (InterfaceConnectivity) Online() bool {
	ifaces, err := net.Interfaces()
	if err != nil {
		return false
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err == nil && len(addrs) > 0 {
			return true
		}
	}
	return false
}

// AlwaysOnline is a Connectivity stub for tests and forced-online runs.
type AlwaysOnline struct{}

func (AlwaysOnline) Online() bool { return true }
