package domain

import (
	"net"
	"strconv"
)

// HostTarget identifies the single managed machine. It is built once from
// configuration and never mutated.
type HostTarget struct {
	// Address is the network address used for probing and SSH.
	Address string

	// HardwareAddr is the MAC address of the interface woken by WoL.
	HardwareAddr string

	// BroadcastAddr is where the magic packet is sent.
	BroadcastAddr string

	// User is the SSH authentication principal.
	User string

	// Port is the SSH port.
	Port int
}

// SSHAddr returns host:port for dialing.
func (h HostTarget) SSHAddr() string {
	return net.JoinHostPort(h.Address, strconv.Itoa(h.Port))
}

// PowerState is observed from a single reachability probe.
type PowerState int

const (
	Offline PowerState = iota
	Online
)

func (s PowerState) String() string {
	if s == Online {
		return "online"
	}
	return "offline"
}

// PowerStateOf converts a probe answer.
func PowerStateOf(reachable bool) PowerState {
	if reachable {
		return Online
	}
	return Offline
}
