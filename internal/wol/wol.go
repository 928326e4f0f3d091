package wol

import (
	"bytes"
	"fmt"
	"net"
	"strconv"
)

// Port is the discard port conventionally used for magic packets.
const Port = 9

const (
	syncLen     = 6
	repetitions = 16
)

// Sender broadcasts magic packets. A successful send says nothing about
// whether the machine woke; that is only observable by probing.
type Sender struct {
	port int
	dial func(network, address string) (net.Conn, error)
}

func NewSender() *Sender {
	return &Sender{port: Port, dial: net.Dial}
}

// MagicPacket builds the 102 byte payload: six 0xFF bytes followed by the
// hardware address repeated sixteen times.
func MagicPacket(mac string) ([]byte, error) {
	hw, err := net.ParseMAC(mac)
	if err != nil {
		return nil, fmt.Errorf("invalid hardware address %q: %w", mac, err)
	}
	if len(hw) != 6 {
		return nil, fmt.Errorf("invalid hardware address %q: want 6 bytes, got %d", mac, len(hw))
	}

	var buf bytes.Buffer
	buf.Grow(syncLen + repetitions*len(hw))
	buf.Write(bytes.Repeat([]byte{0xFF}, syncLen))
	for i := 0; i < repetitions; i++ {
		buf.Write(hw)
	}
	return buf.Bytes(), nil
}

// Wake sends exactly one magic packet to broadcast. Only local faults
// (bad address, socket error) are reported.
func (s *Sender) Wake(mac, broadcast string) error {
	packet, err := MagicPacket(mac)
	if err != nil {
		return err
	}
	if net.ParseIP(broadcast) == nil {
		return fmt.Errorf("invalid broadcast address %q", broadcast)
	}

	conn, err := s.dial("udp", net.JoinHostPort(broadcast, strconv.Itoa(s.port)))
	if err != nil {
		return fmt.Errorf("open wake socket: %w", err)
	}
	defer func() { _ = conn.Close() }()

	n, err := conn.Write(packet)
	if err != nil {
		return fmt.Errorf("send magic packet: %w", err)
	}
	if n != len(packet) {
		return fmt.Errorf("send magic packet: short write %d/%d", n, len(packet))
	}
	return nil
}
