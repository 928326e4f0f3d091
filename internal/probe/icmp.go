package probe

import (
	"context"
	"errors"
	"net"
	"os"
	"sync/atomic"
	"time"

	"github.com/MrSnakeDoc/powerdeck/internal/logger"
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

const (
	protocolICMP = 1 // ipv4.ICMPTypeEcho.Protocol()

	// DefaultTimeout is the protocol timeout of a single echo.
	DefaultTimeout = time.Second
)

var errNoIPv4 = errors.New("no IPv4 address")

// listenFunc opens an ICMP socket; swapped in tests.
type listenFunc func(network, address string) (*icmp.PacketConn, error)

// ICMP answers "is the host up" with a single echo request per call.
// It holds no per-host state and is safe for concurrent use.
type ICMP struct {
	timeout time.Duration
	log     logger.Logger
	listen  listenFunc
	seq     atomic.Uint32
}

func NewICMP(timeout time.Duration, log logger.Logger) *ICMP {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &ICMP{timeout: timeout, log: log, listen: icmp.ListenPacket}
}

// IsOnline sends one echo request and reports whether a matching reply
// arrived. Resolution failures, socket errors and silence all yield false.
func (p *ICMP) IsOnline(ctx context.Context, host string) bool {
	// wall clock bound: resolution + socket setup + one echo
	ctx, cancel := context.WithTimeout(ctx, 2*p.timeout)
	defer cancel()

	ip, err := resolve(ctx, host)
	if err != nil {
		p.log.Debug("probe: resolve failed", logger.String("host", host), logger.Error(err))
		return false
	}

	ok, err := p.echo(ctx, ip)
	if err != nil {
		p.log.Debug("probe: echo failed", logger.String("host", host), logger.Error(err))
		return false
	}
	return ok
}

func resolve(ctx context.Context, host string) (net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		if v4 := ip.To4(); v4 != nil {
			return v4, nil
		}
		return nil, errNoIPv4
	}
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, err
	}
	for _, a := range addrs {
		if v4 := a.IP.To4(); v4 != nil {
			return v4, nil
		}
	}
	return nil, errNoIPv4
}

// echo prefers an unprivileged datagram socket and falls back to a raw one.
func (p *ICMP) echo(ctx context.Context, ip net.IP) (bool, error) {
	conn, err := p.listen("udp4", "0.0.0.0")
	privileged := false
	if err != nil {
		conn, err = p.listen("ip4:icmp", "0.0.0.0")
		if err != nil {
			return false, err
		}
		privileged = true
	}
	defer func() { _ = conn.Close() }()

	var dst net.Addr = &net.UDPAddr{IP: ip}
	if privileged {
		dst = &net.IPAddr{IP: ip}
	}

	id := os.Getpid() & 0xffff
	seq := int(p.seq.Add(1) & 0xffff)
	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Body: &icmp.Echo{ID: id, Seq: seq, Data: []byte("powerdeck")},
	}
	wire, err := msg.Marshal(nil)
	if err != nil {
		return false, err
	}

	deadline := time.Now().Add(p.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return false, err
	}
	if _, err := conn.WriteTo(wire, dst); err != nil {
		return false, err
	}

	buf := make([]byte, 1500)
	for {
		n, peer, err := conn.ReadFrom(buf)
		if err != nil {
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				return false, nil
			}
			return false, err
		}
		if !sameIP(peer, ip) {
			continue
		}
		reply, err := icmp.ParseMessage(protocolICMP, buf[:n])
		if err != nil || reply.Type != ipv4.ICMPTypeEchoReply {
			continue
		}
		body, ok := reply.Body.(*icmp.Echo)
		if !ok || body.Seq != seq {
			continue
		}
		// the kernel rewrites the identifier on datagram sockets
		if privileged && body.ID != id {
			continue
		}
		return true, nil
	}
}

func sameIP(addr net.Addr, ip net.IP) bool {
	switch a := addr.(type) {
	case *net.UDPAddr:
		return a.IP.Equal(ip)
	case *net.IPAddr:
		return a.IP.Equal(ip)
	}
	return false
}
