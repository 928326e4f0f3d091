package remote

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"net"
	"sync"
	"testing"

	"golang.org/x/crypto/ssh"
)

// reply is what the fake host does with one exec request.
type reply struct {
	stdout string
	stderr string
	status uint32
	drop   bool          // close the channel without an exit status
	block  chan struct{} // wait on this before answering
}

// fakeHost is a minimal in-process SSH server that only understands exec.
type fakeHost struct {
	t        *testing.T
	ln       net.Listener
	password string

	mu       sync.Mutex
	commands []string
	handler  func(cmd string) reply
}

func newFakeHost(t *testing.T, handler func(cmd string) reply) *fakeHost {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("host key: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatalf("host signer: %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	h := &fakeHost{t: t, ln: ln, password: "hunter2", handler: handler}

	cfg := &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if c.User() == "mame" && string(pass) == h.password {
				return nil, nil
			}
			return nil, errors.New("denied")
		},
	}
	cfg.AddHostKey(signer)

	go h.serve(cfg)
	t.Cleanup(func() { _ = ln.Close() })
	return h
}

func (h *fakeHost) Addr() string { return h.ln.Addr().String() }

func (h *fakeHost) Commands() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.commands...)
}

func (h *fakeHost) serve(cfg *ssh.ServerConfig) {
	for {
		conn, err := h.ln.Accept()
		if err != nil {
			return
		}
		go h.handleConn(conn, cfg)
	}
}

func (h *fakeHost) handleConn(conn net.Conn, cfg *ssh.ServerConfig) {
	sc, chans, reqs, err := ssh.NewServerConn(conn, cfg)
	if err != nil {
		_ = conn.Close()
		return
	}
	defer func() { _ = sc.Close() }()
	go ssh.DiscardRequests(reqs)

	for nc := range chans {
		if nc.ChannelType() != "session" {
			_ = nc.Reject(ssh.UnknownChannelType, "session only")
			continue
		}
		ch, requests, err := nc.Accept()
		if err != nil {
			return
		}
		go h.handleSession(ch, requests)
	}
}

func (h *fakeHost) handleSession(ch ssh.Channel, requests <-chan *ssh.Request) {
	defer func() { _ = ch.Close() }()

	for req := range requests {
		if req.Type != "exec" {
			if req.WantReply {
				_ = req.Reply(false, nil)
			}
			continue
		}

		var payload struct{ Command string }
		if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
			_ = req.Reply(false, nil)
			return
		}
		_ = req.Reply(true, nil)

		h.mu.Lock()
		h.commands = append(h.commands, payload.Command)
		h.mu.Unlock()

		r := h.handler(payload.Command)
		if r.block != nil {
			<-r.block
		}
		_, _ = ch.Write([]byte(r.stdout))
		_, _ = ch.Stderr().Write([]byte(r.stderr))
		if r.drop {
			return
		}
		_, _ = ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{r.status}))
		return
	}
}
