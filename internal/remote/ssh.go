package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/MrSnakeDoc/powerdeck/internal/domain"
	"github.com/MrSnakeDoc/powerdeck/internal/logger"
	"golang.org/x/crypto/ssh"
)

const defaultDialTimeout = 8 * time.Second

// Config describes how to reach and authenticate against the host.
type Config struct {
	Addr          string // host:port
	User          string
	KeyFile       string
	KeyPassphrase string
	Password      string
	DialTimeout   time.Duration
	ClientVersion string
}

// SSH runs one-shot commands on the managed host. Each call opens its own
// connection and session and closes both before returning; nothing is
// pooled between calls.
type SSH struct {
	addr        string
	client      *ssh.ClientConfig
	dialTimeout time.Duration
	log         logger.Logger
}

// NewSSH reads the key material once. Host key verification is disabled:
// the target is a single machine on a private network whose key may change
// on reinstall.
func NewSSH(cfg Config, log logger.Logger) (*SSH, error) {
	auth, err := authMethods(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}

	return &SSH{
		addr: cfg.Addr,
		client: &ssh.ClientConfig{
			User:            cfg.User,
			Auth:            auth,
			HostKeyCallback: ssh.InsecureIgnoreHostKey(), // #nosec G106
			Timeout:         cfg.DialTimeout,
			ClientVersion:   clientVersion(cfg.ClientVersion),
		},
		dialTimeout: cfg.DialTimeout,
		log:         log,
	}, nil
}

func clientVersion(v string) string {
	if v == "" {
		return ""
	}
	return "SSH-2.0-" + v
}

func authMethods(cfg Config) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if cfg.KeyFile != "" {
		pem, err := os.ReadFile(cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("read ssh key: %w", err)
		}
		var signer ssh.Signer
		if cfg.KeyPassphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(pem, []byte(cfg.KeyPassphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(pem)
		}
		if err != nil {
			return nil, fmt.Errorf("parse ssh key %s: %w", cfg.KeyFile, err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if cfg.Password != "" {
		methods = append(methods, ssh.Password(cfg.Password))
	}
	if len(methods) == 0 {
		return nil, errors.New("no ssh authentication method configured")
	}
	return methods, nil
}

// Execute runs cmd and returns its trimmed stdout. A nonzero exit yields a
// *CommandError, anything else a *ConnectionError.
func (s *SSH) Execute(ctx context.Context, cmd string) (string, error) {
	stdout, _, err := s.run(ctx, cmd)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(stdout), nil
}

// PathExists checks for path with `test -e`. A missing path is (false, nil);
// only connection faults are returned as errors.
func (s *SSH) PathExists(ctx context.Context, path string) (bool, error) {
	_, _, err := s.run(ctx, "test -e "+domain.ShellQuote(path))
	if err == nil {
		return true, nil
	}
	if IsCommand(err) {
		return false, nil
	}
	return false, err
}

func (s *SSH) run(ctx context.Context, cmd string) (string, string, error) {
	start := time.Now()

	client, err := s.connect(ctx)
	if err != nil {
		return "", "", err
	}
	defer func() { _ = client.Close() }()

	session, err := client.NewSession()
	if err != nil {
		return "", "", &ConnectionError{Addr: s.addr, Op: OpSession, Err: err}
	}
	defer func() { _ = session.Close() }()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(cmd) }()

	select {
	case <-ctx.Done():
		// closing the client unblocks Run
		_ = client.Close()
		<-done
		return stdout.String(), stderr.String(), &ConnectionError{Addr: s.addr, Op: OpRun, Err: ctx.Err()}

	case err = <-done:
	}

	s.log.Debug("ssh: command finished",
		logger.String("cmd", cmd),
		logger.Duration("took", time.Since(start)),
		logger.Bool("ok", err == nil),
	)

	if err == nil {
		return stdout.String(), stderr.String(), nil
	}

	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return stdout.String(), stderr.String(), &CommandError{
			Command:    cmd,
			ExitStatus: exitErr.ExitStatus(),
			Stdout:     stdout.String(),
			Stderr:     stderr.String(),
		}
	}
	// ExitMissingError and transport errors: the session went away
	return stdout.String(), stderr.String(), &ConnectionError{Addr: s.addr, Op: OpRun, Err: err}
}

func (s *SSH) connect(ctx context.Context) (*ssh.Client, error) {
	dialer := net.Dialer{Timeout: s.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return nil, &ConnectionError{Addr: s.addr, Op: OpDial, Err: err}
	}

	deadline := time.Now().Add(s.dialTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	c, chans, reqs, err := ssh.NewClientConn(conn, s.addr, s.client)
	if err != nil {
		_ = conn.Close()
		return nil, &ConnectionError{Addr: s.addr, Op: OpHandshake, Err: err}
	}
	_ = conn.SetDeadline(time.Time{})

	return ssh.NewClient(c, chans, reqs), nil
}
