package remote

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Connection stages reported in ConnectionError.Op.
const (
	OpDial      = "dial"
	OpHandshake = "handshake"
	OpSession   = "session"
	OpRun       = "run"
)

// ConnectionError covers every failure to reach or keep talking to the
// host: dial, authentication, session setup, or a session that dropped
// before the remote process reported an exit status.
type ConnectionError struct {
	Addr string
	Op   string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("ssh %s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// CommandError means the remote process ran and exited nonzero.
// Stderr is kept byte-for-byte.
type CommandError struct {
	Command    string
	ExitStatus int
	Stdout     string
	Stderr     string
}

func (e *CommandError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		msg = strings.TrimSpace(e.Stdout)
	}
	if msg == "" {
		return fmt.Sprintf("command %q exited with status %d", e.Command, e.ExitStatus)
	}
	return fmt.Sprintf("command %q exited with status %d: %s", e.Command, e.ExitStatus, msg)
}

// Dropped reports whether err is a session lost mid-command. A host that
// is powering off or rebooting typically produces exactly this.
func Dropped(err error) bool {
	var ce *ConnectionError
	if !errors.As(err, &ce) || ce.Op != OpRun {
		return false
	}
	return !errors.Is(ce.Err, context.Canceled) && !errors.Is(ce.Err, context.DeadlineExceeded)
}

// IsConnection reports whether err is a ConnectionError.
func IsConnection(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}

// IsCommand reports whether err is a CommandError.
func IsCommand(err error) bool {
	var ce *CommandError
	return errors.As(err, &ce)
}
