package remote

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrSnakeDoc/powerdeck/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T, h *fakeHost, password string) *SSH {
	t.Helper()
	c, err := NewSSH(Config{
		Addr:        h.Addr(),
		User:        "mame",
		Password:    password,
		DialTimeout: 2 * time.Second,
	}, logger.New("error", false))
	require.NoError(t, err)
	return c
}

func TestExecuteTrimsStdout(t *testing.T) {
	h := newFakeHost(t, func(cmd string) reply {
		return reply{stdout: "  up 3 hours\n"}
	})
	c := newClient(t, h, "hunter2")

	out, err := c.Execute(context.Background(), "uptime -p")
	require.NoError(t, err)
	assert.Equal(t, "up 3 hours", out)
	assert.Equal(t, []string{"uptime -p"}, h.Commands())
}

func TestExecuteNonzeroExitIsCommandError(t *testing.T) {
	stderr := "gs: line 3: ./server: No such file or directory\n\tat boot\n"
	h := newFakeHost(t, func(cmd string) reply {
		return reply{stderr: stderr, status: 127}
	})
	c := newClient(t, h, "hunter2")

	_, err := c.Execute(context.Background(), "/srv/games/svc1/gs start")
	require.Error(t, err)

	var ce *CommandError
	require.True(t, errors.As(err, &ce), "want *CommandError, got %T", err)
	assert.Equal(t, "/srv/games/svc1/gs start", ce.Command)
	assert.Equal(t, 127, ce.ExitStatus)
	assert.Equal(t, stderr, ce.Stderr, "stderr must be kept byte-for-byte")
	assert.False(t, IsConnection(err))
}

func TestPathExists(t *testing.T) {
	h := newFakeHost(t, func(cmd string) reply {
		if cmd == "test -e '/srv/games/svc1/gs'" {
			return reply{}
		}
		return reply{status: 1}
	})
	c := newClient(t, h, "hunter2")

	ok, err := c.PathExists(context.Background(), "/srv/games/svc1/gs")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.PathExists(context.Background(), "/srv/games/missing/gs")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDroppedSessionIsConnectionError(t *testing.T) {
	h := newFakeHost(t, func(cmd string) reply {
		return reply{drop: true}
	})
	c := newClient(t, h, "hunter2")

	_, err := c.Execute(context.Background(), "sudo poweroff")
	require.Error(t, err)
	assert.True(t, IsConnection(err))
	assert.True(t, Dropped(err))
	assert.False(t, IsCommand(err))
}

func TestAuthFailureIsConnectionError(t *testing.T) {
	h := newFakeHost(t, func(cmd string) reply { return reply{} })
	c := newClient(t, h, "wrong")

	_, err := c.Execute(context.Background(), "echo ok")
	var ce *ConnectionError
	require.True(t, errors.As(err, &ce), "want *ConnectionError, got %v", err)
	assert.Equal(t, OpHandshake, ce.Op)
	assert.Empty(t, h.Commands())

	ok, err := c.PathExists(context.Background(), "/tmp")
	assert.False(t, ok)
	assert.True(t, IsConnection(err))
}

func TestDialFailureIsConnectionError(t *testing.T) {
	h := newFakeHost(t, func(cmd string) reply { return reply{} })
	addr := h.Addr()
	_ = h.ln.Close()

	c, err := NewSSH(Config{Addr: addr, User: "mame", Password: "x", DialTimeout: time.Second}, logger.Nop())
	require.NoError(t, err)

	_, err = c.Execute(context.Background(), "echo ok")
	var ce *ConnectionError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, OpDial, ce.Op)
}

func TestContextCancelUnblocksRun(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	h := newFakeHost(t, func(cmd string) reply { return reply{block: block} })
	c := newClient(t, h, "hunter2")

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err := c.Execute(ctx, "sleep 600")
	require.Error(t, err)
	assert.True(t, IsConnection(err))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.False(t, Dropped(err), "a cancelled call is not a dropped session")
}

func TestNewSSHAuthConfig(t *testing.T) {
	_, err := NewSSH(Config{Addr: "127.0.0.1:22", User: "mame"}, logger.Nop())
	require.Error(t, err)

	_, err = NewSSH(Config{Addr: "127.0.0.1:22", User: "mame", KeyFile: filepath.Join(t.TempDir(), "missing")}, logger.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read ssh key")

	bad := filepath.Join(t.TempDir(), "id_bad")
	require.NoError(t, os.WriteFile(bad, []byte("not a key"), 0o600))
	_, err = NewSSH(Config{Addr: "127.0.0.1:22", User: "mame", KeyFile: bad}, logger.Nop())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "parse ssh key"))
}

func TestCommandErrorMessage(t *testing.T) {
	err := &CommandError{Command: "false", ExitStatus: 1}
	assert.Equal(t, `command "false" exited with status 1`, err.Error())

	err = &CommandError{Command: "x", ExitStatus: 2, Stderr: "boom\n"}
	assert.Equal(t, `command "x" exited with status 2: boom`, err.Error())
}
