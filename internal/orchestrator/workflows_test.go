package orchestrator

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/powerdeck/internal/domain"
	"github.com/MrSnakeDoc/powerdeck/internal/remote"
)

func TestStartServiceFromOffline(t *testing.T) {
	// offline at the power check, then online on the second poll
	h := newHarness(&fakeProber{script: []bool{false, false, true}, fallback: true}, &fakeExec{})

	res := h.o.StartService(context.Background(), h.request("svc1", domain.ActionStart))

	require.Equal(t, domain.OutcomeSettled, res.Outcome, res.Message)
	assert.Equal(t, []domain.Phase{
		domain.PhaseIdle,
		domain.PhaseEnsuringPower,
		domain.PhaseAwaitingOnline,
		domain.PhaseAwaitingReady,
		domain.PhaseExecuting,
		domain.PhaseReporting,
		domain.PhaseSettled,
	}, res.Phases)
	assert.Equal(t, 1, h.waker.Calls())
	assert.Equal(t, []string{"/srv/games/svc1/gs"}, h.exec.Paths())
	assert.Equal(t, []string{"'/srv/games/svc1/gs' start"}, h.exec.Commands())
	assert.Equal(t, "Valheim", h.presence.Active())
	require.NotNil(t, res.Endpoint)
	assert.Equal(t, "203.0.113.7:2456", res.Endpoint.Address)
	assert.Equal(t, "pw", res.Endpoint.Password)
	assert.Equal(t, domain.SeveritySuccess, h.rep.Last().Severity)
	assert.False(t, h.locker.Held("service:svc1"), "lease must be released")
}

func TestStartServiceAlreadyOnlineSendsNoWake(t *testing.T) {
	h := newHarness(&fakeProber{fallback: true}, &fakeExec{})

	res := h.o.StartService(context.Background(), h.request("svc2", domain.ActionStart))

	require.Equal(t, domain.OutcomeSettled, res.Outcome)
	assert.Zero(t, h.waker.Calls())
	assert.NotContains(t, res.Phases, domain.PhaseAwaitingOnline)
	assert.Nil(t, res.Endpoint, "svc2 has no connection info")
}

func TestStartServiceNeverOnline(t *testing.T) {
	h := newHarness(&fakeProber{fallback: false}, &fakeExec{})

	res := h.o.StartService(context.Background(), h.request("svc1", domain.ActionStart))

	assert.Equal(t, domain.OutcomeTimedOut, res.Outcome)
	assert.True(t, errors.Is(res.Err, domain.ErrTimeout))
	assert.Equal(t, domain.PhaseTimedOut, res.Phases[len(res.Phases)-1])
	assert.Empty(t, h.exec.Commands(), "no command may run when the host never came up")
	assert.Empty(t, h.exec.Paths())
	assert.Equal(t, 1, h.waker.Calls())
	assert.Equal(t, "", h.presence.Active())
}

func TestStartServiceReadinessTimeout(t *testing.T) {
	exec := &fakeExec{exists: func(string) (bool, error) { return false, nil }}
	h := newHarness(&fakeProber{fallback: true}, exec)

	res := h.o.StartService(context.Background(), h.request("svc1", domain.ActionStart))

	assert.Equal(t, domain.OutcomeTimedOut, res.Outcome)
	assert.Contains(t, res.Phases, domain.PhaseAwaitingReady)
	assert.NotContains(t, res.Phases, domain.PhaseExecuting)
	assert.Empty(t, exec.Commands())
}

func TestStartUnmanagedUsesLiveness(t *testing.T) {
	h := newHarness(&fakeProber{fallback: true}, &fakeExec{})

	res := h.o.StartService(context.Background(), h.request("mc", domain.ActionStart))

	require.Equal(t, domain.OutcomeSettled, res.Outcome)
	assert.Equal(t, []string{"echo ok", "systemctl start mc"}, h.exec.Commands())
	assert.Empty(t, h.exec.Paths())
}

func TestStartServiceCommandErrorVerbatim(t *testing.T) {
	stderr := "Error: ./valheim_server.x86_64: cannot execute binary file\n"
	cmdErr := &remote.CommandError{Command: "'/srv/games/svc1/gs' start", ExitStatus: 126, Stderr: stderr}
	exec := &fakeExec{handler: func(string) (string, error) { return "", cmdErr }}
	h := newHarness(&fakeProber{fallback: true}, exec)

	res := h.o.StartService(context.Background(), h.request("svc1", domain.ActionStart))

	require.Equal(t, domain.OutcomeFailed, res.Outcome)
	var got *remote.CommandError
	require.True(t, errors.As(res.Err, &got))
	assert.Equal(t, stderr, got.Stderr)
	assert.Equal(t, "'/srv/games/svc1/gs' start", got.Command)
	assert.Contains(t, res.Message, strings.TrimSpace(stderr))
	assert.Equal(t, domain.SeverityError, h.rep.Last().Severity)
	assert.Equal(t, "", h.presence.Active())
}

func TestStartWakeFailure(t *testing.T) {
	h := newHarness(&fakeProber{fallback: false}, &fakeExec{})
	h.waker.err = errors.New("network is unreachable")

	res := h.o.StartService(context.Background(), h.request("svc1", domain.ActionStart))

	assert.Equal(t, domain.OutcomeFailed, res.Outcome)
	assert.Contains(t, res.Message, "wake signal")
	assert.Empty(t, h.exec.Commands())
}

func TestUnknownServiceRejectedBeforeRemoteCalls(t *testing.T) {
	h := newHarness(&fakeProber{fallback: true}, &fakeExec{})

	for name, run := range map[string]func() *domain.Result{
		"start": func() *domain.Result { return h.o.StartService(context.Background(), h.request("ghost", "")) },
		"stop":  func() *domain.Result { return h.o.StopService(context.Background(), h.request("ghost", ""), true) },
		"run":   func() *domain.Result { return h.o.RunAction(context.Background(), h.request("ghost", domain.ActionBackup)) },
	} {
		t.Run(name, func(t *testing.T) {
			res := run()
			assert.Equal(t, domain.OutcomeFailed, res.Outcome)
			assert.True(t, errors.Is(res.Err, domain.ErrUnknownService))
		})
	}
	assert.Zero(t, h.prober.Calls())
	assert.Zero(t, h.waker.Calls())
	assert.Empty(t, h.exec.Commands())
}

func TestStopService(t *testing.T) {
	h := newHarness(&fakeProber{fallback: true}, &fakeExec{})
	h.presence.SetActive(context.Background(), "Valheim")

	res := h.o.StopService(context.Background(), h.request("svc1", ""), false)

	require.Equal(t, domain.OutcomeSettled, res.Outcome)
	assert.Equal(t, []domain.Phase{domain.PhaseIdle, domain.PhaseExecuting, domain.PhaseReporting, domain.PhaseSettled}, res.Phases)
	assert.Equal(t, []string{"'/srv/games/svc1/gs' stop"}, h.exec.Commands())
	assert.Equal(t, "", h.presence.Active())
	assert.Nil(t, res.PowerDown)
	assert.Zero(t, h.prober.Calls(), "stop alone never probes")
}

func TestStopWithPowerDownNeverOffline(t *testing.T) {
	h := newHarness(&fakeProber{fallback: true}, &fakeExec{})

	res := h.o.StopService(context.Background(), h.request("svc1", ""), true)

	assert.Equal(t, domain.OutcomeSettled, res.Outcome, "stop outcome is independent of the power-down")
	require.NotNil(t, res.PowerDown)
	assert.Equal(t, domain.OutcomeTimedOut, res.PowerDown.Outcome)
	assert.Equal(t, WorkflowPowerDown, res.PowerDown.Action)
	assert.Equal(t, []string{"'/srv/games/svc1/gs' stop", "sudo poweroff"}, h.exec.Commands())
	assert.Contains(t, h.clock.Sleeps(), DefaultTiming().PowerDownDelay)
	assert.False(t, h.locker.Held(hostPowerKey))
}

func TestStopWithPowerDownAlreadyOffline(t *testing.T) {
	h := newHarness(&fakeProber{fallback: false}, &fakeExec{})

	res := h.o.StopService(context.Background(), h.request("svc1", ""), true)

	require.NotNil(t, res.PowerDown)
	assert.Equal(t, domain.OutcomeSettled, res.PowerDown.Outcome)
	assert.Equal(t, "The host is already offline", res.PowerDown.Message)
	assert.Equal(t, []string{"'/srv/games/svc1/gs' stop"}, h.exec.Commands())
}

func TestStopFailureSkipsPowerDown(t *testing.T) {
	exec := &fakeExec{handler: func(string) (string, error) {
		return "", &remote.ConnectionError{Op: remote.OpDial, Err: errors.New("no route to host")}
	}}
	h := newHarness(&fakeProber{fallback: true}, exec)

	res := h.o.StopService(context.Background(), h.request("svc1", ""), true)

	assert.Equal(t, domain.OutcomeFailed, res.Outcome)
	assert.True(t, remote.IsConnection(res.Err))
	assert.Nil(t, res.PowerDown)
	assert.Len(t, exec.Commands(), 1)
}

func TestRunActionOversizedOutput(t *testing.T) {
	body := strings.Repeat("backup chunk written\n", 60)
	raw := "\x1b[32m" + body + "\x1b[0m"
	exec := &fakeExec{handler: func(string) (string, error) { return raw, nil }}
	h := newHarness(&fakeProber{fallback: false}, exec)

	res := h.o.RunAction(context.Background(), h.request("svc2", domain.ActionBackup))

	require.Equal(t, domain.OutcomeSettled, res.Outcome)
	assert.True(t, res.Oversized)
	assert.Equal(t, body, res.Output, "output is stripped of escapes but never truncated")
	assert.Greater(t, len(res.Output), domain.OversizeThreshold)
	assert.Equal(t, []string{"'/srv/games/svc2/gs' backup"}, exec.Commands())
	assert.Zero(t, h.prober.Calls(), "actions do not touch power state")
	assert.Equal(t, []domain.Phase{domain.PhaseIdle, domain.PhaseExecuting, domain.PhaseReporting, domain.PhaseSettled}, res.Phases)
}

func TestRunActionSmallOutput(t *testing.T) {
	exec := &fakeExec{handler: func(string) (string, error) { return "\x1b[1mOK\x1b[0m", nil }}
	h := newHarness(&fakeProber{}, exec)

	res := h.o.RunAction(context.Background(), h.request("svc1", domain.ActionDetails))

	require.Equal(t, domain.OutcomeSettled, res.Outcome)
	assert.False(t, res.Oversized)
	assert.Equal(t, "OK", res.Output)
}

func TestRunActionRejections(t *testing.T) {
	h := newHarness(&fakeProber{}, &fakeExec{})

	res := h.o.RunAction(context.Background(), h.request("svc1", "explode"))
	assert.Equal(t, domain.OutcomeFailed, res.Outcome)
	assert.True(t, errors.Is(res.Err, domain.ErrUnknownAction))

	res = h.o.RunAction(context.Background(), h.request("mc", domain.ActionBackup))
	assert.Equal(t, domain.OutcomeFailed, res.Outcome)
	assert.True(t, errors.Is(res.Err, domain.ErrActionNotSupported))

	assert.Empty(t, h.exec.Commands())
}

func TestLeaseContention(t *testing.T) {
	h := newHarness(&fakeProber{fallback: true}, &fakeExec{})
	release, err := h.locker.Acquire(context.Background(), "service:svc1")
	require.NoError(t, err)

	res := h.o.StartService(context.Background(), h.request("svc1", domain.ActionStart))

	assert.Equal(t, domain.OutcomeAlreadyInProgress, res.Outcome)
	assert.True(t, errors.Is(res.Err, domain.ErrAlreadyInProgress))
	assert.Zero(t, h.prober.Calls())
	assert.Empty(t, h.exec.Commands())

	// other services are not blocked
	res = h.o.RunAction(context.Background(), h.request("svc2", domain.ActionDetails))
	assert.Equal(t, domain.OutcomeSettled, res.Outcome)

	release()
	res = h.o.StartService(context.Background(), h.request("svc1", domain.ActionStart))
	assert.Equal(t, domain.OutcomeSettled, res.Outcome)
}

func TestPowerLeaseSharedByPowerWorkflows(t *testing.T) {
	h := newHarness(&fakeProber{fallback: true}, &fakeExec{})
	release, err := h.locker.Acquire(context.Background(), hostPowerKey)
	require.NoError(t, err)
	defer release()

	for _, res := range []*domain.Result{
		h.o.PowerOn(context.Background(), h.request("", "")),
		h.o.PowerOff(context.Background(), h.request("", "")),
		h.o.Reboot(context.Background(), h.request("", "")),
	} {
		assert.Equal(t, domain.OutcomeAlreadyInProgress, res.Outcome, res.Action)
	}
}

func TestConcurrentStartsOnlyOneRuns(t *testing.T) {
	gate := make(chan struct{})
	exec := &fakeExec{exists: func(string) (bool, error) {
		<-gate
		return true, nil
	}}
	h := newHarness(&fakeProber{fallback: true}, exec)

	var wg sync.WaitGroup
	results := make([]*domain.Result, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0] = h.o.StartService(context.Background(), h.request("svc1", domain.ActionStart))
	}()

	require.Eventually(t, func() bool { return h.locker.Held("service:svc1") }, timeoutShort, tick)
	results[1] = h.o.StartService(context.Background(), h.request("svc1", domain.ActionStart))
	close(gate)
	wg.Wait()

	assert.Equal(t, domain.OutcomeAlreadyInProgress, results[1].Outcome)
	assert.Equal(t, domain.OutcomeSettled, results[0].Outcome)
}

func TestPowerOn(t *testing.T) {
	t.Run("already online", func(t *testing.T) {
		h := newHarness(&fakeProber{fallback: true}, &fakeExec{})
		res := h.o.PowerOn(context.Background(), h.request("", ""))
		assert.Equal(t, domain.OutcomeSettled, res.Outcome)
		assert.Equal(t, "The host is already online", res.Message)
		assert.Zero(t, h.waker.Calls())
	})

	t.Run("wakes", func(t *testing.T) {
		h := newHarness(&fakeProber{script: []bool{false, false}, fallback: true}, &fakeExec{})
		res := h.o.PowerOn(context.Background(), h.request("", ""))
		assert.Equal(t, domain.OutcomeSettled, res.Outcome)
		assert.Equal(t, 1, h.waker.Calls())
		assert.Equal(t, []domain.Phase{domain.PhaseIdle, domain.PhaseEnsuringPower, domain.PhaseAwaitingOnline, domain.PhaseSettled}, res.Phases)
	})

	t.Run("never online", func(t *testing.T) {
		h := newHarness(&fakeProber{fallback: false}, &fakeExec{})
		res := h.o.PowerOn(context.Background(), h.request("", ""))
		assert.Equal(t, domain.OutcomeTimedOut, res.Outcome)
		assert.Equal(t, 1, h.waker.Calls())
	})
}

func TestPowerOff(t *testing.T) {
	t.Run("already offline", func(t *testing.T) {
		h := newHarness(&fakeProber{fallback: false}, &fakeExec{})
		res := h.o.PowerOff(context.Background(), h.request("", ""))
		assert.Equal(t, domain.OutcomeSettled, res.Outcome)
		assert.Empty(t, h.exec.Commands())
	})

	t.Run("dropped session tolerated", func(t *testing.T) {
		exec := &fakeExec{handler: func(string) (string, error) {
			return "", &remote.ConnectionError{Op: remote.OpRun, Err: io.EOF}
		}}
		h := newHarness(&fakeProber{script: []bool{true}, fallback: false}, exec)
		res := h.o.PowerOff(context.Background(), h.request("", ""))
		assert.Equal(t, domain.OutcomeSettled, res.Outcome, res.Message)
		assert.Equal(t, []string{"sudo poweroff"}, exec.Commands())
	})

	t.Run("sudo refused", func(t *testing.T) {
		exec := &fakeExec{handler: func(cmd string) (string, error) {
			return "", &remote.CommandError{Command: cmd, ExitStatus: 1, Stderr: "sudo: a password is required\n"}
		}}
		h := newHarness(&fakeProber{fallback: true}, exec)
		res := h.o.PowerOff(context.Background(), h.request("", ""))
		assert.Equal(t, domain.OutcomeFailed, res.Outcome)
		assert.Contains(t, res.Message, "a password is required")
	})

	t.Run("never offline", func(t *testing.T) {
		h := newHarness(&fakeProber{fallback: true}, &fakeExec{})
		res := h.o.PowerOff(context.Background(), h.request("", ""))
		assert.Equal(t, domain.OutcomeTimedOut, res.Outcome)
	})
}

func TestRebootOfflineFailsWithoutRemoteCalls(t *testing.T) {
	h := newHarness(&fakeProber{fallback: false}, &fakeExec{})

	res := h.o.Reboot(context.Background(), h.request("", ""))

	assert.Equal(t, domain.OutcomeFailed, res.Outcome)
	assert.True(t, errors.Is(res.Err, domain.ErrHostOffline))
	assert.Contains(t, res.Message, "already offline, cannot reboot")
	assert.Empty(t, h.exec.Commands())
	assert.Zero(t, h.waker.Calls())
}

func TestReboot(t *testing.T) {
	// online, then down for the blip, then back
	h := newHarness(&fakeProber{script: []bool{true, false, false}, fallback: true}, &fakeExec{})

	res := h.o.Reboot(context.Background(), h.request("", ""))

	require.Equal(t, domain.OutcomeSettled, res.Outcome, res.Message)
	assert.Equal(t, []string{"sudo reboot"}, h.exec.Commands())
	assert.Equal(t, []domain.Phase{
		domain.PhaseIdle, domain.PhaseEnsuringPower, domain.PhaseExecuting,
		domain.PhaseAwaitingOffline, domain.PhaseAwaitingOnline, domain.PhaseSettled,
	}, res.Phases)
	assert.Contains(t, h.clock.Sleeps(), DefaultTiming().RebootDelay)
}

func TestRebootNeverSeenOfflineStillWaitsForOnline(t *testing.T) {
	h := newHarness(&fakeProber{fallback: true}, &fakeExec{})

	res := h.o.Reboot(context.Background(), h.request("", ""))

	assert.Equal(t, domain.OutcomeSettled, res.Outcome)
	assert.Greater(t, h.rep.revised, 0, "the missed blip is reported as a warning revision")
}

func TestRebootNeverBack(t *testing.T) {
	h := newHarness(&fakeProber{script: []bool{true}, fallback: false}, &fakeExec{})

	res := h.o.Reboot(context.Background(), h.request("", ""))

	assert.Equal(t, domain.OutcomeTimedOut, res.Outcome)
}

func TestPanicRecoveredAtBoundary(t *testing.T) {
	exec := &fakeExec{handler: func(string) (string, error) { panic("nil map write") }}
	h := newHarness(&fakeProber{}, exec)

	res := h.o.RunAction(context.Background(), h.request("svc1", domain.ActionUpdate))

	assert.Equal(t, domain.OutcomeFailed, res.Outcome)
	assert.Contains(t, res.Message, "unexpected error: nil map write")
	assert.Equal(t, domain.PhaseFailed, res.Phases[len(res.Phases)-1])
	assert.False(t, h.locker.Held("service:svc1"))
}

func TestStatus(t *testing.T) {
	h := newHarness(&fakeProber{script: []bool{true, false}}, &fakeExec{})
	assert.Equal(t, domain.Online, h.o.Status(context.Background()))
	assert.Equal(t, domain.Offline, h.o.Status(context.Background()))
	assert.Equal(t, 2, h.prober.Calls(), "status is never cached")
}

func TestStripANSI(t *testing.T) {
	assert.Equal(t, "[ OK ] started", StripANSI("\x1b[1;32m[ OK ]\x1b[0m started"))
	assert.Equal(t, "plain", StripANSI("plain"))
}

func TestStartRefusedWhilePowerOperationRuns(t *testing.T) {
	h := newHarness(&fakeProber{fallback: false}, &fakeExec{})
	release, err := h.locker.Acquire(context.Background(), hostPowerKey)
	require.NoError(t, err)
	defer release()

	res := h.o.StartService(context.Background(), h.request("svc1", domain.ActionStart))

	assert.Equal(t, domain.OutcomeAlreadyInProgress, res.Outcome)
	assert.True(t, errors.Is(res.Err, domain.ErrAlreadyInProgress))
	assert.Equal(t, domain.PhaseFailed, res.Phases[len(res.Phases)-1])
	assert.Zero(t, h.waker.Calls(), "no wake while a power operation holds the host")
	assert.Empty(t, h.exec.Commands())
	assert.False(t, h.locker.Held("service:svc1"), "service lease must be released")
}

func TestStartReleasesPowerLeaseAfterWake(t *testing.T) {
	h := newHarness(&fakeProber{script: []bool{false}, fallback: true}, &fakeExec{})

	res := h.o.StartService(context.Background(), h.request("svc1", domain.ActionStart))

	require.Equal(t, domain.OutcomeSettled, res.Outcome, res.Message)
	assert.False(t, h.locker.Held(hostPowerKey))

	off := h.o.PowerOff(context.Background(), h.request("", ""))
	assert.NotEqual(t, domain.OutcomeAlreadyInProgress, off.Outcome)
}

func TestStartCancelledIsNotATimeout(t *testing.T) {
	h := newHarness(&fakeProber{fallback: false}, &fakeExec{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := h.o.StartService(ctx, h.request("svc1", domain.ActionStart))

	assert.Equal(t, domain.OutcomeFailed, res.Outcome)
	assert.True(t, errors.Is(res.Err, context.Canceled))
	assert.False(t, errors.Is(res.Err, domain.ErrTimeout))
	assert.Equal(t, domain.PhaseFailed, res.Phases[len(res.Phases)-1])
	assert.Empty(t, h.exec.Commands())
}

func TestStartWithoutPublicAddressKeepsPassword(t *testing.T) {
	h := newHarness(&fakeProber{fallback: true}, &fakeExec{})
	h.o.address = staticAddress("")

	res := h.o.StartService(context.Background(), h.request("svc1", domain.ActionStart))

	require.Equal(t, domain.OutcomeSettled, res.Outcome, res.Message)
	require.NotNil(t, res.Endpoint)
	assert.Empty(t, res.Endpoint.Address)
	assert.Equal(t, 2456, res.Endpoint.Port)
	assert.Equal(t, "pw", res.Endpoint.Password)
	assert.Contains(t, h.rep.Last().Detail, "port 2456")
}
