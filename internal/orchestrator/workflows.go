package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/MrSnakeDoc/powerdeck/internal/clock"
	"github.com/MrSnakeDoc/powerdeck/internal/domain"
	"github.com/MrSnakeDoc/powerdeck/internal/logger"
	"github.com/MrSnakeDoc/powerdeck/internal/remote"
)

const (
	powerOffCommand = "sudo poweroff"
	rebootCommand   = "sudo reboot"
)

var ansiEscape = regexp.MustCompile(`\x1B\[[0-?]*[ -/]*[@-~]`)

// StripANSI removes terminal escape sequences.
func StripANSI(s string) string {
	return ansiEscape.ReplaceAllString(s, "")
}

// StartService brings the host up if needed, waits until the service can
// accept commands and runs its start command.
func (o *Orchestrator) StartService(ctx context.Context, req domain.LifecycleRequest) *domain.Result {
	req.Action = domain.ActionStart
	profile, err := o.registry.Lookup(req.ServiceID)
	if err != nil {
		return o.rejected(req, WorkflowStart, string(domain.ActionStart), err)
	}

	return o.run(ctx, req, WorkflowStart, string(domain.ActionStart), serviceKey(profile.ID), func(ctx context.Context, f *flow) {
		cmd, err := profile.CommandFor(domain.ActionStart, o.conv)
		if err != nil {
			f.fail(ctx, err, "Cannot start "+profile.Name)
			return
		}

		f.enter(ctx, EventEnsurePower, "Checking host", "Checking whether the host is online")
		if !f.ensureOnline(ctx) {
			return
		}

		probe := profile.ReadinessFor(o.conv)
		f.enter(ctx, EventAwaitReady, "Waiting for readiness",
			fmt.Sprintf("Waiting up to %s for %s", o.timing.ReadyTimeout, probe))
		if !o.WaitForServiceReady(ctx, o.timing.ReadyTimeout, probe) {
			f.timeout(ctx, "Readiness timeout",
				fmt.Sprintf("%s did not become ready within %s; try again shortly", profile.Name, o.timing.ReadyTimeout))
			return
		}

		f.enter(ctx, EventExecute, "Starting "+profile.Name, "Running the start command")
		if _, err := f.exec(ctx, cmd); err != nil {
			f.fail(ctx, err, "Failed to start "+profile.Name)
			return
		}

		f.enter(ctx, EventReport, "Started "+profile.Name, "")
		o.presence.SetActive(ctx, profile.Name)
		f.res.Endpoint = domain.NewEndpoint(o.address.PublicAddress(ctx), profile.Info)

		detail := profile.Name + " is running"
		if ep := f.res.Endpoint; ep != nil && ep.String() != "" {
			detail += " at " + ep.String()
		}
		f.settle(ctx, "Started "+profile.Name, detail)
	})
}

// StopService runs the stop command. With powerDownAfter the host is shut
// down afterwards by an independent workflow whose outcome is attached to
// the result but never changes the stop outcome.
func (o *Orchestrator) StopService(ctx context.Context, req domain.LifecycleRequest, powerDownAfter bool) *domain.Result {
	req.Action = domain.ActionStop
	profile, err := o.registry.Lookup(req.ServiceID)
	if err != nil {
		return o.rejected(req, WorkflowStop, string(domain.ActionStop), err)
	}

	res := o.run(ctx, req, WorkflowStop, string(domain.ActionStop), serviceKey(profile.ID), func(ctx context.Context, f *flow) {
		cmd, err := profile.CommandFor(domain.ActionStop, o.conv)
		if err != nil {
			f.fail(ctx, err, "Cannot stop "+profile.Name)
			return
		}

		f.enter(ctx, EventExecute, "Stopping "+profile.Name, "Running the stop command")
		if _, err := f.exec(ctx, cmd); err != nil {
			f.fail(ctx, err, "Failed to stop "+profile.Name)
			return
		}

		f.enter(ctx, EventReport, "Stopped "+profile.Name, "")
		o.presence.Clear(ctx)
		f.settle(ctx, "Stopped "+profile.Name, profile.Name+" has stopped")
	})

	if powerDownAfter && res.Succeeded() {
		res.PowerDown = o.powerDown(ctx, req)
	}
	return res
}

// powerDown shuts the host down after a settle delay, unless it is
// already offline.
func (o *Orchestrator) powerDown(ctx context.Context, parent domain.LifecycleRequest) *domain.Result {
	req := domain.LifecycleRequest{ID: parent.ID, Reporter: parent.Reporter}

	return o.run(ctx, req, WorkflowPowerDown, WorkflowPowerDown, hostPowerKey, func(ctx context.Context, f *flow) {
		if err := clock.Sleep(ctx, o.clock, o.timing.PowerDownDelay); err != nil {
			f.fail(ctx, err, "Shutdown cancelled")
			return
		}

		f.enter(ctx, EventEnsurePower, "Checking host", "Checking whether the host is still online")
		if o.Status(ctx) == domain.Offline {
			f.settle(ctx, "Host offline", "The host is already offline")
			return
		}
		f.shutdown(ctx, powerOffCommand, "Shutting down")
	})
}

// RunAction executes one action on a service without touching power
// state. Output is kept in full; long output is flagged Oversized.
func (o *Orchestrator) RunAction(ctx context.Context, req domain.LifecycleRequest) *domain.Result {
	action := req.Action
	profile, err := o.registry.Lookup(req.ServiceID)
	if err != nil {
		return o.rejected(req, WorkflowAction, string(action), err)
	}
	if _, err := domain.ParseAction(string(action)); err != nil {
		return o.rejected(req, WorkflowAction, string(action), err)
	}

	return o.run(ctx, req, WorkflowAction, string(action), serviceKey(profile.ID), func(ctx context.Context, f *flow) {
		cmd, err := profile.CommandFor(action, o.conv)
		if err != nil {
			f.fail(ctx, err, "Cannot run "+action.Label())
			return
		}

		f.enter(ctx, EventExecute, "Running "+action.Label(),
			fmt.Sprintf("Running %s on %s", action, profile.Name))
		out, err := f.exec(ctx, cmd)
		if err != nil {
			f.fail(ctx, err, action.Label()+" failed")
			return
		}

		clean := StripANSI(out)
		f.res.Output = clean
		f.res.Oversized = len(clean) > domain.OversizeThreshold

		f.enter(ctx, EventReport, action.Label()+" finished", "")
		detail := fmt.Sprintf("Ran %s on %s", action, profile.Name)
		if f.res.Oversized {
			detail += fmt.Sprintf(" (%d characters of output, download it as a file)", len(clean))
		}
		f.settle(ctx, action.Label()+" finished", detail)
	})
}

// PowerOn wakes the host and waits until it answers probes.
func (o *Orchestrator) PowerOn(ctx context.Context, req domain.LifecycleRequest) *domain.Result {
	return o.run(ctx, req, WorkflowPowerOn, WorkflowPowerOn, hostPowerKey, func(ctx context.Context, f *flow) {
		f.enter(ctx, EventEnsurePower, "Checking host", "Checking whether the host is online")
		if o.Status(ctx) == domain.Online {
			f.settle(ctx, "Host online", "The host is already online")
			return
		}
		if !f.wakeAndWait(ctx) {
			return
		}
		f.settle(ctx, "Host online", "The host is online")
	})
}

// PowerOff shuts the host down and waits until it stops answering.
func (o *Orchestrator) PowerOff(ctx context.Context, req domain.LifecycleRequest) *domain.Result {
	return o.run(ctx, req, WorkflowPowerOff, WorkflowPowerOff, hostPowerKey, func(ctx context.Context, f *flow) {
		f.enter(ctx, EventEnsurePower, "Checking host", "Checking whether the host is online")
		if o.Status(ctx) == domain.Offline {
			f.settle(ctx, "Host offline", "The host is already offline")
			return
		}
		f.shutdown(ctx, powerOffCommand, "Shutting down")
	})
}

// Reboot restarts a running host: it waits for the shutdown blip and then
// for the host to come back.
func (o *Orchestrator) Reboot(ctx context.Context, req domain.LifecycleRequest) *domain.Result {
	return o.run(ctx, req, WorkflowReboot, WorkflowReboot, hostPowerKey, func(ctx context.Context, f *flow) {
		f.enter(ctx, EventEnsurePower, "Checking host", "Checking whether the host is online")
		if o.Status(ctx) == domain.Offline {
			f.fail(ctx, fmt.Errorf("%w: already offline, cannot reboot", domain.ErrHostOffline), "Cannot reboot")
			return
		}

		f.enter(ctx, EventExecute, "Rebooting", "Sending the reboot command")
		if _, err := f.exec(ctx, rebootCommand); err != nil && !remote.Dropped(err) {
			f.fail(ctx, err, "Reboot failed")
			return
		}

		if err := clock.Sleep(ctx, o.clock, o.timing.RebootDelay); err != nil {
			f.fail(ctx, err, "Reboot cancelled")
			return
		}

		f.enter(ctx, EventAwaitOffline, "Rebooting", "Waiting for the host to shut down")
		if !o.WaitForPowerState(ctx, domain.Offline, o.timing.PowerTimeout) {
			f.log.Warn("reboot: host never seen offline, continuing")
			f.revise(domain.SeverityWarning, "Rebooting", "The host was never seen offline; waiting for it anyway")
		}

		f.enter(ctx, EventAwaitOnline, "Rebooting", "Waiting for the host to come back")
		if !o.WaitForPowerState(ctx, domain.Online, o.timing.PowerTimeout) {
			f.timeout(ctx, "Reboot timeout",
				fmt.Sprintf("The host did not come back online within %s", o.timing.PowerTimeout))
			return
		}
		f.settle(ctx, "Reboot complete", "The host is online")
	})
}

// ensureOnline checks the host and wakes it when needed while holding the
// power lease, so a power-off or a pending power-down cannot interleave
// with the wake.
func (f *flow) ensureOnline(ctx context.Context) bool {
	release, err := f.o.acquire(ctx, hostPowerKey)
	if err != nil {
		f.leaseDenied(ctx, hostPowerKey, err)
		return false
	}
	defer release()

	if f.o.Status(ctx) == domain.Online {
		f.revise(domain.SeverityInfo, "Host online", "The host is already online")
		return true
	}
	return f.wakeAndWait(ctx)
}

// wakeAndWait sends exactly one wake signal and waits for the host.
// It reports false once the flow reached a terminal state.
func (f *flow) wakeAndWait(ctx context.Context) bool {
	o := f.o
	err := o.waker.Wake(o.host.HardwareAddr, o.host.BroadcastAddr)
	o.observer.WakeSent(err)
	if err != nil {
		f.fail(ctx, fmt.Errorf("send wake signal: %w", err), "Wake failed")
		return false
	}

	f.enter(ctx, EventAwaitOnline, "Powering on",
		fmt.Sprintf("Wake signal sent; waiting up to %s for the host", o.timing.PowerTimeout))
	if !o.WaitForPowerState(ctx, domain.Online, o.timing.PowerTimeout) {
		f.timeout(ctx, "Power-on timeout",
			fmt.Sprintf("The host did not come online within %s", o.timing.PowerTimeout))
		return false
	}
	f.revise(domain.SeveritySuccess, "Host online", "The host is online")
	return true
}

// shutdown issues cmd and waits for the host to go offline. A session
// dropped by the host on its way down is expected.
func (f *flow) shutdown(ctx context.Context, cmd, title string) {
	o := f.o
	f.enter(ctx, EventExecute, title, "Sending the shutdown command")
	if _, err := f.exec(ctx, cmd); err != nil && !remote.Dropped(err) {
		f.fail(ctx, err, "Shutdown failed")
		return
	}

	f.enter(ctx, EventAwaitOffline, title,
		fmt.Sprintf("Waiting up to %s for the host to go offline", o.timing.PowerTimeout))
	if !o.WaitForPowerState(ctx, domain.Offline, o.timing.PowerTimeout) {
		f.timeout(ctx, "Shutdown timeout",
			fmt.Sprintf("The host did not go offline within %s", o.timing.PowerTimeout))
		return
	}
	f.settle(ctx, "Host offline", "The host is offline")
}

func (f *flow) exec(ctx context.Context, cmd string) (string, error) {
	out, err := f.o.exec.Execute(ctx, cmd)
	f.o.observer.CommandRun(err)
	if err != nil {
		f.log.Debug("command failed", logger.String("cmd", cmd), logger.Error(err))
	}
	return out, err
}

// rejected builds the result for requests refused before any remote
// interaction, such as an unknown service or action.
func (o *Orchestrator) rejected(req domain.LifecycleRequest, workflow, action string, err error) *domain.Result {
	return o.run(context.Background(), req, workflow, action, "", func(ctx context.Context, f *flow) {
		title := "Request rejected"
		switch {
		case errors.Is(err, domain.ErrUnknownService):
			title = "Unknown service"
		case errors.Is(err, domain.ErrUnknownAction):
			title = "Unknown action"
		}
		f.fail(ctx, err, title)
	})
}
