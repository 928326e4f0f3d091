package orchestrator

import (
	"context"
	"time"

	"github.com/MrSnakeDoc/powerdeck/internal/clock"
	"github.com/MrSnakeDoc/powerdeck/internal/domain"
	"github.com/MrSnakeDoc/powerdeck/internal/logger"
)

const livenessCommand = "echo ok"

// WaitForPowerState polls the host every interval until it reaches target
// or timeout elapses. A probe that already matches returns without
// sleeping. Exhaustion is reported as false, never as an error.
func (o *Orchestrator) WaitForPowerState(ctx context.Context, target domain.PowerState, timeout time.Duration) bool {
	start := o.clock.Now()
	polls := 0
	for o.clock.Now().Sub(start) < timeout {
		polls++
		if o.Status(ctx) == target {
			o.log.Debug("wait: power state reached",
				logger.String("target", target.String()),
				logger.Int("polls", polls),
				logger.Duration("elapsed", o.clock.Now().Sub(start)),
			)
			return true
		}
		if err := clock.Sleep(ctx, o.clock, o.timing.PollInterval); err != nil {
			return false
		}
	}
	o.log.Debug("wait: power state not reached",
		logger.String("target", target.String()),
		logger.Int("polls", polls),
		logger.Duration("timeout", timeout),
	)
	return false
}

// WaitForServiceReady polls probe until it passes or timeout elapses. Each
// attempt gets its own deadline; connection faults, command failures,
// attempt timeouts and a missing path all count as "not ready yet".
func (o *Orchestrator) WaitForServiceReady(ctx context.Context, timeout time.Duration, probe domain.ReadinessProbe) bool {
	start := o.clock.Now()
	for o.clock.Now().Sub(start) < timeout {
		if o.readyOnce(ctx, probe) {
			return true
		}
		if err := clock.Sleep(ctx, o.clock, o.timing.PollInterval); err != nil {
			return false
		}
	}
	return false
}

func (o *Orchestrator) readyOnce(ctx context.Context, probe domain.ReadinessProbe) bool {
	actx, cancel := context.WithTimeout(ctx, o.timing.ReadyAttemptTimeout)
	defer cancel()

	switch probe.Kind {
	case domain.ProbePathExists:
		ok, err := o.exec.PathExists(actx, probe.Path)
		if err != nil {
			o.log.Debug("wait: readiness attempt failed", logger.String("probe", probe.String()), logger.Error(err))
			return false
		}
		return ok
	default:
		if _, err := o.exec.Execute(actx, livenessCommand); err != nil {
			o.log.Debug("wait: readiness attempt failed", logger.String("probe", probe.String()), logger.Error(err))
			return false
		}
		return true
	}
}
