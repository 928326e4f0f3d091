package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrSnakeDoc/powerdeck/internal/domain"
	"github.com/MrSnakeDoc/powerdeck/internal/logger"
)

// Workflow names as they appear in results and metrics.
const (
	WorkflowStart     = "start"
	WorkflowStop      = "stop"
	WorkflowAction    = "action"
	WorkflowPowerOn   = "power-on"
	WorkflowPowerOff  = "power-off"
	WorkflowPowerDown = "power-down"
	WorkflowReboot    = "reboot"
)

// Lease keys.
const hostPowerKey = "host:power"

func serviceKey(id string) string { return "service:" + id }

// flow carries one request through its workflow: the state machine, the
// progress sink and the result being built.
type flow struct {
	o   *Orchestrator
	m   *machine
	rep domain.Reporter
	res *domain.Result
	log logger.Logger
}

// run is the workflow boundary. It takes the lease, recovers panics, and
// guarantees a terminal state and a final update whatever body does.
func (o *Orchestrator) run(ctx context.Context, req domain.LifecycleRequest, workflow, action, key string, body func(ctx context.Context, f *flow)) *domain.Result {
	rep := req.Reporter
	if rep == nil {
		rep = domain.DiscardReporter{}
	}
	log := o.log.With(
		logger.String("request_id", req.ID),
		logger.String("workflow", workflow),
		logger.String("service", req.ServiceID),
		logger.String("action", action),
	)

	f := &flow{
		o:   o,
		m:   newMachine(log),
		rep: rep,
		log: log,
		res: &domain.Result{
			RequestID: req.ID,
			ServiceID: req.ServiceID,
			Action:    action,
			StartedAt: o.clock.Now(),
		},
	}

	defer func() {
		f.res.Phases = f.m.Path()
		f.res.FinishedAt = o.clock.Now()
		o.observer.WorkflowFinished(workflow, f.res.Outcome, f.res.FinishedAt.Sub(f.res.StartedAt))
		log.Info("workflow finished",
			logger.String("outcome", string(f.res.Outcome)),
			logger.Strings("phases", phaseNames(f.res.Phases)),
		)
	}()

	release, err := o.acquire(ctx, key)
	if err != nil {
		f.leaseDenied(ctx, key, err)
		return f.res
	}
	defer release()

	func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("workflow panicked", logger.String("panic", fmt.Sprint(r)))
				f.fail(ctx, fmt.Errorf("unexpected error: %v", r), "Unexpected error")
			}
		}()
		log.Info("workflow started")
		body(ctx, f)
	}()

	if !f.m.Terminal() {
		f.fail(ctx, errors.New("workflow ended without a result"), "Unexpected error")
	}
	return f.res
}

func (o *Orchestrator) acquire(ctx context.Context, key string) (func(), error) {
	if key == "" {
		return func() {}, nil
	}
	return o.locker.Acquire(ctx, key)
}

// leaseDenied ends the flow when key could not be taken. A lease held by
// someone else is already_in_progress; anything else is a failure. A flow
// that has left idle is moved to failed so it still ends terminal.
func (f *flow) leaseDenied(ctx context.Context, key string, err error) {
	if !errors.Is(err, domain.ErrAlreadyInProgress) {
		f.fail(ctx, fmt.Errorf("acquire lease %s: %w", key, err), "Could not start")
		return
	}
	if f.m.Current() != domain.PhaseIdle {
		_ = f.m.fire(ctx, EventFail)
	}
	f.res.Outcome = domain.OutcomeAlreadyInProgress
	f.res.Err = err
	f.res.Message = fmt.Sprintf("another %s operation is already running", describeKey(key))
	f.post(domain.SeverityWarning, "Already in progress", f.res.Message)
}

// enter moves to the state reached by event and posts an info update.
func (f *flow) enter(ctx context.Context, event, title, detail string) {
	if err := f.m.fire(ctx, event); err != nil {
		panic(fmt.Sprintf("transition %s from %s: %v", event, f.m.Current(), err))
	}
	f.post(domain.SeverityInfo, title, detail)
}

// revise replaces the latest update, used when a wait finishes.
func (f *flow) revise(sev domain.Severity, title, detail string) {
	f.rep.Revise(domain.Update{
		Phase:    f.m.Current(),
		Title:    title,
		Detail:   detail,
		Severity: sev,
		At:       f.o.clock.Now(),
	})
}

func (f *flow) post(sev domain.Severity, title, detail string) {
	f.rep.Report(domain.Update{
		Phase:    f.m.Current(),
		Title:    title,
		Detail:   detail,
		Severity: sev,
		At:       f.o.clock.Now(),
	})
}

func (f *flow) settle(ctx context.Context, title, detail string) {
	_ = f.m.fire(ctx, EventSettle)
	f.res.Outcome = domain.OutcomeSettled
	if f.res.Message == "" {
		f.res.Message = detail
	}
	f.post(domain.SeveritySuccess, title, detail)
}

func (f *flow) fail(ctx context.Context, err error, title string) {
	if !f.m.Terminal() {
		_ = f.m.fire(ctx, EventFail)
	}
	f.res.Outcome = domain.OutcomeFailed
	f.res.Err = err
	f.res.Message = err.Error()
	f.log.Warn("workflow failed", logger.Error(err))
	f.post(domain.SeverityError, title, err.Error())
}

// timeout ends a wait that gave up. A wait cut short by cancellation is a
// failure, not a timeout.
func (f *flow) timeout(ctx context.Context, title, detail string) {
	if err := ctx.Err(); err != nil {
		f.fail(ctx, fmt.Errorf("cancelled: %w", err), "Cancelled")
		return
	}
	_ = f.m.fire(ctx, EventTimeOut)
	f.res.Outcome = domain.OutcomeTimedOut
	f.res.Err = fmt.Errorf("%w: %s", domain.ErrTimeout, detail)
	f.res.Message = detail
	f.post(domain.SeverityWarning, title, detail)
}

func describeKey(key string) string {
	if key == hostPowerKey {
		return "power"
	}
	return "service"
}

func phaseNames(ps []domain.Phase) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = string(p)
	}
	return out
}
