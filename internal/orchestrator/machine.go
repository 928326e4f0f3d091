package orchestrator

import (
	"context"
	"errors"
	"sync"

	"github.com/looplab/fsm"

	"github.com/MrSnakeDoc/powerdeck/internal/domain"
	"github.com/MrSnakeDoc/powerdeck/internal/logger"
)

// Workflow events.
const (
	EventEnsurePower  = "ensure_power"
	EventAwaitOnline  = "await_online"
	EventAwaitReady   = "await_ready"
	EventExecute      = "execute"
	EventAwaitOffline = "await_offline"
	EventReport       = "report"
	EventSettle       = "settle"
	EventFail         = "fail"
	EventTimeOut      = "time_out"
)

func phases(ps ...domain.Phase) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = string(p)
	}
	return out
}

var transitions = fsm.Events{
	{Name: EventEnsurePower, Src: phases(domain.PhaseIdle), Dst: string(domain.PhaseEnsuringPower)},
	{Name: EventAwaitOnline, Src: phases(domain.PhaseEnsuringPower, domain.PhaseAwaitingOffline), Dst: string(domain.PhaseAwaitingOnline)},
	{Name: EventAwaitReady, Src: phases(domain.PhaseEnsuringPower, domain.PhaseAwaitingOnline), Dst: string(domain.PhaseAwaitingReady)},
	{Name: EventExecute, Src: phases(domain.PhaseIdle, domain.PhaseEnsuringPower, domain.PhaseAwaitingReady), Dst: string(domain.PhaseExecuting)},
	{Name: EventAwaitOffline, Src: phases(domain.PhaseExecuting), Dst: string(domain.PhaseAwaitingOffline)},
	{Name: EventReport, Src: phases(domain.PhaseExecuting), Dst: string(domain.PhaseReporting)},
	{Name: EventSettle, Src: phases(domain.PhaseEnsuringPower, domain.PhaseAwaitingOnline, domain.PhaseAwaitingOffline, domain.PhaseReporting), Dst: string(domain.PhaseSettled)},
	{Name: EventFail, Src: phases(
		domain.PhaseIdle, domain.PhaseEnsuringPower, domain.PhaseAwaitingOnline, domain.PhaseAwaitingReady,
		domain.PhaseExecuting, domain.PhaseAwaitingOffline, domain.PhaseReporting,
	), Dst: string(domain.PhaseFailed)},
	{Name: EventTimeOut, Src: phases(domain.PhaseAwaitingOnline, domain.PhaseAwaitingReady, domain.PhaseAwaitingOffline), Dst: string(domain.PhaseTimedOut)},
}

// machine tracks one request through the workflow states and records the
// path it took.
type machine struct {
	fsm *fsm.FSM
	log logger.Logger

	mu   sync.Mutex
	path []domain.Phase
}

func newMachine(log logger.Logger) *machine {
	m := &machine{log: log, path: []domain.Phase{domain.PhaseIdle}}
	m.fsm = fsm.NewFSM(
		string(domain.PhaseIdle),
		transitions,
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				m.mu.Lock()
				m.path = append(m.path, domain.Phase(e.Dst))
				m.mu.Unlock()
				m.log.Debug("workflow: transition",
					logger.String("event", e.Event),
					logger.String("from", e.Src),
					logger.String("to", e.Dst),
				)
			},
		},
	)
	return m
}

// fire moves the machine. Transitions never depend on the caller's
// cancellation, so a cancelled request can still reach a terminal state.
func (m *machine) fire(ctx context.Context, event string) error {
	err := m.fsm.Event(context.WithoutCancel(ctx), event)
	var noTransition fsm.NoTransitionError
	if err != nil && !errors.As(err, &noTransition) {
		return err
	}
	return nil
}

func (m *machine) Current() domain.Phase {
	return domain.Phase(m.fsm.Current())
}

func (m *machine) Terminal() bool {
	return m.Current().Terminal()
}

// Path returns the entered phases in order, starting with idle.
func (m *machine) Path() []domain.Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Phase(nil), m.path...)
}
