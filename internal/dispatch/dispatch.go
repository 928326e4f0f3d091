package dispatch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrSnakeDoc/powerdeck/internal/domain"
	"github.com/MrSnakeDoc/powerdeck/internal/history"
	"github.com/MrSnakeDoc/powerdeck/internal/logger"
	"github.com/MrSnakeDoc/powerdeck/internal/orchestrator"
	"github.com/MrSnakeDoc/powerdeck/internal/progress"
	"github.com/MrSnakeDoc/powerdeck/internal/utils"
)

var (
	ErrRequestNotFound = errors.New("request not found")
	ErrRequestRunning  = errors.New("request still running")
	ErrNoOutput        = errors.New("request has no output")
)

// Orchestrator is the command surface the dispatcher drives.
type Orchestrator interface {
	StartService(ctx context.Context, req domain.LifecycleRequest) *domain.Result
	StopService(ctx context.Context, req domain.LifecycleRequest, powerDownAfter bool) *domain.Result
	RunAction(ctx context.Context, req domain.LifecycleRequest) *domain.Result
	PowerOn(ctx context.Context, req domain.LifecycleRequest) *domain.Result
	PowerOff(ctx context.Context, req domain.LifecycleRequest) *domain.Result
	Reboot(ctx context.Context, req domain.LifecycleRequest) *domain.Result
}

// Ticket identifies an accepted request.
type Ticket struct {
	RequestID string `json:"request_id"`
	Workflow  string `json:"workflow"`
	Service   string `json:"service,omitempty"`
	Action    string `json:"action,omitempty"`
}

// Deps holds the dispatcher collaborators.
type Deps struct {
	Orchestrator Orchestrator
	Registry     orchestrator.Registry
	Tracker      *progress.Tracker
	History      history.Recorder // optional, defaults to an in-memory ring
	ScratchDir   string           // optional, defaults to os.TempDir()
	Log          logger.Logger
}

// Dispatcher turns user commands into workflows. Each workflow runs in its
// own goroutine on the root context, so a client going away never cancels
// it; only process shutdown does.
type Dispatcher struct {
	root     context.Context
	orch     Orchestrator
	registry orchestrator.Registry
	tracker  *progress.Tracker
	history  history.Recorder
	scratch  string
	log      logger.Logger
	newID    func() string
	now      func() time.Time

	wg sync.WaitGroup
}

func New(root context.Context, d Deps) *Dispatcher {
	if d.History == nil {
		d.History = history.NewRing(50)
	}
	if d.Log == nil {
		d.Log = logger.Nop()
	}
	if d.Tracker == nil {
		d.Tracker = progress.NewTracker()
	}
	return &Dispatcher{
		root:     root,
		orch:     d.Orchestrator,
		registry: d.Registry,
		tracker:  d.Tracker,
		history:  d.History,
		scratch:  d.ScratchDir,
		log:      d.Log,
		newID:    uuid.NewString,
		now:      time.Now,
	}
}

// Start launches the start workflow for serviceID.
func (d *Dispatcher) Start(serviceID string) (Ticket, error) {
	if _, err := d.registry.Lookup(serviceID); err != nil {
		return Ticket{}, err
	}
	return d.launch(orchestrator.WorkflowStart, serviceID, domain.ActionStart, d.orch.StartService), nil
}

// Stop launches the stop workflow, optionally followed by a power-down.
func (d *Dispatcher) Stop(serviceID string, shutdown bool) (Ticket, error) {
	if _, err := d.registry.Lookup(serviceID); err != nil {
		return Ticket{}, err
	}
	return d.launch(orchestrator.WorkflowStop, serviceID, domain.ActionStop,
		func(ctx context.Context, req domain.LifecycleRequest) *domain.Result {
			return d.orch.StopService(ctx, req, shutdown)
		}), nil
}

// RunAction launches a raw action. Unknown or unsupported actions are
// rejected here, before anything touches the host.
func (d *Dispatcher) RunAction(serviceID, actionName string) (Ticket, error) {
	profile, err := d.registry.Lookup(serviceID)
	if err != nil {
		return Ticket{}, err
	}
	action, err := domain.ParseAction(actionName)
	if err != nil {
		return Ticket{}, err
	}
	if !profile.Supports(action) {
		return Ticket{}, fmt.Errorf("%w: %s on %s", domain.ErrActionNotSupported, action, serviceID)
	}
	return d.launch(orchestrator.WorkflowAction, serviceID, action, d.orch.RunAction), nil
}

func (d *Dispatcher) PowerOn() Ticket {
	return d.launch(orchestrator.WorkflowPowerOn, "", "", d.orch.PowerOn)
}

func (d *Dispatcher) PowerOff() Ticket {
	return d.launch(orchestrator.WorkflowPowerOff, "", "", d.orch.PowerOff)
}

func (d *Dispatcher) Reboot() Ticket {
	return d.launch(orchestrator.WorkflowReboot, "", "", d.orch.Reboot)
}

// Board returns the progress board of a request.
func (d *Dispatcher) Board(id string) (*progress.Board, bool) {
	return d.tracker.Get(id)
}

// History returns the most recent outcomes, newest first.
func (d *Dispatcher) History(ctx context.Context, n int) ([]*domain.Result, error) {
	return d.history.Recent(ctx, n)
}

// Tracked returns the number of boards in memory.
func (d *Dispatcher) Tracked() int { return d.tracker.Len() }

// Wait blocks until every launched workflow returned.
func (d *Dispatcher) Wait() { d.wg.Wait() }

func (d *Dispatcher) launch(workflow, serviceID string, action domain.Action, run func(context.Context, domain.LifecycleRequest) *domain.Result) Ticket {
	id := d.newID()
	board := d.tracker.Open(id, workflow, serviceID)
	req := domain.LifecycleRequest{
		ID:        id,
		ServiceID: serviceID,
		Action:    action,
		Reporter:  board,
	}

	d.log.Info("request accepted",
		logger.String("request_id", id),
		logger.String("workflow", workflow),
		logger.String("service", serviceID),
		logger.String("action", string(action)))

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		res := run(d.root, req)
		board.Finish(res, d.now())

		ctx, cancel := context.WithTimeout(context.WithoutCancel(d.root), 5*time.Second)
		defer cancel()
		d.history.Record(ctx, res)
	}()

	return Ticket{RequestID: id, Workflow: workflow, Service: serviceID, Action: string(action)}
}

// WithOutput writes the full output of a finished request to a scratch
// file, hands it to deliver, and removes the file once deliver returns.
func (d *Dispatcher) WithOutput(id string, deliver func(f *os.File, name string) error) error {
	board, ok := d.tracker.Get(id)
	if !ok {
		return ErrRequestNotFound
	}
	res := board.Result()
	if res == nil {
		return ErrRequestRunning
	}
	if res.Output == "" {
		return ErrNoOutput
	}

	f, err := os.CreateTemp(d.scratch, "powerdeck-output-*.txt")
	if err != nil {
		return fmt.Errorf("failed to create scratch file: %w", err)
	}
	defer func() {
		utils.MustClose(f, d.log, "scratch file")
		if err := os.Remove(f.Name()); err != nil {
			d.log.Warn("failed to remove scratch file",
				logger.String("path", f.Name()),
				logger.Error(err))
		}
	}()

	if _, err := f.WriteString(res.Output); err != nil {
		return fmt.Errorf("failed to write scratch file: %w", err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		return fmt.Errorf("failed to rewind scratch file: %w", err)
	}

	return deliver(f, OutputFileName(res))
}

// OutputFileName is the attachment name offered to clients.
func OutputFileName(res *domain.Result) string {
	name := res.Action
	if res.ServiceID != "" {
		name = res.ServiceID + "-" + name
	}
	return name + "-output.txt"
}
