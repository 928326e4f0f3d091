package orchestrator

import (
	"context"
	"time"

	"github.com/MrSnakeDoc/powerdeck/internal/clock"
	"github.com/MrSnakeDoc/powerdeck/internal/domain"
	"github.com/MrSnakeDoc/powerdeck/internal/logger"
)

// Prober answers whether the host responds to one echo request.
type Prober interface {
	IsOnline(ctx context.Context, host string) bool
}

// Waker sends one wake signal.
type Waker interface {
	Wake(mac, broadcast string) error
}

// Executor runs one-shot remote commands.
type Executor interface {
	Execute(ctx context.Context, cmd string) (string, error)
	PathExists(ctx context.Context, path string) (bool, error)
}

// Locker hands out per-key leases. A held key yields
// domain.ErrAlreadyInProgress.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// Presence exposes which service is currently active.
type Presence interface {
	SetActive(ctx context.Context, name string)
	Clear(ctx context.Context)
}

// Registry resolves service profiles by id.
type Registry interface {
	Lookup(id string) (*domain.ServiceProfile, error)
}

// AddressResolver returns the address clients use to reach started services.
type AddressResolver interface {
	PublicAddress(ctx context.Context) string
}

// Observer is notified of workflow activity, typically for metrics.
type Observer interface {
	WorkflowFinished(workflow string, outcome domain.Outcome, took time.Duration)
	WakeSent(err error)
	CommandRun(err error)
}

// Timing bounds every wait loop.
type Timing struct {
	PollInterval        time.Duration
	PowerTimeout        time.Duration
	ReadyTimeout        time.Duration
	ReadyAttemptTimeout time.Duration
	PowerDownDelay      time.Duration
	RebootDelay         time.Duration
}

// DefaultTiming mirrors the configuration defaults.
func DefaultTiming() Timing {
	return Timing{
		PollInterval:        5 * time.Second,
		PowerTimeout:        120 * time.Second,
		ReadyTimeout:        90 * time.Second,
		ReadyAttemptTimeout: 10 * time.Second,
		PowerDownDelay:      5 * time.Second,
		RebootDelay:         10 * time.Second,
	}
}

// Deps holds everything the orchestrator talks to. Optional fields fall
// back to no-op implementations.
type Deps struct {
	Host       domain.HostTarget
	Convention domain.ManagedConvention
	Timing     Timing

	Prober   Prober
	Waker    Waker
	Executor Executor
	Registry Registry

	Locker   Locker          // optional, defaults to an in-memory locker
	Presence Presence        // optional
	Address  AddressResolver // optional
	Observer Observer        // optional
	Clock    clock.Clock     // optional, defaults to the wall clock
	Log      logger.Logger   // optional
}

// Orchestrator coordinates power state, readiness and command execution
// for the single managed host.
type Orchestrator struct {
	host   domain.HostTarget
	conv   domain.ManagedConvention
	timing Timing

	prober   Prober
	waker    Waker
	exec     Executor
	registry Registry
	locker   Locker
	presence Presence
	address  AddressResolver
	observer Observer
	clock    clock.Clock
	log      logger.Logger
}

func New(d Deps) *Orchestrator {
	o := &Orchestrator{
		host:     d.Host,
		conv:     d.Convention,
		timing:   d.Timing,
		prober:   d.Prober,
		waker:    d.Waker,
		exec:     d.Executor,
		registry: d.Registry,
		locker:   d.Locker,
		presence: d.Presence,
		address:  d.Address,
		observer: d.Observer,
		clock:    d.Clock,
		log:      d.Log,
	}
	if o.locker == nil {
		o.locker = NewMemoryLocker()
	}
	if o.presence == nil {
		o.presence = nopPresence{}
	}
	if o.address == nil {
		o.address = nopAddress{}
	}
	if o.observer == nil {
		o.observer = nopObserver{}
	}
	if o.clock == nil {
		o.clock = clock.Real()
	}
	if o.log == nil {
		o.log = logger.Nop()
	}
	if o.timing.PollInterval <= 0 {
		o.timing = DefaultTiming()
	}
	return o
}

// Status probes the host once. Nothing is cached.
func (o *Orchestrator) Status(ctx context.Context) domain.PowerState {
	return domain.PowerStateOf(o.prober.IsOnline(ctx, o.host.Address))
}

// Host returns the managed target.
func (o *Orchestrator) Host() domain.HostTarget { return o.host }

type nopPresence struct{}

func (nopPresence) SetActive(context.Context, string) {}
func (nopPresence) Clear(context.Context)             {}

type nopAddress struct{}

func (nopAddress) PublicAddress(context.Context) string { return "" }

type nopObserver struct{}

func (nopObserver) WorkflowFinished(string, domain.Outcome, time.Duration) {}
func (nopObserver) WakeSent(error)                                         {}
func (nopObserver) CommandRun(error)                                       {}
