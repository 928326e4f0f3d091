package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/MrSnakeDoc/powerdeck/internal/clock"
	"github.com/MrSnakeDoc/powerdeck/internal/domain"
	"github.com/MrSnakeDoc/powerdeck/internal/logger"
	"github.com/MrSnakeDoc/powerdeck/internal/registry"
)

var epoch = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

// fakeProber answers from a script, then repeats fallback.
type fakeProber struct {
	mu       sync.Mutex
	script   []bool
	fallback bool
	calls    int
	answer   func(call int) bool
}

func (p *fakeProber) IsOnline(context.Context, string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.answer != nil {
		return p.answer(p.calls)
	}
	if p.calls <= len(p.script) {
		return p.script[p.calls-1]
	}
	return p.fallback
}

func (p *fakeProber) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type fakeWaker struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (w *fakeWaker) Wake(string, string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	return w.err
}

func (w *fakeWaker) Calls() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.calls
}

// fakeExec records commands and delegates to handler.
type fakeExec struct {
	mu       sync.Mutex
	commands []string
	paths    []string
	handler  func(cmd string) (string, error)
	exists   func(path string) (bool, error)
}

func (e *fakeExec) Execute(_ context.Context, cmd string) (string, error) {
	e.mu.Lock()
	e.commands = append(e.commands, cmd)
	h := e.handler
	e.mu.Unlock()
	if h == nil {
		return "", nil
	}
	return h(cmd)
}

func (e *fakeExec) PathExists(_ context.Context, path string) (bool, error) {
	e.mu.Lock()
	e.paths = append(e.paths, path)
	fn := e.exists
	e.mu.Unlock()
	if fn == nil {
		return true, nil
	}
	return fn(path)
}

func (e *fakeExec) Commands() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.commands...)
}

func (e *fakeExec) Paths() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.paths...)
}

type recordingReporter struct {
	mu      sync.Mutex
	updates []domain.Update
	revised int
}

func (r *recordingReporter) Report(u domain.Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
}

func (r *recordingReporter) Revise(u domain.Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.revised++
	if len(r.updates) == 0 {
		r.updates = append(r.updates, u)
		return
	}
	r.updates[len(r.updates)-1] = u
}

func (r *recordingReporter) Last() domain.Update {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updates[len(r.updates)-1]
}

type fakePresence struct {
	mu     sync.Mutex
	active string
}

func (p *fakePresence) SetActive(_ context.Context, name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active = name
}

func (p *fakePresence) Clear(context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active = ""
}

func (p *fakePresence) Active() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

type staticAddress string

func (a staticAddress) PublicAddress(context.Context) string { return string(a) }

type harness struct {
	o        *Orchestrator
	prober   *fakeProber
	waker    *fakeWaker
	exec     *fakeExec
	clock    *clock.Fake
	locker   *MemoryLocker
	presence *fakePresence
	rep      *recordingReporter
}

func newHarness(prober *fakeProber, exec *fakeExec) *harness {
	reg := registry.New()
	reg.Replace([]*domain.ServiceProfile{
		{ID: "svc1", Name: "Valheim", Managed: true, Info: &domain.ConnectionInfo{Port: 2456, Password: "pw"}},
		{ID: "svc2", Name: "Palworld", Managed: true},
		{ID: "mc", Name: "Minecraft", Commands: map[domain.Action]string{
			domain.ActionStart: "systemctl start mc",
			domain.ActionStop:  "systemctl stop mc",
		}},
	})

	h := &harness{
		prober:   prober,
		waker:    &fakeWaker{},
		exec:     exec,
		clock:    clock.NewFake(epoch),
		locker:   NewMemoryLocker(),
		presence: &fakePresence{},
		rep:      &recordingReporter{},
	}
	h.o = New(Deps{
		Host: domain.HostTarget{
			Address:       "192.168.1.40",
			HardwareAddr:  "aa:bb:cc:dd:ee:ff",
			BroadcastAddr: "192.168.1.255",
			User:          "mame",
			Port:          22,
		},
		Convention: domain.ManagedConvention{BasePath: "/srv/games", Script: "gs"},
		Timing:     DefaultTiming(),
		Prober:     prober,
		Waker:      h.waker,
		Executor:   exec,
		Registry:   reg,
		Locker:     h.locker,
		Presence:   h.presence,
		Address:    staticAddress("203.0.113.7"),
		Clock:      h.clock,
		Log:        logger.New("error", false),
	})
	return h
}

func (h *harness) request(service string, action domain.Action) domain.LifecycleRequest {
	return domain.LifecycleRequest{ID: "req-1", ServiceID: service, Action: action, Reporter: h.rep}
}
