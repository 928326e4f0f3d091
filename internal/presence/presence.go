package presence

import (
	"context"
	"sync"
	"time"

	"github.com/MrSnakeDoc/powerdeck/internal/logger"
)

// Backend persists the indicator so other replicas see the same state.
type Backend interface {
	SavePresence(ctx context.Context, name string, since time.Time) error
	ClearPresence(ctx context.Context) error
	LoadPresence(ctx context.Context) (string, time.Time, error)
}

// State is a snapshot of the indicator.
type State struct {
	Active bool      `json:"active"`
	Name   string    `json:"name,omitempty"`
	Since  time.Time `json:"since,omitempty"`
}

// Indicator is the process-wide "currently running" service. Last writer
// wins. The in-memory copy is authoritative for this process; the backend is
// written best effort.
type Indicator struct {
	mu      sync.RWMutex
	name    string
	since   time.Time
	backend Backend
	now     func() time.Time
	log     logger.Logger
}

// New returns an indicator. backend may be nil.
func New(backend Backend, log logger.Logger) *Indicator {
	if log == nil {
		log = logger.Nop()
	}
	return &Indicator{backend: backend, now: time.Now, log: log}
}

// SetActive marks name as the active service.
func (i *Indicator) SetActive(ctx context.Context, name string) {
	i.mu.Lock()
	i.name = name
	i.since = i.now()
	since := i.since
	i.mu.Unlock()

	i.log.Info("presence set", logger.String("name", name))

	if i.backend != nil {
		if err := i.backend.SavePresence(ctx, name, since); err != nil {
			i.log.Warn("failed to save presence to redis", logger.Error(err))
		}
	}
}

// Clear removes the active service.
func (i *Indicator) Clear(ctx context.Context) {
	i.mu.Lock()
	i.name = ""
	i.since = time.Time{}
	i.mu.Unlock()

	i.log.Info("presence cleared")

	if i.backend != nil {
		if err := i.backend.ClearPresence(ctx); err != nil {
			i.log.Warn("failed to clear presence in redis", logger.Error(err))
		}
	}
}

// Current returns the indicator state. With a backend, the shared value is
// preferred so that a change made by another replica is visible; the local
// copy is used when the backend cannot be read.
func (i *Indicator) Current(ctx context.Context) State {
	if i.backend != nil {
		name, since, err := i.backend.LoadPresence(ctx)
		if err == nil {
			return State{Active: name != "", Name: name, Since: since}
		}
		i.log.Warn("failed to load presence from redis", logger.Error(err))
	}

	i.mu.RLock()
	defer i.mu.RUnlock()
	return State{Active: i.name != "", Name: i.name, Since: i.since}
}
