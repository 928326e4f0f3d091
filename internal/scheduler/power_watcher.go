package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/MrSnakeDoc/powerdeck/internal/domain"
	"github.com/MrSnakeDoc/powerdeck/internal/logger"
	redisstore "github.com/MrSnakeDoc/powerdeck/internal/store/redis"
)

// StatusProber probes the managed host once.
type StatusProber interface {
	Status(ctx context.Context) domain.PowerState
}

// PowerSink receives every observation, typically the metrics gauge.
type PowerSink interface {
	PowerObserved(state domain.PowerState, at time.Time)
}

// PowerStore shares the last observation with other replicas.
type PowerStore interface {
	SavePowerObservation(ctx context.Context, state domain.PowerState, at time.Time) (redisstore.PowerObservation, error)
}

// Observation is the last state seen by the watcher.
type Observation struct {
	State      domain.PowerState
	ObservedAt time.Time
	ChangedAt  time.Time
}

// PowerWatcher probes the host periodically and publishes the result. It
// never drives a workflow; requests always probe on their own.
type PowerWatcher struct {
	prober   StatusProber
	sink     PowerSink
	store    PowerStore
	logger   logger.Logger
	interval time.Duration
	now      func() time.Time
	stopCh   chan struct{}
	stopOnce sync.Once

	mu   sync.RWMutex
	last Observation
	seen bool
}

// NewPowerWatcher creates a watcher. sink and store may be nil.
func NewPowerWatcher(prober StatusProber, sink PowerSink, store PowerStore, log logger.Logger, interval time.Duration) *PowerWatcher {
	return &PowerWatcher{
		prober:   prober,
		sink:     sink,
		store:    store,
		logger:   log,
		interval: interval,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

// Start observes once, then keeps observing every interval until ctx is
// cancelled or Stop is called.
func (w *PowerWatcher) Start(ctx context.Context) {
	w.Observe(ctx)

	ticker := time.NewTicker(w.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				w.Observe(ctx)
			case <-w.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the watcher.
func (w *PowerWatcher) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
}

// Observe probes the host and publishes the result.
func (w *PowerWatcher) Observe(ctx context.Context) Observation {
	state := w.prober.Status(ctx)
	at := w.now()

	w.mu.Lock()
	obs := Observation{State: state, ObservedAt: at, ChangedAt: at}
	changed := !w.seen || w.last.State != state
	if !changed {
		obs.ChangedAt = w.last.ChangedAt
	}
	previous, hadPrevious := w.last, w.seen
	w.last, w.seen = obs, true
	w.mu.Unlock()

	if changed {
		fields := []logger.Field{logger.String("state", state.String())}
		if hadPrevious {
			fields = append(fields,
				logger.String("previous", previous.State.String()),
				logger.Duration("after", at.Sub(previous.ChangedAt)))
		}
		w.logger.Info("host power state observed", fields...)
	}

	if w.sink != nil {
		w.sink.PowerObserved(state, at)
	}
	if w.store != nil {
		if _, err := w.store.SavePowerObservation(ctx, state, at); err != nil {
			w.logger.Warn("failed to save power observation to redis", logger.Error(err))
		}
	}
	return obs
}

// Last returns the most recent observation, if any.
func (w *PowerWatcher) Last() (Observation, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.last, w.seen
}
