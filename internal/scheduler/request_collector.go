package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/MrSnakeDoc/powerdeck/internal/logger"
)

// DefaultRequestTTL is how long finished request boards are kept.
const DefaultRequestTTL = time.Hour

// BoardPurger drops finished boards older than a cutoff.
type BoardPurger interface {
	Purge(cutoff time.Time) int
	Len() int
}

// RequestCollector removes finished request boards once their retention
// expired, so that polling clients still find recent results.
type RequestCollector struct {
	boards   BoardPurger
	tracked  func(n int)
	logger   logger.Logger
	interval time.Duration
	ttl      time.Duration
	now      func() time.Time
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewRequestCollector creates a collector. tracked, when set, is called
// with the number of remaining boards after each pass.
func NewRequestCollector(boards BoardPurger, tracked func(n int), log logger.Logger, interval, ttl time.Duration) *RequestCollector {
	if ttl <= 0 {
		ttl = DefaultRequestTTL
	}
	if interval <= 0 {
		interval = ttl / 4
	}
	return &RequestCollector{
		boards:   boards,
		tracked:  tracked,
		logger:   log,
		interval: interval,
		ttl:      ttl,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic collection.
func (rc *RequestCollector) Start(ctx context.Context) {
	ticker := time.NewTicker(rc.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rc.Collect()
			case <-rc.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the collector.
func (rc *RequestCollector) Stop() {
	rc.stopOnce.Do(func() { close(rc.stopCh) })
}

// Collect runs one pass and returns the number of removed boards.
func (rc *RequestCollector) Collect() int {
	removed := rc.boards.Purge(rc.now().Add(-rc.ttl))
	remaining := rc.boards.Len()

	if removed > 0 {
		rc.logger.Info("request boards collected",
			logger.Int("removed", removed),
			logger.Int("remaining", remaining))
	}
	if rc.tracked != nil {
		rc.tracked(remaining)
	}
	return removed
}
