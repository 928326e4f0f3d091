package history

import (
	"context"
	"sync"

	"github.com/MrSnakeDoc/powerdeck/internal/domain"
	"github.com/MrSnakeDoc/powerdeck/internal/logger"
)

// Recorder keeps the most recent workflow outcomes.
type Recorder interface {
	Record(ctx context.Context, r *domain.Result)
	Recent(ctx context.Context, n int) ([]*domain.Result, error)
}

// Ring is an in-memory Recorder holding at most size results.
type Ring struct {
	mu    sync.RWMutex
	items []*domain.Result
	next  int
	full  bool
}

func NewRing(size int) *Ring {
	if size <= 0 {
		size = 1
	}
	return &Ring{items: make([]*domain.Result, size)}
}

func (r *Ring) Record(_ context.Context, res *domain.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[r.next] = res
	r.next = (r.next + 1) % len(r.items)
	if r.next == 0 {
		r.full = true
	}
}

// Recent returns up to n results, newest first.
func (r *Ring) Recent(_ context.Context, n int) ([]*domain.Result, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := r.next
	if r.full {
		count = len(r.items)
	}
	if n > count || n < 0 {
		n = count
	}

	out := make([]*domain.Result, 0, n)
	for i := 1; i <= n; i++ {
		idx := (r.next - i + len(r.items)) % len(r.items)
		out = append(out, r.items[idx])
	}
	return out, nil
}

// Backend is the shared history list.
type Backend interface {
	PushResult(ctx context.Context, r *domain.Result, max int) error
	RecentResults(ctx context.Context, n int) ([]*domain.Result, error)
}

// Shared writes to a Backend and keeps a local Ring for when the backend
// cannot be read.
type Shared struct {
	backend Backend
	local   *Ring
	size    int
	log     logger.Logger
}

func NewShared(backend Backend, size int, log logger.Logger) *Shared {
	return &Shared{backend: backend, local: NewRing(size), size: size, log: log}
}

func (s *Shared) Record(ctx context.Context, r *domain.Result) {
	s.local.Record(ctx, r)
	if err := s.backend.PushResult(ctx, r, s.size); err != nil {
		s.log.Warn("failed to save result to redis",
			logger.String("request_id", r.RequestID),
			logger.Error(err))
	}
}

func (s *Shared) Recent(ctx context.Context, n int) ([]*domain.Result, error) {
	out, err := s.backend.RecentResults(ctx, n)
	if err != nil {
		s.log.Warn("failed to read history from redis, using local copy", logger.Error(err))
		return s.local.Recent(ctx, n)
	}
	return out, nil
}
