package progress

import (
	"sync"
	"time"

	"github.com/MrSnakeDoc/powerdeck/internal/domain"
)

// Board is the progress sink of one request. The workflow goroutine writes
// to it while HTTP handlers read snapshots.
type Board struct {
	mu sync.RWMutex

	id        string
	workflow  string
	service   string
	createdAt time.Time

	updates    []domain.Update
	result     *domain.Result
	finishedAt time.Time
	done       chan struct{}
}

// View is a point-in-time copy of a board.
type View struct {
	ID         string          `json:"id"`
	Workflow   string          `json:"workflow"`
	Service    string          `json:"service,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	Finished   bool            `json:"finished"`
	Updates    []domain.Update `json:"updates"`
	Result     *domain.Result  `json:"result,omitempty"`
	HasOutput  bool            `json:"has_output"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

func newBoard(id, workflow, service string, now time.Time) *Board {
	return &Board{
		id:        id,
		workflow:  workflow,
		service:   service,
		createdAt: now,
		updates:   make([]domain.Update, 0, 8),
		done:      make(chan struct{}),
	}
}

// ID returns the request id.
func (b *Board) ID() string { return b.id }

// Report appends u.
func (b *Board) Report(u domain.Update) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.updates = append(b.updates, u)
}

// Revise replaces the latest entry with u, or appends when the board is
// empty.
func (b *Board) Revise(u domain.Update) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n := len(b.updates); n > 0 {
		b.updates[n-1] = u
		return
	}
	b.updates = append(b.updates, u)
}

// Finish stores the result and releases waiters. Later calls are ignored.
func (b *Board) Finish(res *domain.Result, at time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.result != nil {
		return
	}
	b.result = res
	b.finishedAt = at
	close(b.done)
}

// Done is closed once the workflow has a result.
func (b *Board) Done() <-chan struct{} { return b.done }

// Result returns the final result, nil while running.
func (b *Board) Result() *domain.Result {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.result
}

// Updates returns a copy of the posted updates.
func (b *Board) Updates() []domain.Update {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]domain.Update, len(b.updates))
	copy(out, b.updates)
	return out
}

// Snapshot returns a copy safe to serialize.
func (b *Board) Snapshot() View {
	b.mu.RLock()
	defer b.mu.RUnlock()

	v := View{
		ID:        b.id,
		Workflow:  b.workflow,
		Service:   b.service,
		CreatedAt: b.createdAt,
		Finished:  b.result != nil,
		Updates:   make([]domain.Update, len(b.updates)),
		Result:    b.result,
	}
	copy(v.Updates, b.updates)
	if b.result != nil {
		v.HasOutput = b.result.Output != ""
		at := b.finishedAt
		v.FinishedAt = &at
	}
	return v
}

func (b *Board) finishedBefore(cutoff time.Time) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.result != nil && b.finishedAt.Before(cutoff)
}
