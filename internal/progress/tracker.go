package progress

import (
	"sync"
	"time"
)

// Tracker indexes boards by request id.
type Tracker struct {
	mu     sync.RWMutex
	boards map[string]*Board
	now    func() time.Time
}

func NewTracker() *Tracker {
	return &Tracker{boards: make(map[string]*Board), now: time.Now}
}

// Open creates and registers a board.
func (t *Tracker) Open(id, workflow, service string) *Board {
	b := newBoard(id, workflow, service, t.now())

	t.mu.Lock()
	t.boards[id] = b
	t.mu.Unlock()
	return b
}

// Get returns the board for id.
func (t *Tracker) Get(id string) (*Board, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	b, ok := t.boards[id]
	return b, ok
}

// Len returns the number of tracked boards.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.boards)
}

// Purge drops finished boards whose workflow ended before cutoff and
// returns how many were removed. Running boards are never dropped.
func (t *Tracker) Purge(cutoff time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for id, b := range t.boards {
		if b.finishedBefore(cutoff) {
			delete(t.boards, id)
			removed++
		}
	}
	return removed
}
