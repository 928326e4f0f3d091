package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/MrSnakeDoc/powerdeck/internal/domain"
)

// Registry is the in-memory, read-mostly set of service profiles.
type Registry struct {
	mu       sync.RWMutex
	order    []string
	profiles map[string]*domain.ServiceProfile
	loadedAt time.Time
}

func New() *Registry {
	return &Registry{profiles: make(map[string]*domain.ServiceProfile)}
}

// Open loads and validates path.
func Open(path string) (*Registry, error) {
	file, err := NewLoader(path).Load()
	if err != nil {
		return nil, err
	}
	profiles, err := Map(file)
	if err != nil {
		return nil, fmt.Errorf("invalid service file %s: %w", path, err)
	}
	r := New()
	r.Replace(profiles)
	return r, nil
}

// Replace swaps the whole profile set.
func (r *Registry) Replace(profiles []*domain.ServiceProfile) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.order = make([]string, 0, len(profiles))
	r.profiles = make(map[string]*domain.ServiceProfile, len(profiles))
	for _, p := range profiles {
		if _, dup := r.profiles[p.ID]; !dup {
			r.order = append(r.order, p.ID)
		}
		r.profiles[p.ID] = p
	}
	r.loadedAt = time.Now()
}

// Lookup returns the profile for id, or domain.ErrUnknownService.
func (r *Registry) Lookup(id string) (*domain.ServiceProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.profiles[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownService, id)
	}
	return p, nil
}

// All returns the profiles in file order.
func (r *Registry) All() []*domain.ServiceProfile {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.ServiceProfile, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.profiles[id])
	}
	return out
}

// Managed returns the profiles following the helper-script convention.
func (r *Registry) Managed() []*domain.ServiceProfile {
	all := r.All()
	out := all[:0:0]
	for _, p := range all {
		if p.Managed {
			out = append(out, p)
		}
	}
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.profiles)
}

// LoadedAt returns when the current set was installed.
func (r *Registry) LoadedAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.loadedAt
}
