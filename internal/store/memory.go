package store

import (
	"context"
	"sync"

	apperrors "github.com/gmsas95/medtracker/internal/errors"
)

// MemoryRepository keeps state in process memory.
type MemoryRepository struct {
	mu      sync.Mutex
	state   State
	saveErr error
	saves   int
}

func NewMemory() *MemoryRepository {
	return &MemoryRepository{}
}

// NewMemoryWith returns a repository preloaded with state.
func NewMemoryWith(state State) *MemoryRepository {
	return &MemoryRepository{state: state.Clone()}
}

func (r *MemoryRepository) Load(ctx context.Context) (State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Clone(), nil
}

func (r *MemoryRepository) Save(ctx context.Context, state State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return apperrors.Storage("save medications", r.saveErr)
	}
	r.state = state.Clone()
	r.saves++
	return nil
}

// FailSaves makes every following Save return err. A nil err restores
// normal behaviour.
func (r *MemoryRepository) FailSaves(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saveErr = err
}

// Saves returns the number of successful saves.
func (r *MemoryRepository) Saves() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saves
}

func (r *MemoryRepository) Close() error { return nil }
