// Package memory is an in-process PortfolioRepository, used by the demo
// entrypoint and as a lightweight test double when a real MySQL instance
// isn't available.
package memory

import (
	"context"
	"sync"

	aggregator "github.com/nyxfolio/portfolio-aggregator"
)

// Repository holds portfolios in a guarded map. Nothing is persisted to
// disk; state is lost on process exit.
type Repository struct {
	mu   sync.RWMutex
	byID map[string]*aggregator.Portfolio
}

// New builds an empty in-memory repository.
func New() *Repository {
	return &Repository{byID: make(map[string]*aggregator.Portfolio)}
}

func (r *Repository) Save(ctx context.Context, p *aggregator.Portfolio) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[p.ID()] = p
	return nil
}

func (r *Repository) FindByID(ctx context.Context, id string) (*aggregator.Portfolio, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	if !ok {
		return nil, aggregator.ErrPortfolioNotFound
	}
	return p, nil
}

func (r *Repository) FindByUserID(ctx context.Context, userID string) (*aggregator.Portfolio, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.byID {
		if p.UserID() == userID {
			return p, nil
		}
	}
	return nil, aggregator.ErrPortfolioNotFound
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, id)
	return nil
}

func (r *Repository) Exists(ctx context.Context, id string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byID[id]
	return ok, nil
}
