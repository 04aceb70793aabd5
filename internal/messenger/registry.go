package messenger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/zetatrigger/internal/domain"
)

// Registry maps a destination chain id to its paired counterpart contract.
type Registry struct {
	mu    sync.RWMutex
	byID  map[uint64]common.Address
	store domain.CounterpartStore
}

// NewRegistry creates a Registry. store may be nil.
func NewRegistry(store domain.CounterpartStore) *Registry {
	return &Registry{byID: make(map[uint64]common.Address), store: store}
}

// Load merges persisted counterparts. Entries already registered from
// configuration take precedence.
func (r *Registry) Load(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	rows, err := r.store.List(ctx)
	if err != nil {
		return fmt.Errorf("messenger: load counterparts: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range rows {
		if _, ok := r.byID[c.ChainID]; !ok {
			r.byID[c.ChainID] = c.Address
		}
	}
	return nil
}

// Register pairs chainID with addr and persists it.
func (r *Registry) Register(ctx context.Context, chainID uint64, addr common.Address) error {
	if chainID == 0 || addr == (common.Address{}) {
		return fmt.Errorf("messenger: register: chain id and address are required")
	}
	if r.store != nil {
		c := domain.Counterpart{ChainID: chainID, Address: addr, UpdatedAt: time.Now().UTC()}
		if err := r.store.Upsert(ctx, c); err != nil {
			return fmt.Errorf("messenger: register %d: %w", chainID, err)
		}
	}
	r.mu.Lock()
	r.byID[chainID] = addr
	r.mu.Unlock()
	return nil
}

// Lookup returns the counterpart for chainID.
func (r *Registry) Lookup(chainID uint64) (common.Address, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	addr, ok := r.byID[chainID]
	return addr, ok
}

// Authenticate reports whether (chainID, origin) is a registered pair.
func (r *Registry) Authenticate(chainID uint64, origin common.Address) bool {
	addr, ok := r.Lookup(chainID)
	return ok && addr == origin
}

// List returns a copy of all pairs.
func (r *Registry) List() []domain.Counterpart {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Counterpart, 0, len(r.byID))
	for id, addr := range r.byID {
		out = append(out, domain.Counterpart{ChainID: id, Address: addr})
	}
	return out
}
