// Package deltacache keeps the locally-corrected stock quantities for
// products with not-yet-synced sales, so rendered stock reflects offline
// sales immediately. It is never the system of record; reconciliation clears
// entries as their sales reach the remote service.
package deltacache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"puntoventa/backend/internal/domain"
	"puntoventa/backend/internal/localstate"
)

// StockLookup resolves the current in-memory stock for a product, used to
// seed a delta entry on first adjustment.
type StockLookup interface {
	StockQty(productID string) (int, bool)
}

type Cache struct {
	mu    sync.Mutex
	state localstate.Store
	stock StockLookup
}

func New(state localstate.Store, stock StockLookup) *Cache {
	return &Cache{state: state, stock: stock}
}

// Adjust adds delta to the cached quantity for the product, seeding from the
// in-memory stock (or 0 if unknown) when no entry exists. The result clamps
// at zero; back-order quantities are not representable locally even though
// the remote model allows negative stock elsewhere.
func (c *Cache) Adjust(ctx context.Context, productID string, delta int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	deltas, err := c.load(ctx)
	if err != nil {
		return 0, err
	}

	current, exists := deltas[productID]
	if !exists {
		if seed, ok := c.stock.StockQty(productID); ok {
			current = seed
		}
	}

	next := current + delta
	if next < 0 {
		log.Printf("[deltacache] WARN: clamping %s to 0 (was %d, delta %d)", productID, current, delta)
		next = 0
	}
	deltas[productID] = next

	if err := c.persist(ctx, deltas); err != nil {
		return 0, err
	}
	return next, nil
}

// ApplyToInventory overwrites the displayed quantity of every item that has
// a cached entry; items without one are untouched.
func (c *Cache) ApplyToInventory(ctx context.Context, items []domain.InventoryItem) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	deltas, err := c.load(ctx)
	if err != nil {
		return err
	}
	if len(deltas) == 0 {
		return nil
	}

	for i := range items {
		if qty, exists := deltas[items[i].ProductID]; exists {
			items[i].Quantity = qty
		}
	}
	return nil
}

// Clear removes the entry for a product after its sales reconcile.
func (c *Cache) Clear(ctx context.Context, productID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	deltas, err := c.load(ctx)
	if err != nil {
		return err
	}
	if _, exists := deltas[productID]; !exists {
		return nil
	}
	delete(deltas, productID)
	return c.persist(ctx, deltas)
}

// Snapshot returns a copy of the cached quantities.
func (c *Cache) Snapshot(ctx context.Context) (map[string]int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.load(ctx)
}

func (c *Cache) load(ctx context.Context) (map[string]int, error) {
	raw, exists, err := c.state.Get(ctx, localstate.KeyInventoryDeltas)
	if err != nil {
		return nil, fmt.Errorf("load inventory deltas: %w", err)
	}
	if !exists {
		return map[string]int{}, nil
	}

	var deltas map[string]int
	if err := json.Unmarshal(raw, &deltas); err != nil {
		return nil, fmt.Errorf("decode inventory deltas: %w", err)
	}
	return deltas, nil
}

func (c *Cache) persist(ctx context.Context, deltas map[string]int) error {
	if len(deltas) == 0 {
		if err := c.state.Delete(ctx, localstate.KeyInventoryDeltas); err != nil {
			return fmt.Errorf("clear inventory deltas: %w", err)
		}
		return nil
	}

	raw, err := json.Marshal(deltas)
	if err != nil {
		return fmt.Errorf("encode inventory deltas: %w", err)
	}
	if err := c.state.Set(ctx, localstate.KeyInventoryDeltas, raw); err != nil {
		return fmt.Errorf("persist inventory deltas: %w", err)
	}
	return nil
}
