// Package queue implements the local durable queue of pending sales.
// Insertion order is the replay order; every mutation re-serializes the full
// list under one durable key.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"puntoventa/backend/internal/domain"
	"puntoventa/backend/internal/localstate"
	"puntoventa/backend/internal/xid"
)

type Queue struct {
	mu    sync.Mutex
	state localstate.Store
}

func New(state localstate.Store) *Queue {
	return &Queue{state: state}
}

// Enqueue appends a pending sale, assigning a local offline identifier when
// the caller did not. The identifier never leaves this terminal.
func (q *Queue) Enqueue(ctx context.Context, sale domain.PendingSale) (domain.PendingSale, error) {
	if err := sale.Validate(); err != nil {
		return domain.PendingSale{}, err
	}
	if sale.OfflineID == "" {
		sale.OfflineID = xid.New("off")
	}
	if sale.Status == "" {
		sale.Status = domain.StatusPending
		if len(sale.Lines) > 1 {
			sale.Status = domain.StatusPendingMulti
		}
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	sales, err := q.load(ctx)
	if err != nil {
		return domain.PendingSale{}, err
	}
	sales = append(sales, sale)
	if err := q.persist(ctx, sales); err != nil {
		return domain.PendingSale{}, err
	}
	return sale, nil
}

// ListAll returns the pending sales in insertion order.
func (q *Queue) ListAll(ctx context.Context) ([]domain.PendingSale, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.load(ctx)
}

// ReplaceAll atomically overwrites the persisted list. The reconciliation
// engine calls this with the failed subset after a pass.
func (q *Queue) ReplaceAll(ctx context.Context, sales []domain.PendingSale) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.persist(ctx, sales)
}

// Count returns the number of pending sales; drives the badge.
func (q *Queue) Count(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	sales, err := q.load(ctx)
	if err != nil {
		return 0, err
	}
	return len(sales), nil
}

func (q *Queue) load(ctx context.Context) ([]domain.PendingSale, error) {
	raw, exists, err := q.state.Get(ctx, localstate.KeyPendingSales)
	if err != nil {
		return nil, fmt.Errorf("load pending sales: %w", err)
	}
	if !exists {
		return []domain.PendingSale{}, nil
	}

	var sales []domain.PendingSale
	if err := json.Unmarshal(raw, &sales); err != nil {
		return nil, fmt.Errorf("decode pending sales: %w", err)
	}
	return sales, nil
}

func (q *Queue) persist(ctx context.Context, sales []domain.PendingSale) error {
	if len(sales) == 0 {
		if err := q.state.Delete(ctx, localstate.KeyPendingSales); err != nil {
			return fmt.Errorf("clear pending sales: %w", err)
		}
		return nil
	}

	raw, err := json.Marshal(sales)
	if err != nil {
		return fmt.Errorf("encode pending sales: %w", err)
	}
	if err := q.state.Set(ctx, localstate.KeyPendingSales, raw); err != nil {
		return fmt.Errorf("persist pending sales: %w", err)
	}
	return nil
}
