package queue

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"puntoventa/backend/internal/domain"
	"puntoventa/backend/internal/localstate"
)

func TestEnqueueAssignsOfflineIDAndPreservesFields(t *testing.T) {
	q := New(localstate.NewMemory())
	ctx := context.Background()

	saved, err := q.Enqueue(ctx, domain.PendingSale{
		SaleDate: "2026-03-14",
		Lines: []domain.SaleLine{
			{ProductID: "A1", Quantity: 3, UnitPrice: decimal.NewFromFloat(2.50), Discount: decimal.NewFromFloat(0.50), Description: "promo"},
		},
	})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if saved.OfflineID == "" {
		t.Fatalf("expected offline id to be assigned")
	}
	if saved.Status != domain.StatusPending {
		t.Fatalf("expected status pending, got %s", saved.Status)
	}

	listed, err := q.ListAll(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("expected 1 pending sale, got %d", len(listed))
	}

	got := listed[0]
	if got.OfflineID != saved.OfflineID || got.SaleDate != "2026-03-14" {
		t.Fatalf("round-trip lost identity fields: %+v", got)
	}
	line := got.Lines[0]
	if line.ProductID != "A1" || line.Quantity != 3 || line.Description != "promo" {
		t.Fatalf("round-trip lost line fields: %+v", line)
	}
	if !line.UnitPrice.Equal(decimal.NewFromFloat(2.50)) || !line.Discount.Equal(decimal.NewFromFloat(0.50)) {
		t.Fatalf("round-trip lost money fields: %+v", line)
	}
}

func TestEnqueueDerivesMultiStatus(t *testing.T) {
	q := New(localstate.NewMemory())

	saved, err := q.Enqueue(context.Background(), domain.PendingSale{
		SaleDate: "2026-03-14",
		Lines: []domain.SaleLine{
			{ProductID: "A1", Quantity: 1, UnitPrice: decimal.NewFromInt(1)},
			{ProductID: "B2", Quantity: 2, UnitPrice: decimal.NewFromInt(1)},
		},
	})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if saved.Status != domain.StatusPendingMulti {
		t.Fatalf("expected pending-multi for two lines, got %s", saved.Status)
	}
}

func TestEnqueueRejectsInvalidSale(t *testing.T) {
	q := New(localstate.NewMemory())

	_, err := q.Enqueue(context.Background(), domain.PendingSale{
		Lines: []domain.SaleLine{{ProductID: "A1", Quantity: 0, UnitPrice: decimal.NewFromInt(1)}},
	})
	if err == nil {
		t.Fatalf("expected zero-quantity sale to be rejected")
	}
}

func TestQueueSurvivesReinstantiation(t *testing.T) {
	state := localstate.NewMemory()
	ctx := context.Background()

	first := New(state)
	for _, productID := range []string{"A1", "B2", "C3"} {
		_, err := first.Enqueue(ctx, domain.PendingSale{
			SaleDate: "2026-03-14",
			Lines:    []domain.SaleLine{{ProductID: productID, Quantity: 1, UnitPrice: decimal.NewFromInt(2)}},
		})
		if err != nil {
			t.Fatalf("enqueue %s failed: %v", productID, err)
		}
	}

	second := New(state)
	listed, err := second.ListAll(ctx)
	if err != nil {
		t.Fatalf("list after reinstantiation failed: %v", err)
	}
	if len(listed) != 3 {
		t.Fatalf("expected 3 pending sales after restart, got %d", len(listed))
	}
	for i, productID := range []string{"A1", "B2", "C3"} {
		if listed[i].Lines[0].ProductID != productID {
			t.Fatalf("insertion order lost: position %d has %s", i, listed[i].Lines[0].ProductID)
		}
	}
}

func TestReplaceAllKeepsSubsetOrderAndClearsWhenEmpty(t *testing.T) {
	state := localstate.NewMemory()
	q := New(state)
	ctx := context.Background()

	var saved []domain.PendingSale
	for _, productID := range []string{"A1", "B2", "C3"} {
		sale, err := q.Enqueue(ctx, domain.PendingSale{
			SaleDate: "2026-03-14",
			Lines:    []domain.SaleLine{{ProductID: productID, Quantity: 1, UnitPrice: decimal.NewFromInt(2)}},
		})
		if err != nil {
			t.Fatalf("enqueue failed: %v", err)
		}
		saved = append(saved, sale)
	}

	if err := q.ReplaceAll(ctx, []domain.PendingSale{saved[0], saved[2]}); err != nil {
		t.Fatalf("replace failed: %v", err)
	}
	listed, err := q.ListAll(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(listed) != 2 || listed[0].OfflineID != saved[0].OfflineID || listed[1].OfflineID != saved[2].OfflineID {
		t.Fatalf("expected retained subset [A1 C3] in order, got %+v", listed)
	}

	if err := q.ReplaceAll(ctx, nil); err != nil {
		t.Fatalf("replace with empty failed: %v", err)
	}
	count, err := q.Count(ctx)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected empty queue, got %d", count)
	}
	if _, exists, _ := state.Get(ctx, localstate.KeyPendingSales); exists {
		t.Fatalf("expected durable key removed when queue drains")
	}
}
