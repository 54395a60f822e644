// Package memory implements the remote data service in process. It backs
// dev mode when DATABASE_URL is unset and every test that needs to script
// remote failures: individual inserts, inventory updates, or the whole
// service can be made to fail on demand.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"puntoventa/backend/internal/domain"
	"puntoventa/backend/internal/store"
	"puntoventa/backend/internal/xid"
)

type Store struct {
	mu        sync.RWMutex
	sales     []domain.SaleRecord
	inventory map[string]domain.InventoryItem

	unreachable      bool
	failInsertFor    map[string]bool
	failInvUpdateFor map[string]bool
}

func New() *Store {
	return &Store{
		sales:            make([]domain.SaleRecord, 0, 64),
		inventory:        make(map[string]domain.InventoryItem),
		failInsertFor:    make(map[string]bool),
		failInvUpdateFor: make(map[string]bool),
	}
}

func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()
	for _, item := range []domain.InventoryItem{
		{ProductID: "A1", Name: "Cuaderno A4", UnitPrice: decimal.NewFromFloat(2.50), Quantity: 120},
		{ProductID: "B2", Name: "Lapicero Azul", UnitPrice: decimal.NewFromFloat(0.80), Quantity: 300},
		{ProductID: "C3", Name: "Mochila Escolar", UnitPrice: decimal.NewFromFloat(18.90), Quantity: 45},
		{ProductID: "D4", Name: "Calculadora", UnitPrice: decimal.NewFromFloat(9.99), Quantity: 60},
	} {
		item.UpdatedAt = now
		s.inventory[item.ProductID] = item
	}
	return s
}

// SetUnreachable makes every remote call fail with ErrRemoteUnavailable,
// simulating the backend being unreachable while the runtime still reports
// itself online.
func (s *Store) SetUnreachable(unreachable bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unreachable = unreachable
}

// FailInsertFor makes InsertSale fail for the given product until cleared.
func (s *Store) FailInsertFor(productID string, fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failInsertFor[productID] = fail
}

// FailInventoryUpdateFor makes UpdateInventoryQuantity fail for the given
// product until cleared.
func (s *Store) FailInventoryUpdateFor(productID string, fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failInvUpdateFor[productID] = fail
}

func (s *Store) SeedInventory(item domain.InventoryItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = time.Now().UTC()
	}
	s.inventory[item.ProductID] = item
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.unreachable {
		return store.ErrRemoteUnavailable
	}
	return nil
}

func (s *Store) InsertSale(_ context.Context, row domain.SaleRecord) (*domain.SaleRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.unreachable {
		return nil, store.ErrRemoteUnavailable
	}
	if row.ProductID == "" || row.Quantity < 1 || row.UnitPrice.IsNegative() {
		return nil, store.ErrInvalidSale
	}
	if s.failInsertFor[row.ProductID] {
		return nil, store.ErrRemoteUnavailable
	}

	if row.ID == "" {
		row.ID = xid.New("sale")
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	s.sales = append(s.sales, row)

	created := row
	return &created, nil
}

func (s *Store) UpdateSale(_ context.Context, id string, req domain.SaleUpdateRequest) (*domain.SaleRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.unreachable {
		return nil, store.ErrRemoteUnavailable
	}

	idx := slices.IndexFunc(s.sales, func(r domain.SaleRecord) bool { return r.ID == id })
	if idx < 0 {
		return nil, store.ErrNotFound
	}

	updated := s.sales[idx]
	if req.Quantity != nil {
		if *req.Quantity < 1 {
			return nil, store.ErrInvalidSale
		}
		updated.Quantity = *req.Quantity
	}
	if req.UnitPrice != nil {
		if req.UnitPrice.IsNegative() {
			return nil, store.ErrInvalidSale
		}
		updated.UnitPrice = *req.UnitPrice
	}
	if req.Discount != nil {
		updated.Discount = *req.Discount
	}
	if req.Description != nil {
		updated.Description = *req.Description
	}
	if req.SaleDate != nil {
		updated.SaleDate = *req.SaleDate
	}
	line := domain.SaleLine{ProductID: updated.ProductID, Quantity: updated.Quantity, UnitPrice: updated.UnitPrice, Discount: updated.Discount}
	if err := line.Validate(); err != nil {
		return nil, store.ErrInvalidSale
	}

	s.sales[idx] = updated
	result := updated
	return &result, nil
}

func (s *Store) DeleteSale(_ context.Context, id string) (*domain.SaleRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.unreachable {
		return nil, store.ErrRemoteUnavailable
	}

	idx := slices.IndexFunc(s.sales, func(r domain.SaleRecord) bool { return r.ID == id })
	if idx < 0 {
		return nil, store.ErrNotFound
	}

	deleted := s.sales[idx]
	s.sales = slices.Delete(s.sales, idx, idx+1)
	return &deleted, nil
}

func (s *Store) UpdateInventoryQuantity(_ context.Context, productID string, qty int, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.unreachable {
		return store.ErrRemoteUnavailable
	}
	if s.failInvUpdateFor[productID] {
		return store.ErrRemoteUnavailable
	}

	item, exists := s.inventory[productID]
	if !exists {
		return store.ErrNotFound
	}
	item.Quantity = qty
	item.UpdatedAt = updatedAt.UTC()
	s.inventory[productID] = item
	return nil
}

func (s *Store) ReloadSalesAndInventory(_ context.Context) ([]domain.SaleRecord, []domain.InventoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.unreachable {
		return nil, nil, store.ErrRemoteUnavailable
	}

	sales := make([]domain.SaleRecord, len(s.sales))
	copy(sales, s.sales)

	items := make([]domain.InventoryItem, 0, len(s.inventory))
	for _, item := range s.inventory {
		items = append(items, item)
	}
	slices.SortFunc(items, func(a, b domain.InventoryItem) int {
		if a.Name == b.Name {
			return cmpString(a.ProductID, b.ProductID)
		}
		return cmpString(a.Name, b.Name)
	})

	return sales, items, nil
}

// InventoryQty is a test helper for asserting remote stock directly.
func (s *Store) InventoryQty(productID string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, exists := s.inventory[productID]
	return item.Quantity, exists
}

// SaleCount is a test helper.
func (s *Store) SaleCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sales)
}

func cmpString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
