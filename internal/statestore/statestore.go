// Package statestore holds the in-process snapshots of remote sales and
// inventory that the rendering layer reads. Snapshots are replaced wholesale
// on reload and patched in place by the reconciliation engine after
// successful syncs.
package statestore

import (
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"puntoventa/backend/internal/domain"
)

type Store struct {
	mu        sync.RWMutex
	sales     []domain.SaleRecord
	inventory []domain.InventoryItem
	byProduct map[string]int
	expanded  map[string]bool
}

func New() *Store {
	return &Store{
		byProduct: make(map[string]int),
		expanded:  make(map[string]bool),
	}
}

// Replace swaps in fresh snapshots of both tables. Expand/collapse flags for
// grouped sales survive the reload.
func (s *Store) Replace(sales []domain.SaleRecord, items []domain.InventoryItem) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sales = make([]domain.SaleRecord, len(sales))
	copy(s.sales, sales)

	s.inventory = make([]domain.InventoryItem, len(items))
	copy(s.inventory, items)

	s.byProduct = make(map[string]int, len(items))
	for i, item := range s.inventory {
		s.byProduct[item.ProductID] = i
	}
}

// StockQty implements deltacache.StockLookup.
func (s *Store) StockQty(productID string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, exists := s.byProduct[productID]
	if !exists {
		return 0, false
	}
	return s.inventory[idx].Quantity, true
}

// SetStockQty patches one product's snapshot after a confirmed remote write.
func (s *Store) SetStockQty(productID string, qty int, updatedAt time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, exists := s.byProduct[productID]
	if !exists {
		return false
	}
	s.inventory[idx].Quantity = qty
	s.inventory[idx].UpdatedAt = updatedAt.UTC()
	return true
}

// AppendSale adds a confirmed remote row to the snapshot without a full
// reload.
func (s *Store) AppendSale(row domain.SaleRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sales = append(s.sales, row)
}

// RemoveSale drops a row from the snapshot after a remote delete.
func (s *Store) RemoveSale(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sales = slices.DeleteFunc(s.sales, func(r domain.SaleRecord) bool { return r.ID == id })
}

// UpdateSale replaces a row in the snapshot after a remote edit.
func (s *Store) UpdateSale(row domain.SaleRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.sales {
		if s.sales[i].ID == row.ID {
			s.sales[i] = row
			return
		}
	}
}

// Inventory returns a copy of the inventory snapshot.
func (s *Store) Inventory() []domain.InventoryItem {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]domain.InventoryItem, len(s.inventory))
	copy(items, s.inventory)
	return items
}

// Sales returns a copy of the flat sale rows.
func (s *Store) Sales() []domain.SaleRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.SaleRecord, len(s.sales))
	copy(sales, s.sales)
	return sales
}

// SetExpanded records the expand/collapse flag for a grouped sale.
func (s *Store) SetExpanded(groupID string, expanded bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if expanded {
		s.expanded[groupID] = true
		return
	}
	delete(s.expanded, groupID)
}

// GroupedSales rebuilds the aggregated view from the flat rows. Rows without
// a group identifier become single-line groups keyed by their row ID, so the
// rendering layer deals with one list. Group order follows first appearance
// in the flat snapshot; line order within a group is preserved.
func (s *Store) GroupedSales() []domain.GroupedSale {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order := make([]string, 0, len(s.sales))
	byKey := make(map[string]*domain.GroupedSale, len(s.sales))

	for _, row := range s.sales {
		key := row.GroupID
		if key == "" {
			key = row.ID
		}
		group, exists := byKey[key]
		if !exists {
			group = &domain.GroupedSale{
				GroupID:  key,
				SaleDate: row.SaleDate,
				Total:    decimal.Zero,
				Expanded: s.expanded[key],
			}
			byKey[key] = group
			order = append(order, key)
		}
		group.Lines = append(group.Lines, row)
		group.Total = group.Total.Add(row.Subtotal())
	}

	grouped := make([]domain.GroupedSale, 0, len(order))
	for _, key := range order {
		grouped = append(grouped, *byKey[key])
	}
	return grouped
}
