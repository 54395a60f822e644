// Package store defines the remote data service the reconciliation core
// talks to. The remote side is treated as fallible and latency-bearing but
// otherwise a black box; retry granularity is the next reconciliation pass,
// never a transport-level retry.
package store

import (
	"context"
	"errors"
	"time"

	"puntoventa/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrRemoteUnavailable = errors.New("remote service unavailable")
	ErrInvalidSale       = errors.New("invalid sale")
)

type Remote interface {
	// InsertSale writes one sale row and returns it with its server-assigned
	// identifier. The local offline identifier must never reach this call.
	InsertSale(ctx context.Context, row domain.SaleRecord) (*domain.SaleRecord, error)

	// UpdateSale edits an existing sale row. Online-only; never queued.
	UpdateSale(ctx context.Context, id string, req domain.SaleUpdateRequest) (*domain.SaleRecord, error)

	// DeleteSale removes a sale row and returns the deleted row so the caller
	// can restore the sold quantity to inventory.
	DeleteSale(ctx context.Context, id string) (*domain.SaleRecord, error)

	// UpdateInventoryQuantity overwrites a product's stock and its
	// last-updated timestamp.
	UpdateInventoryQuantity(ctx context.Context, productID string, qty int, updatedAt time.Time) error

	// ReloadSalesAndInventory returns full fresh snapshots of both tables.
	ReloadSalesAndInventory(ctx context.Context) ([]domain.SaleRecord, []domain.InventoryItem, error)

	// Ping reports whether the remote service is reachable.
	Ping(ctx context.Context) error
}
