package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// PendingStatus tags a locally captured sale. A pending sale holds one line;
// a pending-multi sale holds several lines under one grouped identifier.
type PendingStatus string

const (
	StatusPending      PendingStatus = "pending"
	StatusPendingMulti PendingStatus = "pending-multi"
)

// ConnState is the connectivity monitor's explicit state.
type ConnState string

const (
	ConnOnline  ConnState = "online"
	ConnOffline ConnState = "offline"
)

var (
	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrInvalidPrice    = errors.New("unit price must not be negative")
	ErrInvalidDiscount = errors.New("discount must be between 0 and quantity x unit price")
)

// SaleLine is one product line of a sale: the unit of replay against the
// remote service.
type SaleLine struct {
	ProductID   string          `json:"product_id"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Discount    decimal.Decimal `json:"discount"`
	Description string          `json:"description,omitempty"`
}

func (l SaleLine) Validate() error {
	if l.Quantity < 1 {
		return ErrInvalidQuantity
	}
	if l.UnitPrice.IsNegative() {
		return ErrInvalidPrice
	}
	max := l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
	if l.Discount.IsNegative() || l.Discount.GreaterThan(max) {
		return ErrInvalidDiscount
	}
	return nil
}

// Subtotal is quantity x unit price - discount.
func (l SaleLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))).Sub(l.Discount)
}

// PendingSale is a sale captured while offline or after a failed remote
// write. OfflineID is local-only and never transmitted; GroupID is shared by
// the lines of a grouped sale and does travel to the remote rows.
type PendingSale struct {
	OfflineID string        `json:"offline_id"`
	Status    PendingStatus `json:"status"`
	GroupID   string        `json:"group_id,omitempty"`
	SaleDate  string        `json:"sale_date"`
	Lines     []SaleLine    `json:"lines"`
}

func (p PendingSale) Validate() error {
	if len(p.Lines) == 0 {
		return ErrInvalidQuantity
	}
	for _, line := range p.Lines {
		if err := line.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// SaleRecord is an authoritative remote sale row. GroupID links the rows of
// a grouped sale; it is empty on single-line sales.
type SaleRecord struct {
	ID          string          `json:"id"`
	GroupID     string          `json:"group_id,omitempty"`
	ProductID   string          `json:"product_id"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Discount    decimal.Decimal `json:"discount"`
	Description string          `json:"description,omitempty"`
	SaleDate    string          `json:"sale_date"`
	CreatedAt   time.Time       `json:"created_at"`
}

func (r SaleRecord) Subtotal() decimal.Decimal {
	return SaleLine{Quantity: r.Quantity, UnitPrice: r.UnitPrice, Discount: r.Discount}.Subtotal()
}

// InventoryItem is an authoritative remote inventory row snapshot.
type InventoryItem struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// GroupedSale is a view model rebuilt on every reload from flat sale rows
// sharing a group identifier. It is never persisted on its own.
type GroupedSale struct {
	GroupID  string          `json:"group_id"`
	SaleDate string          `json:"sale_date"`
	Total    decimal.Decimal `json:"total"`
	Lines    []SaleRecord    `json:"lines"`
	Expanded bool            `json:"expanded"`
}

// SyncReport is the aggregate outcome of one reconciliation pass.
// ReconcileRetries counts sales whose insert succeeded but whose inventory
// write-down failed, leaving remote stock stale until the next full reload.
type SyncReport struct {
	Succeeded        int `json:"succeeded"`
	Failed           int `json:"failed"`
	ReconcileRetries int `json:"reconcile_retries"`
}

// SaleInput is the submission payload for a single-line sale.
type SaleInput struct {
	ProductID   string          `json:"product_id"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Discount    decimal.Decimal `json:"discount"`
	Description string          `json:"description,omitempty"`
	SaleDate    string          `json:"sale_date,omitempty"`
}

func (in SaleInput) Line() SaleLine {
	return SaleLine{
		ProductID:   in.ProductID,
		Quantity:    in.Quantity,
		UnitPrice:   in.UnitPrice,
		Discount:    in.Discount,
		Description: in.Description,
	}
}

// GroupedSaleInput is the submission payload for a multi-line sale.
type GroupedSaleInput struct {
	Lines    []SaleLine `json:"lines"`
	SaleDate string     `json:"sale_date,omitempty"`
}

// SubmitResult reports how a sale submission ended up: written remotely, or
// captured locally for a later reconciliation pass.
type SubmitResult struct {
	Synced    bool     `json:"synced"`
	OfflineID string   `json:"offline_id,omitempty"`
	GroupID   string   `json:"group_id,omitempty"`
	SaleIDs   []string `json:"sale_ids,omitempty"`
}

// SaleUpdateRequest carries the editable fields of a remote sale row.
// Edits are online-only; nil fields are left untouched.
type SaleUpdateRequest struct {
	Quantity    *int             `json:"quantity,omitempty"`
	UnitPrice   *decimal.Decimal `json:"unit_price,omitempty"`
	Discount    *decimal.Decimal `json:"discount,omitempty"`
	Description *string          `json:"description,omitempty"`
	SaleDate    *string          `json:"sale_date,omitempty"`
}
