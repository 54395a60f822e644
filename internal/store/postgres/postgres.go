package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"puntoventa/backend/internal/domain"
	"puntoventa/backend/internal/store"
	"puntoventa/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return store.ErrRemoteUnavailable
	}
	return nil
}

func (s *Store) InsertSale(ctx context.Context, row domain.SaleRecord) (*domain.SaleRecord, error) {
	if row.ProductID == "" || row.Quantity < 1 || row.UnitPrice.IsNegative() {
		return nil, store.ErrInvalidSale
	}
	if row.ID == "" {
		row.ID = xid.New("sale")
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sales (id, group_id, product_id, quantity, unit_price, discount, description, sale_date, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, row.ID, nullString(row.GroupID), row.ProductID, row.Quantity, row.UnitPrice, row.Discount, row.Description, row.SaleDate, row.CreatedAt)
	if err != nil {
		return nil, err
	}

	created := row
	return &created, nil
}

func (s *Store) UpdateSale(ctx context.Context, id string, req domain.SaleUpdateRequest) (*domain.SaleRecord, error) {
	existing, err := s.findSale(ctx, id)
	if err != nil {
		return nil, err
	}

	updated := *existing
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
	line := domain.SaleLine{Quantity: updated.Quantity, UnitPrice: updated.UnitPrice, Discount: updated.Discount, ProductID: updated.ProductID}
	if err := line.Validate(); err != nil {
		return nil, store.ErrInvalidSale
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE sales
		SET quantity = $2, unit_price = $3, discount = $4, description = $5, sale_date = $6
		WHERE id = $1
	`, id, updated.Quantity, updated.UnitPrice, updated.Discount, updated.Description, updated.SaleDate)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	return &updated, nil
}

func (s *Store) DeleteSale(ctx context.Context, id string) (*domain.SaleRecord, error) {
	existing, err := s.findSale(ctx, id)
	if err != nil {
		return nil, err
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	return existing, nil
}

func (s *Store) UpdateInventoryQuantity(ctx context.Context, productID string, qty int, updatedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE inventory_items
		SET quantity = $2, updated_at = $3
		WHERE product_id = $1
	`, productID, qty, updatedAt)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ReloadSalesAndInventory(ctx context.Context) ([]domain.SaleRecord, []domain.InventoryItem, error) {
	sales, err := s.listSales(ctx)
	if err != nil {
		return nil, nil, err
	}
	items, err := s.listInventory(ctx)
	if err != nil {
		return nil, nil, err
	}
	return sales, items, nil
}

func (s *Store) findSale(ctx context.Context, id string) (*domain.SaleRecord, error) {
	var (
		row     domain.SaleRecord
		groupID sql.NullString
		price   decimal.Decimal
		disc    decimal.Decimal
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, group_id, product_id, quantity, unit_price, discount, description, sale_date, created_at
		FROM sales
		WHERE id = $1
	`, id).Scan(&row.ID, &groupID, &row.ProductID, &row.Quantity, &price, &disc, &row.Description, &row.SaleDate, &row.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	row.GroupID = groupID.String
	row.UnitPrice = price
	row.Discount = disc
	row.CreatedAt = row.CreatedAt.UTC()
	return &row, nil
}

func (s *Store) listSales(ctx context.Context) ([]domain.SaleRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, group_id, product_id, quantity, unit_price, discount, description, sale_date, created_at
		FROM sales
		ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.SaleRecord, 0, 256)
	for rows.Next() {
		var (
			row     domain.SaleRecord
			groupID sql.NullString
		)
		if err := rows.Scan(&row.ID, &groupID, &row.ProductID, &row.Quantity, &row.UnitPrice, &row.Discount, &row.Description, &row.SaleDate, &row.CreatedAt); err != nil {
			return nil, err
		}
		row.GroupID = groupID.String
		row.CreatedAt = row.CreatedAt.UTC()
		sales = append(sales, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) listInventory(ctx context.Context) ([]domain.InventoryItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, name, unit_price, quantity, updated_at
		FROM inventory_items
		ORDER BY name, product_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.InventoryItem, 0, 128)
	for rows.Next() {
		var item domain.InventoryItem
		if err := rows.Scan(&item.ProductID, &item.Name, &item.UnitPrice, &item.Quantity, &item.UpdatedAt); err != nil {
			return nil, err
		}
		item.UpdatedAt = item.UpdatedAt.UTC()
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
