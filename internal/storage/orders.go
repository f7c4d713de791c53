package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/your-org/whome/internal/models"
)

func (s *PostgresStore) CreateOrder(ctx context.Context, o *models.Order) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	items, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("encode order items: %w", err)
	}
	err = s.pool.QueryRow(ctx,
		`INSERT INTO orders (id, user_id, user_name, items, subtotal_cents, tax_cents, total_cents, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING order_date`,
		o.ID, o.UserID, o.UserName, items, o.SubtotalCents, o.TaxCents, o.TotalCents, o.Status,
	).Scan(&o.OrderDate)
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

// ListUserOrders returns the newest orders of userID first.
func (s *PostgresStore) ListUserOrders(ctx context.Context, userID string, limit int) ([]models.Order, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, user_name, items, subtotal_cents, tax_cents, total_cents, status, order_date
		 FROM orders WHERE user_id = $1 ORDER BY order_date DESC LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		var o models.Order
		var items []byte
		if err := rows.Scan(&o.ID, &o.UserID, &o.UserName, &items, &o.SubtotalCents,
			&o.TaxCents, &o.TotalCents, &o.Status, &o.OrderDate); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		if err := json.Unmarshal(items, &o.Items); err != nil {
			return nil, fmt.Errorf("decode items of order %s: %w", o.ID, err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (s *PostgresStore) UpdateOrderStatus(ctx context.Context, id uuid.UUID, status models.OrderStatus) error {
	tag, err := s.pool.Exec(ctx, `UPDATE orders SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
