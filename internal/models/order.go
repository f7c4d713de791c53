package models

import (
	"time"

	"github.com/google/uuid"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// GuestUserID marks orders placed without a recognized identity.
const GuestUserID = "guest"

type OrderItem struct {
	MenuItemID string `json:"menu_item_id"`
	Title      string `json:"title"`
	PriceCents int64  `json:"price_cents"`
	Quantity   int    `json:"quantity"`
	ImageURL   string `json:"image_url,omitempty"`
}

type Order struct {
	ID            uuid.UUID   `json:"id" db:"id"`
	UserID        string      `json:"user_id" db:"user_id"`
	UserName      string      `json:"user_name" db:"user_name"`
	Items         []OrderItem `json:"items" db:"items"`
	SubtotalCents int64       `json:"subtotal_cents" db:"subtotal_cents"`
	TaxCents      int64       `json:"tax_cents" db:"tax_cents"`
	TotalCents    int64       `json:"total_cents" db:"total_cents"`
	Status        OrderStatus `json:"status" db:"status"`
	OrderDate     time.Time   `json:"order_date" db:"order_date"`
}
