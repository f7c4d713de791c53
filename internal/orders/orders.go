// Package orders prices point-of-sale orders and summarizes order history.
package orders

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/your-org/whome/internal/models"
)

// TaxRate is applied to the order subtotal.
const TaxRate = 0.08

const (
	// HistoryLimit is the default page of a user's recent orders.
	HistoryLimit = 10
	// FrequentWindow is how many recent orders FrequentItems looks at.
	FrequentWindow = 20
	// FrequentLimit is how many items FrequentItems returns.
	FrequentLimit = 6
)

var (
	ErrEmptyOrder    = errors.New("order has no items")
	ErrInvalidItem   = errors.New("order item needs an id, a non-negative price and a positive quantity")
	ErrInvalidStatus = errors.New("order status must be pending, completed or cancelled")
)

type Store interface {
	CreateOrder(ctx context.Context, o *models.Order) error
	ListUserOrders(ctx context.Context, userID string, limit int) ([]models.Order, error)
	UpdateOrderStatus(ctx context.Context, id uuid.UUID, status models.OrderStatus) error
}

type Totals struct {
	SubtotalCents int64 `json:"subtotal_cents"`
	TaxCents      int64 `json:"tax_cents"`
	TotalCents    int64 `json:"total_cents"`
}

// ComputeTotals sums the items and adds tax rounded to the nearest cent.
func ComputeTotals(items []models.OrderItem) Totals {
	var subtotal int64
	for _, it := range items {
		subtotal += it.PriceCents * int64(it.Quantity)
	}
	tax := int64(math.Round(float64(subtotal) * TaxRate))
	return Totals{SubtotalCents: subtotal, TaxCents: tax, TotalCents: subtotal + tax}
}

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// Place creates a pending order. An empty userID is recorded as the guest user.
func (s *Service) Place(ctx context.Context, userID, userName string, items []models.OrderItem) (*models.Order, error) {
	if len(items) == 0 {
		return nil, ErrEmptyOrder
	}
	for _, it := range items {
		if strings.TrimSpace(it.MenuItemID) == "" || it.PriceCents < 0 || it.Quantity <= 0 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidItem, it.MenuItemID)
		}
	}
	if userID == "" {
		userID = models.GuestUserID
	}

	totals := ComputeTotals(items)
	o := &models.Order{
		UserID:        userID,
		UserName:      userName,
		Items:         items,
		SubtotalCents: totals.SubtotalCents,
		TaxCents:      totals.TaxCents,
		TotalCents:    totals.TotalCents,
		Status:        models.OrderStatusPending,
	}
	if err := s.store.CreateOrder(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// SetStatus moves an order to status.
func (s *Service) SetStatus(ctx context.Context, id uuid.UUID, status models.OrderStatus) error {
	switch status {
	case models.OrderStatusPending, models.OrderStatusCompleted, models.OrderStatusCancelled:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	return s.store.UpdateOrderStatus(ctx, id, status)
}

// History returns the user's most recent orders, newest first.
func (s *Service) History(ctx context.Context, userID string) ([]models.Order, error) {
	return s.store.ListUserOrders(ctx, userID, HistoryLimit)
}

// FrequentItems returns the items the user ordered most across their
// recent orders, by total quantity.
func (s *Service) FrequentItems(ctx context.Context, userID string) ([]models.OrderItem, error) {
	orders, err := s.store.ListUserOrders(ctx, userID, FrequentWindow)
	if err != nil {
		return nil, err
	}
	return FrequentItems(orders, FrequentLimit), nil
}

// FrequentItems aggregates quantities per menu item. Each item is
// represented by its first occurrence; ties keep first-seen order.
func FrequentItems(orders []models.Order, limit int) []models.OrderItem {
	type tally struct {
		item  models.OrderItem
		count int
	}
	index := make(map[string]int)
	var tallies []tally

	for _, o := range orders {
		for _, it := range o.Items {
			if i, ok := index[it.MenuItemID]; ok {
				tallies[i].count += it.Quantity
				continue
			}
			index[it.MenuItemID] = len(tallies)
			tallies = append(tallies, tally{item: it, count: it.Quantity})
		}
	}

	sort.SliceStable(tallies, func(i, j int) bool { return tallies[i].count > tallies[j].count })
	if len(tallies) > limit {
		tallies = tallies[:limit]
	}

	out := make([]models.OrderItem, len(tallies))
	for i, t := range tallies {
		out[i] = t.item
	}
	return out
}
