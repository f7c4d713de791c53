package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/whome/internal/models"
	"github.com/your-org/whome/internal/orders"
	"github.com/your-org/whome/internal/storage"
	"github.com/your-org/whome/pkg/dto"
)

// OrderService is implemented by orders.Service.
type OrderService interface {
	Place(ctx context.Context, userID, userName string, items []models.OrderItem) (*models.Order, error)
	History(ctx context.Context, userID string) ([]models.Order, error)
	FrequentItems(ctx context.Context, userID string) ([]models.OrderItem, error)
	SetStatus(ctx context.Context, id uuid.UUID, status models.OrderStatus) error
}

type OrderHandler struct {
	svc OrderService
}

func NewOrderHandler(svc OrderService) *OrderHandler {
	return &OrderHandler{svc: svc}
}

func (h *OrderHandler) Create(c *gin.Context) {
	var req dto.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	items := make([]models.OrderItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, models.OrderItem{
			MenuItemID: it.MenuItemID,
			Title:      it.Title,
			PriceCents: it.PriceCents,
			Quantity:   it.Quantity,
			ImageURL:   it.ImageURL,
		})
	}

	order, err := h.svc.Place(c.Request.Context(), req.UserID, req.UserName, items)
	if err != nil {
		if errors.Is(err, orders.ErrEmptyOrder) || errors.Is(err, orders.ErrInvalidItem) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, order)
}

// UpdateStatus completes or cancels an order.
func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	id, ok := parseID(c, "order")
	if !ok {
		return
	}
	var req dto.UpdateOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.svc.SetStatus(c.Request.Context(), id, models.OrderStatus(req.Status))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"id": id, "status": req.Status})
	case errors.Is(err, orders.ErrInvalidStatus):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// History returns the user's ten most recent orders.
func (h *OrderHandler) History(c *gin.Context) {
	list, err := h.svc.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if list == nil {
		list = []models.Order{}
	}
	c.JSON(http.StatusOK, gin.H{"orders": list, "total": len(list)})
}

func (h *OrderHandler) FrequentItems(c *gin.Context) {
	items, err := h.svc.FrequentItems(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if items == nil {
		items = []models.OrderItem{}
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": len(items)})
}
