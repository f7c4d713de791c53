package dto

import "github.com/google/uuid"

type MenuItemRequest struct {
	Title       string `form:"title" json:"title" binding:"required"`
	Description string `form:"description" json:"description"`
	PriceCents  int64  `form:"price_cents" json:"price_cents" binding:"min=0"`
	Category    string `form:"category" json:"category" binding:"required"`
	Available   *bool  `form:"available" json:"available"`
}

type ProductRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	PriceCents  int64  `json:"price_cents" binding:"min=0"`
	Category    string `json:"category" binding:"required"`
	ImageURL    string `json:"image_url"`
}

type OrderItemRequest struct {
	MenuItemID string `json:"menu_item_id" binding:"required"`
	Title      string `json:"title"`
	PriceCents int64  `json:"price_cents" binding:"min=0"`
	Quantity   int    `json:"quantity" binding:"required,min=1"`
	ImageURL   string `json:"image_url"`
}

type CreateOrderRequest struct {
	UserID   string             `json:"user_id"`
	UserName string             `json:"user_name"`
	Items    []OrderItemRequest `json:"items" binding:"required,min=1,dive"`
}

type UpdateOrderStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=pending completed cancelled"`
}

type MenuItemResponse struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	PriceCents  int64     `json:"price_cents"`
	Category    string    `json:"category"`
	ImageURL    string    `json:"image_url,omitempty"`
	Available   bool      `json:"available"`
	CreatedAt   string    `json:"created_at"`
	UpdatedAt   string    `json:"updated_at"`
}

type ProductResponse struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	PriceCents  int64     `json:"price_cents"`
	Category    string    `json:"category"`
	ImageURL    string    `json:"image_url,omitempty"`
	CreatedAt   string    `json:"created_at"`
	UpdatedAt   string    `json:"updated_at"`
}
