package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/whome/internal/models"
	"github.com/your-org/whome/internal/storage"
	"github.com/your-org/whome/pkg/dto"
)

type MenuStore interface {
	ListMenuItems(ctx context.Context, category string) ([]models.MenuItem, error)
	GetMenuItem(ctx context.Context, id uuid.UUID) (*models.MenuItem, error)
	CreateMenuItem(ctx context.Context, m *models.MenuItem) error
	UpdateMenuItem(ctx context.Context, m *models.MenuItem) error
	DeleteMenuItem(ctx context.Context, id uuid.UUID) error
}

type ProductStore interface {
	ListProducts(ctx context.Context) ([]models.Product, error)
	GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	CreateProduct(ctx context.Context, p *models.Product) error
	UpdateProduct(ctx context.Context, p *models.Product) error
	DeleteProduct(ctx context.Context, id uuid.UUID) error
}

type MenuHandler struct {
	db    MenuStore
	blobs storage.ObjectStore
}

func NewMenuHandler(db MenuStore, blobs storage.ObjectStore) *MenuHandler {
	return &MenuHandler{db: db, blobs: blobs}
}

func menuItemResponse(m *models.MenuItem) dto.MenuItemResponse {
	r := dto.MenuItemResponse{
		ID:          m.ID,
		Title:       m.Title,
		Description: m.Description,
		PriceCents:  m.PriceCents,
		Category:    m.Category,
		Available:   m.Available,
		CreatedAt:   formatTime(m.CreatedAt),
		UpdatedAt:   formatTime(m.UpdatedAt),
	}
	if m.ImageKey != "" {
		r.ImageURL = "/v1/menu/" + m.ID.String() + "/image"
	}
	return r
}

// MenuImageKey names an uploaded menu image.
func MenuImageKey(id uuid.UUID, filename string, at time.Time) string {
	name := strings.ReplaceAll(filepath.Base(filename), " ", "_")
	return fmt.Sprintf("menu/%s_%d_%s", id, at.Unix(), name)
}

// List returns menu items, optionally filtered by ?category=.
func (h *MenuHandler) List(c *gin.Context) {
	items, err := h.db.ListMenuItems(c.Request.Context(), c.Query("category"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	resp := make([]dto.MenuItemResponse, 0, len(items))
	for i := range items {
		resp = append(resp, menuItemResponse(&items[i]))
	}
	c.JSON(http.StatusOK, gin.H{"items": resp, "total": len(resp)})
}

// uploadImage stores an optional "image" field and returns its key, or ""
// when nothing was uploaded.
func (h *MenuHandler) uploadImage(c *gin.Context, id uuid.UUID) (string, bool) {
	data, header, err := readUpload(c, "image")
	if errors.Is(err, errNoUpload) {
		return "", true
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", false
	}
	key := MenuImageKey(id, header.Filename, time.Now())
	if err := h.blobs.PutObject(c.Request.Context(), key, data, contentTypeOf(header, data)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store image failed"})
		return "", false
	}
	return key, true
}

func (h *MenuHandler) Create(c *gin.Context) {
	var req dto.MenuItemRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	item := &models.MenuItem{
		ID:          uuid.New(),
		Title:       req.Title,
		Description: req.Description,
		PriceCents:  req.PriceCents,
		Category:    req.Category,
		Available:   req.Available == nil || *req.Available,
	}
	key, ok := h.uploadImage(c, item.ID)
	if !ok {
		return
	}
	item.ImageKey = key

	if err := h.db.CreateMenuItem(c.Request.Context(), item); err != nil {
		if key != "" {
			_ = h.blobs.DeleteObject(c.Request.Context(), key)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, menuItemResponse(item))
}

func (h *MenuHandler) lookup(c *gin.Context) (*models.MenuItem, bool) {
	id, ok := parseID(c, "menu item")
	if !ok {
		return nil, false
	}
	item, err := h.db.GetMenuItem(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}
	if item == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "menu item not found"})
		return nil, false
	}
	return item, true
}

// Update replaces the item's fields. A new image replaces and removes the old one.
func (h *MenuHandler) Update(c *gin.Context) {
	current, ok := h.lookup(c)
	if !ok {
		return
	}
	var req dto.MenuItemRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	item := *current
	item.Title = req.Title
	item.Description = req.Description
	item.PriceCents = req.PriceCents
	item.Category = req.Category
	if req.Available != nil {
		item.Available = *req.Available
	}
	key, ok := h.uploadImage(c, item.ID)
	if !ok {
		return
	}
	if key != "" {
		item.ImageKey = key
	}

	if err := h.db.UpdateMenuItem(c.Request.Context(), &item); err != nil {
		if key != "" {
			_ = h.blobs.DeleteObject(c.Request.Context(), key)
		}
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "menu item not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if key != "" && current.ImageKey != "" {
		h.deleteImage(c.Request.Context(), current)
	}
	c.JSON(http.StatusOK, menuItemResponse(&item))
}

func (h *MenuHandler) Delete(c *gin.Context) {
	current, ok := h.lookup(c)
	if !ok {
		return
	}
	if err := h.db.DeleteMenuItem(c.Request.Context(), current.ID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "menu item not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if current.ImageKey != "" {
		h.deleteImage(c.Request.Context(), current)
	}
	c.Status(http.StatusNoContent)
}

func (h *MenuHandler) deleteImage(ctx context.Context, item *models.MenuItem) {
	if err := h.blobs.DeleteObject(ctx, item.ImageKey); err != nil {
		slog.Warn("delete menu image", "menu_item_id", item.ID, "key", item.ImageKey, "error", err)
	}
}

// Image proxies the item's image from blob storage.
func (h *MenuHandler) Image(c *gin.Context) {
	item, ok := h.lookup(c)
	if !ok {
		return
	}
	serveObject(c, h.blobs, item.ImageKey, "image")
}

type ProductHandler struct {
	db ProductStore
}

func NewProductHandler(db ProductStore) *ProductHandler {
	return &ProductHandler{db: db}
}

func productResponse(p *models.Product) dto.ProductResponse {
	return dto.ProductResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		PriceCents:  p.PriceCents,
		Category:    p.Category,
		ImageURL:    p.ImageURL,
		CreatedAt:   formatTime(p.CreatedAt),
		UpdatedAt:   formatTime(p.UpdatedAt),
	}
}

func (h *ProductHandler) List(c *gin.Context) {
	products, err := h.db.ListProducts(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	resp := make([]dto.ProductResponse, 0, len(products))
	for i := range products {
		resp = append(resp, productResponse(&products[i]))
	}
	c.JSON(http.StatusOK, gin.H{"products": resp, "total": len(resp)})
}

func (h *ProductHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "product")
	if !ok {
		return
	}
	p, err := h.db.GetProduct(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if p == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
		return
	}
	c.JSON(http.StatusOK, productResponse(p))
}

func (h *ProductHandler) Create(c *gin.Context) {
	var req dto.ProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p := &models.Product{
		Name:        req.Name,
		Description: req.Description,
		PriceCents:  req.PriceCents,
		Category:    req.Category,
		ImageURL:    req.ImageURL,
	}
	if err := h.db.CreateProduct(c.Request.Context(), p); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, productResponse(p))
}

func (h *ProductHandler) Update(c *gin.Context) {
	id, ok := parseID(c, "product")
	if !ok {
		return
	}
	var req dto.ProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p := &models.Product{
		ID:          id,
		Name:        req.Name,
		Description: req.Description,
		PriceCents:  req.PriceCents,
		Category:    req.Category,
		ImageURL:    req.ImageURL,
	}
	if err := h.db.UpdateProduct(c.Request.Context(), p); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, productResponse(p))
}

func (h *ProductHandler) Delete(c *gin.Context) {
	id, ok := parseID(c, "product")
	if !ok {
		return
	}
	if err := h.db.DeleteProduct(c.Request.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}
