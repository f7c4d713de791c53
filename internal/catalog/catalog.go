// Package catalog holds the default shop catalog and seeds it into storage.
package catalog

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/your-org/whome/internal/models"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// ProductImagePrefix is prepended to a seed item's image file name.
const ProductImagePrefix = "/images/products/"

var ErrEmptyCatalog = errors.New("catalog has no items")

type Item struct {
	Name         string `yaml:"name"`
	Description  string `yaml:"description"`
	PriceCents   int64  `yaml:"price_cents"`
	Category     string `yaml:"category"`
	MenuCategory string `yaml:"menu_category"`
	Image        string `yaml:"image"`
}

type Catalog struct {
	Items []Item `yaml:"items"`
}

// Defaults returns the embedded coffee shop catalog.
func Defaults() (*Catalog, error) {
	return Parse(bytes.NewReader(defaultsYAML))
}

// Load reads a catalog file. An empty path returns the defaults.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Defaults()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

func Parse(r io.Reader) (*Catalog, error) {
	var c Catalog
	if err := yaml.NewDecoder(r).Decode(&c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(c.Items) == 0 {
		return nil, ErrEmptyCatalog
	}
	for i, it := range c.Items {
		if strings.TrimSpace(it.Name) == "" {
			return nil, fmt.Errorf("catalog item %d: name is required", i)
		}
		if it.PriceCents < 0 {
			return nil, fmt.Errorf("catalog item %q: negative price", it.Name)
		}
	}
	return &c, nil
}

// MenuItems maps the catalog to menu items. Every item starts available and
// falls back to the Beverages category.
func (c *Catalog) MenuItems() []models.MenuItem {
	out := make([]models.MenuItem, 0, len(c.Items))
	for _, it := range c.Items {
		category := it.MenuCategory
		if category == "" {
			category = "Beverages"
		}
		description := it.Description
		if description == "" {
			description = "Delicious " + it.Name
		}
		out = append(out, models.MenuItem{
			Title:       it.Name,
			Description: description,
			PriceCents:  it.PriceCents,
			Category:    category,
			Available:   true,
		})
	}
	return out
}

func (c *Catalog) Products() []models.Product {
	out := make([]models.Product, 0, len(c.Items))
	for _, it := range c.Items {
		p := models.Product{
			Name:        it.Name,
			Description: it.Description,
			PriceCents:  it.PriceCents,
			Category:    it.Category,
		}
		if it.Image != "" {
			p.ImageURL = ProductImagePrefix + it.Image
		}
		out = append(out, p)
	}
	return out
}

type MenuStore interface {
	CountMenuItems(ctx context.Context) (int, error)
	CreateMenuItem(ctx context.Context, m *models.MenuItem) error
}

type ProductStore interface {
	CountProducts(ctx context.Context) (int, error)
	CreateProduct(ctx context.Context, p *models.Product) error
}

// SeedMenu inserts the catalog's menu items. A non-empty menu is left alone
// unless force is set. It returns how many items were created.
func SeedMenu(ctx context.Context, store MenuStore, c *Catalog, force bool) (int, error) {
	n, err := store.CountMenuItems(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 && !force {
		slog.Info("menu already seeded", "items", n)
		return 0, nil
	}

	created := 0
	for _, m := range c.MenuItems() {
		if err := store.CreateMenuItem(ctx, &m); err != nil {
			return created, fmt.Errorf("seed menu item %q: %w", m.Title, err)
		}
		created++
	}
	return created, nil
}

func SeedProducts(ctx context.Context, store ProductStore, c *Catalog, force bool) (int, error) {
	n, err := store.CountProducts(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 && !force {
		slog.Info("products already seeded", "products", n)
		return 0, nil
	}

	created := 0
	for _, p := range c.Products() {
		if err := store.CreateProduct(ctx, &p); err != nil {
			return created, fmt.Errorf("seed product %q: %w", p.Name, err)
		}
		created++
	}
	return created, nil
}
