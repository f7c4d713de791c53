package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/your-org/whome/internal/models"
)

const menuColumns = `id, title, description, price_cents, category, image_key, available, created_at, updated_at`

func scanMenuItem(row rowScanner, m *models.MenuItem) error {
	return row.Scan(&m.ID, &m.Title, &m.Description, &m.PriceCents, &m.Category,
		&m.ImageKey, &m.Available, &m.CreatedAt, &m.UpdatedAt)
}

func (s *PostgresStore) CreateMenuItem(ctx context.Context, m *models.MenuItem) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO menu_items (id, title, description, price_cents, category, image_key, available)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING created_at, updated_at`,
		m.ID, m.Title, m.Description, m.PriceCents, m.Category, m.ImageKey, m.Available,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create menu item: %w", err)
	}
	return nil
}

// ListMenuItems returns items ordered by category and title. An empty
// category lists everything.
func (s *PostgresStore) ListMenuItems(ctx context.Context, category string) ([]models.MenuItem, error) {
	query := `SELECT ` + menuColumns + ` FROM menu_items`
	var args []any
	if category != "" {
		query += ` WHERE category = $1`
		args = append(args, category)
	}
	query += ` ORDER BY category, title`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list menu items: %w", err)
	}
	defer rows.Close()

	var items []models.MenuItem
	for rows.Next() {
		var m models.MenuItem
		if err := scanMenuItem(rows, &m); err != nil {
			return nil, fmt.Errorf("scan menu item: %w", err)
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

func (s *PostgresStore) GetMenuItem(ctx context.Context, id uuid.UUID) (*models.MenuItem, error) {
	m := &models.MenuItem{}
	err := scanMenuItem(s.pool.QueryRow(ctx,
		`SELECT `+menuColumns+` FROM menu_items WHERE id = $1`, id), m)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get menu item: %w", err)
	}
	return m, nil
}

// UpdateMenuItem overwrites every editable column of m.
func (s *PostgresStore) UpdateMenuItem(ctx context.Context, m *models.MenuItem) error {
	err := s.pool.QueryRow(ctx,
		`UPDATE menu_items SET title = $2, description = $3, price_cents = $4, category = $5,
			image_key = $6, available = $7, updated_at = now()
		 WHERE id = $1 RETURNING created_at, updated_at`,
		m.ID, m.Title, m.Description, m.PriceCents, m.Category, m.ImageKey, m.Available,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("update menu item: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteMenuItem(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM menu_items WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete menu item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Products ---

const productColumns = `id, name, description, price_cents, category, image_url, created_at, updated_at`

func scanProduct(row rowScanner, p *models.Product) error {
	return row.Scan(&p.ID, &p.Name, &p.Description, &p.PriceCents, &p.Category,
		&p.ImageURL, &p.CreatedAt, &p.UpdatedAt)
}

func (s *PostgresStore) CreateProduct(ctx context.Context, p *models.Product) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO products (id, name, description, price_cents, category, image_url)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING created_at, updated_at`,
		p.ID, p.Name, p.Description, p.PriceCents, p.Category, p.ImageURL,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create product: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListProducts(ctx context.Context) ([]models.Product, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+productColumns+` FROM products ORDER BY category, name`)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		var p models.Product
		if err := scanProduct(rows, &p); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *PostgresStore) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	p := &models.Product{}
	err := scanProduct(s.pool.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, id), p)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) UpdateProduct(ctx context.Context, p *models.Product) error {
	err := s.pool.QueryRow(ctx,
		`UPDATE products SET name = $2, description = $3, price_cents = $4, category = $5,
			image_url = $6, updated_at = now()
		 WHERE id = $1 RETURNING created_at, updated_at`,
		p.ID, p.Name, p.Description, p.PriceCents, p.Category, p.ImageURL,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("update product: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CountProducts(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count products: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) CountMenuItems(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM menu_items`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count menu items: %w", err)
	}
	return n, nil
}
