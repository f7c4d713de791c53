package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/your-org/whome/internal/descriptor"
	"github.com/your-org/whome/internal/models"
)

const identityColumns = `id, name, email, phone, descriptor, snapshot_key, photo_key, registered_at, updated_at, last_greeted_at`

func scanIdentity(row rowScanner, id *models.Identity) error {
	return row.Scan(&id.ID, &id.Name, &id.Email, &id.Phone, &id.Descriptor,
		&id.SnapshotKey, &id.PhotoKey, &id.RegisteredAt, &id.UpdatedAt, &id.LastGreetedAt)
}

// embeddingOf returns the vector column value for an encoded descriptor, or
// nil when the descriptor is missing or malformed.
func embeddingOf(encoded string) *pgvector.Vector {
	d, err := descriptor.DecodeStrict(encoded)
	if err != nil {
		return nil
	}
	v := pgvector.NewVector(d)
	return &v
}

// CreateIdentity inserts ident. A zero ID is replaced by a new one.
func (s *PostgresStore) CreateIdentity(ctx context.Context, ident *models.Identity) error {
	if ident.ID == uuid.Nil {
		ident.ID = uuid.New()
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO identities (id, name, email, phone, descriptor, embedding, snapshot_key, photo_key)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING registered_at, updated_at`,
		ident.ID, ident.Name, ident.Email, ident.Phone, ident.Descriptor,
		embeddingOf(ident.Descriptor), ident.SnapshotKey, ident.PhotoKey,
	).Scan(&ident.RegisteredAt, &ident.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create identity: %w", err)
	}
	return nil
}

// ListIdentities returns every identity in registration order. The order is
// the matcher's tie-break order.
func (s *PostgresStore) ListIdentities(ctx context.Context) ([]models.Identity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+identityColumns+` FROM identities ORDER BY registered_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	defer rows.Close()

	var identities []models.Identity
	for rows.Next() {
		var id models.Identity
		if err := scanIdentity(rows, &id); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		identities = append(identities, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	return identities, nil
}

func (s *PostgresStore) GetIdentity(ctx context.Context, id uuid.UUID) (*models.Identity, error) {
	ident := &models.Identity{}
	err := scanIdentity(s.pool.QueryRow(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE id = $1`, id), ident)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get identity: %w", err)
	}
	return ident, nil
}

// FindIdentityByEmail returns the earliest identity registered with email.
func (s *PostgresStore) FindIdentityByEmail(ctx context.Context, email string) (*models.Identity, error) {
	ident := &models.Identity{}
	err := scanIdentity(s.pool.QueryRow(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE lower(email) = lower($1)
		 ORDER BY registered_at ASC LIMIT 1`, email), ident)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find identity by email: %w", err)
	}
	return ident, nil
}

// UpdateIdentity applies the non-nil fields of upd and returns the updated row.
func (s *PostgresStore) UpdateIdentity(ctx context.Context, id uuid.UUID, upd models.IdentityUpdate) (*models.Identity, error) {
	ident := &models.Identity{}
	err := scanIdentity(s.pool.QueryRow(ctx,
		`UPDATE identities SET
			name = COALESCE($2, name),
			email = COALESCE($3, email),
			phone = COALESCE($4, phone),
			photo_key = COALESCE($5, photo_key),
			updated_at = now()
		 WHERE id = $1
		 RETURNING `+identityColumns,
		id, upd.Name, upd.Email, upd.Phone, upd.PhotoKey), ident)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update identity: %w", err)
	}
	return ident, nil
}

func (s *PostgresStore) DeleteIdentity(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM identities WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete identity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchLastGreeted records when an identity was last recognized.
func (s *PostgresStore) TouchLastGreeted(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE identities SET last_greeted_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("touch last greeted: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SearchIdentities returns the identities closest to d by L2 distance, with
// similarity expressed the same way as the matcher (1 - distance).
func (s *PostgresStore) SearchIdentities(ctx context.Context, d descriptor.Descriptor, limit int) ([]models.IdentityMatch, error) {
	if limit <= 0 {
		limit = 5
	}
	vec := pgvector.NewVector(d)

	rows, err := s.pool.Query(ctx,
		`SELECT `+identityColumns+`, 1 - (embedding <-> $1) AS similarity
		 FROM identities
		 WHERE embedding IS NOT NULL
		 ORDER BY embedding <-> $1, registered_at ASC
		 LIMIT $2`,
		vec, limit)
	if err != nil {
		return nil, fmt.Errorf("search identities: %w", err)
	}
	defer rows.Close()

	var matches []models.IdentityMatch
	for rows.Next() {
		var m models.IdentityMatch
		id := &m.Identity
		if err := rows.Scan(&id.ID, &id.Name, &id.Email, &id.Phone, &id.Descriptor,
			&id.SnapshotKey, &id.PhotoKey, &id.RegisteredAt, &id.UpdatedAt, &id.LastGreetedAt,
			&m.Similarity); err != nil {
			return nil, fmt.Errorf("scan identity match: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search identities: %w", err)
	}
	return matches, nil
}
