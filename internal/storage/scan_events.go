package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/whome/internal/models"
)

func (s *PostgresStore) CreateScanEvent(ctx context.Context, ev *models.ScanEvent) error {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	ev.CreatedAt = time.Now()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO scan_events (id, camera, surface, state, identity_id, score, attempts, occurred_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		ev.ID, ev.Camera, ev.Surface, ev.State, ev.IdentityID, ev.Score, ev.Attempts, ev.OccurredAt, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("create scan event: %w", err)
	}
	return nil
}

// ListScanEvents returns the latest events, optionally for one camera.
func (s *PostgresStore) ListScanEvents(ctx context.Context, camera string, limit int) ([]models.ScanEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	query := `SELECT id, camera, surface, state, identity_id, score, attempts, occurred_at, created_at FROM scan_events`
	args := []any{}
	if camera != "" {
		query += ` WHERE camera = $1 ORDER BY occurred_at DESC LIMIT $2`
		args = append(args, camera, limit)
	} else {
		query += ` ORDER BY occurred_at DESC LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list scan events: %w", err)
	}
	defer rows.Close()

	var events []models.ScanEvent
	for rows.Next() {
		var ev models.ScanEvent
		if err := rows.Scan(&ev.ID, &ev.Camera, &ev.Surface, &ev.State, &ev.IdentityID,
			&ev.Score, &ev.Attempts, &ev.OccurredAt, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan scan event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
