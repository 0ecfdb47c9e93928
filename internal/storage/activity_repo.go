package storage

import (
	"context"
	"fmt"

	"github.com/better-wallet/dapp-broker/pkg/types"
	"github.com/google/uuid"
)

// PgActivityRepository appends activity events to Postgres
type PgActivityRepository struct {
	store *Store
}

// NewActivityRepository creates a new PgActivityRepository
func NewActivityRepository(store *Store) *PgActivityRepository {
	return &PgActivityRepository{store: store}
}

// Append writes a new activity event. Rows are never updated or deleted.
func (r *PgActivityRepository) Append(ctx context.Context, event *types.ActivityEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	query := `
		INSERT INTO activity_events (id, kind, origin, url)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`

	err := r.store.pool.QueryRow(ctx, query,
		event.ID,
		event.Kind,
		event.Origin,
		event.URL,
	).Scan(&event.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append activity event: %w", err)
	}

	return nil
}

// List retrieves activity events with filtering, oldest first
func (r *PgActivityRepository) List(ctx context.Context, q ActivityQuery) ([]*types.ActivityEvent, error) {
	query := `
		SELECT id, kind, origin, url, created_at
		FROM activity_events
		WHERE 1=1
	`

	args := make([]interface{}, 0)
	argCount := 1

	if q.Origin != "" {
		query += fmt.Sprintf(" AND origin = $%d", argCount)
		args = append(args, q.Origin)
		argCount++
	}

	if q.Kind != "" {
		query += fmt.Sprintf(" AND kind = $%d", argCount)
		args = append(args, q.Kind)
		argCount++
	}

	query += " ORDER BY seq ASC"

	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argCount)
		args = append(args, q.Limit)
	}

	rows, err := r.store.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity events: %w", err)
	}
	defer rows.Close()

	var events []*types.ActivityEvent
	for rows.Next() {
		var e types.ActivityEvent
		if err := rows.Scan(&e.ID, &e.Kind, &e.Origin, &e.URL, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan activity event: %w", err)
		}
		events = append(events, &e)
	}

	return events, rows.Err()
}
