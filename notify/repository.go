package notify

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetSettings returns the user's toggle matrix. Users without stored
// rows get the defaults; partially stored matrices are filled in from
// the defaults so new categories appear enabled.
func (r *Repository) GetSettings(ctx context.Context, userID string) (Settings, error) {
	rows, err := r.pool.Query(ctx, `
        SELECT category, channel, enabled
        FROM notification_settings
        WHERE user_id = $1
    `, userID)
	if err != nil {
		return nil, fmt.Errorf("notify: get settings: %w", err)
	}
	defer rows.Close()

	settings := DefaultSettings()
	for rows.Next() {
		var (
			cat     Category
			ch      Channel
			enabled bool
		)
		if err := rows.Scan(&cat, &ch, &enabled); err != nil {
			return nil, fmt.Errorf("notify: scan setting: %w", err)
		}
		if _, ok := settings[cat]; ok {
			settings[cat][ch] = enabled
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("notify: iterate settings: %w", err)
	}
	return settings, nil
}

// PutSettings upserts the full matrix for a user.
func (r *Repository) PutSettings(ctx context.Context, userID string, settings Settings) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("notify: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, cat := range allCategories {
		for _, ch := range allChannels {
			if _, err := tx.Exec(ctx, `
                INSERT INTO notification_settings (user_id, category, channel, enabled)
                VALUES ($1,$2,$3,$4)
                ON CONFLICT (user_id, category, channel) DO UPDATE SET enabled=EXCLUDED.enabled
            `, userID, cat, ch, settings.Enabled(cat, ch)); err != nil {
				return fmt.Errorf("notify: upsert setting: %w", err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("notify: commit settings: %w", err)
	}
	return nil
}

// ListInbox returns the newest in-app notifications for a user.
func (r *Repository) ListInbox(ctx context.Context, userID string, limit int) ([]Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	rows, err := r.pool.Query(ctx, `
        SELECT id, user_id, category, channel, topic, payload, read_at, created_at
        FROM notifications
        WHERE user_id = $1 AND channel = 'in_app'
        ORDER BY created_at DESC
        LIMIT $2
    `, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("notify: list inbox: %w", err)
	}
	defer rows.Close()

	out := make([]Notification, 0, limit)
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Category, &n.Channel, &n.Topic, &n.Payload, &n.ReadAt, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("notify: scan notification: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("notify: iterate inbox: %w", err)
	}
	return out, nil
}

// MarkRead stamps a notification as read.
func (r *Repository) MarkRead(ctx context.Context, userID, notificationID string) error {
	if _, err := r.pool.Exec(ctx, `
        UPDATE notifications SET read_at = now()
        WHERE id = $1 AND user_id = $2 AND read_at IS NULL
    `, notificationID, userID); err != nil {
		return fmt.Errorf("notify: mark read: %w", err)
	}
	return nil
}
