package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"caseflow/metrics"
)

const dispatchBatchSize = 50

// Dispatcher drains the transactional outbox into per-user
// notifications, honoring each recipient's toggle matrix. It is the only
// outbox consumer; rows are claimed with SKIP LOCKED so multiple
// replicas never double-deliver.
type Dispatcher struct {
	pool         *pgxpool.Pool
	repo         *Repository
	logger       *slog.Logger
	PollInterval time.Duration
}

func NewDispatcher(pool *pgxpool.Pool, repo *Repository, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		pool:         pool,
		repo:         repo,
		logger:       logger,
		PollInterval: 5 * time.Second,
	}
}

// Run polls until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := d.RunOnce(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				d.logger.Error("outbox dispatch failed", "error", err)
			}
		}
	}
}

// RunOnce claims one batch of pending outbox rows and delivers them.
// It returns how many messages were processed.
func (d *Dispatcher) RunOnce(ctx context.Context) (int, error) {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("notify: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
        SELECT id, topic, payload
        FROM outbox
        WHERE status = 'pending'
        ORDER BY created_at ASC
        LIMIT $1
        FOR UPDATE SKIP LOCKED
    `, dispatchBatchSize)
	if err != nil {
		return 0, fmt.Errorf("notify: claim batch: %w", err)
	}

	type message struct {
		id      string
		topic   string
		payload []byte
	}
	var batch []message
	for rows.Next() {
		var m message
		if err := rows.Scan(&m.id, &m.topic, &m.payload); err != nil {
			rows.Close()
			return 0, fmt.Errorf("notify: scan outbox row: %w", err)
		}
		batch = append(batch, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("notify: iterate outbox: %w", err)
	}
	if len(batch) == 0 {
		return 0, nil
	}

	for _, m := range batch {
		// Each message delivers under a savepoint so a failure mid
		// fan-out rolls its partial notification inserts back instead
		// of committing them alongside a still-pending outbox row.
		sub, err := tx.Begin(ctx)
		if err != nil {
			return 0, fmt.Errorf("notify: begin savepoint: %w", err)
		}
		if err := d.deliver(ctx, sub, m.topic, m.payload); err != nil {
			if rbErr := sub.Rollback(ctx); rbErr != nil {
				return 0, fmt.Errorf("notify: rollback savepoint: %w", rbErr)
			}
			// Leave the row pending and bump attempts; the next poll
			// retries it from scratch.
			if _, updErr := tx.Exec(ctx, `UPDATE outbox SET attempts = attempts + 1 WHERE id=$1`, m.id); updErr != nil {
				return 0, fmt.Errorf("notify: record attempt: %w", updErr)
			}
			metrics.OutboxDispatchedTotal.WithLabelValues(m.topic, "error").Inc()
			d.logger.Warn("outbox message delivery failed", "topic", m.topic, "error", err)
			continue
		}
		if _, err := sub.Exec(ctx, `UPDATE outbox SET status='sent', attempts = attempts + 1 WHERE id=$1`, m.id); err != nil {
			return 0, fmt.Errorf("notify: mark sent: %w", err)
		}
		if err := sub.Commit(ctx); err != nil {
			return 0, fmt.Errorf("notify: commit savepoint: %w", err)
		}
		metrics.OutboxDispatchedTotal.WithLabelValues(m.topic, "ok").Inc()
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("notify: commit batch: %w", err)
	}
	return len(batch), nil
}

// deliver fans one outbox message out to its recipients' enabled
// channels inside the claiming transaction.
func (d *Dispatcher) deliver(ctx context.Context, tx pgx.Tx, topic string, payload []byte) error {
	category, ok := topicCategories[topic]
	if !ok {
		// Unknown topics are consumed without delivery.
		return nil
	}

	recipients, err := d.resolveRecipients(ctx, tx, topic, payload)
	if err != nil {
		return err
	}

	for _, userID := range recipients {
		settings, err := d.repo.GetSettings(ctx, userID)
		if err != nil {
			return err
		}
		for _, ch := range allChannels {
			if !settings.Enabled(category, ch) {
				continue
			}
			if _, err := tx.Exec(ctx, `
                INSERT INTO notifications (user_id, category, channel, topic, payload)
                VALUES ($1,$2,$3,$4,$5::jsonb)
            `, userID, category, ch, topic, payload); err != nil {
				return fmt.Errorf("notify: insert notification: %w", err)
			}
		}
	}
	return nil
}

// resolveRecipients derives who should hear about a message: the case
// requester always, plus the variable owner for variable topics.
func (d *Dispatcher) resolveRecipients(ctx context.Context, tx pgx.Tx, topic string, payload []byte) ([]string, error) {
	var body struct {
		CaseID     string `json:"case_id"`
		VariableID string `json:"variable_id"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("notify: decode payload for %s: %w", topic, err)
	}

	seen := make(map[string]bool, 2)
	var recipients []string

	if body.CaseID != "" {
		var requesterID string
		err := tx.QueryRow(ctx, `SELECT requester_user_id FROM cases WHERE id=$1`, body.CaseID).Scan(&requesterID)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("notify: resolve requester: %w", err)
		}
		if requesterID != "" && !seen[requesterID] {
			seen[requesterID] = true
			recipients = append(recipients, requesterID)
		}
	}

	if body.VariableID != "" {
		var ownerID *string
		err := tx.QueryRow(ctx, `SELECT owner_user_id FROM variables WHERE id=$1`, body.VariableID).Scan(&ownerID)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("notify: resolve owner: %w", err)
		}
		if ownerID != nil && *ownerID != "" && !seen[*ownerID] {
			seen[*ownerID] = true
			recipients = append(recipients, *ownerID)
		}
	}

	return recipients, nil
}
