package moderation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound       = errors.New("moderation: not found")
	ErrForbidden      = errors.New("moderation: forbidden")
	ErrResolved       = errors.New("moderation: request already resolved")
	ErrReasonRequired = errors.New("moderation: reason is required")
	ErrInvalidOutcome = errors.New("moderation: outcome must be approved or rejected")
)

const recordColumns = `id, case_id, requester_user_id, reason, status::text, resolved_by, resolution_note, created_at, updated_at, resolved_at`

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListForRequester returns the requester's own moderation requests,
// optionally narrowed to one case.
func (r *Repository) ListForRequester(ctx context.Context, requesterID, caseID string) ([]Record, error) {
	query := `SELECT ` + recordColumns + ` FROM moderation_requests WHERE requester_user_id = $1`
	args := []any{requesterID}
	if caseID != "" {
		query += " AND case_id = $2"
		args = append(args, caseID)
	}
	query += " ORDER BY created_at DESC"

	return r.queryRecords(ctx, query, args...)
}

// ListPending returns unresolved requests across all requesters, for the
// moderator queue.
func (r *Repository) ListPending(ctx context.Context) ([]Record, error) {
	query := `SELECT ` + recordColumns + ` FROM moderation_requests WHERE status = 'pending' ORDER BY created_at ASC`
	return r.queryRecords(ctx, query)
}

// Create inserts a pending request. The case must belong to the
// requester; the INSERT..SELECT enforces that without a separate read.
func (r *Repository) Create(ctx context.Context, requesterID, caseID, reason string) (Record, error) {
	const query = `
		INSERT INTO moderation_requests (case_id, requester_user_id, reason, status)
		SELECT $1, $2, $3, 'pending'
		FROM cases c
		WHERE c.id = $1 AND c.requester_user_id = $2
		RETURNING ` + recordColumns

	var rec Record
	err := r.pool.QueryRow(ctx, query, caseID, requesterID, reason).Scan(scanTargets(&rec)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrForbidden
		}
		return Record{}, fmt.Errorf("moderation: create: %w", err)
	}
	return rec, nil
}

// OutboxTopicResolved is emitted when a request leaves the pending state.
const OutboxTopicResolved = "moderation.resolved"

// Resolve moves a pending request to approved or rejected exactly once
// and enqueues the resolution outbox entry in the same transaction.
func (r *Repository) Resolve(ctx context.Context, moderatorID, requestID string, outcome Status, note string) (Record, error) {
	if outcome != StatusApproved && outcome != StatusRejected {
		return Record{}, fmt.Errorf("moderation: invalid outcome %q", outcome)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("moderation: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	const query = `
		UPDATE moderation_requests
		SET status = $2::moderation_status,
		    resolved_by = $3::uuid,
		    resolution_note = NULLIF($4, ''),
		    resolved_at = now(),
		    updated_at = now()
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + recordColumns

	var rec Record
	err = tx.QueryRow(ctx, query, requestID, outcome, moderatorID, note).Scan(scanTargets(&rec)...)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return Record{}, fmt.Errorf("moderation: resolve: %w", err)
		}
		var status Status
		if err := r.pool.QueryRow(ctx, `SELECT status::text FROM moderation_requests WHERE id = $1`, requestID).Scan(&status); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return Record{}, ErrNotFound
			}
			return Record{}, fmt.Errorf("moderation: resolve fetch: %w", err)
		}
		return Record{}, ErrResolved
	}

	payload, err := json.Marshal(map[string]any{
		"request_id":  rec.ID,
		"case_id":     rec.CaseID,
		"outcome":     rec.Status,
		"resolved_by": moderatorID,
	})
	if err != nil {
		return Record{}, fmt.Errorf("moderation: encode outbox payload: %w", err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO outbox (topic, payload) VALUES ($1,$2::jsonb)`, OutboxTopicResolved, payload); err != nil {
		return Record{}, fmt.Errorf("moderation: enqueue outbox: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Record{}, fmt.Errorf("moderation: commit resolve: %w", err)
	}
	return rec, nil
}

func (r *Repository) queryRecords(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("moderation: list: %w", err)
	}
	defer rows.Close()

	out := make([]Record, 0, 8)
	for rows.Next() {
		var rec Record
		if err := rows.Scan(scanTargets(&rec)...); err != nil {
			return nil, fmt.Errorf("moderation: scan: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("moderation: iterate: %w", err)
	}
	return out, nil
}

func scanTargets(r *Record) []any {
	return []any{&r.ID, &r.CaseID, &r.RequesterUserID, &r.Reason, &r.Status, &r.ResolvedBy, &r.ResolutionNote, &r.CreatedAt, &r.UpdatedAt, &r.ResolvedAt}
}
