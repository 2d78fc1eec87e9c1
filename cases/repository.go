package cases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const recordColumns = `id, title, description, requester_user_id, status::text, status_since, created_at, updated_at`

// Repository defines the data access the case service needs.
type Repository interface {
	Create(ctx context.Context, params CreateParams) (Record, error)
	GetByID(ctx context.Context, id string) (Record, error)
	List(ctx context.Context, filters ListFilters) ([]Record, int, error)
	Update(ctx context.Context, id string, params UpdateParams) (Record, error)
	SetStatus(ctx context.Context, id string, status CaseStatus) (Record, error)
}

type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Create inserts a case and enqueues the creation outbox entry in one
// transaction.
func (r *PGRepository) Create(ctx context.Context, params CreateParams) (Record, error) {
	if params.Title == "" {
		return Record{}, fmt.Errorf("cases: title required")
	}
	if params.RequesterUserID == "" {
		return Record{}, fmt.Errorf("cases: requester user id required")
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("cases: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	insertSQL := `
        INSERT INTO cases (title, description, requester_user_id, status)
        VALUES ($1,$2,$3,'open')
        RETURNING ` + recordColumns

	var rec Record
	if err := tx.QueryRow(ctx, insertSQL, params.Title, params.Description, params.RequesterUserID).
		Scan(scanTargets(&rec)...); err != nil {
		return Record{}, fmt.Errorf("cases: insert: %w", err)
	}

	payload := map[string]any{
		"case_id":   rec.ID,
		"requester": rec.RequesterUserID,
		"title":     rec.Title,
	}
	if _, err := tx.Exec(ctx, `INSERT INTO outbox (topic, payload) VALUES ('case.created',$1::jsonb)`, mustJSON(payload)); err != nil {
		return Record{}, fmt.Errorf("cases: outbox insert: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Record{}, fmt.Errorf("cases: commit: %w", err)
	}
	return rec, nil
}

func (r *PGRepository) GetByID(ctx context.Context, id string) (Record, error) {
	query := `SELECT ` + recordColumns + ` FROM cases WHERE id = $1`

	var rec Record
	if err := r.pool.QueryRow(ctx, query, id).Scan(scanTargets(&rec)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("cases: get: %w", err)
	}
	return rec, nil
}

func (r *PGRepository) List(ctx context.Context, filters ListFilters) ([]Record, int, error) {
	if filters.Page <= 0 {
		filters.Page = 1
	}
	if filters.PageSize <= 0 || filters.PageSize > 100 {
		filters.PageSize = 20
	}

	where := `WHERE ($1 = '' OR requester_user_id::text = $1) AND ($2 = '' OR status::text = $2)`

	query := `
        SELECT ` + recordColumns + `
        FROM cases
        ` + where + `
        ORDER BY created_at DESC
        LIMIT $3 OFFSET $4
    `

	rows, err := r.pool.Query(ctx, query, filters.RequesterUserID, string(filters.Status), filters.PageSize, (filters.Page-1)*filters.PageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("cases: list: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var rec Record
		if err := rows.Scan(scanTargets(&rec)...); err != nil {
			return nil, 0, fmt.Errorf("cases: scan: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("cases: iterate: %w", err)
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM cases ` + where
	if err := r.pool.QueryRow(ctx, countQuery, filters.RequesterUserID, string(filters.Status)).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("cases: count: %w", err)
	}

	return records, total, nil
}

func (r *PGRepository) Update(ctx context.Context, id string, params UpdateParams) (Record, error) {
	query := `
        UPDATE cases
        SET title       = COALESCE($2, title),
            description = COALESCE($3, description),
            updated_at  = now()
        WHERE id = $1 AND status <> 'closed'
        RETURNING ` + recordColumns

	var rec Record
	if err := r.pool.QueryRow(ctx, query, id, params.Title, params.Description).Scan(scanTargets(&rec)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if _, getErr := r.GetByID(ctx, id); getErr == nil {
				return Record{}, ErrClosed
			}
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("cases: update: %w", err)
	}
	return rec, nil
}

// SetStatus moves the case between open/in_progress/closed and resets the
// SLA clock (status_since) in the same statement.
func (r *PGRepository) SetStatus(ctx context.Context, id string, status CaseStatus) (Record, error) {
	if !status.Valid() {
		return Record{}, fmt.Errorf("cases: invalid status %q", status)
	}

	query := `
        UPDATE cases
        SET status = $2::case_status,
            status_since = now(),
            updated_at = now()
        WHERE id = $1
        RETURNING ` + recordColumns

	var rec Record
	if err := r.pool.QueryRow(ctx, query, id, status).Scan(scanTargets(&rec)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("cases: set status: %w", err)
	}
	return rec, nil
}

func scanTargets(r *Record) []any {
	return []any{&r.ID, &r.Title, &r.Description, &r.RequesterUserID, &r.Status, &r.StatusSince, &r.CreatedAt, &r.UpdatedAt}
}

func mustJSON(payload map[string]any) string {
	b, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	return string(b)
}
