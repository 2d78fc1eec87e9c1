package variable

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const recordColumns = `id, case_id, name, type, product, concept, min_history, priority, desired_lag, select_options, status::text, matched_table, owner_user_id, created_at, updated_at`

// Repository defines the data access the workflow and import services need.
type Repository interface {
	Create(ctx context.Context, params CreateParams) (Record, error)
	CreateTx(ctx context.Context, tx pgx.Tx, params CreateParams) (Record, error)
	GetByID(ctx context.Context, id string) (Record, error)
	ListByCase(ctx context.Context, caseID string) ([]Record, error)
	Update(ctx context.Context, id string, params UpdateParams) (Record, error)
	ListTimeline(ctx context.Context, variableID string) ([]TimelineEvent, error)
}

type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) Create(ctx context.Context, params CreateParams) (Record, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("variable: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rec, err := r.CreateTx(ctx, tx, params)
	if err != nil {
		return Record{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Record{}, fmt.Errorf("variable: commit create: %w", err)
	}
	return rec, nil
}

// CreateTx inserts a variable plus its creation timeline event and outbox
// entry inside the caller's transaction. Import commits use it to make a
// whole batch all-or-nothing.
func (r *PGRepository) CreateTx(ctx context.Context, tx pgx.Tx, params CreateParams) (Record, error) {
	if params.CaseID == "" {
		return Record{}, fmt.Errorf("variable: case id required")
	}
	if !params.Type.Valid() {
		return Record{}, fmt.Errorf("variable: invalid type %q", params.Type)
	}
	if !params.Priority.Valid() {
		return Record{}, fmt.Errorf("variable: invalid priority %q", params.Priority)
	}

	insertSQL := `
        INSERT INTO variables (case_id, name, type, product, concept, min_history, priority, desired_lag, select_options, status)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,'PENDING'::variable_status)
        RETURNING ` + recordColumns

	var rec Record
	if err := tx.QueryRow(ctx, insertSQL,
		params.CaseID,
		params.Name,
		params.Type,
		params.Product,
		params.Concept,
		params.MinHistory,
		params.Priority,
		params.DesiredLag,
		params.SelectOptions,
	).Scan(scanTargets(&rec)...); err != nil {
		return Record{}, fmt.Errorf("variable: insert: %w", err)
	}

	payload := map[string]any{
		"case_id": rec.CaseID,
		"name":    rec.Name,
		"type":    rec.Type,
	}
	if _, err := tx.Exec(ctx, `INSERT INTO variable_timeline (variable_id, type, payload) VALUES ($1,'VARIABLE_CREATED',$2::jsonb)`, rec.ID, mustJSON(payload)); err != nil {
		return Record{}, fmt.Errorf("variable: timeline insert: %w", err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO outbox (topic, payload) VALUES ($1,$2::jsonb)`, OutboxTopicCreated, mustJSON(map[string]any{
		"variable_id": rec.ID,
		"case_id":     rec.CaseID,
	})); err != nil {
		return Record{}, fmt.Errorf("variable: outbox insert: %w", err)
	}

	return rec, nil
}

func (r *PGRepository) GetByID(ctx context.Context, id string) (Record, error) {
	query := `SELECT ` + recordColumns + ` FROM variables WHERE id = $1`

	var rec Record
	if err := r.pool.QueryRow(ctx, query, id).Scan(scanTargets(&rec)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("variable: get: %w", err)
	}
	return rec, nil
}

func (r *PGRepository) ListByCase(ctx context.Context, caseID string) ([]Record, error) {
	query := `SELECT ` + recordColumns + ` FROM variables WHERE case_id = $1 ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query, caseID)
	if err != nil {
		return nil, fmt.Errorf("variable: list: %w", err)
	}
	defer rows.Close()

	out := make([]Record, 0, 8)
	for rows.Next() {
		var rec Record
		if err := rows.Scan(scanTargets(&rec)...); err != nil {
			return nil, fmt.Errorf("variable: scan: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("variable: iterate: %w", err)
	}
	return out, nil
}

// Update applies requester edits. The WHERE clause restricts edits to
// pre-approval statuses so a concurrent transition cannot be overwritten.
func (r *PGRepository) Update(ctx context.Context, id string, params UpdateParams) (Record, error) {
	query := `
        UPDATE variables
        SET name        = COALESCE($2, name),
            concept     = COALESCE($3, concept),
            min_history = COALESCE($4, min_history),
            priority    = COALESCE($5, priority),
            desired_lag = COALESCE($6, desired_lag),
            updated_at  = now()
        WHERE id = $1
          AND status NOT IN ('APPROVED','REJECTED','CANCELLED')
        RETURNING ` + recordColumns

	var rec Record
	err := r.pool.QueryRow(ctx, query, id, params.Name, params.Concept, params.MinHistory, params.Priority, params.DesiredLag).
		Scan(scanTargets(&rec)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Either the row is missing or it is past pre-approval.
			if _, getErr := r.GetByID(ctx, id); getErr == nil {
				return Record{}, ErrImmutable
			}
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("variable: update: %w", err)
	}
	return rec, nil
}

func (r *PGRepository) ListTimeline(ctx context.Context, variableID string) ([]TimelineEvent, error) {
	const query = `
        SELECT id, variable_id, seq, type, actor_id, created_at, payload
        FROM variable_timeline
        WHERE variable_id = $1
        ORDER BY seq ASC
    `

	rows, err := r.pool.Query(ctx, query, variableID)
	if err != nil {
		return nil, fmt.Errorf("variable: list timeline: %w", err)
	}
	defer rows.Close()

	out := make([]TimelineEvent, 0, 8)
	for rows.Next() {
		var ev TimelineEvent
		if err := rows.Scan(&ev.ID, &ev.VariableID, &ev.Seq, &ev.Type, &ev.ActorID, &ev.CreatedAt, &ev.Payload); err != nil {
			return nil, fmt.Errorf("variable: scan timeline: %w", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("variable: iterate timeline: %w", err)
	}
	return out, nil
}

func scanTargets(r *Record) []any {
	return []any{
		&r.ID, &r.CaseID, &r.Name, &r.Type, &r.Product, &r.Concept,
		&r.MinHistory, &r.Priority, &r.DesiredLag, &r.SelectOptions,
		&r.Status, &r.MatchedTable, &r.OwnerUserID, &r.CreatedAt, &r.UpdatedAt,
	}
}

func mustJSON(payload map[string]any) string {
	b, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	return string(b)
}
