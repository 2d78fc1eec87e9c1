package settings

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"caseflow/sla"
)

type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) ListFavorites(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT case_id FROM favorites WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("settings: list favorites: %w", err)
	}
	defer rows.Close()

	out := make([]string, 0, 8)
	for rows.Next() {
		var caseID string
		if err := rows.Scan(&caseID); err != nil {
			return nil, fmt.Errorf("settings: scan favorite: %w", err)
		}
		out = append(out, caseID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("settings: iterate favorites: %w", err)
	}
	return out, nil
}

func (r *PGRepository) AddFavorite(ctx context.Context, userID, caseID string) error {
	if _, err := r.pool.Exec(ctx, `
        INSERT INTO favorites (user_id, case_id) VALUES ($1,$2)
        ON CONFLICT (user_id, case_id) DO NOTHING
    `, userID, caseID); err != nil {
		return fmt.Errorf("settings: add favorite: %w", err)
	}
	return nil
}

func (r *PGRepository) RemoveFavorite(ctx context.Context, userID, caseID string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM favorites WHERE user_id=$1 AND case_id=$2`, userID, caseID); err != nil {
		return fmt.Errorf("settings: remove favorite: %w", err)
	}
	return nil
}

func (r *PGRepository) TagsForCase(ctx context.Context, caseID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT tag FROM case_tags WHERE case_id = $1 ORDER BY tag ASC`, caseID)
	if err != nil {
		return nil, fmt.Errorf("settings: list tags: %w", err)
	}
	defer rows.Close()

	out := make([]string, 0, 4)
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("settings: scan tag: %w", err)
		}
		out = append(out, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("settings: iterate tags: %w", err)
	}
	return out, nil
}

// SetCaseTags replaces the full tag set for a case atomically.
func (r *PGRepository) SetCaseTags(ctx context.Context, caseID string, tags []string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("settings: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM case_tags WHERE case_id=$1`, caseID); err != nil {
		return fmt.Errorf("settings: clear tags: %w", err)
	}
	for _, tag := range tags {
		if tag == "" {
			continue
		}
		if _, err := tx.Exec(ctx, `INSERT INTO case_tags (case_id, tag) VALUES ($1,$2) ON CONFLICT DO NOTHING`, caseID, tag); err != nil {
			return fmt.Errorf("settings: insert tag: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("settings: commit tags: %w", err)
	}
	return nil
}

func (r *PGRepository) ListTemplates(ctx context.Context, userID string) ([]Template, error) {
	rows, err := r.pool.Query(ctx, `
        SELECT name, type, product, concept, min_history, priority, desired_lag
        FROM variable_templates
        WHERE user_id = $1
        ORDER BY name ASC
    `, userID)
	if err != nil {
		return nil, fmt.Errorf("settings: list templates: %w", err)
	}
	defer rows.Close()

	out := make([]Template, 0, 4)
	for rows.Next() {
		var tpl Template
		if err := rows.Scan(&tpl.Name, &tpl.Type, &tpl.Product, &tpl.Concept, &tpl.MinHistory, &tpl.Priority, &tpl.DesiredLag); err != nil {
			return nil, fmt.Errorf("settings: scan template: %w", err)
		}
		out = append(out, tpl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("settings: iterate templates: %w", err)
	}
	return out, nil
}

func (r *PGRepository) SaveTemplate(ctx context.Context, userID string, tpl Template) error {
	if tpl.Name == "" {
		return fmt.Errorf("settings: template name required")
	}
	if _, err := r.pool.Exec(ctx, `
        INSERT INTO variable_templates (user_id, name, type, product, concept, min_history, priority, desired_lag)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        ON CONFLICT (user_id, name) DO UPDATE
        SET type=EXCLUDED.type, product=EXCLUDED.product, concept=EXCLUDED.concept,
            min_history=EXCLUDED.min_history, priority=EXCLUDED.priority, desired_lag=EXCLUDED.desired_lag,
            updated_at=now()
    `, userID, tpl.Name, tpl.Type, tpl.Product, tpl.Concept, tpl.MinHistory, tpl.Priority, tpl.DesiredLag); err != nil {
		return fmt.Errorf("settings: save template: %w", err)
	}
	return nil
}

func (r *PGRepository) DeleteTemplate(ctx context.Context, userID, name string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM variable_templates WHERE user_id=$1 AND name=$2`, userID, name); err != nil {
		return fmt.Errorf("settings: delete template: %w", err)
	}
	return nil
}

// SLAThresholds returns stored thresholds, falling back to the defaults
// for statuses without an override.
func (r *PGRepository) SLAThresholds(ctx context.Context) ([]sla.Threshold, error) {
	rows, err := r.pool.Query(ctx, `SELECT case_status, warning_hours, critical_hours FROM sla_thresholds`)
	if err != nil {
		return nil, fmt.Errorf("settings: list sla thresholds: %w", err)
	}
	defer rows.Close()

	stored := make(map[string]sla.Threshold)
	for rows.Next() {
		var t sla.Threshold
		if err := rows.Scan(&t.CaseStatus, &t.WarningHours, &t.CriticalHours); err != nil {
			return nil, fmt.Errorf("settings: scan sla threshold: %w", err)
		}
		stored[t.CaseStatus] = t
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("settings: iterate sla thresholds: %w", err)
	}

	out := make([]sla.Threshold, 0, len(sla.DefaultThresholds))
	seen := make(map[string]bool)
	for _, def := range sla.DefaultThresholds {
		if t, ok := stored[def.CaseStatus]; ok {
			out = append(out, t)
		} else {
			out = append(out, def)
		}
		seen[def.CaseStatus] = true
	}
	for status, t := range stored {
		if !seen[status] {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *PGRepository) SaveSLAThreshold(ctx context.Context, t sla.Threshold) error {
	if t.CaseStatus == "" {
		return fmt.Errorf("settings: case status required")
	}
	if t.WarningHours < 0 || t.CriticalHours < 0 {
		return fmt.Errorf("settings: negative threshold hours")
	}
	if _, err := r.pool.Exec(ctx, `
        INSERT INTO sla_thresholds (case_status, warning_hours, critical_hours)
        VALUES ($1,$2,$3)
        ON CONFLICT (case_status) DO UPDATE
        SET warning_hours=EXCLUDED.warning_hours, critical_hours=EXCLUDED.critical_hours
    `, t.CaseStatus, t.WarningHours, t.CriticalHours); err != nil {
		return fmt.Errorf("settings: save sla threshold: %w", err)
	}
	return nil
}
