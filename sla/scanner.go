package sla

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"

	"caseflow/metrics"
)

// ThresholdSource supplies the active thresholds; the settings
// repository implements it.
type ThresholdSource interface {
	SLAThresholds(ctx context.Context) ([]Threshold, error)
}

// Scanner walks open cases on a cron schedule and records SLA breaches.
// Each breach is written once per (case, level) and enqueued on the
// outbox so the notification dispatcher can fan it out.
type Scanner struct {
	pool     *pgxpool.Pool
	source   ThresholdSource
	schedule cron.Schedule
	logger   *slog.Logger
	now      func() time.Time
}

// NewScanner parses a standard five-field cron expression and returns a
// ready scanner.
func NewScanner(pool *pgxpool.Pool, source ThresholdSource, cronExpr string, logger *slog.Logger) (*Scanner, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("sla: parse schedule %q: %w", cronExpr, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{
		pool:     pool,
		source:   source,
		schedule: schedule,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Run blocks, firing RunOnce at each scheduled tick until the context is
// cancelled.
func (s *Scanner) Run(ctx context.Context) error {
	for {
		next := s.schedule.Next(s.now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		breaches, err := s.RunOnce(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			s.logger.Error("sla scan failed", "error", err)
			continue
		}
		if breaches > 0 {
			s.logger.Info("sla scan recorded breaches", "count", breaches)
		}
	}
}

// RunOnce evaluates every non-closed case against the active thresholds
// and records new breaches. It returns how many breaches were recorded.
func (s *Scanner) RunOnce(ctx context.Context) (int, error) {
	thresholds, err := s.source.SLAThresholds(ctx)
	if err != nil {
		return 0, fmt.Errorf("sla: load thresholds: %w", err)
	}
	byStatus := make(map[string]Threshold, len(thresholds))
	for _, t := range thresholds {
		byStatus[t.CaseStatus] = t
	}

	rows, err := s.pool.Query(ctx, `
        SELECT id, status::text, status_since
        FROM cases
        WHERE status <> 'closed'
    `)
	if err != nil {
		return 0, fmt.Errorf("sla: list cases: %w", err)
	}
	defer rows.Close()

	type openCase struct {
		id     string
		status string
		since  time.Time
	}
	var candidates []openCase
	for rows.Next() {
		var c openCase
		if err := rows.Scan(&c.id, &c.status, &c.since); err != nil {
			return 0, fmt.Errorf("sla: scan case: %w", err)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("sla: iterate cases: %w", err)
	}

	now := s.now()
	recorded := 0
	for _, c := range candidates {
		threshold, ok := byStatus[c.status]
		if !ok {
			continue
		}
		level := Evaluate(threshold, c.since, now)
		if level == LevelOK {
			continue
		}
		inserted, err := s.recordBreach(ctx, c.id, c.status, level)
		if err != nil {
			return recorded, err
		}
		if inserted {
			recorded++
			metrics.SLABreachesTotal.WithLabelValues(string(level)).Inc()
		}
	}
	return recorded, nil
}

// recordBreach writes the breach and its outbox alert in one
// transaction. The unique (case_id, level) constraint makes repeat scans
// idempotent.
func (s *Scanner) recordBreach(ctx context.Context, caseID, status string, level Level) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("sla: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
        INSERT INTO sla_breaches (case_id, case_status, level)
        VALUES ($1,$2,$3)
        ON CONFLICT (case_id, level) DO NOTHING
    `, caseID, status, level)
	if err != nil {
		return false, fmt.Errorf("sla: insert breach: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	payload, err := json.Marshal(map[string]any{
		"case_id":     caseID,
		"case_status": status,
		"level":       level,
	})
	if err != nil {
		return false, fmt.Errorf("sla: marshal payload: %w", err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO outbox (topic, payload) VALUES ('case.sla_breached',$1::jsonb)`, payload); err != nil {
		return false, fmt.Errorf("sla: enqueue outbox: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("sla: commit breach: %w", err)
	}
	return true, nil
}
