package importer

import (
	"context"
	"errors"
	"fmt"

	"caseflow/variable"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNoRows signals a commit request without any rows.
	ErrNoRows = errors.New("importer: no rows to import")
	// ErrRowsInvalid signals the batch still contains rows failing
	// validation; the preview stage is where they get fixed.
	ErrRowsInvalid = errors.New("importer: batch contains invalid rows")
)

// RowPreview pairs one mapped row with its validation problems, indexed
// by position in the upload (0 = first data row).
type RowPreview struct {
	Index  int
	Values Row
	Errors []string
}

// PreviewResult is what the client reviews before committing an import.
type PreviewResult struct {
	Mapping    Mapping
	Rows       []RowPreview
	Importable int
}

// variableCreator abstracts the variable repository for testability.
type variableCreator interface {
	CreateTx(ctx context.Context, tx pgx.Tx, params variable.CreateParams) (variable.Record, error)
}

// Service turns uploaded tables into variables attached to a case.
type Service struct {
	pool *pgxpool.Pool
	vars variableCreator
}

func NewService(pool *pgxpool.Pool, vars variableCreator) *Service {
	return &Service{pool: pool, vars: vars}
}

// Preview parses raw CSV bytes, guesses the column mapping, and
// validates every row. Nothing is persisted.
func (s *Service) Preview(data []byte) (PreviewResult, error) {
	table, err := ParseTable(data)
	if err != nil {
		return PreviewResult{}, err
	}

	mapping := MapColumns(table.Headers)

	result := PreviewResult{
		Mapping: mapping,
		Rows:    make([]RowPreview, 0, len(table.Rows)),
	}
	for i, cells := range table.Rows {
		row := BuildRow(table.Headers, cells, mapping)
		errs := ValidateRow(row)
		if len(errs) == 0 {
			result.Importable++
		}
		result.Rows = append(result.Rows, RowPreview{Index: i, Values: row, Errors: errs})
	}

	return result, nil
}

// Commit persists a reviewed batch as PENDING variables in a single
// transaction. Any invalid row aborts the whole batch: the preview stage
// already told the caller which rows to fix or drop.
func (s *Service) Commit(ctx context.Context, caseID string, rows []Row) ([]variable.Record, error) {
	if caseID == "" {
		return nil, fmt.Errorf("importer: case id required")
	}
	if len(rows) == 0 {
		return nil, ErrNoRows
	}

	for i, row := range rows {
		if errs := ValidateRow(row); len(errs) > 0 {
			return nil, fmt.Errorf("importer: row %d: %s: %w", i, errs[0], ErrRowsInvalid)
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("importer: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	records := make([]variable.Record, 0, len(rows))
	for i, row := range rows {
		rec, err := s.vars.CreateTx(ctx, tx, row.CreateParams(caseID))
		if err != nil {
			return nil, fmt.Errorf("importer: insert row %d: %w", i, err)
		}
		records = append(records, rec)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("importer: commit batch: %w", err)
	}
	return records, nil
}
