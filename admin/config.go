// Package admin stores the single system configuration document,
// validated against an embedded JSON Schema before it is persisted.
package admin

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xeipuuv/gojsonschema"
)

//go:embed schemas/system_config.json
var schemaFS embed.FS

// ErrInvalidConfig wraps schema validation failures; the message names
// the first offending property.
var ErrInvalidConfig = errors.New("admin: config failed validation")

// DefaultConfig is served until an admin stores an override.
var DefaultConfig = json.RawMessage(`{
  "max_variables_per_case": 100,
  "import_max_rows": 1000,
  "allow_self_approval": false,
  "moderation_required_above_priority": "High",
  "sla_scan_cron": "*/30 * * * *"
}`)

// Validate checks a config document against the embedded schema.
func Validate(doc []byte) error {
	raw, err := schemaFS.ReadFile("schemas/system_config.json")
	if err != nil {
		return fmt.Errorf("admin: read embedded schema: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(raw),
		gojsonschema.NewBytesLoader(doc),
	)
	if err != nil {
		return fmt.Errorf("admin: validate config: %w", err)
	}
	if result.Valid() {
		return nil
	}
	if len(result.Errors()) == 0 {
		return ErrInvalidConfig
	}
	return fmt.Errorf("%w: %s", ErrInvalidConfig, result.Errors()[0].String())
}

// Service reads and writes the stored config document.
type Service struct {
	pool *pgxpool.Pool
}

func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

// Get returns the stored config, or DefaultConfig when nothing has been
// stored yet.
func (s *Service) Get(ctx context.Context) (json.RawMessage, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx, `SELECT document FROM system_config WHERE id = 1`).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DefaultConfig, nil
		}
		return nil, fmt.Errorf("admin: get config: %w", err)
	}
	return doc, nil
}

// Put validates and upserts the config document.
func (s *Service) Put(ctx context.Context, doc []byte) error {
	if err := Validate(doc); err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, `
        INSERT INTO system_config (id, document) VALUES (1, $1::jsonb)
        ON CONFLICT (id) DO UPDATE SET document = EXCLUDED.document, updated_at = now()
    `, doc); err != nil {
		return fmt.Errorf("admin: put config: %w", err)
	}
	return nil
}
