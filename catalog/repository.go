package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound signals the requested catalog table does not exist.
var ErrNotFound = errors.New("catalog: not found")

// Repository provides read access to the data catalog.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository wires a pgxpool-backed repository implementation.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetByName fetches a catalog table by its unique name.
func (r *Repository) GetByName(ctx context.Context, name string) (Table, error) {
	const query = `
		SELECT id, name, product, owner_user_id, certified, created_at
		FROM catalog_tables
		WHERE name = $1
	`

	var table Table
	err := r.pool.QueryRow(ctx, query, name).Scan(
		&table.ID,
		&table.Name,
		&table.Product,
		&table.OwnerUserID,
		&table.Certified,
		&table.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Table{}, ErrNotFound
		}
		return Table{}, fmt.Errorf("catalog: query by name: %w", err)
	}

	return table, nil
}

// Search fetches up to limit catalog tables whose name or product
// contains the term, ordered by name. An empty term lists everything up
// to the limit.
func (r *Repository) Search(ctx context.Context, term string, limit int) ([]Table, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	const query = `
		SELECT id, name, product, owner_user_id, certified, created_at
		FROM catalog_tables
		WHERE $1 = '' OR name ILIKE '%' || $1 || '%' OR product ILIKE '%' || $1 || '%'
		ORDER BY name ASC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, term, limit)
	if err != nil {
		return nil, fmt.Errorf("catalog: search: %w", err)
	}
	defer rows.Close()

	tables := make([]Table, 0, limit)
	for rows.Next() {
		var table Table
		if err := rows.Scan(&table.ID, &table.Name, &table.Product, &table.OwnerUserID, &table.Certified, &table.CreatedAt); err != nil {
			return nil, fmt.Errorf("catalog: scan table: %w", err)
		}
		tables = append(tables, table)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: iterate tables: %w", err)
	}

	return tables, nil
}
