package catalog

import "context"

// TableReader abstracts repository operations for the service.
type TableReader interface {
	GetByName(ctx context.Context, name string) (Table, error)
	Search(ctx context.Context, term string, limit int) ([]Table, error)
}

// Service exposes business-level catalog lookups.
type Service struct {
	repo TableReader
}

// NewService builds a Service using the provided repository.
func NewService(repo TableReader) *Service {
	return &Service{repo: repo}
}

// GetByName returns the catalog table with the given name.
func (s *Service) GetByName(ctx context.Context, name string) (Table, error) {
	return s.repo.GetByName(ctx, name)
}

// Search returns up to limit catalog tables matching the term.
func (s *Service) Search(ctx context.Context, term string, limit int) ([]Table, error) {
	return s.repo.Search(ctx, term, limit)
}
