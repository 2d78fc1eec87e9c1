package cases

import "context"

// Service exposes business-level case operations. Ownership is enforced
// here; role gates (moderator visibility) live at the HTTP layer.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Create(ctx context.Context, params CreateParams) (Record, error) {
	return s.repo.Create(ctx, params)
}

// Get returns the case if actorID owns it or privileged is set.
func (s *Service) Get(ctx context.Context, actorID, caseID string, privileged bool) (Record, error) {
	rec, err := s.repo.GetByID(ctx, caseID)
	if err != nil {
		return Record{}, err
	}
	if !privileged && rec.RequesterUserID != actorID {
		return Record{}, ErrForbidden
	}
	return rec, nil
}

func (s *Service) List(ctx context.Context, filters ListFilters) ([]Record, int, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) Update(ctx context.Context, actorID, caseID string, params UpdateParams) (Record, error) {
	rec, err := s.repo.GetByID(ctx, caseID)
	if err != nil {
		return Record{}, err
	}
	if rec.RequesterUserID != actorID {
		return Record{}, ErrForbidden
	}
	return s.repo.Update(ctx, caseID, params)
}

func (s *Service) SetStatus(ctx context.Context, actorID, caseID string, status CaseStatus, privileged bool) (Record, error) {
	rec, err := s.repo.GetByID(ctx, caseID)
	if err != nil {
		return Record{}, err
	}
	if !privileged && rec.RequesterUserID != actorID {
		return Record{}, ErrForbidden
	}
	return s.repo.SetStatus(ctx, caseID, status)
}
