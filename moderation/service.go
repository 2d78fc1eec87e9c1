package moderation

import (
	"context"
	"strings"
)

// Store abstracts the repository for handler tests.
type Store interface {
	ListForRequester(ctx context.Context, requesterID, caseID string) ([]Record, error)
	ListPending(ctx context.Context) ([]Record, error)
	Create(ctx context.Context, requesterID, caseID, reason string) (Record, error)
	Resolve(ctx context.Context, moderatorID, requestID string, outcome Status, note string) (Record, error)
}

type Service struct {
	repo Store
}

func NewService(repo Store) *Service {
	return &Service{repo: repo}
}

func (s *Service) ListForRequester(ctx context.Context, requesterID, caseID string) ([]Record, error) {
	return s.repo.ListForRequester(ctx, requesterID, caseID)
}

func (s *Service) ListPending(ctx context.Context) ([]Record, error) {
	return s.repo.ListPending(ctx)
}

func (s *Service) Create(ctx context.Context, requesterID, caseID, reason string) (Record, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Record{}, ErrReasonRequired
	}
	if caseID == "" {
		return Record{}, ErrNotFound
	}
	return s.repo.Create(ctx, requesterID, caseID, reason)
}

// Resolve records a moderator's decision. Only the two terminal outcomes
// are accepted; a request cannot go back to pending.
func (s *Service) Resolve(ctx context.Context, moderatorID, requestID string, outcome Status, note string) (Record, error) {
	if outcome != StatusApproved && outcome != StatusRejected {
		return Record{}, ErrInvalidOutcome
	}
	return s.repo.Resolve(ctx, moderatorID, requestID, outcome, note)
}
