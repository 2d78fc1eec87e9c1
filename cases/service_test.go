package cases

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestService_GetOwnership(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateParams{Title: "Churn model inputs", RequesterUserID: "user-1"})
	if err != nil {
		t.Fatalf("create: unexpected error: %v", err)
	}

	if _, err := svc.Get(ctx, "user-1", created.ID, false); err != nil {
		t.Fatalf("owner get: unexpected error: %v", err)
	}

	if _, err := svc.Get(ctx, "user-2", created.ID, false); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	// Moderators read any case.
	if _, err := svc.Get(ctx, "user-2", created.ID, true); err != nil {
		t.Fatalf("privileged get: unexpected error: %v", err)
	}
}

func TestService_GetMissing(t *testing.T) {
	svc := NewService(newFakeRepository())

	_, err := svc.Get(context.Background(), "user-1", "missing", false)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestService_UpdateForbiddenForNonOwner(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo)
	ctx := context.Background()

	created, _ := svc.Create(ctx, CreateParams{Title: "SLA review", RequesterUserID: "user-1"})

	title := "SLA review (updated)"
	if _, err := svc.Update(ctx, "user-2", created.ID, UpdateParams{Title: &title}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	updated, err := svc.Update(ctx, "user-1", created.ID, UpdateParams{Title: &title})
	if err != nil {
		t.Fatalf("owner update: unexpected error: %v", err)
	}
	if updated.Title != title {
		t.Fatalf("expected title %q, got %q", title, updated.Title)
	}
}

func TestService_SetStatus(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo)
	ctx := context.Background()

	created, _ := svc.Create(ctx, CreateParams{Title: "Kanban move", RequesterUserID: "user-1"})

	rec, err := svc.SetStatus(ctx, "user-1", created.ID, CaseInProgress, false)
	if err != nil {
		t.Fatalf("set status: unexpected error: %v", err)
	}
	if rec.Status != CaseInProgress {
		t.Fatalf("expected in_progress, got %s", rec.Status)
	}
	if !rec.StatusSince.After(created.StatusSince) {
		t.Fatal("expected status_since to reset on transition")
	}
}

type fakeRepository struct {
	records map[string]Record
	nextID  int
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{records: make(map[string]Record), nextID: 1}
}

func (f *fakeRepository) Create(_ context.Context, params CreateParams) (Record, error) {
	id := fmt.Sprintf("case-%d", f.nextID)
	f.nextID++
	now := time.Now().UTC()
	rec := Record{
		ID:              id,
		Title:           params.Title,
		Description:     params.Description,
		RequesterUserID: params.RequesterUserID,
		Status:          CaseOpen,
		StatusSince:     now.Add(-time.Second),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	f.records[id] = rec
	return rec, nil
}

func (f *fakeRepository) GetByID(_ context.Context, id string) (Record, error) {
	rec, ok := f.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (f *fakeRepository) List(_ context.Context, _ ListFilters) ([]Record, int, error) {
	out := make([]Record, 0, len(f.records))
	for _, rec := range f.records {
		out = append(out, rec)
	}
	return out, len(out), nil
}

func (f *fakeRepository) Update(_ context.Context, id string, params UpdateParams) (Record, error) {
	rec, ok := f.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	if rec.Status == CaseClosed {
		return Record{}, ErrClosed
	}
	if params.Title != nil {
		rec.Title = *params.Title
	}
	if params.Description != nil {
		rec.Description = *params.Description
	}
	rec.UpdatedAt = time.Now().UTC()
	f.records[id] = rec
	return rec, nil
}

func (f *fakeRepository) SetStatus(_ context.Context, id string, status CaseStatus) (Record, error) {
	rec, ok := f.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	rec.Status = status
	rec.StatusSince = time.Now().UTC()
	rec.UpdatedAt = rec.StatusSince
	f.records[id] = rec
	return rec, nil
}
