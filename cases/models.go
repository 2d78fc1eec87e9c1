package cases

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no case exists for the identifier.
	ErrNotFound = errors.New("cases: not found")
	// ErrForbidden signals the actor does not own the case.
	ErrForbidden = errors.New("cases: forbidden")
	// ErrClosed signals a write against a closed case.
	ErrClosed = errors.New("cases: case is closed")
)

type CaseStatus string

const (
	CaseOpen       CaseStatus = "open"
	CaseInProgress CaseStatus = "in_progress"
	CaseClosed     CaseStatus = "closed"
)

func (s CaseStatus) Valid() bool {
	switch s {
	case CaseOpen, CaseInProgress, CaseClosed:
		return true
	default:
		return false
	}
}

// Record mirrors the cases table.
type Record struct {
	ID              string
	Title           string
	Description     string
	RequesterUserID string
	Status          CaseStatus
	StatusSince     time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CreateParams enumerates the fields required to open a new case.
type CreateParams struct {
	Title           string
	Description     string
	RequesterUserID string
}

// UpdateParams carries requester edits; nil fields are left untouched.
type UpdateParams struct {
	Title       *string
	Description *string
}

// ListFilters narrows and pages case listings.
type ListFilters struct {
	RequesterUserID string
	Status          CaseStatus
	Page            int
	PageSize        int
}
