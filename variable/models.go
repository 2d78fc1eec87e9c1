package variable

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no variable row exists for the identifier.
	ErrNotFound = errors.New("variable: not found")
	// ErrActionNotPermitted signals the requested action is not in the
	// permitted set for the variable's current status.
	ErrActionNotPermitted = errors.New("variable: action not permitted")
	// ErrForbidden signals the actor may not operate on this variable.
	ErrForbidden = errors.New("variable: forbidden")
	// ErrMatchDetailsRequired signals record-match was requested without
	// naming the catalog table and its owner.
	ErrMatchDetailsRequired = errors.New("variable: matched table and owner required")
	// ErrImmutable signals an edit against a variable past pre-approval.
	ErrImmutable = errors.New("variable: record is no longer editable")
)

// FieldType is the closed set of value types a variable can require.
type FieldType string

const (
	TypeText    FieldType = "text"
	TypeNumber  FieldType = "number"
	TypeDate    FieldType = "date"
	TypeBoolean FieldType = "boolean"
	TypeSelect  FieldType = "select"
)

func (t FieldType) Valid() bool {
	switch t {
	case TypeText, TypeNumber, TypeDate, TypeBoolean, TypeSelect:
		return true
	default:
		return false
	}
}

type Priority string

const (
	PriorityLow      Priority = "Low"
	PriorityMedium   Priority = "Medium"
	PriorityHigh     Priority = "High"
	PriorityCritical Priority = "Critical"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	default:
		return false
	}
}

// Record is one data requirement attached to a case. It mirrors the
// variables table and carries no JSON annotations so it can be reused by
// different presentation layers.
type Record struct {
	ID            string
	CaseID        string
	Name          string
	Type          FieldType
	Product       string
	Concept       string
	MinHistory    string
	Priority      Priority
	DesiredLag    string
	SelectOptions *string
	Status        Status
	MatchedTable  *string
	OwnerUserID   *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CreateParams enumerates the fields required to insert a new variable.
// Status always starts at PENDING; it is not a caller choice.
type CreateParams struct {
	CaseID        string
	Name          string
	Type          FieldType
	Product       string
	Concept       string
	MinHistory    string
	Priority      Priority
	DesiredLag    string
	SelectOptions *string
}

// UpdateParams carries requester edits. Only pre-approval variables
// accept updates; nil fields are left untouched.
type UpdateParams struct {
	Name       *string
	Concept    *string
	MinHistory *string
	Priority   *Priority
	DesiredLag *string
}

// TimelineEvent captures an immutable business event for a variable.
type TimelineEvent struct {
	ID         int64
	VariableID string
	Seq        int
	Type       string
	ActorID    *string
	CreatedAt  time.Time
	Payload    []byte
}

// OutboxMessage represents a transactional outbox entry.
type OutboxMessage struct {
	ID        string
	Topic     string
	Payload   []byte
	Status    string
	Attempts  int
	CreatedAt time.Time
}

const (
	// OutboxTopicStatusChanged is published on every status transition.
	OutboxTopicStatusChanged = "variable.status_changed"
	// OutboxTopicCreated is published when a variable is created.
	OutboxTopicCreated = "variable.created"
)
