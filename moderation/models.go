package moderation

import "time"

// Status represents the lifecycle of a moderation request.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Record mirrors the moderation_requests table. A request asks a
// moderator to act as approval proxy for the requester's case.
type Record struct {
	ID              string
	CaseID          string
	RequesterUserID string
	Reason          string
	Status          Status
	ResolvedBy      *string
	ResolutionNote  *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ResolvedAt      *time.Time
}
