// Package settings owns workspace state the UI used to scatter across
// browser storage: favorites, case tags, variable templates, and SLA
// thresholds. All of it goes through one repository boundary so callers
// never touch storage directly.
package settings

import (
	"context"

	"caseflow/sla"
)

// Template is a reusable variable prototype a requester can stamp onto
// new cases. Fields mirror the import row shape.
type Template struct {
	Name       string
	Type       string
	Product    string
	Concept    string
	MinHistory string
	Priority   string
	DesiredLag string
}

// Repository is the explicit load/save boundary for workspace state.
type Repository interface {
	ListFavorites(ctx context.Context, userID string) ([]string, error)
	AddFavorite(ctx context.Context, userID, caseID string) error
	RemoveFavorite(ctx context.Context, userID, caseID string) error

	TagsForCase(ctx context.Context, caseID string) ([]string, error)
	SetCaseTags(ctx context.Context, caseID string, tags []string) error

	ListTemplates(ctx context.Context, userID string) ([]Template, error)
	SaveTemplate(ctx context.Context, userID string, tpl Template) error
	DeleteTemplate(ctx context.Context, userID, name string) error

	SLAThresholds(ctx context.Context) ([]sla.Threshold, error)
	SaveSLAThreshold(ctx context.Context, t sla.Threshold) error
}
