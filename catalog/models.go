package catalog

import "time"

// Table captures the subset of data-catalog metadata the matching flow
// needs: which table a variable can be matched against and who must
// approve that match.
type Table struct {
	ID          string
	Name        string
	Product     string
	OwnerUserID string
	Certified   bool
	CreatedAt   time.Time
}
