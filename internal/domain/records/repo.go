package records

import (
	"context"
)

type Repository interface {
	// Insert appends records; first-party ingestion never deduplicates.
	Insert(ctx context.Context, items []*HealthRecord) error
	// ListByUser returns records for one subject, newest first.
	ListByUser(ctx context.Context, uid string) ([]*HealthRecord, error)
}
