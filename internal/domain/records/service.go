package records

import (
	"context"
	"fmt"
)

// ValidationError marks a malformed ingest payload. Handlers surface it as a
// 400 with the field detail; every other write failure is a server error.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

func validationErrorf(format string, args ...interface{}) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Write validates and appends a batch of first-party records. uid is nil for
// anonymous ingestion.
func (s *Service) Write(ctx context.Context, uid *string, items []*HealthRecord) error {
	if len(items) == 0 {
		return validationErrorf("records must contain at least one record")
	}
	for i, rec := range items {
		if rec.SID == "" {
			return validationErrorf("records[%d]: sid is required", i)
		}
		if rec.Code == "" {
			return validationErrorf("records[%d]: code is required", i)
		}
		if rec.TS.IsZero() {
			return validationErrorf("records[%d]: ts is required", i)
		}
		if rec.Start.IsZero() {
			return validationErrorf("records[%d]: start is required", i)
		}
		if rec.Finish.IsZero() {
			return validationErrorf("records[%d]: finish is required", i)
		}
		if rec.Duration != nil && *rec.Duration < 0 {
			return validationErrorf("records[%d]: duration must not be negative", i)
		}
		if rec.Energy != nil && *rec.Energy < 0 {
			return validationErrorf("records[%d]: energy must not be negative", i)
		}
		rec.UID = uid
	}
	return s.repo.Insert(ctx, items)
}

// ListByUser returns a subject's records, newest first.
func (s *Service) ListByUser(ctx context.Context, uid string) ([]*HealthRecord, error) {
	return s.repo.ListByUser(ctx, uid)
}
