package metriport

import (
	"context"
)

type Repository interface {
	// Upsert writes an activity record, overwriting any existing row with the
	// same (uid, start, provider) natural key.
	Upsert(ctx context.Context, rec *ActivityRecord) error
	// ListByUser returns a Metriport user's records, newest first.
	ListByUser(ctx context.Context, uid string) ([]*ActivityRecord, error)
	// AppendUnhandled archives a payload this service does not normalize.
	AppendUnhandled(ctx context.Context, payload *UnhandledPayload) error
}
