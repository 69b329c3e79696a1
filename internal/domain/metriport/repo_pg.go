package metriport

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/datasequence/datasequence/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const activityCols = `uid, sid, ts, code, duration, energy, start, finish, provider`

// Upsert looks up an existing row by the natural key and overwrites it in
// place, keyed on its original ingestion timestamp; otherwise it inserts.
// The check-then-act is not atomic: the hypertable cannot carry a unique
// index on (uid, start, provider), so two concurrent deliveries of the same
// event can both insert. Redeliveries arrive sequentially in practice.
func (r *repoPG) Upsert(ctx context.Context, rec *ActivityRecord) error {
	var existingTS time.Time
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT ts FROM metriport_records WHERE uid = $1 AND start = $2 AND provider = $3`,
		rec.UID, rec.Start, rec.Provider).Scan(&existingTS)

	switch {
	case err == nil:
		_, err = r.conn(ctx).Exec(ctx, `
			UPDATE metriport_records
			SET uid=$2, sid=$3, code=$4, duration=$5, energy=$6, start=$7, finish=$8, provider=$9
			WHERE ts = $1`,
			existingTS, rec.UID, rec.SID, rec.Code, rec.Duration, rec.Energy,
			rec.Start, rec.Finish, rec.Provider)
		return err
	case errors.Is(err, pgx.ErrNoRows):
		_, err = r.conn(ctx).Exec(ctx, `
			INSERT INTO metriport_records (uid, sid, ts, code, duration, energy, start, finish, provider)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			rec.UID, rec.SID, rec.TS, rec.Code, rec.Duration, rec.Energy,
			rec.Start, rec.Finish, rec.Provider)
		return err
	default:
		return err
	}
}

func (r *repoPG) ListByUser(ctx context.Context, uid string) ([]*ActivityRecord, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+activityCols+` FROM metriport_records WHERE uid = $1 ORDER BY ts DESC`, uid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []*ActivityRecord{}
	for rows.Next() {
		var rec ActivityRecord
		if err := rows.Scan(&rec.UID, &rec.SID, &rec.TS, &rec.Code,
			&rec.Duration, &rec.Energy, &rec.Start, &rec.Finish, &rec.Provider); err != nil {
			return nil, err
		}
		items = append(items, &rec)
	}
	return items, rows.Err()
}

func (r *repoPG) AppendUnhandled(ctx context.Context, payload *UnhandledPayload) error {
	_, err := r.conn(ctx).Exec(ctx,
		`INSERT INTO metriport_unhandled_data (ts, uid, data) VALUES ($1,$2,$3)`,
		payload.TS, payload.UID, payload.Data)
	return err
}
