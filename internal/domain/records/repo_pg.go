package records

import (
	"context"

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

const recordCols = `uid, sid, ts, code, duration, energy, start, finish`

func (r *repoPG) Insert(ctx context.Context, items []*HealthRecord) error {
	for _, rec := range items {
		_, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO records (uid, sid, ts, code, duration, energy, start, finish)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			rec.UID, rec.SID, rec.TS, rec.Code, rec.Duration, rec.Energy, rec.Start, rec.Finish)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *repoPG) ListByUser(ctx context.Context, uid string) ([]*HealthRecord, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+recordCols+` FROM records WHERE uid = $1 ORDER BY ts DESC`, uid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []*HealthRecord{}
	for rows.Next() {
		var rec HealthRecord
		if err := rows.Scan(&rec.UID, &rec.SID, &rec.TS, &rec.Code,
			&rec.Duration, &rec.Energy, &rec.Start, &rec.Finish); err != nil {
			return nil, err
		}
		items = append(items, &rec)
	}
	return items, rows.Err()
}
