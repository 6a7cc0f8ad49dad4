package audit

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/referralhub/referralhub/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type auditRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &auditRepoPG{pool: pool}
}

func (r *auditRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const auditCols = `id, referral_id, user_id, action, field, old_value, new_value, metadata, created_at`

func (r *auditRepoPG) scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	var meta []byte
	err := row.Scan(&e.ID, &e.ReferralID, &e.UserID, &e.Action, &e.Field,
		&e.OldValue, &e.NewValue, &meta, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &e.Metadata); err != nil {
			return nil, err
		}
	}
	return &e, nil
}

func (r *auditRepoPG) Create(ctx context.Context, e *Entry) error {
	e.ID = uuid.New()
	meta, err := json.Marshal(e.Metadata)
	if err != nil {
		return err
	}
	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO audit_logs (id, referral_id, user_id, action, field, old_value, new_value, metadata)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		e.ID, e.ReferralID, e.UserID, e.Action, e.Field, e.OldValue, e.NewValue, meta)
	return err
}

func (r *auditRepoPG) ListByReferral(ctx context.Context, referralID uuid.UUID) ([]*Entry, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+auditCols+` FROM audit_logs WHERE referral_id = $1 ORDER BY created_at ASC, id ASC`, referralID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []*Entry
	for rows.Next() {
		e, err := r.scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *auditRepoPG) HasAction(ctx context.Context, referralID uuid.UUID, action string) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM audit_logs WHERE referral_id = $1 AND action = $2)`,
		referralID, action).Scan(&exists)
	return exists, err
}
