package notification

import (
	"context"
	"time"

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

type notificationRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &notificationRepoPG{pool: pool}
}

func (r *notificationRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const notificationCols = `id, staff_id, referral_id, type, channel, message, sent_at, read_at, created_at`

func (r *notificationRepoPG) CreateNotification(ctx context.Context, n *Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO notifications (id, staff_id, referral_id, type, channel, message, sent_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at`,
		n.ID, n.StaffID, n.ReferralID, n.Type, n.Channel, n.Message, n.SentAt).
		Scan(&n.CreatedAt)
}

func (r *notificationRepoPG) ListByStaff(ctx context.Context, staffID uuid.UUID) ([]*Notification, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+notificationCols+` FROM notifications WHERE staff_id = $1 ORDER BY created_at DESC`,
		staffID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.StaffID, &n.ReferralID, &n.Type, &n.Channel,
			&n.Message, &n.SentAt, &n.ReadAt, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &n)
	}
	return out, rows.Err()
}

func (r *notificationRepoPG) MarkRead(ctx context.Context, id, staffID uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE notifications SET read_at = NOW()
		WHERE id = $1 AND staff_id = $2 AND read_at IS NULL`,
		id, staffID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const queuedCols = `id, staff_id, referral_id, department, type, message, channels, queued_at, processed_at`

func (r *notificationRepoPG) CreateQueued(ctx context.Context, q *QueuedNotification) error {
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO queued_notifications (id, staff_id, referral_id, department, type, message, channels)
		VALUES ($1,$2,$3,NULLIF($4,''),$5,$6,$7)
		RETURNING queued_at`,
		q.ID, q.StaffID, q.ReferralID, q.Department, q.Type, q.Message, q.Channels).
		Scan(&q.QueuedAt)
}

func (r *notificationRepoPG) ListPendingByStaff(ctx context.Context, staffID uuid.UUID) ([]*QueuedNotification, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+queuedCols+` FROM queued_notifications
		 WHERE staff_id = $1 AND processed_at IS NULL
		 ORDER BY queued_at ASC, id ASC`,
		staffID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectQueued(rows)
}

func (r *notificationRepoPG) ListPendingDeferred(ctx context.Context, department string) ([]*QueuedNotification, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+queuedCols+` FROM queued_notifications
		 WHERE staff_id IS NULL AND department = $1 AND processed_at IS NULL
		 ORDER BY queued_at ASC, id ASC`,
		department)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectQueued(rows)
}

func (r *notificationRepoPG) MarkQueuedProcessed(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE queued_notifications SET processed_at = NOW() WHERE id = $1 AND processed_at IS NULL`,
		id)
	return err
}

func collectQueued(rows pgx.Rows) ([]*QueuedNotification, error) {
	var out []*QueuedNotification
	for rows.Next() {
		var q QueuedNotification
		var department *string
		var processedAt *time.Time
		if err := rows.Scan(&q.ID, &q.StaffID, &q.ReferralID, &department, &q.Type,
			&q.Message, &q.Channels, &q.QueuedAt, &processedAt); err != nil {
			return nil, err
		}
		if department != nil {
			q.Department = *department
		}
		q.ProcessedAt = processedAt
		out = append(out, &q)
	}
	return out, rows.Err()
}
