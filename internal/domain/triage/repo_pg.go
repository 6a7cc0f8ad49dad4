package triage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

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

type triageRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &triageRepoPG{pool: pool}
}

func (r *triageRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const logCols = `id, referral_id, status, retry_count, input_data, output_data, error_message, created_at, updated_at`

func (r *triageRepoPG) Create(ctx context.Context, l *Log) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	input, output, err := marshalData(l)
	if err != nil {
		return err
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO ai_triage_logs (id, referral_id, status, retry_count, input_data, output_data, error_message)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at, updated_at`,
		l.ID, l.ReferralID, l.Status, l.RetryCount, input, output, l.ErrorMessage).
		Scan(&l.CreatedAt, &l.UpdatedAt)
}

func (r *triageRepoPG) Update(ctx context.Context, l *Log) error {
	input, output, err := marshalData(l)
	if err != nil {
		return err
	}
	_, err = r.conn(ctx).Exec(ctx, `
		UPDATE ai_triage_logs SET status = $1, retry_count = $2, input_data = $3,
			output_data = $4, error_message = $5, updated_at = NOW()
		WHERE id = $6`,
		l.Status, l.RetryCount, input, output, l.ErrorMessage, l.ID)
	return err
}

func (r *triageRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Log, error) {
	l, err := scanLog(r.conn(ctx).QueryRow(ctx,
		`SELECT `+logCols+` FROM ai_triage_logs WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("triage log %s not found", id)
		}
		return nil, err
	}
	return l, nil
}

func (r *triageRepoPG) ListByReferral(ctx context.Context, referralID uuid.UUID) ([]*Log, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+logCols+` FROM ai_triage_logs WHERE referral_id = $1 ORDER BY created_at ASC`,
		referralID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var logs []*Log
	for rows.Next() {
		l, err := scanLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func scanLog(row pgx.Row) (*Log, error) {
	var l Log
	var input, output []byte
	err := row.Scan(&l.ID, &l.ReferralID, &l.Status, &l.RetryCount, &input, &output,
		&l.ErrorMessage, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(input) > 0 {
		if err := json.Unmarshal(input, &l.InputData); err != nil {
			return nil, err
		}
	}
	if len(output) > 0 {
		if err := json.Unmarshal(output, &l.OutputData); err != nil {
			return nil, err
		}
	}
	return &l, nil
}

func marshalData(l *Log) ([]byte, []byte, error) {
	input, err := json.Marshal(l.InputData)
	if err != nil {
		return nil, nil, err
	}
	var output []byte
	if l.OutputData != nil {
		output, err = json.Marshal(l.OutputData)
		if err != nil {
			return nil, nil, err
		}
	}
	return input, output, nil
}
