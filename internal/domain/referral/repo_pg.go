package referral

import (
	"context"
	"errors"
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

type referralRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &referralRepoPG{pool: pool}
}

func (r *referralRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const referralCols = `id, patient_id, hospital_id, urgency, status, clinical_notes,
	department, department_id, ai_confidence_score, processed_at, assigned_staff_id,
	cancellation_reason, acknowledged_at, external_referral_id, version, created_at, updated_at`

func (r *referralRepoPG) scanReferral(row pgx.Row) (*Referral, error) {
	var ref Referral
	var department *string
	err := row.Scan(&ref.ID, &ref.PatientID, &ref.HospitalID, &ref.Urgency, &ref.Status,
		&ref.ClinicalNotes, &department, &ref.DepartmentID, &ref.AIConfidenceScore,
		&ref.ProcessedAt, &ref.AssignedStaffID, &ref.CancellationReason, &ref.AcknowledgedAt,
		&ref.ExternalReferralID, &ref.Version, &ref.CreatedAt, &ref.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if department != nil {
		ref.Department = *department
	}
	return &ref, nil
}

func (r *referralRepoPG) Create(ctx context.Context, ref *Referral) error {
	if ref.ID == uuid.Nil {
		ref.ID = uuid.New()
	}
	ref.Version = 1
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO referrals (id, patient_id, hospital_id, urgency, status, clinical_notes,
			department, department_id, external_referral_id, version)
		VALUES ($1,$2,$3,$4,$5,$6,NULLIF($7,''),$8,$9,$10)
		RETURNING created_at, updated_at`,
		ref.ID, ref.PatientID, ref.HospitalID, ref.Urgency, ref.Status, ref.ClinicalNotes,
		ref.Department, ref.DepartmentID, ref.ExternalReferralID, ref.Version).
		Scan(&ref.CreatedAt, &ref.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "idx_referrals_hospital_external" {
			return ErrDuplicateExternalID
		}
		return err
	}

	for _, code := range ref.DiagnosisCodes {
		_, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO referral_icd10_codes (id, referral_id, code)
			VALUES ($1,$2,$3)`,
			uuid.New(), ref.ID, code)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *referralRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Referral, error) {
	ref, err := r.scanReferral(r.conn(ctx).QueryRow(ctx,
		`SELECT `+referralCols+` FROM referrals WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := r.loadDiagnosisCodes(ctx, ref); err != nil {
		return nil, err
	}
	return ref, nil
}

func (r *referralRepoPG) FindByExternalID(ctx context.Context, hospitalID uuid.UUID, externalID string) (*Referral, error) {
	ref, err := r.scanReferral(r.conn(ctx).QueryRow(ctx,
		`SELECT `+referralCols+` FROM referrals WHERE hospital_id = $1 AND external_referral_id = $2`,
		hospitalID, externalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return ref, nil
}

func (r *referralRepoPG) ListByAssignedStaff(ctx context.Context, staffID uuid.UUID) ([]*Referral, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+referralCols+` FROM referrals WHERE assigned_staff_id = $1 ORDER BY created_at DESC`,
		staffID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collect(ctx, rows)
}

func (r *referralRepoPG) ListEmergencyUnacknowledged(ctx context.Context, cutoff time.Time) ([]*Referral, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+referralCols+` FROM referrals
		WHERE urgency = $1
		  AND acknowledged_at IS NULL
		  AND status NOT IN ($2, $3)
		  AND COALESCE(processed_at, created_at) <= $4
		  AND NOT EXISTS (
			SELECT 1 FROM audit_logs
			WHERE audit_logs.referral_id = referrals.id AND audit_logs.action = 'escalated'
		  )
		ORDER BY COALESCE(processed_at, created_at) ASC`,
		UrgencyEmergency, StatusCompleted, StatusCancelled, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collect(ctx, rows)
}

func (r *referralRepoPG) Update(ctx context.Context, ref *Referral) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE referrals SET
			urgency = $1, status = $2, department = NULLIF($3,''), department_id = $4,
			ai_confidence_score = $5, processed_at = $6, assigned_staff_id = $7,
			cancellation_reason = $8, acknowledged_at = $9,
			version = version + 1, updated_at = NOW()
		WHERE id = $10 AND version = $11`,
		ref.Urgency, ref.Status, ref.Department, ref.DepartmentID,
		ref.AIConfidenceScore, ref.ProcessedAt, ref.AssignedStaffID,
		ref.CancellationReason, ref.AcknowledgedAt,
		ref.ID, ref.Version)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleReferral
	}
	ref.Version++
	return nil
}

func (r *referralRepoPG) collect(ctx context.Context, rows pgx.Rows) ([]*Referral, error) {
	var refs []*Referral
	for rows.Next() {
		ref, err := r.scanReferral(rows)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, ref := range refs {
		if err := r.loadDiagnosisCodes(ctx, ref); err != nil {
			return nil, err
		}
	}
	return refs, nil
}

func (r *referralRepoPG) loadDiagnosisCodes(ctx context.Context, ref *Referral) error {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT code FROM referral_icd10_codes WHERE referral_id = $1 ORDER BY created_at ASC`,
		ref.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return err
		}
		ref.DiagnosisCodes = append(ref.DiagnosisCodes, code)
	}
	return rows.Err()
}
