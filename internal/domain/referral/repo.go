package referral

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrStaleReferral is returned when an update loses the optimistic version
// check, meaning another writer mutated the referral first.
var ErrStaleReferral = errors.New("referral was modified concurrently, reload and retry")

// ErrNotFound is returned when no referral matches the lookup.
var ErrNotFound = errors.New("referral not found")

// ErrDuplicateExternalID is returned by Create when the hospital-scoped
// external referral id unique index rejects the insert.
var ErrDuplicateExternalID = errors.New("referral with this external id already exists")

type Repository interface {
	Create(ctx context.Context, r *Referral) error
	GetByID(ctx context.Context, id uuid.UUID) (*Referral, error)
	FindByExternalID(ctx context.Context, hospitalID uuid.UUID, externalID string) (*Referral, error)
	ListByAssignedStaff(ctx context.Context, staffID uuid.UUID) ([]*Referral, error)
	// ListEmergencyUnacknowledged returns emergency referrals with no
	// acknowledgment, non-terminal status, reference timestamp (processed_at,
	// else created_at) at or before cutoff, and no escalated audit entry.
	ListEmergencyUnacknowledged(ctx context.Context, cutoff time.Time) ([]*Referral, error)
	// Update writes all mutable fields guarded by the optimistic version
	// check; it bumps r.Version on success and returns ErrStaleReferral when
	// the row changed underneath the caller.
	Update(ctx context.Context, r *Referral) error
}
