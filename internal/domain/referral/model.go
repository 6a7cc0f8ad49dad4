package referral

import (
	"time"

	"github.com/google/uuid"
)

// Urgency levels.
const (
	UrgencyRoutine   = "routine"
	UrgencyUrgent    = "urgent"
	UrgencyEmergency = "emergency"
)

// Lifecycle statuses. Transitions are monotonic along statusRank except
// cancellation, which is reachable from any non-terminal state.
const (
	StatusSubmitted    = "submitted"
	StatusTriaged      = "triaged"
	StatusAssigned     = "assigned"
	StatusAcknowledged = "acknowledged"
	StatusInProgress   = "in_progress"
	StatusCompleted    = "completed"
	StatusCancelled    = "cancelled"
)

var validUrgencies = map[string]bool{
	UrgencyRoutine:   true,
	UrgencyUrgent:    true,
	UrgencyEmergency: true,
}

var statusRank = map[string]int{
	StatusSubmitted:    0,
	StatusTriaged:      1,
	StatusAssigned:     2,
	StatusAcknowledged: 3,
	StatusInProgress:   4,
	StatusCompleted:    5,
}

// Referral is one patient-hospital encounter requiring specialist routing.
// Department keeps the legacy lowercase name for API compatibility;
// DepartmentID is the normalized reference. Version backs optimistic
// concurrency on every update.
type Referral struct {
	ID                 uuid.UUID  `db:"id" json:"id"`
	PatientID          uuid.UUID  `db:"patient_id" json:"patient_id"`
	HospitalID         uuid.UUID  `db:"hospital_id" json:"hospital_id"`
	Urgency            string     `db:"urgency" json:"urgency"`
	Status             string     `db:"status" json:"status"`
	ClinicalNotes      string     `db:"clinical_notes" json:"clinical_notes"`
	Department         string     `db:"department" json:"department,omitempty"`
	DepartmentID       *uuid.UUID `db:"department_id" json:"department_id,omitempty"`
	AIConfidenceScore  *float64   `db:"ai_confidence_score" json:"ai_confidence_score,omitempty"`
	ProcessedAt        *time.Time `db:"processed_at" json:"processed_at,omitempty"`
	AssignedStaffID    *uuid.UUID `db:"assigned_staff_id" json:"assigned_staff_id,omitempty"`
	CancellationReason *string    `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	AcknowledgedAt     *time.Time `db:"acknowledged_at" json:"acknowledged_at,omitempty"`
	ExternalReferralID *string    `db:"external_referral_id" json:"external_referral_id,omitempty"`
	Version            int        `db:"version" json:"version"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`

	// DiagnosisCodes are the ICD-10 codes attached at submission, loaded
	// alongside the row.
	DiagnosisCodes []string `json:"diagnosis_codes,omitempty"`
}

func (r *Referral) IsEmergency() bool {
	return r.Urgency == UrgencyEmergency
}

// IsTerminal reports whether the referral can no longer move forward.
func (r *Referral) IsTerminal() bool {
	return r.Status == StatusCompleted || r.Status == StatusCancelled
}

// CanBeCancelled reports whether cancellation is allowed: any non-terminal
// state may cancel, completed and already-cancelled may not.
func (r *Referral) CanBeCancelled() bool {
	return !r.IsTerminal()
}

// CanTransitionTo reports whether moving to next respects the monotonic
// lifecycle. Cancellation is handled separately by CanBeCancelled.
func (r *Referral) CanTransitionTo(next string) bool {
	if r.IsTerminal() {
		return false
	}
	currentRank, ok := statusRank[r.Status]
	if !ok {
		return false
	}
	nextRank, ok := statusRank[next]
	if !ok {
		return false
	}
	return nextRank > currentRank
}

// ValidUrgency reports whether u is one of the known urgency levels.
func ValidUrgency(u string) bool {
	return validUrgencies[u]
}
