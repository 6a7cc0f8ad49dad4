package referral

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/referralhub/referralhub/internal/domain/audit"
	"github.com/referralhub/referralhub/internal/domain/patient"
)

var (
	// ErrNotAssignee is returned when a staff member acts on a referral
	// assigned to someone else.
	ErrNotAssignee = errors.New("referral is not assigned to this staff member")

	// ErrAlreadyCompleted is returned when completing a completed referral.
	ErrAlreadyCompleted = errors.New("referral is already completed")

	// ErrInvalidTransition is returned for status updates that move backwards
	// or out of a terminal state.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrCannotCancel is returned when cancelling a completed or already
	// cancelled referral.
	ErrCannotCancel = errors.New("referral cannot be cancelled")
)

// DuplicateError reports a submission whose external referral id already
// exists for the hospital. ExistingID identifies the original referral.
type DuplicateError struct {
	ExistingID uuid.UUID
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("referral with this external id already exists: %s", e.ExistingID)
}

// Triager runs the intake pipeline on a freshly submitted referral. The
// triage service implements it.
type Triager interface {
	Triage(ctx context.Context, r *Referral) error
}

// AssignmentNotifier delivers the assignment notification for a referral.
// The notification dispatcher implements it.
type AssignmentNotifier interface {
	NotifyStaffOfAssignment(ctx context.Context, staffID uuid.UUID, r *Referral) error
}

// SubmitInput carries one hospital submission.
type SubmitInput struct {
	Patient            patient.Patient
	Urgency            string
	DiagnosisCodes     []string
	ClinicalNotes      string
	ExternalReferralID *string
}

type Service struct {
	referrals Repository
	patients  patient.Repository
	audit     *audit.Service
	triager   Triager
	notifier  AssignmentNotifier
	logger    zerolog.Logger
}

func NewService(referrals Repository, patients patient.Repository, auditSvc *audit.Service, logger zerolog.Logger) *Service {
	return &Service{
		referrals: referrals,
		patients:  patients,
		audit:     auditSvc,
		logger:    logger.With().Str("component", "referral").Logger(),
	}
}

// SetTriager attaches the intake triage pipeline, called synchronously on
// every submission.
func (s *Service) SetTriager(t Triager) { s.triager = t }

// SetAssignmentNotifier attaches the dispatcher called after assignment.
func (s *Service) SetAssignmentNotifier(n AssignmentNotifier) { s.notifier = n }

// Submit ingests one hospital referral: resolves the patient, persists the
// referral with its diagnosis codes, writes the creation audit entry and runs
// triage before returning. Duplicate external ids return *DuplicateError.
func (s *Service) Submit(ctx context.Context, hospitalID uuid.UUID, in SubmitInput) (*Referral, error) {
	if !ValidUrgency(in.Urgency) {
		return nil, fmt.Errorf("invalid urgency %q", in.Urgency)
	}
	if len(in.DiagnosisCodes) == 0 {
		return nil, fmt.Errorf("at least one diagnosis code is required")
	}

	if in.ExternalReferralID != nil && *in.ExternalReferralID != "" {
		existing, err := s.referrals.FindByExternalID(ctx, hospitalID, *in.ExternalReferralID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("duplicate check: %w", err)
		}
		if existing != nil {
			return nil, &DuplicateError{ExistingID: existing.ID}
		}
	}

	p, err := s.patients.FindOrCreateByNationalID(ctx, &in.Patient)
	if err != nil {
		return nil, fmt.Errorf("resolve patient: %w", err)
	}

	ref := &Referral{
		PatientID:          p.ID,
		HospitalID:         hospitalID,
		Urgency:            in.Urgency,
		Status:             StatusSubmitted,
		ClinicalNotes:      in.ClinicalNotes,
		ExternalReferralID: in.ExternalReferralID,
		DiagnosisCodes:     in.DiagnosisCodes,
	}
	if err := s.referrals.Create(ctx, ref); err != nil {
		// A concurrent submission can race past the duplicate check above and
		// hit the unique index instead.
		if errors.Is(err, ErrDuplicateExternalID) && in.ExternalReferralID != nil {
			existing, findErr := s.referrals.FindByExternalID(ctx, hospitalID, *in.ExternalReferralID)
			if findErr == nil {
				return nil, &DuplicateError{ExistingID: existing.ID}
			}
		}
		return nil, fmt.Errorf("create referral: %w", err)
	}

	if err := s.audit.LogChange(ctx, ref.ID, nil, audit.ActionCreated, nil, nil, ref, nil); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("referral_id", ref.ID.String()).
		Str("urgency", ref.Urgency).
		Int("diagnosis_codes", len(ref.DiagnosisCodes)).
		Msg("referral submitted")

	if s.triager != nil {
		if err := s.triager.Triage(ctx, ref); err != nil {
			// Triage has its own fallback path; a hard error here means even
			// the fallback write failed.
			return nil, fmt.Errorf("triage referral: %w", err)
		}
	}
	return ref, nil
}

func (s *Service) GetReferral(ctx context.Context, id uuid.UUID) (*Referral, error) {
	return s.referrals.GetByID(ctx, id)
}

func (s *Service) ListAssignedTo(ctx context.Context, staffID uuid.UUID) ([]*Referral, error) {
	return s.referrals.ListByAssignedStaff(ctx, staffID)
}

// Assign routes a referral to a staff member on behalf of actorID. It writes
// the assignment and status-change audit entries and delivers the assignment
// notification.
func (s *Service) Assign(ctx context.Context, referralID, staffID uuid.UUID, actorID *uuid.UUID) (*Referral, error) {
	ref, err := s.referrals.GetByID(ctx, referralID)
	if err != nil {
		return nil, err
	}
	if ref.IsTerminal() {
		return nil, ErrInvalidTransition
	}

	var oldStaff interface{}
	if ref.AssignedStaffID != nil {
		oldStaff = ref.AssignedStaffID.String()
	}
	oldStatus := ref.Status

	ref.AssignedStaffID = &staffID
	ref.Status = StatusAssigned
	if err := s.referrals.Update(ctx, ref); err != nil {
		return nil, err
	}

	field := "assigned_staff_id"
	if err := s.audit.LogChange(ctx, ref.ID, actorID, audit.ActionAssigned, &field, oldStaff, staffID.String(), nil); err != nil {
		return nil, err
	}
	if oldStatus != ref.Status {
		statusField := "status"
		if err := s.audit.LogChange(ctx, ref.ID, actorID, audit.ActionStatusChanged, &statusField, oldStatus, ref.Status, nil); err != nil {
			return nil, err
		}
	}

	if s.notifier != nil {
		if err := s.notifier.NotifyStaffOfAssignment(ctx, staffID, ref); err != nil {
			s.logger.Error().Err(err).
				Str("referral_id", ref.ID.String()).
				Str("staff_id", staffID.String()).
				Msg("assignment notification failed")
		}
	}
	return ref, nil
}

// Acknowledge records the assignee taking ownership. acknowledged_at is set
// on the first acknowledgment only.
func (s *Service) Acknowledge(ctx context.Context, referralID, staffID uuid.UUID) (*Referral, error) {
	ref, err := s.referrals.GetByID(ctx, referralID)
	if err != nil {
		return nil, err
	}
	if ref.AssignedStaffID == nil || *ref.AssignedStaffID != staffID {
		return nil, ErrNotAssignee
	}
	if !ref.CanTransitionTo(StatusAcknowledged) {
		return nil, ErrInvalidTransition
	}

	oldStatus := ref.Status
	ref.Status = StatusAcknowledged
	if ref.AcknowledgedAt == nil {
		now := time.Now()
		ref.AcknowledgedAt = &now
	}
	if err := s.referrals.Update(ctx, ref); err != nil {
		return nil, err
	}

	field := "status"
	if err := s.audit.LogChange(ctx, ref.ID, &staffID, audit.ActionAcknowledged, &field, oldStatus, ref.Status, nil); err != nil {
		return nil, err
	}
	return ref, nil
}

// UpdateStatus moves the referral forward on behalf of its assignee. Only
// acknowledged, in_progress and completed are reachable this way.
func (s *Service) UpdateStatus(ctx context.Context, referralID, staffID uuid.UUID, newStatus string) (*Referral, error) {
	switch newStatus {
	case StatusAcknowledged:
		return s.Acknowledge(ctx, referralID, staffID)
	case StatusInProgress, StatusCompleted:
	default:
		return nil, fmt.Errorf("status %q cannot be set by staff", newStatus)
	}

	ref, err := s.referrals.GetByID(ctx, referralID)
	if err != nil {
		return nil, err
	}
	if ref.AssignedStaffID == nil || *ref.AssignedStaffID != staffID {
		return nil, ErrNotAssignee
	}
	if !ref.CanTransitionTo(newStatus) {
		return nil, ErrInvalidTransition
	}

	oldStatus := ref.Status
	ref.Status = newStatus
	if err := s.referrals.Update(ctx, ref); err != nil {
		return nil, err
	}

	action := audit.ActionStatusChanged
	if newStatus == StatusCompleted {
		action = audit.ActionCompleted
	}
	field := "status"
	if err := s.audit.LogChange(ctx, ref.ID, &staffID, action, &field, oldStatus, ref.Status, nil); err != nil {
		return nil, err
	}
	return ref, nil
}

// Complete marks the referral finished. Completing twice is rejected.
func (s *Service) Complete(ctx context.Context, referralID, staffID uuid.UUID) (*Referral, error) {
	ref, err := s.referrals.GetByID(ctx, referralID)
	if err != nil {
		return nil, err
	}
	if ref.Status == StatusCompleted {
		return nil, ErrAlreadyCompleted
	}
	if ref.AssignedStaffID == nil || *ref.AssignedStaffID != staffID {
		return nil, ErrNotAssignee
	}
	if !ref.CanTransitionTo(StatusCompleted) {
		return nil, ErrInvalidTransition
	}

	oldStatus := ref.Status
	ref.Status = StatusCompleted
	if err := s.referrals.Update(ctx, ref); err != nil {
		return nil, err
	}

	field := "status"
	if err := s.audit.LogChange(ctx, ref.ID, &staffID, audit.ActionCompleted, &field, oldStatus, ref.Status, nil); err != nil {
		return nil, err
	}
	return ref, nil
}

// Cancel aborts a non-terminal referral, recording the reason in the audit
// metadata. Completed and cancelled referrals are rejected.
func (s *Service) Cancel(ctx context.Context, referralID uuid.UUID, reason string, actorID *uuid.UUID) (*Referral, error) {
	ref, err := s.referrals.GetByID(ctx, referralID)
	if err != nil {
		return nil, err
	}
	if !ref.CanBeCancelled() {
		return nil, ErrCannotCancel
	}

	oldStatus := ref.Status
	ref.Status = StatusCancelled
	if reason != "" {
		ref.CancellationReason = &reason
	}
	if err := s.referrals.Update(ctx, ref); err != nil {
		return nil, err
	}

	field := "status"
	meta := map[string]string{}
	if reason != "" {
		meta["reason"] = reason
	}
	if err := s.audit.LogChange(ctx, ref.ID, actorID, audit.ActionCancelled, &field, oldStatus, ref.Status, meta); err != nil {
		return nil, err
	}
	return ref, nil
}
