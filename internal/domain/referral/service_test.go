package referral

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/referralhub/referralhub/internal/domain/audit"
	"github.com/referralhub/referralhub/internal/domain/patient"
)

type mockRepo struct {
	store map[uuid.UUID]*Referral
}

func newMockRepo() *mockRepo {
	return &mockRepo{store: make(map[uuid.UUID]*Referral)}
}

func (m *mockRepo) Create(_ context.Context, r *Referral) error {
	if r.ExternalReferralID != nil {
		for _, existing := range m.store {
			if existing.HospitalID == r.HospitalID &&
				existing.ExternalReferralID != nil && *existing.ExternalReferralID == *r.ExternalReferralID {
				return ErrDuplicateExternalID
			}
		}
	}
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	r.Version = 1
	cp := *r
	m.store[r.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Referral, error) {
	r, ok := m.store[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *mockRepo) FindByExternalID(_ context.Context, hospitalID uuid.UUID, externalID string) (*Referral, error) {
	for _, r := range m.store {
		if r.HospitalID == hospitalID && r.ExternalReferralID != nil && *r.ExternalReferralID == externalID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockRepo) ListByAssignedStaff(_ context.Context, staffID uuid.UUID) ([]*Referral, error) {
	var out []*Referral
	for _, r := range m.store {
		if r.AssignedStaffID != nil && *r.AssignedStaffID == staffID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockRepo) ListEmergencyUnacknowledged(context.Context, time.Time) ([]*Referral, error) {
	return nil, nil
}

func (m *mockRepo) Update(_ context.Context, r *Referral) error {
	current, ok := m.store[r.ID]
	if !ok {
		return ErrNotFound
	}
	if current.Version != r.Version {
		return ErrStaleReferral
	}
	r.Version++
	cp := *r
	m.store[r.ID] = &cp
	return nil
}

type mockAuditRepo struct {
	entries []*audit.Entry
}

func (m *mockAuditRepo) Create(_ context.Context, e *audit.Entry) error {
	cp := *e
	m.entries = append(m.entries, &cp)
	return nil
}

func (m *mockAuditRepo) ListByReferral(_ context.Context, referralID uuid.UUID) ([]*audit.Entry, error) {
	var out []*audit.Entry
	for _, e := range m.entries {
		if e.ReferralID == referralID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockAuditRepo) HasAction(_ context.Context, referralID uuid.UUID, action string) (bool, error) {
	for _, e := range m.entries {
		if e.ReferralID == referralID && e.Action == action {
			return true, nil
		}
	}
	return false, nil
}

type mockPatientRepo struct{}

func (m *mockPatientRepo) GetByID(context.Context, uuid.UUID) (*patient.Patient, error) {
	return nil, errors.New("not found")
}

func (m *mockPatientRepo) FindOrCreateByNationalID(_ context.Context, p *patient.Patient) (*patient.Patient, error) {
	cp := *p
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	return &cp, nil
}

type recordingNotifier struct {
	assignments []uuid.UUID
}

func (n *recordingNotifier) NotifyStaffOfAssignment(_ context.Context, staffID uuid.UUID, _ *Referral) error {
	n.assignments = append(n.assignments, staffID)
	return nil
}

func newTestService() (*Service, *mockRepo, *mockAuditRepo) {
	repo := newMockRepo()
	auditRepo := &mockAuditRepo{}
	svc := NewService(repo, &mockPatientRepo{}, audit.NewService(auditRepo), zerolog.Nop())
	return svc, repo, auditRepo
}

func submitInput(externalID *string) SubmitInput {
	return SubmitInput{
		Patient:            patient.Patient{FirstName: "Jane", LastName: "Doe", NationalID: "NAT-1"},
		Urgency:            UrgencyRoutine,
		DiagnosisCodes:     []string{"I21.9"},
		ClinicalNotes:      "chest pain on exertion",
		ExternalReferralID: externalID,
	}
}

func TestSubmit_DuplicateExternalIDReturnsExisting(t *testing.T) {
	svc, repo, _ := newTestService()
	hospitalID := uuid.New()
	extID := "HOSP-REF-42"

	first, err := svc.Submit(context.Background(), hospitalID, submitInput(&extID))
	if err != nil {
		t.Fatalf("first submission failed: %v", err)
	}

	_, err = svc.Submit(context.Background(), hospitalID, submitInput(&extID))
	var dup *DuplicateError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateError, got %v", err)
	}
	if dup.ExistingID != first.ID {
		t.Errorf("duplicate should point at original %s, got %s", first.ID, dup.ExistingID)
	}
	if len(repo.store) != 1 {
		t.Errorf("expected 1 stored referral, got %d", len(repo.store))
	}
}

// racingRepo lets the duplicate pre-check miss a configurable number of
// times, as it does when two submissions with the same external id race.
type racingRepo struct {
	*mockRepo
	misses int
}

func (m *racingRepo) FindByExternalID(ctx context.Context, hospitalID uuid.UUID, externalID string) (*Referral, error) {
	if m.misses > 0 {
		m.misses--
		return nil, ErrNotFound
	}
	return m.mockRepo.FindByExternalID(ctx, hospitalID, externalID)
}

func TestSubmit_ConcurrentDuplicateMapsToConflict(t *testing.T) {
	repo := &racingRepo{mockRepo: newMockRepo(), misses: 1}
	svc := NewService(repo, &mockPatientRepo{}, audit.NewService(&mockAuditRepo{}), zerolog.Nop())
	hospitalID := uuid.New()
	extID := "HOSP-REF-42"

	existing := &Referral{ID: uuid.New(), HospitalID: hospitalID, ExternalReferralID: &extID, Status: StatusSubmitted, Version: 1}
	repo.store[existing.ID] = existing

	_, err := svc.Submit(context.Background(), hospitalID, submitInput(&extID))
	var dup *DuplicateError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateError, got %v", err)
	}
	if dup.ExistingID != existing.ID {
		t.Errorf("duplicate should point at original %s, got %s", existing.ID, dup.ExistingID)
	}
	if len(repo.store) != 1 {
		t.Errorf("expected 1 stored referral, got %d", len(repo.store))
	}
}

func TestSubmit_SameExternalIDDifferentHospitals(t *testing.T) {
	svc, repo, _ := newTestService()
	extID := "HOSP-REF-42"

	if _, err := svc.Submit(context.Background(), uuid.New(), submitInput(&extID)); err != nil {
		t.Fatalf("first submission failed: %v", err)
	}
	if _, err := svc.Submit(context.Background(), uuid.New(), submitInput(&extID)); err != nil {
		t.Fatalf("submission for different hospital should succeed: %v", err)
	}
	if len(repo.store) != 2 {
		t.Errorf("expected 2 stored referrals, got %d", len(repo.store))
	}
}

func TestSubmit_RejectsInvalidInput(t *testing.T) {
	svc, _, _ := newTestService()

	in := submitInput(nil)
	in.Urgency = "critical"
	if _, err := svc.Submit(context.Background(), uuid.New(), in); err == nil {
		t.Error("expected error for unknown urgency")
	}

	in = submitInput(nil)
	in.DiagnosisCodes = nil
	if _, err := svc.Submit(context.Background(), uuid.New(), in); err == nil {
		t.Error("expected error for missing diagnosis codes")
	}
}

func TestAssign_WritesAuditAndNotifies(t *testing.T) {
	svc, _, auditRepo := newTestService()
	notifier := &recordingNotifier{}
	svc.SetAssignmentNotifier(notifier)

	ref, err := svc.Submit(context.Background(), uuid.New(), submitInput(nil))
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	staffID := uuid.New()
	actorID := uuid.New()

	updated, err := svc.Assign(context.Background(), ref.ID, staffID, &actorID)
	if err != nil {
		t.Fatalf("assign failed: %v", err)
	}
	if updated.Status != StatusAssigned {
		t.Errorf("expected status assigned, got %s", updated.Status)
	}
	if updated.AssignedStaffID == nil || *updated.AssignedStaffID != staffID {
		t.Error("assigned staff id not recorded")
	}
	if len(notifier.assignments) != 1 || notifier.assignments[0] != staffID {
		t.Errorf("expected one assignment notification for %s, got %v", staffID, notifier.assignments)
	}

	assigned, _ := auditRepo.HasAction(context.Background(), ref.ID, audit.ActionAssigned)
	if !assigned {
		t.Error("expected an assigned audit entry")
	}
	for _, e := range auditRepo.entries {
		if e.Action == audit.ActionAssigned && (e.UserID == nil || *e.UserID != actorID) {
			t.Error("assignment entry should record the acting admin")
		}
	}
}

func TestAcknowledge_OnlyAssignee(t *testing.T) {
	svc, _, _ := newTestService()
	ref, _ := svc.Submit(context.Background(), uuid.New(), submitInput(nil))
	staffID := uuid.New()
	if _, err := svc.Assign(context.Background(), ref.ID, staffID, nil); err != nil {
		t.Fatalf("assign failed: %v", err)
	}

	if _, err := svc.Acknowledge(context.Background(), ref.ID, uuid.New()); !errors.Is(err, ErrNotAssignee) {
		t.Errorf("expected ErrNotAssignee, got %v", err)
	}

	acked, err := svc.Acknowledge(context.Background(), ref.ID, staffID)
	if err != nil {
		t.Fatalf("acknowledge failed: %v", err)
	}
	if acked.Status != StatusAcknowledged {
		t.Errorf("expected status acknowledged, got %s", acked.Status)
	}
	if acked.AcknowledgedAt == nil {
		t.Error("acknowledged_at not set")
	}

	// Re-acknowledging moves nowhere.
	if _, err := svc.Acknowledge(context.Background(), ref.ID, staffID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition on repeat acknowledge, got %v", err)
	}
}

func TestComplete_RejectsRepeat(t *testing.T) {
	svc, _, _ := newTestService()
	ref, _ := svc.Submit(context.Background(), uuid.New(), submitInput(nil))
	staffID := uuid.New()
	if _, err := svc.Assign(context.Background(), ref.ID, staffID, nil); err != nil {
		t.Fatalf("assign failed: %v", err)
	}

	if _, err := svc.Complete(context.Background(), ref.ID, staffID); err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if _, err := svc.Complete(context.Background(), ref.ID, staffID); !errors.Is(err, ErrAlreadyCompleted) {
		t.Errorf("expected ErrAlreadyCompleted, got %v", err)
	}
}

func TestCancel_GuardsTerminalStates(t *testing.T) {
	svc, repo, auditRepo := newTestService()
	ref, _ := svc.Submit(context.Background(), uuid.New(), submitInput(nil))
	staffID := uuid.New()
	if _, err := svc.Assign(context.Background(), ref.ID, staffID, nil); err != nil {
		t.Fatalf("assign failed: %v", err)
	}
	if _, err := svc.Complete(context.Background(), ref.ID, staffID); err != nil {
		t.Fatalf("complete failed: %v", err)
	}

	if _, err := svc.Cancel(context.Background(), ref.ID, "no longer needed", nil); !errors.Is(err, ErrCannotCancel) {
		t.Errorf("expected ErrCannotCancel for completed referral, got %v", err)
	}
	if repo.store[ref.ID].Status != StatusCompleted {
		t.Errorf("completed referral must stay completed, got %s", repo.store[ref.ID].Status)
	}

	other, _ := svc.Submit(context.Background(), uuid.New(), submitInput(nil))
	cancelled, err := svc.Cancel(context.Background(), other.ID, "patient declined", nil)
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if cancelled.Status != StatusCancelled {
		t.Errorf("expected status cancelled, got %s", cancelled.Status)
	}
	var found bool
	for _, e := range auditRepo.entries {
		if e.ReferralID == other.ID && e.Action == audit.ActionCancelled {
			found = true
			if e.Metadata["reason"] != "patient declined" {
				t.Errorf("cancel reason missing from metadata: %v", e.Metadata)
			}
		}
	}
	if !found {
		t.Error("expected a cancelled audit entry")
	}
	if _, err := svc.Cancel(context.Background(), other.ID, "again", nil); !errors.Is(err, ErrCannotCancel) {
		t.Errorf("expected ErrCannotCancel for cancelled referral, got %v", err)
	}
}

func TestUpdateStatus_MonotonicOnly(t *testing.T) {
	svc, _, _ := newTestService()
	ref, _ := svc.Submit(context.Background(), uuid.New(), submitInput(nil))
	staffID := uuid.New()
	if _, err := svc.Assign(context.Background(), ref.ID, staffID, nil); err != nil {
		t.Fatalf("assign failed: %v", err)
	}
	if _, err := svc.UpdateStatus(context.Background(), ref.ID, staffID, StatusInProgress); err != nil {
		t.Fatalf("in_progress failed: %v", err)
	}
	// Backwards moves are rejected.
	if _, err := svc.UpdateStatus(context.Background(), ref.ID, staffID, StatusAcknowledged); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition going backwards, got %v", err)
	}
	if _, err := svc.UpdateStatus(context.Background(), ref.ID, staffID, StatusSubmitted); err == nil {
		t.Error("expected error for staff-unsettable status")
	}
}
