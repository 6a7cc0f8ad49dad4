package notification

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/referralhub/referralhub/internal/domain/patient"
	"github.com/referralhub/referralhub/internal/domain/referral"
	"github.com/referralhub/referralhub/internal/domain/staff"
	"github.com/referralhub/referralhub/internal/platform/taskqueue"
)

type mockNotificationRepo struct {
	notifications []*Notification
	queued        []*QueuedNotification
}

func (m *mockNotificationRepo) CreateNotification(_ context.Context, n *Notification) error {
	cp := *n
	cp.ID = uuid.New()
	m.notifications = append(m.notifications, &cp)
	return nil
}

func (m *mockNotificationRepo) ListByStaff(_ context.Context, staffID uuid.UUID) ([]*Notification, error) {
	var out []*Notification
	for _, n := range m.notifications {
		if n.StaffID == staffID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (m *mockNotificationRepo) MarkRead(_ context.Context, id, staffID uuid.UUID) error {
	for _, n := range m.notifications {
		if n.ID == id && n.StaffID == staffID {
			now := time.Now()
			n.ReadAt = &now
			return nil
		}
	}
	return ErrNotFound
}

func (m *mockNotificationRepo) CreateQueued(_ context.Context, q *QueuedNotification) error {
	cp := *q
	cp.ID = uuid.New()
	cp.QueuedAt = time.Now().Add(time.Duration(len(m.queued)) * time.Millisecond)
	m.queued = append(m.queued, &cp)
	return nil
}

func (m *mockNotificationRepo) ListPendingByStaff(_ context.Context, staffID uuid.UUID) ([]*QueuedNotification, error) {
	var out []*QueuedNotification
	for _, q := range m.queued {
		if q.StaffID != nil && *q.StaffID == staffID && q.ProcessedAt == nil {
			out = append(out, q)
		}
	}
	return out, nil
}

func (m *mockNotificationRepo) ListPendingDeferred(_ context.Context, department string) ([]*QueuedNotification, error) {
	var out []*QueuedNotification
	for _, q := range m.queued {
		if q.StaffID == nil && q.Department == department && q.ProcessedAt == nil {
			out = append(out, q)
		}
	}
	return out, nil
}

func (m *mockNotificationRepo) MarkQueuedProcessed(_ context.Context, id uuid.UUID) error {
	for _, q := range m.queued {
		if q.ID == id {
			now := time.Now()
			q.ProcessedAt = &now
			return nil
		}
	}
	return ErrNotFound
}

type mockStaffRepo struct {
	store map[uuid.UUID]*staff.Staff
}

func (m *mockStaffRepo) GetByID(_ context.Context, id uuid.UUID) (*staff.Staff, error) {
	s, ok := m.store[id]
	if !ok {
		return nil, fmt.Errorf("staff not found")
	}
	cp := *s
	return &cp, nil
}

func (m *mockStaffRepo) ListAvailableByDepartmentAndRole(_ context.Context, department, role string) ([]*staff.Staff, error) {
	var out []*staff.Staff
	for _, s := range m.store {
		if s.Department == department && s.Role == role && s.IsAvailable {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockStaffRepo) ListAvailableAdmins(_ context.Context) ([]*staff.Staff, error) {
	var out []*staff.Staff
	for _, s := range m.store {
		if s.Role == staff.RoleAdmin && s.IsAvailable {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockStaffRepo) SetAvailability(_ context.Context, id uuid.UUID, available bool) error {
	m.store[id].IsAvailable = available
	return nil
}

type mockPatientRepo struct {
	store map[uuid.UUID]*patient.Patient
}

func (m *mockPatientRepo) GetByID(_ context.Context, id uuid.UUID) (*patient.Patient, error) {
	p, ok := m.store[id]
	if !ok {
		return nil, fmt.Errorf("patient not found")
	}
	return p, nil
}

func (m *mockPatientRepo) FindOrCreateByNationalID(_ context.Context, p *patient.Patient) (*patient.Patient, error) {
	return p, nil
}

type mockReferralRepo struct {
	store map[uuid.UUID]*referral.Referral
}

func (m *mockReferralRepo) Create(_ context.Context, r *referral.Referral) error {
	m.store[r.ID] = r
	return nil
}

func (m *mockReferralRepo) GetByID(_ context.Context, id uuid.UUID) (*referral.Referral, error) {
	r, ok := m.store[id]
	if !ok {
		return nil, referral.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *mockReferralRepo) FindByExternalID(context.Context, uuid.UUID, string) (*referral.Referral, error) {
	return nil, referral.ErrNotFound
}

func (m *mockReferralRepo) ListByAssignedStaff(context.Context, uuid.UUID) ([]*referral.Referral, error) {
	return nil, nil
}

func (m *mockReferralRepo) ListEmergencyUnacknowledged(context.Context, time.Time) ([]*referral.Referral, error) {
	return nil, nil
}

func (m *mockReferralRepo) Update(_ context.Context, r *referral.Referral) error {
	m.store[r.ID] = r
	return nil
}

type recordingSenders struct {
	emails []string
	sms    []string
	slack  []string
}

func (r *recordingSenders) SendEmail(_ context.Context, _ *staff.Staff, _, body string) error {
	r.emails = append(r.emails, body)
	return nil
}

func (r *recordingSenders) SendSMS(_ context.Context, _ *staff.Staff, body string) error {
	r.sms = append(r.sms, body)
	return nil
}

func (r *recordingSenders) SendSlack(_ context.Context, text string) error {
	r.slack = append(r.slack, text)
	return nil
}

type fixture struct {
	dispatcher *Dispatcher
	repo       *mockNotificationRepo
	staffRepo  *mockStaffRepo
	referrals  *mockReferralRepo
	patients   *mockPatientRepo
	senders    *recordingSenders
}

func newFixture(slackEnabled bool) *fixture {
	repo := &mockNotificationRepo{}
	staffRepo := &mockStaffRepo{store: make(map[uuid.UUID]*staff.Staff)}
	patients := &mockPatientRepo{store: make(map[uuid.UUID]*patient.Patient)}
	referrals := &mockReferralRepo{store: make(map[uuid.UUID]*referral.Referral)}
	senders := &recordingSenders{}

	d := NewDispatcher(repo, staffRepo, patients, referrals, senders, senders, senders,
		taskqueue.NewInline(zerolog.Nop()),
		DispatcherConfig{SlackEnabled: slackEnabled, Policy: DefaultRoutingPolicy()},
		zerolog.Nop())
	return &fixture{dispatcher: d, repo: repo, staffRepo: staffRepo, referrals: referrals, patients: patients, senders: senders}
}

func (f *fixture) addStaff(role, department string, available, linked bool) *staff.Staff {
	s := &staff.Staff{
		ID:          uuid.New(),
		Role:        role,
		Department:  department,
		IsAvailable: available,
		Email:       "staff@example.org",
	}
	if linked {
		uid := uuid.New()
		s.UserID = &uid
	}
	f.staffRepo.store[s.ID] = s
	return s
}

func (f *fixture) addReferral(urgency, status string) *referral.Referral {
	r := &referral.Referral{
		ID:        uuid.New(),
		PatientID: uuid.New(),
		Urgency:   urgency,
		Status:    status,
	}
	f.referrals.store[r.ID] = r
	return r
}

func (f *fixture) channelsFor(staffID uuid.UUID) []string {
	var out []string
	for _, n := range f.repo.notifications {
		if n.StaffID == staffID {
			out = append(out, n.Channel)
		}
	}
	return out
}

func TestNotifyStaffOfAssignment_UnavailableQueuesInsteadOfSending(t *testing.T) {
	f := newFixture(false)
	member := f.addStaff(staff.RoleDoctor, "cardiology", false, true)
	ref := f.addReferral(referral.UrgencyRoutine, referral.StatusAssigned)

	if err := f.dispatcher.NotifyStaffOfAssignment(context.Background(), member.ID, ref); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(f.repo.notifications) != 0 {
		t.Errorf("expected no delivered notifications, got %d", len(f.repo.notifications))
	}
	if len(f.repo.queued) != 1 {
		t.Fatalf("expected 1 queued notification, got %d", len(f.repo.queued))
	}
	q := f.repo.queued[0]
	if q.StaffID == nil || *q.StaffID != member.ID {
		t.Error("queued notification must target the assignee")
	}
	if q.ReferralID != ref.ID {
		t.Error("queued notification must reference the referral")
	}
}

func TestNotifyStaffOfAssignment_AvailableDeliversInAppAndEmail(t *testing.T) {
	f := newFixture(false)
	member := f.addStaff(staff.RoleDoctor, "cardiology", true, true)
	ref := f.addReferral(referral.UrgencyRoutine, referral.StatusAssigned)
	f.patients.store[ref.PatientID] = &patient.Patient{ID: ref.PatientID, FirstName: "Jane", LastName: "Doe"}

	if err := f.dispatcher.NotifyStaffOfAssignment(context.Background(), member.ID, ref); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	channels := f.channelsFor(member.ID)
	if len(channels) != 2 || channels[0] != ChannelInApp || channels[1] != ChannelEmail {
		t.Errorf("expected [in_app email], got %v", channels)
	}
	if len(f.senders.emails) != 1 {
		t.Fatalf("expected 1 email, got %d", len(f.senders.emails))
	}
	if !strings.Contains(f.senders.emails[0], "Patient: Jane Doe") {
		t.Errorf("assignment message missing patient name: %q", f.senders.emails[0])
	}
	if strings.Contains(f.senders.emails[0], "[EMERGENCY]") {
		t.Error("routine referral must not carry the emergency tag")
	}
}

func TestNotifyStaffOfAssignment_NoLinkedAccountSkipsEmail(t *testing.T) {
	f := newFixture(false)
	member := f.addStaff(staff.RoleDoctor, "cardiology", true, false)
	ref := f.addReferral(referral.UrgencyRoutine, referral.StatusAssigned)

	if err := f.dispatcher.NotifyStaffOfAssignment(context.Background(), member.ID, ref); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	channels := f.channelsFor(member.ID)
	if len(channels) != 1 || channels[0] != ChannelInApp {
		t.Errorf("expected only in_app, got %v", channels)
	}
	if len(f.senders.emails) != 0 {
		t.Errorf("expected no emails, got %d", len(f.senders.emails))
	}
}

func TestSendNotification_EmergencyForcesSMS(t *testing.T) {
	f := newFixture(false)
	member := f.addStaff(staff.RoleDoctor, "cardiology", true, true)
	ref := f.addReferral(referral.UrgencyEmergency, referral.StatusAssigned)

	err := f.dispatcher.SendNotification(context.Background(), f.staffRepo.store[member.ID], ref,
		TypeAssignment, "msg", []string{ChannelInApp})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	channels := f.channelsFor(member.ID)
	hasSMS := false
	for _, ch := range channels {
		if ch == ChannelSMS {
			hasSMS = true
		}
	}
	if !hasSMS {
		t.Errorf("emergency must force sms, got channels %v", channels)
	}
	if len(f.senders.sms) != 1 {
		t.Errorf("expected 1 sms, got %d", len(f.senders.sms))
	}
}

func TestSendNotification_SlackRequiresGlobalSwitch(t *testing.T) {
	ref := &referral.Referral{ID: uuid.New(), Urgency: referral.UrgencyRoutine, Status: referral.StatusAssigned}

	off := newFixture(false)
	member := off.addStaff(staff.RoleDoctor, "cardiology", true, false)
	if err := off.dispatcher.SendNotification(context.Background(), member, ref, TypeReferral, "msg", []string{ChannelSlack}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(off.senders.slack) != 0 {
		t.Errorf("slack disabled globally, expected no sends, got %d", len(off.senders.slack))
	}

	on := newFixture(true)
	member = on.addStaff(staff.RoleDoctor, "cardiology", true, false)
	if err := on.dispatcher.SendNotification(context.Background(), member, ref, TypeReferral, "msg", []string{ChannelSlack}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(on.senders.slack) != 1 {
		t.Errorf("expected 1 slack send, got %d", len(on.senders.slack))
	}
	slackRows := 0
	for _, n := range on.repo.notifications {
		if n.Channel == ChannelSlack {
			slackRows++
		}
	}
	if slackRows != 1 {
		t.Errorf("expected 1 slack notification row, got %d", slackRows)
	}
}

func TestProcessQueued_ReplaysInFIFOOrder(t *testing.T) {
	f := newFixture(false)
	member := f.addStaff(staff.RoleDoctor, "cardiology", false, false)

	var wantOrder []string
	for i := 0; i < 3; i++ {
		ref := f.addReferral(referral.UrgencyRoutine, referral.StatusAssigned)
		msg := fmt.Sprintf("queued message %d", i)
		wantOrder = append(wantOrder, msg)
		if err := f.repo.CreateQueued(context.Background(), &QueuedNotification{
			StaffID:    &member.ID,
			ReferralID: ref.ID,
			Type:       TypeAssignment,
			Message:    msg,
			Channels:   []string{ChannelInApp},
		}); err != nil {
			t.Fatalf("queue failed: %v", err)
		}
	}

	f.staffRepo.store[member.ID].IsAvailable = true
	if err := f.dispatcher.StaffBecameAvailable(context.Background(), f.staffRepo.store[member.ID]); err != nil {
		t.Fatalf("replay failed: %v", err)
	}

	if len(f.repo.notifications) != 3 {
		t.Fatalf("expected 3 delivered notifications, got %d", len(f.repo.notifications))
	}
	for i, n := range f.repo.notifications {
		if n.Message != wantOrder[i] {
			t.Errorf("position %d: expected %q, got %q", i, wantOrder[i], n.Message)
		}
	}
	for _, q := range f.repo.queued {
		if q.ProcessedAt == nil {
			t.Error("all queued notifications should be marked processed")
		}
	}
}

func TestProcessQueued_DropsTerminalReferrals(t *testing.T) {
	f := newFixture(false)
	member := f.addStaff(staff.RoleDoctor, "cardiology", true, false)
	cancelled := f.addReferral(referral.UrgencyRoutine, referral.StatusCancelled)

	if err := f.repo.CreateQueued(context.Background(), &QueuedNotification{
		StaffID:    &member.ID,
		ReferralID: cancelled.ID,
		Type:       TypeAssignment,
		Message:    "stale",
		Channels:   []string{ChannelInApp},
	}); err != nil {
		t.Fatalf("queue failed: %v", err)
	}

	if err := f.dispatcher.ProcessQueuedNotificationsForStaff(context.Background(), f.staffRepo.store[member.ID]); err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if len(f.repo.notifications) != 0 {
		t.Errorf("terminal referral must not be delivered, got %d notifications", len(f.repo.notifications))
	}
	if f.repo.queued[0].ProcessedAt == nil {
		t.Error("stale queued item should still be marked processed")
	}
}

func TestNotifyStaffForReferral_EmptyCohortWritesDeferredMarker(t *testing.T) {
	f := newFixture(false)
	ref := f.addReferral(referral.UrgencyRoutine, referral.StatusTriaged)
	ref.Department = "neurology"
	f.referrals.store[ref.ID] = ref

	if err := f.dispatcher.NotifyStaffForReferral(context.Background(), ref); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.repo.queued) != 1 {
		t.Fatalf("expected 1 deferred marker, got %d", len(f.repo.queued))
	}
	marker := f.repo.queued[0]
	if !marker.IsDeferredMarker() {
		t.Error("marker must have no staff id")
	}
	if marker.Department != "neurology" {
		t.Errorf("marker department: got %q", marker.Department)
	}

	// First matching member back picks it up.
	member := f.addStaff(staff.RoleDoctor, "neurology", true, false)
	if err := f.dispatcher.StaffBecameAvailable(context.Background(), member); err != nil {
		t.Fatalf("pickup failed: %v", err)
	}
	if len(f.repo.notifications) != 1 || f.repo.notifications[0].StaffID != member.ID {
		t.Errorf("expected delivery to returning member, got %v", f.repo.notifications)
	}
	if marker.ProcessedAt == nil {
		t.Error("marker should be processed after pickup")
	}
}

func TestDefaultRoutingPolicy_RoutesGeneralToCoordinators(t *testing.T) {
	p := DefaultRoutingPolicy()
	if got := p.RoleFor("general"); got != staff.RoleCoordinator {
		t.Errorf("general: expected coordinator, got %q", got)
	}
	if got := p.RoleFor("cardiology"); got != staff.RoleDoctor {
		t.Errorf("cardiology: expected doctor, got %q", got)
	}
	if got := p.RoleFor("oncology"); got != staff.RoleCoordinator {
		t.Errorf("unmapped department: expected coordinator, got %q", got)
	}
}

func TestNotifyStaffForReferral_GeneralCohortReachesCoordinators(t *testing.T) {
	f := newFixture(false)
	coordinator := f.addStaff(staff.RoleCoordinator, "general", true, false)
	ref := f.addReferral(referral.UrgencyRoutine, referral.StatusTriaged)
	ref.Department = "general"
	f.referrals.store[ref.ID] = ref

	if err := f.dispatcher.NotifyStaffForReferral(context.Background(), ref); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.repo.queued) != 0 {
		t.Fatalf("expected no deferred marker, got %d", len(f.repo.queued))
	}
	channels := f.channelsFor(coordinator.ID)
	if len(channels) == 0 || channels[0] != ChannelInApp {
		t.Errorf("expected in-app delivery to the coordinator, got %v", channels)
	}
}

func TestNotifyAdminsForEscalation_ReachesAvailableAdminsOnly(t *testing.T) {
	f := newFixture(false)
	available := f.addStaff(staff.RoleAdmin, "", true, false)
	f.addStaff(staff.RoleAdmin, "", false, false)
	f.addStaff(staff.RoleDoctor, "cardiology", true, false)
	ref := f.addReferral(referral.UrgencyEmergency, referral.StatusAssigned)

	if err := f.dispatcher.NotifyAdminsForEscalation(context.Background(), ref); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	staffSeen := map[uuid.UUID]bool{}
	for _, n := range f.repo.notifications {
		staffSeen[n.StaffID] = true
		if !strings.Contains(n.Message, "requires immediate attention") {
			t.Errorf("unexpected escalation message %q", n.Message)
		}
	}
	if len(staffSeen) != 1 || !staffSeen[available.ID] {
		t.Errorf("expected only the available admin, got %v", staffSeen)
	}
}
