package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/referralhub/referralhub/internal/domain/patient"
	"github.com/referralhub/referralhub/internal/domain/referral"
	"github.com/referralhub/referralhub/internal/domain/staff"
	"github.com/referralhub/referralhub/internal/platform/taskqueue"
)

// RoutingPolicy decides which role receives a department's referral
// notifications and which channels are requested by default. It is injected
// so deployments can reroute without code changes.
type RoutingPolicy struct {
	// DepartmentRoles maps a lowercase department name to the staff role
	// notified for its new referrals. Departments not listed fall back to
	// coordinator.
	DepartmentRoles map[string]string
	// DefaultChannels are requested for every notification before the
	// channel rules are applied.
	DefaultChannels []string
}

// DefaultRoutingPolicy routes the specialist departments to doctors and
// everything else, general included, to coordinators, over in-app and email.
func DefaultRoutingPolicy() RoutingPolicy {
	return RoutingPolicy{
		DepartmentRoles: map[string]string{
			"cardiology":  staff.RoleDoctor,
			"neurology":   staff.RoleDoctor,
			"orthopedics": staff.RoleDoctor,
			"general":     staff.RoleCoordinator,
		},
		DefaultChannels: []string{ChannelInApp, ChannelEmail},
	}
}

// RoleFor returns the role notified for a department's referrals.
func (p RoutingPolicy) RoleFor(department string) string {
	if role, ok := p.DepartmentRoles[department]; ok {
		return role
	}
	return staff.RoleCoordinator
}

// Dispatcher owns all notification fan-out. Channel rules:
// in-app is always written; email requires a requested channel and a linked
// account; SMS is sent when requested or when the referral is an emergency;
// Slack requires a requested channel and the global switch. Unavailable
// recipients get a QueuedNotification instead of deliveries.
type Dispatcher struct {
	repo      Repository
	staffRepo staff.Repository
	patients  patient.Repository
	referrals referral.Repository

	email EmailSender
	sms   SMSSender
	slack SlackSender

	slackEnabled bool
	policy       RoutingPolicy
	tasks        taskqueue.Scheduler
	logger       zerolog.Logger
}

type DispatcherConfig struct {
	SlackEnabled bool
	Policy       RoutingPolicy
}

func NewDispatcher(
	repo Repository,
	staffRepo staff.Repository,
	patients patient.Repository,
	referrals referral.Repository,
	email EmailSender,
	sms SMSSender,
	slack SlackSender,
	tasks taskqueue.Scheduler,
	cfg DispatcherConfig,
	logger zerolog.Logger,
) *Dispatcher {
	return &Dispatcher{
		repo:         repo,
		staffRepo:    staffRepo,
		patients:     patients,
		referrals:    referrals,
		email:        email,
		sms:          sms,
		slack:        slack,
		slackEnabled: cfg.SlackEnabled,
		policy:       cfg.Policy,
		tasks:        tasks,
		logger:       logger.With().Str("component", "notification").Logger(),
	}
}

// Dispatcher satisfies the consumer-side interfaces it is wired into.
var (
	_ referral.AssignmentNotifier = (*Dispatcher)(nil)
	_ staff.AvailabilityListener  = (*Dispatcher)(nil)
)

// SendNotification applies the channel rules and writes/delivers one
// notification to one staff member. requested lists the channels the caller
// asked for; the rules decide what actually goes out.
func (d *Dispatcher) SendNotification(ctx context.Context, member *staff.Staff, ref *referral.Referral, notifType, message string, requested []string) error {
	want := map[string]bool{}
	for _, ch := range requested {
		want[ch] = true
	}

	// In-app is unconditional.
	if err := d.record(ctx, member.ID, ref.ID, notifType, ChannelInApp, message); err != nil {
		return fmt.Errorf("write in-app notification: %w", err)
	}

	if want[ChannelEmail] && member.HasLinkedAccount() {
		if err := d.record(ctx, member.ID, ref.ID, notifType, ChannelEmail, message); err != nil {
			return err
		}
		to := *member
		d.tasks.Enqueue("notification-email", func(jobCtx context.Context) error {
			return d.email.SendEmail(jobCtx, &to, "Referral notification", message)
		})
	}

	if want[ChannelSMS] || ref.IsEmergency() {
		if err := d.record(ctx, member.ID, ref.ID, notifType, ChannelSMS, message); err != nil {
			return err
		}
		to := *member
		d.tasks.Enqueue("notification-sms", func(jobCtx context.Context) error {
			return d.sms.SendSMS(jobCtx, &to, message)
		})
	}

	if want[ChannelSlack] && d.slackEnabled {
		staffID, referralID := member.ID, ref.ID
		d.tasks.Enqueue("notification-slack", func(jobCtx context.Context) error {
			if err := d.slack.SendSlack(jobCtx, message); err != nil {
				return err
			}
			return d.record(jobCtx, staffID, referralID, notifType, ChannelSlack, message)
		})
	}
	return nil
}

// NotifyStaffOfAssignment delivers the assignment notification, or queues it
// when the assignee is unavailable.
func (d *Dispatcher) NotifyStaffOfAssignment(ctx context.Context, staffID uuid.UUID, ref *referral.Referral) error {
	member, err := d.staffRepo.GetByID(ctx, staffID)
	if err != nil {
		return fmt.Errorf("load staff %s: %w", staffID, err)
	}

	message := d.assignmentMessage(ctx, ref)
	channels := d.policy.DefaultChannels

	if !member.IsAvailable {
		q := &QueuedNotification{
			StaffID:    &member.ID,
			ReferralID: ref.ID,
			Type:       TypeAssignment,
			Message:    message,
			Channels:   channels,
		}
		if err := d.repo.CreateQueued(ctx, q); err != nil {
			return fmt.Errorf("queue assignment notification: %w", err)
		}
		d.logger.Info().
			Str("staff_id", member.ID.String()).
			Str("referral_id", ref.ID.String()).
			Msg("staff unavailable, notification queued")
		return nil
	}

	return d.SendNotification(ctx, member, ref, TypeAssignment, message, channels)
}

// NotifyStaffForReferral fans a triaged referral out to the available members
// of its department cohort. With nobody available it writes one deferred
// marker picked up by the first member who returns.
func (d *Dispatcher) NotifyStaffForReferral(ctx context.Context, ref *referral.Referral) error {
	if ref.Department == "" {
		return nil
	}
	role := d.policy.RoleFor(ref.Department)
	cohort, err := d.staffRepo.ListAvailableByDepartmentAndRole(ctx, ref.Department, role)
	if err != nil {
		return fmt.Errorf("load %s cohort: %w", ref.Department, err)
	}

	message := "New referral assigned to your department"
	if len(cohort) == 0 {
		q := &QueuedNotification{
			ReferralID: ref.ID,
			Department: ref.Department,
			Type:       TypeReferral,
			Message:    message,
			Channels:   d.policy.DefaultChannels,
		}
		if err := d.repo.CreateQueued(ctx, q); err != nil {
			return fmt.Errorf("defer cohort notification: %w", err)
		}
		d.logger.Warn().
			Str("referral_id", ref.ID.String()).
			Str("department", ref.Department).
			Msg("no available staff, notification deferred")
		return nil
	}

	for _, member := range cohort {
		if err := d.SendNotification(ctx, member, ref, TypeReferral, message, d.policy.DefaultChannels); err != nil {
			d.logger.Error().Err(err).
				Str("staff_id", member.ID.String()).
				Str("referral_id", ref.ID.String()).
				Msg("cohort notification failed")
		}
	}
	return nil
}

// NotifyAdminsForEscalation alerts every available admin about an escalated
// emergency referral. Escalation always requests SMS.
func (d *Dispatcher) NotifyAdminsForEscalation(ctx context.Context, ref *referral.Referral) error {
	admins, err := d.staffRepo.ListAvailableAdmins(ctx)
	if err != nil {
		return fmt.Errorf("load admins: %w", err)
	}
	message := fmt.Sprintf("Emergency referral #%s requires immediate attention - not acknowledged within 2 minutes", ref.ID)
	channels := append([]string{ChannelSMS, ChannelSlack}, d.policy.DefaultChannels...)
	for _, admin := range admins {
		if err := d.SendNotification(ctx, admin, ref, TypeEscalation, message, channels); err != nil {
			d.logger.Error().Err(err).
				Str("staff_id", admin.ID.String()).
				Str("referral_id", ref.ID.String()).
				Msg("escalation notification failed")
		}
	}
	return nil
}

// StaffBecameAvailable replays the member's queued notifications in FIFO
// order, then picks up any deferred markers for their department.
func (d *Dispatcher) StaffBecameAvailable(ctx context.Context, member *staff.Staff) error {
	if err := d.ProcessQueuedNotificationsForStaff(ctx, member); err != nil {
		return err
	}
	return d.processDeferredForStaff(ctx, member)
}

// ProcessQueuedNotificationsForStaff drains the member's pending queue oldest
// first. Each item re-checks availability and referral state before delivery;
// items for terminal referrals are dropped as processed.
func (d *Dispatcher) ProcessQueuedNotificationsForStaff(ctx context.Context, member *staff.Staff) error {
	pending, err := d.repo.ListPendingByStaff(ctx, member.ID)
	if err != nil {
		return fmt.Errorf("load queued notifications: %w", err)
	}

	for _, q := range pending {
		current, err := d.staffRepo.GetByID(ctx, member.ID)
		if err != nil {
			return fmt.Errorf("reload staff %s: %w", member.ID, err)
		}
		if !current.IsAvailable {
			// Went unavailable mid-replay; the rest stays queued.
			return nil
		}

		ref, err := d.referrals.GetByID(ctx, q.ReferralID)
		if err != nil {
			d.logger.Error().Err(err).Str("referral_id", q.ReferralID.String()).Msg("queued referral lookup failed")
			continue
		}
		if ref.IsTerminal() {
			if err := d.repo.MarkQueuedProcessed(ctx, q.ID); err != nil {
				return err
			}
			continue
		}

		if err := d.SendNotification(ctx, current, ref, q.Type, q.Message, q.Channels); err != nil {
			return fmt.Errorf("replay queued notification %s: %w", q.ID, err)
		}
		if err := d.repo.MarkQueuedProcessed(ctx, q.ID); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) processDeferredForStaff(ctx context.Context, member *staff.Staff) error {
	markers, err := d.repo.ListPendingDeferred(ctx, member.Department)
	if err != nil {
		return fmt.Errorf("load deferred notifications: %w", err)
	}

	for _, q := range markers {
		if member.Role != d.policy.RoleFor(q.Department) {
			continue
		}
		ref, err := d.referrals.GetByID(ctx, q.ReferralID)
		if err != nil {
			d.logger.Error().Err(err).Str("referral_id", q.ReferralID.String()).Msg("deferred referral lookup failed")
			continue
		}
		if ref.IsTerminal() {
			if err := d.repo.MarkQueuedProcessed(ctx, q.ID); err != nil {
				return err
			}
			continue
		}
		if err := d.SendNotification(ctx, member, ref, q.Type, q.Message, q.Channels); err != nil {
			return fmt.Errorf("deliver deferred notification %s: %w", q.ID, err)
		}
		if err := d.repo.MarkQueuedProcessed(ctx, q.ID); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) record(ctx context.Context, staffID, referralID uuid.UUID, notifType, channel, message string) error {
	now := time.Now()
	return d.repo.CreateNotification(ctx, &Notification{
		StaffID:    staffID,
		ReferralID: &referralID,
		Type:       notifType,
		Channel:    channel,
		Message:    message,
		SentAt:     &now,
	})
}

func (d *Dispatcher) assignmentMessage(ctx context.Context, ref *referral.Referral) string {
	message := fmt.Sprintf("Referral #%s has been assigned to you", ref.ID)
	if p, err := d.patients.GetByID(ctx, ref.PatientID); err == nil {
		message += fmt.Sprintf(" - Patient: %s %s", p.FirstName, p.LastName)
	}
	if ref.IsEmergency() {
		message += " [EMERGENCY]"
	}
	return message
}
