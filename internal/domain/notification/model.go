package notification

import (
	"time"

	"github.com/google/uuid"
)

// Delivery channels.
const (
	ChannelInApp = "in_app"
	ChannelEmail = "email"
	ChannelSMS   = "sms"
	ChannelSlack = "slack"
)

// Notification types.
const (
	TypeAssignment = "assignment"
	TypeReferral   = "referral"
	TypeEscalation = "escalation"
	TypeReminder   = "reminder"
)

// Notification is one delivered (or delivering) message on one channel.
// ReferralID is nil for messages that are not referral-scoped (reminders).
type Notification struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	StaffID    uuid.UUID  `db:"staff_id" json:"staff_id"`
	ReferralID *uuid.UUID `db:"referral_id" json:"referral_id,omitempty"`
	Type       string     `db:"type" json:"type"`
	Channel    string     `db:"channel" json:"channel"`
	Message    string     `db:"message" json:"message"`
	SentAt     *time.Time `db:"sent_at" json:"sent_at,omitempty"`
	ReadAt     *time.Time `db:"read_at" json:"read_at,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

// QueuedNotification parks a notification for an unavailable recipient.
// StaffID is nil for deferred cohort markers, where no staff member in the
// target department was available and the first one to come back picks the
// referral up.
type QueuedNotification struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	StaffID     *uuid.UUID `db:"staff_id" json:"staff_id,omitempty"`
	ReferralID  uuid.UUID  `db:"referral_id" json:"referral_id"`
	Department  string     `db:"department" json:"department,omitempty"`
	Type        string     `db:"type" json:"type"`
	Message     string     `db:"message" json:"message"`
	Channels    []string   `db:"channels" json:"channels"`
	QueuedAt    time.Time  `db:"queued_at" json:"queued_at"`
	ProcessedAt *time.Time `db:"processed_at" json:"processed_at,omitempty"`
}

// IsDeferredMarker reports whether this row is a department-wide deferral
// rather than a per-staff queued message.
func (q *QueuedNotification) IsDeferredMarker() bool {
	return q.StaffID == nil
}
