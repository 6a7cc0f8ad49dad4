package audit

import (
	"time"

	"github.com/google/uuid"
)

// Known audit actions. The column is free-form but every writer in this
// codebase draws from this vocabulary.
const (
	ActionCreated           = "created"
	ActionStatusChanged     = "status_changed"
	ActionAssigned          = "assigned"
	ActionCancelled         = "cancelled"
	ActionAcknowledged      = "acknowledged"
	ActionCompleted         = "completed"
	ActionUrgencyChanged    = "urgency_changed"
	ActionDepartmentChanged = "department_changed"
	ActionEscalated         = "escalated"
)

// Entry is one immutable audit log row. UserID is nil for system-initiated
// actions such as escalation.
type Entry struct {
	ID         uuid.UUID         `db:"id" json:"id"`
	ReferralID uuid.UUID         `db:"referral_id" json:"referral_id"`
	UserID     *uuid.UUID        `db:"user_id" json:"user_id,omitempty"`
	Action     string            `db:"action" json:"action"`
	Field      *string           `db:"field" json:"field,omitempty"`
	OldValue   *string           `db:"old_value" json:"old_value,omitempty"`
	NewValue   *string           `db:"new_value" json:"new_value,omitempty"`
	Metadata   map[string]string `db:"metadata" json:"metadata,omitempty"`
	CreatedAt  time.Time         `db:"created_at" json:"created_at"`
}
