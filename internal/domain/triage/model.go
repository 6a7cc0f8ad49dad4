package triage

import (
	"time"

	"github.com/google/uuid"
)

// Triage run statuses.
const (
	StatusRetrying = "retrying"
	StatusSuccess  = "success"
	StatusFailed   = "failed"
)

// Log records one triage run for a referral: the input snapshot, the final
// model output, and how many retries it took. One row per triage sequence.
type Log struct {
	ID           uuid.UUID              `db:"id" json:"id"`
	ReferralID   uuid.UUID              `db:"referral_id" json:"referral_id"`
	Status       string                 `db:"status" json:"status"`
	RetryCount   int                    `db:"retry_count" json:"retry_count"`
	InputData    map[string]interface{} `db:"input_data" json:"input_data"`
	OutputData   map[string]interface{} `db:"output_data" json:"output_data,omitempty"`
	ErrorMessage *string                `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time              `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time              `db:"updated_at" json:"updated_at"`
}
