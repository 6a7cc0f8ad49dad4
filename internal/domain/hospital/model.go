package hospital

import (
	"time"

	"github.com/google/uuid"
)

// Hospital is a referral source authenticated by API key. Only the SHA-256
// hash of the key is stored.
type Hospital struct {
	ID         uuid.UUID `db:"id" json:"id"`
	Name       string    `db:"name" json:"name"`
	APIKeyHash string    `db:"api_key_hash" json:"-"`
	IsActive   bool      `db:"is_active" json:"is_active"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}
