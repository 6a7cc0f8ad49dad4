package patient

import (
	"time"

	"github.com/google/uuid"
)

// Patient is identified across submissions by national id.
type Patient struct {
	ID              uuid.UUID `db:"id" json:"id"`
	FirstName       string    `db:"first_name" json:"first_name"`
	LastName        string    `db:"last_name" json:"last_name"`
	DateOfBirth     time.Time `db:"date_of_birth" json:"date_of_birth"`
	NationalID      string    `db:"national_id" json:"national_id"`
	InsuranceNumber string    `db:"insurance_number" json:"insurance_number"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}
