package staff

import (
	"time"

	"github.com/google/uuid"
)

// Staff roles used by notification routing.
const (
	RoleDoctor      = "doctor"
	RoleNurse       = "nurse"
	RoleCoordinator = "coordinator"
	RoleAdmin       = "admin"
)

// Staff is a clinician or coordinator who receives and acts on referrals.
// UserID links to a login account; email delivery requires the link.
// Department holds the lowercase department name used for cohort routing.
type Staff struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	UserID      *uuid.UUID `db:"user_id" json:"user_id,omitempty"`
	FirstName   string     `db:"first_name" json:"first_name"`
	LastName    string     `db:"last_name" json:"last_name"`
	Email       string     `db:"email" json:"email"`
	Phone       *string    `db:"phone" json:"phone,omitempty"`
	Role        string     `db:"role" json:"role"`
	Department  string     `db:"department" json:"department"`
	IsAvailable bool       `db:"is_available" json:"is_available"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// HasLinkedAccount reports whether the staff member can receive email
// notifications.
func (s *Staff) HasLinkedAccount() bool {
	return s.UserID != nil
}
