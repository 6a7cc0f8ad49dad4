package department

import (
	"time"

	"github.com/google/uuid"
)

// Department is a routing target for triaged referrals. Name is the lowercase
// identifier the AI prompt vocabulary and legacy API field use.
type Department struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Code      string    `db:"code" json:"code"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// CodeMapping is one ICD-10-code-to-department association. Lower priority
// numbers rank higher; is_primary marks the principal handler for the code.
type CodeMapping struct {
	Code            string     `db:"code" json:"code"`
	CodeDescription string     `db:"code_description" json:"code_description"`
	Department      Department `json:"department"`
	Priority        int        `db:"priority" json:"priority"`
	IsPrimary       bool       `db:"is_primary" json:"is_primary"`
}

// MatchedCode records how one diagnosis code contributed to a suggestion.
type MatchedCode struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	Priority    int    `json:"priority"`
	IsPrimary   bool   `json:"is_primary"`
}

// Suggestion is one ranked department recommendation for a referral.
type Suggestion struct {
	Department   Department    `json:"department"`
	Score        int           `json:"score"`
	IsPrimary    bool          `json:"is_primary"`
	MatchedCodes []MatchedCode `json:"matched_codes"`
	Confidence   float64       `json:"confidence"`
}
