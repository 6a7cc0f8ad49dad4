package department

import (
	"context"
	"sort"

	"github.com/google/uuid"
)

// primaryScore is the flat score a primary association earns; non-primary
// associations earn 11 - priority so lower priority numbers score higher.
const primaryScore = 10

// Suggester ranks departments against a referral's diagnosis codes. It is
// read-only; the triage orchestrator feeds its output into the AI prompt.
type Suggester struct {
	departments Repository
}

func NewSuggester(departments Repository) *Suggester {
	return &Suggester{departments: departments}
}

// SuggestForCodes scores every department associated with any of the given
// diagnosis codes and returns them ranked. An empty code list yields an empty
// result.
func (s *Suggester) SuggestForCodes(ctx context.Context, codes []string) ([]Suggestion, error) {
	if len(codes) == 0 {
		return nil, nil
	}

	mappings, err := s.departments.GetMappingsForCodes(ctx, codes)
	if err != nil {
		return nil, err
	}

	byDept := make(map[uuid.UUID]*Suggestion)
	var order []uuid.UUID
	for _, m := range mappings {
		sug, ok := byDept[m.Department.ID]
		if !ok {
			sug = &Suggestion{Department: m.Department}
			byDept[m.Department.ID] = sug
			order = append(order, m.Department.ID)
		}

		score := primaryScore
		if !m.IsPrimary {
			score = 11 - m.Priority
		}
		sug.Score += score
		if m.IsPrimary {
			sug.IsPrimary = true
		}
		sug.MatchedCodes = append(sug.MatchedCodes, MatchedCode{
			Code:        m.Code,
			Description: m.CodeDescription,
			Priority:    m.Priority,
			IsPrimary:   m.IsPrimary,
		})
	}

	suggestions := make([]Suggestion, 0, len(byDept))
	for _, id := range order {
		sug := byDept[id]
		sug.Confidence = normalizeConfidence(sug.Score)
		suggestions = append(suggestions, *sug)
	}

	// Highest score first; at equal score, primary-matching departments rank
	// above non-primary.
	sort.SliceStable(suggestions, func(i, j int) bool {
		if suggestions[i].Score != suggestions[j].Score {
			return suggestions[i].Score > suggestions[j].Score
		}
		return suggestions[i].IsPrimary && !suggestions[j].IsPrimary
	})

	return suggestions, nil
}

// BestForCodes returns the top-ranked department, or nil when no code maps to
// any department.
func (s *Suggester) BestForCodes(ctx context.Context, codes []string) (*Department, error) {
	suggestions, err := s.SuggestForCodes(ctx, codes)
	if err != nil {
		return nil, err
	}
	if len(suggestions) == 0 {
		return nil, nil
	}
	d := suggestions[0].Department
	return &d, nil
}

// IsValidForCodes reports whether the department handles at least one of the
// given diagnosis codes.
func (s *Suggester) IsValidForCodes(ctx context.Context, codes []string, departmentID uuid.UUID) (bool, error) {
	mappings, err := s.departments.GetMappingsForCodes(ctx, codes)
	if err != nil {
		return false, err
	}
	for _, m := range mappings {
		if m.Department.ID == departmentID {
			return true, nil
		}
	}
	return false, nil
}

func normalizeConfidence(score int) float64 {
	c := float64(score) / 10.0
	if c > 1.0 {
		return 1.0
	}
	return c
}
