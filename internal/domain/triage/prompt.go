package triage

import (
	"fmt"
	"strings"

	"github.com/referralhub/referralhub/internal/domain/department"
	"github.com/referralhub/referralhub/internal/domain/referral"
)

const triageInstructions = "You are a medical triage AI assistant. Analyze the referral information and respond with valid JSON only."

// maxPromptSuggestions caps how many rule-based suggestions are surfaced to
// the model.
const maxPromptSuggestions = 3

// BuildTriagePrompt renders the model prompt for one referral: the diagnosis
// codes, clinical notes, the top rule-based department suggestions, and the
// active department vocabulary the model must choose from.
func BuildTriagePrompt(r *referral.Referral, suggestions []department.Suggestion, activeDepartments []string) string {
	var b strings.Builder

	b.WriteString("Analyze this patient referral and determine the urgency level and most appropriate department.\n\n")

	b.WriteString("Diagnosis codes (ICD-10):\n")
	for _, code := range r.DiagnosisCodes {
		fmt.Fprintf(&b, "- %s\n", code)
	}

	if r.ClinicalNotes != "" {
		fmt.Fprintf(&b, "\nClinical notes:\n%s\n", r.ClinicalNotes)
	}

	if len(suggestions) > 0 {
		b.WriteString("\nDepartment suggestions based on diagnosis code mappings:\n")
		for i, s := range suggestions {
			if i >= maxPromptSuggestions {
				break
			}
			fmt.Fprintf(&b, "- %s (code: %s, confidence: %.0f%%", s.Department.Name, s.Department.Code, s.Confidence*100)
			if s.IsPrimary {
				b.WriteString(", PRIMARY")
			}
			b.WriteString(")\n")
		}
	}

	fmt.Fprintf(&b, "\nAvailable departments: %s\n", strings.Join(activeDepartments, ", "))

	b.WriteString(`
Respond with JSON in exactly this format:
{"urgency": "routine|urgent|emergency", "suggested_department": "<one of the available departments>", "confidence_score": <0.0-1.0>, "reasoning": "<one sentence>"}`)

	return b.String()
}
