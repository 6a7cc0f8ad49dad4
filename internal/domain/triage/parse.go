package triage

import (
	"encoding/json"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/referralhub/referralhub/internal/domain/referral"
)

// Result is the parsed triage decision. Field names follow the JSON contract
// the prompt asks the model for.
type Result struct {
	Urgency    string  `json:"urgency"`
	Department string  `json:"suggested_department"`
	Confidence float64 `json:"confidence_score"`
	Reasoning  string  `json:"reasoning"`
}

// ErrUnparseable is returned when no strategy extracts a usable decision.
var ErrUnparseable = errors.New("triage response could not be parsed")

// defaultConfidence is used when the model reports no confidence at all. An
// explicit zero is kept as-is.
const defaultConfidence = 0.5

var (
	fencedJSONPattern = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")
	urgencyPattern    = regexp.MustCompile(`(?i)\b(routine|urgent|emergency)\b`)
	departmentPattern = regexp.MustCompile(`(?i)\b(cardiology|neurology|orthopedics|general)\b`)
	decimalPattern    = regexp.MustCompile(`\b(0?\.\d+|1\.0+)\b`)
)

// ParseTriageResponse extracts a Result from raw model output. Strategies are
// tried in order: the whole body as JSON, a fenced code block, the outermost
// brace substring, then keyword extraction from free text.
func ParseTriageResponse(raw string) (*Result, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrUnparseable
	}

	if res := tryJSON(raw); res != nil {
		return res, nil
	}

	if m := fencedJSONPattern.FindStringSubmatch(raw); m != nil {
		if res := tryJSON(m[1]); res != nil {
			return res, nil
		}
	}

	if start, end := strings.Index(raw, "{"), strings.LastIndex(raw, "}"); start >= 0 && end > start {
		if res := tryJSON(raw[start : end+1]); res != nil {
			return res, nil
		}
	}

	return tryKeywords(raw)
}

func tryJSON(s string) *Result {
	var raw struct {
		Urgency    string   `json:"urgency"`
		Department string   `json:"suggested_department"`
		Confidence *float64 `json:"confidence_score"`
		Reasoning  string   `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil
	}
	res := Result{
		Urgency:    strings.ToLower(strings.TrimSpace(raw.Urgency)),
		Department: strings.ToLower(strings.TrimSpace(raw.Department)),
		Reasoning:  raw.Reasoning,
	}
	if !referral.ValidUrgency(res.Urgency) {
		return nil
	}
	if res.Department == "" {
		return nil
	}
	if raw.Confidence == nil {
		res.Confidence = defaultConfidence
	} else {
		res.Confidence = normalizeConfidence(*raw.Confidence)
	}
	return &res
}

// tryKeywords scrapes urgency and department keywords out of free text. The
// department vocabulary here is intentionally the fixed legacy set; the
// orchestrator re-validates against the live department list.
func tryKeywords(raw string) (*Result, error) {
	urgencyMatch := urgencyPattern.FindString(raw)
	departmentMatch := departmentPattern.FindString(raw)
	if urgencyMatch == "" || departmentMatch == "" {
		return nil, ErrUnparseable
	}
	confidence := defaultConfidence
	if m := decimalPattern.FindString(raw); m != "" {
		if v, err := strconv.ParseFloat(m, 64); err == nil && v >= 0 && v <= 1 {
			confidence = v
		}
	}
	return &Result{
		Urgency:    strings.ToLower(urgencyMatch),
		Department: strings.ToLower(departmentMatch),
		Confidence: confidence,
	}, nil
}

// normalizeConfidence maps a reported confidence onto [0,1]:
// percentage-style values are divided by 100 and the result is clamped.
func normalizeConfidence(c float64) float64 {
	if c > 1 {
		c = c / 100
	}
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
