package reports

import (
	"strings"
	"time"
)

// Severity enum
type Severity string

const (
	SeverityLow    Severity = "Low"
	SeverityMedium Severity = "Medium"
	SeverityHigh   Severity = "High"
)

// ParseSeverity normalises a model supplied severity. ok is false for unknown values.
func ParseSeverity(s string) (Severity, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return SeverityLow, true
	case "medium":
		return SeverityMedium, true
	case "high":
		return SeverityHigh, true
	}
	return "", false
}

// RiskFlag value object
type RiskFlag struct {
	Description string   `json:"description"`
	Severity    Severity `json:"severity"`
}

// Report is the generated health-and-safety document for one upload.
type Report struct {
	ID                 string     `json:"id"`
	UserID             string     `json:"userId"`
	Title              string     `json:"title"`
	Summary            string     `json:"summary"`
	FullReportMarkdown string     `json:"fullReportMarkdown"`
	RiskFlags          []RiskFlag `json:"riskFlags"`
	SourceUploadIDs    []string   `json:"sourceUploadIds"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

// Counts tallies flags per severity.
func (r *Report) Counts() map[Severity]int {
	out := map[Severity]int{SeverityLow: 0, SeverityMedium: 0, SeverityHigh: 0}
	for _, f := range r.RiskFlags {
		out[f.Severity]++
	}
	return out
}
