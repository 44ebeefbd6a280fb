package ai

import (
	"context"

	"github.com/bryanwahyu/sitesafe/internal/domain/reports"
)

// Document is what the model sees for one upload.
type Document struct {
	FileName      string `json:"fileName"`
	ExtractedText string `json:"extractedText"`
}

// Texts used when the model called the function but left the field empty.
const (
	NoSummary = "No summary generated."
	NoReport  = "No report generated."
)

// Client performs the three report-generation function calls. An empty result with a
// nil error means the model answered without function arguments.
type Client interface {
	CreateRiskFlags(ctx context.Context, doc Document) ([]reports.RiskFlag, error)
	GenerateSummary(ctx context.Context, doc Document) (string, error)
	DraftFullReport(ctx context.Context, doc Document) (string, error)
}
