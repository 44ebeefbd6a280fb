package ai

import (
	"context"
	"fmt"

	"github.com/labstack/gommon/log"

	"github.com/bryanwahyu/sitesafe/internal/domain/ai"
	"github.com/bryanwahyu/sitesafe/internal/domain/reports"
)

const (
	DefaultSummary  = "Summary could not be generated."
	DefaultMarkdown = "Full report could not be generated."
	ErrorSummary    = "Error during AI processing."
)

// Draft is the model output for one document.
type Draft struct {
	RiskFlags []reports.RiskFlag
	Summary   string
	Markdown  string
	// Err is the model failure absorbed into the texts above, if any.
	Err error
}

type Service struct {
	client ai.Client
}

func NewService(client ai.Client) *Service {
	return &Service{client: client}
}

// Generate runs risk flags, summary and full report in that order. A failing call
// stops the sequence and turns the texts into an error note; flags gathered before
// the failure are kept. Generate itself never fails.
func (s *Service) Generate(ctx context.Context, doc ai.Document) Draft {
	d := Draft{
		RiskFlags: []reports.RiskFlag{},
		Summary:   DefaultSummary,
		Markdown:  DefaultMarkdown,
	}

	flags, err := s.client.CreateRiskFlags(ctx, doc)
	if err != nil {
		return s.fail(d, doc, err)
	}
	if len(flags) > 0 {
		d.RiskFlags = flags
	}

	summary, err := s.client.GenerateSummary(ctx, doc)
	if err != nil {
		return s.fail(d, doc, err)
	}
	if summary != "" {
		d.Summary = summary
	}

	md, err := s.client.DraftFullReport(ctx, doc)
	if err != nil {
		return s.fail(d, doc, err)
	}
	if md != "" {
		d.Markdown = md
	}
	return d
}

func (s *Service) fail(d Draft, doc ai.Document, err error) Draft {
	log.Errorf("report generation for %s failed: %v", doc.FileName, err)
	d.Summary = ErrorSummary
	d.Markdown = fmt.Sprintf("Error during AI processing: %s", err.Error())
	d.Err = err
	return d
}
