package prompt

import (
	"encoding/json"

	"github.com/sashabaranov/go-openai/jsonschema"

	domai "github.com/bryanwahyu/sitesafe/internal/domain/ai"
)

// Function names the model is forced to call, one per request.
const (
	FuncRiskFlags  = "create_risk_flags"
	FuncSummary    = "generate_summary"
	FuncFullReport = "draft_full_report"
)

const (
	severityLow    = "Low"
	severityMedium = "Medium"
	severityHigh   = "High"
)

// SystemPrompt frames the model as the compliance officer writing the report.
func SystemPrompt() string {
	return "You are a NEBOSH-qualified H&S compliance officer generating UK HSE-ready reports " +
		"based on site diaries, checklists, and photos. Analyze the provided text and identify " +
		"potential H&S risks, summarize findings, and draft a formal report section. " +
		"Prioritize identifying and flagging risks clearly."
}

// UserMessage serialises the document as {"fileName":..,"extractedText":..}.
func UserMessage(doc domai.Document) (string, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Function describes one callable tool.
type Function struct {
	Name        string
	Description string
	Parameters  jsonschema.Definition
}

// RiskFlags schema: {"risks":[{"description":string,"severity":"Low|Medium|High"}]}
func RiskFlags() Function {
	return Function{
		Name:        FuncRiskFlags,
		Description: "Identifies and lists potential H&S risks from the text.",
		Parameters: jsonschema.Definition{
			Type: jsonschema.Object,
			Properties: map[string]jsonschema.Definition{
				"risks": {
					Type: jsonschema.Array,
					Items: &jsonschema.Definition{
						Type: jsonschema.Object,
						Properties: map[string]jsonschema.Definition{
							"description": {Type: jsonschema.String, Description: "Description of the identified risk"},
							"severity": {
								Type:        jsonschema.String,
								Enum:        []string{severityLow, severityMedium, severityHigh},
								Description: "Assessed severity of the risk",
							},
						},
						Required: []string{"description", "severity"},
					},
					Description: "A list of identified H&S risks.",
				},
			},
			Required: []string{"risks"},
		},
	}
}

// Summary schema: {"summary":string}
func Summary() Function {
	return Function{
		Name:        FuncSummary,
		Description: "Generates a concise summary of the key findings or activities mentioned in the text.",
		Parameters: jsonschema.Definition{
			Type: jsonschema.Object,
			Properties: map[string]jsonschema.Definition{
				"summary": {Type: jsonschema.String, Description: "A brief summary (1-2 sentences) of the document content."},
			},
			Required: []string{"summary"},
		},
	}
}

// FullReport schema: {"reportMarkdown":string}
func FullReport() Function {
	return Function{
		Name:        FuncFullReport,
		Description: "Drafts a detailed section for the H&S report based on the provided text, incorporating identified risks and summary.",
		Parameters: jsonschema.Definition{
			Type: jsonschema.Object,
			Properties: map[string]jsonschema.Definition{
				"reportMarkdown": {Type: jsonschema.String, Description: "The full report section formatted in Markdown."},
			},
			Required: []string{"reportMarkdown"},
		},
	}
}

// RiskFlagsArgs is the argument payload of create_risk_flags.
type RiskFlagsArgs struct {
	Risks []struct {
		Description string `json:"description"`
		Severity    string `json:"severity"`
	} `json:"risks"`
}

// SummaryArgs is the argument payload of generate_summary.
type SummaryArgs struct {
	Summary string `json:"summary"`
}

// FullReportArgs is the argument payload of draft_full_report.
type FullReportArgs struct {
	ReportMarkdown string `json:"reportMarkdown"`
}
