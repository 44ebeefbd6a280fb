package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/gommon/log"
	"github.com/sashabaranov/go-openai"

	domai "github.com/bryanwahyu/sitesafe/internal/domain/ai"
	"github.com/bryanwahyu/sitesafe/internal/domain/reports"
	"github.com/bryanwahyu/sitesafe/internal/infra/ai/prompt"
)

const maxTokens = 2048

type Client struct {
	*openai.Client
	Model string
}

// NewClient builds the chat client. baseURL may point at an OpenAI compatible proxy.
func NewClient(apiKey, model, baseURL string) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Client{Client: openai.NewClientWithConfig(cfg), Model: model}
}

func (c *Client) CreateRiskFlags(ctx context.Context, doc domai.Document) ([]reports.RiskFlag, error) {
	raw, err := c.call(ctx, prompt.RiskFlags(), doc)
	if err != nil || raw == "" {
		return nil, err
	}
	var args prompt.RiskFlagsArgs
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("decode %s arguments: %w", prompt.FuncRiskFlags, err)
	}
	flags := make([]reports.RiskFlag, 0, len(args.Risks))
	for _, r := range args.Risks {
		sev, ok := reports.ParseSeverity(r.Severity)
		if !ok || strings.TrimSpace(r.Description) == "" {
			log.Warnf("dropping risk flag with severity %q", r.Severity)
			continue
		}
		flags = append(flags, reports.RiskFlag{Description: r.Description, Severity: sev})
	}
	return flags, nil
}

func (c *Client) GenerateSummary(ctx context.Context, doc domai.Document) (string, error) {
	raw, err := c.call(ctx, prompt.Summary(), doc)
	if err != nil || raw == "" {
		return "", err
	}
	var args prompt.SummaryArgs
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return "", fmt.Errorf("decode %s arguments: %w", prompt.FuncSummary, err)
	}
	if args.Summary == "" {
		return domai.NoSummary, nil
	}
	return args.Summary, nil
}

func (c *Client) DraftFullReport(ctx context.Context, doc domai.Document) (string, error) {
	raw, err := c.call(ctx, prompt.FullReport(), doc)
	if err != nil || raw == "" {
		return "", err
	}
	var args prompt.FullReportArgs
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return "", fmt.Errorf("decode %s arguments: %w", prompt.FuncFullReport, err)
	}
	if args.ReportMarkdown == "" {
		return domai.NoReport, nil
	}
	return args.ReportMarkdown, nil
}

// call forces the model to invoke fn and returns the raw JSON arguments, or "" when
// the model replied without a tool call.
func (c *Client) call(ctx context.Context, fn prompt.Function, doc domai.Document) (string, error) {
	user, err := prompt.UserMessage(doc)
	if err != nil {
		return "", err
	}
	model := c.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	req := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt.SystemPrompt()},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Tools: []openai.Tool{{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        fn.Name,
				Description: fn.Description,
				Parameters:  fn.Parameters,
			},
		}},
		ToolChoice: openai.ToolChoice{
			Type:     openai.ToolTypeFunction,
			Function: openai.ToolFunction{Name: fn.Name},
		},
	}
	// For reasoning models (o1/o3/o4/gpt-5*) use MaxCompletionTokens instead of MaxTokens
	if strings.HasPrefix(model, "o1") || strings.HasPrefix(model, "o3") || strings.HasPrefix(model, "o4") || strings.HasPrefix(model, "gpt-5") {
		req.MaxCompletionTokens = maxTokens
	} else {
		req.MaxTokens = maxTokens
	}

	resp, err := c.CreateChatCompletion(ctx, req)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			return "", fmt.Errorf("%s: %w", fn.Name, domai.ErrQuotaExceeded)
		}
		return "", fmt.Errorf("failed to create chat completion (%s): %w", fn.Name, err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	for _, tc := range resp.Choices[0].Message.ToolCalls {
		if tc.Function.Name == fn.Name {
			return tc.Function.Arguments, nil
		}
	}
	return "", nil
}
