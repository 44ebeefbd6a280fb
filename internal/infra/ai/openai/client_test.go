package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	domai "github.com/bryanwahyu/sitesafe/internal/domain/ai"
	"github.com/bryanwahyu/sitesafe/internal/domain/reports"
)

// fakeCompletions answers every chat completion with a tool call carrying args.
func fakeCompletions(t *testing.T, status int, args string) (*httptest.Server, *[]map[string]any) {
	t.Helper()
	var seen []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req map[string]any
		_ = json.Unmarshal(body, &req)
		seen = append(seen, req)

		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = io.WriteString(w, `{"error":{"message":"quota","type":"insufficient_quota"}}`)
			return
		}
		name := ""
		if tc, ok := req["tool_choice"].(map[string]any); ok {
			if fn, ok := tc["function"].(map[string]any); ok {
				name, _ = fn["name"].(string)
			}
		}
		resp := map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  "gpt-4o-mini",
			"choices": []any{map[string]any{
				"index":         0,
				"finish_reason": "tool_calls",
				"message": map[string]any{
					"role": "assistant",
					"tool_calls": []any{map[string]any{
						"id":       "call_1",
						"type":     "function",
						"function": map[string]any{"name": name, "arguments": args},
					}},
				},
			}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv, &seen
}

func TestCreateRiskFlagsForcesToolAndFiltersSeverity(t *testing.T) {
	args := `{"risks":[{"description":"Scaffold missing toe boards","severity":"High"},{"description":"Odd","severity":"Critical"},{"description":"Wet floor","severity":"low"}]}`
	srv, seen := fakeCompletions(t, http.StatusOK, args)
	c := NewClient("sk-test", "gpt-4o-mini", srv.URL+"/v1")

	flags, err := c.CreateRiskFlags(context.Background(), domai.Document{FileName: "diary.txt", ExtractedText: "site notes"})
	if err != nil {
		t.Fatalf("CreateRiskFlags: %v", err)
	}
	if len(flags) != 2 {
		t.Fatalf("expected 2 valid flags, got %+v", flags)
	}
	if flags[0].Severity != reports.SeverityHigh || flags[1].Severity != reports.SeverityLow {
		t.Fatalf("unexpected severities: %+v", flags)
	}

	req := (*seen)[0]
	msgs := req["messages"].([]any)
	system := msgs[0].(map[string]any)["content"].(string)
	if !strings.Contains(system, "NEBOSH-qualified") {
		t.Fatalf("system prompt missing: %q", system)
	}
	user := msgs[1].(map[string]any)["content"].(string)
	if user != `{"fileName":"diary.txt","extractedText":"site notes"}` {
		t.Fatalf("unexpected user message %q", user)
	}
	tc := req["tool_choice"].(map[string]any)["function"].(map[string]any)["name"]
	if tc != "create_risk_flags" {
		t.Fatalf("expected forced create_risk_flags, got %v", tc)
	}
}

func TestGenerateSummaryAndDraft(t *testing.T) {
	srv, _ := fakeCompletions(t, http.StatusOK, `{"summary":"All good.","reportMarkdown":"# Site report"}`)
	c := NewClient("sk-test", "", srv.URL+"/v1")
	doc := domai.Document{FileName: "a.md", ExtractedText: "x"}

	sum, err := c.GenerateSummary(context.Background(), doc)
	if err != nil || sum != "All good." {
		t.Fatalf("GenerateSummary: %q %v", sum, err)
	}
	md, err := c.DraftFullReport(context.Background(), doc)
	if err != nil || md != "# Site report" {
		t.Fatalf("DraftFullReport: %q %v", md, err)
	}
}

func TestEmptyFieldsGetPlaceholders(t *testing.T) {
	srv, _ := fakeCompletions(t, http.StatusOK, `{"summary":"","reportMarkdown":""}`)
	c := NewClient("sk-test", "", srv.URL+"/v1")
	doc := domai.Document{FileName: "a.md", ExtractedText: "x"}

	sum, err := c.GenerateSummary(context.Background(), doc)
	if err != nil || sum != domai.NoSummary {
		t.Fatalf("GenerateSummary: %q %v", sum, err)
	}
	md, err := c.DraftFullReport(context.Background(), doc)
	if err != nil || md != domai.NoReport {
		t.Fatalf("DraftFullReport: %q %v", md, err)
	}
}

func TestQuotaErrorIsMapped(t *testing.T) {
	srv, _ := fakeCompletions(t, http.StatusTooManyRequests, "")
	c := NewClient("sk-test", "gpt-4o-mini", srv.URL+"/v1")

	_, err := c.GenerateSummary(context.Background(), domai.Document{FileName: "a.txt"})
	if !errors.Is(err, domai.ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
}
