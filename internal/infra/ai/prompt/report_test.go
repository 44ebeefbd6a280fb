package prompt

import (
	"encoding/json"
	"strings"
	"testing"

	domai "github.com/bryanwahyu/sitesafe/internal/domain/ai"
)

func TestFunctionSchemas(t *testing.T) {
	risks := RiskFlags().Parameters.Properties["risks"]
	if risks.Description != "A list of identified H&S risks." {
		t.Fatalf("unexpected risks description %q", risks.Description)
	}
	item := risks.Items.Properties
	if item["description"].Description != "Description of the identified risk" ||
		item["severity"].Description != "Assessed severity of the risk" {
		t.Fatalf("unexpected risk item schema %+v", item)
	}
	if strings.Join(item["severity"].Enum, ",") != "Low,Medium,High" {
		t.Fatalf("unexpected severity enum %v", item["severity"].Enum)
	}

	sum := Summary()
	if sum.Name != FuncSummary || sum.Parameters.Properties["summary"].Description != "A brief summary (1-2 sentences) of the document content." {
		t.Fatalf("unexpected summary function %+v", sum)
	}
	full := FullReport()
	if full.Parameters.Properties["reportMarkdown"].Description != "The full report section formatted in Markdown." {
		t.Fatalf("unexpected report function %+v", full)
	}
	if !strings.HasPrefix(full.Description, "Drafts a detailed section") {
		t.Fatalf("unexpected description %q", full.Description)
	}
}

func TestUserMessage(t *testing.T) {
	msg, err := UserMessage(domai.Document{FileName: "diary.txt", ExtractedText: "scaffold <ok>"})
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]string
	if err := json.Unmarshal([]byte(msg), &got); err != nil {
		t.Fatal(err)
	}
	if got["fileName"] != "diary.txt" || got["extractedText"] != "scaffold <ok>" {
		t.Fatalf("unexpected message %s", msg)
	}
}
