package ai

import (
	"context"
	"errors"
	"testing"

	"cyberintel/internal/model"
)

func TestExtractResultsMultipleObjects(t *testing.T) {
	raw := `Here are the findings:
{"type": "CVE", "cve_id": ["CVE-2023-12345"], "severity": "High", "cvss_score": 7.2, "summary": "RCE in product A.", "intrigue": 7, "affected_products": ["Product A"]}
Some commentary in between.
{"type": "News", "cve_id": ["Unknown"], "severity": "Medium", "cvss_score": 4.0, "summary": "Ransomware campaign report.", "intrigue": 5, "affected_products": []}`

	results := ExtractResults(raw)
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Type != "CVE" || results[0].CVEIDs[0] != "CVE-2023-12345" {
		t.Errorf("first result = %+v", results[0])
	}
	if results[0].CVSSScore != 7.2 {
		t.Errorf("cvss = %v, want 7.2", results[0].CVSSScore)
	}
	if results[1].Type != "News" {
		t.Errorf("second result type = %q, want News", results[1].Type)
	}
}

func TestExtractResultsBracesInsideStrings(t *testing.T) {
	raw := `{"type": "News", "cve_id": ["Unknown"], "severity": "Low", "cvss_score": 2.0, "summary": "Attackers used {curly} payloads and a \"quoted\" string.", "intrigue": 4, "affected_products": []}`
	results := ExtractResults(raw)
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Summary != `Attackers used {curly} payloads and a "quoted" string.` {
		t.Errorf("summary = %q", results[0].Summary)
	}
}

func TestExtractResultsFlexibleTypes(t *testing.T) {
	// cve_id as bare string, scores as strings: all seen in the wild.
	raw := `{"type": "cve", "cve_id": "CVE-2024-0001", "severity": "critical", "cvss_score": "9.8", "summary": "s", "intrigue": "8", "affected_products": "Product X"}`
	results := ExtractResults(raw)
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	r := results[0]
	if r.Type != "CVE" {
		t.Errorf("type = %q, want CVE", r.Type)
	}
	if len(r.CVEIDs) != 1 || r.CVEIDs[0] != "CVE-2024-0001" {
		t.Errorf("cve ids = %v", r.CVEIDs)
	}
	if r.Severity != model.SeverityCritical {
		t.Errorf("severity = %q, want Critical", r.Severity)
	}
	if r.CVSSScore != 9.8 || r.Intrigue != 8 {
		t.Errorf("scores = %v / %v", r.CVSSScore, r.Intrigue)
	}
	if len(r.AffectedProducts) != 1 || r.AffectedProducts[0] != "Product X" {
		t.Errorf("products = %v", r.AffectedProducts)
	}
}

func TestExtractResultsDiscardsJunk(t *testing.T) {
	cases := []string{
		"Sorry, I cannot process this.",
		"",
		`{"not_a_classification": true}`,
		`{"type": "CVE", "cve_id": [unterminated`,
	}
	for _, raw := range cases {
		if got := ExtractResults(raw); len(got) != 0 {
			t.Errorf("ExtractResults(%q) = %v, want empty", raw, got)
		}
	}
}

func TestExtractResultsClampsScores(t *testing.T) {
	raw := `{"type": "CVE", "cve_id": ["CVE-2024-1"], "severity": "High", "cvss_score": 47.0, "summary": "s", "intrigue": -3, "affected_products": []}`
	results := ExtractResults(raw)
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].CVSSScore != 10 {
		t.Errorf("cvss = %v, want clamped 10", results[0].CVSSScore)
	}
	if results[0].Intrigue != 0 {
		t.Errorf("intrigue = %v, want clamped 0", results[0].Intrigue)
	}
}

type stubCompleter struct {
	reply string
	err   error
}

func (s *stubCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	return s.reply, s.err
}

func TestClassifyEmptyInputSkipsCall(t *testing.T) {
	c := NewClassifier(&stubCompleter{err: errors.New("should never be called")})
	results, err := c.Classify(context.Background(), "   ")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results, want 0", len(results))
	}
}

func TestClassifyErrorIsNotFallback(t *testing.T) {
	c := NewClassifier(&stubCompleter{err: errors.New("api down")})
	results, err := c.Classify(context.Background(), "some article")
	if err == nil {
		t.Fatal("expected error when the call cannot be attempted")
	}
	if results != nil {
		t.Errorf("results = %v, want nil on error", results)
	}
}

func TestClassifyFallbackOnUnparseableResponse(t *testing.T) {
	c := NewClassifier(&stubCompleter{reply: "Sorry, I cannot process this."})
	results, err := c.Classify(context.Background(), "some article")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want the single fallback", len(results))
	}
	fb := results[0]
	if fb.Type != "News" || fb.Severity != model.SeverityMedium || fb.CVSSScore != 5.0 {
		t.Errorf("fallback = %+v", fb)
	}
	if fb.Summary != "Classification failed - manual review needed" {
		t.Errorf("fallback summary = %q", fb.Summary)
	}
	if fb.IsCVE() {
		t.Error("fallback must not count as a concrete CVE")
	}
}

func TestIsCVERequiresConcreteIdentifier(t *testing.T) {
	r := Result{Type: "CVE", CVEIDs: []string{"Unknown"}}
	if r.IsCVE() {
		t.Error("Unknown-only result reported as CVE")
	}
	r.CVEIDs = []string{"Unknown", "CVE-2024-9999"}
	if !r.IsCVE() {
		t.Error("result with a concrete id not reported as CVE")
	}
	if got := r.ConcreteCVEIDs(); len(got) != 1 || got[0] != "CVE-2024-9999" {
		t.Errorf("ConcreteCVEIDs = %v", got)
	}
}
