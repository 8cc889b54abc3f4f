package ai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"cyberintel/internal/model"
)

// Result is one structured classification extracted from an article. A
// single article can produce several results when the text references
// multiple distinct CVEs.
type Result struct {
	Type             string   `json:"type"` // "CVE" or "News"
	CVEIDs           []string `json:"cve_id"`
	Severity         string   `json:"severity"`
	CVSSScore        float64  `json:"cvss_score"`
	Summary          string   `json:"summary"`
	Intrigue         float64  `json:"intrigue"`
	AffectedProducts []string `json:"affected_products"`
}

// IsCVE reports whether the result names at least one concrete CVE
// identifier. A result typed "CVE" with only the Unknown sentinel is
// downgraded to news by the caller.
func (r *Result) IsCVE() bool {
	return strings.EqualFold(r.Type, "CVE") && len(r.ConcreteCVEIDs()) > 0
}

// ConcreteCVEIDs returns the identifiers with the Unknown sentinel and
// blanks filtered out.
func (r *Result) ConcreteCVEIDs() []string {
	out := make([]string, 0, len(r.CVEIDs))
	for _, id := range r.CVEIDs {
		id = strings.TrimSpace(id)
		if id == "" || strings.EqualFold(id, model.UnknownCVEID) {
			continue
		}
		out = append(out, id)
	}
	return out
}

const promptTemplate = `You are a security threat intelligence assistant. Given this article text:
---
%s
---
Return one JSON object per distinct vulnerability or story, with ALL of the following fields and nothing else:

type: "CVE" if the text contains a uniquely identifiable CVE number, otherwise "News".
cve_id: list of every CVE identifier found in the text. Use ["Unknown"] and type "News" when none is present.
severity: your best estimate from exactly these choices: Low, Medium, High, Critical.
cvss_score: the CVSS score if stated in the text, otherwise your own reasoned estimate between 0.0 and 10.0 based on impact and exploitability, avoiding overestimation.
summary: a concise 2-3 sentence summary of the vulnerability, exploitation process, and affected systems.
intrigue: how noteworthy this is for a cybersecurity reader, an integer from 1 to 10.
affected_products: list of affected product names as strings.

Example output:
{
  "type": "CVE",
  "cve_id": ["CVE-2023-12345"],
  "severity": "High",
  "cvss_score": 7.2,
  "summary": "Concise explanation of the vulnerability and exploitation details.",
  "intrigue": 7,
  "affected_products": ["Product A", "Product B"]
}`

// Classifier runs the LLM over article text and extracts structured
// results, tolerating malformed output.
type Classifier struct {
	completer Completer
}

func NewClassifier(c Completer) *Classifier {
	return &Classifier{completer: c}
}

// Classify sends one article through the LLM and returns every result it
// can salvage from the response.
//
// Empty input short-circuits to an empty result set without a call. A
// failed call returns an error (the caller treats this as "could not
// attempt"). A completed call that yields no parseable JSON returns the
// single synthetic fallback record, so an attempted article always
// produces at least one result.
func (c *Classifier) Classify(ctx context.Context, article string) ([]Result, error) {
	if strings.TrimSpace(article) == "" {
		return nil, nil
	}
	raw, err := c.completer.Complete(ctx, fmt.Sprintf(promptTemplate, article))
	if err != nil {
		slog.Error("classifier: completion failed", "err", err)
		return nil, fmt.Errorf("classify: %w", err)
	}
	results := ExtractResults(raw)
	if len(results) == 0 {
		slog.Warn("classifier: no parseable JSON in response, using fallback",
			"response_len", len(raw))
		return []Result{FallbackResult()}, nil
	}
	return results, nil
}

// FallbackResult is the synthetic record used when a response contained no
// parseable JSON at all.
func FallbackResult() Result {
	return Result{
		Type:             "News",
		CVEIDs:           []string{model.UnknownCVEID},
		Severity:         model.SeverityMedium,
		CVSSScore:        5.0,
		Summary:          "Classification failed - manual review needed",
		Intrigue:         3,
		AffectedProducts: []string{model.UnknownCVEID},
	}
}
