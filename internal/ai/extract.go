package ai

import (
	"encoding/json"
	"strconv"
	"strings"

	"cyberintel/internal/model"
)

// ExtractResults scans raw LLM output for JSON object substrings and
// decodes every one that parses, silently discarding malformed fragments.
// The model is asked for clean JSON but in practice wraps it in prose,
// markdown fences, or emits several objects back to back.
func ExtractResults(raw string) []Result {
	var out []Result
	for _, block := range jsonObjects(raw) {
		if r, ok := decodeResult(block); ok {
			out = append(out, r)
		}
	}
	return out
}

// jsonObjects returns all top-level balanced {...} substrings, tracking
// strings and escapes so braces inside quoted text don't split objects.
func jsonObjects(s string) []string {
	var blocks []string
	depth := 0
	start := -1
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && start >= 0 {
					blocks = append(blocks, s[start:i+1])
					start = -1
				}
			}
		}
	}
	return blocks
}

// rawResult defers field decoding so a fragment with, say, a string where
// a number belongs can still be salvaged.
type rawResult struct {
	Type     json.RawMessage `json:"type"`
	CVEID    json.RawMessage `json:"cve_id"`
	Severity json.RawMessage `json:"severity"`
	CVSS     json.RawMessage `json:"cvss_score"`
	Summary  json.RawMessage `json:"summary"`
	Intrigue json.RawMessage `json:"intrigue"`
	Products json.RawMessage `json:"affected_products"`
}

func decodeResult(block string) (Result, bool) {
	var rr rawResult
	if err := json.Unmarshal([]byte(block), &rr); err != nil {
		return Result{}, false
	}
	typ := asString(rr.Type)
	if typ == "" {
		// A parseable object that isn't a classification (e.g. an example
		// embedded in prose) is not a result.
		return Result{}, false
	}
	r := Result{
		Summary:          asString(rr.Summary),
		CVEIDs:           asStrings(rr.CVEID),
		Severity:         normalizeSeverity(asString(rr.Severity)),
		CVSSScore:        clamp(asFloat(rr.CVSS), 0, 10),
		Intrigue:         clamp(asFloat(rr.Intrigue), 0, 10),
		AffectedProducts: asStrings(rr.Products),
	}
	if strings.EqualFold(typ, "CVE") {
		r.Type = "CVE"
	} else {
		r.Type = "News"
	}
	if len(r.CVEIDs) == 0 {
		r.CVEIDs = []string{model.UnknownCVEID}
	}
	return r, true
}

func asString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return ""
}

func asFloat(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return v
		}
	}
	return 0
}

func asStrings(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		out := make([]string, 0, len(list))
		for _, s := range list {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	if s := asString(raw); s != "" {
		return []string{s}
	}
	return nil
}

func normalizeSeverity(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return model.SeverityLow
	case "high":
		return model.SeverityHigh
	case "critical":
		return model.SeverityCritical
	default:
		return model.SeverityMedium
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
