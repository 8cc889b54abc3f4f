package model

import (
	"strings"
	"time"
)

// Content types accepted by the query surface.
const (
	ContentCVE  = "cve"
	ContentNews = "news"
	ContentBoth = "both"
)

// QueryParams are the filters for a single intelligence query.
type QueryParams struct {
	ContentType string   `json:"content_type" mapstructure:"content_type"`
	Severity    []string `json:"severity" mapstructure:"severity"`
	DaysBack    int      `json:"days_back" mapstructure:"days_back"`
	MaxResults  int      `json:"max_results" mapstructure:"max_results"`
}

// Normalize fills defaults and canonicalizes the content type and severity
// casing so downstream filters can compare directly.
func (q *QueryParams) Normalize() {
	switch strings.ToLower(strings.TrimSpace(q.ContentType)) {
	case ContentCVE:
		q.ContentType = ContentCVE
	case ContentNews:
		q.ContentType = ContentNews
	default:
		q.ContentType = ContentBoth
	}
	if q.DaysBack <= 0 {
		q.DaysBack = 7
	}
	if q.MaxResults <= 0 {
		q.MaxResults = 10
	}
	if q.MaxResults > 50 {
		q.MaxResults = 50
	}
	cleaned := make([]string, 0, len(q.Severity))
	for _, s := range q.Severity {
		s = strings.TrimSpace(s)
		if s != "" {
			cleaned = append(cleaned, strings.ToUpper(s))
		}
	}
	q.Severity = cleaned
}

// Cutoff returns the oldest published date admitted by the query.
func (q *QueryParams) Cutoff(now time.Time) time.Time {
	return now.AddDate(0, 0, -q.DaysBack)
}

// NeededSplit returns how many CVEs and news items the query asks for.
// For "both" the budget is split in half with the remainder going to news.
func (q *QueryParams) NeededSplit() (neededCVEs, neededNews int) {
	switch q.ContentType {
	case ContentCVE:
		return q.MaxResults, 0
	case ContentNews:
		return 0, q.MaxResults
	default:
		neededCVEs = q.MaxResults / 2
		return neededCVEs, q.MaxResults - neededCVEs
	}
}

// SearchResult is the externally returned response for one query execution.
type SearchResult struct {
	Success      bool            `json:"success"`
	Error        string          `json:"error,omitempty"`
	CVEs         []Vulnerability `json:"cves"`
	News         []NewsItem      `json:"news"`
	TotalResults int             `json:"total_results"`
	SessionID    string          `json:"session_id"`
	GeneratedAt  time.Time       `json:"generated_at"`
	FromCache    bool            `json:"from_cache"`
}
