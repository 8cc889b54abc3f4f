package model

import "time"

// Severity levels for classified vulnerabilities.
const (
	SeverityLow      = "Low"
	SeverityMedium   = "Medium"
	SeverityHigh     = "High"
	SeverityCritical = "Critical"
)

// UnknownCVEID is the sentinel used when no concrete identifier was found.
// A record carrying only this sentinel must be typed as news, never as a CVE.
const UnknownCVEID = "Unknown"

// Vulnerability is a classified CVE record derived from an article.
type Vulnerability struct {
	CVEID            string    `json:"cve_id"`
	Title            string    `json:"title"`
	TitleTranslated  string    `json:"title_translated"`
	Summary          string    `json:"summary"`
	Severity         string    `json:"severity"`
	CVSSScore        float64   `json:"cvss_score"`
	Intrigue         float64   `json:"intrigue"`
	PublishedDate    time.Time `json:"published_date"`
	OriginalLanguage string    `json:"original_language"`
	Source           string    `json:"source"`
	URL              string    `json:"url"`
	AffectedProducts []string  `json:"affected_products"`
	SessionID        string    `json:"session_id,omitempty"`
}

// RankScore blends technical severity with editorial interest. This is the
// ordering used everywhere results are presented.
func (v *Vulnerability) RankScore() float64 {
	return v.CVSSScore*0.6 + v.Intrigue*0.4
}

// PriorityScore is the older recency-weighted score. It no longer drives
// ranking but is still exposed for clients that display it.
func (v *Vulnerability) PriorityScore(now time.Time) float64 {
	daysOld := int(now.Sub(v.PublishedDate).Hours() / 24)
	recency := float64(max(0, 30-daysOld)) / 30
	return (v.CVSSScore/10)*0.7 + recency*0.3
}

// NewsItem is a classified non-CVE security story.
type NewsItem struct {
	Title            string    `json:"title"`
	TitleTranslated  string    `json:"title_translated"`
	Summary          string    `json:"summary"`
	Intrigue         float64   `json:"intrigue"`
	PublishedDate    time.Time `json:"published_date"`
	OriginalLanguage string    `json:"original_language"`
	Source           string    `json:"source"`
	URL              string    `json:"url"`
	SessionID        string    `json:"session_id,omitempty"`
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
