package intel

import (
	"time"

	"cyberintel/internal/model"
)

// Session accumulates the work of one query execution. Each execution owns
// its own instance; sessions are never shared across goroutines serving
// different queries. Only the constituent rows are persisted, tagged with
// the session id; the session itself is discarded after the response is
// built.
type Session struct {
	ID                string
	StartedAt         time.Time
	TriggeredBy       string
	ScrapedArticles   []model.Article
	CVEs              []model.Vulnerability
	News              []model.NewsItem
	AlreadyClassified int
}

// NewSession creates a session with a time-derived id.
func NewSession(now time.Time) *Session {
	return &Session{
		ID:          now.Format("20060102_150405"),
		StartedAt:   now,
		TriggeredBy: "query",
	}
}

// AddCVE tags the record with the session id before accumulating it.
func (s *Session) AddCVE(v model.Vulnerability) {
	v.SessionID = s.ID
	s.CVEs = append(s.CVEs, v)
}

// AddNews tags the record with the session id before accumulating it.
func (s *Session) AddNews(n model.NewsItem) {
	n.SessionID = s.ID
	s.News = append(s.News, n)
}

// Sources returns the distinct source names seen among scraped articles,
// in first-seen order.
func (s *Session) Sources() []string {
	seen := make(map[string]bool)
	var out []string
	for _, a := range s.ScrapedArticles {
		if !seen[a.Source] {
			seen[a.Source] = true
			out = append(out, a.Source)
		}
	}
	return out
}
