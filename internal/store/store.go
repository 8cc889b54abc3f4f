// Package store persists raw articles and classified intelligence and
// enforces the URL-keyed idempotence contract used across the pipeline.
package store

import (
	"context"
	"time"

	"cyberintel/internal/model"
)

// Backend identifies the SQL flavor. It is resolved once when the
// connection is constructed and never re-inspected per query.
type Backend int

const (
	BackendSqlite Backend = iota
	BackendPostgres
)

func (b Backend) String() string {
	if b == BackendPostgres {
		return "postgres"
	}
	return "sqlite"
}

// CVEFilter narrows a CVE range query. Zero values mean "no constraint".
type CVEFilter struct {
	Severities []string  // case-insensitive allow-list
	After      time.Time // published_date >= After
	Limit      int
}

// NewsFilter narrows a news range query.
type NewsFilter struct {
	After time.Time
	Limit int
}

// Stats summarizes the database for the health endpoint.
type Stats struct {
	TotalCVEs      int     `json:"total_cves"`
	TotalNews      int     `json:"total_news"`
	TotalArticles  int     `json:"total_articles"`
	RecentArticles int     `json:"recent_articles"` // scraped in the last 24h
	AvgCVSS        float64 `json:"avg_cvss"`
	AvgCVEIntrigue float64 `json:"avg_cve_intrigue"`
	AvgNewsIntrigue float64 `json:"avg_news_intrigue"`
}

// SessionRecord is the audit row written after each refresh run.
type SessionRecord struct {
	SessionID     string
	StartedAt     time.Time
	Sources       []string
	ArticlesFound int
	TriggeredBy   string
}

// Store is the persistence contract. All inserts are insert-if-absent on
// the url key: a second insert of the same URL is a silent no-op, which is
// what makes the check-then-act races between concurrent workers safe.
type Store interface {
	// Raw articles.
	InsertArticle(ctx context.Context, a *model.Article) error
	IsArticleScraped(ctx context.Context, url string) (bool, error)
	UnprocessedArticles(ctx context.Context) ([]model.Article, error)
	MarkProcessed(ctx context.Context, url string) error

	// Classified records.
	InsertCVE(ctx context.Context, v *model.Vulnerability) error
	InsertNews(ctx context.Context, n *model.NewsItem) error
	IsClassified(ctx context.Context, url string) (bool, error)
	ClassifiedCVEs(ctx context.Context, url string) ([]model.Vulnerability, error)
	ClassifiedNews(ctx context.Context, url string) (*model.NewsItem, error)

	// Range queries.
	CVEsByFilters(ctx context.Context, f CVEFilter) ([]model.Vulnerability, error)
	NewsByFilters(ctx context.Context, f NewsFilter) ([]model.NewsItem, error)

	// Freshness and housekeeping.
	LastScrapeTimes(ctx context.Context) (map[string]time.Time, error)
	Statistics(ctx context.Context) (*Stats, error)
	RecordSession(ctx context.Context, rec SessionRecord) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	Close() error
}
