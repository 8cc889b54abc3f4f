// Package intel holds the query decision engine: the cache sufficiency
// analyzer, the ranking and capping rules, and the per-query session.
package intel

import (
	"context"
	"fmt"
	"time"

	"cyberintel/internal/model"
	"cyberintel/internal/store"
)

// Recommendations produced by the analyzer.
const (
	RecommendSufficient   = "sufficient"
	RecommendUrgentScrape = "urgent_scrape"
)

// DefaultStalenessHours is the global cache-freshness threshold used by
// scheduled refresh, distinct from the per-query sufficiency analysis.
const DefaultStalenessHours = 12

// Analysis is the analyzer's verdict for one query.
type Analysis struct {
	Recommendation string `json:"recommendation"`
	Reasoning      string `json:"reasoning"`
	ExistingCVEs   int    `json:"existing_cves"`
	ExistingNews   int    `json:"existing_news"`
	NeededCVEs     int    `json:"needed_cves"`
	NeededNews     int    `json:"needed_news"`
}

// Sufficient reports whether cached data can serve the query as-is.
func (a *Analysis) Sufficient() bool {
	return a.Recommendation == RecommendSufficient
}

// Analyzer decides whether persisted intelligence already satisfies a
// query, or whether a scrape-and-classify refresh is required. This gate
// is what keeps routine queries from triggering LLM spend.
type Analyzer struct {
	store store.Store
}

func NewAnalyzer(s store.Store) *Analyzer {
	return &Analyzer{store: s}
}

// Analyze counts persisted records matching the query's severity and
// recency window, capped at the needed count per category, and applies the
// binary decision rule: sufficient only when BOTH categories meet their
// needed counts.
func (a *Analyzer) Analyze(ctx context.Context, params model.QueryParams, now time.Time) (*Analysis, error) {
	neededCVEs, neededNews := params.NeededSplit()
	cutoff := params.Cutoff(now)

	res := &Analysis{NeededCVEs: neededCVEs, NeededNews: neededNews}

	if neededCVEs > 0 {
		cves, err := a.store.CVEsByFilters(ctx, store.CVEFilter{
			Severities: params.Severity,
			After:      cutoff,
			Limit:      neededCVEs,
		})
		if err != nil {
			return nil, fmt.Errorf("analyze cves: %w", err)
		}
		res.ExistingCVEs = len(cves)
	}
	if neededNews > 0 {
		news, err := a.store.NewsByFilters(ctx, store.NewsFilter{
			After: cutoff,
			Limit: neededNews,
		})
		if err != nil {
			return nil, fmt.Errorf("analyze news: %w", err)
		}
		res.ExistingNews = len(news)
	}

	if res.ExistingCVEs >= neededCVEs && res.ExistingNews >= neededNews {
		res.Recommendation = RecommendSufficient
	} else {
		res.Recommendation = RecommendUrgentScrape
	}
	res.Reasoning = fmt.Sprintf(
		"found %d/%d CVEs and %d/%d news items within %d days (severity filter: %v)",
		res.ExistingCVEs, neededCVEs, res.ExistingNews, neededNews,
		params.DaysBack, params.Severity)
	return res, nil
}

// CacheFresh is the global staleness gate for scheduled refresh: data is
// fresh when the most recent scrape across all sources is younger than the
// threshold. No scrapes at all means stale.
func CacheFresh(lastScrapes map[string]time.Time, now time.Time, thresholdHours int) bool {
	if thresholdHours <= 0 {
		thresholdHours = DefaultStalenessHours
	}
	var latest time.Time
	for _, t := range lastScrapes {
		if t.After(latest) {
			latest = t
		}
	}
	if latest.IsZero() {
		return false
	}
	return now.Sub(latest) < time.Duration(thresholdHours)*time.Hour
}
