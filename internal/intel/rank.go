package intel

import (
	"sort"
	"strings"
	"time"

	"cyberintel/internal/model"
)

// FilterCVEs applies the severity allow-list (case-insensitive) and the
// recency cutoff. Filtering must happen before ranking and capping so an
// out-of-window item can never displace an in-window one.
func FilterCVEs(cves []model.Vulnerability, severities []string, cutoff time.Time) []model.Vulnerability {
	allowed := make(map[string]bool, len(severities))
	for _, s := range severities {
		allowed[strings.ToUpper(strings.TrimSpace(s))] = true
	}
	out := make([]model.Vulnerability, 0, len(cves))
	for _, v := range cves {
		if len(allowed) > 0 && !allowed[strings.ToUpper(v.Severity)] {
			continue
		}
		if v.PublishedDate.Before(cutoff) {
			continue
		}
		out = append(out, v)
	}
	return out
}

// FilterNews applies the recency cutoff.
func FilterNews(news []model.NewsItem, cutoff time.Time) []model.NewsItem {
	out := make([]model.NewsItem, 0, len(news))
	for _, n := range news {
		if n.PublishedDate.Before(cutoff) {
			continue
		}
		out = append(out, n)
	}
	return out
}

// RankAndCap orders each category by its score and truncates to the
// query's budget. CVEs rank by the blended score, news by intrigue alone,
// both with stable sorts so equal scores keep their arrival order.
//
// For "both" each category truncates to its own share independently. A
// shortfall in one category is not backfilled from the other.
func RankAndCap(cves []model.Vulnerability, news []model.NewsItem, contentType string, maxResults int) ([]model.Vulnerability, []model.NewsItem) {
	q := model.QueryParams{ContentType: contentType, MaxResults: maxResults}
	capCVEs, capNews := q.NeededSplit()

	sort.SliceStable(cves, func(i, j int) bool {
		return cves[i].RankScore() > cves[j].RankScore()
	})
	sort.SliceStable(news, func(i, j int) bool {
		return news[i].Intrigue > news[j].Intrigue
	})

	if len(cves) > capCVEs {
		cves = cves[:capCVEs]
	}
	if len(news) > capNews {
		news = news[:capNews]
	}
	return cves, news
}
