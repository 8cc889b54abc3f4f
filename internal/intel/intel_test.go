package intel

import (
	"context"
	"strings"
	"testing"
	"time"

	"cyberintel/internal/model"
	"cyberintel/internal/store"
)

// fakeStore serves canned CVE/news slices, honoring only the Limit field
// the analyzer relies on.
type fakeStore struct {
	store.Store
	cves []model.Vulnerability
	news []model.NewsItem
}

func (f *fakeStore) CVEsByFilters(ctx context.Context, flt store.CVEFilter) ([]model.Vulnerability, error) {
	out := f.cves
	if flt.Limit > 0 && len(out) > flt.Limit {
		out = out[:flt.Limit]
	}
	return out, nil
}

func (f *fakeStore) NewsByFilters(ctx context.Context, flt store.NewsFilter) ([]model.NewsItem, error) {
	out := f.news
	if flt.Limit > 0 && len(out) > flt.Limit {
		out = out[:flt.Limit]
	}
	return out, nil
}

func nCVEs(n int) []model.Vulnerability {
	out := make([]model.Vulnerability, n)
	for i := range out {
		out[i] = model.Vulnerability{CVEID: "CVE-2024-1", Severity: model.SeverityHigh}
	}
	return out
}

func nNews(n int) []model.NewsItem {
	return make([]model.NewsItem, n)
}

func TestAnalyzeSufficientWhenBothCategoriesMet(t *testing.T) {
	a := NewAnalyzer(&fakeStore{cves: nCVEs(10), news: nNews(10)})
	params := model.QueryParams{ContentType: model.ContentBoth, DaysBack: 7, MaxResults: 10}
	params.Normalize()

	res, err := a.Analyze(context.Background(), params, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if !res.Sufficient() {
		t.Errorf("recommendation = %q, want sufficient", res.Recommendation)
	}
	// 10 split as 5 CVEs + 5 news; counts are capped at needed.
	if res.NeededCVEs != 5 || res.NeededNews != 5 {
		t.Errorf("needed = %d/%d, want 5/5", res.NeededCVEs, res.NeededNews)
	}
	if res.ExistingCVEs != 5 || res.ExistingNews != 5 {
		t.Errorf("existing = %d/%d, want capped at 5/5", res.ExistingCVEs, res.ExistingNews)
	}
}

func TestAnalyzeUrgentOnAnyShortfall(t *testing.T) {
	// Plenty of news but only 2 CVEs: one short category forces a refresh.
	a := NewAnalyzer(&fakeStore{cves: nCVEs(2), news: nNews(50)})
	params := model.QueryParams{ContentType: model.ContentBoth, DaysBack: 7, MaxResults: 10}
	params.Normalize()

	res, err := a.Analyze(context.Background(), params, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if res.Recommendation != RecommendUrgentScrape {
		t.Errorf("recommendation = %q, want urgent_scrape", res.Recommendation)
	}
	if !strings.Contains(res.Reasoning, "2/5") || !strings.Contains(res.Reasoning, "5/5") {
		t.Errorf("reasoning missing found-vs-needed counts: %q", res.Reasoning)
	}
}

func TestAnalyzeSingleCategoryQueries(t *testing.T) {
	a := NewAnalyzer(&fakeStore{cves: nCVEs(10)})
	params := model.QueryParams{ContentType: model.ContentCVE, DaysBack: 7, MaxResults: 10}
	params.Normalize()

	res, err := a.Analyze(context.Background(), params, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if !res.Sufficient() {
		t.Errorf("cve-only query with 10 cached CVEs should be sufficient: %+v", res)
	}
	if res.NeededNews != 0 || res.ExistingNews != 0 {
		t.Errorf("news should not be consulted for a cve-only query: %+v", res)
	}
}

func TestAnalyzeSufficiencyMonotonic(t *testing.T) {
	// Adding cached records never flips sufficient back to urgent.
	params := model.QueryParams{ContentType: model.ContentCVE, DaysBack: 7, MaxResults: 5}
	params.Normalize()
	prev := false
	for n := 0; n <= 8; n++ {
		a := NewAnalyzer(&fakeStore{cves: nCVEs(n)})
		res, err := a.Analyze(context.Background(), params, time.Now())
		if err != nil {
			t.Fatal(err)
		}
		if prev && !res.Sufficient() {
			t.Fatalf("sufficiency regressed at n=%d", n)
		}
		prev = res.Sufficient()
	}
	if !prev {
		t.Fatal("never became sufficient")
	}
}

func TestCacheFresh(t *testing.T) {
	now := time.Now()
	fresh := map[string]time.Time{"freebuf": now.Add(-2 * time.Hour)}
	stale := map[string]time.Time{"freebuf": now.Add(-20 * time.Hour)}
	mixed := map[string]time.Time{
		"freebuf": now.Add(-40 * time.Hour),
		"thn":     now.Add(-1 * time.Hour),
	}

	if !CacheFresh(fresh, now, 12) {
		t.Error("2h-old scrape reported stale")
	}
	if CacheFresh(stale, now, 12) {
		t.Error("20h-old scrape reported fresh")
	}
	if !CacheFresh(mixed, now, 12) {
		t.Error("freshest source should drive the verdict")
	}
	if CacheFresh(nil, now, 12) {
		t.Error("no scrapes at all must be stale")
	}
}

func TestRankAndCapCVEOrdering(t *testing.T) {
	cves := []model.Vulnerability{
		{CVEID: "A", CVSSScore: 9.0, Intrigue: 2}, // 6.2
		{CVEID: "B", CVSSScore: 7.0, Intrigue: 9}, // 7.8
		{CVEID: "C", CVSSScore: 5.0, Intrigue: 5}, // 5.0
	}
	got, _ := RankAndCap(cves, nil, model.ContentCVE, 10)
	want := []string{"B", "A", "C"}
	for i, id := range want {
		if got[i].CVEID != id {
			t.Fatalf("position %d = %s, want %s", i, got[i].CVEID, id)
		}
	}
}

func TestRankAndCapStableTies(t *testing.T) {
	cves := []model.Vulnerability{
		{CVEID: "first", CVSSScore: 5.0, Intrigue: 5},
		{CVEID: "second", CVSSScore: 5.0, Intrigue: 5},
		{CVEID: "third", CVSSScore: 5.0, Intrigue: 5},
	}
	got, _ := RankAndCap(cves, nil, model.ContentCVE, 10)
	for i, id := range []string{"first", "second", "third"} {
		if got[i].CVEID != id {
			t.Fatalf("tie order broken at %d: got %s", i, got[i].CVEID)
		}
	}
}

func TestRankAndCapNoBackfill(t *testing.T) {
	// 1 CVE available, plenty of news: the news half-share stays at 5 even
	// though the CVE side leaves budget unused.
	cves := nCVEs(1)
	news := make([]model.NewsItem, 20)
	gotCVEs, gotNews := RankAndCap(cves, news, model.ContentBoth, 10)
	if len(gotCVEs) != 1 {
		t.Errorf("cves = %d, want 1", len(gotCVEs))
	}
	if len(gotNews) != 5 {
		t.Errorf("news = %d, want 5 (no backfill)", len(gotNews))
	}
}

func TestRankAndCapNewsByIntrigue(t *testing.T) {
	news := []model.NewsItem{
		{Title: "mild", Intrigue: 3},
		{Title: "hot", Intrigue: 9},
		{Title: "warm", Intrigue: 6},
	}
	_, got := RankAndCap(nil, news, model.ContentNews, 2)
	if len(got) != 2 || got[0].Title != "hot" || got[1].Title != "warm" {
		t.Errorf("got %+v", got)
	}
}

func TestFilterBeforeRank(t *testing.T) {
	now := time.Now()
	cutoff := now.AddDate(0, 0, -7)
	cves := []model.Vulnerability{
		{CVEID: "old", Severity: model.SeverityHigh, CVSSScore: 10, Intrigue: 10, PublishedDate: now.AddDate(0, 0, -30)},
		{CVEID: "low", Severity: model.SeverityLow, CVSSScore: 9, Intrigue: 9, PublishedDate: now},
		{CVEID: "keep", Severity: "HIGH", CVSSScore: 5, Intrigue: 5, PublishedDate: now},
	}
	got := FilterCVEs(cves, []string{"High", "Critical"}, cutoff)
	if len(got) != 1 || got[0].CVEID != "keep" {
		t.Fatalf("got %+v, want only the in-window high-severity record", got)
	}
}

func TestSessionTagsRecords(t *testing.T) {
	now := time.Date(2026, 8, 31, 14, 30, 5, 0, time.UTC)
	s := NewSession(now)
	if s.ID != "20260831_143005" {
		t.Errorf("session id = %q", s.ID)
	}
	s.AddCVE(model.Vulnerability{CVEID: "CVE-2024-1"})
	s.AddNews(model.NewsItem{Title: "story"})
	if s.CVEs[0].SessionID != s.ID || s.News[0].SessionID != s.ID {
		t.Error("records not tagged with the session id")
	}
	s.ScrapedArticles = []model.Article{
		{Source: "FreeBuf"}, {Source: "THN"}, {Source: "FreeBuf"},
	}
	srcs := s.Sources()
	if len(srcs) != 2 || srcs[0] != "FreeBuf" || srcs[1] != "THN" {
		t.Errorf("sources = %v", srcs)
	}
}
