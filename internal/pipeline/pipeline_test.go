package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cyberintel/internal/ai"
	"cyberintel/internal/model"
	"cyberintel/internal/scrape"
	"cyberintel/internal/store"
)

// stubClassifier returns canned results keyed by a marker substring in the
// content, optionally sleeping to scramble completion order.
type stubClassifier struct {
	results map[string][]ai.Result
	errs    map[string]error
	jitter  time.Duration
}

func (s *stubClassifier) Classify(ctx context.Context, content string) ([]ai.Result, error) {
	if s.jitter > 0 {
		time.Sleep(time.Duration(rand.Int63n(int64(s.jitter))))
	}
	for marker, err := range s.errs {
		if strings.Contains(content, marker) {
			return nil, err
		}
	}
	for marker, res := range s.results {
		if strings.Contains(content, marker) {
			return res, nil
		}
	}
	return []ai.Result{ai.FallbackResult()}, nil
}

func TestClassifyManyPreservesOrder(t *testing.T) {
	c := &stubClassifier{jitter: 20 * time.Millisecond}
	b := NewBatch(c, 8, 0)

	var items []Item
	for i := 0; i < 24; i++ {
		items = append(items, Item{Index: i, Content: fmt.Sprintf("article %d", i)})
	}
	results, err := b.ClassifyMany(context.Background(), items)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != len(items) {
		t.Fatalf("got %d results, want %d", len(results), len(items))
	}
	for i, r := range results {
		if r.Index != i {
			t.Fatalf("position %d holds index %d", i, r.Index)
		}
	}
}

func TestClassifyManyPartialFailure(t *testing.T) {
	c := &stubClassifier{
		errs: map[string]error{"poison": errors.New("api down")},
	}
	b := NewBatch(c, 4, 0)

	items := []Item{
		{Index: 0, Content: "fine one"},
		{Index: 1, Content: "fine two"},
		{Index: 2, Content: "poison pill"},
		{Index: 3, Content: "fine three"},
		{Index: 4, Content: "fine four"},
	}
	results, err := b.ClassifyMany(context.Background(), items)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 5 {
		t.Fatalf("got %d results, want all 5 slots", len(results))
	}
	for _, r := range results {
		if r.Index == 2 {
			if r.Success || r.Err == "" {
				t.Errorf("poisoned item = %+v, want captured failure", r)
			}
			continue
		}
		if !r.Success {
			t.Errorf("item %d failed: %s", r.Index, r.Err)
		}
	}
}

func TestClassifyManyEmptyBatch(t *testing.T) {
	b := NewBatch(&stubClassifier{}, 4, 0)
	if _, err := b.ClassifyMany(context.Background(), nil); !errors.Is(err, ErrEmptyBatch) {
		t.Fatalf("err = %v, want ErrEmptyBatch", err)
	}
}

func TestWorthClassifying(t *testing.T) {
	long := strings.Repeat("x", 300)
	cases := []struct {
		name    string
		title   string
		content string
		want    bool
	}{
		{"keyword in content", "", long + " vulnerability found", true},
		{"keyword in title", "New exploit released", long, true},
		{"chinese keyword", "", long + " 发现漏洞", true},
		{"too short", "exploit", "tiny", false},
		{"no keywords", "cooking tips", long, false},
	}
	for _, tc := range cases {
		if got := WorthClassifying(tc.title, tc.content, 200); got != tc.want {
			t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestTranslateAllRejoinsByField(t *testing.T) {
	articles := []model.Article{
		{Title: "标题一", Content: "内容一", Language: "zh"},
		{Title: "english stays", Content: "untouched", Language: "en"},
		{Title: "Заголовок", Content: "Текст", Language: "ru"},
	}
	TranslateAll(context.Background(), markingTranslator{}, articles, 4)

	if articles[0].TitleTranslated != "[zh]标题一" || articles[0].ContentTranslated != "[zh]内容一" {
		t.Errorf("zh article = %+v", articles[0])
	}
	if articles[1].TitleTranslated != "" || articles[1].ContentTranslated != "" {
		t.Errorf("english article should be skipped: %+v", articles[1])
	}
	if articles[2].TitleTranslated != "[ru]Заголовок" {
		t.Errorf("ru article = %+v", articles[2])
	}
}

type markingTranslator struct{}

func (markingTranslator) Translate(ctx context.Context, text, sourceLang string) string {
	return "[" + sourceLang + "]" + text
}

// fakeScraper serves a fixed article set.
type fakeScraper struct {
	name     string
	articles []model.Article
}

func (f *fakeScraper) Name() string { return f.name }

func (f *fakeScraper) Scrape(ctx context.Context, limit int) []model.Article {
	if len(f.articles) > limit {
		return f.articles[:limit]
	}
	return f.articles
}

func securityContent(marker string) string {
	return marker + " vulnerability report. " + strings.Repeat("details ", 40)
}

func newTestPipeline(t *testing.T, c classifier, scrapers ...scrape.Scraper) (*Pipeline, store.Store) {
	t.Helper()
	s, err := store.OpenSqlite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return New(Options{
		Store:    s,
		Batch:    NewBatch(c, 4, 0),
		Scrapers: scrapers,
	}), s
}

func TestSearchRefreshThenCache(t *testing.T) {
	now := time.Now()
	c := &stubClassifier{
		results: map[string][]ai.Result{
			"alpha": {{
				Type: "CVE", CVEIDs: []string{"CVE-2026-1111"},
				Severity: model.SeverityHigh, CVSSScore: 8.1, Intrigue: 7,
				Summary: "RCE in alpha", AffectedProducts: []string{"Alpha"},
			}},
			"bravo": {{
				Type: "CVE", CVEIDs: []string{"CVE-2026-2222"},
				Severity: model.SeverityCritical, CVSSScore: 9.8, Intrigue: 9,
				Summary: "Auth bypass in bravo", AffectedProducts: []string{"Bravo"},
			}},
		},
	}
	src := &fakeScraper{name: "TestFeed", articles: []model.Article{
		{Source: "TestFeed", URL: " https://example.com/alpha ", Title: "Alpha flaw",
			Content: securityContent("alpha"), Language: "en", ScrapedAt: now, PublishedDate: now},
		{Source: "TestFeed", URL: "https://example.com/bravo", Title: "Bravo flaw",
			Content: securityContent("bravo"), Language: "en", ScrapedAt: now, PublishedDate: now},
	}}
	p, s := newTestPipeline(t, c, src)

	params := model.QueryParams{ContentType: model.ContentCVE, DaysBack: 7, MaxResults: 2}
	res := p.Search(context.Background(), params)
	if !res.Success {
		t.Fatalf("search failed: %s", res.Error)
	}
	if res.FromCache {
		t.Error("cold query must not report from_cache")
	}
	if len(res.CVEs) != 2 || len(res.News) != 0 {
		t.Fatalf("got %d cves / %d news, want 2/0", len(res.CVEs), len(res.News))
	}
	// Highest blended score first.
	if res.CVEs[0].CVEID != "CVE-2026-2222" {
		t.Errorf("top cve = %s", res.CVEs[0].CVEID)
	}
	if res.TotalResults != 2 {
		t.Errorf("total = %d", res.TotalResults)
	}

	// The scraped URL is stored trimmed.
	scraped, err := s.IsArticleScraped(context.Background(), "https://example.com/alpha")
	if err != nil || !scraped {
		t.Errorf("trimmed url not found in store: %v", err)
	}

	// Second identical query is served from cache without re-scraping.
	res2 := p.Search(context.Background(), params)
	if !res2.Success || !res2.FromCache {
		t.Fatalf("second query: success=%v from_cache=%v", res2.Success, res2.FromCache)
	}
	if len(res2.CVEs) != 2 {
		t.Errorf("cached query returned %d cves", len(res2.CVEs))
	}
	if res2.SessionID == res.SessionID && res.SessionID == "" {
		t.Error("sessions must carry ids")
	}
}

func TestSearchUnknownOnlyCVEBecomesNews(t *testing.T) {
	now := time.Now()
	c := &stubClassifier{
		results: map[string][]ai.Result{
			"vague": {{
				Type: "CVE", CVEIDs: []string{model.UnknownCVEID},
				Severity: model.SeverityMedium, CVSSScore: 5, Intrigue: 6,
				Summary: "Unattributed campaign",
			}},
		},
	}
	src := &fakeScraper{name: "TestFeed", articles: []model.Article{
		{Source: "TestFeed", URL: "https://example.com/vague", Title: "Vague attack report",
			Content: securityContent("vague"), Language: "en", ScrapedAt: now, PublishedDate: now},
	}}
	p, _ := newTestPipeline(t, c, src)

	res := p.Search(context.Background(), model.QueryParams{ContentType: model.ContentBoth, DaysBack: 7, MaxResults: 10})
	if !res.Success {
		t.Fatalf("search failed: %s", res.Error)
	}
	if len(res.CVEs) != 0 {
		t.Errorf("unknown-only result stored as CVE: %+v", res.CVEs)
	}
	if len(res.News) != 1 {
		t.Fatalf("got %d news, want 1", len(res.News))
	}
}

func TestSearchNoSourcesStillWellFormed(t *testing.T) {
	p, _ := newTestPipeline(t, &stubClassifier{})
	res := p.Search(context.Background(), model.QueryParams{ContentType: model.ContentBoth})
	if !res.Success {
		t.Fatalf("empty system should still answer cleanly: %s", res.Error)
	}
	if res.CVEs == nil || res.News == nil {
		t.Error("result lists must be non-nil")
	}
	if res.TotalResults != 0 {
		t.Errorf("total = %d, want 0", res.TotalResults)
	}
}

func TestRefreshSkipsAlreadyClassified(t *testing.T) {
	now := time.Now()
	calls := 0
	c := &countingClassifier{inner: &stubClassifier{
		results: map[string][]ai.Result{
			"alpha": {{
				Type: "CVE", CVEIDs: []string{"CVE-2026-1111"},
				Severity: model.SeverityHigh, CVSSScore: 8.1, Intrigue: 7,
				Summary: "RCE in alpha",
			}},
		},
	}, calls: &calls}
	src := &fakeScraper{name: "TestFeed", articles: []model.Article{
		{Source: "TestFeed", URL: "https://example.com/alpha", Title: "Alpha flaw",
			Content: securityContent("alpha"), Language: "en", ScrapedAt: now, PublishedDate: now},
	}}
	p, _ := newTestPipeline(t, c, src)

	// Narrow query so the cache never satisfies it and every search
	// attempts a refresh.
	params := model.QueryParams{ContentType: model.ContentCVE, DaysBack: 7, MaxResults: 5}
	p.Search(context.Background(), params)
	p.Search(context.Background(), params)

	if calls != 1 {
		t.Errorf("classifier called %d times, want 1 (second run must reuse storage)", calls)
	}
}

type countingClassifier struct {
	inner classifier
	calls *int
}

func (c *countingClassifier) Classify(ctx context.Context, content string) ([]ai.Result, error) {
	*c.calls++
	return c.inner.Classify(ctx, content)
}
