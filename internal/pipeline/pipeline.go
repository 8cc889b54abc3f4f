// Package pipeline orchestrates one intelligence query end to end:
// sufficiency analysis, scraping, translation, parallel classification,
// idempotent persistence and ranked assembly of the response.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cyberintel/internal/ai"
	"cyberintel/internal/intel"
	"cyberintel/internal/model"
	"cyberintel/internal/progress"
	"cyberintel/internal/scrape"
	"cyberintel/internal/store"
)

// Options wires the pipeline's collaborators. Everything is injected; the
// pipeline owns no process-global state.
type Options struct {
	Store            store.Store
	Batch            *Batch
	Translator       ai.Translator
	Scrapers         []scrape.Scraper
	Progress         *progress.Broadcaster
	TranslateWorkers int
	MinContentLen    int
	MaxContentLen    int
	PerSourceLimit   int
}

type Pipeline struct {
	store            store.Store
	analyzer         *intel.Analyzer
	batch            *Batch
	translator       ai.Translator
	scrapers         []scrape.Scraper
	progress         *progress.Broadcaster
	translateWorkers int
	minContentLen    int
	maxContentLen    int
	perSourceLimit   int
}

func New(opts Options) *Pipeline {
	p := &Pipeline{
		store:            opts.Store,
		analyzer:         intel.NewAnalyzer(opts.Store),
		batch:            opts.Batch,
		translator:       opts.Translator,
		scrapers:         opts.Scrapers,
		progress:         opts.Progress,
		translateWorkers: opts.TranslateWorkers,
		minContentLen:    opts.MinContentLen,
		maxContentLen:    opts.MaxContentLen,
		perSourceLimit:   opts.PerSourceLimit,
	}
	if p.translator == nil {
		p.translator = ai.NoopTranslator{}
	}
	if p.minContentLen <= 0 {
		p.minContentLen = 200
	}
	if p.maxContentLen <= 0 {
		p.maxContentLen = scrape.DefaultMaxContentLen
	}
	if p.perSourceLimit <= 0 {
		p.perSourceLimit = 10
	}
	return p
}

// Search executes one query. The response is always well formed: per-unit
// failures degrade to smaller result sets, and only whole-query failures
// (storage unreachable, refresh impossible) surface as success=false.
func (p *Pipeline) Search(ctx context.Context, params model.QueryParams) *model.SearchResult {
	params.Normalize()
	now := time.Now()
	sess := intel.NewSession(now)

	analysis, err := p.analyzer.Analyze(ctx, params, now)
	if err != nil {
		return failure(sess.ID, now, err)
	}
	slog.Info("sufficiency analysis", "session", sess.ID,
		"recommendation", analysis.Recommendation, "reasoning", analysis.Reasoning)

	fromCache := analysis.Sufficient()
	if !fromCache {
		if err := p.Refresh(ctx, sess, params); err != nil {
			return failure(sess.ID, now, err)
		}
	}

	result, err := p.assemble(ctx, sess, params, now)
	if err != nil {
		return failure(sess.ID, now, err)
	}
	result.FromCache = fromCache
	return result
}

// Refresh scrapes all sources, translates and classifies new material and
// persists it, accumulating into the session. It is also the unit the
// scheduled background worker runs.
func (p *Pipeline) Refresh(ctx context.Context, sess *intel.Session, params model.QueryParams) error {
	p.publish("scraping sources", 10)
	fresh := p.scrapeAll(ctx, sess)

	// Previously scraped but never classified articles ride along with
	// this run.
	backlog, err := p.store.UnprocessedArticles(ctx)
	if err != nil {
		return fmt.Errorf("load backlog: %w", err)
	}
	candidates := p.mergeCandidates(fresh, backlog)
	slog.Info("refresh candidates", "session", sess.ID,
		"scraped", len(fresh), "backlog", len(backlog), "candidates", len(candidates))

	p.publish("translating articles", 40)
	for i := range candidates {
		candidates[i].Content = scrape.Truncate(candidates[i].Content, candidates[i].Language, p.maxContentLen)
	}
	TranslateAll(ctx, p.translator, candidates, p.translateWorkers)

	p.publish("classifying articles", 60)
	if err := p.classifyAndPersist(ctx, sess, candidates); err != nil {
		return err
	}

	p.publish("refresh complete", 100)
	if err := p.store.RecordSession(ctx, store.SessionRecord{
		SessionID:     sess.ID,
		StartedAt:     sess.StartedAt,
		Sources:       sess.Sources(),
		ArticlesFound: len(sess.ScrapedArticles),
		TriggeredBy:   sess.TriggeredBy,
	}); err != nil {
		// Audit only, never fails the query.
		slog.Warn("record session failed", "session", sess.ID, "err", err)
	}
	return nil
}

// scrapeAll runs every source adapter, deduplicates by trimmed URL against
// this run and against storage, and persists the new raw articles. A
// failing source contributes nothing and the rest proceed.
func (p *Pipeline) scrapeAll(ctx context.Context, sess *intel.Session) []model.Article {
	seen := make(map[string]bool)
	var fresh []model.Article
	for _, s := range p.scrapers {
		articles := s.Scrape(ctx, p.perSourceLimit)
		slog.Info("source scraped", "source", s.Name(), "articles", len(articles))
		for _, a := range articles {
			a.URL = strings.TrimSpace(a.URL)
			if a.URL == "" || seen[a.URL] {
				continue
			}
			seen[a.URL] = true

			scraped, err := p.store.IsArticleScraped(ctx, a.URL)
			if err != nil {
				slog.Warn("dedup check failed", "url", a.URL, "err", err)
				continue
			}
			if scraped {
				continue
			}
			if err := p.store.InsertArticle(ctx, &a); err != nil {
				slog.Warn("insert article failed", "url", a.URL, "err", err)
				continue
			}
			sess.ScrapedArticles = append(sess.ScrapedArticles, a)
			fresh = append(fresh, a)
		}
	}
	return fresh
}

func (p *Pipeline) mergeCandidates(fresh, backlog []model.Article) []model.Article {
	seen := make(map[string]bool, len(fresh))
	out := make([]model.Article, 0, len(fresh)+len(backlog))
	for _, a := range fresh {
		seen[a.URL] = true
		out = append(out, a)
	}
	for _, a := range backlog {
		a.URL = strings.TrimSpace(a.URL)
		if a.URL == "" || seen[a.URL] {
			continue
		}
		seen[a.URL] = true
		out = append(out, a)
	}
	return out
}

// classifyAndPersist is the fan-out heart of a refresh. Already-classified
// articles are served from storage instead of re-spending LLM calls; the
// rest go through the bounded pool.
func (p *Pipeline) classifyAndPersist(ctx context.Context, sess *intel.Session, candidates []model.Article) error {
	var items []Item
	byIndex := make(map[int]*model.Article)
	for i := range candidates {
		a := &candidates[i]
		done, err := p.store.IsClassified(ctx, a.URL)
		if err != nil {
			return fmt.Errorf("classified check: %w", err)
		}
		if done {
			p.mergeClassified(ctx, sess, a)
			continue
		}
		if !WorthClassifying(a.Title, a.BestContent(), p.minContentLen) {
			slog.Debug("filtered before classification", "url", a.URL)
			if err := p.store.MarkProcessed(ctx, a.URL); err != nil {
				slog.Warn("mark processed failed", "url", a.URL, "err", err)
			}
			continue
		}
		items = append(items, Item{Index: i, Content: a.BestContent(), URL: a.URL})
		byIndex[i] = a
	}

	results, err := p.batch.ClassifyMany(ctx, items)
	if errors.Is(err, ErrEmptyBatch) {
		slog.Info("nothing new to classify", "session", sess.ID)
		return nil
	}
	if err != nil {
		return err
	}

	for _, r := range results {
		a := byIndex[r.Index]
		if !r.Success {
			// Transient failure: leave unprocessed so the next refresh
			// retries it.
			slog.Warn("classification skipped", "url", a.URL, "err", r.Err)
			continue
		}
		p.persistResults(ctx, sess, a, r.Results)
		if err := p.store.MarkProcessed(ctx, a.URL); err != nil {
			slog.Warn("mark processed failed", "url", a.URL, "err", err)
		}
	}
	return nil
}

// persistResults writes one article's classification output. A result
// typed CVE without a concrete identifier is downgraded to news.
func (p *Pipeline) persistResults(ctx context.Context, sess *intel.Session, a *model.Article, results []ai.Result) {
	for _, r := range results {
		if r.IsCVE() {
			for _, id := range r.ConcreteCVEIDs() {
				v := model.Vulnerability{
					CVEID:            id,
					Title:            a.Title,
					TitleTranslated:  a.TitleTranslated,
					Summary:          r.Summary,
					Severity:         r.Severity,
					CVSSScore:        r.CVSSScore,
					Intrigue:         r.Intrigue,
					PublishedDate:    a.PublishedDate,
					OriginalLanguage: a.Language,
					Source:           a.Source,
					URL:              a.URL,
					AffectedProducts: r.AffectedProducts,
					SessionID:        sess.ID,
				}
				if err := p.store.InsertCVE(ctx, &v); err != nil {
					slog.Warn("insert cve failed", "url", a.URL, "cve", id, "err", err)
					continue
				}
				sess.AddCVE(v)
			}
			continue
		}
		n := model.NewsItem{
			Title:            a.Title,
			TitleTranslated:  a.TitleTranslated,
			Summary:          r.Summary,
			Intrigue:         r.Intrigue,
			PublishedDate:    a.PublishedDate,
			OriginalLanguage: a.Language,
			Source:           a.Source,
			URL:              a.URL,
			SessionID:        sess.ID,
		}
		if err := p.store.InsertNews(ctx, &n); err != nil {
			slog.Warn("insert news failed", "url", a.URL, "err", err)
			continue
		}
		sess.AddNews(n)
	}
}

// mergeClassified pulls an already-classified article's records from
// storage into the session instead of re-classifying.
func (p *Pipeline) mergeClassified(ctx context.Context, sess *intel.Session, a *model.Article) {
	sess.AlreadyClassified++
	cves, err := p.store.ClassifiedCVEs(ctx, a.URL)
	if err != nil {
		slog.Warn("load classified cves failed", "url", a.URL, "err", err)
	}
	for _, v := range cves {
		sess.CVEs = append(sess.CVEs, v)
	}
	news, err := p.store.ClassifiedNews(ctx, a.URL)
	if err != nil {
		slog.Warn("load classified news failed", "url", a.URL, "err", err)
	}
	if news != nil {
		sess.News = append(sess.News, *news)
	}
	if !a.Processed {
		if err := p.store.MarkProcessed(ctx, a.URL); err != nil {
			slog.Warn("mark processed failed", "url", a.URL, "err", err)
		}
	}
}

// assemble builds the final ranked response: the session's records plus
// whatever storage already holds in the query window, deduplicated,
// filtered before ranking and capped per category.
func (p *Pipeline) assemble(ctx context.Context, sess *intel.Session, params model.QueryParams, now time.Time) (*model.SearchResult, error) {
	cutoff := params.Cutoff(now)

	cves := intel.FilterCVEs(sess.CVEs, params.Severity, cutoff)
	news := intel.FilterNews(sess.News, cutoff)

	stored, err := p.store.CVEsByFilters(ctx, store.CVEFilter{
		Severities: params.Severity,
		After:      cutoff,
		Limit:      params.MaxResults,
	})
	if err != nil {
		return nil, fmt.Errorf("query cves: %w", err)
	}
	storedNews, err := p.store.NewsByFilters(ctx, store.NewsFilter{
		After: cutoff,
		Limit: params.MaxResults,
	})
	if err != nil {
		return nil, fmt.Errorf("query news: %w", err)
	}

	seenCVE := make(map[string]bool, len(cves))
	for _, v := range cves {
		seenCVE[v.URL+"\x00"+v.CVEID] = true
	}
	for _, v := range stored {
		if key := v.URL + "\x00" + v.CVEID; !seenCVE[key] {
			seenCVE[key] = true
			cves = append(cves, v)
		}
	}
	seenNews := make(map[string]bool, len(news))
	for _, n := range news {
		seenNews[n.URL] = true
	}
	for _, n := range storedNews {
		if !seenNews[n.URL] {
			seenNews[n.URL] = true
			news = append(news, n)
		}
	}

	cves, news = intel.RankAndCap(cves, news, params.ContentType, params.MaxResults)
	return &model.SearchResult{
		Success:      true,
		CVEs:         cves,
		News:         news,
		TotalResults: len(cves) + len(news),
		SessionID:    sess.ID,
		GeneratedAt:  now,
	}, nil
}

func (p *Pipeline) publish(status string, percent int) {
	if p.progress != nil {
		p.progress.Publish(status, percent)
	}
}

func failure(sessionID string, now time.Time, err error) *model.SearchResult {
	slog.Error("search failed", "session", sessionID, "err", err)
	return &model.SearchResult{
		Success:     false,
		Error:       err.Error(),
		CVEs:        []model.Vulnerability{},
		News:        []model.NewsItem{},
		SessionID:   sessionID,
		GeneratedAt: now,
	}
}
