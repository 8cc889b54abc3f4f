package scrape

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"cyberintel/internal/dateutil"
	"cyberintel/internal/model"
)

const (
	feedTimeout    = 60 * time.Second
	articleTimeout = 15 * time.Second
	userAgent      = "Mozilla/5.0 (compatible; cyberintel/1.0)"
)

// bodySelectors are tried in order when a source has no explicit selector.
var bodySelectors = []string{
	"div.artical-body",
	"article",
	"div.article-content",
	"div.post-body",
	"main",
}

// RSSScraper pulls a source's feed and fetches each linked page for the
// full article body. Feed summaries alone are too thin to classify.
type RSSScraper struct {
	src    Source
	http   *http.Client
	parser *gofeed.Parser
}

func NewRSSScraper(src Source) *RSSScraper {
	return &RSSScraper{
		src:    src,
		http:   &http.Client{Timeout: articleTimeout},
		parser: gofeed.NewParser(),
	}
}

func (s *RSSScraper) Name() string { return s.src.Name }

// Scrape fetches up to limit articles. Individual page failures are logged
// and skipped so one dead link never sinks the batch.
func (s *RSSScraper) Scrape(ctx context.Context, limit int) []model.Article {
	ctx, cancel := context.WithTimeout(ctx, feedTimeout)
	defer cancel()

	feed, err := s.fetchFeed(ctx)
	if err != nil {
		slog.Error("scrape: feed fetch failed", "source", s.src.Name, "err", err)
		return nil
	}
	slog.Info("scrape: feed parsed", "source", s.src.Name, "entries", len(feed.Items))

	now := time.Now()
	articles := make([]model.Article, 0, limit)
	for _, entry := range feed.Items {
		if len(articles) >= limit {
			break
		}
		link := entryLink(entry)
		if link == "" {
			continue
		}
		title, body, err := s.fetchPage(ctx, link)
		if err != nil {
			slog.Warn("scrape: page fetch failed", "source", s.src.Name, "url", link, "err", err)
			continue
		}
		if title == "" {
			title = strings.TrimSpace(entry.Title)
		}
		if body == "" {
			// Fall back to whatever the feed itself carries.
			body = strings.TrimSpace(entry.Content)
			if body == "" {
				body = strings.TrimSpace(entry.Description)
			}
		}
		if body == "" {
			continue
		}
		articles = append(articles, model.Article{
			Source:        s.src.Name,
			URL:           link,
			Title:         title,
			Content:       body,
			Language:      s.src.Language,
			ScrapedAt:     now,
			PublishedDate: entryPublished(entry, now),
		})
	}
	return articles
}

func (s *RSSScraper) fetchFeed(ctx context.Context) (*gofeed.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.src.Feed, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("feed status %d", resp.StatusCode)
	}
	return s.parser.Parse(resp.Body)
}

func (s *RSSScraper) fetchPage(ctx context.Context, pageURL string) (title, body string, err error) {
	ctx, cancel := context.WithTimeout(ctx, articleTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", "", err
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := s.http.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", "", fmt.Errorf("page status %d", resp.StatusCode)
	}
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", "", fmt.Errorf("parse html: %w", err)
	}
	return ExtractArticle(doc, s.src.Selector)
}

// ExtractArticle pulls title and body text from a parsed page. The body is
// paragraph and code-block text joined with blank lines, matching how the
// classifier expects article text to arrive.
func ExtractArticle(doc *goquery.Document, selector string) (title, body string, err error) {
	if h := strings.TrimSpace(doc.Find("h1").First().Text()); h != "" {
		title = h
	} else if t := strings.TrimSpace(doc.Find("title").First().Text()); t != "" {
		title = t
	}

	selectors := bodySelectors
	if selector != "" {
		selectors = append([]string{selector}, bodySelectors...)
	}
	for _, sel := range selectors {
		container := doc.Find(sel).First()
		if container.Length() == 0 {
			continue
		}
		var parts []string
		container.Find("p, pre").Each(func(_ int, sel *goquery.Selection) {
			if text := strings.TrimSpace(sel.Text()); text != "" {
				parts = append(parts, text)
			}
		})
		if len(parts) == 0 {
			// Container exists but holds no paragraphs, take its flat text.
			if text := strings.TrimSpace(container.Text()); text != "" {
				parts = append(parts, text)
			}
		}
		if len(parts) > 0 {
			return title, strings.Join(parts, "\n\n"), nil
		}
	}
	return title, "", nil
}

func entryLink(entry *gofeed.Item) string {
	if link := strings.TrimSpace(entry.Link); link != "" {
		return link
	}
	if strings.HasPrefix(entry.GUID, "http") {
		return strings.TrimSpace(entry.GUID)
	}
	return ""
}

func entryPublished(entry *gofeed.Item, fallback time.Time) time.Time {
	if entry.PublishedParsed != nil {
		return *entry.PublishedParsed
	}
	if entry.UpdatedParsed != nil {
		return *entry.UpdatedParsed
	}
	if t, ok := dateutil.Parse(entry.Published); ok {
		return t
	}
	return fallback
}
