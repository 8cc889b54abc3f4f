package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"cyberintel/internal/ai"
)

// ErrEmptyBatch marks a classification run that had nothing to do. Callers
// treat it as a normal short-circuit, not a failure.
var ErrEmptyBatch = errors.New("classification batch is empty")

// Item is one unit of classification work. Index maps the result back to
// the originating article regardless of completion order.
type Item struct {
	Index   int
	Content string
	URL     string
}

// ItemResult mirrors one Item. Success is false only when the call could
// not be attempted or errored; a fallback record still counts as success.
type ItemResult struct {
	Index   int
	Success bool
	Results []ai.Result
	Err     string
}

// classifier is the slice of ai.Classifier the batch needs.
type classifier interface {
	Classify(ctx context.Context, content string) ([]ai.Result, error)
}

// Batch fans classification calls out over a bounded worker pool, throttled
// against the provider, and returns results in submission order.
type Batch struct {
	classifier classifier
	workers    int
	limiter    *rate.Limiter
}

// NewBatch builds a pool of the given width. requestsPerSec caps the LLM
// call rate across all workers; zero or negative disables throttling.
func NewBatch(c classifier, workers int, requestsPerSec float64) *Batch {
	if workers <= 0 {
		workers = 8
	}
	var limiter *rate.Limiter
	if requestsPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(requestsPerSec), workers)
	}
	return &Batch{classifier: c, workers: workers, limiter: limiter}
}

// ClassifyMany runs every item through the classifier. One item's failure
// never aborts the batch; it is captured in its slot and the rest proceed.
// Output is sorted by the items' original indices.
func (b *Batch) ClassifyMany(ctx context.Context, items []Item) ([]ItemResult, error) {
	if len(items) == 0 {
		return nil, ErrEmptyBatch
	}

	jobs := make(chan Item, len(items))
	results := make(chan ItemResult, len(items))

	var wg sync.WaitGroup
	for i := 0; i < b.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range jobs {
				results <- b.classifyOne(ctx, item)
			}
		}()
	}
	for _, item := range items {
		jobs <- item
	}
	close(jobs)
	wg.Wait()
	close(results)

	// Slot each result by index so output order matches submission order.
	ordered := make([]ItemResult, len(items))
	byIndex := make(map[int]int, len(items))
	for i, item := range items {
		byIndex[item.Index] = i
	}
	success, failed := 0, 0
	for r := range results {
		ordered[byIndex[r.Index]] = r
		if r.Success {
			success++
		} else {
			failed++
		}
	}
	slog.Info("classification batch complete",
		"total", len(items), "success", success, "failed", failed)
	return ordered, nil
}

func (b *Batch) classifyOne(ctx context.Context, item Item) ItemResult {
	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			return ItemResult{Index: item.Index, Err: err.Error()}
		}
	}
	results, err := b.classifier.Classify(ctx, item.Content)
	if err != nil {
		slog.Warn("classification failed", "url", item.URL, "err", err)
		return ItemResult{Index: item.Index, Err: err.Error()}
	}
	return ItemResult{Index: item.Index, Success: true, Results: results}
}

// securityKeywords is the cheap relevance pre-filter applied before any
// remote call. An article mentioning none of these is almost never worth
// an LLM round trip.
var securityKeywords = []string{
	"cve", "vulnerability", "exploit", "security", "attack",
	"breach", "malware", "ransomware", "patch", "zero-day",
	"漏洞", "攻击", "安全", "уязвимост", "эксплойт", "атак",
}

// WorthClassifying filters out articles too short or off-topic to spend an
// LLM call on. The check runs against title plus content, lowercased.
func WorthClassifying(title, content string, minLen int) bool {
	if utf8.RuneCountInString(content) < minLen {
		return false
	}
	text := strings.ToLower(title + " " + content)
	for _, kw := range securityKeywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
