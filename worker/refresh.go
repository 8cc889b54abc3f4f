package worker

import (
	"context"
	"log/slog"
	"time"

	"cyberintel/internal/intel"
	"cyberintel/internal/model"
	"cyberintel/internal/pipeline"
	"cyberintel/internal/store"
)

// RefreshWorker keeps the intelligence cache warm. On each tick it checks
// the global staleness gate and runs a full scrape-and-classify pass only
// when the newest scrape is older than the threshold, so overlapping
// query-triggered refreshes don't double the LLM spend.
type RefreshWorker struct {
	Pipeline       *pipeline.Pipeline
	Store          store.Store
	Interval       time.Duration
	StalenessHours int
	DaysBack       int
	MaxResults     int
}

func (w *RefreshWorker) Start(ctx context.Context) error {
	if w.Interval <= 0 {
		w.Interval = 6 * time.Hour
	}
	// run immediately then on interval
	w.runOnce(ctx)

	t := time.NewTicker(w.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			w.runOnce(ctx)
		}
	}
}

func (w *RefreshWorker) runOnce(ctx context.Context) {
	now := time.Now()
	last, err := w.Store.LastScrapeTimes(ctx)
	if err != nil {
		slog.Error("refresh: last scrape lookup failed", "err", err)
		return
	}
	if intel.CacheFresh(last, now, w.StalenessHours) {
		slog.Info("refresh: cache still fresh, skipping")
		return
	}

	sess := intel.NewSession(now)
	sess.TriggeredBy = "scheduled"
	params := model.QueryParams{
		ContentType: model.ContentBoth,
		DaysBack:    w.DaysBack,
		MaxResults:  w.MaxResults,
	}
	params.Normalize()

	slog.Info("refresh: starting scheduled run", "session", sess.ID)
	if err := w.Pipeline.Refresh(ctx, sess, params); err != nil {
		slog.Error("refresh: run failed", "session", sess.ID, "err", err)
		return
	}
	slog.Info("refresh: run complete", "session", sess.ID,
		"scraped", len(sess.ScrapedArticles),
		"cves", len(sess.CVEs), "news", len(sess.News),
		"already_classified", sess.AlreadyClassified)
}
