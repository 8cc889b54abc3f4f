package worker

import (
	"context"
	"log/slog"
	"time"

	"cyberintel/internal/store"
)

// CleanupWorker enforces the retention window by deleting articles, CVEs
// and news older than RetentionDays.
type CleanupWorker struct {
	Store         store.Store
	Interval      time.Duration
	RetentionDays int
}

func (w *CleanupWorker) Start(ctx context.Context) error {
	if w.Interval <= 0 {
		w.Interval = 24 * time.Hour
	}
	if w.RetentionDays <= 0 {
		w.RetentionDays = 90
	}
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

func (w *CleanupWorker) runOnce(ctx context.Context) {
	cutoff := time.Now().AddDate(0, 0, -w.RetentionDays)
	deleted, err := w.Store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		slog.Error("cleanup: delete failed", "err", err)
		return
	}
	if deleted > 0 {
		slog.Info("cleanup: old records removed", "rows", deleted, "cutoff", cutoff.Format("2006-01-02"))
	}
}
