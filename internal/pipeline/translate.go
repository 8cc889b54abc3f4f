package pipeline

import (
	"context"
	"sync"

	"cyberintel/internal/ai"
	"cyberintel/internal/model"
)

// TranslateAll fills in title_translated and content_translated for every
// non-English article. Title and content are independent units fanned out
// separately and rejoined by pointer, so no order preservation is needed.
// Translation never fails an article: the translator returns the original
// text on any error.
func TranslateAll(ctx context.Context, tr ai.Translator, articles []model.Article, workers int) {
	if workers <= 0 {
		workers = 20
	}
	type unit struct {
		dest *string
		text string
		lang string
	}

	var units []unit
	for i := range articles {
		a := &articles[i]
		if a.Language == "" || a.Language == "en" {
			continue
		}
		if a.TitleTranslated == "" && a.Title != "" {
			units = append(units, unit{&a.TitleTranslated, a.Title, a.Language})
		}
		if a.ContentTranslated == "" && a.Content != "" {
			units = append(units, unit{&a.ContentTranslated, a.Content, a.Language})
		}
	}
	if len(units) == 0 {
		return
	}

	jobs := make(chan unit, len(units))
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for u := range jobs {
				// Each unit owns its destination field, so concurrent
				// writes never overlap.
				*u.dest = tr.Translate(ctx, u.text, u.lang)
			}
		}()
	}
	for _, u := range units {
		jobs <- u
	}
	close(jobs)
	wg.Wait()
}
