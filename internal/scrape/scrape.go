package scrape

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"cyberintel/internal/model"
)

// Scraper collects articles from one external source. Implementations
// never fail the whole run: unreachable pages are logged and skipped, and
// a partial (possibly empty) slice is a normal outcome.
type Scraper interface {
	Name() string
	Scrape(ctx context.Context, limit int) []model.Article
}

// Source describes one feed in the sources file.
type Source struct {
	Name     string `yaml:"name"`
	Feed     string `yaml:"feed"`
	Language string `yaml:"language"`
	// Selector narrows article-body extraction for sites whose markup
	// goquery's generic fallbacks don't handle.
	Selector string `yaml:"selector"`
}

type sourcesFile struct {
	Sources []Source `yaml:"sources"`
}

// LoadSources reads the yaml source list. Entries without a name or feed
// URL are rejected so a typo fails fast at startup instead of silently
// scraping nothing.
func LoadSources(path string) ([]Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load sources: %w", err)
	}
	var f sourcesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("load sources: parse %s: %w", path, err)
	}
	for i, s := range f.Sources {
		if strings.TrimSpace(s.Name) == "" || strings.TrimSpace(s.Feed) == "" {
			return nil, fmt.Errorf("load sources: entry %d missing name or feed", i)
		}
		if f.Sources[i].Language == "" {
			f.Sources[i].Language = "en"
		}
	}
	if len(f.Sources) == 0 {
		return nil, fmt.Errorf("load sources: %s has no sources", path)
	}
	return f.Sources, nil
}
