package cmd

import (
	"fmt"
	"log/slog"

	"cyberintel/internal/ai"
	"cyberintel/internal/config"
	"cyberintel/internal/pipeline"
	"cyberintel/internal/progress"
	"cyberintel/internal/scrape"
	"cyberintel/internal/store"
)

// openStore resolves the configured backend once; nothing downstream
// re-inspects the driver.
func openStore(cfg config.Config) (store.Store, error) {
	switch cfg.Database.Driver {
	case "postgres":
		return store.OpenPostgres(store.PostgresConfig{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
		})
	case "sqlite", "":
		return store.OpenSqlite(cfg.Database.Path)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

// buildPipeline assembles the full query pipeline from configuration. The
// broadcaster may be nil when no progress streaming is wanted.
func buildPipeline(cfg config.Config, s store.Store, b *progress.Broadcaster) (*pipeline.Pipeline, error) {
	if cfg.OpenAI.APIKey == "" {
		return nil, fmt.Errorf("openai.api_key is required")
	}
	aiCfg := ai.Config{
		APIKey:         cfg.OpenAI.APIKey,
		Model:          cfg.OpenAI.Model,
		TranslateModel: cfg.OpenAI.TranslateModel,
		BaseURL:        cfg.OpenAI.BaseURL,
		MaxTokens:      cfg.OpenAI.MaxTokens,
	}
	classifier := ai.NewClassifier(ai.NewOpenAI(aiCfg))
	translator := ai.NewOpenAITranslator(aiCfg)

	sources, err := scrape.LoadSources(cfg.Scrape.SourcesFile)
	if err != nil {
		return nil, err
	}
	scrapers := make([]scrape.Scraper, 0, len(sources))
	for _, src := range sources {
		scrapers = append(scrapers, scrape.NewRSSScraper(src))
	}
	slog.Info("sources loaded", "count", len(scrapers), "file", cfg.Scrape.SourcesFile)

	return pipeline.New(pipeline.Options{
		Store:            s,
		Batch:            pipeline.NewBatch(classifier, cfg.Pipeline.ClassifyWorkers, float64(cfg.Pipeline.LLMRequestsPerSec)),
		Translator:       translator,
		Scrapers:         scrapers,
		Progress:         b,
		TranslateWorkers: cfg.Pipeline.TranslateWorkers,
		MinContentLen:    cfg.Pipeline.MinContentLen,
		MaxContentLen:    cfg.Scrape.MaxContentLen,
		PerSourceLimit:   cfg.Scrape.PerSourceLimit,
	}), nil
}
