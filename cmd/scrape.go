package cmd

import (
	"context"
	"fmt"
	"time"

	"cyberintel/internal/intel"
	"cyberintel/internal/model"

	"github.com/spf13/cobra"
)

var (
	scrapeDaysBack   int
	scrapeMaxResults int
)

// scrapeCmd runs one scrape-and-classify pass without serving a query,
// for cron-style refreshes and first-time cache warming.
var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Scrape all sources and classify new articles once",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()

		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		pipe, err := buildPipeline(cfg, st, nil)
		if err != nil {
			return err
		}

		sess := intel.NewSession(time.Now())
		sess.TriggeredBy = "manual"
		params := model.QueryParams{
			ContentType: model.ContentBoth,
			DaysBack:    scrapeDaysBack,
			MaxResults:  scrapeMaxResults,
		}
		params.Normalize()

		if err := pipe.Refresh(context.Background(), sess, params); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(),
			"session %s: %d articles scraped, %d CVEs, %d news items, %d already classified\n",
			sess.ID, len(sess.ScrapedArticles), len(sess.CVEs), len(sess.News), sess.AlreadyClassified)
		return nil
	},
}

func init() {
	scrapeCmd.Flags().IntVar(&scrapeDaysBack, "days", 7, "recency window in days")
	scrapeCmd.Flags().IntVar(&scrapeMaxResults, "max", 15, "result budget used for the run")
	rootCmd.AddCommand(scrapeCmd)
}
