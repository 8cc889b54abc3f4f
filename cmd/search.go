package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"cyberintel/internal/model"
	"cyberintel/internal/report"

	"github.com/spf13/cobra"
)

var (
	searchContentType string
	searchSeverity    []string
	searchDaysBack    int
	searchMaxResults  int
	searchJSON        bool
)

// searchCmd runs one intelligence query from the command line, refreshing
// from the sources if the cache cannot satisfy it.
var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Query intelligence, scraping and classifying if the cache is insufficient",
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

		res := pipe.Search(context.Background(), model.QueryParams{
			ContentType: searchContentType,
			Severity:    searchSeverity,
			DaysBack:    searchDaysBack,
			MaxResults:  searchMaxResults,
		})
		if !res.Success {
			return fmt.Errorf("search failed: %s", res.Error)
		}

		if searchJSON {
			out, err := json.MarshalIndent(res, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		}
		md, err := report.Render(res)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), md)
		return nil
	},
}

func init() {
	searchCmd.Flags().StringVar(&searchContentType, "type", "both", "content type: cve, news or both")
	searchCmd.Flags().StringSliceVar(&searchSeverity, "severity", nil, "severity allow-list (e.g. High,Critical)")
	searchCmd.Flags().IntVar(&searchDaysBack, "days", 7, "recency window in days")
	searchCmd.Flags().IntVar(&searchMaxResults, "max", 10, "maximum results")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "print raw JSON instead of the markdown report")
	rootCmd.AddCommand(searchCmd)
}
