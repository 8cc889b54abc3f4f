package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// migrateCmd opens the configured database, which creates or updates the
// schema, and prints the resulting statistics.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()

		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		stats, err := st.Statistics(context.Background())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(),
			"schema ready (%s): %d articles, %d CVEs, %d news items\n",
			cfg.Database.Driver, stats.TotalArticles, stats.TotalCVEs, stats.TotalNews)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
