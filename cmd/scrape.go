package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/pulseflow/internal/scraper"
)

func newScrapeCmd(opts *rootOptions) *cobra.Command {
	var (
		strategy string
		selector string
	)
	cmd := &cobra.Command{
		Use:   "scrape <url>",
		Short: "Scrape a URL once and print the extracted items",
		Long: `Runs the provider chosen for the URL (or --strategy) through the same
blocklist, robots.txt, rate limit and retry checks as a pipeline run, and
prints the result as JSON. Nothing is stored.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			s, err := scraper.ParseStrategy(strategy)
			if err != nil {
				return err
			}
			res, err := app.Preview(cmd.Context(), args[0], s, selector, opts.dryRun)
			if err != nil {
				return fmt.Errorf("scrape %s: %w", args[0], err)
			}
			return printJSON(cmd, res)
		},
	}
	cmd.Flags().StringVar(&strategy, "strategy", string(scraper.StrategyAuto), "RSS, REDDIT, HACKERNEWS, HTML or AUTO")
	cmd.Flags().StringVar(&selector, "selector", "", "CSS selector for HTML items")
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
