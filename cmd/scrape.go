package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/blackbox-ai/scrape-agent/internal/app"
	"github.com/blackbox-ai/scrape-agent/internal/scraper"
)

func newScrapeCmd() *cobra.Command {
	var (
		mode     string
		doCrawl  bool
		query    string
		maxDepth int
		maxPages int
	)

	cmd := &cobra.Command{
		Use:   "scrape [urls...]",
		Short: "Runs a one-shot scrape and prints the result as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			parsedMode, err := scraper.ParseMode(mode)
			if err != nil {
				return err
			}

			application, err := app.Build(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer application.Close()

			service := application.Service()
			opts := scraper.CrawlOptions{MaxDepth: maxDepth, MaxPages: maxPages}

			var result scraper.ScrapeResult
			if doCrawl {
				result = service.CrawlPages(cmd.Context(), args, parsedMode, opts)
			} else {
				result = service.ScrapePages(cmd.Context(), args, parsedMode)
			}

			out := map[string]any{"pages": result.Pages}
			if len(result.Errors) > 0 {
				out["errors"] = result.Errors
			}
			if query != "" {
				answer := service.Answer(cmd.Context(), query, result.Pages)
				out["answer"] = answer
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(out); err != nil {
				return fmt.Errorf("encode result: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "beautify", "scrape mode: raw, beautify, or ai")
	cmd.Flags().BoolVar(&doCrawl, "crawl", false, "follow same-host links from each URL")
	cmd.Flags().StringVar(&query, "query", "", "question to answer over the scraped content")
	cmd.Flags().IntVar(&maxDepth, "max-depth", 0, "crawl depth limit (0 = configured default)")
	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "crawl page limit (0 = configured default)")

	return cmd
}
