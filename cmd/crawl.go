package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newCrawlCmd creates the 'crawl' subcommand.
func newCrawlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl",
		Short: "Crawls the configured catalog page range",
		Long: `Walks catalog pages start_page..end_page-1, saves each book's text under
books/ and its cover under images/, then writes books_info.json. Records
collected before an interrupt are still written.`,
		Args: cobra.NoArgs,
		RunE: runCrawlCommand,
	}
}

func runCrawlCommand(cmd *cobra.Command, _ []string) error {
	s, err := resolveSession(cmd.Context())
	if err != nil {
		return err
	}

	result, err := s.app.Run(cmd.Context())
	if err != nil {
		if errors.Is(err, context.Canceled) {
			s.logger.Warn("crawl interrupted", zap.Int("books", len(result.Records)))
		}
		return err
	}

	s.logger.Info("crawl command finished", zap.Int("books", len(result.Records)))
	return nil
}
