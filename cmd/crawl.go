package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/legisnotice/internal/legislation"
	"github.com/JakeFAU/legisnotice/internal/scraper"
)

const crawlModeAll = "all"

// newCrawlCmd creates the one-shot 'crawl' subcommand. It replaces the
// stored notices of the chosen source with today's collection.
func newCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "crawl [national|admin|all]",
		Short:     "Collects today's legislative notices once",
		Long:      `Deletes the stored notices of the chosen source, collects today's window again and stores the result. Without an argument both sources are refreshed.`,
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{string(legislation.SourceNational), string(legislation.SourceAdmin), crawlModeAll},
		RunE:      runCrawlCommand,
	}
	return cmd
}

func runCrawlCommand(cmd *cobra.Command, args []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	defer appInstance.Close()
	ctx := cmd.Context()
	logger := appInstance.GetLogger()

	mode := crawlModeAll
	if len(args) == 1 {
		mode = args[0]
	}

	event := legislation.RefreshEvent{
		Mode:       mode,
		TargetDate: scraper.NewWindow(appInstance.GetClock().Now()).Target,
	}
	if mode == crawlModeAll {
		result, err := appInstance.GetPipeline().RefreshAll(ctx)
		if err != nil {
			return fmt.Errorf("refresh all: %w", err)
		}
		event.RunID = result.RunID
		event.National = result.National
		event.Admin = result.Admin
	} else {
		source, err := legislation.ParseSource(mode)
		if err != nil {
			return err
		}
		runID, err := appInstance.GetIDs().NewID()
		if err != nil {
			return fmt.Errorf("generate run id: %w", err)
		}
		n, err := appInstance.GetPipeline().RefreshSource(ctx, source)
		if err != nil {
			return fmt.Errorf("refresh %s: %w", source, err)
		}
		event.RunID = runID
		if source == legislation.SourceNational {
			event.National = n
		} else {
			event.Admin = n
		}
	}
	event.FinishedAt = appInstance.GetClock().Now()

	if err := appInstance.GetNotifier().Notify(ctx, event); err != nil {
		logger.Warn("refresh notification failed", zap.String("run_id", event.RunID), zap.Error(err))
	}
	logger.Info("crawl command finished",
		zap.String("run_id", event.RunID),
		zap.String("mode", mode),
		zap.String("target_date", event.TargetDate),
		zap.Int("national_count", event.National),
		zap.Int("admin_count", event.Admin),
	)
	fmt.Fprintf(cmd.OutOrStdout(), "run %s: national=%d admin=%d\n", event.RunID, event.National, event.Admin)
	return nil
}
