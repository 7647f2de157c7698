package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newSweepCmd creates the 'sweep' subcommand, which deactivates stored
// notices older than the retention window.
func newSweepCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Deactivates notices older than the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			defer appInstance.Close()
			retention := appInstance.GetConfig().RetentionWindow()
			if cmd.Flags().Changed("days") {
				if days <= 0 {
					return fmt.Errorf("--days must be > 0")
				}
				retention = time.Duration(days) * 24 * time.Hour
			}
			n, err := appInstance.GetPipeline().Sweep(cmd.Context(), retention)
			if err != nil {
				return fmt.Errorf("sweep: %w", err)
			}
			appInstance.GetLogger().Info("sweep command finished", zap.Int("deactivated", n), zap.Duration("retention", retention))
			fmt.Fprintf(cmd.OutOrStdout(), "deactivated %d notices\n", n)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "retention in days (defaults to retention.days)")
	return cmd
}
