package main

import (
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fpang/reelbot/internal/boot"
	"github.com/fpang/reelbot/internal/cycle"
	"github.com/fpang/reelbot/internal/schedule"
)

func newCycleCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cycle",
		Short: "Post one reel now",
		Long: `Run a single upload cycle immediately: pick an unposted video, publish it,
record it, and notify. Holds the same instance lock as "reelbot run", so it
refuses to start while the scheduler is running against the same state
directory.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			cfg, awsCfg, err := boot.LoadConfig(ctx)
			if err != nil {
				return err
			}
			app, err := boot.New(ctx, cfg, awsCfg)
			if err != nil {
				return err
			}
			unlock, err := schedule.AcquireLock(cfg.LockPath())
			if err != nil {
				return err
			}
			defer unlock()

			res, err := app.Coordinator.Run(ctx)
			printResult(cmd.OutOrStdout(), res)
			return err
		},
	}
}

func printResult(w io.Writer, res cycle.Result) {
	switch res.Outcome {
	case cycle.OutcomePosted:
		fmt.Fprintf(w, "Posted %s (media %s)\n", res.Item.Name, res.MediaID)
		fmt.Fprintf(w, "Uploaded %d/%d, %d remaining\n", res.Posted, res.Total, res.Remaining())
	case cycle.OutcomeNoOp:
		fmt.Fprintf(w, "Nothing to post: all %d reels uploaded\n", res.Total)
	default:
		fmt.Fprintf(w, "Cycle aborted after %s\n", res.FailedAt)
	}
	fmt.Fprintf(w, "Cycle %s finished in %s\n", res.CycleID, res.Duration.Round(time.Millisecond))
}
