package main

import (
	"github.com/spf13/cobra"

	"github.com/fpang/reelbot/internal/boot"
	"github.com/fpang/reelbot/internal/logging"
)

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "reelbot",
		Short: "Scheduled Instagram reel uploader",
		Long: `reelbot picks an unposted video from a Google Drive folder or S3 prefix at
each scheduled time, publishes it to Instagram as a reel with a generated
caption, and records it so it is never posted twice.

Configuration is read from the environment (see DRIVE_FOLDER_ID,
STAGING_BUCKET, INSTAGRAM_ACCESS_TOKEN, SCHEDULE_TIMES, SCHEDULE_TIMEZONE).

Examples:
  reelbot run              # scheduler and liveness server until interrupted
  reelbot cycle            # post one reel now
  reelbot status           # posted history and upcoming triggers
  reelbot login            # obtain and persist an Instagram session`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.Init()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newCycleCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newLoginCommand())
	rootCmd.AddCommand(newVersionCommand())
	return rootCmd
}

func buildInfo() boot.Build {
	return boot.Build{Name: "reelbot", Version: version, Commit: commit}
}
