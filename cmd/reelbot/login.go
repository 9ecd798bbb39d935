package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/fpang/reelbot/internal/boot"
)

func newLoginCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Obtain, verify, and persist an Instagram session",
		Long: `Log in the way an upload cycle would: reuse the saved session (refreshing it
when it is within seven days of expiry), else use INSTAGRAM_ACCESS_TOKEN and
INSTAGRAM_USER_ID, else exchange INSTAGRAM_AUTH_CODE. The session is verified
against the Graph API and saved to INSTAGRAM_SESSION_FILE.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, awsCfg, err := boot.LoadConfig(ctx)
			if err != nil {
				return err
			}
			if _, err := os.Stat(cfg.SessionFile); errors.Is(err, fs.ErrNotExist) {
				if err := cfg.ValidateLogin(); err != nil {
					return err
				}
			}

			pub := boot.NewPublisher(cfg, awsCfg)
			sess, err := pub.Login(ctx)
			if err != nil {
				return err
			}
			profile, err := pub.Verify(ctx, sess)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Logged in as @%s (user %s)\n", profile.Username, sess.UserID)
			if sess.ExpiresAt.IsZero() {
				fmt.Fprintln(out, "Token expiry unknown (configured token)")
			} else {
				fmt.Fprintf(out, "Token expires %s (%s)\n", sess.ExpiresAt.Format(time.RFC3339), humanize.Time(sess.ExpiresAt))
			}
			fmt.Fprintf(out, "Session saved to %s\n", cfg.SessionFile)
			return nil
		},
	}
}
