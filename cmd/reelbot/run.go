package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/fpang/reelbot/internal/boot"
	"github.com/fpang/reelbot/internal/schedule"
	"github.com/fpang/reelbot/internal/server"
)

func newRunCommand() *cobra.Command {
	var noServer bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the scheduler and liveness server until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			started := time.Now()
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
			app.LogStartup(buildInfo(), started)

			loop := &schedule.Loop{
				Schedule: app.Schedule,
				LockPath: cfg.LockPath(),
				Job: func(ctx context.Context) error {
					_, err := app.Coordinator.Run(ctx)
					return err
				},
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return loop.Run(gctx) })
			if !noServer {
				srv := server.New(cfg.Addr(), boot.NewWebhook(cfg))
				g.Go(func() error { return srv.Run(gctx) })
			}
			err = g.Wait()
			log.Info().Msg("reelbot stopped")
			return err
		},
	}
	cmd.Flags().BoolVar(&noServer, "no-server", false, "Do not start the liveness HTTP server")
	return cmd
}
