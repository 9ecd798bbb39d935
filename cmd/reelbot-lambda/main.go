// Package main provides a Lambda entry point that runs one upload cycle per
// EventBridge scheduled event.
//
// The schedule lives in EventBridge (one rule per trigger time), so this
// function does no time keeping of its own. Local state lives under /tmp,
// which only survives warm invocations, so the ledger defaults to DynamoDB
// (LEDGER_TABLE) and a file ledger is refused. The Instagram token is kept
// in SSM under REELBOT_SSM_PREFIX.
package main

import (
	"context"
	"fmt"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog/log"

	"github.com/fpang/reelbot/internal/boot"
	"github.com/fpang/reelbot/internal/config"
	"github.com/fpang/reelbot/internal/cycle"
	"github.com/fpang/reelbot/internal/logging"
	"github.com/fpang/reelbot/internal/reelerr"
)

// Set with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = ""
)

const (
	lambdaStateDir         = "/tmp/reelbot"
	defaultMetricNamespace = "Reelbot"
)

var coldStart = true

var coordinator runner

type runner interface {
	Run(ctx context.Context) (cycle.Result, error)
}

func main() {
	coordinator = bootstrap()
	lambda.Start(handler)
}

// bootstrap wires the coordinator once per cold start.
func bootstrap() runner {
	initStart := time.Now()
	logging.Init()

	applyLambdaDefaults()

	ctx := context.Background()
	cfg, awsCfg, err := boot.LoadConfig(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if err := requireDurableLedger(cfg); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	app, err := boot.New(ctx, cfg, awsCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	app.LogStartup(boot.Build{Name: "reelbot-lambda", Version: version, Commit: commit}, initStart)
	return app.Coordinator
}

// applyLambdaDefaults fills environment defaults for the Lambda runtime.
// Explicit settings win.
func applyLambdaDefaults() {
	for key, def := range map[string]string{
		// The Lambda filesystem is read-only outside /tmp.
		"REELBOT_STATE_DIR":         lambdaStateDir,
		"REELBOT_LEDGER":            config.LedgerDynamo,
		"REELBOT_METRICS_NAMESPACE": defaultMetricNamespace,
	} {
		if os.Getenv(key) == "" {
			os.Setenv(key, def)
		}
	}
}

// requireDurableLedger rejects a file ledger: /tmp is empty in every new
// execution environment, so posted items would be selected again.
func requireDurableLedger(cfg *config.Config) error {
	if cfg.Ledger == config.LedgerFile {
		return reelerr.Wrap(reelerr.ErrConfig, "check ledger",
			fmt.Errorf("REELBOT_LEDGER=file does not persist between Lambda invocations; use dynamodb with LEDGER_TABLE"))
	}
	return nil
}

// handler runs one cycle. An aborted cycle has already notified the operator
// and is reported in the logs and metrics; it returns nil so the async
// invocation is not retried into a second post on the next attempt.
func handler(ctx context.Context, event events.CloudWatchEvent) error {
	if coldStart {
		coldStart = false
		log.Info().Str("function", "reelbot-lambda").Msg("Cold start, first invocation")
	}
	log.Info().
		Str("eventId", event.ID).
		Str("source", event.Source).
		Time("eventTime", event.Time).
		Strs("resources", event.Resources).
		Msg("Scheduled event received")

	res, err := coordinator.Run(ctx)
	if err != nil {
		log.Error().Err(err).Str("cycleId", res.CycleID).Str("outcome", string(res.Outcome)).Msg("Scheduled cycle did not post")
		return nil
	}
	log.Info().Str("cycleId", res.CycleID).Str("outcome", string(res.Outcome)).Int("remaining", res.Remaining()).Msg("Scheduled cycle finished")
	return nil
}
