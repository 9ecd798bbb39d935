// Package boot wires reelbot's components from a config.Config.
//
// Both entry points (the long-running CLI and the Lambda handler) need the
// same AWS config, catalog, ledger, publisher, and notifier. This package
// keeps that composition in one place so each main is a few lines.
package boot

import (
	"context"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"

	"github.com/fpang/reelbot/internal/audit"
	"github.com/fpang/reelbot/internal/catalog"
	"github.com/fpang/reelbot/internal/config"
	"github.com/fpang/reelbot/internal/cycle"
	"github.com/fpang/reelbot/internal/instagram"
	"github.com/fpang/reelbot/internal/ledger"
	"github.com/fpang/reelbot/internal/logging"
	"github.com/fpang/reelbot/internal/notify"
	"github.com/fpang/reelbot/internal/reelerr"
	"github.com/fpang/reelbot/internal/schedule"
	"github.com/fpang/reelbot/internal/server"
)

// Build identity, set by main from -ldflags.
type Build struct {
	Name    string
	Version string
	Commit  string
}

// App is a fully wired reelbot.
type App struct {
	Config      *config.Config
	AWS         aws.Config
	Catalog     catalog.Catalog
	Ledger      ledger.Ledger
	Audit       *audit.Log
	Notifier    *notify.Service
	Publisher   *instagram.Publisher
	Schedule    *schedule.Schedule
	Coordinator *cycle.Coordinator
}

// LoadConfig reads the environment, loads the default AWS config, and fills
// secrets from SSM when REELBOT_SSM_PREFIX is set. It does not validate.
func LoadConfig(ctx context.Context) (*config.Config, aws.Config, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, aws.Config{}, err
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, aws.Config{}, reelerr.Wrap(reelerr.ErrConfig, "load AWS config", err)
	}
	log.Debug().Str("region", awsCfg.Region).Msg("AWS config loaded")

	if err := cfg.ResolveSecrets(ctx, ssm.NewFromConfig(awsCfg)); err != nil {
		return nil, aws.Config{}, err
	}
	return cfg, awsCfg, nil
}

// New validates cfg and builds every component. Errors wrap reelerr.ErrConfig.
func New(ctx context.Context, cfg *config.Config, awsCfg aws.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cat, err := NewCatalog(ctx, cfg, awsCfg)
	if err != nil {
		return nil, err
	}
	sched, err := NewSchedule(cfg)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.DownloadDir, 0o755); err != nil {
		return nil, reelerr.Wrap(reelerr.ErrConfig, "create download directory", err)
	}

	app := &App{
		Config:    cfg,
		AWS:       awsCfg,
		Catalog:   cat,
		Ledger:    NewLedger(cfg, awsCfg),
		Audit:     audit.New(cfg.AuditPath()),
		Notifier:  NewNotifier(cfg),
		Publisher: NewPublisher(cfg, awsCfg),
		Schedule:  sched,
	}
	app.Coordinator = cycle.New(cycle.Config{
		Catalog:          app.Catalog,
		Ledger:           app.Ledger,
		Publisher:        app.Publisher,
		Notifier:         app.Notifier,
		Audit:            app.Audit,
		TagFile:          cfg.HashtagFile,
		DownloadDir:      cfg.DownloadDir,
		Location:         sched.Location(),
		MetricsNamespace: cfg.MetricsNamespace,
	})
	return app, nil
}

// NewCatalog returns the Drive or S3 catalog named by cfg.Catalog.
func NewCatalog(ctx context.Context, cfg *config.Config, awsCfg aws.Config) (catalog.Catalog, error) {
	if cfg.Catalog == config.CatalogS3 {
		return catalog.NewS3Catalog(s3.NewFromConfig(awsCfg), cfg.CatalogBucket, cfg.CatalogPrefix), nil
	}
	return catalog.NewDriveCatalog(ctx, cfg.ServiceAccountFile, cfg.DriveFolderID)
}

// NewLedger returns the file or DynamoDB ledger named by cfg.Ledger.
func NewLedger(cfg *config.Config, awsCfg aws.Config) ledger.Ledger {
	if cfg.Ledger == config.LedgerDynamo {
		return ledger.NewDynamoLedger(dynamodb.NewFromConfig(awsCfg), cfg.LedgerTable, cfg.InstagramUserID)
	}
	return ledger.NewFileLedger(cfg.LedgerPath())
}

// NewNotifier returns a Service over every configured transport.
func NewNotifier(cfg *config.Config) *notify.Service {
	var transports []notify.Transport
	if t := notify.NewTelegram(cfg.TelegramBotToken, cfg.TelegramChatID); t != nil {
		transports = append(transports, t)
	}
	if n := notify.NewNtfy(cfg.NtfyTopic); n != nil {
		transports = append(transports, n)
	}
	return notify.NewService(transports...)
}

// NewPublisher returns an Instagram publisher that stages videos in
// cfg.StagingBucket and persists its session to cfg.SessionFile.
func NewPublisher(cfg *config.Config, awsCfg aws.Config) *instagram.Publisher {
	client := s3.NewFromConfig(awsCfg)
	return instagram.NewPublisher(instagram.PublisherConfig{
		Store: instagram.NewSessionStore(cfg.SessionFile),
		// Token refresh needs no app credentials, so the authenticator is
		// always present; code exchange checks CanExchange.
		Auth: instagram.NewAuthenticator(cfg.InstagramAppID, cfg.InstagramAppSecret, cfg.InstagramRedirectURI),
		Credentials: instagram.Credentials{
			AccessToken: cfg.InstagramAccessToken,
			UserID:      cfg.InstagramUserID,
			AuthCode:    cfg.InstagramAuthCode,
		},
		Stager: instagram.NewS3Stager(client, s3.NewPresignClient(client), cfg.StagingBucket),
	})
}

// NewSchedule parses the configured trigger times and zone.
func NewSchedule(cfg *config.Config) (*schedule.Schedule, error) {
	return schedule.Parse(cfg.ScheduleTimes, cfg.ScheduleTimezone)
}

// NewWebhook returns the /webhook handler, or nil when it is not configured.
func NewWebhook(cfg *config.Config) http.Handler {
	if !cfg.WebhookEnabled() {
		return nil
	}
	return server.NewWebhook(cfg.WebhookVerifyToken, cfg.InstagramAppSecret)
}

// LogStartup emits the one-line startup summary for app.
func (a *App) LogStartup(build Build, started time.Time) {
	cfg := a.Config
	s := logging.NewStartupLogger(build.Name).
		Version(build.Version, build.Commit).
		S3Bucket("staging", cfg.StagingBucket).
		Feature("telegram", cfg.TelegramBotToken != "" && cfg.TelegramChatID != "").
		Feature("ntfy", cfg.NtfyTopic != "").
		Feature("webhook", cfg.WebhookEnabled()).
		Feature("metrics", cfg.MetricsNamespace != "").
		Config("catalog", cfg.Catalog).
		Config("ledger", cfg.Ledger).
		Config("schedule", a.Schedule.String()).
		Config("notifiers", strings.Join(a.Notifier.Names(), ",")).
		File("session", cfg.SessionFile).
		File("hashtags", cfg.HashtagFile).
		File("audit", cfg.AuditPath()).
		File("downloads", cfg.DownloadDir).
		InitDuration(time.Since(started))

	switch cfg.Catalog {
	case config.CatalogS3:
		s.S3Bucket("catalog", cfg.CatalogBucket).Config("catalogPrefix", cfg.CatalogPrefix)
	default:
		s.DriveFolder("catalog", cfg.DriveFolderID)
	}
	if cfg.Ledger == config.LedgerDynamo {
		s.DynamoTable("ledger", cfg.LedgerTable)
	} else {
		s.File("ledger", cfg.LedgerPath())
	}
	for label, path := range cfg.SecretPaths() {
		s.SSMParam(label, path)
	}
	s.Log()
}
