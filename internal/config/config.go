// Package config reads reelbot's settings from the environment once at
// startup. Constructors receive the resulting Config rather than reading
// the environment themselves.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/fpang/reelbot/internal/reelerr"
)

// Catalog backends.
const (
	CatalogDrive = "drive"
	CatalogS3    = "s3"
)

// Ledger backends.
const (
	LedgerFile   = "file"
	LedgerDynamo = "dynamodb"
)

const (
	defaultServiceAccountFile = "/etc/secrets/service_account.json"
	defaultScheduleTimes      = "06:00,10:00,15:00,18:00,20:00,22:00"
	defaultPort               = 10000

	ledgerFileName  = "posted.json"
	auditFileName   = "upload_log.csv"
	tagFileName     = "hashtags.txt"
	sessionFileName = "instagram.session.json"
	lockFileName    = "reelbot.lock"
)

// Config holds every setting reelbot reads from the environment.
type Config struct {
	Catalog            string
	DriveFolderID      string
	ServiceAccountFile string
	CatalogBucket      string
	CatalogPrefix      string

	StagingBucket string

	InstagramAccessToken string
	InstagramUserID      string
	InstagramAppID       string
	InstagramAppSecret   string
	InstagramRedirectURI string
	InstagramAuthCode    string
	SessionFile          string

	TelegramBotToken string
	TelegramChatID   string
	NtfyTopic        string

	ScheduleTimes    []string
	ScheduleTimezone string

	StateDir    string
	Ledger      string
	LedgerTable string
	HashtagFile string
	DownloadDir string

	Port               int
	WebhookVerifyToken string

	LogLevel         string
	MetricsNamespace string
	SSMPrefix        string
}

// FromEnv builds a Config from the process environment, applying defaults.
// Only malformed values fail here; missing required keys are reported by
// Validate.
func FromEnv() (*Config, error) {
	stateDir := envOr("REELBOT_STATE_DIR", ".")
	cfg := &Config{
		Catalog:            strings.ToLower(envOr("REELBOT_CATALOG", CatalogDrive)),
		DriveFolderID:      env("DRIVE_FOLDER_ID"),
		ServiceAccountFile: envOr("GOOGLE_SERVICE_ACCOUNT_FILE", defaultServiceAccountFile),
		CatalogBucket:      env("CATALOG_BUCKET"),
		CatalogPrefix:      env("CATALOG_PREFIX"),

		StagingBucket: env("STAGING_BUCKET"),

		InstagramAccessToken: env("INSTAGRAM_ACCESS_TOKEN"),
		InstagramUserID:      env("INSTAGRAM_USER_ID"),
		InstagramAppID:       env("INSTAGRAM_APP_ID"),
		InstagramAppSecret:   env("INSTAGRAM_APP_SECRET"),
		InstagramRedirectURI: env("INSTAGRAM_REDIRECT_URI"),
		InstagramAuthCode:    env("INSTAGRAM_AUTH_CODE"),
		SessionFile:          envOr("INSTAGRAM_SESSION_FILE", filepath.Join(stateDir, sessionFileName)),

		TelegramBotToken: env("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:   env("TELEGRAM_CHAT_ID"),
		NtfyTopic:        env("NTFY_TOPIC"),

		ScheduleTimes:    splitList(envOr("SCHEDULE_TIMES", defaultScheduleTimes)),
		ScheduleTimezone: envOr("SCHEDULE_TIMEZONE", "UTC"),

		StateDir:    stateDir,
		Ledger:      strings.ToLower(envOr("REELBOT_LEDGER", LedgerFile)),
		LedgerTable: env("LEDGER_TABLE"),
		HashtagFile: envOr("HASHTAG_FILE", filepath.Join(stateDir, tagFileName)),
		DownloadDir: envOr("DOWNLOAD_DIR", filepath.Join(stateDir, "downloads")),

		Port:               defaultPort,
		WebhookVerifyToken: env("WEBHOOK_VERIFY_TOKEN"),

		LogLevel:         envOr("REELBOT_LOG_LEVEL", "info"),
		MetricsNamespace: env("REELBOT_METRICS_NAMESPACE"),
		SSMPrefix:        strings.TrimRight(env("REELBOT_SSM_PREFIX"), "/"),
	}

	if v := env("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return nil, reelerr.Wrap(reelerr.ErrConfig, "read PORT", fmt.Errorf("%q is not a valid port", v))
		}
		cfg.Port = port
	}
	return cfg, nil
}

// Validate reports every missing or inconsistent setting in one error
// wrapping reelerr.ErrConfig.
func (c *Config) Validate() error {
	var missing, invalid []string

	switch c.Catalog {
	case CatalogDrive:
		if c.DriveFolderID == "" {
			missing = append(missing, "DRIVE_FOLDER_ID")
		}
	case CatalogS3:
		if c.CatalogBucket == "" {
			missing = append(missing, "CATALOG_BUCKET")
		}
	default:
		invalid = append(invalid, fmt.Sprintf("REELBOT_CATALOG=%q (want drive or s3)", c.Catalog))
	}

	switch c.Ledger {
	case LedgerFile:
	case LedgerDynamo:
		if c.LedgerTable == "" {
			missing = append(missing, "LEDGER_TABLE")
		}
	default:
		invalid = append(invalid, fmt.Sprintf("REELBOT_LEDGER=%q (want file or dynamodb)", c.Ledger))
	}

	if c.StagingBucket == "" {
		missing = append(missing, "STAGING_BUCKET")
	}
	if c.InstagramAccessToken != "" && c.InstagramUserID == "" {
		missing = append(missing, "INSTAGRAM_USER_ID")
	}
	if c.InstagramAuthCode != "" {
		for key, v := range map[string]string{
			"INSTAGRAM_APP_ID":       c.InstagramAppID,
			"INSTAGRAM_APP_SECRET":   c.InstagramAppSecret,
			"INSTAGRAM_REDIRECT_URI": c.InstagramRedirectURI,
		} {
			if v == "" {
				missing = append(missing, key)
			}
		}
	}
	if c.WebhookVerifyToken != "" && c.InstagramAppSecret == "" {
		missing = append(missing, "INSTAGRAM_APP_SECRET")
	}
	if len(c.ScheduleTimes) == 0 {
		missing = append(missing, "SCHEDULE_TIMES")
	}

	if len(missing) == 0 && len(invalid) == 0 {
		return nil
	}
	slices.Sort(missing)
	missing = slices.Compact(missing)
	var parts []string
	if len(missing) > 0 {
		parts = append(parts, "missing "+strings.Join(missing, ", "))
	}
	parts = append(parts, invalid...)
	return reelerr.Wrap(reelerr.ErrConfig, "validate config", fmt.Errorf("%s", strings.Join(parts, "; ")))
}

// ValidateLogin checks only what an interactive login needs.
func (c *Config) ValidateLogin() error {
	if c.InstagramAccessToken == "" && c.InstagramAuthCode == "" {
		return reelerr.Wrap(reelerr.ErrConfig, "validate login config",
			fmt.Errorf("missing INSTAGRAM_ACCESS_TOKEN or INSTAGRAM_AUTH_CODE"))
	}
	return nil
}

func (c *Config) LedgerPath() string { return filepath.Join(c.StateDir, ledgerFileName) }

func (c *Config) AuditPath() string { return filepath.Join(c.StateDir, auditFileName) }

func (c *Config) LockPath() string { return filepath.Join(c.StateDir, lockFileName) }

// WebhookEnabled reports whether the /webhook route should be mounted.
func (c *Config) WebhookEnabled() bool {
	return c.WebhookVerifyToken != "" && c.InstagramAppSecret != ""
}

// Addr is the liveness server listen address.
func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func envOr(key, def string) string {
	if v := env(key); v != "" {
		return v
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
