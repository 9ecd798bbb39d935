package config

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/rs/zerolog/log"

	"github.com/fpang/reelbot/internal/reelerr"
)

// ParameterGetter is the subset of the SSM client used to resolve secrets.
type ParameterGetter interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// secretParams maps SSM parameter names, relative to SSMPrefix, to the
// fields they fill.
func (c *Config) secretParams() map[string]*string {
	return map[string]*string{
		"instagram-access-token": &c.InstagramAccessToken,
		"instagram-user-id":      &c.InstagramUserID,
		"instagram-app-secret":   &c.InstagramAppSecret,
		"telegram-bot-token":     &c.TelegramBotToken,
		"webhook-verify-token":   &c.WebhookVerifyToken,
	}
}

// SecretPaths lists the parameter paths ResolveSecrets may read, for
// startup logging. Values are never logged.
func (c *Config) SecretPaths() map[string]string {
	if c.SSMPrefix == "" {
		return nil
	}
	out := make(map[string]string)
	for name := range c.secretParams() {
		out[name] = c.SSMPrefix + "/" + name
	}
	return out
}

// ResolveSecrets fills secrets that are not set in the environment from SSM
// Parameter Store under SSMPrefix. It is a no-op when SSMPrefix is empty.
// Parameters that do not exist are skipped; any other SSM failure wraps
// reelerr.ErrConfig.
func (c *Config) ResolveSecrets(ctx context.Context, client ParameterGetter) error {
	if c.SSMPrefix == "" {
		return nil
	}
	for name, field := range c.secretParams() {
		if *field != "" {
			continue
		}
		path := c.SSMPrefix + "/" + name
		start := time.Now()
		out, err := client.GetParameter(ctx, &ssm.GetParameterInput{
			Name:           aws.String(path),
			WithDecryption: aws.Bool(true),
		})
		if err != nil {
			var notFound *types.ParameterNotFound
			if errors.As(err, &notFound) {
				log.Debug().Str("param", path).Msg("SSM parameter not found, skipping")
				continue
			}
			return reelerr.Wrap(reelerr.ErrConfig, "read SSM parameter "+path, err)
		}
		if out.Parameter != nil && out.Parameter.Value != nil {
			*field = *out.Parameter.Value
			log.Debug().Str("param", path).Dur("elapsed", time.Since(start)).Msg("Secret loaded from SSM")
		}
	}
	return nil
}
