package instagram

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/reelbot/internal/catalog"
	"github.com/fpang/reelbot/internal/reelerr"
)

// DefaultRefreshWindow is how close to expiry a session gets refreshed.
const DefaultRefreshWindow = 7 * 24 * time.Hour

// Credentials are the fallback login inputs used when no stored session is
// usable: a pre-issued token and user, or an OAuth authorization code.
type Credentials struct {
	AccessToken string
	UserID      string
	AuthCode    string
}

// PublisherConfig wires a Publisher.
type PublisherConfig struct {
	Store       *SessionStore
	Auth        *Authenticator
	Credentials Credentials
	Stager      Stager

	// PollTimeout bounds container processing; zero uses the client default.
	PollTimeout time.Duration
	// RefreshWindow defaults to DefaultRefreshWindow.
	RefreshWindow time.Duration
}

// Publisher logs in to Instagram and publishes local videos as reels.
type Publisher struct {
	store         *SessionStore
	auth          *Authenticator
	creds         Credentials
	stager        Stager
	pollTimeout   time.Duration
	refreshWindow time.Duration
	now           func() time.Time

	// overridden in tests
	baseURL      string
	pollInterval time.Duration
}

func NewPublisher(cfg PublisherConfig) *Publisher {
	window := cfg.RefreshWindow
	if window == 0 {
		window = DefaultRefreshWindow
	}
	return &Publisher{
		store:         cfg.Store,
		auth:          cfg.Auth,
		creds:         cfg.Credentials,
		stager:        cfg.Stager,
		pollTimeout:   cfg.PollTimeout,
		refreshWindow: window,
		now:           time.Now,
	}
}

// Login returns a usable session. It prefers the stored session (refreshing
// it when close to expiry), then the configured token, then an authorization
// code exchange. A stored session that did not come from the configured
// token is replaced by it, so rotating INSTAGRAM_ACCESS_TOKEN takes effect.
// A newly obtained session is persisted. When nothing yields a valid session
// the error wraps reelerr.ErrAuth.
func (p *Publisher) Login(ctx context.Context) (*Session, error) {
	now := p.now()

	stored, err := p.loadStored()
	if err != nil {
		log.Warn().Err(err).Msg("Ignoring unreadable session file")
	}
	if stored != nil && p.creds.AccessToken != "" && p.creds.UserID != "" && !stored.seededBy(p.creds.AccessToken) {
		log.Info().Str("userId", p.creds.UserID).Msg("Configured Instagram token changed, replacing stored session")
		stored = nil
	}
	if stored.Valid(now) {
		if stored.NeedsRefresh(now, p.refreshWindow) && p.auth != nil {
			return p.refresh(ctx, stored), nil
		}
		log.Debug().Str("userId", stored.UserID).Time("expiresAt", stored.ExpiresAt).Msg("Using stored Instagram session")
		return stored, nil
	}
	if stored != nil {
		log.Warn().Str("userId", stored.UserID).Time("expiresAt", stored.ExpiresAt).Msg("Stored Instagram session expired")
	}

	if p.creds.AccessToken != "" && p.creds.UserID != "" {
		sess := &Session{AccessToken: p.creds.AccessToken, UserID: p.creds.UserID, ObtainedAt: now, Seed: TokenSeed(p.creds.AccessToken)}
		if stored != nil && stored.AccessToken == sess.AccessToken {
			return nil, reelerr.Wrap(reelerr.ErrAuth, "login", fmt.Errorf("configured access token already expired at %s", stored.ExpiresAt.Format(time.RFC3339)))
		}
		p.persist(sess)
		log.Info().Str("userId", sess.UserID).Msg("Instagram session created from configured token")
		return sess, nil
	}

	if p.creds.AuthCode != "" && p.auth.CanExchange() {
		sess, err := p.exchange(ctx, p.creds.AuthCode)
		if err != nil {
			return nil, reelerr.Wrap(reelerr.ErrAuth, "exchange authorization code", err)
		}
		p.persist(sess)
		return sess, nil
	}

	return nil, reelerr.Wrap(reelerr.ErrAuth, "login",
		fmt.Errorf("no valid session: set INSTAGRAM_ACCESS_TOKEN and INSTAGRAM_USER_ID, or INSTAGRAM_AUTH_CODE with app credentials"))
}

// Verify checks the session against the API and records the username.
func (p *Publisher) Verify(ctx context.Context, sess *Session) (*Profile, error) {
	profile, err := p.clientFor(sess).Me(ctx)
	if err != nil {
		return nil, classify("verify session", err)
	}
	if profile.Username != "" && profile.Username != sess.Username {
		sess.Username = profile.Username
		p.persist(sess)
	}
	return profile, nil
}

// Publish stages the video, creates a reel container with caption, waits
// for processing, and publishes it. It returns the published media ID. The
// staged copy is deleted on every path. Token failures wrap reelerr.ErrAuth;
// everything else wraps reelerr.ErrPublish.
func (p *Publisher) Publish(ctx context.Context, sess *Session, localPath, caption string) (string, error) {
	if !sess.Valid(p.now()) {
		return "", reelerr.Wrap(reelerr.ErrAuth, "publish", fmt.Errorf("session missing or expired"))
	}
	if p.stager == nil {
		return "", reelerr.Wrap(reelerr.ErrConfig, "publish", fmt.Errorf("no staging bucket configured"))
	}

	videoURL, cleanup, err := p.stager.Stage(ctx, localPath, catalog.MIMEType(localPath))
	if err != nil {
		return "", reelerr.Wrap(reelerr.ErrPublish, "stage video", err)
	}
	defer cleanup(context.WithoutCancel(ctx))

	client := p.clientFor(sess)
	containerID, err := client.CreateReelContainer(ctx, videoURL, caption)
	if err != nil {
		return "", classify("create container", err)
	}
	if err := client.WaitForContainer(ctx, containerID, p.pollTimeout); err != nil {
		return "", classify("wait for container", err)
	}
	mediaID, err := client.Publish(ctx, containerID)
	if err != nil {
		return "", classify("publish container", err)
	}
	return mediaID, nil
}

func (p *Publisher) loadStored() (*Session, error) {
	if p.store == nil {
		return nil, nil
	}
	return p.store.Load()
}

func (p *Publisher) persist(sess *Session) {
	if p.store == nil {
		return
	}
	if err := p.store.Save(sess); err != nil {
		log.Warn().Err(err).Str("path", p.store.Path()).Msg("Failed to persist Instagram session")
	}
}

// refresh extends sess. A failed refresh keeps the current session, which
// stays usable until it actually expires.
func (p *Publisher) refresh(ctx context.Context, sess *Session) *Session {
	res, err := p.auth.RefreshLongLivedToken(ctx, sess.AccessToken)
	if err != nil {
		log.Warn().Err(err).Time("expiresAt", sess.ExpiresAt).Msg("Instagram token refresh failed, keeping current session")
		return sess
	}
	now := p.now()
	refreshed := &Session{
		AccessToken: res.AccessToken,
		UserID:      sess.UserID,
		Username:    sess.Username,
		ExpiresAt:   res.ExpiresAt(now),
		ObtainedAt:  now,
		Seed:        sess.Seed,
	}
	p.persist(refreshed)
	log.Info().Str("userId", refreshed.UserID).Time("expiresAt", refreshed.ExpiresAt).Msg("Instagram session refreshed")
	return refreshed
}

func (p *Publisher) exchange(ctx context.Context, code string) (*Session, error) {
	short, err := p.auth.ExchangeCode(ctx, code)
	if err != nil {
		return nil, err
	}
	long, err := p.auth.ExchangeLongLivedToken(ctx, short.AccessToken)
	if err != nil {
		return nil, err
	}
	now := p.now()
	return &Session{
		AccessToken: long.AccessToken,
		UserID:      short.UserID,
		ExpiresAt:   long.ExpiresAt(now),
		ObtainedAt:  now,
	}, nil
}

func (p *Publisher) clientFor(sess *Session) *Client {
	c := NewClient(sess.AccessToken, sess.UserID)
	if p.baseURL != "" {
		c.baseURL = p.baseURL
	}
	if p.pollInterval > 0 {
		c.pollInterval = p.pollInterval
		c.maxPollInterval = p.pollInterval
	}
	return c
}

func classify(op string, err error) error {
	if IsAuthError(err) {
		return reelerr.Wrap(reelerr.ErrAuth, op, err)
	}
	return reelerr.Wrap(reelerr.ErrPublish, op, err)
}
