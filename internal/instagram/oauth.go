// Token exchange for Instagram Business Login.
//
// Instagram uses a two-step token exchange:
//  1. Authorization code → short-lived token (1 hour) via POST to api.instagram.com
//  2. Short-lived token → long-lived token (60 days) via GET to graph.instagram.com
//
// Long-lived tokens that are at least 24 hours old can be refreshed for
// another 60 days with grant_type=ig_refresh_token.

package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	defaultOAuthBaseURL = "https://api.instagram.com"
	defaultGraphBaseURL = "https://graph.instagram.com"
)

// ExchangeCodeResult holds the short-lived token and the user it belongs to.
type ExchangeCodeResult struct {
	AccessToken string
	UserID      string
}

// LongLivedTokenResult holds a 60-day token.
type LongLivedTokenResult struct {
	AccessToken string
	ExpiresIn   int64 // seconds, typically 5184000
}

// ExpiresAt converts ExpiresIn to an absolute time relative to now.
func (r *LongLivedTokenResult) ExpiresAt(now time.Time) time.Time {
	return now.Add(time.Duration(r.ExpiresIn) * time.Second)
}

type shortTokenResponse struct {
	AccessToken string `json:"access_token"`
	UserID      int64  `json:"user_id"`
}

type shortTokenErrorResponse struct {
	ErrorType    string `json:"error_type"`
	Code         int    `json:"code"`
	ErrorMessage string `json:"error_message"`
}

type longTokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int64     `json:"expires_in"`
	Error       *APIError `json:"error,omitempty"`
}

// Authenticator performs the OAuth token calls for one Instagram app.
type Authenticator struct {
	httpClient   *http.Client
	appID        string
	appSecret    string
	redirectURI  string
	oauthBaseURL string
	graphBaseURL string
}

func NewAuthenticator(appID, appSecret, redirectURI string) *Authenticator {
	return &Authenticator{
		httpClient:   &http.Client{Timeout: defaultTimeout},
		appID:        appID,
		appSecret:    appSecret,
		redirectURI:  redirectURI,
		oauthBaseURL: defaultOAuthBaseURL,
		graphBaseURL: defaultGraphBaseURL,
	}
}

// CanExchange reports whether the app credentials needed for a code
// exchange are configured.
func (a *Authenticator) CanExchange() bool {
	return a != nil && a.appID != "" && a.appSecret != "" && a.redirectURI != ""
}

// ExchangeCode exchanges an authorization code from Meta's OAuth redirect
// (?code=AUTH_CODE) for a short-lived access token.
//
// Endpoint: POST https://api.instagram.com/oauth/access_token
func (a *Authenticator) ExchangeCode(ctx context.Context, code string) (*ExchangeCodeResult, error) {
	params := url.Values{
		"client_id":     {a.appID},
		"client_secret": {a.appSecret},
		"grant_type":    {"authorization_code"},
		"redirect_uri":  {a.redirectURI},
		"code":          {strings.TrimSuffix(code, "#_")},
	}

	log.Debug().Str("redirectUri", a.redirectURI).Msg("Exchanging authorization code for short-lived token")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.oauthBaseURL+"/oauth/access_token",
		strings.NewReader(params.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	status, body, err := a.do(req)
	if err != nil {
		return nil, fmt.Errorf("token exchange request: %w", err)
	}

	if status != http.StatusOK {
		var errResp shortTokenErrorResponse
		if json.Unmarshal(body, &errResp) == nil && errResp.ErrorMessage != "" {
			return nil, fmt.Errorf("token exchange failed: %s (type: %s, code: %d)",
				errResp.ErrorMessage, errResp.ErrorType, errResp.Code)
		}
		return nil, fmt.Errorf("token exchange failed (status %d): %s", status, truncate(string(body), 300))
	}

	var result shortTokenResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if result.AccessToken == "" {
		return nil, fmt.Errorf("no access token in response: %s", truncate(string(body), 300))
	}

	userID := strconv.FormatInt(result.UserID, 10)
	log.Info().Str("userId", userID).Msg("Short-lived token obtained")
	return &ExchangeCodeResult{AccessToken: result.AccessToken, UserID: userID}, nil
}

// ExchangeLongLivedToken swaps a short-lived token for a 60-day token.
//
// Endpoint: GET https://graph.instagram.com/access_token?grant_type=ig_exchange_token
func (a *Authenticator) ExchangeLongLivedToken(ctx context.Context, shortToken string) (*LongLivedTokenResult, error) {
	q := url.Values{
		"grant_type":    {"ig_exchange_token"},
		"client_secret": {a.appSecret},
		"access_token":  {shortToken},
	}
	log.Debug().Msg("Exchanging short-lived token for long-lived token")
	return a.getToken(ctx, "/access_token?"+q.Encode(), "long-lived token exchange")
}

// RefreshLongLivedToken extends a long-lived token by another 60 days.
//
// Endpoint: GET https://graph.instagram.com/refresh_access_token?grant_type=ig_refresh_token
func (a *Authenticator) RefreshLongLivedToken(ctx context.Context, token string) (*LongLivedTokenResult, error) {
	q := url.Values{
		"grant_type":   {"ig_refresh_token"},
		"access_token": {token},
	}
	log.Debug().Msg("Refreshing long-lived token")
	return a.getToken(ctx, "/refresh_access_token?"+q.Encode(), "token refresh")
}

func (a *Authenticator) getToken(ctx context.Context, endpoint, op string) (*LongLivedTokenResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.graphBaseURL+endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	status, body, err := a.do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", op, err)
	}

	var result longTokenResponse
	parseErr := json.Unmarshal(body, &result)
	if result.Error != nil {
		return nil, fmt.Errorf("%s failed: %w", op, result.Error)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%s failed (status %d): %s", op, status, truncate(string(body), 300))
	}
	if parseErr != nil {
		return nil, fmt.Errorf("parse response: %w", parseErr)
	}
	if result.AccessToken == "" {
		return nil, fmt.Errorf("no access token in response: %s", truncate(string(body), 300))
	}

	log.Info().Int64("expiresInDays", result.ExpiresIn/86400).Msg("Long-lived token obtained")
	return &LongLivedTokenResult{AccessToken: result.AccessToken, ExpiresIn: result.ExpiresIn}, nil
}

func (a *Authenticator) do(req *http.Request) (int, []byte, error) {
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, body, nil
}
