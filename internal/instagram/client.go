// Package instagram publishes reels through the Instagram Graph API.
//
// Publishing a reel is a multi-step process:
//  1. Expose the local video at a public URL (presigned S3 GET, see Stager)
//  2. Create a REELS media container with the caption
//  3. Poll the container status until server-side processing finishes
//  4. Publish the container
//
// Login resolves a long-lived access token from a persisted Session, the
// environment, or an OAuth authorization code, in that order.
package instagram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// defaultBaseURL is the Instagram Graph API base URL.
	defaultBaseURL = "https://graph.instagram.com/v22.0"

	defaultTimeout = 30 * time.Second

	// Video container processing poll settings.
	initialPollInterval = 5 * time.Second
	maxPollInterval     = 30 * time.Second
	defaultPollTimeout  = 5 * time.Minute

	// Graph API codes for invalid, expired, or revoked sessions.
	codeInvalidToken   = 190
	codeSessionExpired = 102
)

// Container processing states.
const (
	StatusInProgress = "IN_PROGRESS"
	StatusFinished   = "FINISHED"
	StatusError      = "ERROR"
)

// Client calls the Graph API on behalf of one Instagram user.
type Client struct {
	httpClient  *http.Client
	accessToken string
	userID      string
	baseURL     string

	pollInterval    time.Duration
	maxPollInterval time.Duration
}

// NewClient creates an Instagram API client for the given token and user.
func NewClient(accessToken, userID string) *Client {
	return &Client{
		httpClient:      &http.Client{Timeout: defaultTimeout},
		accessToken:     accessToken,
		userID:          userID,
		baseURL:         defaultBaseURL,
		pollInterval:    initialPollInterval,
		maxPollInterval: maxPollInterval,
	}
}

// UserID returns the Instagram user the client posts as.
func (c *Client) UserID() string { return c.userID }

// APIError is an error object returned by the Graph API.
type APIError struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      int    `json:"code"`
	Subcode   int    `json:"error_subcode,omitempty"`
	FBTraceID string `json:"fbtrace_id,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Instagram API error: %s (type: %s, code: %d)", e.Message, e.Type, e.Code)
}

// IsAuth reports whether the error means the access token is invalid,
// expired, or revoked.
func (e *APIError) IsAuth() bool {
	return e.Code == codeInvalidToken || e.Code == codeSessionExpired
}

// IsAuthError reports whether err carries a Graph API token error.
func IsAuthError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.IsAuth()
}

type apiResponse struct {
	ID    string    `json:"id"`
	Error *APIError `json:"error,omitempty"`
}

type containerStatusResponse struct {
	ID         string    `json:"id"`
	StatusCode string    `json:"status_code"`
	Status     string    `json:"status,omitempty"`
	Error      *APIError `json:"error,omitempty"`
}

// Profile is the subset of the /me response used to validate a token.
type Profile struct {
	ID       string    `json:"id"`
	UserID   string    `json:"user_id"`
	Username string    `json:"username"`
	Error    *APIError `json:"error,omitempty"`
}

// Me fetches the profile of the token owner. It is the cheapest call that
// proves a token is still accepted.
func (c *Client) Me(ctx context.Context) (*Profile, error) {
	q := url.Values{
		"fields":       {"user_id,username"},
		"access_token": {c.accessToken},
	}
	var p Profile
	if err := c.getJSON(ctx, "/me?"+q.Encode(), &p); err != nil {
		return nil, fmt.Errorf("fetch profile: %w", err)
	}
	if p.Error != nil {
		return nil, fmt.Errorf("fetch profile: %w", p.Error)
	}
	return &p, nil
}

// CreateReelContainer creates a REELS media container for a publicly
// reachable video URL.
func (c *Client) CreateReelContainer(ctx context.Context, videoURL, caption string) (string, error) {
	params := url.Values{
		"video_url":    {videoURL},
		"media_type":   {"REELS"},
		"caption":      {caption},
		"access_token": {c.accessToken},
	}

	resp, err := c.postForm(ctx, fmt.Sprintf("/%s/media", c.userID), params)
	if err != nil {
		return "", fmt.Errorf("create reel container: %w", err)
	}
	log.Info().Str("containerId", resp.ID).Msg("Reel container created")
	return resp.ID, nil
}

// Publish publishes a finished media container and returns the media ID.
func (c *Client) Publish(ctx context.Context, containerID string) (string, error) {
	log.Debug().Str("containerId", containerID).Msg("Publishing container")
	params := url.Values{
		"creation_id":  {containerID},
		"access_token": {c.accessToken},
	}

	resp, err := c.postForm(ctx, fmt.Sprintf("/%s/media_publish", c.userID), params)
	if err != nil {
		return "", fmt.Errorf("publish container %s: %w", containerID, err)
	}
	log.Info().Str("containerId", containerID).Str("mediaId", resp.ID).Msg("Container published")
	return resp.ID, nil
}

// ContainerStatus returns IN_PROGRESS, FINISHED, or ERROR for a container.
func (c *Client) ContainerStatus(ctx context.Context, containerID string) (string, error) {
	q := url.Values{
		"fields":       {"status_code,status"},
		"access_token": {c.accessToken},
	}
	var status containerStatusResponse
	if err := c.getJSON(ctx, "/"+containerID+"?"+q.Encode(), &status); err != nil {
		return "", err
	}
	if status.Error != nil {
		return "", status.Error
	}
	return status.StatusCode, nil
}

// WaitForContainer polls container status until FINISHED or ERROR, doubling
// the interval up to maxPollInterval. Token errors end the wait immediately;
// other poll errors are retried.
func (c *Client) WaitForContainer(ctx context.Context, containerID string, timeout time.Duration) error {
	if timeout == 0 {
		timeout = defaultPollTimeout
	}

	deadline := time.Now().Add(timeout)
	interval := c.pollInterval

	for {
		if time.Now().After(deadline) {
			return fmt.Errorf("container %s: timed out after %s waiting for processing", containerID, timeout)
		}

		status, err := c.ContainerStatus(ctx, containerID)
		switch {
		case err != nil && IsAuthError(err):
			return fmt.Errorf("container %s status: %w", containerID, err)
		case err != nil:
			log.Warn().Err(err).Str("containerId", containerID).Msg("Container status poll error, retrying")
		case status == StatusFinished:
			log.Debug().Str("containerId", containerID).Msg("Container processing finished")
			return nil
		case status == StatusError:
			return fmt.Errorf("container %s: processing failed on Instagram's side", containerID)
		case status == StatusInProgress:
			log.Debug().Str("containerId", containerID).Dur("nextPoll", interval).Msg("Container still processing")
		default:
			log.Warn().Str("containerId", containerID).Str("status", status).Msg("Unknown container status")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}

		interval *= 2
		if interval > c.maxPollInterval {
			interval = c.maxPollInterval
		}
	}
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse response: %w (body: %s)", err, truncate(string(body), 200))
	}
	return nil
}

// postForm sends a form-encoded POST and decodes the {id} or {error} body.
func (c *Client) postForm(ctx context.Context, endpoint string, params url.Values) (*apiResponse, error) {
	startTime := time.Now()

	paramNames := make([]string, 0, len(params))
	for key := range params {
		paramNames = append(paramNames, key)
	}
	log.Trace().Strs("formParams", paramNames).Msg("Form parameters")

	log.Debug().Str("method", http.MethodPost).Str("path", endpoint).Msg("Instagram API request")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint,
		strings.NewReader(params.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	httpResp, err := c.httpClient.Do(req)
	duration := time.Since(startTime)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()

	log.Debug().Int("statusCode", httpResp.StatusCode).Dur("duration", duration).Msg("Instagram API response")

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse response: %w (body: %s)", err, truncate(string(body), 200))
	}
	if resp.Error != nil {
		log.Error().Str("errorMessage", resp.Error.Message).Str("errorType", resp.Error.Type).Int("errorCode", resp.Error.Code).Msg("Instagram API error")
		return nil, resp.Error
	}
	if resp.ID == "" {
		return nil, fmt.Errorf("unexpected response: no ID returned (body: %s)", truncate(string(body), 200))
	}
	return &resp, nil
}

// truncate returns the first n bytes of s, appending "..." if truncated.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
