package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const userAgent = "reelbot/1.0"

// Ntfy publishes messages to an ntfy topic URL (https://ntfy.sh/<topic> or a
// self-hosted server).
type Ntfy struct {
	httpClient *http.Client
	endpoint   string
	title      string
}

// NewNtfy returns an ntfy transport, or nil when topicURL is empty.
func NewNtfy(topicURL string) *Ntfy {
	topicURL = strings.TrimSpace(topicURL)
	if topicURL == "" {
		return nil
	}
	return &Ntfy{
		httpClient: &http.Client{Timeout: defaultTimeout},
		endpoint:   topicURL,
		title:      "Reel Uploader",
	}
}

func (n *Ntfy) Name() string { return "ntfy" }

func (n *Ntfy) Deliver(ctx context.Context, text string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(text))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Title", n.title)
	req.Header.Set("Tags", "reelbot")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ntfy request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("ntfy status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
