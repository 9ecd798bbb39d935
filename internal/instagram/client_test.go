package instagram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// newTestClient creates a Client pointing at a test HTTP server.
func newTestClient(server *httptest.Server) *Client {
	return &Client{
		httpClient:      server.Client(),
		accessToken:     "test-token",
		userID:          "12345",
		baseURL:         server.URL,
		pollInterval:    time.Millisecond,
		maxPollInterval: 2 * time.Millisecond,
	}
}

func TestCreateReelContainer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/12345/media" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		r.ParseForm()
		if r.Form.Get("video_url") != "https://example.com/video.mp4" {
			t.Errorf("unexpected video_url: %s", r.Form.Get("video_url"))
		}
		if r.Form.Get("media_type") != "REELS" {
			t.Errorf("expected media_type=REELS, got %s", r.Form.Get("media_type"))
		}
		if r.Form.Get("caption") != "sunset walk\n\n#a #b" {
			t.Errorf("unexpected caption: %q", r.Form.Get("caption"))
		}
		if r.Form.Get("access_token") != "test-token" {
			t.Errorf("unexpected access_token: %s", r.Form.Get("access_token"))
		}
		json.NewEncoder(w).Encode(apiResponse{ID: "container-reel-001"})
	}))
	defer server.Close()

	client := newTestClient(server)
	id, err := client.CreateReelContainer(context.Background(), "https://example.com/video.mp4", "sunset walk\n\n#a #b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "container-reel-001" {
		t.Errorf("expected container-reel-001, got %s", id)
	}
}

func TestPublish(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/12345/media_publish" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		r.ParseForm()
		if r.Form.Get("creation_id") != "container-001" {
			t.Errorf("unexpected creation_id: %s", r.Form.Get("creation_id"))
		}
		json.NewEncoder(w).Encode(apiResponse{ID: "post-001"})
	}))
	defer server.Close()

	client := newTestClient(server)
	id, err := client.Publish(context.Background(), "container-001")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "post-001" {
		t.Errorf("expected post-001, got %s", id)
	}
}

func TestContainerStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		if r.URL.Query().Get("fields") != "status_code,status" {
			t.Errorf("unexpected fields: %s", r.URL.Query().Get("fields"))
		}
		json.NewEncoder(w).Encode(containerStatusResponse{ID: "container-001", StatusCode: StatusFinished})
	}))
	defer server.Close()

	client := newTestClient(server)
	status, err := client.ContainerStatus(context.Background(), "container-001")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != StatusFinished {
		t.Errorf("expected FINISHED, got %s", status)
	}
}

func TestWaitForContainer(t *testing.T) {
	tests := []struct {
		name      string
		statuses  []string
		wantErr   string
		wantPolls int
	}{
		{"finishes after processing", []string{StatusInProgress, StatusInProgress, StatusFinished}, "", 3},
		{"processing error", []string{StatusInProgress, StatusError}, "processing failed", 2},
		{"unknown status keeps polling", []string{"EXPIRED_SOON", StatusFinished}, "", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			polls := 0
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				status := tt.statuses[min(polls, len(tt.statuses)-1)]
				polls++
				json.NewEncoder(w).Encode(containerStatusResponse{ID: "c", StatusCode: status})
			}))
			defer server.Close()

			err := newTestClient(server).WaitForContainer(context.Background(), "c", 5*time.Second)
			if tt.wantErr == "" && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantErr != "" && (err == nil || !strings.Contains(err.Error(), tt.wantErr)) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
			if polls != tt.wantPolls {
				t.Errorf("polls = %d, want %d", polls, tt.wantPolls)
			}
		})
	}
}

func TestWaitForContainer_AuthErrorStops(t *testing.T) {
	polls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		polls++
		json.NewEncoder(w).Encode(containerStatusResponse{
			Error: &APIError{Message: "Error validating access token", Type: "OAuthException", Code: 190},
		})
	}))
	defer server.Close()

	err := newTestClient(server).WaitForContainer(context.Background(), "c", 5*time.Second)
	if !IsAuthError(err) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if polls != 1 {
		t.Errorf("polls = %d, want 1", polls)
	}
}

func TestWaitForContainer_ContextCanceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(containerStatusResponse{StatusCode: StatusInProgress})
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := newTestClient(server).WaitForContainer(ctx, "c", time.Minute)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(apiResponse{
			Error: &APIError{Message: "Invalid OAuth access token", Type: "OAuthException", Code: 190},
		})
	}))
	defer server.Close()

	client := newTestClient(server)
	_, err := client.CreateReelContainer(context.Background(), "https://example.com/v.mp4", "")
	if err == nil {
		t.Fatal("expected error for invalid token")
	}
	if !strings.Contains(err.Error(), "OAuthException") {
		t.Errorf("expected OAuthException in error, got: %v", err)
	}
	if !IsAuthError(err) {
		t.Errorf("expected IsAuthError for code 190")
	}
}

func TestIsAuthError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{&APIError{Code: 190}, true},
		{&APIError{Code: 102}, true},
		{&APIError{Code: 4, Type: "OAuthException"}, false},
		{&APIError{Code: 9004}, false},
		{errors.New("network down"), false},
		{nil, false},
	}
	for _, tt := range tests {
		if got := IsAuthError(tt.err); got != tt.want {
			t.Errorf("IsAuthError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestMe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/me" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(Profile{ID: "12345", UserID: "12345", Username: "reels.daily"})
	}))
	defer server.Close()

	p, err := newTestClient(server).Me(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Username != "reels.daily" {
		t.Errorf("username = %s", p.Username)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		input    string
		limit    int
		expected string
	}{
		{"short", 10, "short"},
		{"this is a long string", 10, "this is a ..."},
		{"exact", 5, "exact"},
	}
	for _, tt := range tests {
		got := truncate(tt.input, tt.limit)
		if got != tt.expected {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.input, tt.limit, got, tt.expected)
		}
	}
}
