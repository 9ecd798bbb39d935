package instagram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fpang/reelbot/internal/reelerr"
)

type fakeStager struct {
	staged   []string
	cleaned  int
	stageErr error
}

func (f *fakeStager) Stage(ctx context.Context, localPath, contentType string) (string, func(context.Context), error) {
	if f.stageErr != nil {
		return "", nil, f.stageErr
	}
	f.staged = append(f.staged, localPath+"|"+contentType)
	return "https://staging.example/" + filepath.Base(localPath), func(context.Context) { f.cleaned++ }, nil
}

// graphServer fakes the container create, status, and publish endpoints.
func graphServer(t *testing.T, createErr *APIError) (*httptest.Server, *[]string) {
	t.Helper()
	var calls []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		switch r.URL.Path {
		case "/u1/media":
			if createErr != nil {
				json.NewEncoder(w).Encode(apiResponse{Error: createErr})
				return
			}
			json.NewEncoder(w).Encode(apiResponse{ID: "c1"})
		case "/c1":
			json.NewEncoder(w).Encode(containerStatusResponse{ID: "c1", StatusCode: StatusFinished})
		case "/u1/media_publish":
			json.NewEncoder(w).Encode(apiResponse{ID: "m1"})
		case "/me":
			json.NewEncoder(w).Encode(Profile{ID: "u1", Username: "daily.reels"})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newTestPublisher(t *testing.T, cfg PublisherConfig, graphURL string) *Publisher {
	t.Helper()
	p := NewPublisher(cfg)
	p.baseURL = graphURL
	p.pollInterval = time.Millisecond
	return p
}

func TestPublisher_Publish(t *testing.T) {
	srv, calls := graphServer(t, nil)
	stager := &fakeStager{}
	p := newTestPublisher(t, PublisherConfig{Stager: stager}, srv.URL)
	sess := &Session{AccessToken: "tok", UserID: "u1"}

	mediaID, err := p.Publish(context.Background(), sess, "/tmp/dl/beach_day.mp4", "beach day")
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if mediaID != "m1" {
		t.Errorf("mediaID = %s", mediaID)
	}
	if len(stager.staged) != 1 || stager.staged[0] != "/tmp/dl/beach_day.mp4|video/mp4" {
		t.Errorf("staged = %v", stager.staged)
	}
	if stager.cleaned != 1 {
		t.Errorf("cleanup called %d times", stager.cleaned)
	}
	want := []string{"POST /u1/media", "GET /c1", "POST /u1/media_publish"}
	if len(*calls) != len(want) {
		t.Fatalf("calls = %v", *calls)
	}
	for i := range want {
		if (*calls)[i] != want[i] {
			t.Errorf("call %d = %s, want %s", i, (*calls)[i], want[i])
		}
	}
}

func TestPublisher_PublishErrors(t *testing.T) {
	tests := []struct {
		name      string
		createErr *APIError
		stageErr  error
		sess      *Session
		want      error
		cleaned   int
	}{
		{"token rejected", &APIError{Message: "expired", Type: "OAuthException", Code: 190}, nil, &Session{AccessToken: "t", UserID: "u1"}, reelerr.ErrAuth, 1},
		{"platform rejects", &APIError{Message: "bad video", Code: 9004}, nil, &Session{AccessToken: "t", UserID: "u1"}, reelerr.ErrPublish, 1},
		{"staging fails", nil, errors.New("s3 down"), &Session{AccessToken: "t", UserID: "u1"}, reelerr.ErrPublish, 0},
		{"no session", nil, nil, nil, reelerr.ErrAuth, 0},
		{"expired session", nil, nil, &Session{AccessToken: "t", UserID: "u1", ExpiresAt: time.Now().Add(-time.Hour)}, reelerr.ErrAuth, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := graphServer(t, tt.createErr)
			stager := &fakeStager{stageErr: tt.stageErr}
			p := newTestPublisher(t, PublisherConfig{Stager: stager}, srv.URL)

			_, err := p.Publish(context.Background(), tt.sess, "/tmp/a.mp4", "a")
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
			if stager.cleaned != tt.cleaned {
				t.Errorf("cleanup called %d times, want %d", stager.cleaned, tt.cleaned)
			}
		})
	}
}

func TestPublisher_LoginUsesStoredSession(t *testing.T) {
	store := NewSessionStore(filepath.Join(t.TempDir(), "session.json"))
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	// A refreshed session descends from the configured token but no longer carries it.
	stored := &Session{AccessToken: "stored", UserID: "u1", ExpiresAt: now.Add(30 * 24 * time.Hour), ObtainedAt: now.Add(-30 * 24 * time.Hour), Seed: TokenSeed("env")}
	if err := store.Save(stored); err != nil {
		t.Fatal(err)
	}

	p := NewPublisher(PublisherConfig{Store: store, Credentials: Credentials{AccessToken: "env", UserID: "u2"}})
	p.now = func() time.Time { return now }

	sess, err := p.Login(context.Background())
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if sess.AccessToken != "stored" {
		t.Errorf("token = %s, want stored", sess.AccessToken)
	}
}

func TestPublisher_LoginPicksUpRotatedToken(t *testing.T) {
	tests := []struct {
		name   string
		stored *Session
	}{
		{"token without expiry", &Session{AccessToken: "old-revoked", UserID: "u1", Seed: TokenSeed("old-revoked")}},
		{"session written before seeds", &Session{AccessToken: "old-revoked", UserID: "u1"}},
		{"refreshed from old token", &Session{AccessToken: "refreshed", UserID: "u1", ExpiresAt: time.Now().Add(30 * 24 * time.Hour), Seed: TokenSeed("old-revoked")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewSessionStore(filepath.Join(t.TempDir(), "session.json"))
			if err := store.Save(tt.stored); err != nil {
				t.Fatal(err)
			}
			p := NewPublisher(PublisherConfig{Store: store, Credentials: Credentials{AccessToken: "new-good", UserID: "u1"}})

			sess, err := p.Login(context.Background())
			if err != nil {
				t.Fatalf("Login: %v", err)
			}
			if sess.AccessToken != "new-good" {
				t.Errorf("token = %s, want new-good", sess.AccessToken)
			}
			persisted, err := store.Load()
			if err != nil {
				t.Fatal(err)
			}
			if persisted.AccessToken != "new-good" || persisted.Seed != TokenSeed("new-good") {
				t.Errorf("persisted = %+v", persisted)
			}

			// The next run keeps the session it just stored.
			again, err := p.Login(context.Background())
			if err != nil || again.AccessToken != "new-good" {
				t.Errorf("second Login = %+v, %v", again, err)
			}
		})
	}
}

func TestPublisher_LoginRefreshesNearExpiry(t *testing.T) {
	var refreshed bool
	authSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/refresh_access_token" || r.URL.Query().Get("grant_type") != "ig_refresh_token" {
			t.Errorf("unexpected request %s", r.URL)
		}
		refreshed = true
		json.NewEncoder(w).Encode(longTokenResponse{AccessToken: "fresh", ExpiresIn: 5184000})
	}))
	defer authSrv.Close()

	store := NewSessionStore(filepath.Join(t.TempDir(), "session.json"))
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store.Save(&Session{AccessToken: "old", UserID: "u1", ExpiresAt: now.Add(3 * 24 * time.Hour), ObtainedAt: now.Add(-57 * 24 * time.Hour), Seed: TokenSeed("old")})

	auth := NewAuthenticator("app", "secret", "https://example.com/cb")
	auth.graphBaseURL = authSrv.URL
	p := NewPublisher(PublisherConfig{Store: store, Auth: auth})
	p.now = func() time.Time { return now }

	sess, err := p.Login(context.Background())
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !refreshed || sess.AccessToken != "fresh" {
		t.Fatalf("expected refreshed token, got %+v", sess)
	}
	if want := now.Add(60 * 24 * time.Hour); !sess.ExpiresAt.Equal(want) {
		t.Errorf("expiresAt = %s, want %s", sess.ExpiresAt, want)
	}

	persisted, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if persisted.AccessToken != "fresh" || persisted.Seed != TokenSeed("old") {
		t.Errorf("persisted = %+v", persisted)
	}
}

func TestPublisher_LoginFromEnvPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "session.json")
	p := NewPublisher(PublisherConfig{
		Store:       NewSessionStore(path),
		Credentials: Credentials{AccessToken: "env-token", UserID: "u9"},
	})

	sess, err := p.Login(context.Background())
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if sess.AccessToken != "env-token" || sess.UserID != "u9" {
		t.Errorf("session = %+v", sess)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("session not persisted: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("session mode = %o, want 600", perm)
	}
}

func TestPublisher_LoginExchangesCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth/access_token":
			r.ParseForm()
			if r.Form.Get("code") != "abc" {
				t.Errorf("code = %q", r.Form.Get("code"))
			}
			json.NewEncoder(w).Encode(shortTokenResponse{AccessToken: "short", UserID: 777})
		case "/access_token":
			if r.URL.Query().Get("access_token") != "short" {
				t.Errorf("access_token = %q", r.URL.Query().Get("access_token"))
			}
			json.NewEncoder(w).Encode(longTokenResponse{AccessToken: "long", ExpiresIn: 5184000})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	auth := NewAuthenticator("app", "secret", "https://example.com/cb")
	auth.oauthBaseURL = srv.URL
	auth.graphBaseURL = srv.URL
	p := NewPublisher(PublisherConfig{
		Store:       NewSessionStore(filepath.Join(t.TempDir(), "session.json")),
		Auth:        auth,
		Credentials: Credentials{AuthCode: "abc#_"},
	})

	sess, err := p.Login(context.Background())
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if sess.AccessToken != "long" || sess.UserID != "777" || sess.ExpiresAt.IsZero() {
		t.Errorf("session = %+v", sess)
	}
}

func TestPublisher_LoginFails(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store := NewSessionStore(filepath.Join(t.TempDir(), "session.json"))
	store.Save(&Session{AccessToken: "env-token", UserID: "u1", ExpiresAt: now.Add(-time.Hour)})

	tests := []struct {
		name  string
		creds Credentials
	}{
		{"nothing configured", Credentials{}},
		{"configured token already expired", Credentials{AccessToken: "env-token", UserID: "u1"}},
		{"code without app credentials", Credentials{AuthCode: "abc"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPublisher(PublisherConfig{Store: store, Credentials: tt.creds})
			p.now = func() time.Time { return now }
			_, err := p.Login(context.Background())
			if !errors.Is(err, reelerr.ErrAuth) {
				t.Errorf("expected ErrAuth, got %v", err)
			}
		})
	}
}

func TestPublisher_Verify(t *testing.T) {
	srv, _ := graphServer(t, nil)
	store := NewSessionStore(filepath.Join(t.TempDir(), "session.json"))
	p := newTestPublisher(t, PublisherConfig{Store: store}, srv.URL)
	sess := &Session{AccessToken: "tok", UserID: "u1"}

	profile, err := p.Verify(context.Background(), sess)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if profile.Username != "daily.reels" || sess.Username != "daily.reels" {
		t.Errorf("profile = %+v, session = %+v", profile, sess)
	}
	persisted, _ := store.Load()
	if persisted == nil || persisted.Username != "daily.reels" {
		t.Errorf("persisted = %+v", persisted)
	}
}
