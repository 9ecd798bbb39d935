package instagram

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/fpang/reelbot/internal/fileutil"
)

// Session is the persisted credential for one Instagram account.
type Session struct {
	AccessToken string    `json:"accessToken"`
	UserID      string    `json:"userId"`
	Username    string    `json:"username,omitempty"`
	ExpiresAt   time.Time `json:"expiresAt,omitzero"`
	ObtainedAt  time.Time `json:"obtainedAt,omitzero"`
	// Seed fingerprints the configured token this session was created from.
	// Refreshed sessions keep it so a rotated token can be told apart.
	Seed        string    `json:"seed,omitempty"`
}

// TokenSeed returns the fingerprint stored in Session.Seed for token.
func TokenSeed(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:8])
}

// seededBy reports whether s descends from the configured token.
func (s *Session) seededBy(token string) bool {
	return s.AccessToken == token || s.Seed == TokenSeed(token)
}

// Valid reports whether the session has a token that has not expired at now.
// A zero ExpiresAt means the expiry is unknown and the token is assumed good.
func (s *Session) Valid(now time.Time) bool {
	if s == nil || s.AccessToken == "" || s.UserID == "" {
		return false
	}
	return s.ExpiresAt.IsZero() || now.Before(s.ExpiresAt)
}

// NeedsRefresh reports whether a valid session expires within window.
// Tokens younger than a day cannot be refreshed yet.
func (s *Session) NeedsRefresh(now time.Time, window time.Duration) bool {
	if !s.Valid(now) || s.ExpiresAt.IsZero() {
		return false
	}
	if !s.ObtainedAt.IsZero() && now.Sub(s.ObtainedAt) < 24*time.Hour {
		return false
	}
	return s.ExpiresAt.Sub(now) < window
}

// SessionStore persists a Session as JSON at a fixed path.
type SessionStore struct {
	path string
}

func NewSessionStore(path string) *SessionStore {
	return &SessionStore{path: path}
}

func (s *SessionStore) Path() string { return s.path }

// Load returns the stored session, or nil when no session file exists.
func (s *SessionStore) Load() (*Session, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session %s: %w", s.path, err)
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("parse session %s: %w", s.path, err)
	}
	return &sess, nil
}

// Save writes the session atomically with owner-only permissions.
func (s *SessionStore) Save(sess *Session) error {
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := fileutil.WriteFileAtomic(s.path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}
