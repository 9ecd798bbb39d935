package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

// maxBodySize caps webhook payloads. Meta batches up to 1000 updates per
// notification, well under this limit.
const maxBodySize = 1 << 20

// Webhook handles the Meta webhook verification handshake (GET) and signed
// event notifications (POST) for the Instagram account reelbot posts to.
// Events are logged; reelbot does not act on them.
type Webhook struct {
	verifyToken string
	appSecret   string
}

// NewWebhook returns a handler. verifyToken must match the Verify Token set
// in the Meta App Dashboard; appSecret signs X-Hub-Signature-256.
func NewWebhook(verifyToken, appSecret string) *Webhook {
	return &Webhook{verifyToken: verifyToken, appSecret: appSecret}
}

func (h *Webhook) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.verify(w, r)
	case http.MethodPost:
		h.event(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// verify answers GET /webhook?hub.mode=subscribe&hub.verify_token=...&hub.challenge=...
// by echoing the challenge when the token matches.
func (h *Webhook) verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode, token, challenge := q.Get("hub.mode"), q.Get("hub.verify_token"), q.Get("hub.challenge")

	switch {
	case mode == "" || challenge == "":
		log.Warn().Str("mode", mode).Msg("Webhook verification missing required parameters")
		http.Error(w, "missing required parameters", http.StatusBadRequest)
		return
	case mode != "subscribe":
		log.Warn().Str("mode", mode).Msg("Webhook verification unexpected mode")
		http.Error(w, "invalid mode", http.StatusBadRequest)
		return
	case !hmac.Equal([]byte(token), []byte(h.verifyToken)):
		log.Warn().Msg("Webhook verification failed: invalid verify token")
		http.Error(w, "invalid verify token", http.StatusForbidden)
		return
	}

	log.Info().Msg("Webhook verification successful")
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte(challenge))
}

// eventPayload is the envelope Meta posts; only the parts that are logged
// are decoded.
type eventPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Time    int64  `json:"time"`
		Changes []struct {
			Field string `json:"field"`
		} `json:"changes"`
	} `json:"entry"`
}

func (h *Webhook) event(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		log.Error().Err(err).Msg("Webhook event: failed to read body")
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	if len(body) == 0 {
		http.Error(w, "empty body", http.StatusBadRequest)
		return
	}

	signature := r.Header.Get("X-Hub-Signature-256")
	if signature == "" {
		log.Warn().Msg("Webhook event: missing X-Hub-Signature-256 header")
		http.Error(w, "missing signature", http.StatusForbidden)
		return
	}
	if !ValidSignature(h.appSecret, body, signature) {
		log.Warn().Msg("Webhook event: invalid signature")
		http.Error(w, "invalid signature", http.StatusForbidden)
		return
	}

	var payload eventPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		log.Warn().Err(err).Int("bodySize", len(body)).Msg("Webhook event: payload is not JSON")
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	var fields []string
	for _, e := range payload.Entry {
		for _, c := range e.Changes {
			fields = append(fields, c.Field)
		}
	}
	log.Info().
		Str("object", payload.Object).
		Int("entries", len(payload.Entry)).
		Strs("fields", fields).
		RawJSON("payload", body).
		Msg("Webhook event received")

	w.WriteHeader(http.StatusOK)
}

// ValidSignature checks a "sha256=<hex>" header against the HMAC-SHA256 of
// body keyed with secret, in constant time.
func ValidSignature(secret string, body []byte, header string) bool {
	received, ok := strings.CutPrefix(header, "sha256=")
	if !ok || received == "" {
		return false
	}
	receivedBytes, err := hex.DecodeString(received)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(receivedBytes, mac.Sum(nil))
}
