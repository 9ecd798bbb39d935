// Package notify sends short status messages to operators.
//
// Delivery is best effort: Service.Send logs transport failures and never
// returns them, so a broken chat integration cannot fail an upload cycle.
// There is no retry and no ordering guarantee beyond call order.
package notify

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// defaultTimeout bounds each transport call.
const defaultTimeout = 10 * time.Second

// Transport delivers a text message to one external endpoint.
type Transport interface {
	Name() string
	Deliver(ctx context.Context, text string) error
}

// Service fans a message out to every configured transport.
// A Service with no transports is a valid no-op.
type Service struct {
	transports []Transport
	timeout    time.Duration
}

// NewService returns a Service over the given transports; nil entries are ignored.
func NewService(transports ...Transport) *Service {
	s := &Service{timeout: defaultTimeout}
	for _, t := range transports {
		if t != nil {
			s.transports = append(s.transports, t)
		}
	}
	return s
}

// Enabled reports whether at least one transport is configured.
func (s *Service) Enabled() bool {
	return s != nil && len(s.transports) > 0
}

// Names lists the configured transports, for startup logging.
func (s *Service) Names() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.transports))
	for _, t := range s.transports {
		names = append(names, t.Name())
	}
	return names
}

// Send delivers text to every transport. Failures are logged and swallowed.
func (s *Service) Send(ctx context.Context, text string) {
	text = strings.TrimSpace(text)
	if !s.Enabled() || text == "" {
		return
	}
	for _, t := range s.transports {
		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		start := time.Now()
		err := t.Deliver(callCtx, text)
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("transport", t.Name()).Dur("duration", time.Since(start)).Msg("Notification not delivered")
			continue
		}
		log.Debug().Str("transport", t.Name()).Dur("duration", time.Since(start)).Msg("Notification delivered")
	}
}
