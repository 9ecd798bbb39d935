// Package reelerr defines the failure classes an upload cycle can end in.
//
// Components wrap their errors with one of the exported markers so the
// coordinator can classify a failure (for notifications and metrics) with
// errors.Is, without knowing which backend produced it.
package reelerr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAuth marks an invalid, expired, or missing platform session.
	ErrAuth = errors.New("authentication error")
	// ErrFetch marks a remote listing or download failure, including partial transfers.
	ErrFetch = errors.New("fetch error")
	// ErrPublish marks a platform rejection or failure of the publish call.
	ErrPublish = errors.New("publish error")
	// ErrIO marks a local persistence read or write failure.
	ErrIO = errors.New("io error")
	// ErrConfig marks missing or invalid required configuration.
	ErrConfig = errors.New("configuration error")
)

// Wrap tags err with marker and an operation label. A nil err produces an
// error carrying only the marker and label.
func Wrap(marker error, op string, err error) error {
	op = strings.TrimSpace(op)
	if op == "" {
		op = "operation failed"
	}
	if err == nil {
		return fmt.Errorf("%w: %s", marker, op)
	}
	return fmt.Errorf("%w: %s: %w", marker, op, err)
}

// Kind returns a short label for the failure class of err: "auth", "fetch",
// "publish", "io", "config", or "unknown".
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.Is(err, ErrFetch):
		return "fetch"
	case errors.Is(err, ErrPublish):
		return "publish"
	case errors.Is(err, ErrIO):
		return "io"
	case errors.Is(err, ErrConfig):
		return "config"
	default:
		return "unknown"
	}
}
