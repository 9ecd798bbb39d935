package cycle

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fpang/reelbot/internal/reelerr"
)

func TestMessagePosted(t *testing.T) {
	at := time.Date(2024, 12, 1, 6, 5, 0, 0, time.UTC)
	got := MessagePosted("sunset.mp4", 3, 10, at)
	want := "✅ Reel Uploaded\n\n📹 sunset.mp4\n📊 Uploaded: 3/10\n📦 Remaining: 7\n⏰ 01-12-2024 06:05"
	if got != want {
		t.Errorf("MessagePosted =\n%s\nwant\n%s", got, want)
	}
}

func TestMessageFailed(t *testing.T) {
	tests := []struct {
		name string
		item string
		err  error
		want []string
	}{
		{"auth", "a.mp4", reelerr.Wrap(reelerr.ErrAuth, "login", errors.New("expired")), []string{"operator action", "a.mp4", "expired"}},
		{"fetch", "b.mp4", reelerr.Wrap(reelerr.ErrFetch, "download", errors.New("reset")), []string{"(fetch)", "b.mp4", "reset"}},
		{"before selection", "", reelerr.Wrap(reelerr.ErrIO, "load ledger", errors.New("eof")), []string{"(io)", "eof"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MessageFailed(tt.item, tt.err)
			if !strings.HasPrefix(got, "❌ Upload failed") {
				t.Errorf("message %q has wrong prefix", got)
			}
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("message %q missing %q", got, w)
				}
			}
			if tt.item == "" && strings.Contains(got, "📹") {
				t.Errorf("message %q names an item", got)
			}
		})
	}
}

func TestStateString(t *testing.T) {
	if Fetched.String() != "fetched" || NoOp.String() != "noop" || State(99).String() != "unknown" {
		t.Error("unexpected state names")
	}
}
