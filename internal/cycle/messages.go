package cycle

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fpang/reelbot/internal/reelerr"
)

// timestampLayout renders notification times as DD-MM-YYYY HH:MM.
const timestampLayout = "02-01-2006 15:04"

// MessagePosted reports a successful publish with running totals.
func MessagePosted(name string, posted, total int, at time.Time) string {
	return fmt.Sprintf("✅ Reel Uploaded\n\n📹 %s\n📊 Uploaded: %d/%d\n📦 Remaining: %d\n⏰ %s",
		name, posted, total, total-posted, at.Format(timestampLayout))
}

// MessageAllPosted is sent when every catalog item is already in the ledger.
func MessageAllPosted() string {
	return "✅ All reels uploaded."
}

// MessageFailed reports an aborted cycle. Auth failures say that an
// operator has to act, since later cycles will keep failing until then.
func MessageFailed(name string, err error) string {
	var b strings.Builder
	b.WriteString("❌ Upload failed")
	if errors.Is(err, reelerr.ErrAuth) {
		b.WriteString(": Instagram login needs operator action")
	} else if kind := reelerr.Kind(err); kind != "" && kind != "unknown" {
		b.WriteString(" (" + kind + ")")
	}
	if name != "" {
		b.WriteString("\n📹 " + name)
	}
	if err != nil {
		b.WriteString("\n" + err.Error())
	}
	return b.String()
}

// MessageNotRecorded reports a reel that went live but could not be written
// to the ledger. It may be published again by a later cycle.
func MessageNotRecorded(name string, err error) string {
	return fmt.Sprintf("⚠️ Reel published but not recorded\n📹 %s\nIt may be posted again.\n%v", name, err)
}

// MessageConcurrentRecord reports a reel that another cycle recorded at the
// same time, which usually means both published it.
func MessageConcurrentRecord(name string) string {
	return fmt.Sprintf("⚠️ Reel recorded by another cycle\n📹 %s\nIt was probably published twice; check the account for a duplicate.", name)
}
