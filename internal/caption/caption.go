// Package caption derives a reel caption from a video filename and a pool of
// hashtags.
package caption

import (
	"bufio"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
)

const (
	// MaxTags is the number of tags sampled per caption.
	MaxTags = 6

	// MaxLength is the Instagram caption limit, in characters.
	MaxLength = 2200
)

// separators are replaced with spaces when turning a filename into a title.
var separators = strings.NewReplacer("_", " ", "-", " ")

// Title strips the extension from filename and replaces separator characters
// with single spaces: "my_video.mp4" becomes "my video".
func Title(filename string) string {
	base := filepath.Base(filename)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return strings.Join(strings.Fields(separators.Replace(base)), " ")
}

// Build returns the title of filename followed by a blank line and up to
// MaxTags distinct tags drawn uniformly from tags without replacement. With an
// empty pool the caption is the title alone. The result is cut to MaxLength.
//
// rng drives the sampling; a fixed seed gives a fixed caption.
func Build(filename string, tags []string, rng *rand.Rand) string {
	title := Title(filename)
	picked := Sample(tags, MaxTags, rng)

	var caption string
	switch {
	case len(picked) == 0:
		caption = title
	case title == "":
		caption = strings.Join(picked, " ")
	default:
		caption = title + "\n\n" + strings.Join(picked, " ")
	}
	return Truncate(caption, MaxLength)
}

// Sample returns min(n, distinct tags) distinct, non-blank tags in random order.
func Sample(tags []string, n int, rng *rand.Rand) []string {
	pool := dedupe(tags)
	if n > len(pool) {
		n = len(pool)
	}
	if n <= 0 {
		return nil
	}
	perm := rng.Perm(len(pool))
	out := make([]string, n)
	for i := range n {
		out[i] = pool[perm[i]]
	}
	return out
}

// Truncate cuts s to at most max characters without splitting a rune.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == max {
			return s[:i]
		}
		count++
	}
	return s
}

// LoadTags reads a newline-delimited tag pool. Blank lines are skipped and
// a missing file (or an empty path) is an empty pool.
func LoadTags(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open tag pool: %w", err)
	}
	defer f.Close()

	var tags []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if tag := strings.TrimSpace(scanner.Text()); tag != "" {
			tags = append(tags, tag)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read tag pool: %w", err)
	}
	return tags, nil
}

func dedupe(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
