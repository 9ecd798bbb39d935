// Package catalog lists and downloads unpublished videos from a remote
// folder: a Google Drive folder or an S3 prefix.
//
// List order carries no meaning; callers pick items at random. Fetch streams
// the item into a local staging directory in sequential chunks and only
// returns a path once the file is complete. A failed fetch removes its
// partial file and returns an error wrapping reelerr.ErrFetch.
package catalog

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// Item is one remote file.
type Item struct {
	ID       string
	Name     string
	MIMEType string
	Size     int64
}

// Catalog is a read-only view of the remote folder.
type Catalog interface {
	// List returns the video items in the folder.
	List(ctx context.Context) ([]Item, error)

	// Fetch downloads item into dir and returns the local path.
	Fetch(ctx context.Context, item Item, dir string) (string, error)
}

// VideoExtensions maps the accepted video extensions to their MIME types.
var VideoExtensions = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/x-m4v",
	".mov":  "video/quicktime",
	".avi":  "video/x-msvideo",
	".webm": "video/webm",
	".mkv":  "video/x-matroska",
}

// IsVideo reports whether name has a video extension (case-insensitive).
func IsVideo(name string) bool {
	_, ok := VideoExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// MIMEType returns the MIME type for a video filename, or
// application/octet-stream when the extension is unknown.
func MIMEType(name string) string {
	if mt, ok := VideoExtensions[strings.ToLower(filepath.Ext(name))]; ok {
		return mt
	}
	return "application/octet-stream"
}

// FilterVideos keeps the items whose names have a video extension.
func FilterVideos(items []Item) []Item {
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if IsVideo(it.Name) {
			out = append(out, it)
		}
	}
	return out
}

// StagePath returns the local path for item inside dir. The remote name is
// reduced to its base name so it cannot escape dir.
func StagePath(dir string, item Item) (string, error) {
	name := filepath.Base(filepath.Clean("/" + strings.ReplaceAll(item.Name, "\\", "/")))
	if name == "/" || name == "." || name == "" {
		return "", fmt.Errorf("item %s has no usable file name", item.ID)
	}
	return filepath.Join(dir, name), nil
}
