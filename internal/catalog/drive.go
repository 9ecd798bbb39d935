package catalog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/fpang/reelbot/internal/fileutil"
	"github.com/fpang/reelbot/internal/reelerr"
)

const (
	// driveChunkSize is the byte range requested per download call.
	driveChunkSize int64 = 10 << 20

	drivePageSize = 1000
	driveFields   = "nextPageToken, files(id, name, mimeType, size)"
)

// DriveCatalog reads a single Google Drive folder with a service account.
type DriveCatalog struct {
	svc       *drive.Service
	folderID  string
	chunkSize int64
}

// Compile-time interface check.
var _ Catalog = (*DriveCatalog)(nil)

// NewDriveCatalog authenticates with the service-account credentials file and
// returns a catalog over folderID. Extra options are appended (tests use them
// to point at a local server).
func NewDriveCatalog(ctx context.Context, credentialsFile, folderID string, opts ...option.ClientOption) (*DriveCatalog, error) {
	base := []option.ClientOption{
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(drive.DriveReadonlyScope),
	}
	svc, err := drive.NewService(ctx, append(base, opts...)...)
	if err != nil {
		return nil, reelerr.Wrap(reelerr.ErrConfig, "create Drive service", err)
	}
	return NewDriveCatalogWithService(svc, folderID), nil
}

// NewDriveCatalogWithService wraps an existing Drive service.
func NewDriveCatalogWithService(svc *drive.Service, folderID string) *DriveCatalog {
	return &DriveCatalog{svc: svc, folderID: folderID, chunkSize: driveChunkSize}
}

func (c *DriveCatalog) List(ctx context.Context) ([]Item, error) {
	query := fmt.Sprintf("'%s' in parents and trashed=false", strings.ReplaceAll(c.folderID, "'", `\'`))
	call := c.svc.Files.List().
		Q(query).
		Fields(driveFields).
		PageSize(drivePageSize).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true)

	var items []Item
	err := call.Pages(ctx, func(page *drive.FileList) error {
		for _, f := range page.Files {
			items = append(items, Item{ID: f.Id, Name: f.Name, MIMEType: f.MimeType, Size: f.Size})
		}
		return nil
	})
	if err != nil {
		return nil, reelerr.Wrap(reelerr.ErrFetch, "list Drive folder "+c.folderID, err)
	}

	videos := FilterVideos(items)
	log.Debug().Str("folderId", c.folderID).Int("files", len(items)).Int("videos", len(videos)).Msg("Drive folder listed")
	return videos, nil
}

func (c *DriveCatalog) Fetch(ctx context.Context, item Item, dir string) (string, error) {
	path, err := StagePath(dir, item)
	if err != nil {
		return "", reelerr.Wrap(reelerr.ErrFetch, "stage "+item.ID, err)
	}

	n, err := fileutil.WriteStaged(path, func(w io.Writer) (int64, error) {
		return c.download(ctx, item, w)
	})
	if err != nil {
		return "", reelerr.Wrap(reelerr.ErrFetch, "download "+item.Name, err)
	}
	log.Info().Str("itemId", item.ID).Str("name", item.Name).Str("size", humanize.IBytes(uint64(n))).Msg("Video downloaded from Drive")
	return path, nil
}

// download pulls the file in sequential byte ranges. When the size is
// unknown it falls back to one request for the whole body.
func (c *DriveCatalog) download(ctx context.Context, item Item, w io.Writer) (int64, error) {
	if item.Size <= 0 {
		n, _, err := c.downloadRange(ctx, item.ID, "", w)
		return n, err
	}

	var written int64
	for written < item.Size {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		end := written + c.chunkSize - 1
		if end >= item.Size {
			end = item.Size - 1
		}
		offset := written
		n, whole, err := c.downloadRange(ctx, item.ID, fmt.Sprintf("bytes=%d-%d", offset, end), w)
		written += n
		if err != nil {
			return written, err
		}
		if whole {
			// The server ignored Range and sent the full file.
			if offset != 0 {
				return written, fmt.Errorf("server ignored Range at offset %d", offset)
			}
			break
		}
		if n == 0 {
			return written, fmt.Errorf("empty range at offset %d of %d", written, item.Size)
		}
		log.Trace().Str("itemId", item.ID).Int64("written", written).Int64("size", item.Size).Msg("Drive chunk downloaded")
	}
	if written != item.Size {
		return written, fmt.Errorf("downloaded %d of %d bytes", written, item.Size)
	}
	return written, nil
}

// downloadRange copies one response body into w. whole reports that a
// ranged request was answered with the complete file (200 instead of 206).
func (c *DriveCatalog) downloadRange(ctx context.Context, fileID, rangeHeader string, w io.Writer) (n int64, whole bool, err error) {
	call := c.svc.Files.Get(fileID).SupportsAllDrives(true).Context(ctx)
	if rangeHeader != "" {
		call.Header().Set("Range", rangeHeader)
	}
	resp, err := call.Download()
	if err != nil {
		return 0, false, fmt.Errorf("Drive download %s: %w", fileID, err)
	}
	defer resp.Body.Close()

	whole = rangeHeader != "" && resp.StatusCode == http.StatusOK
	n, err = io.Copy(w, resp.Body)
	if err != nil {
		return n, whole, fmt.Errorf("read Drive body %s: %w", fileID, err)
	}
	return n, whole, nil
}
