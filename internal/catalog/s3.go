package catalog

import (
	"context"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"

	"github.com/fpang/reelbot/internal/fileutil"
	"github.com/fpang/reelbot/internal/reelerr"
	"github.com/fpang/reelbot/internal/s3util"
)

// S3API is the subset of the S3 client the catalog uses.
type S3API interface {
	s3.ListObjectsV2APIClient
	s3util.GetObjectAPI
}

// S3Catalog treats every video object under bucket/prefix as a catalog item.
// The object key is the item ID.
type S3Catalog struct {
	client    S3API
	bucket    string
	prefix    string
	chunkSize int64
}

var _ Catalog = (*S3Catalog)(nil)

func NewS3Catalog(client S3API, bucket, prefix string) *S3Catalog {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3Catalog{client: client, bucket: bucket, prefix: prefix, chunkSize: s3util.DefaultChunkSize}
}

func (c *S3Catalog) List(ctx context.Context) ([]Item, error) {
	paginator := s3.NewListObjectsV2Paginator(c.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(c.prefix),
	})

	var items []Item
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, reelerr.Wrap(reelerr.ErrFetch, "list s3://"+c.bucket+"/"+c.prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			// Skip "folder" placeholder keys.
			if strings.HasSuffix(key, "/") {
				continue
			}
			name := path.Base(key)
			items = append(items, Item{
				ID:       key,
				Name:     name,
				MIMEType: MIMEType(name),
				Size:     aws.ToInt64(obj.Size),
			})
		}
	}

	videos := FilterVideos(items)
	log.Debug().Str("bucket", c.bucket).Str("prefix", c.prefix).Int("objects", len(items)).Int("videos", len(videos)).Msg("S3 prefix listed")
	return videos, nil
}

func (c *S3Catalog) Fetch(ctx context.Context, item Item, dir string) (string, error) {
	dest, err := StagePath(dir, item)
	if err != nil {
		return "", reelerr.Wrap(reelerr.ErrFetch, "stage "+item.ID, err)
	}

	n, err := fileutil.WriteStaged(dest, func(w io.Writer) (int64, error) {
		return s3util.DownloadChunks(ctx, c.client, c.bucket, item.ID, item.Size, c.chunkSize, w)
	})
	if err != nil {
		return "", reelerr.Wrap(reelerr.ErrFetch, "download "+item.ID, err)
	}
	log.Info().Str("key", item.ID).Str("size", humanize.IBytes(uint64(n))).Msg("Video downloaded from S3")
	return dest, nil
}
