package instagram

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fpang/reelbot/internal/s3util"
)

// presignExpiry bounds how long Instagram can fetch the staged video.
const presignExpiry = time.Hour

// Stager exposes a local file at a public URL for Instagram to fetch.
// The returned cleanup func removes the staged copy; it is safe to call
// more than once and never fails the caller.
type Stager interface {
	Stage(ctx context.Context, localPath, contentType string) (url string, cleanup func(context.Context), err error)
}

// S3Stager uploads to a staging bucket and hands out presigned GET URLs.
type S3Stager struct {
	client    s3util.PutDeleteAPI
	presigner s3util.Presigner
	bucket    string
	prefix    string
}

func NewS3Stager(client s3util.PutDeleteAPI, presigner s3util.Presigner, bucket string) *S3Stager {
	return &S3Stager{client: client, presigner: presigner, bucket: bucket, prefix: "staging/"}
}

func (s *S3Stager) Stage(ctx context.Context, localPath, contentType string) (string, func(context.Context), error) {
	key := s.prefix + uuid.NewString() + strings.ToLower(filepath.Ext(localPath))

	if _, err := s3util.UploadFile(ctx, s.client, s.bucket, key, localPath, contentType); err != nil {
		return "", nil, err
	}
	cleanup := func(ctx context.Context) {
		if err := s3util.DeleteObject(ctx, s.client, s.bucket, key); err != nil {
			log.Warn().Err(err).Str("bucket", s.bucket).Str("key", key).Msg("Failed to delete staged video")
		}
	}

	url, err := s3util.GeneratePresignedURL(ctx, s.presigner, s.bucket, key, presignExpiry)
	if err != nil {
		cleanup(ctx)
		return "", nil, err
	}
	log.Debug().Str("bucket", s.bucket).Str("key", key).Msg("Video staged for Instagram")
	return url, cleanup, nil
}
