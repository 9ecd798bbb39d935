// Package s3util provides the S3 helpers shared by the S3 catalog and the
// Instagram staging step.
package s3util

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// DefaultChunkSize is the byte range requested per GetObject call.
const DefaultChunkSize int64 = 8 << 20

// GetObjectAPI is the subset of the S3 client used for downloads.
type GetObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// DownloadChunks copies an object of the given size into w using sequential
// ranged GetObject calls of chunkSize bytes. It fails if any range comes back
// short, so a truncated transfer is never reported as complete.
func DownloadChunks(ctx context.Context, client GetObjectAPI, bucket, key string, size, chunkSize int64, w io.Writer) (int64, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	var written int64
	for chunk := 0; written < size; chunk++ {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		end := written + chunkSize - 1
		if end >= size {
			end = size - 1
		}
		rangeHeader := fmt.Sprintf("bytes=%d-%d", written, end)

		result, err := client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: &bucket,
			Key:    &key,
			Range:  aws.String(rangeHeader),
		})
		if err != nil {
			return written, fmt.Errorf("S3 GetObject %s: %w", rangeHeader, err)
		}
		n, copyErr := io.Copy(w, result.Body)
		result.Body.Close()
		written += n
		if copyErr != nil {
			return written, fmt.Errorf("read %s: %w", rangeHeader, copyErr)
		}
		if want := end - (written - n) + 1; n != want {
			return written, fmt.Errorf("short read for %s: got %d of %d bytes", rangeHeader, n, want)
		}

		log.Trace().Str("key", key).Int("chunk", chunk).Int64("written", written).Int64("size", size).Msg("S3 chunk downloaded")
	}
	return written, nil
}
