package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/fpang/reelbot/internal/reelerr"
)

type fakeS3 struct {
	pages   [][]types.Object
	objects map[string][]byte
	listErr error
	prefix  string
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.prefix = aws.ToString(in.Prefix)
	page := 0
	if in.ContinuationToken != nil {
		fmt.Sscanf(aws.ToString(in.ContinuationToken), "page-%d", &page)
	}
	out := &s3.ListObjectsV2Output{Contents: f.pages[page]}
	if page+1 < len(f.pages) {
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(fmt.Sprintf("page-%d", page+1))
	}
	return out, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	body, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	var start, end int
	if _, err := fmt.Sscanf(aws.ToString(in.Range), "bytes=%d-%d", &start, &end); err != nil {
		return nil, err
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(body[start : end+1]))}, nil
}

func obj(key string, size int64) types.Object {
	return types.Object{Key: aws.String(key), Size: aws.Int64(size)}
}

func TestS3Catalog_List(t *testing.T) {
	fake := &fakeS3{pages: [][]types.Object{
		{obj("reels/", 0), obj("reels/a_clip.mp4", 10), obj("reels/cover.jpg", 4)},
		{obj("reels/b.MOV", 20)},
	}}
	c := NewS3Catalog(fake, "media", "reels")

	items, err := c.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if fake.prefix != "reels/" {
		t.Errorf("prefix = %q, want reels/", fake.prefix)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items: %+v", len(items), items)
	}
	if items[0].ID != "reels/a_clip.mp4" || items[0].Name != "a_clip.mp4" || items[0].MIMEType != "video/mp4" {
		t.Errorf("items[0] = %+v", items[0])
	}
	if items[1].Size != 20 {
		t.Errorf("items[1].Size = %d", items[1].Size)
	}
}

func TestS3Catalog_ListError(t *testing.T) {
	c := NewS3Catalog(&fakeS3{listErr: errors.New("AccessDenied")}, "media", "")
	_, err := c.List(context.Background())
	if !errors.Is(err, reelerr.ErrFetch) {
		t.Errorf("expected ErrFetch, got %v", err)
	}
}

func TestS3Catalog_Fetch(t *testing.T) {
	content := bytes.Repeat([]byte("r"), 25)
	fake := &fakeS3{objects: map[string][]byte{"reels/a_clip.mp4": content}}
	c := NewS3Catalog(fake, "media", "reels/")
	c.chunkSize = 10
	dir := t.TempDir()

	path, err := c.Fetch(context.Background(), Item{ID: "reels/a_clip.mp4", Name: "a_clip.mp4", Size: 25}, dir)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if path != filepath.Join(dir, "a_clip.mp4") {
		t.Errorf("path = %s", path)
	}
	got, _ := os.ReadFile(path)
	if !bytes.Equal(got, content) {
		t.Errorf("content length %d, want 25", len(got))
	}
}

func TestS3Catalog_FetchMissing(t *testing.T) {
	c := NewS3Catalog(&fakeS3{objects: map[string][]byte{}}, "media", "")
	dir := t.TempDir()

	_, err := c.Fetch(context.Background(), Item{ID: "gone.mp4", Name: "gone.mp4", Size: 5}, dir)
	if !errors.Is(err, reelerr.ErrFetch) {
		t.Fatalf("expected ErrFetch, got %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("staging dir not empty: %v", entries)
	}
}
