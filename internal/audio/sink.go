package audio

import (
	"context"
	"fmt"
	"strings"

	"gocloud.dev/blob"

	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
)

// BlobSink writes audio files to a gocloud bucket ("file:///dir",
// "mem://"). Locations are returned as <bucket_url>/<prefix><key>.
type BlobSink struct {
	bucket    *blob.Bucket
	bucketURL string
	prefix    string
}

// OpenBlobSink opens the bucket at bucketURL.
func OpenBlobSink(ctx context.Context, bucketURL, prefix string) (*BlobSink, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("open audio bucket: %w", err)
	}
	return &BlobSink{bucket: bucket, bucketURL: bucketURL, prefix: prefix}, nil
}

// Save writes data under key.
func (s *BlobSink) Save(ctx context.Context, key string, data []byte) (string, error) {
	full := s.prefix + key
	err := s.bucket.WriteAll(ctx, full, data, &blob.WriterOptions{ContentType: "audio/wav"})
	if err != nil {
		return "", fmt.Errorf("save audio %s: %w", full, err)
	}
	return s.location(full), nil
}

// Read returns a previously saved file.
func (s *BlobSink) Read(ctx context.Context, key string) ([]byte, error) {
	return s.bucket.ReadAll(ctx, s.prefix+key)
}

// Close closes the bucket.
func (s *BlobSink) Close() error {
	return s.bucket.Close()
}

func (s *BlobSink) location(key string) string {
	base := s.bucketURL
	if i := strings.IndexByte(base, '?'); i >= 0 {
		base = base[:i]
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + key
}
