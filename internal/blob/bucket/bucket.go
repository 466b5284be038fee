package bucket

import (
	"context"
	"fmt"
	"strconv"

	gcblob "gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
	"gocloud.dev/gcerrors"
	"go.uber.org/zap"

	"go-upstream-guard/internal/blob"
	"go-upstream-guard/internal/interfaces"
)

// publicReadKey is the object metadata entry carrying the visibility flag
const publicReadKey = "public-read"

// Ensure Store implements interfaces.BlobStore
var _ interfaces.BlobStore = (*Store)(nil)

// Store keeps blobs in a Go CDK bucket. Writes are atomic in every driver:
// a reader sees either no object or the complete object with its attributes.
type Store struct {
	bucket        *gcblob.Bucket
	publicBaseURL string
	logger        *zap.Logger
}

// NewStore wraps an open bucket; Close closes it
func NewStore(bucket *gcblob.Bucket, publicBaseURL string, logger *zap.Logger) *Store {
	return &Store{
		bucket:        bucket,
		publicBaseURL: publicBaseURL,
		logger:        logger,
	}
}

// OpenDir opens a file-backed bucket rooted at dir, creating it if needed
func OpenDir(dir, publicBaseURL string, logger *zap.Logger) (*Store, error) {
	bucket, err := fileblob.OpenBucket(dir, &fileblob.Options{CreateDir: true, NoTempDir: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open blob directory %s: %w", dir, err)
	}
	return NewStore(bucket, publicBaseURL, logger), nil
}

// OpenURL opens a bucket by URL, e.g. file:///var/lib/blobs or mem://
func OpenURL(ctx context.Context, bucketURL, publicBaseURL string, logger *zap.Logger) (*Store, error) {
	bucket, err := gcblob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open blob bucket %s: %w", bucketURL, err)
	}
	return NewStore(bucket, publicBaseURL, logger), nil
}

// Close releases the bucket
func (s *Store) Close() error {
	return s.bucket.Close()
}

// Exists reports whether the object was completely written
func (s *Store) Exists(ctx context.Context, p string) (bool, error) {
	key, err := blob.CleanPath(p)
	if err != nil {
		return false, err
	}

	exists, err := s.bucket.Exists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("failed to check blob %s: %w", p, err)
	}
	return exists, nil
}

// Get reads the object with its content type and visibility
func (s *Store) Get(ctx context.Context, p string) ([]byte, string, bool, error) {
	key, err := blob.CleanPath(p)
	if err != nil {
		return nil, "", false, err
	}

	attrs, err := s.bucket.Attributes(ctx, key)
	if gcerrors.Code(err) == gcerrors.NotFound {
		return nil, "", false, blob.ErrNotFound
	}
	if err != nil {
		return nil, "", false, fmt.Errorf("failed to read blob attributes %s: %w", p, err)
	}

	data, err := s.bucket.ReadAll(ctx, key)
	if gcerrors.Code(err) == gcerrors.NotFound {
		return nil, "", false, blob.ErrNotFound
	}
	if err != nil {
		return nil, "", false, fmt.Errorf("failed to read blob %s: %w", p, err)
	}

	public, _ := strconv.ParseBool(attrs.Metadata[publicReadKey])
	return data, attrs.ContentType, public, nil
}

// Put writes the object; the last writer wins
func (s *Store) Put(ctx context.Context, p string, data []byte, contentType string, publicRead bool) error {
	key, err := blob.CleanPath(p)
	if err != nil {
		return err
	}

	opts := &gcblob.WriterOptions{
		ContentType: contentType,
		Metadata:    map[string]string{publicReadKey: strconv.FormatBool(publicRead)},
	}
	if err := s.bucket.WriteAll(ctx, key, data, opts); err != nil {
		return fmt.Errorf("failed to write blob %s: %w", p, err)
	}

	s.logger.Debug("Stored blob", zap.String("path", p), zap.Int("bytes", len(data)))
	return nil
}

// PublicURL returns the URL the object is served from
func (s *Store) PublicURL(p string) string {
	return blob.JoinURL(s.publicBaseURL, p)
}
