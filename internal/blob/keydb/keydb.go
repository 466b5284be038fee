package keydb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"go-upstream-guard/internal/blob"
	"go-upstream-guard/internal/interfaces"
)

// Ensure Store implements interfaces.BlobStore
var _ interfaces.BlobStore = (*Store)(nil)

// Store keeps blobs in KeyDB as one JSON value per object
type Store struct {
	client        interfaces.KeyDbClient
	prefix        string
	publicBaseURL string
	logger        *zap.Logger
}

type object struct {
	ContentType string `json:"content_type"`
	PublicRead  bool   `json:"public_read"`
	Data        []byte `json:"data"`
}

// NewStore creates a blob store on top of a KeyDB client
func NewStore(client interfaces.KeyDbClient, prefix, publicBaseURL string, logger *zap.Logger) *Store {
	return &Store{
		client:        client,
		prefix:        prefix,
		publicBaseURL: publicBaseURL,
		logger:        logger,
	}
}

func (s *Store) key(p string) (string, error) {
	clean, err := blob.CleanPath(p)
	if err != nil {
		return "", err
	}
	return s.prefix + "blob:" + clean, nil
}

func (s *Store) Exists(ctx context.Context, p string) (bool, error) {
	key, err := s.key(p)
	if err != nil {
		return false, err
	}

	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check blob %s: %w", p, err)
	}
	return n > 0, nil
}

func (s *Store) Get(ctx context.Context, p string) ([]byte, string, bool, error) {
	key, err := s.key(p)
	if err != nil {
		return nil, "", false, err
	}

	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, "", false, blob.ErrNotFound
	}
	if err != nil {
		return nil, "", false, fmt.Errorf("failed to get blob %s: %w", p, err)
	}

	var obj object
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, "", false, fmt.Errorf("failed to decode blob %s: %w", p, err)
	}
	return obj.Data, obj.ContentType, obj.PublicRead, nil
}

func (s *Store) Put(ctx context.Context, p string, data []byte, contentType string, publicRead bool) error {
	key, err := s.key(p)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(object{ContentType: contentType, PublicRead: publicRead, Data: data})
	if err != nil {
		return fmt.Errorf("failed to encode blob %s: %w", p, err)
	}

	if err := s.client.Set(ctx, key, raw, 0).Err(); err != nil {
		return fmt.Errorf("failed to put blob %s: %w", p, err)
	}

	s.logger.Debug("Stored blob", zap.String("path", p), zap.Int("bytes", len(data)))
	return nil
}

func (s *Store) PublicURL(p string) string {
	return blob.JoinURL(s.publicBaseURL, p)
}
