package keydb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"go-upstream-guard/internal/interfaces"
	"go-upstream-guard/internal/models"
)

const (
	// maxTxAttempts and maxTxElapsed bound optimistic retries of one RunTransaction call
	maxTxAttempts = 200
	maxTxElapsed  = 10 * time.Second
)

// newTxBackOff spreads retries of conflicting transactions so a hot key drains
func newTxBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Millisecond
	b.MaxInterval = 100 * time.Millisecond
	b.RandomizationFactor = 0.5
	return b
}

// Ensure Store implements interfaces.DocumentStore
var _ interfaces.DocumentStore = (*Store)(nil)

// Store keeps JSON documents in KeyDB. Transactions use WATCH/MULTI/EXEC:
// every key read inside a transaction is watched and the buffered writes are
// committed in one MULTI block, retried when a watched key changed.
type Store struct {
	client     interfaces.KeyDbClient
	prefix     string
	newBackOff func() backoff.BackOff
	logger     *zap.Logger
}

// NewStore creates a document store on top of a KeyDB client
func NewStore(client interfaces.KeyDbClient, prefix string, logger *zap.Logger) *Store {
	return &Store{
		client:     client,
		prefix:     prefix,
		newBackOff: newTxBackOff,
		logger:     logger,
	}
}

func (s *Store) key(collection, id string) string {
	return fmt.Sprintf("%sdoc:%s/%s", s.prefix, collection, id)
}

// Get reads a document
func (s *Store) Get(ctx context.Context, collection, id string) (models.Document, bool, error) {
	data, err := s.client.Get(ctx, s.key(collection, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get document %s/%s: %w", collection, id, err)
	}

	doc, err := decode(data)
	if err != nil {
		return nil, false, fmt.Errorf("document %s/%s: %w", collection, id, err)
	}
	return doc, true, nil
}

// Set writes a document; a merge write is a read-modify-write transaction
func (s *Store) Set(ctx context.Context, collection, id string, fields models.Document, merge bool) error {
	if merge {
		return s.RunTransaction(ctx, func(ctx context.Context, tx interfaces.Transaction) error {
			tx.Set(collection, id, fields, true)
			return nil
		})
	}

	data, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to encode document %s/%s: %w", collection, id, err)
	}
	if err := s.client.Set(ctx, s.key(collection, id), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set document %s/%s: %w", collection, id, err)
	}
	return nil
}

// RunTransaction runs fn with optimistic locking, retrying on contention with
// jittered backoff. Exhausted retries return an error wrapping interfaces.ErrContention.
func (s *Store) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx interfaces.Transaction) error) error {
	attempts := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		err := s.client.Watch(ctx, func(rtx *redis.Tx) error {
			tx := &transaction{
				ctx:     ctx,
				store:   s,
				rtx:     rtx,
				pending: make(map[string]models.Document),
			}

			if err := fn(ctx, tx); err != nil {
				return err
			}
			if tx.err != nil {
				return tx.err
			}
			return tx.commit()
		})

		if errors.Is(err, redis.TxFailedErr) {
			s.logger.Debug("KeyDB transaction conflict, retrying", zap.Int("attempt", attempts))
			return struct{}{}, err
		}
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, nil
	},
		backoff.WithBackOff(s.newBackOff()),
		backoff.WithMaxTries(maxTxAttempts),
		backoff.WithMaxElapsedTime(maxTxElapsed),
	)

	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("keydb store: %w after %d attempts", interfaces.ErrContention, attempts)
	}
	return err
}

type transaction struct {
	ctx     context.Context
	store   *Store
	rtx     *redis.Tx
	pending map[string]models.Document
	order   []string
	// err records a failure inside Set, which has no error return
	err error
}

func (t *transaction) Get(collection, id string) (models.Document, bool, error) {
	key := t.store.key(collection, id)
	if doc, ok := t.pending[key]; ok {
		return doc.Clone(), true, nil
	}

	if err := t.rtx.Watch(t.ctx, key).Err(); err != nil {
		return nil, false, fmt.Errorf("failed to watch %s: %w", key, err)
	}

	data, err := t.rtx.Get(t.ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get document %s/%s: %w", collection, id, err)
	}

	doc, err := decode(data)
	if err != nil {
		return nil, false, err
	}
	return doc, true, nil
}

func (t *transaction) Set(collection, id string, fields models.Document, merge bool) {
	key := t.store.key(collection, id)

	doc := fields.Clone()
	if merge {
		current, ok, err := t.Get(collection, id)
		if err != nil {
			t.err = err
			return
		}
		if ok {
			doc = current.Merge(fields)
		}
	}

	if _, seen := t.pending[key]; !seen {
		t.order = append(t.order, key)
	}
	t.pending[key] = doc
}

func (t *transaction) commit() error {
	if len(t.order) == 0 {
		return nil
	}

	payloads := make(map[string][]byte, len(t.order))
	for _, key := range t.order {
		data, err := json.Marshal(t.pending[key])
		if err != nil {
			return fmt.Errorf("failed to encode document %s: %w", key, err)
		}
		payloads[key] = data
	}

	_, err := t.rtx.TxPipelined(t.ctx, func(pipe redis.Pipeliner) error {
		for _, key := range t.order {
			pipe.Set(t.ctx, key, payloads[key], 0)
		}
		return nil
	})
	return err
}

func decode(data []byte) (models.Document, error) {
	var doc models.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return doc, nil
}
