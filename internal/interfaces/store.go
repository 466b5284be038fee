package interfaces

import (
	"context"
	"errors"

	"go-upstream-guard/internal/models"
)

//go:generate mockgen -package=mock -source=store.go -destination=mock/store.go

// ErrContention is returned by RunTransaction when the transaction kept
// conflicting with concurrent writers until its retry budget ran out.
// Nothing was committed.
var ErrContention = errors.New("transaction aborted after repeated contention")

// DocumentStore is the durable document store shared by every process
type DocumentStore interface {
	// Get returns the document and whether it exists
	Get(ctx context.Context, collection, id string) (models.Document, bool, error)
	// Set writes fields; with merge the fields are merged into the existing document
	Set(ctx context.Context, collection, id string, fields models.Document, merge bool) error
	// RunTransaction runs fn atomically: either every write fn made is committed or none is.
	// fn may be invoked more than once when the store retries on contention; when
	// the retries are exhausted the error wraps ErrContention.
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction is the view of the store inside RunTransaction.
// Reads observe the transaction's own pending writes.
type Transaction interface {
	Get(collection, id string) (models.Document, bool, error)
	Set(collection, id string, fields models.Document, merge bool)
}

// BlobStore is the durable binary object store
type BlobStore interface {
	Exists(ctx context.Context, path string) (bool, error)
	// Get returns the object bytes, its content type and whether it is publicly readable
	Get(ctx context.Context, path string) (data []byte, contentType string, publicRead bool, err error)
	Put(ctx context.Context, path string, data []byte, contentType string, publicRead bool) error
	PublicURL(path string) string
}
