package memory

import (
	"context"
	"sync"

	"go-upstream-guard/internal/interfaces"
	"go-upstream-guard/internal/models"
)

// Ensure Store implements interfaces.DocumentStore
var _ interfaces.DocumentStore = (*Store)(nil)

// Store is a process-local document store. Transactions are serialized by a
// single lock, which makes them trivially atomic and isolated.
type Store struct {
	mu   sync.Mutex
	docs map[string]map[string]models.Document
}

// NewStore creates an empty in-memory store
func NewStore() *Store {
	return &Store{docs: make(map[string]map[string]models.Document)}
}

// Get returns a copy of the document
func (s *Store) Get(ctx context.Context, collection, id string) (models.Document, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[collection][id]
	if !ok {
		return nil, false, nil
	}
	return doc.Clone(), true, nil
}

// Set writes or merges the document
func (s *Store) Set(ctx context.Context, collection, id string, fields models.Document, merge bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.write(collection, id, fields, merge)
	return nil
}

// RunTransaction runs fn holding the store lock and applies its writes only when fn succeeds
func (s *Store) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx interfaces.Transaction) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{store: s, pending: make(map[docKey]pendingWrite)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, key := range tx.order {
		w := tx.pending[key]
		s.docs[key.collection] = ensureCollection(s.docs[key.collection])
		s.docs[key.collection][key.id] = w.doc
	}
	return nil
}

func (s *Store) write(collection, id string, fields models.Document, merge bool) {
	coll := ensureCollection(s.docs[collection])
	s.docs[collection] = coll

	if existing, ok := coll[id]; ok && merge {
		coll[id] = existing.Merge(fields)
		return
	}
	coll[id] = fields.Clone()
}

func ensureCollection(coll map[string]models.Document) map[string]models.Document {
	if coll == nil {
		return make(map[string]models.Document)
	}
	return coll
}

type docKey struct {
	collection string
	id         string
}

type pendingWrite struct {
	doc models.Document
}

// transaction buffers writes; it is only used while the store lock is held
type transaction struct {
	store   *Store
	pending map[docKey]pendingWrite
	order   []docKey
}

func (t *transaction) Get(collection, id string) (models.Document, bool, error) {
	if w, ok := t.pending[docKey{collection, id}]; ok {
		return w.doc.Clone(), true, nil
	}

	doc, ok := t.store.docs[collection][id]
	if !ok {
		return nil, false, nil
	}
	return doc.Clone(), true, nil
}

func (t *transaction) Set(collection, id string, fields models.Document, merge bool) {
	key := docKey{collection, id}

	doc := fields.Clone()
	if merge {
		if current, ok, _ := t.Get(collection, id); ok {
			doc = current.Merge(fields)
		}
	}

	if _, seen := t.pending[key]; !seen {
		t.order = append(t.order, key)
	}
	t.pending[key] = pendingWrite{doc: doc}
}
