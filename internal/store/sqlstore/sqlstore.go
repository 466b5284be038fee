package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"go-upstream-guard/internal/interfaces"
	"go-upstream-guard/internal/models"
)

const (
	createDocumentsTableSQL = `
CREATE TABLE IF NOT EXISTS documents (
    collection VARCHAR(100) NOT NULL,
    id VARCHAR(255) NOT NULL,
    data TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (collection, id)
)`

	// maxTxAttempts and maxTxElapsed bound retries of serialization failures
	maxTxAttempts = 100
	maxTxElapsed  = 10 * time.Second
)

func newTxBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	b.MaxInterval = 200 * time.Millisecond
	b.RandomizationFactor = 0.5
	return b
}

// Ensure Store implements interfaces.DocumentStore
var _ interfaces.DocumentStore = (*Store)(nil)

// Store keeps JSON documents in one SQL table.
// It supports Postgres, MySQL, and SQLite.
type Store struct {
	db         *sql.DB
	dialect    string
	newBackOff func() backoff.BackOff
	logger     *zap.Logger
}

// Open connects with a database/sql driver name (postgres, mysql, sqlite3) and prepares the schema
func Open(driver, dsn string, logger *zap.Logger) (*Store, error) {
	dialect, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}

	if dialect == "sqlite" {
		// sqlite allows one writer; a single connection serializes transactions
		db.SetMaxOpenConns(1)
	}

	store, err := NewStore(db, dialect, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewStore creates a new SQL-based store.
// Supported dialects: "postgres", "mysql", "sqlite".
func NewStore(db *sql.DB, dialect string, logger *zap.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	switch dialect {
	case "postgres", "mysql", "sqlite":
	default:
		return nil, fmt.Errorf("unsupported dialect: %s (supported: postgres, mysql, sqlite)", dialect)
	}

	s := &Store{
		db:         db,
		dialect:    dialect,
		newBackOff: newTxBackOff,
		logger:     logger,
	}

	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

func dialectFor(driver string) (string, error) {
	switch driver {
	case "postgres":
		return "postgres", nil
	case "mysql":
		return "mysql", nil
	case "sqlite3":
		return "sqlite", nil
	default:
		return "", fmt.Errorf("unsupported SQL driver: %s", driver)
	}
}

// initSchema creates the necessary tables.
func (s *Store) initSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, createDocumentsTableSQL); err != nil {
		return fmt.Errorf("failed to create documents table: %w", err)
	}

	return nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Get reads a document
func (s *Store) Get(ctx context.Context, collection, id string) (models.Document, bool, error) {
	return s.get(ctx, s.db, collection, id, false)
}

// Set writes or merges a document
func (s *Store) Set(ctx context.Context, collection, id string, fields models.Document, merge bool) error {
	if merge {
		return s.RunTransaction(ctx, func(ctx context.Context, tx interfaces.Transaction) error {
			tx.Set(collection, id, fields, true)
			return nil
		})
	}
	return s.upsert(ctx, s.db, collection, id, fields)
}

// RunTransaction runs fn in a serializable database transaction, retrying
// serialization failures with jittered backoff. Exhausted retries return an
// error wrapping interfaces.ErrContention.
func (s *Store) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx interfaces.Transaction) error) error {
	attempts := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		err := s.runOnce(ctx, fn)
		if err == nil {
			return struct{}{}, nil
		}
		if !s.isRetryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		s.logger.Debug("SQL transaction conflict, retrying", zap.Int("attempt", attempts), zap.Error(err))
		return struct{}{}, err
	},
		backoff.WithBackOff(s.newBackOff()),
		backoff.WithMaxTries(maxTxAttempts),
		backoff.WithMaxElapsedTime(maxTxElapsed),
	)

	if err != nil && s.isRetryable(err) {
		return fmt.Errorf("sql store: %w after %d attempts: %v", interfaces.ErrContention, attempts, err)
	}
	return err
}

func (s *Store) runOnce(ctx context.Context, fn func(ctx context.Context, tx interfaces.Transaction) error) error {
	opts := &sql.TxOptions{}
	if s.dialect != "sqlite" {
		opts.Isolation = sql.LevelSerializable
	}

	sqlTx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	tx := &transaction{
		ctx:     ctx,
		store:   s,
		tx:      sqlTx,
		pending: make(map[docKey]models.Document),
	}

	if err := fn(ctx, tx); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if tx.err != nil {
		_ = sqlTx.Rollback()
		return tx.err
	}

	for _, key := range tx.order {
		if err := s.upsert(ctx, sqlTx, key.collection, key.id, tx.pending[key]); err != nil {
			_ = sqlTx.Rollback()
			return err
		}
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// isRetryable reports serialization failures, deadlocks and busy SQLite databases
func (s *Store) isRetryable(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1213 || mysqlErr.Number == 1205
	}

	return false
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (s *Store) get(ctx context.Context, q queryer, collection, id string, forUpdate bool) (models.Document, bool, error) {
	query := `SELECT data FROM documents WHERE collection = ? AND id = ?`
	if s.dialect == "postgres" {
		query = `SELECT data FROM documents WHERE collection = $1 AND id = $2`
	}
	if forUpdate && s.dialect != "sqlite" {
		query += ` FOR UPDATE`
	}

	var data string
	err := q.QueryRowContext(ctx, query, collection, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to query document %s/%s: %w", collection, id, err)
	}

	var doc models.Document
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		return nil, false, fmt.Errorf("failed to decode document %s/%s: %w", collection, id, err)
	}
	return doc, true, nil
}

func (s *Store) upsert(ctx context.Context, q queryer, collection, id string, doc models.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document %s/%s: %w", collection, id, err)
	}

	var query string
	switch s.dialect {
	case "postgres":
		query = `
			INSERT INTO documents (collection, id, data, updated_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (collection, id)
			DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at
		`
	case "mysql":
		query = `
			INSERT INTO documents (collection, id, data, updated_at)
			VALUES (?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE data = VALUES(data), updated_at = VALUES(updated_at)
		`
	default:
		query = `INSERT OR REPLACE INTO documents (collection, id, data, updated_at) VALUES (?, ?, ?, ?)`
	}

	if _, err := q.ExecContext(ctx, query, collection, id, string(data), time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to upsert document %s/%s: %w", collection, id, err)
	}
	return nil
}

type docKey struct {
	collection string
	id         string
}

type transaction struct {
	ctx     context.Context
	store   *Store
	tx      *sql.Tx
	pending map[docKey]models.Document
	order   []docKey
	err     error
}

func (t *transaction) Get(collection, id string) (models.Document, bool, error) {
	if doc, ok := t.pending[docKey{collection, id}]; ok {
		return doc.Clone(), true, nil
	}
	return t.store.get(t.ctx, t.tx, collection, id, true)
}

func (t *transaction) Set(collection, id string, fields models.Document, merge bool) {
	key := docKey{collection, id}

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
