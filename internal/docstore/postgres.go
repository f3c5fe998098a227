package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/food-orders/foodorders/internal/platform/db"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres stores documents as JSONB rows in a single table.
type Postgres struct {
	pool *pgxpool.Pool
	q    querier
}

// NewPostgres constructs a Store backed by pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool, q: pool}
}

// Find returns the documents matching q.
func (s *Postgres) Find(ctx context.Context, q Query) ([]Record, error) {
	sql, args, err := buildFind(q)
	if err != nil {
		return nil, err
	}
	rows, err := s.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("docstore: find %s: %w", q.Collection, err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			id   string
			data []byte
		)
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("docstore: scan %s: %w", q.Collection, err)
		}
		records = append(records, Record{ID: id, Data: json.RawMessage(data)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("docstore: find %s: %w", q.Collection, err)
	}
	return records, nil
}

// Get fetches a document by id.
func (s *Postgres) Get(ctx context.Context, collection, id string) (Record, error) {
	if !validIdent(collection) {
		return Record{}, fmt.Errorf("%w: collection %q", ErrInvalidQuery, collection)
	}
	var data []byte
	err := s.q.QueryRow(ctx, `SELECT data FROM documents WHERE collection = $1 AND id = $2`, collection, id).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("docstore: get %s/%s: %w", collection, id, err)
	}
	return Record{ID: id, Data: json.RawMessage(data)}, nil
}

// Add inserts doc under a generated id.
func (s *Postgres) Add(ctx context.Context, collection string, doc any) (string, error) {
	id := uuid.NewString()
	if err := s.insert(ctx, collection, id, doc, false); err != nil {
		return "", err
	}
	return id, nil
}

// Set writes doc under id, replacing any existing document.
func (s *Postgres) Set(ctx context.Context, collection, id string, doc any) error {
	return s.insert(ctx, collection, id, doc, true)
}

func (s *Postgres) insert(ctx context.Context, collection, id string, doc any, replace bool) error {
	if !validIdent(collection) || id == "" {
		return fmt.Errorf("%w: %s/%s", ErrInvalidQuery, collection, id)
	}
	data, err := marshalObject(doc)
	if err != nil {
		return err
	}
	sql := `INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3::jsonb)`
	if replace {
		sql += ` ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()`
	}
	if _, err := s.q.Exec(ctx, sql, collection, id, string(data)); err != nil {
		return fmt.Errorf("docstore: write %s/%s: %w", collection, id, err)
	}
	return nil
}

// Update merges fields into an existing document.
func (s *Postgres) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	if !validIdent(collection) {
		return fmt.Errorf("%w: collection %q", ErrInvalidQuery, collection)
	}
	for field := range fields {
		if !validIdent(field) {
			return fmt.Errorf("%w: field %q", ErrInvalidQuery, field)
		}
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("docstore: encode update %s/%s: %w", collection, id, err)
	}
	tag, err := s.q.Exec(ctx, `UPDATE documents SET data = data || $3::jsonb, updated_at = NOW() WHERE collection = $1 AND id = $2`, collection, id, string(data))
	if err != nil {
		return fmt.Errorf("docstore: update %s/%s: %w", collection, id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a document. Deleting a missing document is not an error.
func (s *Postgres) Delete(ctx context.Context, collection, id string) error {
	if !validIdent(collection) {
		return fmt.Errorf("%w: collection %q", ErrInvalidQuery, collection)
	}
	if _, err := s.q.Exec(ctx, `DELETE FROM documents WHERE collection = $1 AND id = $2`, collection, id); err != nil {
		return fmt.Errorf("docstore: delete %s/%s: %w", collection, id, err)
	}
	return nil
}

// RunInTx executes fn against a transactional view of the store.
func (s *Postgres) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	if s.pool == nil {
		return fn(ctx, s)
	}
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(ctx, &Postgres{q: tx})
	})
}

func marshalObject(doc any) ([]byte, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("docstore: encode: %w", err)
	}
	if !bytes.HasPrefix(bytes.TrimSpace(data), []byte("{")) {
		return nil, fmt.Errorf("%w: document must be a JSON object", ErrInvalidQuery)
	}
	return data, nil
}

var _ Store = (*Postgres)(nil)
