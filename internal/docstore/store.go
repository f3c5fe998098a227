// Package docstore is the document database used for every persisted record
// of the application: users, restaurants, dishes, sizes, prices, orders and
// credentials. Documents are JSON objects grouped in named collections.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Collection names shared by the application.
const (
	Users       = "users"
	Restaurants = "restaurants"
	Sizes       = "sizes"
	Dishes      = "dishes"
	Prices      = "prices"
	Orders      = "orders"
	Credentials = "credentials"
)

var (
	// ErrNotFound indicates the document does not exist.
	ErrNotFound = errors.New("docstore: not found")
	// ErrInvalidQuery indicates a malformed collection, field or filter.
	ErrInvalidQuery = errors.New("docstore: invalid query")
)

// Record is a stored document together with its identifier.
type Record struct {
	ID   string
	Data json.RawMessage
}

// Decode unmarshals the document body into dst.
func (r Record) Decode(dst any) error {
	if len(r.Data) == 0 {
		return fmt.Errorf("docstore: decode %s: empty document", r.ID)
	}
	if err := json.Unmarshal(r.Data, dst); err != nil {
		return fmt.Errorf("docstore: decode %s: %w", r.ID, err)
	}
	return nil
}

// Filter is an equality condition on a top-level document field.
type Filter struct {
	Field string
	Value any
}

// Eq builds an equality filter.
func Eq(field string, value any) Filter {
	return Filter{Field: field, Value: value}
}

// Query selects documents of one collection.
type Query struct {
	Collection string
	Filters    []Filter
	OrderBy    string
	Desc       bool
	Limit      int
}

// Where starts a query on collection with the given equality filters.
func Where(collection string, filters ...Filter) Query {
	return Query{Collection: collection, Filters: filters}
}

// Ordered returns a copy of q sorted by field.
func (q Query) Ordered(field string, desc bool) Query {
	q.OrderBy = field
	q.Desc = desc
	return q
}

// Finder runs filtered queries.
type Finder interface {
	Find(ctx context.Context, q Query) ([]Record, error)
}

// Store is the full document store contract.
type Store interface {
	Finder
	Get(ctx context.Context, collection, id string) (Record, error)
	Add(ctx context.Context, collection string, doc any) (string, error)
	Set(ctx context.Context, collection, id string, doc any) error
	Update(ctx context.Context, collection, id string, fields map[string]any) error
	Delete(ctx context.Context, collection, id string) error
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}

// Exists reports whether q matches at least one document.
func Exists(ctx context.Context, f Finder, q Query) (bool, error) {
	q.Limit = 1
	records, err := f.Find(ctx, q)
	if err != nil {
		return false, err
	}
	return len(records) > 0, nil
}
