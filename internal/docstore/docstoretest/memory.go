// Package docstoretest provides an in-memory docstore.Store for tests.
package docstoretest

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"sync"

	"github.com/food-orders/foodorders/internal/docstore"
)

type document struct {
	seq  int64
	data json.RawMessage
}

// Memory is a concurrency-safe in-memory Store with failure injection.
type Memory struct {
	mu       sync.Mutex
	docs     map[string]map[string]document
	seq      int64
	nextID   int64
	failures map[string]error
	finds    []docstore.Query
}

// New returns an empty Memory store.
func New() *Memory {
	return &Memory{
		docs:     make(map[string]map[string]document),
		failures: make(map[string]error),
	}
}

// Fail makes every operation on collection return err. A nil err clears it.
func (m *Memory) Fail(collection string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, collection)
		return
	}
	m.failures[collection] = err
}

// Finds returns the queries executed so far.
func (m *Memory) Finds() []docstore.Query {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]docstore.Query, len(m.finds))
	copy(out, m.finds)
	return out
}

// Count returns the number of documents in collection.
func (m *Memory) Count(collection string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs[collection])
}

// MustSet stores doc and panics on failure. Intended for fixtures.
func (m *Memory) MustSet(collection, id string, doc any) {
	if err := m.Set(context.Background(), collection, id, doc); err != nil {
		panic(err)
	}
}

// Find implements docstore.Finder.
func (m *Memory) Find(ctx context.Context, q docstore.Query) ([]docstore.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finds = append(m.finds, q)
	if err := m.failure(q.Collection); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type hit struct {
		id     string
		doc    document
		fields map[string]any
	}
	var hits []hit
	for id, doc := range m.docs[q.Collection] {
		var fields map[string]any
		if err := json.Unmarshal(doc.data, &fields); err != nil {
			return nil, err
		}
		if matches(fields, q.Filters) {
			hits = append(hits, hit{id: id, doc: doc, fields: fields})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if q.OrderBy != "" {
			c := compare(hits[i].fields[q.OrderBy], hits[j].fields[q.OrderBy])
			if c != 0 {
				if q.Desc {
					return c > 0
				}
				return c < 0
			}
			return hits[i].id < hits[j].id
		}
		return hits[i].doc.seq < hits[j].doc.seq
	})
	if q.Limit > 0 && len(hits) > q.Limit {
		hits = hits[:q.Limit]
	}
	records := make([]docstore.Record, 0, len(hits))
	for _, h := range hits {
		records = append(records, docstore.Record{ID: h.id, Data: h.doc.data})
	}
	return records, nil
}

// Get implements docstore.Store.
func (m *Memory) Get(ctx context.Context, collection, id string) (docstore.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure(collection); err != nil {
		return docstore.Record{}, err
	}
	doc, ok := m.docs[collection][id]
	if !ok {
		return docstore.Record{}, docstore.ErrNotFound
	}
	return docstore.Record{ID: id, Data: doc.data}, nil
}

// Add implements docstore.Store.
func (m *Memory) Add(ctx context.Context, collection string, doc any) (string, error) {
	m.mu.Lock()
	m.nextID++
	id := collection + "-" + strconv.FormatInt(m.nextID, 10)
	m.mu.Unlock()
	if err := m.Set(ctx, collection, id, doc); err != nil {
		return "", err
	}
	return id, nil
}

// Set implements docstore.Store.
func (m *Memory) Set(ctx context.Context, collection, id string, doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	if len(data) == 0 || data[0] != '{' {
		return fmt.Errorf("%w: document must be a JSON object", docstore.ErrInvalidQuery)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure(collection); err != nil {
		return err
	}
	if m.docs[collection] == nil {
		m.docs[collection] = make(map[string]document)
	}
	seq := m.docs[collection][id].seq
	if seq == 0 {
		m.seq++
		seq = m.seq
	}
	m.docs[collection][id] = document{seq: seq, data: data}
	return nil
}

// Update implements docstore.Store.
func (m *Memory) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure(collection); err != nil {
		return err
	}
	doc, ok := m.docs[collection][id]
	if !ok {
		return docstore.ErrNotFound
	}
	var current map[string]any
	if err := json.Unmarshal(doc.data, &current); err != nil {
		return err
	}
	for k, v := range fields {
		current[k] = v
	}
	data, err := json.Marshal(current)
	if err != nil {
		return err
	}
	m.docs[collection][id] = document{seq: doc.seq, data: data}
	return nil
}

// Delete implements docstore.Store.
func (m *Memory) Delete(ctx context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure(collection); err != nil {
		return err
	}
	delete(m.docs[collection], id)
	return nil
}

// RunInTx runs fn and restores the previous contents when it fails.
func (m *Memory) RunInTx(ctx context.Context, fn func(ctx context.Context, tx docstore.Store) error) error {
	m.mu.Lock()
	snapshot := make(map[string]map[string]document, len(m.docs))
	for collection, docs := range m.docs {
		cp := make(map[string]document, len(docs))
		for id, doc := range docs {
			cp[id] = doc
		}
		snapshot[collection] = cp
	}
	m.mu.Unlock()

	if err := fn(ctx, m); err != nil {
		m.mu.Lock()
		m.docs = snapshot
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *Memory) failure(collection string) error {
	return m.failures[collection]
}

func matches(fields map[string]any, filters []docstore.Filter) bool {
	for _, f := range filters {
		want, err := normalize(f.Value)
		if err != nil {
			return false
		}
		if !reflect.DeepEqual(fields[f.Field], want) {
			return false
		}
	}
	return true
}

func normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	err = json.Unmarshal(data, &out)
	return out, err
}

func compare(a, b any) int {
	switch av := a.(type) {
	case float64:
		if bv, ok := b.(float64); ok {
			switch {
			case av < bv:
				return -1
			case av > bv:
				return 1
			}
			return 0
		}
	case string:
		if bv, ok := b.(string); ok {
			switch {
			case av < bv:
				return -1
			case av > bv:
				return 1
			}
			return 0
		}
	}
	return 0
}

var _ docstore.Store = (*Memory)(nil)
