package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrRegistryClosed is returned by Get after Close.
var ErrRegistryClosed = errors.New("session: registry closed")

// Gauge tracks the number of live stores.
type Gauge interface {
	SetLiveStores(n int)
}

// RegistryConfig tunes a Registry.
type RegistryConfig struct {
	IdleTTL  time.Duration
	Observer Observer
	Gauge    Gauge
}

// Registry owns one Store per browser session id.
type Registry struct {
	source   Source
	resolver Resolver
	cfg      RegistryConfig
	logger   *slog.Logger

	group  singleflight.Group
	mu     sync.Mutex
	stores map[string]*Store
	closed bool
}

// NewRegistry constructs a Registry.
func NewRegistry(source Source, resolver Resolver, cfg RegistryConfig, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 30 * time.Minute
	}
	return &Registry{
		source:   source,
		resolver: resolver,
		cfg:      cfg,
		logger:   logger,
		stores:   make(map[string]*Store),
	}
}

// Get returns the store of sid, opening it on first use.
func (r *Registry) Get(ctx context.Context, sid string) (*Store, error) {
	if store, ok, err := r.lookup(sid); ok || err != nil {
		return store, err
	}
	v, err, _ := r.group.Do(sid, func() (any, error) {
		if store, ok, err := r.lookup(sid); ok || err != nil {
			return store, err
		}
		opts := []Option{WithLogger(r.logger.With(slog.String("sid", sid)))}
		if r.cfg.Observer != nil {
			opts = append(opts, WithObserver(r.cfg.Observer))
		}
		store, err := Open(ctx, sid, r.source, r.resolver, opts...)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			store.Close()
			return nil, ErrRegistryClosed
		}
		r.stores[sid] = store
		n := len(r.stores)
		r.mu.Unlock()
		r.report(n)
		return store, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Store), nil
}

// Drop closes and forgets the store of sid, if any.
func (r *Registry) Drop(sid string) {
	r.mu.Lock()
	store, ok := r.stores[sid]
	delete(r.stores, sid)
	n := len(r.stores)
	r.mu.Unlock()
	if ok {
		store.Close()
		r.report(n)
	}
}

// Len returns the number of live stores.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stores)
}

// Evict closes stores unused since before cutoff and returns how many were closed.
func (r *Registry) Evict(cutoff time.Time) int {
	r.mu.Lock()
	var idle []*Store
	for sid, store := range r.stores {
		if store.idleSince().Before(cutoff) {
			idle = append(idle, store)
			delete(r.stores, sid)
		}
	}
	n := len(r.stores)
	r.mu.Unlock()

	for _, store := range idle {
		store.Close()
	}
	if len(idle) > 0 {
		r.report(n)
		r.logger.Debug("evicted idle session stores", slog.Int("count", len(idle)))
	}
	return len(idle)
}

// Run evicts idle stores periodically until ctx is done.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.IdleTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.Evict(now.Add(-r.cfg.IdleTTL))
		}
	}
}

// Close closes every store. Subsequent Get calls fail.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	stores := r.stores
	r.stores = make(map[string]*Store)
	r.mu.Unlock()
	for _, store := range stores {
		store.Close()
	}
	r.report(0)
}

func (r *Registry) lookup(sid string) (*Store, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, false, ErrRegistryClosed
	}
	store, ok := r.stores[sid]
	return store, ok, nil
}

func (r *Registry) report(n int) {
	if r.cfg.Gauge != nil {
		r.cfg.Gauge.SetLiveStores(n)
	}
}
