// Package session keeps the resolved role of each browser session in sync
// with the auth service. A Store subscribes to the principal changes of one
// browser session and re-resolves the role every time the principal changes.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/food-orders/foodorders/internal/identity"
	"github.com/food-orders/foodorders/internal/roles"
)

// ErrClosed is returned by Settled once the store has been closed.
var ErrClosed = errors.New("session: store closed")

// Source delivers auth state changes for a browser session.
type Source interface {
	OnAuthStateChanged(ctx context.Context, sid string, fn func(*identity.Principal)) (func(), error)
}

// Resolver maps an email to a role.
type Resolver interface {
	Resolve(ctx context.Context, email string) (roles.Role, error)
}

// Observer receives resolution outcomes.
type Observer interface {
	ObserveResolution(role roles.Role, err error)
}

// State is a snapshot of a browser session.
type State struct {
	Principal *identity.Principal
	Role      roles.Role
	Loading   bool
	Err       error
}

// Unresolved reports whether the role is not known yet.
func (s State) Unresolved() bool {
	return s.Loading
}

// Failed reports whether the last resolution failed.
func (s State) Failed() bool {
	return !s.Loading && s.Err != nil
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithObserver reports resolution outcomes to o.
func WithObserver(o Observer) Option {
	return func(s *Store) {
		s.observer = o
	}
}

// Store holds the state of one browser session.
type Store struct {
	sid      string
	resolver Resolver
	logger   *slog.Logger
	observer Observer

	base     context.Context
	stopBase context.CancelFunc

	mu          sync.Mutex
	state       State
	generation  uint64
	cancel      context.CancelFunc
	changed     chan struct{}
	closed      bool
	unsubscribe func()
	lastUsed    time.Time
	inflight    sync.WaitGroup
}

// Open subscribes a new Store to the auth state of sid. The initial state
// loaded by source is applied before Open returns.
func Open(ctx context.Context, sid string, source Source, resolver Resolver, opts ...Option) (*Store, error) {
	base, stop := context.WithCancel(context.WithoutCancel(ctx))
	s := &Store{
		sid:      sid,
		resolver: resolver,
		logger:   slog.Default(),
		base:     base,
		stopBase: stop,
		state:    State{Loading: true},
		changed:  make(chan struct{}),
		lastUsed: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	unsubscribe, err := source.OnAuthStateChanged(ctx, sid, s.handle)
	if err != nil {
		stop()
		return nil, err
	}
	s.mu.Lock()
	s.unsubscribe = unsubscribe
	s.mu.Unlock()
	return s, nil
}

// ID returns the browser session id.
func (s *Store) ID() string {
	return s.sid
}

// State returns the current snapshot.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUsed = time.Now()
	return s.state
}

// Settled blocks until the role is resolved or has failed. On ctx expiry it
// returns the latest snapshot together with the context error.
func (s *Store) Settled(ctx context.Context) (State, error) {
	for {
		s.mu.Lock()
		s.lastUsed = time.Now()
		state, changed, closed := s.state, s.changed, s.closed
		s.mu.Unlock()
		if closed {
			return state, ErrClosed
		}
		if !state.Loading {
			return state, nil
		}
		select {
		case <-ctx.Done():
			return state, ctx.Err()
		case <-changed:
		}
	}
}

// Retry re-runs the resolution for the current principal after a failure.
// It reports whether a new resolution was started.
func (s *Store) Retry() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.state.Failed() || s.state.Principal == nil {
		return false
	}
	s.begin(s.state.Principal)
	return true
}

// Close unsubscribes from the auth service and cancels in-flight work. No
// state change is applied afterwards. Close is idempotent.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.generation++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	close(s.changed)
	s.changed = make(chan struct{})
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	s.stopBase()
	s.inflight.Wait()
}

func (s *Store) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

func (s *Store) handle(p *identity.Principal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if p == nil {
		s.generation++
		if s.cancel != nil {
			s.cancel()
			s.cancel = nil
		}
		s.set(State{Role: roles.LoggedOut})
		return
	}
	principal := *p
	s.begin(&principal)
}

// begin starts a resolution for p. Callers hold s.mu.
func (s *Store) begin(p *identity.Principal) {
	s.generation++
	if s.cancel != nil {
		s.cancel()
	}
	ctx, cancel := context.WithCancel(s.base)
	s.cancel = cancel
	s.set(State{Principal: p, Loading: true})

	generation := s.generation
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer cancel()
		role, err := s.resolver.Resolve(ctx, p.Email)
		s.apply(generation, p, role, err)
	}()
}

func (s *Store) apply(generation uint64, p *identity.Principal, role roles.Role, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || generation != s.generation {
		return
	}
	s.cancel = nil
	if s.observer != nil {
		s.observer.ObserveResolution(role, err)
	}
	if err != nil {
		s.logger.Warn("resolve role", slog.String("email", p.Email), slog.Any("error", err))
		s.set(State{Principal: p, Err: err})
		return
	}
	s.set(State{Principal: p, Role: role})
}

// set replaces the state and wakes Settled waiters. Callers hold s.mu.
func (s *Store) set(state State) {
	s.state = state
	close(s.changed)
	s.changed = make(chan struct{})
}
