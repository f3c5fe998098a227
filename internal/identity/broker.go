package identity

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const stateChannel = "auth:state"

type stateMessage struct {
	SessionID string     `json:"sid"`
	Principal *Principal `json:"principal"`
	Origin    string     `json:"origin"`
}

// Broker fans auth state changes out to the subscribers of each browser
// session. Local delivery is synchronous; changes are mirrored on a Redis
// channel so subscribers held by other processes observe them as well.
type Broker struct {
	mu     sync.Mutex
	subs   map[string]map[uint64]func(*Principal)
	locks  map[string]*sessionLock
	next   uint64
	client *redis.Client
	origin string
	logger *slog.Logger
}

// sessionLock orders the changes of one browser session. refs counts the
// holders and waiters so idle locks can be forgotten.
type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// NewBroker constructs a Broker. client may be nil for single-process use.
func NewBroker(client *redis.Client, logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		subs:   make(map[string]map[uint64]func(*Principal)),
		locks:  make(map[string]*sessionLock),
		client: client,
		origin: uuid.NewString(),
		logger: logger,
	}
}

// lock serializes work on sid and returns the matching unlock.
func (b *Broker) lock(sid string) func() {
	b.mu.Lock()
	l := b.locks[sid]
	if l == nil {
		l = &sessionLock{}
		b.locks[sid] = l
	}
	l.refs++
	b.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		b.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(b.locks, sid)
		}
		b.mu.Unlock()
	}
}

// subscribe registers fn for sid and delivers the current state loaded by
// current before returning. Loading, registration and the initial delivery
// hold the lock of sid, so a concurrent change is delivered after it.
func (b *Broker) subscribe(sid string, fn func(*Principal), current func() (*Principal, error)) (func(), error) {
	unlock := b.lock(sid)
	defer unlock()

	p, err := current()
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	b.next++
	id := b.next
	if b.subs[sid] == nil {
		b.subs[sid] = make(map[uint64]func(*Principal))
	}
	b.subs[sid][id] = fn
	b.mu.Unlock()
	fn(p)

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs[sid], id)
			if len(b.subs[sid]) == 0 {
				delete(b.subs, sid)
			}
		})
	}, nil
}

// update applies write and announces p as one step per sid: subscribers see
// changes of a session in the order they were written.
func (b *Broker) update(ctx context.Context, sid string, p *Principal, write func(context.Context) error) error {
	unlock := b.lock(sid)
	defer unlock()

	if err := write(ctx); err != nil {
		return err
	}
	b.dispatch(sid, p)
	b.publish(ctx, sid, p)
	return nil
}

func (b *Broker) publish(ctx context.Context, sid string, p *Principal) {
	if b.client == nil {
		return
	}
	payload, err := json.Marshal(stateMessage{SessionID: sid, Principal: p, Origin: b.origin})
	if err != nil {
		b.logger.Error("encode auth state", slog.Any("error", err))
		return
	}
	if err := b.client.Publish(ctx, stateChannel, payload).Err(); err != nil {
		b.logger.Warn("publish auth state", slog.Any("error", err))
	}
}

// dispatch delivers p to the local subscribers of sid. Callers hold the lock
// of sid; subscribers run outside the broker mutex.
func (b *Broker) dispatch(sid string, p *Principal) {
	b.mu.Lock()
	fns := make([]func(*Principal), 0, len(b.subs[sid]))
	for _, fn := range b.subs[sid] {
		fns = append(fns, fn)
	}
	b.mu.Unlock()
	for _, fn := range fns {
		fn(p)
	}
}

// Subscribers returns the number of live subscriptions for sid.
func (b *Broker) Subscribers(sid string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[sid])
}

// Listen relays state changes published by other processes until ctx is done.
func (b *Broker) Listen(ctx context.Context) error {
	if b.client == nil {
		<-ctx.Done()
		return nil
	}
	pubsub := b.client.Subscribe(ctx, stateChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var m stateMessage
				if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
					b.logger.Warn("decode auth state", slog.Any("error", err))
					continue
				}
				if m.Origin == b.origin || m.SessionID == "" {
					continue
				}
				unlock := b.lock(m.SessionID)
				b.dispatch(m.SessionID, m.Principal)
				unlock()
			}
		}
	}()
	return nil
}
