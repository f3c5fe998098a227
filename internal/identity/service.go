// Package identity is the authentication service: it owns credentials,
// signs browser sessions in and out, and notifies subscribers whenever the
// principal attached to a browser session changes.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/food-orders/foodorders/internal/docstore"
	"github.com/food-orders/foodorders/internal/shared"
)

// Config tunes the Service.
type Config struct {
	SessionTTL  time.Duration
	ResetSecret []byte
	ResetTTL    time.Duration
	HashCost    int
}

// Service implements sign-up, sign-in, sign-out and state notifications.
type Service struct {
	store  docstore.Store
	client *redis.Client
	broker *Broker
	cfg    Config
}

// NewService constructs a Service.
func NewService(store docstore.Store, client *redis.Client, broker *Broker, cfg Config) *Service {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 720 * time.Hour
	}
	if cfg.ResetTTL <= 0 {
		cfg.ResetTTL = time.Hour
	}
	if cfg.HashCost == 0 {
		cfg.HashCost = bcrypt.DefaultCost
	}
	return &Service{store: store, client: client, broker: broker, cfg: cfg}
}

// CreateAccount registers credentials without signing anyone in.
func (s *Service) CreateAccount(ctx context.Context, email, password, displayName string) (Principal, error) {
	email = NormalizeEmail(email)
	if err := checkPassword(password); err != nil {
		return Principal{}, err
	}
	taken, err := docstore.Exists(ctx, s.store, docstore.Where(docstore.Credentials, docstore.Eq("email", email)))
	if err != nil {
		return Principal{}, fmt.Errorf("identity: lookup email: %w", err)
	}
	if taken {
		return Principal{}, ErrEmailTaken
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.HashCost)
	if err != nil {
		return Principal{}, fmt.Errorf("identity: hash password: %w", err)
	}
	id, err := s.store.Add(ctx, docstore.Credentials, credential{
		Email:        email,
		PasswordHash: string(hash),
		DisplayName:  displayName,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		return Principal{}, fmt.Errorf("identity: create account: %w", err)
	}
	return Principal{ID: id, Email: email, DisplayName: displayName}, nil
}

// SignUp creates an account and signs the browser session in with it.
func (s *Service) SignUp(ctx context.Context, sid, email, password, displayName string) (Principal, error) {
	p, err := s.CreateAccount(ctx, email, password, displayName)
	if err != nil {
		return Principal{}, err
	}
	if err := s.attach(ctx, sid, &p); err != nil {
		return Principal{}, err
	}
	return p, nil
}

// SignIn verifies credentials and attaches the principal to the browser session.
func (s *Service) SignIn(ctx context.Context, sid, email, password string) (Principal, error) {
	id, cred, err := s.findByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return Principal{}, shared.ErrInvalidCredentials
		}
		return Principal{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)); err != nil {
		return Principal{}, shared.ErrInvalidCredentials
	}
	p := Principal{ID: id, Email: cred.Email, DisplayName: cred.DisplayName}
	if err := s.attach(ctx, sid, &p); err != nil {
		return Principal{}, err
	}
	return p, nil
}

// SignOut detaches any principal from the browser session. It is idempotent.
func (s *Service) SignOut(ctx context.Context, sid string) error {
	return s.broker.update(ctx, sid, nil, func(ctx context.Context) error {
		if err := s.client.Del(ctx, principalKey(sid)).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("identity: sign out: %w", err)
		}
		return nil
	})
}

// Current returns the principal attached to the browser session, or nil.
func (s *Service) Current(ctx context.Context, sid string) (*Principal, error) {
	raw, err := s.client.Get(ctx, principalKey(sid)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("identity: load principal: %w", err)
	}
	var p Principal
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("identity: decode principal: %w", err)
	}
	return &p, nil
}

// OnAuthStateChanged calls fn with the current principal of the browser
// session (nil when signed out) and again after every change, in order. The
// returned function cancels the subscription; calling it more than once is safe.
func (s *Service) OnAuthStateChanged(ctx context.Context, sid string, fn func(*Principal)) (func(), error) {
	return s.broker.subscribe(sid, fn, func() (*Principal, error) {
		return s.Current(ctx, sid)
	})
}

// DeleteAccount removes the credentials registered for email.
func (s *Service) DeleteAccount(ctx context.Context, email string) error {
	id, _, err := s.findByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil
		}
		return err
	}
	return s.store.Delete(ctx, docstore.Credentials, id)
}

func (s *Service) attach(ctx context.Context, sid string, p *Principal) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("identity: encode principal: %w", err)
	}
	return s.broker.update(ctx, sid, p, func(ctx context.Context) error {
		if err := s.client.Set(ctx, principalKey(sid), payload, s.cfg.SessionTTL).Err(); err != nil {
			return fmt.Errorf("identity: store principal: %w", err)
		}
		return nil
	})
}

func (s *Service) findByEmail(ctx context.Context, email string) (string, credential, error) {
	records, err := s.store.Find(ctx, docstore.Where(docstore.Credentials, docstore.Eq("email", NormalizeEmail(email))))
	if err != nil {
		return "", credential{}, fmt.Errorf("identity: lookup email: %w", err)
	}
	if len(records) == 0 {
		return "", credential{}, docstore.ErrNotFound
	}
	var cred credential
	if err := records[0].Decode(&cred); err != nil {
		return "", credential{}, err
	}
	return records[0].ID, cred, nil
}

func principalKey(sid string) string {
	return "auth:principal:" + sid
}
