package restaurants

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/food-orders/foodorders/internal/docstore"
	"github.com/food-orders/foodorders/internal/identity"
	"github.com/food-orders/foodorders/internal/platform/cache"
	"github.com/food-orders/foodorders/internal/shared"
	"github.com/food-orders/foodorders/internal/storage"
)

// Accounts creates and removes restaurant logins.
type Accounts interface {
	CreateAccount(ctx context.Context, email, password, displayName string) (identity.Principal, error)
	DeleteAccount(ctx context.Context, email string) error
}

// Cleanup schedules removal of stored blobs.
type Cleanup interface {
	EnqueueDeleteObject(ctx context.Context, objectPath string) (*asynq.TaskInfo, error)
}

// Service manages restaurant documents.
type Service struct {
	store    docstore.Store
	accounts Accounts
	uploads  storage.Uploader
	cleanup  Cleanup
	catalog  *cache.Versioned
	logger   *slog.Logger
}

// NewService constructs a Service. catalog may be nil.
func NewService(store docstore.Store, accounts Accounts, uploads storage.Uploader, cleanup Cleanup, catalog *cache.Versioned, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, accounts: accounts, uploads: uploads, cleanup: cleanup, catalog: catalog, logger: logger}
}

// List returns every restaurant sorted by name.
func (s *Service) List(ctx context.Context) ([]Restaurant, error) {
	key, err := s.catalog.BuildKey(ctx, "restaurants")
	if err != nil {
		s.logger.Warn("build catalog key", slog.Any("error", err))
		return s.load(ctx)
	}
	var cached []listing
	err = s.catalog.FetchJSON(ctx, key, &cached, func(ctx context.Context) (any, error) {
		list, err := s.load(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]listing, 0, len(list))
		for _, r := range list {
			out = append(out, listing{ID: r.ID, Restaurant: r})
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	list := make([]Restaurant, 0, len(cached))
	for _, l := range cached {
		r := l.Restaurant
		r.ID = l.ID
		list = append(list, r)
	}
	return list, nil
}

// ListOpen returns the restaurants currently accepting orders.
func (s *Service) ListOpen(ctx context.Context) ([]Restaurant, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	open := all[:0:0]
	for _, r := range all {
		if r.AcceptingOrders {
			open = append(open, r)
		}
	}
	return open, nil
}

// Get loads a restaurant by id.
func (s *Service) Get(ctx context.Context, id string) (Restaurant, error) {
	rec, err := s.store.Get(ctx, docstore.Restaurants, id)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return Restaurant{}, shared.ErrNotFound
		}
		return Restaurant{}, err
	}
	return decode(rec)
}

// ByEmail loads the restaurant owned by email.
func (s *Service) ByEmail(ctx context.Context, email string) (Restaurant, error) {
	records, err := s.store.Find(ctx, docstore.Where(docstore.Restaurants, docstore.Eq("email", identity.NormalizeEmail(email))))
	if err != nil {
		return Restaurant{}, fmt.Errorf("restaurants: by email: %w", err)
	}
	if len(records) == 0 {
		return Restaurant{}, shared.ErrNotFound
	}
	return decode(records[0])
}

// Create registers a restaurant together with its login.
func (s *Service) Create(ctx context.Context, in CreateInput, thumbnail *storage.File) (Restaurant, error) {
	email := identity.NormalizeEmail(in.Email)
	for _, q := range []docstore.Query{
		docstore.Where(docstore.Users, docstore.Eq("email", email)),
		docstore.Where(docstore.Restaurants, docstore.Eq("email", email)),
	} {
		taken, err := docstore.Exists(ctx, s.store, q)
		if err != nil {
			return Restaurant{}, fmt.Errorf("restaurants: check email: %w", err)
		}
		if taken {
			return Restaurant{}, ErrEmailInUse
		}
	}

	principal, err := s.accounts.CreateAccount(ctx, email, in.Password, in.Name)
	if err != nil {
		if errors.Is(err, identity.ErrEmailTaken) {
			return Restaurant{}, ErrEmailInUse
		}
		return Restaurant{}, err
	}

	r := Restaurant{
		ID:            principal.ID,
		Name:          in.Name,
		CompanyNumber: in.CompanyNumber,
		Email:         email,
		Address:       in.Address,
		PostalCode:    in.PostalCode,
		City:          in.City,
	}
	if thumbnail != nil {
		obj, err := s.uploads.Upload(ctx, "restaurants", r.ID, thumbnail.Name, thumbnail.Body)
		if err != nil {
			s.rollbackAccount(ctx, email)
			return Restaurant{}, fmt.Errorf("restaurants: upload thumbnail: %w", err)
		}
		r.Thumbnail = obj
	}
	if err := s.store.Set(ctx, docstore.Restaurants, r.ID, r); err != nil {
		s.rollbackAccount(ctx, email)
		s.discard(ctx, r.Thumbnail)
		return Restaurant{}, fmt.Errorf("restaurants: create: %w", err)
	}
	s.invalidate(ctx)
	s.logger.Info("restaurant created", slog.String("restaurant_id", r.ID))
	return r, nil
}

// UpdateProfile edits name and address fields.
func (s *Service) UpdateProfile(ctx context.Context, id string, in ProfileInput) error {
	err := s.store.Update(ctx, docstore.Restaurants, id, map[string]any{
		"restaurantName": in.Name,
		"address":        in.Address,
		"postalCode":     in.PostalCode,
		"city":           in.City,
	})
	if errors.Is(err, docstore.ErrNotFound) {
		return shared.ErrNotFound
	}
	if err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// SetAcceptingOrders opens or closes a restaurant for new orders.
func (s *Service) SetAcceptingOrders(ctx context.Context, id string, accepting bool) error {
	err := s.store.Update(ctx, docstore.Restaurants, id, map[string]any{"acceptingOrders": accepting})
	if errors.Is(err, docstore.ErrNotFound) {
		return shared.ErrNotFound
	}
	if err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// Delete removes a restaurant, its login and its thumbnail.
func (s *Service) Delete(ctx context.Context, id string) error {
	r, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, docstore.Restaurants, id); err != nil {
		return fmt.Errorf("restaurants: delete: %w", err)
	}
	if err := s.accounts.DeleteAccount(ctx, r.Email); err != nil {
		s.logger.Warn("delete restaurant login", slog.String("restaurant_id", id), slog.Any("error", err))
	}
	s.discard(ctx, r.Thumbnail)
	s.invalidate(ctx)
	s.logger.Info("restaurant deleted", slog.String("restaurant_id", id))
	return nil
}

func (s *Service) load(ctx context.Context) ([]Restaurant, error) {
	records, err := s.store.Find(ctx, docstore.Where(docstore.Restaurants).Ordered("restaurantName", false))
	if err != nil {
		return nil, fmt.Errorf("restaurants: list: %w", err)
	}
	list := make([]Restaurant, 0, len(records))
	for _, rec := range records {
		r, err := decode(rec)
		if err != nil {
			return nil, err
		}
		list = append(list, r)
	}
	return list, nil
}

func (s *Service) invalidate(ctx context.Context) {
	if err := s.catalog.Bump(ctx); err != nil {
		s.logger.Warn("invalidate restaurant catalog", slog.Any("error", err))
	}
}

func (s *Service) discard(ctx context.Context, obj storage.Object) {
	if obj.Empty() || s.cleanup == nil {
		return
	}
	if _, err := s.cleanup.EnqueueDeleteObject(ctx, obj.Path); err != nil {
		s.logger.Warn("enqueue thumbnail cleanup", slog.String("path", obj.Path), slog.Any("error", err))
	}
}

func (s *Service) rollbackAccount(ctx context.Context, email string) {
	if err := s.accounts.DeleteAccount(ctx, email); err != nil {
		s.logger.Error("rollback restaurant login", slog.Any("error", err))
	}
}

func decode(rec docstore.Record) (Restaurant, error) {
	var r Restaurant
	if err := rec.Decode(&r); err != nil {
		return Restaurant{}, err
	}
	r.ID = rec.ID
	return r, nil
}
