// Package menu manages the dishes of a restaurant, the sizes they come in
// and the price of every dish per size.
package menu

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/food-orders/foodorders/internal/docstore"
	"github.com/food-orders/foodorders/internal/shared"
	"github.com/food-orders/foodorders/internal/storage"
)

// Cleanup schedules removal of stored blobs.
type Cleanup interface {
	EnqueueDeleteObject(ctx context.Context, objectPath string) (*asynq.TaskInfo, error)
}

// Service implements menu operations. Every mutation names the restaurant
// acting on it; documents of other restaurants read as not found.
type Service struct {
	store   docstore.Store
	uploads storage.Uploader
	cleanup Cleanup
	logger  *slog.Logger
}

// NewService constructs a Service.
func NewService(store docstore.Store, uploads storage.Uploader, cleanup Cleanup, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, uploads: uploads, cleanup: cleanup, logger: logger}
}

// Sizes lists the sizes of a restaurant in display order.
func (s *Service) Sizes(ctx context.Context, restaurantID string) ([]Size, error) {
	return sizesIn(ctx, s.store, restaurantID)
}

// AddSize appends a size after the last one.
func (s *Service) AddSize(ctx context.Context, restaurantID, name string) (Size, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Size{}, fmt.Errorf("menu: size name required")
	}
	var size Size
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx docstore.Store) error {
		sizes, err := sizesIn(ctx, tx, restaurantID)
		if err != nil {
			return err
		}
		next := 0
		if len(sizes) > 0 {
			next = sizes[len(sizes)-1].Order + 1
		}
		size = Size{Name: name, Order: next, RestaurantID: restaurantID}
		size.ID, err = tx.Add(ctx, docstore.Sizes, size)
		return err
	})
	if err != nil {
		return Size{}, fmt.Errorf("menu: add size: %w", err)
	}
	return size, nil
}

// RenameSize changes the name of a size.
func (s *Service) RenameSize(ctx context.Context, restaurantID, id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("menu: size name required")
	}
	if _, err := s.size(ctx, s.store, restaurantID, id); err != nil {
		return err
	}
	return s.store.Update(ctx, docstore.Sizes, id, map[string]any{"name": name})
}

// MoveSize swaps a size with its neighbour. A negative step moves it up.
func (s *Service) MoveSize(ctx context.Context, restaurantID, id string, step int) error {
	return s.store.RunInTx(ctx, func(ctx context.Context, tx docstore.Store) error {
		sizes, err := sizesIn(ctx, tx, restaurantID)
		if err != nil {
			return err
		}
		from := -1
		for i, size := range sizes {
			if size.ID == id {
				from = i
				break
			}
		}
		if from < 0 {
			return shared.ErrNotFound
		}
		to := from + 1
		if step < 0 {
			to = from - 1
		}
		if to < 0 || to >= len(sizes) {
			return nil
		}
		sizes[from], sizes[to] = sizes[to], sizes[from]
		for i, size := range sizes {
			if size.Order == i {
				continue
			}
			if err := tx.Update(ctx, docstore.Sizes, size.ID, map[string]any{"order": i}); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteSize removes a size together with the prices set for it.
func (s *Service) DeleteSize(ctx context.Context, restaurantID, id string) error {
	return s.store.RunInTx(ctx, func(ctx context.Context, tx docstore.Store) error {
		if _, err := s.size(ctx, tx, restaurantID, id); err != nil {
			return err
		}
		if err := deleteAll(ctx, tx, docstore.Where(docstore.Prices, docstore.Eq("sizeId", id))); err != nil {
			return err
		}
		return tx.Delete(ctx, docstore.Sizes, id)
	})
}

// Dishes lists the dishes of a restaurant by name.
func (s *Service) Dishes(ctx context.Context, restaurantID string) ([]Dish, error) {
	return s.findDishes(ctx, docstore.Where(docstore.Dishes, docstore.Eq("restaurantId", restaurantID)))
}

// AllDishes lists the dishes of every restaurant by name.
func (s *Service) AllDishes(ctx context.Context) ([]Dish, error) {
	return s.findDishes(ctx, docstore.Where(docstore.Dishes))
}

// Dish loads a dish of restaurantID. An empty restaurantID matches any owner.
func (s *Service) Dish(ctx context.Context, restaurantID, id string) (Dish, error) {
	rec, err := s.store.Get(ctx, docstore.Dishes, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return Dish{}, shared.ErrNotFound
	}
	if err != nil {
		return Dish{}, err
	}
	var d Dish
	if err := rec.Decode(&d); err != nil {
		return Dish{}, err
	}
	d.ID = rec.ID
	if restaurantID != "" && d.RestaurantID != restaurantID {
		return Dish{}, shared.ErrNotFound
	}
	return d, nil
}

// AddDish creates an available dish with an optional thumbnail.
func (s *Service) AddDish(ctx context.Context, restaurantID string, in DishInput, thumbnail *storage.File) (Dish, error) {
	d := Dish{
		Name:         strings.TrimSpace(in.Name),
		Description:  strings.TrimSpace(in.Description),
		RestaurantID: restaurantID,
		Available:    true,
	}
	if thumbnail != nil {
		obj, err := s.uploads.Upload(ctx, "dishes", restaurantID, thumbnail.Name, thumbnail.Body)
		if err != nil {
			return Dish{}, fmt.Errorf("menu: upload thumbnail: %w", err)
		}
		d.Thumbnail = obj
	}
	id, err := s.store.Add(ctx, docstore.Dishes, d)
	if err != nil {
		s.discard(ctx, d.Thumbnail)
		return Dish{}, fmt.Errorf("menu: add dish: %w", err)
	}
	d.ID = id
	s.logger.Info("dish added", slog.String("dish_id", id), slog.String("restaurant_id", restaurantID))
	return d, nil
}

// UpdateDish edits name and description and, when given, replaces the thumbnail.
func (s *Service) UpdateDish(ctx context.Context, restaurantID, id string, in DishInput, thumbnail *storage.File) (Dish, error) {
	d, err := s.Dish(ctx, restaurantID, id)
	if err != nil {
		return Dish{}, err
	}
	old := d.Thumbnail
	d.Name = strings.TrimSpace(in.Name)
	d.Description = strings.TrimSpace(in.Description)
	if thumbnail != nil {
		obj, err := s.uploads.Upload(ctx, "dishes", d.RestaurantID, thumbnail.Name, thumbnail.Body)
		if err != nil {
			return Dish{}, fmt.Errorf("menu: upload thumbnail: %w", err)
		}
		d.Thumbnail = obj
	}
	err = s.store.Update(ctx, docstore.Dishes, id, map[string]any{
		"name":        d.Name,
		"description": d.Description,
		"thumbnail":   d.Thumbnail,
	})
	if err != nil {
		if thumbnail != nil {
			s.discard(ctx, d.Thumbnail)
		}
		return Dish{}, fmt.Errorf("menu: update dish: %w", err)
	}
	if thumbnail != nil {
		s.discard(ctx, old)
	}
	return d, nil
}

// SetAvailability switches a dish on or off the customer menu.
func (s *Service) SetAvailability(ctx context.Context, restaurantID, id string, available bool) error {
	if _, err := s.Dish(ctx, restaurantID, id); err != nil {
		return err
	}
	return s.store.Update(ctx, docstore.Dishes, id, map[string]any{"available": available})
}

// DeleteDish removes a dish, its prices and its thumbnail.
func (s *Service) DeleteDish(ctx context.Context, restaurantID, id string) error {
	d, err := s.Dish(ctx, restaurantID, id)
	if err != nil {
		return err
	}
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx docstore.Store) error {
		if err := deleteAll(ctx, tx, docstore.Where(docstore.Prices, docstore.Eq("dishId", id))); err != nil {
			return err
		}
		return tx.Delete(ctx, docstore.Dishes, id)
	})
	if err != nil {
		return fmt.Errorf("menu: delete dish: %w", err)
	}
	s.discard(ctx, d.Thumbnail)
	s.logger.Info("dish deleted", slog.String("dish_id", id))
	return nil
}

// Prices returns the prices of a dish keyed by size id.
func (s *Service) Prices(ctx context.Context, dishID string) (map[string]Price, error) {
	return pricesOf(ctx, s.store, dishID)
}

// SetPrices stores the price per size of a dish. Sizes missing from
// cents, or mapped to zero, lose their price.
func (s *Service) SetPrices(ctx context.Context, restaurantID, dishID string, cents map[string]int64) error {
	if _, err := s.Dish(ctx, restaurantID, dishID); err != nil {
		return err
	}
	for _, c := range cents {
		if c < 0 {
			return ErrInvalidPrice
		}
	}
	return s.store.RunInTx(ctx, func(ctx context.Context, tx docstore.Store) error {
		sizes, err := sizesIn(ctx, tx, restaurantID)
		if err != nil {
			return err
		}
		current, err := pricesOf(ctx, tx, dishID)
		if err != nil {
			return err
		}
		for _, size := range sizes {
			want := cents[size.ID]
			existing, ok := current[size.ID]
			switch {
			case want == 0 && ok:
				err = tx.Delete(ctx, docstore.Prices, existing.ID)
			case want == 0:
			case ok && existing.Price != want:
				err = tx.Update(ctx, docstore.Prices, existing.ID, map[string]any{"price": want})
			case !ok:
				_, err = tx.Add(ctx, docstore.Prices, Price{DishID: dishID, SizeID: size.ID, Price: want})
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// RestaurantMenu lists the orderable dishes of a restaurant. Only available
// dishes with at least one priced size are included.
func (s *Service) RestaurantMenu(ctx context.Context, restaurantID string) ([]Item, error) {
	dishes, err := s.findDishes(ctx, docstore.Where(docstore.Dishes,
		docstore.Eq("restaurantId", restaurantID),
		docstore.Eq("available", true),
	))
	if err != nil {
		return nil, err
	}
	sizes, err := sizesIn(ctx, s.store, restaurantID)
	if err != nil {
		return nil, err
	}
	items := make([]Item, 0, len(dishes))
	for _, d := range dishes {
		prices, err := pricesOf(ctx, s.store, d.ID)
		if err != nil {
			return nil, err
		}
		item := Item{Dish: d}
		for _, size := range sizes {
			if p, ok := prices[size.ID]; ok {
				item.Options = append(item.Options, Option{Size: size, Price: p.Price})
			}
		}
		if len(item.Options) > 0 {
			items = append(items, item)
		}
	}
	return items, nil
}

// Quote prices one dish in one size for an order.
func (s *Service) Quote(ctx context.Context, restaurantID, dishID, sizeID string) (Quote, error) {
	d, err := s.Dish(ctx, restaurantID, dishID)
	if err != nil {
		return Quote{}, err
	}
	if !d.Available {
		return Quote{}, ErrUnavailable
	}
	size, err := s.size(ctx, s.store, restaurantID, sizeID)
	if err != nil {
		return Quote{}, err
	}
	prices, err := pricesOf(ctx, s.store, dishID)
	if err != nil {
		return Quote{}, err
	}
	p, ok := prices[sizeID]
	if !ok {
		return Quote{}, ErrUnavailable
	}
	return Quote{Dish: d, Size: size, Price: p.Price}, nil
}

func (s *Service) size(ctx context.Context, store docstore.Store, restaurantID, id string) (Size, error) {
	rec, err := store.Get(ctx, docstore.Sizes, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return Size{}, shared.ErrNotFound
	}
	if err != nil {
		return Size{}, err
	}
	var size Size
	if err := rec.Decode(&size); err != nil {
		return Size{}, err
	}
	size.ID = rec.ID
	if size.RestaurantID != restaurantID {
		return Size{}, shared.ErrNotFound
	}
	return size, nil
}

func (s *Service) findDishes(ctx context.Context, q docstore.Query) ([]Dish, error) {
	records, err := s.store.Find(ctx, q.Ordered("name", false))
	if err != nil {
		return nil, fmt.Errorf("menu: list dishes: %w", err)
	}
	dishes := make([]Dish, 0, len(records))
	for _, rec := range records {
		var d Dish
		if err := rec.Decode(&d); err != nil {
			return nil, err
		}
		d.ID = rec.ID
		dishes = append(dishes, d)
	}
	return dishes, nil
}

func (s *Service) discard(ctx context.Context, obj storage.Object) {
	if obj.Empty() || s.cleanup == nil {
		return
	}
	if _, err := s.cleanup.EnqueueDeleteObject(ctx, obj.Path); err != nil {
		s.logger.Warn("enqueue thumbnail cleanup", slog.String("path", obj.Path), slog.Any("error", err))
	}
}

func sizesIn(ctx context.Context, store docstore.Finder, restaurantID string) ([]Size, error) {
	records, err := store.Find(ctx, docstore.Where(docstore.Sizes, docstore.Eq("restaurantId", restaurantID)).Ordered("order", false))
	if err != nil {
		return nil, fmt.Errorf("menu: list sizes: %w", err)
	}
	sizes := make([]Size, 0, len(records))
	for _, rec := range records {
		var size Size
		if err := rec.Decode(&size); err != nil {
			return nil, err
		}
		size.ID = rec.ID
		sizes = append(sizes, size)
	}
	return sizes, nil
}

func pricesOf(ctx context.Context, store docstore.Finder, dishID string) (map[string]Price, error) {
	records, err := store.Find(ctx, docstore.Where(docstore.Prices, docstore.Eq("dishId", dishID)))
	if err != nil {
		return nil, fmt.Errorf("menu: list prices: %w", err)
	}
	out := make(map[string]Price, len(records))
	for _, rec := range records {
		var p Price
		if err := rec.Decode(&p); err != nil {
			return nil, err
		}
		p.ID = rec.ID
		out[p.SizeID] = p
	}
	return out, nil
}

func deleteAll(ctx context.Context, store docstore.Store, q docstore.Query) error {
	records, err := store.Find(ctx, q)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if err := store.Delete(ctx, q.Collection, rec.ID); err != nil {
			return err
		}
	}
	return nil
}
