// Package orders places customer orders and lets restaurants work through them.
package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/food-orders/foodorders/internal/docstore"
	"github.com/food-orders/foodorders/internal/menu"
	"github.com/food-orders/foodorders/internal/restaurants"
	"github.com/food-orders/foodorders/internal/shared"
)

// Quoter prices dishes at ordering time.
type Quoter interface {
	Quote(ctx context.Context, restaurantID, dishID, sizeID string) (menu.Quote, error)
}

// Restaurants loads the restaurant an order is placed with.
type Restaurants interface {
	Get(ctx context.Context, id string) (restaurants.Restaurant, error)
}

// Service implements order operations.
type Service struct {
	store       docstore.Store
	quotes      Quoter
	restaurants Restaurants
	now         func() time.Time
	logger      *slog.Logger
}

// NewService constructs a Service.
func NewService(store docstore.Store, quotes Quoter, rests Restaurants, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, quotes: quotes, restaurants: rests, now: time.Now, logger: logger}
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Place prices every line against the current menu and stores the order.
func (s *Service) Place(ctx context.Context, in PlaceInput) (Order, error) {
	rest, err := s.restaurants.Get(ctx, in.RestaurantID)
	if err != nil {
		return Order{}, err
	}
	if !rest.AcceptingOrders {
		return Order{}, ErrNotAccepting
	}
	lines, err := merge(in.Lines)
	if err != nil {
		return Order{}, err
	}

	order := Order{
		UserID:         in.UserID,
		CustomerName:   in.CustomerName,
		RestaurantID:   rest.ID,
		RestaurantName: rest.Name,
		Status:         StatusNew,
		CreatedAt:      s.now().UnixMilli(),
	}
	for _, l := range lines {
		quote, err := s.quotes.Quote(ctx, rest.ID, l.DishID, l.SizeID)
		if err != nil {
			return Order{}, err
		}
		line := Line{
			DishID:    quote.Dish.ID,
			DishName:  quote.Dish.Name,
			SizeID:    quote.Size.ID,
			SizeName:  quote.Size.Name,
			Quantity:  l.Quantity,
			UnitPrice: quote.Price,
			Subtotal:  quote.Price * int64(l.Quantity),
		}
		order.Lines = append(order.Lines, line)
		order.Total += line.Subtotal
	}

	id, err := s.store.Add(ctx, docstore.Orders, order)
	if err != nil {
		return Order{}, fmt.Errorf("orders: place: %w", err)
	}
	order.ID = id
	s.logger.Info("order placed", slog.String("order_id", id), slog.String("restaurant_id", rest.ID), slog.Int64("total", order.Total))
	return order, nil
}

// ForUser lists the orders of a customer, newest first. A positive limit
// caps the result.
func (s *Service) ForUser(ctx context.Context, userID string, limit int) ([]Order, error) {
	q := docstore.Where(docstore.Orders, docstore.Eq("userId", userID)).Ordered("createdAt", true)
	q.Limit = limit
	return s.find(ctx, q)
}

// ForRestaurant lists the orders of a restaurant, newest first.
func (s *Service) ForRestaurant(ctx context.Context, restaurantID string) ([]Order, error) {
	return s.find(ctx, docstore.Where(docstore.Orders, docstore.Eq("restaurantId", restaurantID)).Ordered("createdAt", true))
}

// CustomerOrder loads an order placed by userID.
func (s *Service) CustomerOrder(ctx context.Context, userID, id string) (Order, error) {
	o, err := s.get(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if o.UserID != userID {
		return Order{}, shared.ErrNotFound
	}
	return o, nil
}

// RestaurantOrder loads an order placed with restaurantID.
func (s *Service) RestaurantOrder(ctx context.Context, restaurantID, id string) (Order, error) {
	o, err := s.get(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if o.RestaurantID != restaurantID {
		return Order{}, shared.ErrNotFound
	}
	return o, nil
}

// Advance moves an order of restaurantID to status to.
func (s *Service) Advance(ctx context.Context, restaurantID, id string, to Status) (Order, error) {
	var out Order
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx docstore.Store) error {
		o, err := getIn(ctx, tx, id)
		if err != nil {
			return err
		}
		if o.RestaurantID != restaurantID {
			return shared.ErrNotFound
		}
		if !o.Status.CanBecome(to) {
			return ErrInvalidTransition
		}
		if err := tx.Update(ctx, docstore.Orders, id, map[string]any{"status": to}); err != nil {
			return err
		}
		o.Status = to
		out = o
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	s.logger.Info("order status changed", slog.String("order_id", id), slog.String("status", string(to)))
	return out, nil
}

func (s *Service) get(ctx context.Context, id string) (Order, error) {
	return getIn(ctx, s.store, id)
}

func (s *Service) find(ctx context.Context, q docstore.Query) ([]Order, error) {
	records, err := s.store.Find(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("orders: list: %w", err)
	}
	out := make([]Order, 0, len(records))
	for _, rec := range records {
		o, err := decode(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

func getIn(ctx context.Context, store docstore.Store, id string) (Order, error) {
	rec, err := store.Get(ctx, docstore.Orders, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return Order{}, shared.ErrNotFound
	}
	if err != nil {
		return Order{}, err
	}
	return decode(rec)
}

func decode(rec docstore.Record) (Order, error) {
	var o Order
	if err := rec.Decode(&o); err != nil {
		return Order{}, err
	}
	o.ID = rec.ID
	return o, nil
}

// merge combines lines for the same dish and size and validates quantities.
func merge(in []LineInput) ([]LineInput, error) {
	var out []LineInput
	index := make(map[[2]string]int)
	for _, l := range in {
		if l.Quantity == 0 {
			continue
		}
		if l.Quantity < 0 {
			return nil, ErrInvalidQuantity
		}
		key := [2]string{l.DishID, l.SizeID}
		if i, ok := index[key]; ok {
			out[i].Quantity += l.Quantity
		} else {
			index[key] = len(out)
			out = append(out, l)
		}
	}
	if len(out) == 0 {
		return nil, ErrEmptyOrder
	}
	for _, l := range out {
		if l.Quantity > MaxQuantity {
			return nil, ErrInvalidQuantity
		}
	}
	return out, nil
}
