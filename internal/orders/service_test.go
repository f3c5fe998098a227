package orders_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/food-orders/foodorders/internal/docstore"
	"github.com/food-orders/foodorders/internal/docstore/docstoretest"
	"github.com/food-orders/foodorders/internal/menu"
	"github.com/food-orders/foodorders/internal/orders"
	"github.com/food-orders/foodorders/internal/restaurants"
	"github.com/food-orders/foodorders/internal/shared"
)

type fakeQuoter struct {
	prices map[string]int64
}

func (q fakeQuoter) Quote(ctx context.Context, restaurantID, dishID, sizeID string) (menu.Quote, error) {
	price, ok := q.prices[dishID+"/"+sizeID]
	if !ok {
		return menu.Quote{}, menu.ErrUnavailable
	}
	return menu.Quote{
		Dish:  menu.Dish{ID: dishID, Name: "Dish " + dishID, RestaurantID: restaurantID, Available: true},
		Size:  menu.Size{ID: sizeID, Name: "Size " + sizeID, RestaurantID: restaurantID},
		Price: price,
	}, nil
}

type fakeRestaurants map[string]restaurants.Restaurant

func (f fakeRestaurants) Get(ctx context.Context, id string) (restaurants.Restaurant, error) {
	r, ok := f[id]
	if !ok {
		return restaurants.Restaurant{}, shared.ErrNotFound
	}
	return r, nil
}

type fixture struct {
	svc   *orders.Service
	store *docstoretest.Memory
	clock time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: docstoretest.New(), clock: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	rests := fakeRestaurants{
		"r1": {ID: "r1", Name: "Trattoria", AcceptingOrders: true},
		"r2": {ID: "r2", Name: "Closed Diner"},
	}
	quotes := fakeQuoter{prices: map[string]int64{"d1/s1": 850, "d1/s2": 1200, "d2/s1": 400}}
	f.svc = orders.NewService(f.store, quotes, rests, nil).WithClock(func() time.Time {
		f.clock = f.clock.Add(time.Minute)
		return f.clock
	})
	return f
}

func place(t *testing.T, f *fixture, userID, restaurantID string, lines ...orders.LineInput) orders.Order {
	t.Helper()
	o, err := f.svc.Place(context.Background(), orders.PlaceInput{UserID: userID, CustomerName: "Ann", RestaurantID: restaurantID, Lines: lines})
	require.NoError(t, err)
	return o
}

func TestPlaceMergesLinesAndTotals(t *testing.T) {
	f := newFixture(t)
	o := place(t, f, "u1", "r1",
		orders.LineInput{DishID: "d1", SizeID: "s1", Quantity: 1},
		orders.LineInput{DishID: "d2", SizeID: "s1", Quantity: 0},
		orders.LineInput{DishID: "d1", SizeID: "s1", Quantity: 2},
		orders.LineInput{DishID: "d1", SizeID: "s2", Quantity: 1},
	)

	require.Len(t, o.Lines, 2)
	assert.Equal(t, 3, o.Lines[0].Quantity)
	assert.Equal(t, int64(2550), o.Lines[0].Subtotal)
	assert.Equal(t, "Size s2", o.Lines[1].SizeName)
	assert.Equal(t, int64(3750), o.Total)
	assert.Equal(t, orders.StatusNew, o.Status)
	assert.Equal(t, "Trattoria", o.RestaurantName)
	assert.Equal(t, 1, f.store.Count(docstore.Orders))

	stored, err := f.svc.CustomerOrder(context.Background(), "u1", o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.Total, stored.Total)
	assert.Equal(t, o.CreatedAt, stored.CreatedAt)
}

func TestPlaceRejectsInvalidOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cases := []struct {
		name string
		in   orders.PlaceInput
		want error
	}{
		{"closed restaurant", orders.PlaceInput{RestaurantID: "r2", Lines: []orders.LineInput{{DishID: "d1", SizeID: "s1", Quantity: 1}}}, orders.ErrNotAccepting},
		{"unknown restaurant", orders.PlaceInput{RestaurantID: "nope", Lines: []orders.LineInput{{DishID: "d1", SizeID: "s1", Quantity: 1}}}, shared.ErrNotFound},
		{"empty", orders.PlaceInput{RestaurantID: "r1", Lines: []orders.LineInput{{DishID: "d1", SizeID: "s1"}}}, orders.ErrEmptyOrder},
		{"negative", orders.PlaceInput{RestaurantID: "r1", Lines: []orders.LineInput{{DishID: "d1", SizeID: "s1", Quantity: -1}}}, orders.ErrInvalidQuantity},
		{"too many after merge", orders.PlaceInput{RestaurantID: "r1", Lines: []orders.LineInput{
			{DishID: "d1", SizeID: "s1", Quantity: 30},
			{DishID: "d1", SizeID: "s1", Quantity: 21},
		}}, orders.ErrInvalidQuantity},
		{"unpriced", orders.PlaceInput{RestaurantID: "r1", Lines: []orders.LineInput{{DishID: "d2", SizeID: "s2", Quantity: 1}}}, menu.ErrUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Place(ctx, tc.in)
			assert.ErrorIs(t, err, tc.want)
		})
	}
	assert.Equal(t, 0, f.store.Count(docstore.Orders))
}

func TestListingsAreNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	line := orders.LineInput{DishID: "d1", SizeID: "s1", Quantity: 1}
	first := place(t, f, "u1", "r1", line)
	second := place(t, f, "u1", "r1", line)
	other := place(t, f, "u2", "r1", line)

	mine, err := f.svc.ForUser(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, second.ID, mine[0].ID)
	assert.Equal(t, first.ID, mine[1].ID)

	latest, err := f.svc.ForUser(ctx, "u1", 1)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, second.ID, latest[0].ID)

	incoming, err := f.svc.ForRestaurant(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, incoming, 3)
	assert.Equal(t, other.ID, incoming[0].ID)
}

func TestOrdersAreVisibleToTheirOwnersOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := place(t, f, "u1", "r1", orders.LineInput{DishID: "d1", SizeID: "s1", Quantity: 1})

	_, err := f.svc.CustomerOrder(ctx, "u2", o.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	_, err = f.svc.RestaurantOrder(ctx, "r2", o.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	_, err = f.svc.RestaurantOrder(ctx, "r1", "missing")
	assert.ErrorIs(t, err, shared.ErrNotFound)

	got, err := f.svc.RestaurantOrder(ctx, "r1", o.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ann", got.CustomerName)
}

func TestAdvanceFollowsTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := place(t, f, "u1", "r1", orders.LineInput{DishID: "d1", SizeID: "s1", Quantity: 1})

	_, err := f.svc.Advance(ctx, "r1", o.ID, orders.StatusDelivered)
	assert.ErrorIs(t, err, orders.ErrInvalidTransition)
	_, err = f.svc.Advance(ctx, "r2", o.ID, orders.StatusPreparing)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	for _, next := range []orders.Status{orders.StatusPreparing, orders.StatusReady, orders.StatusDelivered} {
		got, err := f.svc.Advance(ctx, "r1", o.ID, next)
		require.NoError(t, err)
		assert.Equal(t, next, got.Status)
	}
	stored, err := f.svc.CustomerOrder(ctx, "u1", o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusDelivered, stored.Status)
	assert.False(t, stored.Status.Open())

	_, err = f.svc.Advance(ctx, "r1", o.ID, orders.StatusCancelled)
	assert.ErrorIs(t, err, orders.ErrInvalidTransition)
}

func TestStatusTable(t *testing.T) {
	assert.True(t, orders.StatusNew.CanBecome(orders.StatusCancelled))
	assert.False(t, orders.StatusReady.CanBecome(orders.StatusCancelled))
	assert.Equal(t, []orders.Status{orders.StatusPreparing, orders.StatusCancelled}, orders.StatusNew.Next())
	assert.Empty(t, orders.StatusCancelled.Next())
	assert.Equal(t, "Preparing", orders.StatusPreparing.Label())
}
