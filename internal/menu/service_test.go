package menu_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/food-orders/foodorders/internal/docstore"
	"github.com/food-orders/foodorders/internal/docstore/docstoretest"
	"github.com/food-orders/foodorders/internal/menu"
	"github.com/food-orders/foodorders/internal/shared"
	"github.com/food-orders/foodorders/internal/storage"
)

type fakeCleanup struct {
	paths []string
}

func (f *fakeCleanup) EnqueueDeleteObject(ctx context.Context, objectPath string) (*asynq.TaskInfo, error) {
	f.paths = append(f.paths, objectPath)
	return &asynq.TaskInfo{}, nil
}

type fixture struct {
	svc     *menu.Service
	store   *docstoretest.Memory
	cleanup *fakeCleanup
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	files, err := storage.NewFilesystem(t.TempDir(), "/files")
	require.NoError(t, err)
	store := docstoretest.New()
	cleanup := &fakeCleanup{}
	return fixture{svc: menu.NewService(store, files, cleanup, nil), store: store, cleanup: cleanup}
}

func sizeNames(sizes []menu.Size) []string {
	out := make([]string, 0, len(sizes))
	for _, s := range sizes {
		out = append(out, s.Name)
	}
	return out
}

func TestSizesKeepTheirOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	small, err := f.svc.AddSize(ctx, "r1", "Small")
	require.NoError(t, err)
	assert.Equal(t, 0, small.Order)
	medium, err := f.svc.AddSize(ctx, "r1", "Medium")
	require.NoError(t, err)
	assert.Equal(t, 1, medium.Order)
	_, err = f.svc.AddSize(ctx, "r1", "Large")
	require.NoError(t, err)
	_, err = f.svc.AddSize(ctx, "r2", "Other")
	require.NoError(t, err)

	require.NoError(t, f.svc.MoveSize(ctx, "r1", medium.ID, -1))
	sizes, err := f.svc.Sizes(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Medium", "Small", "Large"}, sizeNames(sizes))

	require.NoError(t, f.svc.MoveSize(ctx, "r1", medium.ID, -1))
	require.NoError(t, f.svc.MoveSize(ctx, "r1", small.ID, 1))
	sizes, err = f.svc.Sizes(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Medium", "Large", "Small"}, sizeNames(sizes))
	for i, s := range sizes {
		assert.Equal(t, i, s.Order)
	}

	added, err := f.svc.AddSize(ctx, "r1", "XL")
	require.NoError(t, err)
	assert.Equal(t, 3, added.Order)

	require.NoError(t, f.svc.RenameSize(ctx, "r1", small.ID, "Kids"))
	assert.ErrorIs(t, f.svc.RenameSize(ctx, "r2", small.ID, "Stolen"), shared.ErrNotFound)
	assert.ErrorIs(t, f.svc.MoveSize(ctx, "r2", small.ID, 1), shared.ErrNotFound)
}

func TestDeleteSizeRemovesItsPrices(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	small, err := f.svc.AddSize(ctx, "r1", "Small")
	require.NoError(t, err)
	large, err := f.svc.AddSize(ctx, "r1", "Large")
	require.NoError(t, err)
	dish, err := f.svc.AddDish(ctx, "r1", menu.DishInput{Name: "Pizza"}, nil)
	require.NoError(t, err)
	require.NoError(t, f.svc.SetPrices(ctx, "r1", dish.ID, map[string]int64{small.ID: 900, large.ID: 1400}))

	assert.ErrorIs(t, f.svc.DeleteSize(ctx, "r2", small.ID), shared.ErrNotFound)
	require.NoError(t, f.svc.DeleteSize(ctx, "r1", small.ID))
	prices, err := f.svc.Prices(ctx, dish.ID)
	require.NoError(t, err)
	require.Len(t, prices, 1)
	assert.Equal(t, int64(1400), prices[large.ID].Price)
}

func TestSetPricesUpserts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	small, err := f.svc.AddSize(ctx, "r1", "Small")
	require.NoError(t, err)
	large, err := f.svc.AddSize(ctx, "r1", "Large")
	require.NoError(t, err)
	dish, err := f.svc.AddDish(ctx, "r1", menu.DishInput{Name: "Pizza"}, nil)
	require.NoError(t, err)

	require.NoError(t, f.svc.SetPrices(ctx, "r1", dish.ID, map[string]int64{small.ID: 900}))
	require.NoError(t, f.svc.SetPrices(ctx, "r1", dish.ID, map[string]int64{small.ID: 950, large.ID: 1400}))
	prices, err := f.svc.Prices(ctx, dish.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(950), prices[small.ID].Price)
	assert.Equal(t, int64(1400), prices[large.ID].Price)
	assert.Equal(t, 2, f.store.Count(docstore.Prices))

	require.NoError(t, f.svc.SetPrices(ctx, "r1", dish.ID, map[string]int64{large.ID: 1400}))
	assert.Equal(t, 1, f.store.Count(docstore.Prices))

	assert.ErrorIs(t, f.svc.SetPrices(ctx, "r2", dish.ID, nil), shared.ErrNotFound)
	assert.ErrorIs(t, f.svc.SetPrices(ctx, "r1", dish.ID, map[string]int64{large.ID: -1}), menu.ErrInvalidPrice)
}

func TestSetPricesRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	small, err := f.svc.AddSize(ctx, "r1", "Small")
	require.NoError(t, err)
	dish, err := f.svc.AddDish(ctx, "r1", menu.DishInput{Name: "Pizza"}, nil)
	require.NoError(t, err)
	f.store.Fail(docstore.Prices, errors.New("offline"))
	assert.Error(t, f.svc.SetPrices(ctx, "r1", dish.ID, map[string]int64{small.ID: 900}))
	f.store.Fail(docstore.Prices, nil)
	assert.Zero(t, f.store.Count(docstore.Prices))
}

func TestDishLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	size, err := f.svc.AddSize(ctx, "r1", "Regular")
	require.NoError(t, err)

	dish, err := f.svc.AddDish(ctx, "r1", menu.DishInput{Name: " Lasagne ", Description: "Oven baked"}, &storage.File{Name: "lasagne.png", Body: strings.NewReader("png")})
	require.NoError(t, err)
	assert.Equal(t, "Lasagne", dish.Name)
	assert.True(t, dish.Available)
	first := dish.Thumbnail
	require.False(t, first.Empty())

	_, err = f.svc.Dish(ctx, "r2", dish.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	updated, err := f.svc.UpdateDish(ctx, "r1", dish.ID, menu.DishInput{Name: "Lasagne XL"}, &storage.File{Name: "new.png", Body: strings.NewReader("png2")})
	require.NoError(t, err)
	assert.NotEqual(t, first.Path, updated.Thumbnail.Path)
	assert.Equal(t, []string{first.Path}, f.cleanup.paths)

	require.NoError(t, f.svc.SetPrices(ctx, "r1", dish.ID, map[string]int64{size.ID: 1250}))
	require.NoError(t, f.svc.DeleteDish(ctx, "r1", dish.ID))
	assert.Zero(t, f.store.Count(docstore.Prices))
	assert.Zero(t, f.store.Count(docstore.Dishes))
	assert.Equal(t, []string{first.Path, updated.Thumbnail.Path}, f.cleanup.paths)
}

func TestRestaurantMenuAndQuote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	small, err := f.svc.AddSize(ctx, "r1", "Small")
	require.NoError(t, err)
	large, err := f.svc.AddSize(ctx, "r1", "Large")
	require.NoError(t, err)
	pizza, err := f.svc.AddDish(ctx, "r1", menu.DishInput{Name: "Pizza"}, nil)
	require.NoError(t, err)
	pasta, err := f.svc.AddDish(ctx, "r1", menu.DishInput{Name: "Pasta"}, nil)
	require.NoError(t, err)
	unpriced, err := f.svc.AddDish(ctx, "r1", menu.DishInput{Name: "Soup"}, nil)
	require.NoError(t, err)
	require.NoError(t, f.svc.SetPrices(ctx, "r1", pizza.ID, map[string]int64{small.ID: 900, large.ID: 1400}))
	require.NoError(t, f.svc.SetPrices(ctx, "r1", pasta.ID, map[string]int64{large.ID: 1100}))

	items, err := f.svc.RestaurantMenu(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Pasta", items[0].Dish.Name)
	require.Len(t, items[1].Options, 2)
	assert.Equal(t, "Small", items[1].Options[0].Size.Name)
	assert.Equal(t, int64(900), items[1].Options[0].Price)

	quote, err := f.svc.Quote(ctx, "r1", pizza.ID, large.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1400), quote.Price)

	_, err = f.svc.Quote(ctx, "r1", pasta.ID, small.ID)
	assert.ErrorIs(t, err, menu.ErrUnavailable)
	_, err = f.svc.Quote(ctx, "r1", unpriced.ID, small.ID)
	assert.ErrorIs(t, err, menu.ErrUnavailable)
	_, err = f.svc.Quote(ctx, "r2", pizza.ID, small.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	require.NoError(t, f.svc.SetAvailability(ctx, "", pizza.ID, false))
	items, err = f.svc.RestaurantMenu(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	_, err = f.svc.Quote(ctx, "r1", pizza.ID, small.ID)
	assert.ErrorIs(t, err, menu.ErrUnavailable)
}

func TestParseCents(t *testing.T) {
	cases := map[string]int64{"12": 1200, "12.5": 1250, "12,50": 1250, "0.99": 99, " 7.05 ": 705, ".5": 50}
	for raw, want := range cases {
		got, err := menu.ParseCents(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}
	for _, raw := range []string{"", "0", "-3", "1.234", "abc", "1.", "1.-5"} {
		_, err := menu.ParseCents(raw)
		assert.ErrorIs(t, err, menu.ErrInvalidPrice, raw)
	}
}
