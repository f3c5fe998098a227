package roles

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/food-orders/foodorders/internal/docstore"
)

// Resolver classifies principals by email using the user and restaurant records.
type Resolver struct {
	store  docstore.Finder
	logger *slog.Logger
}

// NewResolver constructs a Resolver.
func NewResolver(store docstore.Finder, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{store: store, logger: logger}
}

// Resolve runs the three classification lookups concurrently and returns the
// role for email. Any failed lookup fails the whole resolution.
func (r *Resolver) Resolve(ctx context.Context, email string) (Role, error) {
	queries := [3]docstore.Query{
		docstore.Where(docstore.Users, docstore.Eq("email", email), docstore.Eq("isAdmin", false)),
		docstore.Where(docstore.Users, docstore.Eq("email", email), docstore.Eq("isAdmin", true)),
		docstore.Where(docstore.Restaurants, docstore.Eq("email", email)),
	}
	var counts [3]int

	g, gctx := errgroup.WithContext(ctx)
	for i := range queries {
		g.Go(func() error {
			records, err := r.store.Find(gctx, queries[i])
			if err != nil {
				return fmt.Errorf("roles: resolve %s: %w", queries[i].Collection, err)
			}
			counts[i] = len(records)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	matched := 0
	for _, c := range counts {
		if c > 0 {
			matched++
		}
	}
	if matched > 1 {
		r.logger.Warn("email matches several role record sets",
			slog.String("email", email),
			slog.Int("users", counts[0]),
			slog.Int("admins", counts[1]),
			slog.Int("restaurants", counts[2]))
	}
	return Classify(counts[0], counts[1], counts[2]), nil
}

// Classify maps lookup cardinalities to a role. Earlier sets win when more
// than one is non-empty.
func Classify(customers, admins, restaurants int) Role {
	switch {
	case customers > 0:
		return Customer
	case admins > 0:
		return Administrator
	case restaurants > 0:
		return RestaurantStaff
	default:
		return LoggedOut
	}
}
