package menu

import (
	"errors"
	"strconv"
	"strings"

	"github.com/food-orders/foodorders/internal/storage"
)

var (
	// ErrInvalidPrice indicates a price that is not a positive euro amount.
	ErrInvalidPrice = errors.New("menu: invalid price")
	// ErrUnavailable indicates a dish that cannot be ordered right now.
	ErrUnavailable = errors.New("menu: dish unavailable")
)

// Size is a portion size offered by a restaurant, shown in Order.
type Size struct {
	ID           string `json:"-"`
	Name         string `json:"name"`
	Order        int    `json:"order"`
	RestaurantID string `json:"restaurantId"`
}

// Dish is a menu item.
type Dish struct {
	ID           string         `json:"-"`
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	Thumbnail    storage.Object `json:"thumbnail"`
	RestaurantID string         `json:"restaurantId"`
	Available    bool           `json:"available"`
}

// Price is the price in cents of a dish in one size.
type Price struct {
	ID     string `json:"-"`
	DishID string `json:"dishId"`
	SizeID string `json:"sizeId"`
	Price  int64  `json:"price"`
}

// DishInput is the editable part of a dish.
type DishInput struct {
	Name        string `validate:"required,max=120"`
	Description string `validate:"max=1000"`
}

// Option is a size of a dish a customer can order.
type Option struct {
	Size  Size
	Price int64
}

// Item is a dish on the customer menu with its orderable sizes.
type Item struct {
	Dish    Dish
	Options []Option
}

// Quote is the price of one dish in one size at ordering time.
type Quote struct {
	Dish  Dish
	Size  Size
	Price int64
}

// ParseCents converts a euro amount such as "12", "12.5" or "12,50" into cents.
func ParseCents(raw string) (int64, error) {
	raw = strings.TrimSpace(strings.ReplaceAll(raw, ",", "."))
	if raw == "" {
		return 0, ErrInvalidPrice
	}
	whole, frac, hasFrac := strings.Cut(raw, ".")
	if whole == "" {
		whole = "0"
	}
	euros, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || euros < 0 || euros > 100000 {
		return 0, ErrInvalidPrice
	}
	var cents int64
	if hasFrac {
		if len(frac) == 0 || len(frac) > 2 {
			return 0, ErrInvalidPrice
		}
		if len(frac) == 1 {
			frac += "0"
		}
		cents, err = strconv.ParseInt(frac, 10, 64)
		if err != nil || cents < 0 {
			return 0, ErrInvalidPrice
		}
	}
	total := euros*100 + cents
	if total <= 0 {
		return 0, ErrInvalidPrice
	}
	return total, nil
}
