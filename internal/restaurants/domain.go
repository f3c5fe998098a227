package restaurants

import (
	"errors"

	"github.com/food-orders/foodorders/internal/storage"
)

// ErrEmailInUse indicates the email already belongs to a user or restaurant.
var ErrEmailInUse = errors.New("restaurants: email already in use")

// Restaurant is a restaurant document.
type Restaurant struct {
	ID              string         `json:"-"`
	Name            string         `json:"restaurantName"`
	CompanyNumber   string         `json:"companyNumber"`
	Email           string         `json:"email"`
	Address         string         `json:"address"`
	PostalCode      string         `json:"postalCode"`
	City            string         `json:"city"`
	Thumbnail       storage.Object `json:"thumbnail"`
	AcceptingOrders bool           `json:"acceptingOrders"`
}

// CreateInput carries the fields of a new restaurant and its login.
type CreateInput struct {
	Name          string `validate:"required,max=120"`
	CompanyNumber string `validate:"required,max=40"`
	Email         string `validate:"required,email"`
	Password      string `validate:"required,min=6,max=72"`
	Address       string `validate:"required,max=200"`
	PostalCode    string `validate:"required,max=16"`
	City          string `validate:"required,max=80"`
}

// ProfileInput carries the editable profile fields.
type ProfileInput struct {
	Name       string `validate:"required,max=120"`
	Address    string `validate:"required,max=200"`
	PostalCode string `validate:"required,max=16"`
	City       string `validate:"required,max=80"`
}

// listing is the cached form of a restaurant, which keeps the id.
type listing struct {
	ID string `json:"id"`
	Restaurant
}
