package orders

import (
	"errors"
	"time"
)

var (
	// ErrNotAccepting indicates the restaurant is closed for new orders.
	ErrNotAccepting = errors.New("orders: restaurant is not accepting orders")
	// ErrEmptyOrder indicates an order without lines.
	ErrEmptyOrder = errors.New("orders: order has no lines")
	// ErrInvalidQuantity indicates a quantity outside 1..MaxQuantity.
	ErrInvalidQuantity = errors.New("orders: invalid quantity")
	// ErrInvalidTransition indicates a status change the order does not allow.
	ErrInvalidTransition = errors.New("orders: invalid status change")
)

// MaxQuantity bounds the quantity of a single line.
const MaxQuantity = 50

// Status is the progress of an order.
type Status string

// Order statuses.
const (
	StatusNew       Status = "new"
	StatusPreparing Status = "preparing"
	StatusReady     Status = "ready"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

var transitions = map[Status][]Status{
	StatusNew:       {StatusPreparing, StatusCancelled},
	StatusPreparing: {StatusReady, StatusCancelled},
	StatusReady:     {StatusDelivered},
}

// Next lists the statuses an order in s may move to.
func (s Status) Next() []Status {
	return transitions[s]
}

// CanBecome reports whether s may change into to.
func (s Status) CanBecome(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Open reports whether the order still needs work.
func (s Status) Open() bool {
	return len(transitions[s]) > 0
}

// Label is the human readable status.
func (s Status) Label() string {
	switch s {
	case StatusNew:
		return "New"
	case StatusPreparing:
		return "Preparing"
	case StatusReady:
		return "Ready"
	case StatusDelivered:
		return "Delivered"
	case StatusCancelled:
		return "Cancelled"
	default:
		return string(s)
	}
}

// Line is one dish in one size.
type Line struct {
	DishID    string `json:"dishId"`
	DishName  string `json:"dishName"`
	SizeID    string `json:"sizeId"`
	SizeName  string `json:"sizeName"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unitPrice"`
	Subtotal  int64  `json:"subtotal"`
}

// Order is a document of the orders collection.
type Order struct {
	ID             string `json:"-"`
	UserID         string `json:"userId"`
	CustomerName   string `json:"customerName"`
	RestaurantID   string `json:"restaurantId"`
	RestaurantName string `json:"restaurantName"`
	Lines          []Line `json:"lines"`
	Total          int64  `json:"total"`
	Status         Status `json:"status"`
	CreatedAt      int64  `json:"createdAt"`
}

// Created returns the creation time.
func (o Order) Created() time.Time {
	return time.UnixMilli(o.CreatedAt)
}

// LineInput is a requested line.
type LineInput struct {
	DishID   string
	SizeID   string
	Quantity int
}

// PlaceInput is a new order.
type PlaceInput struct {
	UserID       string
	CustomerName string
	RestaurantID string
	Lines        []LineInput
}
