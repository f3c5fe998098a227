// Package routes is the static table of page names and their path patterns.
package routes

import (
	"net/url"
	"strings"
)

// Name identifies a page.
type Name string

// Page names.
const (
	Landing           Name = "Landing"
	Home              Name = "Home"
	AuthEntry         Name = "AuthEntry"
	ForgotPassword    Name = "ForgotPassword"
	ResetPassword     Name = "ResetPassword"
	MyAccount         Name = "MyAccount"
	MyOverview        Name = "MyOverview"
	MyOrders          Name = "MyOrders"
	MyOrderDetail     Name = "MyOrderDetail"
	Restaurants       Name = "Restaurants"
	RestaurantMenu    Name = "RestaurantMenu"
	Orders            Name = "Orders"
	OrderDetail       Name = "OrderDetail"
	OurMenu           Name = "OurMenu"
	NewDish           Name = "NewDish"
	ManageSizes       Name = "ManageSizes"
	DishDetail        Name = "DishDetail"
	ManageRestaurants Name = "ManageRestaurants"
	ManageDishes      Name = "ManageDishes"
	// NotFound is the fallback page. It has no pattern.
	NotFound Name = "NotFound"
)

// Placeholder is the positional identifier segment of a pattern.
const Placeholder = "{id}"

// Descriptor binds a page name to its path pattern.
type Descriptor struct {
	Name    Name
	Pattern string
}

var table = []Descriptor{
	{Landing, "/"},
	{Home, "/home"},
	{AuthEntry, "/register-login"},
	{ForgotPassword, "/forgot-password"},
	{ResetPassword, "/reset-password"},
	{MyAccount, "/my-account"},
	{MyOverview, "/my-overview"},
	{MyOrders, "/my-orders"},
	{MyOrderDetail, "/my-orders/{id}"},
	{Restaurants, "/restaurants"},
	{RestaurantMenu, "/restaurants/{id}"},
	{Orders, "/orders"},
	{OrderDetail, "/orders/{id}"},
	{OurMenu, "/our-menu"},
	{NewDish, "/our-menu/new-dish"},
	{ManageSizes, "/our-menu/manage-sizes"},
	{DishDetail, "/our-menu/{id}"},
	{ManageRestaurants, "/manage-restaurants"},
	{ManageDishes, "/manage-dishes"},
}

var byName = func() map[Name]string {
	m := make(map[Name]string, len(table))
	for _, d := range table {
		m[d.Name] = d.Pattern
	}
	return m
}()

// All returns the descriptors in declaration order.
func All() []Descriptor {
	out := make([]Descriptor, len(table))
	copy(out, table)
	return out
}

// Pattern returns the path pattern for name, or "" for NotFound and unknown names.
func Pattern(name Name) string {
	return byName[name]
}

// Path renders the path for name, substituting id into the placeholder.
func Path(name Name, id ...string) string {
	pattern := byName[name]
	if !strings.Contains(pattern, Placeholder) {
		return pattern
	}
	value := ""
	if len(id) > 0 {
		value = url.PathEscape(id[0])
	}
	return strings.Replace(pattern, Placeholder, value, 1)
}

// Match resolves a request path to a page name and the placeholder value.
// Static segments take precedence over the placeholder.
func Match(path string) (Name, string, bool) {
	if path != "/" {
		path = strings.TrimSuffix(path, "/")
	}
	var (
		fallback   Name
		fallbackID string
		found      bool
	)
	for _, d := range table {
		id, ok, exact := matchPattern(d.Pattern, path)
		if !ok {
			continue
		}
		if exact {
			return d.Name, "", true
		}
		if !found {
			fallback, fallbackID, found = d.Name, id, true
		}
	}
	if found {
		return fallback, fallbackID, true
	}
	return NotFound, "", false
}

func matchPattern(pattern, path string) (id string, ok bool, exact bool) {
	if !strings.Contains(pattern, Placeholder) {
		return "", pattern == path, true
	}
	prefix, suffix, _ := strings.Cut(pattern, Placeholder)
	if !strings.HasPrefix(path, prefix) || !strings.HasSuffix(path, suffix) {
		return "", false, false
	}
	raw := path[len(prefix) : len(path)-len(suffix)]
	if raw == "" || strings.Contains(raw, "/") {
		return "", false, false
	}
	value, err := url.PathUnescape(raw)
	if err != nil {
		return "", false, false
	}
	return value, true, false
}
