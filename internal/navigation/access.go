package navigation

import (
	"github.com/food-orders/foodorders/internal/roles"
	"github.com/food-orders/foodorders/internal/routes"
)

var (
	everyone      = roles.All()
	authenticated = []roles.Role{roles.Customer, roles.RestaurantStaff, roles.Administrator}
	customers     = []roles.Role{roles.Customer}
	staff         = []roles.Role{roles.RestaurantStaff}
	admins        = []roles.Role{roles.Administrator}
)

var access = map[routes.Name][]roles.Role{
	routes.Landing:           everyone,
	routes.Home:              everyone,
	routes.AuthEntry:         everyone,
	routes.ForgotPassword:    everyone,
	routes.ResetPassword:     everyone,
	routes.NotFound:          everyone,
	routes.MyAccount:         authenticated,
	routes.MyOverview:        customers,
	routes.MyOrders:          customers,
	routes.MyOrderDetail:     customers,
	routes.Restaurants:       customers,
	routes.RestaurantMenu:    customers,
	routes.Orders:            staff,
	routes.OrderDetail:       staff,
	routes.OurMenu:           staff,
	routes.NewDish:           staff,
	routes.ManageSizes:       staff,
	routes.DishDetail:        staff,
	routes.ManageRestaurants: admins,
	routes.ManageDishes:      admins,
}

// Allowed reports whether role may open the view name.
func Allowed(role roles.Role, name routes.Name) bool {
	for _, r := range access[name] {
		if r == role {
			return true
		}
	}
	return false
}

// Fallback is where a guard sends role when it may not open a view.
func Fallback(role roles.Role) routes.Name {
	if role == roles.LoggedOut {
		return routes.AuthEntry
	}
	return Landing(role)
}
