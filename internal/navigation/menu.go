package navigation

import (
	"strings"

	"github.com/food-orders/foodorders/internal/roles"
	"github.com/food-orders/foodorders/internal/routes"
	"github.com/food-orders/foodorders/internal/view"
)

// Item is one navigation entry.
type Item struct {
	Label string
	Route routes.Name
}

// Menu is the navigation shown to a role.
type Menu struct {
	Brand  routes.Name
	Items  []Item
	Logout bool
}

var menus = map[roles.Role]Menu{
	roles.LoggedOut: {
		Brand: routes.Landing,
		Items: []Item{
			{"Home", routes.Landing},
			{"Register / Login", routes.AuthEntry},
		},
	},
	roles.Customer: {
		Brand: routes.MyOverview,
		Items: []Item{
			{"Overview", routes.MyOverview},
			{"My orders", routes.MyOrders},
			{"Restaurants", routes.Restaurants},
			{"My account", routes.MyAccount},
		},
		Logout: true,
	},
	roles.RestaurantStaff: {
		Brand: routes.Orders,
		Items: []Item{
			{"Orders", routes.Orders},
			{"Our menu", routes.OurMenu},
			{"My account", routes.MyAccount},
		},
		Logout: true,
	},
	roles.Administrator: {
		Brand: routes.ManageRestaurants,
		Items: []Item{
			{"Manage restaurants", routes.ManageRestaurants},
			{"Manage dishes", routes.ManageDishes},
			{"My account", routes.MyAccount},
		},
		Logout: true,
	},
}

// MenuFor returns the navigation of role. An unresolved role gets an empty menu.
func MenuFor(role roles.Role) Menu {
	m, ok := menus[role]
	if !ok {
		return Menu{}
	}
	m.Items = append([]Item(nil), m.Items...)
	return m
}

// View renders the menu for a page at currentPath.
func (m Menu) View(currentPath string) view.Nav {
	nav := view.Nav{Logout: m.Logout}
	if m.Brand != "" {
		nav.Brand = view.NavLink{Label: "Food Orders", Path: routes.Path(m.Brand)}
	}
	for _, item := range m.Items {
		path := routes.Path(item.Route)
		nav.Links = append(nav.Links, view.NavLink{
			Label:  item.Label,
			Path:   path,
			Active: isActive(path, currentPath),
		})
	}
	return nav
}

func isActive(path, current string) bool {
	if path == "/" {
		return current == "/"
	}
	return current == path || strings.HasPrefix(current, path+"/")
}
