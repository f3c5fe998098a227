// Package navigation decides where a browser session may go. Decide is the
// pure decision; Gate executes it over HTTP.
package navigation

import (
	"github.com/food-orders/foodorders/internal/roles"
	"github.com/food-orders/foodorders/internal/routes"
	"github.com/food-orders/foodorders/internal/session"
)

// Kind is the outcome of a navigation decision.
type Kind uint8

const (
	// Allow renders the requested view.
	Allow Kind = iota
	// Defer suppresses role dependent rendering while the role is resolving.
	Defer
	// Retry offers to re-run a failed role resolution.
	Retry
	// Redirect sends the browser to Target.
	Redirect
)

func (k Kind) String() string {
	switch k {
	case Allow:
		return "allow"
	case Defer:
		return "defer"
	case Retry:
		return "retry"
	case Redirect:
		return "redirect"
	default:
		return "unknown"
	}
}

// Decision is the result of Decide.
type Decision struct {
	Kind   Kind
	Target string
}

// Decide evaluates the session state against the requested path. Only the
// auth entry view redirects: a signed-in principal is sent to the landing
// route of its role.
func Decide(state session.State, path string) Decision {
	if state.Loading {
		return Decision{Kind: Defer}
	}
	if state.Failed() {
		return Decision{Kind: Retry}
	}
	name, _, ok := routes.Match(path)
	if ok && name == routes.AuthEntry && state.Role.Authenticated() {
		return Decision{Kind: Redirect, Target: routes.Path(Landing(state.Role))}
	}
	return Decision{Kind: Allow}
}

// Landing returns the canonical landing route of role.
func Landing(role roles.Role) routes.Name {
	switch role {
	case roles.Customer:
		return routes.MyOverview
	case roles.Administrator:
		return routes.ManageRestaurants
	case roles.RestaurantStaff:
		return routes.Orders
	default:
		return routes.Landing
	}
}
