package navigation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/food-orders/foodorders/internal/identity"
	"github.com/food-orders/foodorders/internal/roles"
	"github.com/food-orders/foodorders/internal/routes"
	"github.com/food-orders/foodorders/internal/session"
)

func settled(role roles.Role) session.State {
	state := session.State{Role: role}
	if role.Authenticated() {
		state.Principal = &identity.Principal{ID: "p1", Email: "x@y.com"}
	}
	return state
}

func TestDecideOnAuthEntry(t *testing.T) {
	cases := []struct {
		role   roles.Role
		target string
	}{
		{roles.Customer, "/my-overview"},
		{roles.Administrator, "/manage-restaurants"},
		{roles.RestaurantStaff, "/orders"},
	}
	for _, tc := range cases {
		t.Run(tc.role.String(), func(t *testing.T) {
			d := Decide(settled(tc.role), "/register-login")
			assert.Equal(t, Decision{Kind: Redirect, Target: tc.target}, d)

			again := Decide(settled(tc.role), "/register-login")
			assert.Equal(t, d, again)

			after := Decide(settled(tc.role), d.Target)
			assert.Equal(t, Allow, after.Kind)
		})
	}
}

func TestDecideLoggedOutRendersEntry(t *testing.T) {
	assert.Equal(t, Decision{Kind: Allow}, Decide(settled(roles.LoggedOut), "/register-login"))
	assert.Equal(t, Decision{Kind: Allow}, Decide(settled(roles.LoggedOut), "/register-login/"))
}

func TestDecideDefersWhileLoading(t *testing.T) {
	state := session.State{Principal: &identity.Principal{Email: "x@y.com"}, Loading: true}
	for _, path := range []string{"/register-login", "/", "/orders", "/nope"} {
		assert.Equal(t, Decision{Kind: Defer}, Decide(state, path), path)
	}
}

func TestDecideRetryAfterFailure(t *testing.T) {
	state := session.State{Principal: &identity.Principal{Email: "x@y.com"}, Err: errors.New("boom")}
	assert.Equal(t, Decision{Kind: Retry}, Decide(state, "/register-login"))
}

func TestDecideLeavesOtherRoutesAlone(t *testing.T) {
	for _, role := range roles.All() {
		for _, d := range routes.All() {
			if d.Name == routes.AuthEntry {
				continue
			}
			path := routes.Path(d.Name, "x1")
			assert.Equal(t, Allow, Decide(settled(role), path).Kind, "%s %s", role, path)
		}
		assert.Equal(t, Allow, Decide(settled(role), "/unknown/page").Kind)
	}
}

func TestLanding(t *testing.T) {
	assert.Equal(t, routes.MyOverview, Landing(roles.Customer))
	assert.Equal(t, routes.ManageRestaurants, Landing(roles.Administrator))
	assert.Equal(t, routes.Orders, Landing(roles.RestaurantStaff))
	assert.Equal(t, routes.Landing, Landing(roles.LoggedOut))
}

func TestLandingAndFallbackAreReachable(t *testing.T) {
	for _, role := range roles.All() {
		assert.True(t, Allowed(role, Landing(role)), role.String())
		assert.True(t, Allowed(role, Fallback(role)), role.String())
		assert.True(t, Allowed(role, routes.NotFound), role.String())
	}
	for _, d := range routes.All() {
		_, ok := access[d.Name]
		assert.True(t, ok, "no access rule for %s", d.Name)
	}
}

func TestMenuOnlyLinksAllowedRoutes(t *testing.T) {
	for _, role := range roles.All() {
		menu := MenuFor(role)
		assert.True(t, Allowed(role, menu.Brand), role.String())
		assert.NotEmpty(t, menu.Items)
		for _, item := range menu.Items {
			assert.True(t, Allowed(role, item.Route), "%s -> %s", role, item.Route)
		}
		assert.Equal(t, role.Authenticated(), menu.Logout)
	}
	assert.Empty(t, MenuFor(0).Items)
}

func TestMenuViewMarksActiveLink(t *testing.T) {
	nav := MenuFor(roles.RestaurantStaff).View("/orders/o1")
	assert.Equal(t, "/orders", nav.Brand.Path)
	var active []string
	for _, link := range nav.Links {
		if link.Active {
			active = append(active, link.Path)
		}
	}
	assert.Equal(t, []string{"/orders"}, active)

	nav = MenuFor(roles.LoggedOut).View("/register-login")
	assert.False(t, nav.Links[0].Active)
	assert.True(t, nav.Links[1].Active)
}

func TestLocalPath(t *testing.T) {
	assert.Equal(t, "/orders?x=1", localPath("/orders?x=1"))
	assert.Equal(t, "/", localPath("https://evil.example/"))
	assert.Equal(t, "/", localPath("//evil.example/"))
	assert.Equal(t, "/", localPath(""))
}
