package routes

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPatternsAreUnique(t *testing.T) {
	seen := map[string]Name{}
	for _, d := range All() {
		if other, ok := seen[d.Pattern]; ok {
			t.Fatalf("%s and %s share pattern %s", d.Name, other, d.Pattern)
		}
		seen[d.Pattern] = d.Name
		assert.LessOrEqual(t, strings.Count(d.Pattern, Placeholder), 1, d.Name)
	}
	assert.Len(t, seen, 19)
	assert.Equal(t, "", Pattern(NotFound))
}

func TestPath(t *testing.T) {
	assert.Equal(t, "/register-login", Path(AuthEntry))
	assert.Equal(t, "/my-orders/abc", Path(MyOrderDetail, "abc"))
	assert.Equal(t, "/restaurants/a%2Fb", Path(RestaurantMenu, "a/b"))
	assert.Equal(t, "/manage-dishes", Path(ManageDishes, "ignored"))
}

func TestMatch(t *testing.T) {
	cases := []struct {
		path string
		name Name
		id   string
		ok   bool
	}{
		{"/", Landing, "", true},
		{"/home", Home, "", true},
		{"/register-login", AuthEntry, "", true},
		{"/register-login/", AuthEntry, "", true},
		{"/our-menu/new-dish", NewDish, "", true},
		{"/our-menu/manage-sizes", ManageSizes, "", true},
		{"/our-menu/d42", DishDetail, "d42", true},
		{"/orders/o1", OrderDetail, "o1", true},
		{"/restaurants/a%2Fb", RestaurantMenu, "a/b", true},
		{"/orders/o1/extra", NotFound, "", false},
		{"/nope", NotFound, "", false},
	}
	for _, tc := range cases {
		name, id, ok := Match(tc.path)
		assert.Equal(t, tc.name, name, tc.path)
		assert.Equal(t, tc.id, id, tc.path)
		assert.Equal(t, tc.ok, ok, tc.path)
	}
}

func TestPathMatchRoundTrip(t *testing.T) {
	for _, d := range All() {
		name, _, ok := Match(Path(d.Name, "x1"))
		assert.True(t, ok, d.Name)
		assert.Equal(t, d.Name, name)
	}
}
