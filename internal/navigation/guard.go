package navigation

import (
	"net/http"

	"github.com/food-orders/foodorders/internal/roles"
	"github.com/food-orders/foodorders/internal/routes"
)

// Require guards the view name. Sessions whose role may not open it are
// redirected to the fallback of their role.
func Require(name routes.Name) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			state, ok := StateFromContext(r.Context())
			if !ok || !state.Role.Valid() {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			if Allowed(state.Role, name) {
				next.ServeHTTP(w, r)
				return
			}
			http.Redirect(w, r, routes.Path(Fallback(state.Role)), http.StatusSeeOther)
		})
	}
}

// RequireRole admits only the listed roles and answers 403 otherwise.
func RequireRole(allowed ...roles.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			state, ok := StateFromContext(r.Context())
			if ok {
				for _, role := range allowed {
					if state.Role == role {
						next.ServeHTTP(w, r)
						return
					}
				}
			}
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		})
	}
}
