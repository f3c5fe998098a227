package navigation

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/food-orders/foodorders/internal/routes"
	"github.com/food-orders/foodorders/internal/session"
	"github.com/food-orders/foodorders/internal/shared"
	"github.com/food-orders/foodorders/internal/view"
)

type stateContextKey struct{}

// ContextWithState stores the session state in ctx.
func ContextWithState(ctx context.Context, state session.State) context.Context {
	return context.WithValue(ctx, stateContextKey{}, state)
}

// StateFromContext returns the session state stored by the Gate.
func StateFromContext(ctx context.Context) (session.State, bool) {
	state, ok := ctx.Value(stateContextKey{}).(session.State)
	return state, ok
}

// Stores returns the session store of a browser session.
type Stores interface {
	Get(ctx context.Context, sid string) (*session.Store, error)
}

// Gate applies Decide to every request passing through it.
type Gate struct {
	stores    Stores
	templates *view.Engine
	csrf      *shared.CSRFManager
	wait      time.Duration
	logger    *slog.Logger
}

// NewGate constructs a Gate that waits up to wait for a role to resolve.
func NewGate(stores Stores, templates *view.Engine, csrf *shared.CSRFManager, wait time.Duration, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{stores: stores, templates: templates, csrf: csrf, wait: wait, logger: logger}
}

// Middleware resolves the session state and executes the decision.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		if sess == nil {
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		store, err := g.stores.Get(r.Context(), sess.ID)
		if err != nil {
			g.logger.Error("open session store", slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
			return
		}
		state := g.settle(r.Context(), store)
		r = r.WithContext(ContextWithState(r.Context(), state))

		decision := Decide(state, r.URL.EscapedPath())
		switch decision.Kind {
		case Redirect:
			http.Redirect(w, r, decision.Target, http.StatusSeeOther)
		case Defer:
			if !isRead(r) {
				http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
				return
			}
			w.Header().Set("Refresh", "1")
			g.render(w, r, "pages/loading.html", "Loading", nil, http.StatusServiceUnavailable)
		case Retry:
			if !isRead(r) {
				http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
				return
			}
			g.render(w, r, "pages/session_error.html", "Something went wrong", map[string]any{
				"Next": r.URL.RequestURI(),
			}, http.StatusServiceUnavailable)
		default:
			next.ServeHTTP(w, r)
		}
	})
}

// HandleRetry re-runs a failed role resolution and returns to the page that failed.
func (g *Gate) HandleRetry(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	store, err := g.stores.Get(r.Context(), sess.ID)
	if err != nil {
		g.logger.Error("open session store", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	if store.Retry() {
		g.logger.Info("retry role resolution", slog.String("sid", sess.ID))
	}
	http.Redirect(w, r, localPath(r.PostFormValue("next")), http.StatusSeeOther)
}

func (g *Gate) settle(ctx context.Context, store *session.Store) session.State {
	if g.wait <= 0 {
		return store.State()
	}
	waitCtx, cancel := context.WithTimeout(ctx, g.wait)
	defer cancel()
	state, err := store.Settled(waitCtx)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		g.logger.Warn("wait for session state", slog.Any("error", err))
	}
	return state
}

func (g *Gate) render(w http.ResponseWriter, r *http.Request, template, title string, data map[string]any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken := ""
	if g.csrf != nil {
		csrfToken, _ = g.csrf.EnsureToken(r.Context(), sess)
	}
	viewData := view.TemplateData{
		Title:       title,
		CSRFToken:   csrfToken,
		CurrentPath: r.URL.Path,
		Data:        data,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := g.templates.Render(w, template, viewData); err != nil {
		g.logger.Error("render template", slog.Any("error", err), slog.String("template", template))
	}
}

func isRead(r *http.Request) bool {
	return r.Method == http.MethodGet || r.Method == http.MethodHead
}

// localPath keeps redirects on this site.
func localPath(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.IsAbs() || u.Host != "" || !strings.HasPrefix(u.Path, "/") || strings.HasPrefix(raw, "//") {
		return routes.Path(routes.Landing)
	}
	return u.RequestURI()
}

// Decorate fills the role dependent parts of the page data from the request.
func Decorate(r *http.Request, data *view.TemplateData) {
	state, ok := StateFromContext(r.Context())
	if !ok {
		return
	}
	data.Nav = MenuFor(state.Role).View(r.URL.Path)
	data.Role = state.Role.String()
	if state.Principal != nil {
		data.Email = state.Principal.Email
	}
}
