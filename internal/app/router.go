package app

import (
	"io/fs"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/food-orders/foodorders/internal/accounts"
	"github.com/food-orders/foodorders/internal/linking"
	"github.com/food-orders/foodorders/internal/menu"
	"github.com/food-orders/foodorders/internal/navigation"
	"github.com/food-orders/foodorders/internal/observability"
	"github.com/food-orders/foodorders/internal/orders"
	"github.com/food-orders/foodorders/internal/platform/httpx"
	"github.com/food-orders/foodorders/internal/restaurants"
	"github.com/food-orders/foodorders/internal/shared"
	"github.com/food-orders/foodorders/internal/view"
	"github.com/food-orders/foodorders/jobs"
	"github.com/food-orders/foodorders/web"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	Templates      *view.Engine
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	Gate           *navigation.Gate
	Metrics        *observability.Metrics

	AccountsHandler    *accounts.Handler
	LinkingHandler     *linking.Handler
	RestaurantsHandler *restaurants.Handler
	MenuHandler        *menu.Handler
	OrdersHandler      *orders.Handler
	JobHandler         *jobs.Handler

	UploadsPrefix  string
	UploadsHandler http.Handler
}

// NewRouter constructs the chi.Router serving the application.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.RequestLogger(&chimw.DefaultLogFormatter{
		Logger:  slog.NewLogLogger(params.Logger.Handler(), slog.LevelInfo),
		NoColor: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", cacheHandler(fileServer, "public, max-age=3600"))
	}
	if params.UploadsHandler != nil && params.UploadsPrefix != "" {
		prefix := "/" + strings.Trim(params.UploadsPrefix, "/")
		r.Handle(prefix+"/*", cacheHandler(params.UploadsHandler, "public, max-age=86400"))
	}

	// Logging out and retrying a failed resolution must work in any state.
	r.Post("/session/retry", params.Gate.HandleRetry)
	if params.AccountsHandler != nil {
		params.AccountsHandler.MountLogout(r)
	}

	r.Group(func(r chi.Router) {
		r.Use(params.Gate.Middleware)
		if params.RestaurantsHandler != nil {
			params.RestaurantsHandler.MountRoutes(r)
		}
		if params.AccountsHandler != nil {
			params.AccountsHandler.MountRoutes(r)
		}
		if params.LinkingHandler != nil {
			params.LinkingHandler.MountRoutes(r)
		}
		if params.MenuHandler != nil {
			params.MenuHandler.MountRoutes(r)
		}
		if params.OrdersHandler != nil {
			params.OrdersHandler.MountRoutes(r)
		}
	})

	r.NotFound(params.Gate.Middleware(notFoundHandler(params)).ServeHTTP)

	return r
}

func notFoundHandler(params RouterParams) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data := navigation.Page(r, params.CSRFManager, "Page not found", map[string]any{"Path": r.URL.Path})
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusNotFound)
		if err := params.Templates.Render(w, "pages/not_found.html", data); err != nil {
			params.Logger.Error("render not found", slog.Any("error", err))
		}
	})
}

// cacheHandler sets Cache-Control on every response of next.
func cacheHandler(next http.Handler, policy string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", policy)
		next.ServeHTTP(w, r)
	})
}
