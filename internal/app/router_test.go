package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/food-orders/foodorders/internal/identity"
	"github.com/food-orders/foodorders/internal/navigation"
	"github.com/food-orders/foodorders/internal/observability"
	"github.com/food-orders/foodorders/internal/roles"
	"github.com/food-orders/foodorders/internal/session"
	"github.com/food-orders/foodorders/internal/shared"
	"github.com/food-orders/foodorders/internal/view"
)

type staticSource struct {
	principal *identity.Principal
}

func (s staticSource) OnAuthStateChanged(ctx context.Context, sid string, fn func(*identity.Principal)) (func(), error) {
	fn(s.principal)
	return func() {}, nil
}

type staticResolver roles.Role

func (r staticResolver) Resolve(ctx context.Context, email string) (roles.Role, error) {
	return roles.Role(r), nil
}

func newTestRouter(t *testing.T, principal *identity.Principal, role roles.Role) http.Handler {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	templates, err := view.NewEngine()
	require.NoError(t, err)
	csrf := shared.NewCSRFManager("test-csrf")
	sessions := shared.NewSessionManager(client, "foodorders_session", "test-session", time.Hour, false)
	registry := session.NewRegistry(staticSource{principal: principal}, staticResolver(role), session.RegistryConfig{IdleTTL: time.Minute}, logger)
	t.Cleanup(registry.Close)

	cfg := &Config{AppEnv: "test", AppRequestTimeout: 5 * time.Second}
	return NewRouter(RouterParams{
		Logger:         logger,
		Config:         cfg,
		Templates:      templates,
		SessionManager: sessions,
		CSRFManager:    csrf,
		Gate:           navigation.NewGate(registry, templates, csrf, time.Second, logger),
		Metrics:        observability.NewMetrics(),
	})
}

func TestHealthz(t *testing.T) {
	router := newTestRouter(t, nil, roles.LoggedOut)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rr.Header().Get("Set-Cookie"))
}

func TestUnknownPathRendersNotFound(t *testing.T) {
	router := newTestRouter(t, &identity.Principal{ID: "u1", Email: "ann@example.com"}, roles.Customer)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/does/not/exist", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "Page not found")
	assert.Contains(t, body, `href="/my-overview"`)
	assert.Contains(t, body, `action="/logout"`)
}

func TestPostWithoutCSRFIsRejected(t *testing.T) {
	router := newTestRouter(t, nil, roles.LoggedOut)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/session/retry", strings.NewReader(url.Values{"next": {"/"}}.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestStaticAssetsAreCached(t *testing.T) {
	router := newTestRouter(t, nil, roles.LoggedOut)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/static/css/app.css", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "public, max-age=3600", rr.Header().Get("Cache-Control"))
}

func TestMetricsEndpoint(t *testing.T) {
	router := newTestRouter(t, nil, roles.LoggedOut)
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "foodorders_http_requests_total")
}
