// Package linking connects a customer account to an Amazon account through
// Login with Amazon.
package linking

import (
	"context"
	"crypto/hmac"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/amazon"

	"github.com/food-orders/foodorders/internal/accounts"
	"github.com/food-orders/foodorders/internal/navigation"
	"github.com/food-orders/foodorders/internal/roles"
	"github.com/food-orders/foodorders/internal/routes"
	"github.com/food-orders/foodorders/internal/shared"
)

const (
	stateKey          = "amazon_oauth_state"
	defaultProfileURL = "https://api.amazon.com/user/profile"
)

// Config configures Login with Amazon.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// Endpoint and ProfileURL default to the Amazon production endpoints.
	Endpoint   oauth2.Endpoint
	ProfileURL string
	HTTPClient *http.Client
}

// Users stores the linked profile.
type Users interface {
	ByEmail(ctx context.Context, email string) (accounts.User, error)
	LinkAmazon(ctx context.Context, id string, profile accounts.Amazon) error
}

// Profile is the Amazon user profile.
type Profile struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
}

// Handler runs the authorization code flow.
type Handler struct {
	oauth      *oauth2.Config
	profileURL string
	client     *http.Client
	users      Users
	logger     *slog.Logger
}

// NewHandler returns nil when no client id is configured.
func NewHandler(cfg Config, users Users, logger *slog.Logger) *Handler {
	if cfg.ClientID == "" {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	endpoint := cfg.Endpoint
	if endpoint.AuthURL == "" {
		endpoint = amazon.Endpoint
	}
	profileURL := cfg.ProfileURL
	if profileURL == "" {
		profileURL = defaultProfileURL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Handler{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       []string{"profile"},
		},
		profileURL: profileURL,
		client:     client,
		users:      users,
		logger:     logger,
	}
}

// MountRoutes registers the link and callback endpoints below the account page.
func (h *Handler) MountRoutes(r chi.Router) {
	base := routes.Pattern(routes.MyAccount) + "/amazon"
	r.Group(func(r chi.Router) {
		r.Use(navigation.Require(routes.MyAccount), navigation.RequireRole(roles.Customer))
		r.Get(base, h.start)
		r.Get(base+"/callback", h.callback)
	})
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	state := uuid.NewString()
	sess.Set(stateKey, state)
	http.Redirect(w, r, h.oauth.AuthCodeURL(state), http.StatusFound)
}

func (h *Handler) callback(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	state, _ := navigation.StateFromContext(r.Context())
	if sess == nil || state.Principal == nil {
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	}
	expected := sess.Get(stateKey)
	sess.Delete(stateKey)

	query := r.URL.Query()
	if errParam := query.Get("error"); errParam != "" {
		h.logger.Info("amazon link declined", slog.String("reason", errParam))
		h.finish(w, r, "error", "Your Amazon account was not linked")
		return
	}
	got := query.Get("state")
	if expected == "" || got == "" || !hmac.Equal([]byte(expected), []byte(got)) {
		http.Error(w, "invalid state", http.StatusBadRequest)
		return
	}
	code := query.Get("code")
	if code == "" {
		http.Error(w, "missing code", http.StatusBadRequest)
		return
	}

	profile, err := h.fetchProfile(r.Context(), code)
	if err != nil {
		h.logger.Error("fetch amazon profile", slog.Any("error", err))
		h.finish(w, r, "error", "We could not reach Amazon, please try again")
		return
	}
	user, err := h.users.ByEmail(r.Context(), state.Principal.Email)
	if err != nil {
		h.logger.Error("load user for amazon link", slog.Any("error", err))
		h.finish(w, r, "error", "Your Amazon account was not linked")
		return
	}
	if err := h.users.LinkAmazon(r.Context(), user.ID, accounts.Amazon{Name: profile.Name, Email: profile.Email}); err != nil {
		h.logger.Error("link amazon", slog.Any("error", err))
		h.finish(w, r, "error", "Your Amazon account was not linked")
		return
	}
	h.finish(w, r, "success", "Your Amazon account is linked")
}

func (h *Handler) fetchProfile(ctx context.Context, code string) (Profile, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, h.client)
	token, err := h.oauth.Exchange(ctx, code)
	if err != nil {
		return Profile{}, fmt.Errorf("linking: exchange code: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.profileURL, nil)
	if err != nil {
		return Profile{}, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := h.oauth.Client(ctx, token).Do(req)
	if err != nil {
		return Profile{}, fmt.Errorf("linking: fetch profile: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Profile{}, fmt.Errorf("linking: fetch profile: status %d", resp.StatusCode)
	}
	var profile Profile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return Profile{}, fmt.Errorf("linking: decode profile: %w", err)
	}
	if profile.Email == "" {
		return Profile{}, errors.New("linking: profile without email")
	}
	return profile, nil
}

func (h *Handler) finish(w http.ResponseWriter, r *http.Request, kind, message string) {
	navigation.Flash(r, kind, message)
	http.Redirect(w, r, routes.Path(routes.MyAccount), http.StatusSeeOther)
}
