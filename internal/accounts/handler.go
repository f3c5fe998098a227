package accounts

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/food-orders/foodorders/internal/identity"
	"github.com/food-orders/foodorders/internal/navigation"
	"github.com/food-orders/foodorders/internal/restaurants"
	"github.com/food-orders/foodorders/internal/roles"
	"github.com/food-orders/foodorders/internal/routes"
	"github.com/food-orders/foodorders/internal/shared"
	"github.com/food-orders/foodorders/internal/view"
)

// Profiles gives access to the restaurant profile of staff accounts.
type Profiles interface {
	ByEmail(ctx context.Context, email string) (restaurants.Restaurant, error)
	UpdateProfile(ctx context.Context, id string, in restaurants.ProfileInput) error
}

// Stores forgets the session store of a browser session.
type Stores interface {
	Drop(sid string)
}

// Handler wires the account pages.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	profiles    Profiles
	templates   *view.Engine
	sessions    *shared.SessionManager
	stores      Stores
	csrf        *shared.CSRFManager
	validator   *validator.Validate
	amazonReady bool
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service, profiles Profiles, templates *view.Engine, sessions *shared.SessionManager, stores Stores, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		service:   service,
		profiles:  profiles,
		templates: templates,
		sessions:  sessions,
		stores:    stores,
		csrf:      csrf,
		validator: validator.New(),
	}
}

// EnableAmazon shows the link button on the account page.
func (h *Handler) EnableAmazon() {
	h.amazonReady = true
}

// MountRoutes registers account routes. Logout is mounted separately by
// MountLogout since it must work whatever the session state is.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(navigation.Require(routes.AuthEntry)).Get(routes.Pattern(routes.AuthEntry), h.showAuth)
	r.With(navigation.Require(routes.AuthEntry)).Post(routes.Pattern(routes.AuthEntry), h.handleAuth)
	r.With(navigation.Require(routes.ForgotPassword)).Get(routes.Pattern(routes.ForgotPassword), h.showForgot)
	r.With(navigation.Require(routes.ForgotPassword)).Post(routes.Pattern(routes.ForgotPassword), h.handleForgot)
	r.With(navigation.Require(routes.ResetPassword)).Get(routes.Pattern(routes.ResetPassword), h.showReset)
	r.With(navigation.Require(routes.ResetPassword)).Post(routes.Pattern(routes.ResetPassword), h.handleReset)
	r.Group(func(r chi.Router) {
		r.Use(navigation.Require(routes.MyAccount))
		r.Get(routes.Pattern(routes.MyAccount), h.showAccount)
		r.Post(routes.Pattern(routes.MyAccount), h.updateAccount)
		r.Post(routes.Pattern(routes.MyAccount)+"/amazon/unlink", h.unlinkAmazon)
	})
}

// MountLogout registers the sign-out endpoint.
func (h *Handler) MountLogout(r chi.Router) {
	r.Post("/logout", h.handleLogout)
}

type authPageData struct {
	Register       RegisterInput
	Login          LoginInput
	RegisterErrors shared.FormErrors
	LoginErrors    shared.FormErrors
}

func (h *Handler) showAuth(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "pages/auth.html", "Register or log in", authPageData{}, http.StatusOK)
}

func (h *Handler) handleAuth(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if r.PostFormValue("form") == "register" {
		h.handleRegister(w, r, sess.ID)
		return
	}
	h.handleLogin(w, r, sess.ID)
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request, sid string) {
	form := RegisterInput{
		Name:     strings.TrimSpace(r.PostFormValue("name")),
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
	}
	data := authPageData{Register: RegisterInput{Name: form.Name, Email: form.Email}}
	if err := h.validator.Struct(form); err != nil {
		data.RegisterErrors = shared.ValidationErrors(err)
		h.render(w, r, "pages/auth.html", "Register or log in", data, http.StatusBadRequest)
		return
	}
	if _, err := h.service.Register(r.Context(), sid, form); err != nil {
		switch {
		case errors.Is(err, ErrEmailInUse):
			data.RegisterErrors = shared.FormErrors{"Email": "An account with this email already exists"}
		case errors.Is(err, identity.ErrWeakPassword):
			data.RegisterErrors = shared.FormErrors{"Password": "Must be at least 6 characters"}
		case errors.Is(err, identity.ErrPasswordTooLong):
			data.RegisterErrors = shared.FormErrors{"Password": "Must be at most 72 characters"}
		default:
			h.logger.Error("register", slog.Any("error", err))
			data.RegisterErrors = shared.FormErrors{"general": "Registration failed, please try again"}
		}
		h.render(w, r, "pages/auth.html", "Register or log in", data, http.StatusBadRequest)
		return
	}
	navigation.Flash(r, "success", "Welcome to Food Orders")
	http.Redirect(w, r, routes.Path(routes.AuthEntry), http.StatusSeeOther)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request, sid string) {
	form := LoginInput{
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
	}
	data := authPageData{Login: LoginInput{Email: form.Email}}
	if err := h.validator.Struct(form); err != nil {
		data.LoginErrors = shared.ValidationErrors(err)
		h.render(w, r, "pages/auth.html", "Register or log in", data, http.StatusBadRequest)
		return
	}
	if _, err := h.service.Login(r.Context(), sid, form); err != nil {
		if !errors.Is(err, shared.ErrInvalidCredentials) {
			h.logger.Error("login", slog.Any("error", err))
		}
		data.LoginErrors = shared.FormErrors{"general": "Email or password is not valid"}
		h.render(w, r, "pages/auth.html", "Register or log in", data, http.StatusBadRequest)
		return
	}
	http.Redirect(w, r, routes.Path(routes.AuthEntry), http.StatusSeeOther)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		if err := h.service.Logout(r.Context(), sess.ID); err != nil {
			h.logger.Warn("sign out", slog.Any("error", err))
		}
		if h.stores != nil {
			h.stores.Drop(sess.ID)
		}
		h.sessions.Destroy(sess)
	}
	http.Redirect(w, r, routes.Path(routes.Landing), http.StatusSeeOther)
}

type forgotPageData struct {
	Email  string
	Errors shared.FormErrors
}

func (h *Handler) showForgot(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "pages/forgot_password.html", "Forgot password", forgotPageData{}, http.StatusOK)
}

func (h *Handler) handleForgot(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.PostFormValue("email"))
	if err := h.validator.Var(email, "required,email"); err != nil {
		h.render(w, r, "pages/forgot_password.html", "Forgot password", forgotPageData{
			Email:  email,
			Errors: shared.FormErrors{"Email": "Enter a valid email address"},
		}, http.StatusBadRequest)
		return
	}
	if err := h.service.RequestPasswordReset(r.Context(), email); err != nil {
		h.logger.Error("request password reset", slog.Any("error", err))
		h.render(w, r, "pages/forgot_password.html", "Forgot password", forgotPageData{
			Email:  email,
			Errors: shared.FormErrors{"general": "We could not send the email, please try again later"},
		}, http.StatusServiceUnavailable)
		return
	}
	navigation.Flash(r, "success", "If an account exists for "+email+", a reset link is on its way")
	http.Redirect(w, r, routes.Path(routes.ForgotPassword), http.StatusSeeOther)
}

type resetPageData struct {
	Token  string
	Errors shared.FormErrors
}

func (h *Handler) showReset(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "pages/reset_password.html", "Choose a new password", resetPageData{Token: r.URL.Query().Get("token")}, http.StatusOK)
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	form := ResetInput{
		Token:    r.PostFormValue("token"),
		Password: r.PostFormValue("password"),
		Confirm:  r.PostFormValue("confirm"),
	}
	data := resetPageData{Token: form.Token}
	if err := h.validator.Struct(form); err != nil {
		data.Errors = shared.ValidationErrors(err)
		h.render(w, r, "pages/reset_password.html", "Choose a new password", data, http.StatusBadRequest)
		return
	}
	if err := h.service.ResetPassword(r.Context(), form.Token, form.Password); err != nil {
		switch {
		case errors.Is(err, identity.ErrInvalidResetToken):
			data.Errors = shared.FormErrors{"general": "This reset link is no longer valid, request a new one"}
		case errors.Is(err, identity.ErrWeakPassword):
			data.Errors = shared.FormErrors{"Password": "Must be at least 6 characters"}
		case errors.Is(err, identity.ErrPasswordTooLong):
			data.Errors = shared.FormErrors{"Password": "Must be at most 72 characters"}
		default:
			h.logger.Error("reset password", slog.Any("error", err))
			data.Errors = shared.FormErrors{"general": "Something went wrong, please try again"}
		}
		h.render(w, r, "pages/reset_password.html", "Choose a new password", data, http.StatusBadRequest)
		return
	}
	navigation.Flash(r, "success", "Your password was changed, you can log in now")
	http.Redirect(w, r, routes.Path(routes.AuthEntry), http.StatusSeeOther)
}

type accountPageData struct {
	User        *User
	Restaurant  *restaurants.Restaurant
	AmazonReady bool
	Errors      shared.FormErrors
}

func (h *Handler) showAccount(w http.ResponseWriter, r *http.Request) {
	data, err := h.loadAccount(r)
	if err != nil {
		h.failAccount(w, r, err)
		return
	}
	h.render(w, r, "pages/my_account.html", "My account", data, http.StatusOK)
}

func (h *Handler) updateAccount(w http.ResponseWriter, r *http.Request) {
	data, err := h.loadAccount(r)
	if err != nil {
		h.failAccount(w, r, err)
		return
	}
	if data.Restaurant != nil {
		form := restaurants.ProfileInput{
			Name:       strings.TrimSpace(r.PostFormValue("name")),
			Address:    strings.TrimSpace(r.PostFormValue("address")),
			PostalCode: strings.TrimSpace(r.PostFormValue("postalCode")),
			City:       strings.TrimSpace(r.PostFormValue("city")),
		}
		if err := h.validator.Struct(form); err != nil {
			data.Errors = shared.ValidationErrors(err)
			h.render(w, r, "pages/my_account.html", "My account", data, http.StatusBadRequest)
			return
		}
		if err := h.profiles.UpdateProfile(r.Context(), data.Restaurant.ID, form); err != nil {
			h.failAccount(w, r, err)
			return
		}
	} else {
		name := strings.TrimSpace(r.PostFormValue("name"))
		if err := h.validator.Var(name, "required,max=80"); err != nil {
			data.Errors = shared.FormErrors{"Name": "This field is required"}
			h.render(w, r, "pages/my_account.html", "My account", data, http.StatusBadRequest)
			return
		}
		if err := h.service.UpdateName(r.Context(), data.User.ID, name); err != nil {
			h.failAccount(w, r, err)
			return
		}
	}
	navigation.Flash(r, "success", "Your details were saved")
	http.Redirect(w, r, routes.Path(routes.MyAccount), http.StatusSeeOther)
}

func (h *Handler) unlinkAmazon(w http.ResponseWriter, r *http.Request) {
	data, err := h.loadAccount(r)
	if err != nil {
		h.failAccount(w, r, err)
		return
	}
	if data.User == nil {
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	}
	if err := h.service.UnlinkAmazon(r.Context(), data.User.ID); err != nil {
		h.failAccount(w, r, err)
		return
	}
	navigation.Flash(r, "success", "Your Amazon account was unlinked")
	http.Redirect(w, r, routes.Path(routes.MyAccount), http.StatusSeeOther)
}

func (h *Handler) loadAccount(r *http.Request) (accountPageData, error) {
	state, ok := navigation.StateFromContext(r.Context())
	if !ok || state.Principal == nil {
		return accountPageData{}, shared.ErrNotFound
	}
	data := accountPageData{AmazonReady: h.amazonReady}
	if state.Role == roles.RestaurantStaff {
		rest, err := h.profiles.ByEmail(r.Context(), state.Principal.Email)
		if err != nil {
			return accountPageData{}, err
		}
		data.Restaurant = &rest
		return data, nil
	}
	user, err := h.service.ByEmail(r.Context(), state.Principal.Email)
	if err != nil {
		return accountPageData{}, err
	}
	data.User = &user
	return data, nil
}

func (h *Handler) failAccount(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, shared.ErrNotFound) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}
	h.logger.Error("account page", slog.Any("error", err))
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template, title string, data any, status int) {
	viewData := navigation.Page(r, h.csrf, title, data)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.templates.Render(w, template, viewData); err != nil {
		h.logger.Error("render template", slog.Any("error", err), slog.String("template", template))
	}
}
