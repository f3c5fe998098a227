package restaurants

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/food-orders/foodorders/internal/identity"
	"github.com/food-orders/foodorders/internal/navigation"
	"github.com/food-orders/foodorders/internal/routes"
	"github.com/food-orders/foodorders/internal/shared"
	"github.com/food-orders/foodorders/internal/storage"
	"github.com/food-orders/foodorders/internal/view"
)

// Handler serves the restaurant catalogue and its administration.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	validator *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, templates: templates, csrf: csrf, validator: validator.New()}
}

// MountRoutes registers the landing page, the catalogue and the admin pages.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(navigation.Require(routes.Landing)).Get(routes.Pattern(routes.Landing), h.landing)
	r.With(navigation.Require(routes.Home)).Get(routes.Pattern(routes.Home), func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, routes.Path(routes.Landing), http.StatusSeeOther)
	})
	r.With(navigation.Require(routes.Restaurants)).Get(routes.Pattern(routes.Restaurants), h.catalogue)
	r.With(navigation.Require(routes.OurMenu)).Post(routes.Pattern(routes.OurMenu)+"/accepting-orders", h.toggleAccepting)

	admin := routes.Pattern(routes.ManageRestaurants)
	r.Group(func(r chi.Router) {
		r.Use(navigation.Require(routes.ManageRestaurants))
		r.Get(admin, h.manage)
		r.Post(admin, h.create)
		r.Post(admin+"/{restaurantID}/delete", h.delete)
	})
}

func (h *Handler) landing(w http.ResponseWriter, r *http.Request) {
	open, err := h.service.ListOpen(r.Context())
	if err != nil {
		h.logger.Error("list open restaurants", slog.Any("error", err))
		open = nil
	}
	h.render(w, r, "pages/landing.html", "Food Orders", map[string]any{"Restaurants": open}, http.StatusOK)
}

func (h *Handler) catalogue(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list restaurants", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/restaurants.html", "Restaurants", map[string]any{"Restaurants": list}, http.StatusOK)
}

func (h *Handler) toggleAccepting(w http.ResponseWriter, r *http.Request) {
	state, _ := navigation.StateFromContext(r.Context())
	if state.Principal == nil {
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	}
	rest, err := h.service.ByEmail(r.Context(), state.Principal.Email)
	if err != nil {
		h.fail(w, err)
		return
	}
	accepting := r.PostFormValue("accepting") == "true"
	if err := h.service.SetAcceptingOrders(r.Context(), rest.ID, accepting); err != nil {
		h.fail(w, err)
		return
	}
	message := "You no longer accept orders"
	if accepting {
		message = "You are accepting orders"
	}
	navigation.Flash(r, "success", message)
	http.Redirect(w, r, routes.Path(routes.OurMenu), http.StatusSeeOther)
}

type managePageData struct {
	Restaurants []Restaurant
	Form        CreateInput
	Errors      shared.FormErrors
}

func (h *Handler) manage(w http.ResponseWriter, r *http.Request) {
	h.renderManage(w, r, managePageData{}, http.StatusOK)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	form := CreateInput{
		Name:          strings.TrimSpace(r.PostFormValue("name")),
		CompanyNumber: strings.TrimSpace(r.PostFormValue("companyNumber")),
		Email:         identity.NormalizeEmail(r.PostFormValue("email")),
		Password:      r.PostFormValue("password"),
		Address:       strings.TrimSpace(r.PostFormValue("address")),
		PostalCode:    strings.TrimSpace(r.PostFormValue("postalCode")),
		City:          strings.TrimSpace(r.PostFormValue("city")),
	}
	data := managePageData{Form: form}
	data.Form.Password = ""
	if err := h.validator.Struct(form); err != nil {
		data.Errors = shared.ValidationErrors(err)
		h.renderManage(w, r, data, http.StatusBadRequest)
		return
	}
	thumbnail, err := storage.FormImage(r, "thumbnail")
	if err != nil {
		data.Errors = shared.FormErrors{"Thumbnail": uploadMessage(err)}
		h.renderManage(w, r, data, http.StatusBadRequest)
		return
	}
	defer thumbnail.Close()

	rest, err := h.service.Create(r.Context(), form, thumbnail)
	if err != nil {
		switch {
		case errors.Is(err, ErrEmailInUse):
			data.Errors = shared.FormErrors{"Email": "This email is already in use"}
		case errors.Is(err, identity.ErrWeakPassword):
			data.Errors = shared.FormErrors{"Password": "Must be at least 6 characters"}
		case errors.Is(err, identity.ErrPasswordTooLong):
			data.Errors = shared.FormErrors{"Password": "Must be at most 72 characters"}
		default:
			h.logger.Error("create restaurant", slog.Any("error", err))
			data.Errors = shared.FormErrors{"general": "The restaurant could not be created"}
		}
		h.renderManage(w, r, data, http.StatusBadRequest)
		return
	}
	navigation.Flash(r, "success", rest.Name+" was added")
	http.Redirect(w, r, routes.Path(routes.ManageRestaurants), http.StatusSeeOther)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "restaurantID")
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.fail(w, err)
		return
	}
	navigation.Flash(r, "success", "The restaurant was deleted")
	http.Redirect(w, r, routes.Path(routes.ManageRestaurants), http.StatusSeeOther)
}

func (h *Handler) renderManage(w http.ResponseWriter, r *http.Request, data managePageData, status int) {
	list, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list restaurants", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	data.Restaurants = list
	h.render(w, r, "pages/manage_restaurants.html", "Manage restaurants", data, status)
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	if errors.Is(err, shared.ErrNotFound) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}
	h.logger.Error("restaurant request", slog.Any("error", err))
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

func uploadMessage(err error) string {
	switch {
	case errors.Is(err, storage.ErrTooLarge):
		return "The image may be at most 5 MB"
	case errors.Is(err, storage.ErrUnsupportedType):
		return "Upload a PNG, JPEG, GIF or WebP image"
	default:
		return "The image could not be read"
	}
}
