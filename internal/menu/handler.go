package menu

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/food-orders/foodorders/internal/navigation"
	"github.com/food-orders/foodorders/internal/restaurants"
	"github.com/food-orders/foodorders/internal/routes"
	"github.com/food-orders/foodorders/internal/shared"
	"github.com/food-orders/foodorders/internal/storage"
	"github.com/food-orders/foodorders/internal/view"
)

// Restaurants looks up the restaurant of staff accounts.
type Restaurants interface {
	ByEmail(ctx context.Context, email string) (restaurants.Restaurant, error)
	List(ctx context.Context) ([]restaurants.Restaurant, error)
}

// Handler serves the menu pages of restaurant staff and administrators.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	restaurants Restaurants
	templates   *view.Engine
	csrf        *shared.CSRFManager
	validator   *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service, rests Restaurants, templates *view.Engine, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, restaurants: rests, templates: templates, csrf: csrf, validator: validator.New()}
}

// MountRoutes registers the menu routes.
func (h *Handler) MountRoutes(r chi.Router) {
	ourMenu := routes.Pattern(routes.OurMenu)
	r.With(navigation.Require(routes.OurMenu)).Get(ourMenu, h.ourMenu)

	r.Group(func(r chi.Router) {
		r.Use(navigation.Require(routes.NewDish))
		r.Get(routes.Pattern(routes.NewDish), h.newDish)
		r.Post(routes.Pattern(routes.NewDish), h.createDish)
	})

	sizes := routes.Pattern(routes.ManageSizes)
	r.Group(func(r chi.Router) {
		r.Use(navigation.Require(routes.ManageSizes))
		r.Get(sizes, h.manageSizes)
		r.Post(sizes, h.addSize)
		r.Post(sizes+"/{sizeID}/rename", h.renameSize)
		r.Post(sizes+"/{sizeID}/move", h.moveSize)
		r.Post(sizes+"/{sizeID}/delete", h.deleteSize)
	})

	dish := ourMenu + "/{dishID}"
	r.Group(func(r chi.Router) {
		r.Use(navigation.Require(routes.DishDetail))
		r.Get(dish, h.dishDetail)
		r.Post(dish, h.updateDish)
		r.Post(dish+"/availability", h.setAvailability)
		r.Post(dish+"/prices", h.setPrices)
		r.Post(dish+"/delete", h.deleteDish)
	})

	admin := routes.Pattern(routes.ManageDishes)
	r.Group(func(r chi.Router) {
		r.Use(navigation.Require(routes.ManageDishes))
		r.Get(admin, h.manageDishes)
		r.Post(admin+"/{dishID}/availability", h.adminAvailability)
		r.Post(admin+"/{dishID}/delete", h.adminDelete)
	})
}

type ourMenuPageData struct {
	Restaurant restaurants.Restaurant
	Dishes     []Dish
	Sizes      []Size
}

func (h *Handler) ourMenu(w http.ResponseWriter, r *http.Request) {
	rest, ok := h.restaurant(w, r)
	if !ok {
		return
	}
	dishes, err := h.service.Dishes(r.Context(), rest.ID)
	if err != nil {
		h.fail(w, err)
		return
	}
	sizes, err := h.service.Sizes(r.Context(), rest.ID)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.render(w, r, "pages/our_menu.html", "Our menu", ourMenuPageData{Restaurant: rest, Dishes: dishes, Sizes: sizes}, http.StatusOK)
}

type dishFormData struct {
	Dish   Dish
	Form   DishInput
	Errors shared.FormErrors
}

func (h *Handler) newDish(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "pages/new_dish.html", "New dish", dishFormData{}, http.StatusOK)
}

func (h *Handler) createDish(w http.ResponseWriter, r *http.Request) {
	rest, ok := h.restaurant(w, r)
	if !ok {
		return
	}
	form := dishForm(r)
	if errs := h.validate(form); len(errs) > 0 {
		h.render(w, r, "pages/new_dish.html", "New dish", dishFormData{Form: form, Errors: errs}, http.StatusBadRequest)
		return
	}
	thumbnail, err := storage.FormImage(r, "thumbnail")
	if err != nil {
		h.render(w, r, "pages/new_dish.html", "New dish", dishFormData{Form: form, Errors: shared.FormErrors{"Thumbnail": uploadMessage(err)}}, http.StatusBadRequest)
		return
	}
	defer thumbnail.Close()
	d, err := h.service.AddDish(r.Context(), rest.ID, form, thumbnail)
	if err != nil {
		h.fail(w, err)
		return
	}
	navigation.Flash(r, "success", d.Name+" was added, set its prices below")
	http.Redirect(w, r, routes.Path(routes.DishDetail, d.ID), http.StatusSeeOther)
}

type sizesPageData struct {
	Sizes  []Size
	Errors shared.FormErrors
}

func (h *Handler) manageSizes(w http.ResponseWriter, r *http.Request) {
	rest, ok := h.restaurant(w, r)
	if !ok {
		return
	}
	h.renderSizes(w, r, rest.ID, nil, http.StatusOK)
}

func (h *Handler) addSize(w http.ResponseWriter, r *http.Request) {
	rest, ok := h.restaurant(w, r)
	if !ok {
		return
	}
	name := strings.TrimSpace(r.PostFormValue("name"))
	if err := h.validator.Var(name, "required,max=40"); err != nil {
		h.renderSizes(w, r, rest.ID, shared.FormErrors{"Name": "Enter a name of at most 40 characters"}, http.StatusBadRequest)
		return
	}
	if _, err := h.service.AddSize(r.Context(), rest.ID, name); err != nil {
		h.fail(w, err)
		return
	}
	h.backToSizes(w, r, "Size "+name+" was added")
}

func (h *Handler) renameSize(w http.ResponseWriter, r *http.Request) {
	rest, ok := h.restaurant(w, r)
	if !ok {
		return
	}
	name := strings.TrimSpace(r.PostFormValue("name"))
	if err := h.validator.Var(name, "required,max=40"); err != nil {
		h.renderSizes(w, r, rest.ID, shared.FormErrors{"Name": "Enter a name of at most 40 characters"}, http.StatusBadRequest)
		return
	}
	if err := h.service.RenameSize(r.Context(), rest.ID, chi.URLParam(r, "sizeID"), name); err != nil {
		h.fail(w, err)
		return
	}
	h.backToSizes(w, r, "The size was renamed")
}

func (h *Handler) moveSize(w http.ResponseWriter, r *http.Request) {
	rest, ok := h.restaurant(w, r)
	if !ok {
		return
	}
	step := 1
	if r.PostFormValue("direction") == "up" {
		step = -1
	}
	if err := h.service.MoveSize(r.Context(), rest.ID, chi.URLParam(r, "sizeID"), step); err != nil {
		h.fail(w, err)
		return
	}
	http.Redirect(w, r, routes.Path(routes.ManageSizes), http.StatusSeeOther)
}

func (h *Handler) deleteSize(w http.ResponseWriter, r *http.Request) {
	rest, ok := h.restaurant(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteSize(r.Context(), rest.ID, chi.URLParam(r, "sizeID")); err != nil {
		h.fail(w, err)
		return
	}
	h.backToSizes(w, r, "The size and its prices were deleted")
}

type dishPageData struct {
	Dish   Dish
	Form   DishInput
	Rows   []priceRow
	Errors shared.FormErrors
}

type priceRow struct {
	Size  Size
	Cents int64
}

func (h *Handler) dishDetail(w http.ResponseWriter, r *http.Request) {
	rest, ok := h.restaurant(w, r)
	if !ok {
		return
	}
	d, err := h.service.Dish(r.Context(), rest.ID, chi.URLParam(r, "dishID"))
	if err != nil {
		h.fail(w, err)
		return
	}
	h.renderDish(w, r, rest.ID, dishPageData{Dish: d, Form: DishInput{Name: d.Name, Description: d.Description}}, http.StatusOK)
}

func (h *Handler) updateDish(w http.ResponseWriter, r *http.Request) {
	rest, ok := h.restaurant(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "dishID")
	d, err := h.service.Dish(r.Context(), rest.ID, id)
	if err != nil {
		h.fail(w, err)
		return
	}
	form := dishForm(r)
	if errs := h.validate(form); len(errs) > 0 {
		h.renderDish(w, r, rest.ID, dishPageData{Dish: d, Form: form, Errors: errs}, http.StatusBadRequest)
		return
	}
	thumbnail, err := storage.FormImage(r, "thumbnail")
	if err != nil {
		h.renderDish(w, r, rest.ID, dishPageData{Dish: d, Form: form, Errors: shared.FormErrors{"Thumbnail": uploadMessage(err)}}, http.StatusBadRequest)
		return
	}
	defer thumbnail.Close()
	if _, err := h.service.UpdateDish(r.Context(), rest.ID, id, form, thumbnail); err != nil {
		h.fail(w, err)
		return
	}
	h.backToDish(w, r, id, "The dish was saved")
}

func (h *Handler) setAvailability(w http.ResponseWriter, r *http.Request) {
	rest, ok := h.restaurant(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "dishID")
	available := r.PostFormValue("available") == "true"
	if err := h.service.SetAvailability(r.Context(), rest.ID, id, available); err != nil {
		h.fail(w, err)
		return
	}
	h.backToDish(w, r, id, availabilityMessage(available))
}

func (h *Handler) setPrices(w http.ResponseWriter, r *http.Request) {
	rest, ok := h.restaurant(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "dishID")
	d, err := h.service.Dish(r.Context(), rest.ID, id)
	if err != nil {
		h.fail(w, err)
		return
	}
	sizes, err := h.service.Sizes(r.Context(), rest.ID)
	if err != nil {
		h.fail(w, err)
		return
	}
	cents := make(map[string]int64, len(sizes))
	errs := shared.FormErrors{}
	for _, size := range sizes {
		raw := strings.TrimSpace(r.PostFormValue("price_" + size.ID))
		if raw == "" {
			continue
		}
		value, err := ParseCents(raw)
		if err != nil {
			errs[size.ID] = "Enter an amount such as 9.50"
			continue
		}
		cents[size.ID] = value
	}
	if len(errs) > 0 {
		h.renderDish(w, r, rest.ID, dishPageData{Dish: d, Form: DishInput{Name: d.Name, Description: d.Description}, Errors: errs}, http.StatusBadRequest)
		return
	}
	if err := h.service.SetPrices(r.Context(), rest.ID, id, cents); err != nil {
		h.fail(w, err)
		return
	}
	h.backToDish(w, r, id, "The prices were saved")
}

func (h *Handler) deleteDish(w http.ResponseWriter, r *http.Request) {
	rest, ok := h.restaurant(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteDish(r.Context(), rest.ID, chi.URLParam(r, "dishID")); err != nil {
		h.fail(w, err)
		return
	}
	navigation.Flash(r, "success", "The dish was deleted")
	http.Redirect(w, r, routes.Path(routes.OurMenu), http.StatusSeeOther)
}

type dishGroup struct {
	Restaurant restaurants.Restaurant
	Dishes     []Dish
}

func (h *Handler) manageDishes(w http.ResponseWriter, r *http.Request) {
	list, err := h.restaurants.List(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	dishes, err := h.service.AllDishes(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	byRestaurant := make(map[string][]Dish)
	for _, d := range dishes {
		byRestaurant[d.RestaurantID] = append(byRestaurant[d.RestaurantID], d)
	}
	groups := make([]dishGroup, 0, len(list))
	for _, rest := range list {
		groups = append(groups, dishGroup{Restaurant: rest, Dishes: byRestaurant[rest.ID]})
	}
	h.render(w, r, "pages/manage_dishes.html", "Manage dishes", map[string]any{"Groups": groups}, http.StatusOK)
}

func (h *Handler) adminAvailability(w http.ResponseWriter, r *http.Request) {
	available := r.PostFormValue("available") == "true"
	if err := h.service.SetAvailability(r.Context(), "", chi.URLParam(r, "dishID"), available); err != nil {
		h.fail(w, err)
		return
	}
	navigation.Flash(r, "success", availabilityMessage(available))
	http.Redirect(w, r, routes.Path(routes.ManageDishes), http.StatusSeeOther)
}

func (h *Handler) adminDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteDish(r.Context(), "", chi.URLParam(r, "dishID")); err != nil {
		h.fail(w, err)
		return
	}
	navigation.Flash(r, "success", "The dish was deleted")
	http.Redirect(w, r, routes.Path(routes.ManageDishes), http.StatusSeeOther)
}

// restaurant loads the restaurant of the signed in staff member.
func (h *Handler) restaurant(w http.ResponseWriter, r *http.Request) (restaurants.Restaurant, bool) {
	state, _ := navigation.StateFromContext(r.Context())
	if state.Principal == nil {
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return restaurants.Restaurant{}, false
	}
	rest, err := h.restaurants.ByEmail(r.Context(), state.Principal.Email)
	if err != nil {
		h.fail(w, err)
		return restaurants.Restaurant{}, false
	}
	return rest, true
}

func (h *Handler) renderSizes(w http.ResponseWriter, r *http.Request, restaurantID string, errs shared.FormErrors, status int) {
	sizes, err := h.service.Sizes(r.Context(), restaurantID)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.render(w, r, "pages/manage_sizes.html", "Manage sizes", sizesPageData{Sizes: sizes, Errors: errs}, status)
}

func (h *Handler) renderDish(w http.ResponseWriter, r *http.Request, restaurantID string, data dishPageData, status int) {
	sizes, err := h.service.Sizes(r.Context(), restaurantID)
	if err != nil {
		h.fail(w, err)
		return
	}
	prices, err := h.service.Prices(r.Context(), data.Dish.ID)
	if err != nil {
		h.fail(w, err)
		return
	}
	for _, size := range sizes {
		data.Rows = append(data.Rows, priceRow{Size: size, Cents: prices[size.ID].Price})
	}
	h.render(w, r, "pages/dish_detail.html", data.Dish.Name, data, status)
}

func (h *Handler) backToSizes(w http.ResponseWriter, r *http.Request, message string) {
	navigation.Flash(r, "success", message)
	http.Redirect(w, r, routes.Path(routes.ManageSizes), http.StatusSeeOther)
}

func (h *Handler) backToDish(w http.ResponseWriter, r *http.Request, id, message string) {
	navigation.Flash(r, "success", message)
	http.Redirect(w, r, routes.Path(routes.DishDetail, id), http.StatusSeeOther)
}

func (h *Handler) validate(form DishInput) shared.FormErrors {
	if err := h.validator.Struct(form); err != nil {
		return shared.ValidationErrors(err)
	}
	return nil
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	if errors.Is(err, shared.ErrNotFound) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}
	h.logger.Error("menu request", slog.Any("error", err))
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

func dishForm(r *http.Request) DishInput {
	return DishInput{
		Name:        strings.TrimSpace(r.PostFormValue("name")),
		Description: strings.TrimSpace(r.PostFormValue("description")),
	}
}

func availabilityMessage(available bool) string {
	if available {
		return "The dish is available again"
	}
	return "The dish is no longer available"
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
