package orders

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/food-orders/foodorders/internal/accounts"
	"github.com/food-orders/foodorders/internal/menu"
	"github.com/food-orders/foodorders/internal/navigation"
	"github.com/food-orders/foodorders/internal/restaurants"
	"github.com/food-orders/foodorders/internal/routes"
	"github.com/food-orders/foodorders/internal/shared"
	"github.com/food-orders/foodorders/internal/view"
)

const quantityPrefix = "qty_"

// Menus lists what a restaurant serves.
type Menus interface {
	RestaurantMenu(ctx context.Context, restaurantID string) ([]menu.Item, error)
}

// Catalogue is the restaurant lookup used by the order pages.
type Catalogue interface {
	Get(ctx context.Context, id string) (restaurants.Restaurant, error)
	ByEmail(ctx context.Context, email string) (restaurants.Restaurant, error)
	ListOpen(ctx context.Context) ([]restaurants.Restaurant, error)
}

// Customers loads the customer document of a principal.
type Customers interface {
	ByEmail(ctx context.Context, email string) (accounts.User, error)
}

// Handler serves customer and restaurant order pages.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	menus       Menus
	restaurants Catalogue
	customers   Customers
	templates   *view.Engine
	csrf        *shared.CSRFManager
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service, menus Menus, rests Catalogue, customers Customers, templates *view.Engine, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, menus: menus, restaurants: rests, customers: customers, templates: templates, csrf: csrf}
}

// MountRoutes registers the order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(navigation.Require(routes.MyOverview)).Get(routes.Pattern(routes.MyOverview), h.overview)
	r.With(navigation.Require(routes.MyOrders)).Get(routes.Pattern(routes.MyOrders), h.myOrders)
	r.With(navigation.Require(routes.MyOrderDetail)).Get(routes.Pattern(routes.MyOrderDetail), h.myOrder)
	r.Group(func(r chi.Router) {
		r.Use(navigation.Require(routes.RestaurantMenu))
		r.Get(routes.Pattern(routes.RestaurantMenu), h.restaurantMenu)
		r.Post(routes.Pattern(routes.RestaurantMenu), h.placeOrder)
	})
	r.With(navigation.Require(routes.Orders)).Get(routes.Pattern(routes.Orders), h.incoming)
	r.Group(func(r chi.Router) {
		r.Use(navigation.Require(routes.OrderDetail))
		r.Get(routes.Pattern(routes.OrderDetail), h.orderDetail)
		r.Post(routes.Pattern(routes.OrderDetail)+"/status", h.advance)
	})
}

func (h *Handler) overview(w http.ResponseWriter, r *http.Request) {
	user, ok := h.customer(w, r)
	if !ok {
		return
	}
	open, err := h.restaurants.ListOpen(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	recent, err := h.service.ForUser(r.Context(), user.ID, 5)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.render(w, r, "pages/my_overview.html", "Overview", map[string]any{
		"User":        user,
		"Restaurants": open,
		"Orders":      recent,
	}, http.StatusOK)
}

func (h *Handler) myOrders(w http.ResponseWriter, r *http.Request) {
	user, ok := h.customer(w, r)
	if !ok {
		return
	}
	list, err := h.service.ForUser(r.Context(), user.ID, 0)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.render(w, r, "pages/my_orders.html", "My orders", map[string]any{"Orders": list}, http.StatusOK)
}

func (h *Handler) myOrder(w http.ResponseWriter, r *http.Request) {
	user, ok := h.customer(w, r)
	if !ok {
		return
	}
	o, err := h.service.CustomerOrder(r.Context(), user.ID, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	h.render(w, r, "pages/my_order_detail.html", "Order", map[string]any{"Order": o}, http.StatusOK)
}

type menuPageData struct {
	Restaurant restaurants.Restaurant
	Items      []menu.Item
	Quantities map[string]int
	Error      string
}

func (h *Handler) restaurantMenu(w http.ResponseWriter, r *http.Request) {
	h.renderMenu(w, r, menuPageData{}, http.StatusOK)
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	user, ok := h.customer(w, r)
	if !ok {
		return
	}
	lines, quantities, err := parseLines(r)
	if err != nil {
		h.renderMenu(w, r, menuPageData{Quantities: quantities, Error: "Quantities must be whole numbers"}, http.StatusBadRequest)
		return
	}
	o, err := h.service.Place(r.Context(), PlaceInput{
		UserID:       user.ID,
		CustomerName: user.Name,
		RestaurantID: chi.URLParam(r, "id"),
		Lines:        lines,
	})
	if err != nil {
		message := ""
		switch {
		case errors.Is(err, ErrEmptyOrder):
			message = "Choose at least one dish"
		case errors.Is(err, ErrInvalidQuantity):
			message = "Order at most 50 of a dish"
		case errors.Is(err, ErrNotAccepting):
			message = "This restaurant is not accepting orders right now"
		case errors.Is(err, menu.ErrUnavailable):
			message = "One of the dishes is no longer available"
		default:
			h.fail(w, err)
			return
		}
		h.renderMenu(w, r, menuPageData{Quantities: quantities, Error: message}, http.StatusBadRequest)
		return
	}
	navigation.Flash(r, "success", "Your order was placed")
	http.Redirect(w, r, routes.Path(routes.MyOrderDetail, o.ID), http.StatusSeeOther)
}

func (h *Handler) incoming(w http.ResponseWriter, r *http.Request) {
	rest, ok := h.restaurant(w, r)
	if !ok {
		return
	}
	list, err := h.service.ForRestaurant(r.Context(), rest.ID)
	if err != nil {
		h.fail(w, err)
		return
	}
	var open, closed []Order
	for _, o := range list {
		if o.Status.Open() {
			open = append(open, o)
		} else {
			closed = append(closed, o)
		}
	}
	h.render(w, r, "pages/orders.html", "Orders", map[string]any{
		"Restaurant": rest,
		"Open":       open,
		"Closed":     closed,
	}, http.StatusOK)
}

func (h *Handler) orderDetail(w http.ResponseWriter, r *http.Request) {
	rest, ok := h.restaurant(w, r)
	if !ok {
		return
	}
	o, err := h.service.RestaurantOrder(r.Context(), rest.ID, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	h.render(w, r, "pages/order_detail.html", "Order", map[string]any{"Order": o}, http.StatusOK)
}

func (h *Handler) advance(w http.ResponseWriter, r *http.Request) {
	rest, ok := h.restaurant(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	o, err := h.service.Advance(r.Context(), rest.ID, id, Status(r.PostFormValue("status")))
	if errors.Is(err, ErrInvalidTransition) {
		navigation.Flash(r, "error", "The order cannot change to that status")
		http.Redirect(w, r, routes.Path(routes.OrderDetail, id), http.StatusSeeOther)
		return
	}
	if err != nil {
		h.fail(w, err)
		return
	}
	navigation.Flash(r, "success", "The order is now "+strings.ToLower(o.Status.Label()))
	http.Redirect(w, r, routes.Path(routes.OrderDetail, id), http.StatusSeeOther)
}

func (h *Handler) renderMenu(w http.ResponseWriter, r *http.Request, data menuPageData, status int) {
	rest, err := h.restaurants.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	items, err := h.menus.RestaurantMenu(r.Context(), rest.ID)
	if err != nil {
		h.fail(w, err)
		return
	}
	data.Restaurant = rest
	data.Items = items
	h.render(w, r, "pages/restaurant_menu.html", rest.Name, data, status)
}

func (h *Handler) customer(w http.ResponseWriter, r *http.Request) (accounts.User, bool) {
	state, _ := navigation.StateFromContext(r.Context())
	if state.Principal == nil {
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return accounts.User{}, false
	}
	user, err := h.customers.ByEmail(r.Context(), state.Principal.Email)
	if err != nil {
		h.fail(w, err)
		return accounts.User{}, false
	}
	return user, true
}

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

func (h *Handler) fail(w http.ResponseWriter, err error) {
	if errors.Is(err, shared.ErrNotFound) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}
	h.logger.Error("order request", slog.Any("error", err))
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

// QuantityField names the form field holding the quantity of a dish in a size.
func QuantityField(dishID, sizeID string) string {
	return quantityPrefix + dishID + "_" + sizeID
}

// parseLines reads qty_<dish>_<size> fields. Ids never contain underscores.
func parseLines(r *http.Request) ([]LineInput, map[string]int, error) {
	if err := r.ParseForm(); err != nil {
		return nil, nil, err
	}
	var lines []LineInput
	quantities := make(map[string]int)
	var parseErr error
	for key, values := range r.PostForm {
		if !strings.HasPrefix(key, quantityPrefix) || len(values) == 0 {
			continue
		}
		raw := strings.TrimSpace(values[0])
		if raw == "" {
			continue
		}
		dishID, sizeID, ok := strings.Cut(strings.TrimPrefix(key, quantityPrefix), "_")
		if !ok || dishID == "" || sizeID == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			parseErr = err
			continue
		}
		quantities[key] = n
		lines = append(lines, LineInput{DishID: dishID, SizeID: sizeID, Quantity: n})
	}
	return lines, quantities, parseErr
}
