package view

import (
	"fmt"
	"html/template"
	"net/http"
	"time"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/food-orders/foodorders/internal/shared"
	"github.com/food-orders/foodorders/web"
)

// Engine renders HTML templates.
type Engine struct {
	templates *template.Template
}

// NavLink is a navigation entry.
type NavLink struct {
	Label  string
	Path   string
	Active bool
}

// Nav is the navigation bar of a page.
type Nav struct {
	Brand  NavLink
	Links  []NavLink
	Logout bool
}

// TemplateData contains values shared across templates.
type TemplateData struct {
	Title       string
	CSRFToken   string
	Flash       *shared.FlashMessage
	CurrentPath string
	Nav         Nav
	Role        string
	Email       string
	Data        any
}

var pricePrinter = message.NewPrinter(language.Dutch)

// FormatPrice renders an amount in euro cents.
func FormatPrice(cents int64) string {
	return pricePrinter.Sprint(currency.Symbol(currency.EUR.Amount(float64(cents) / 100)))
}

// NewEngine parses templates at build-time.
func NewEngine() (*Engine, error) {
	funcMap := template.FuncMap{
		"formatDate": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("02 Jan 2006 15:04")
		},
		"formatPrice": FormatPrice,
		"centsInput": func(cents int64) string {
			if cents == 0 {
				return ""
			}
			return fmt.Sprintf("%d.%02d", cents/100, cents%100)
		},
	}
	tpl, err := template.New("root").Funcs(funcMap).ParseFS(web.Templates, "templates/layouts/*.html", "templates/partials/*.html", "templates/pages/*.html")
	if err != nil {
		return nil, err
	}
	return &Engine{templates: tpl}, nil
}

// Render executes a named template with TemplateData.
func (e *Engine) Render(w http.ResponseWriter, name string, data TemplateData) error {
	if e == nil {
		return fmt.Errorf("template engine not initialised")
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return e.templates.ExecuteTemplate(w, name, data)
}
