package navigation

import (
	"net/http"

	"github.com/food-orders/foodorders/internal/shared"
	"github.com/food-orders/foodorders/internal/view"
)

// Page assembles the data every rendered view shares: CSRF token, pending
// flash message and the navigation of the session role.
func Page(r *http.Request, csrf *shared.CSRFManager, title string, data any) view.TemplateData {
	sess := shared.SessionFromContext(r.Context())
	csrfToken := ""
	if csrf != nil && sess != nil {
		csrfToken, _ = csrf.EnsureToken(r.Context(), sess)
	}
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	out := view.TemplateData{
		Title:       title,
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Data:        data,
	}
	Decorate(r, &out)
	return out
}

// Flash queues a message for the next rendered page.
func Flash(r *http.Request, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
}
