package view

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEngine(t *testing.T) {
	engine, err := NewEngine()
	assert.NoError(t, err, "Templates should parse without error")
	assert.NotNil(t, engine)
}

func TestRenderNavigation(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	err = engine.Render(rec, "pages/not_found.html", TemplateData{
		Title: "Not found",
		Nav: Nav{
			Brand:  NavLink{Label: "Food Orders", Path: "/my-overview"},
			Links:  []NavLink{{Label: "My orders", Path: "/my-orders", Active: true}},
			Logout: true,
		},
	})
	require.NoError(t, err)
	body := rec.Body.String()
	assert.Contains(t, body, `href="/my-orders"`)
	assert.Contains(t, body, `action="/logout"`)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
}

func TestFormatPrice(t *testing.T) {
	out := FormatPrice(1250)
	assert.Contains(t, out, "€")
	assert.True(t, strings.Contains(out, "12") && strings.Contains(out, "50"), out)
}
