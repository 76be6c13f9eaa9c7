package ui

import (
	"html/template"
	"net/http"

	"github.com/jw6ventures/bookings/internal/auth"
	"github.com/jw6ventures/bookings/internal/availability"
	"github.com/jw6ventures/bookings/internal/config"
	"github.com/jw6ventures/bookings/internal/i18n"
)

// Handler serves server-rendered HTML pages.
type Handler struct {
	cfg          *config.Config
	availability *availability.Service
	templates    map[string]*template.Template
}

func NewHandler(cfg *config.Config, availabilitySvc *availability.Service) *Handler {
	return &Handler{cfg: cfg, availability: availabilitySvc, templates: templates}
}

// Home sends signed-in users to their schedules.
func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/availability", http.StatusFound)
}

// translator prefers the signed-in user's locale over Accept-Language.
func translator(r *http.Request) i18n.Translator {
	if user, ok := auth.UserFromContext(r.Context()); ok && user.Locale != "" {
		return i18n.New(user.Locale)
	}
	return i18n.FromRequest(r)
}
