package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// LocaleRequest switches the UI locale.
type LocaleRequest struct {
	Locale string `json:"locale" validate:"required,min=2,max=5"`
}

// LocaleView is the active locale and what else is available.
type LocaleView struct {
	Locale    string   `json:"locale"`
	Suggested string   `json:"suggested"`
	Supported []string `json:"supported"`
}

// GetLocale handles GET /api/locale. Suggested comes from Accept-Language.
func (h *Handler) GetLocale(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, http.StatusOK, LocaleView{
		Locale:    storefrontFrom(r).Locale(),
		Suggested: h.catalog.Negotiate(r.Header.Get("Accept-Language")),
		Supported: h.catalog.Locales(),
	})
}

// SwitchLocale handles PUT /api/locale. The cart survives the switch.
func (h *Handler) SwitchLocale(w http.ResponseWriter, r *http.Request) {
	var req LocaleRequest
	if !h.decode(w, r, &req) {
		return
	}

	sf := storefrontFrom(r)
	if err := sf.SwitchLocale(r.Context(), req.Locale); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, LocaleView{
		Locale:    sf.Locale(),
		Suggested: sf.Locale(),
		Supported: h.catalog.Locales(),
	})
}

// Bundle handles GET /api/i18n/{locale}.
func (h *Handler) Bundle(w http.ResponseWriter, r *http.Request) {
	locale := chi.URLParam(r, "locale")
	bundle, ok := h.catalog.Bundle(locale)
	if !ok {
		h.fail(w, r, apperrors.NotFound("locale", locale))
		return
	}
	h.respond(w, r, http.StatusOK, bundle)
}
