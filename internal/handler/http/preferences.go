package http

import (
	"net/http"
)

// ConsentRequest records the cookie banner decision.
type ConsentRequest struct {
	Accepted *bool `json:"accepted" validate:"required"`
}

// GetConsent handles GET /api/consent.
func (h *Handler) GetConsent(w http.ResponseWriter, r *http.Request) {
	c, err := storefrontFrom(r).Prefs.Consent(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, c)
}

// SetConsent handles PUT /api/consent.
func (h *Handler) SetConsent(w http.ResponseWriter, r *http.Request) {
	var req ConsentRequest
	if !h.decode(w, r, &req) {
		return
	}
	c, err := storefrontFrom(r).Prefs.SetConsent(r.Context(), *req.Accepted)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, c)
}

// RecentlyViewed handles GET /api/recently-viewed.
func (h *Handler) RecentlyViewed(w http.ResponseWriter, r *http.Request) {
	items, err := storefrontFrom(r).Prefs.RecentlyViewed(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, items)
}

// ClearRecentlyViewed handles DELETE /api/recently-viewed.
func (h *Handler) ClearRecentlyViewed(w http.ResponseWriter, r *http.Request) {
	if err := storefrontFrom(r).Prefs.ClearRecentlyViewed(r.Context()); err != nil {
		h.fail(w, r, err)
		return
	}
	h.noContent(w, r)
}
