package http

import (
	"context"
	"net/http"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/session"
	"github.com/utafrali/storefront/pkg/middleware"
)

// SessionView describes who is logged in, if anyone.
type SessionView struct {
	Authenticated bool         `json:"authenticated"`
	User          *domain.User `json:"user,omitempty"`
	LoginRequired bool         `json:"login_required"`
}

// Login handles POST /api/session/login. The session ID is rotated before
// authenticating so an ID known to anyone else never becomes authenticated.
// The token stays server side; only the user is returned.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req session.LoginInput
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := decodeOnly(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	sf, err := h.registry.Rotate(r.Context(), storefrontFrom(r), middleware.ClientIP(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	r = middleware.ReissueSession(w, r, sf.ID)
	r = r.WithContext(context.WithValue(r.Context(), ctxKey{}, sf))

	id, err := sf.Session.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, SessionView{Authenticated: true, User: id.User})
}

// Logout handles POST /api/session/logout.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := storefrontFrom(r).Session.Logout(r.Context()); err != nil {
		h.fail(w, r, err)
		return
	}
	h.noContent(w, r)
}

// Me handles GET /api/session. LoginRequired is reported once after the
// backend invalidated the session.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	sf := storefrontFrom(r)
	h.respond(w, r, http.StatusOK, SessionView{
		Authenticated: sf.Session.Authenticated(),
		User:          sf.Session.User(),
		LoginRequired: sf.TakeLoginRequired(),
	})
}
