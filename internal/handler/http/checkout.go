package http

import "net/http"

// Checkout handles GET /api/checkout. An anonymous caller gets 401 and the
// login-required header.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	summary, err := storefrontFrom(r).Checkout(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, summary)
}
