package http

import (
	"context"
	"net/http"

	"github.com/utafrali/storefront/internal/backend"
)

// relay decodes a request body of type T, forwards it to the backend through
// call and writes the acknowledgement.
func relay[T any](h *Handler, call func(*backend.Client, context.Context, T) (backend.Message, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in T
		if !h.decode(w, r, &in) {
			return
		}
		msg, err := call(storefrontFrom(r).Backend, r.Context(), in)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		h.respond(w, r, http.StatusOK, msg)
	}
}

// Register handles POST /api/auth/register.
func (h *Handler) Register() http.HandlerFunc {
	return relay(h, (*backend.Client).Register)
}

// ForgotPassword handles POST /api/auth/forgot-password.
func (h *Handler) ForgotPassword() http.HandlerFunc {
	return relay(h, (*backend.Client).ForgotPassword)
}

// ResetPassword handles POST /api/auth/reset-password.
func (h *Handler) ResetPassword() http.HandlerFunc {
	return relay(h, (*backend.Client).ResetPassword)
}

// VerifyEmail handles POST /api/auth/verify-email.
func (h *Handler) VerifyEmail() http.HandlerFunc {
	return relay(h, (*backend.Client).VerifyEmail)
}

// ResendVerification handles POST /api/auth/resend-verification.
func (h *Handler) ResendVerification() http.HandlerFunc {
	return relay(h, (*backend.Client).ResendVerification)
}

// SendSMSVerification handles POST /api/auth/phone/sms.
func (h *Handler) SendSMSVerification() http.HandlerFunc {
	return relay(h, (*backend.Client).SendSMSVerification)
}

// SendWhatsAppVerification handles POST /api/auth/phone/whatsapp.
func (h *Handler) SendWhatsAppVerification() http.HandlerFunc {
	return relay(h, (*backend.Client).SendWhatsAppVerification)
}

// VerifyPhone handles POST /api/auth/phone/verify.
func (h *Handler) VerifyPhone() http.HandlerFunc {
	return relay(h, (*backend.Client).VerifyPhone)
}
