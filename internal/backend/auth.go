package backend

import (
	"context"
	"net/http"

	"github.com/utafrali/storefront/internal/domain"
)

// RegisterInput is the body of POST /register.
type RegisterInput struct {
	FirstName       string `json:"first_name" validate:"required,max=100"`
	LastName        string `json:"last_name" validate:"required,max=100"`
	Email           string `json:"email" validate:"required,email"`
	Phone           string `json:"phone,omitempty" validate:"omitempty,e164"`
	Password        string `json:"password" validate:"required,min=6,max=128"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=Password"`
}

// ResetPasswordInput is the body of POST /auth/reset-password.
type ResetPasswordInput struct {
	Token           string `json:"token" validate:"required"`
	Password        string `json:"password" validate:"required,min=6,max=128"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=Password"`
}

// EmailInput carries a single email address.
type EmailInput struct {
	Email string `json:"email" validate:"required,email"`
}

// TokenInput carries a single verification token.
type TokenInput struct {
	Token string `json:"token" validate:"required"`
}

// PhoneInput carries a phone number in E.164 format.
type PhoneInput struct {
	Phone string `json:"phone" validate:"required,e164"`
}

// VerifyPhoneInput is the body of POST /auth/verify-phone.
type VerifyPhoneInput struct {
	Phone string `json:"phone" validate:"required,e164"`
	Code  string `json:"code" validate:"required,min=4,max=8"`
}

// Message is the acknowledgement returned by most auth flows.
type Message struct {
	Message string `json:"message"`
}

// Login exchanges credentials for an identity. It never carries a token, so a
// 401 here is a rejected login, not an expired session.
func (c *Client) Login(ctx context.Context, email, password string) (domain.Identity, error) {
	in := struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}{Email: email, Password: password}

	var id domain.Identity
	err := c.doJSON(ctx, http.MethodPost, "/auth/login", anonymous, in, &id)
	return id, err
}

// Register creates an account. The backend sends the verification email.
func (c *Client) Register(ctx context.Context, in RegisterInput) (Message, error) {
	var m Message
	err := c.doJSON(ctx, http.MethodPost, "/register", anonymous, in, &m)
	return m, err
}

// ForgotPassword requests a password reset email.
func (c *Client) ForgotPassword(ctx context.Context, in EmailInput) (Message, error) {
	var m Message
	err := c.doJSON(ctx, http.MethodPost, "/auth/forgot-password", anonymous, in, &m)
	return m, err
}

// ResetPassword sets a new password using a reset token.
func (c *Client) ResetPassword(ctx context.Context, in ResetPasswordInput) (Message, error) {
	var m Message
	err := c.doJSON(ctx, http.MethodPost, "/auth/reset-password", anonymous, in, &m)
	return m, err
}

// VerifyEmail confirms an email address.
func (c *Client) VerifyEmail(ctx context.Context, in TokenInput) (Message, error) {
	var m Message
	err := c.doJSON(ctx, http.MethodPost, "/auth/verify-email", anonymous, in, &m)
	return m, err
}

// ResendVerification sends the verification email again.
func (c *Client) ResendVerification(ctx context.Context, in EmailInput) (Message, error) {
	var m Message
	err := c.doJSON(ctx, http.MethodPost, "/auth/resend-verification", anonymous, in, &m)
	return m, err
}

// SendSMSVerification sends a phone verification code by SMS.
func (c *Client) SendSMSVerification(ctx context.Context, in PhoneInput) (Message, error) {
	var m Message
	err := c.doJSON(ctx, http.MethodPost, "/auth/send-sms-verification", optional, in, &m)
	return m, err
}

// SendWhatsAppVerification sends a phone verification code over WhatsApp.
func (c *Client) SendWhatsAppVerification(ctx context.Context, in PhoneInput) (Message, error) {
	var m Message
	err := c.doJSON(ctx, http.MethodPost, "/auth/send-whatsapp-verification", optional, in, &m)
	return m, err
}

// VerifyPhone confirms a phone number with the code that was sent to it.
func (c *Client) VerifyPhone(ctx context.Context, in VerifyPhoneInput) (Message, error) {
	var m Message
	err := c.doJSON(ctx, http.MethodPost, "/auth/verify-phone", optional, in, &m)
	return m, err
}
