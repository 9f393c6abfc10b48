// Package session holds the authenticated identity of a storefront session
// and is the single place where a 401 from the backend invalidates it.
package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/metrics"
	"github.com/utafrali/storefront/internal/storage"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/validator"
)

// MinPasswordLength is enforced before a login request is dispatched.
const MinPasswordLength = 6

// Authenticator exchanges credentials for an identity.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (domain.Identity, error)
}

// LoginInput holds login credentials.
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// Listener is notified with the new identity after login, logout or
// invalidation. A logged-out identity has an empty token and nil user.
type Listener func(ctx context.Context, id domain.Identity)

// Store owns the authToken and authUser keys.
type Store struct {
	mu             sync.Mutex
	bridge         *storage.Bridge
	auth           Authenticator
	logger         *slog.Logger
	token          string
	user           *domain.User
	listeners      []Listener
	requireLoginFn []func(ctx context.Context)
	now            func() time.Time
}

// NewStore creates a logged-out session store.
func NewStore(bridge *storage.Bridge, auth Authenticator, logger *slog.Logger) *Store {
	return &Store{
		bridge: bridge,
		auth:   auth,
		logger: logger,
		now:    time.Now,
	}
}

// Login validates the credentials, authenticates them against the backend and
// stores the resulting token and user together.
func (s *Store) Login(ctx context.Context, email, password string) (domain.Identity, error) {
	input := LoginInput{Email: strings.TrimSpace(email), Password: password}
	if err := validator.Validate(input); err != nil {
		return domain.Identity{}, err
	}

	id, err := s.auth.Login(ctx, input.Email, input.Password)
	if err != nil {
		return domain.Identity{}, classifyLoginError(err)
	}
	if !id.Valid() {
		return domain.Identity{}, apperrors.Internal(errors.New("login response is missing token or user"))
	}

	if err := s.set(ctx, id); err != nil {
		return domain.Identity{}, err
	}
	metrics.StoreMutations.WithLabelValues("session", "login").Inc()
	s.logger.InfoContext(ctx, "user logged in", slog.String("user_id", id.User.ID))
	return id, nil
}

// classifyLoginError keeps EMAIL_NOT_VERIFIED and transport failures and maps
// every other rejection to INVALID_CREDENTIALS.
func classifyLoginError(err error) error {
	switch {
	case errors.Is(err, apperrors.ErrEmailNotVerified),
		errors.Is(err, apperrors.ErrInvalidCredentials),
		errors.Is(err, apperrors.ErrServiceUnavail),
		errors.Is(err, apperrors.ErrInternal),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Status >= 400 && appErr.Status < 500 {
		return apperrors.InvalidCredentials("")
	}
	return err
}

// set persists both keys and only then swaps the in-memory identity. If the
// second write fails the first is rolled back.
func (s *Store) set(ctx context.Context, id domain.Identity) error {
	s.mu.Lock()
	if err := s.bridge.Save(ctx, storage.KeyAuthToken, id.Token); err != nil {
		s.mu.Unlock()
		metrics.PersistFailures.WithLabelValues("session").Inc()
		return err
	}
	if err := s.bridge.Save(ctx, storage.KeyAuthUser, id.User); err != nil {
		_ = s.bridge.Remove(ctx, storage.KeyAuthToken)
		s.mu.Unlock()
		metrics.PersistFailures.WithLabelValues("session").Inc()
		return err
	}
	s.token = id.Token
	s.user = cloneUser(id.User)
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(ctx, id)
	}
	return nil
}

// Logout clears the identity locally. The backend is not called. Memory is
// always cleared even when removing the persisted keys fails.
func (s *Store) Logout(ctx context.Context) error {
	err := s.clear(ctx)
	metrics.StoreMutations.WithLabelValues("session", "logout").Inc()
	return err
}

func (s *Store) clear(ctx context.Context) error {
	s.mu.Lock()
	s.token = ""
	s.user = nil
	errToken := s.bridge.Remove(ctx, storage.KeyAuthToken)
	errUser := s.bridge.Remove(ctx, storage.KeyAuthUser)
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(ctx, domain.Identity{})
	}
	return errors.Join(errToken, errUser)
}

// OnRequireLogin registers a hook fired whenever the session is invalidated by
// the backend.
func (s *Store) OnRequireLogin(fn func(ctx context.Context)) {
	s.mu.Lock()
	s.requireLoginFn = append(s.requireLoginFn, fn)
	s.mu.Unlock()
}

// HandleUnauthorized invalidates the session and fires the require-login hooks.
// Every 401 from the backend ends up here.
func (s *Store) HandleUnauthorized(ctx context.Context) {
	if err := s.clear(ctx); err != nil {
		s.logger.WarnContext(ctx, "failed to clear persisted session", slog.String("error", err.Error()))
	}
	metrics.StoreMutations.WithLabelValues("session", "unauthorized").Inc()

	s.mu.Lock()
	hooks := append([]func(context.Context){}, s.requireLoginFn...)
	s.mu.Unlock()

	for _, fn := range hooks {
		fn(ctx)
	}
}

// Hydrate restores a persisted identity. A stored pair with only one half, or
// a JWT whose exp has passed, is discarded.
func (s *Store) Hydrate(ctx context.Context) error {
	var token string
	var user domain.User
	hasToken, err := s.bridge.Load(ctx, storage.KeyAuthToken, &token)
	if err != nil {
		return err
	}
	hasUser, err := s.bridge.Load(ctx, storage.KeyAuthUser, &user)
	if err != nil {
		return err
	}

	switch {
	case !hasToken && !hasUser:
		return nil
	case !hasToken || !hasUser || token == "" || user.ID == "":
		s.logger.WarnContext(ctx, "discarding partial stored session",
			slog.Bool("has_token", hasToken),
			slog.Bool("has_user", hasUser),
		)
		return s.clear(ctx)
	case tokenExpired(token, s.now()):
		s.logger.InfoContext(ctx, "discarding expired stored session", slog.String("user_id", user.ID))
		return s.clear(ctx)
	}

	s.mu.Lock()
	s.token = token
	s.user = &user
	s.mu.Unlock()
	return nil
}

// tokenExpired reports whether token is a JWT with an exp claim before now.
// Opaque tokens never expire locally; the backend decides.
func tokenExpired(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !exp.After(now)
}

// Subscribe registers fn for identity changes.
func (s *Store) Subscribe(fn Listener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Token returns the bearer token, or "" when logged out.
func (s *Store) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// User returns a copy of the user, or nil when logged out.
func (s *Store) User() *domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneUser(s.user)
}

// cloneUser copies u including its roles, so callers never share the
// store's slice.
func cloneUser(u *domain.User) *domain.User {
	if u == nil {
		return nil
	}
	c := *u
	c.Roles = append([]domain.Role(nil), u.Roles...)
	return &c
}

// Identity returns the token and user together.
func (s *Store) Identity() domain.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return domain.Identity{}
	}
	return domain.Identity{Token: s.token, User: cloneUser(s.user)}
}

// Authenticated reports whether a session is present.
func (s *Store) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token != "" && s.user != nil
}

// HasRole reports whether the user has the named role. Case-sensitive.
func (s *Store) HasRole(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user.HasRole(name)
}

// HasAnyRole reports whether the user has at least one of names.
func (s *Store) HasAnyRole(names ...string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range names {
		if s.user.HasRole(n) {
			return true
		}
	}
	return false
}

// IsShopOwner reports whether the user owns shop.
func (s *Store) IsShopOwner(shop domain.Shop) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user != nil && s.user.ID != "" && s.user.ID == shop.OwnerID
}

// RequireAuthenticated returns UNAUTHORIZED when no session is present.
func (s *Store) RequireAuthenticated() error {
	if !s.Authenticated() {
		return apperrors.Unauthorized("login required")
	}
	return nil
}
