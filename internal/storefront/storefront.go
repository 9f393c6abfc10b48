// Package storefront wires the per-session stores together and keeps the
// registry of live sessions.
package storefront

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/utafrali/storefront/internal/backend"
	"github.com/utafrali/storefront/internal/cart"
	"github.com/utafrali/storefront/internal/currency"
	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/event"
	"github.com/utafrali/storefront/internal/i18n"
	"github.com/utafrali/storefront/internal/preferences"
	"github.com/utafrali/storefront/internal/session"
	"github.com/utafrali/storefront/internal/storage"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// Deps are the shared collaborators every session is built from.
type Deps struct {
	Bridge      *storage.Bridge
	Backend     *backend.Client
	Geolocator  currency.Geolocator
	Events      *event.Producer
	Catalog     *i18n.Catalog
	Logger      *slog.Logger
	RecentLimit int
}

// Storefront is one browser session: its stores plus a backend client bound
// to its token.
type Storefront struct {
	ID       string
	Session  *session.Store
	Cart     *cart.Store
	Currency *currency.Resolver
	Prefs    *preferences.Store
	Backend  *backend.Client

	bridge        *storage.Bridge
	catalog       *i18n.Catalog
	logger        *slog.Logger
	mu            sync.Mutex
	locale        string
	lastSeen      atomic.Int64
	loginRequired atomic.Bool
}

// New builds the stores for session id. Call Hydrate before use.
func New(id string, deps Deps) *Storefront {
	logger := deps.Logger.With(slog.String("session_id", id))
	bridge := sessionBridge(deps, id)

	sf := &Storefront{
		ID:       id,
		Currency: currency.NewResolver(bridge, deps.Geolocator, logger),
		Cart:     cart.NewStore(bridge, logger),
		Prefs:    preferences.NewStore(bridge, deps.RecentLimit),
		bridge:   bridge,
		catalog:  deps.Catalog,
		logger:   logger,
		locale:   i18n.DefaultLocale,
	}
	sf.Session = session.NewStore(bridge, deps.Backend, logger)
	sf.Backend = deps.Backend.ForSession(sf.Session)

	sf.Session.OnRequireLogin(func(ctx context.Context) {
		sf.loginRequired.Store(true)
		logger.InfoContext(ctx, "session invalidated, login required")
	})
	if deps.Events != nil {
		sf.Cart.Subscribe(deps.Events.CartListener(id))
	}
	sf.Touch(time.Now())
	return sf
}

func sessionBridge(deps Deps, id string) *storage.Bridge {
	return deps.Bridge.Namespace("session:" + id)
}

// Hydrate restores persisted state in order: session, cart, currency, locale.
func (s *Storefront) Hydrate(ctx context.Context, clientIP string) error {
	if err := s.Session.Hydrate(ctx); err != nil {
		return fmt.Errorf("hydrate session: %w", err)
	}
	if err := s.Cart.Hydrate(ctx); err != nil {
		return fmt.Errorf("hydrate cart: %w", err)
	}
	if _, err := s.Currency.Resolve(ctx, clientIP); err != nil {
		return fmt.Errorf("resolve currency: %w", err)
	}

	locale, err := s.Prefs.Locale(ctx)
	if err != nil {
		return fmt.Errorf("load locale: %w", err)
	}
	if locale != "" && s.catalog.Supported(locale) {
		s.setLocale(locale)
	} else {
		s.setLocale(i18n.DefaultLocale)
	}
	return nil
}

func (s *Storefront) setLocale(locale string) {
	s.mu.Lock()
	s.locale = locale
	s.mu.Unlock()
	s.Currency.SetLocale(s.catalog.Tag(locale))
}

// Locale returns the active UI locale.
func (s *Storefront) Locale() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locale
}

// SwitchLocale changes the UI locale. The cart is carried across the switch
// through langCart and re-hydrated.
func (s *Storefront) SwitchLocale(ctx context.Context, locale string) error {
	if !s.catalog.Supported(locale) {
		return apperrors.InvalidInput(fmt.Sprintf("unsupported locale %q", locale))
	}
	if err := s.Cart.SnapshotForLocaleSwitch(ctx); err != nil {
		return err
	}
	if err := s.Prefs.SetLocale(ctx, locale); err != nil {
		return err
	}
	s.setLocale(locale)
	return s.Cart.Hydrate(ctx)
}

// T translates key in the session's locale.
func (s *Storefront) T(key string) string {
	return s.catalog.T(s.Locale(), key)
}

// TakeLoginRequired reports, once, that the session was invalidated since the
// last call.
func (s *Storefront) TakeLoginRequired() bool {
	return s.loginRequired.Swap(false)
}

// Touch records activity at t.
func (s *Storefront) Touch(t time.Time) {
	s.lastSeen.Store(t.UnixNano())
}

// LastSeen returns the time of the last recorded activity.
func (s *Storefront) LastSeen() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

// CheckoutLine is one priced line of a checkout summary.
type CheckoutLine struct {
	ProductID      string          `json:"product_id"`
	Name           string          `json:"name"`
	Quantity       int             `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	LineTotal      decimal.Decimal `json:"line_total"`
	FormattedPrice string          `json:"formatted_price"`
	FormattedTotal string          `json:"formatted_total"`
}

// CheckoutSummary is the cross-store view shown on the checkout page.
type CheckoutSummary struct {
	Customer          *domain.User    `json:"customer"`
	Lines             []CheckoutLine  `json:"lines"`
	ItemCount         int             `json:"item_count"`
	Subtotal          decimal.Decimal `json:"subtotal"`
	BaseCurrency      string          `json:"base_currency"`
	ConvertedSubtotal decimal.Decimal `json:"converted_subtotal"`
	Currency          string          `json:"currency"`
	FormattedTotal    string          `json:"formatted_total"`
}

// Checkout reads the session, cart and currency to build the checkout summary.
// Without a session the require-login hooks fire and UNAUTHORIZED is returned.
func (s *Storefront) Checkout(ctx context.Context) (CheckoutSummary, error) {
	if !s.Session.Authenticated() {
		s.Session.HandleUnauthorized(ctx)
		return CheckoutSummary{}, apperrors.Unauthorized(s.T("checkout.login_required"))
	}

	snap := s.Cart.Snapshot()
	if len(snap.Items) == 0 {
		return CheckoutSummary{}, apperrors.InvalidInput(s.T("cart.empty"))
	}

	pref := s.Currency.Preference()
	lines := make([]CheckoutLine, len(snap.Items))
	for i, item := range snap.Items {
		total := item.LineTotal()
		lines[i] = CheckoutLine{
			ProductID:      item.ProductID,
			Name:           item.Name,
			Quantity:       item.Quantity,
			UnitPrice:      item.Price,
			LineTotal:      total,
			FormattedPrice: s.Currency.FormatPrice(item.Price),
			FormattedTotal: s.Currency.FormatPrice(total),
		}
	}

	subtotal := snap.Subtotal()
	return CheckoutSummary{
		Customer:          s.Session.User(),
		Lines:             lines,
		ItemCount:         snap.ItemCount(),
		Subtotal:          subtotal,
		BaseCurrency:      currency.BaseCurrency,
		ConvertedSubtotal: s.Currency.Convert(subtotal).Round(2),
		Currency:          pref.CurrencyCode,
		FormattedTotal:    s.Currency.FormatPrice(subtotal),
	}, nil
}
