// Package currency resolves the active country/currency pair for a session and
// formats prices in it.
package currency

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"
	xcurrency "golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/metrics"
	"github.com/utafrali/storefront/internal/storage"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// Listener is notified with the new preference after every change.
type Listener func(domain.CurrencyPreference)

// Resolver owns the selectedCountry, selectedCurrency and currencyAutoDetected keys.
type Resolver struct {
	mu        sync.Mutex
	bridge    *storage.Bridge
	geo       Geolocator
	logger    *slog.Logger
	pref      domain.CurrencyPreference
	resolved  bool
	geoTried  bool
	tag       language.Tag
	listeners []Listener
}

// NewResolver creates a resolver. geo may be nil, in which case resolution goes
// straight from the stored preference to the default.
func NewResolver(bridge *storage.Bridge, geo Geolocator, logger *slog.Logger) *Resolver {
	return &Resolver{
		bridge: bridge,
		geo:    geo,
		logger: logger,
		pref:   Default(),
		tag:    language.French,
	}
}

// Default returns the hard-coded fallback preference (CM/XAF).
func Default() domain.CurrencyPreference {
	p, _ := preferenceFor(DefaultCountry, "", true)
	return p
}

func preferenceFor(countryCode, currencyCode string, auto bool) (domain.CurrencyPreference, bool) {
	country, ok := LookupCountry(countryCode)
	if !ok {
		return domain.CurrencyPreference{}, false
	}
	if currencyCode == "" {
		currencyCode = country.Currency
	}
	cur, ok := LookupCurrency(currencyCode)
	if !ok {
		return domain.CurrencyPreference{}, false
	}
	return domain.CurrencyPreference{
		CountryCode:    country.Code,
		CurrencyCode:   cur.Code,
		Rate:           cur.Rate,
		Symbol:         cur.Symbol,
		IsAutoDetected: auto,
	}, true
}

// Resolve returns the active preference. The first call checks the stored
// preference, then performs at most one geolocation lookup, then falls back
// to the default. Geolocation failures are logged and never returned.
func (r *Resolver) Resolve(ctx context.Context, clientIP string) (domain.CurrencyPreference, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.resolved {
		return r.pref, nil
	}

	stored, ok, err := r.loadStored(ctx)
	if err != nil {
		return domain.CurrencyPreference{}, err
	}
	if ok {
		r.pref = stored
		r.resolved = true
		return r.pref, nil
	}

	if pref, ok := r.geolocate(ctx, clientIP); ok {
		r.pref = pref
		r.resolved = true
		if err := r.persist(ctx); err != nil {
			r.logger.WarnContext(ctx, "failed to persist detected currency", slog.String("error", err.Error()))
		}
		return r.pref, nil
	}

	r.pref = Default()
	r.resolved = true
	return r.pref, nil
}

func (r *Resolver) loadStored(ctx context.Context) (domain.CurrencyPreference, bool, error) {
	var country, cur string
	okCountry, err := r.bridge.Load(ctx, storage.KeySelectedCountry, &country)
	if err != nil {
		return domain.CurrencyPreference{}, false, err
	}
	okCurrency, err := r.bridge.Load(ctx, storage.KeySelectedCurrency, &cur)
	if err != nil {
		return domain.CurrencyPreference{}, false, err
	}
	if !okCountry || !okCurrency {
		return domain.CurrencyPreference{}, false, nil
	}

	auto := true
	var storedAuto bool
	if ok, err := r.bridge.Load(ctx, storage.KeyCurrencyAutoDetected, &storedAuto); err != nil {
		return domain.CurrencyPreference{}, false, err
	} else if ok {
		auto = storedAuto
	}

	pref, ok := preferenceFor(country, cur, auto)
	if !ok {
		r.logger.WarnContext(ctx, "ignoring unknown stored currency preference",
			slog.String("country", country),
			slog.String("currency", cur),
		)
		return domain.CurrencyPreference{}, false, nil
	}
	return pref, true, nil
}

func (r *Resolver) geolocate(ctx context.Context, clientIP string) (domain.CurrencyPreference, bool) {
	if r.geo == nil || r.geoTried {
		return domain.CurrencyPreference{}, false
	}
	r.geoTried = true

	code, err := r.geo.Locate(ctx, clientIP)
	if err != nil {
		metrics.GeolocationLookups.WithLabelValues("error").Inc()
		r.logger.WarnContext(ctx, "geolocation lookup failed, using default currency",
			slog.String("error", err.Error()),
		)
		return domain.CurrencyPreference{}, false
	}

	pref, ok := preferenceFor(code, "", true)
	if !ok {
		metrics.GeolocationLookups.WithLabelValues("unmapped").Inc()
		r.logger.InfoContext(ctx, "geolocated country is not supported, using default currency",
			slog.String("country", code),
		)
		return domain.CurrencyPreference{}, false
	}
	metrics.GeolocationLookups.WithLabelValues("matched").Inc()
	return pref, true
}

// Preference returns the current preference without triggering resolution.
func (r *Resolver) Preference() domain.CurrencyPreference {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pref
}

// SetCountry selects a country and re-derives the currency from the country table.
func (r *Resolver) SetCountry(ctx context.Context, code string) (domain.CurrencyPreference, error) {
	pref, ok := preferenceFor(code, "", true)
	if !ok {
		return domain.CurrencyPreference{}, apperrors.InvalidInput(fmt.Sprintf("unsupported country %q", code))
	}
	return r.apply(ctx, "set_country", pref)
}

// SetCurrency overrides the currency for the current country and clears IsAutoDetected.
func (r *Resolver) SetCurrency(ctx context.Context, code string) (domain.CurrencyPreference, error) {
	cur, ok := LookupCurrency(code)
	if !ok {
		return domain.CurrencyPreference{}, apperrors.InvalidInput(fmt.Sprintf("unsupported currency %q", code))
	}

	r.mu.Lock()
	country := r.pref.CountryCode
	r.mu.Unlock()

	pref, _ := preferenceFor(country, cur.Code, false)
	return r.apply(ctx, "set_currency", pref)
}

func (r *Resolver) apply(ctx context.Context, op string, pref domain.CurrencyPreference) (domain.CurrencyPreference, error) {
	r.mu.Lock()
	prev, prevResolved := r.pref, r.resolved
	r.pref = pref
	r.resolved = true
	err := r.persist(ctx)
	if err != nil {
		r.pref, r.resolved = prev, prevResolved
	}
	listeners := append([]Listener(nil), r.listeners...)
	r.mu.Unlock()

	if err != nil {
		metrics.PersistFailures.WithLabelValues("currency").Inc()
		return domain.CurrencyPreference{}, err
	}
	metrics.StoreMutations.WithLabelValues("currency", op).Inc()

	for _, fn := range listeners {
		fn(pref)
	}
	return pref, nil
}

// persist writes the three owned keys. Caller holds r.mu.
func (r *Resolver) persist(ctx context.Context) error {
	if err := r.bridge.Save(ctx, storage.KeySelectedCountry, r.pref.CountryCode); err != nil {
		return err
	}
	if err := r.bridge.Save(ctx, storage.KeySelectedCurrency, r.pref.CurrencyCode); err != nil {
		return err
	}
	return r.bridge.Save(ctx, storage.KeyCurrencyAutoDetected, r.pref.IsAutoDetected)
}

// SetLocale sets the language used by FormatPrice.
func (r *Resolver) SetLocale(tag language.Tag) {
	r.mu.Lock()
	r.tag = tag
	r.mu.Unlock()
}

// Subscribe registers fn to be called after every preference change.
func (r *Resolver) Subscribe(fn Listener) {
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

// Convert converts an amount in the base currency to the active currency.
func (r *Resolver) Convert(amount decimal.Decimal) decimal.Decimal {
	r.mu.Lock()
	rate := r.pref.Rate
	r.mu.Unlock()
	return amount.Mul(rate)
}

// FormatPrice converts amount (in the base currency) and formats it for display.
// The base currency is rounded to an integer with the symbol suffixed; other
// currencies get two fraction digits formatted for the active locale.
func (r *Resolver) FormatPrice(amount decimal.Decimal) string {
	r.mu.Lock()
	pref, tag := r.pref, r.tag
	r.mu.Unlock()

	return Format(amount.Mul(pref.Rate), pref.CurrencyCode, pref.Symbol, tag)
}

// Format renders an already converted value. The amount is formatted from
// its decimal string so no precision is lost. English puts the symbol first,
// the other served locales put it after the amount.
func Format(value decimal.Decimal, code, symbol string, tag language.Tag) string {
	if code == BaseCurrency {
		return value.StringFixed(0) + " " + symbol
	}

	unit, err := xcurrency.ParseISO(code)
	if err != nil {
		return symbol + value.StringFixed(2)
	}

	p := message.NewPrinter(tag)
	sym := p.Sprint(xcurrency.NarrowSymbol(unit))
	amount := p.Sprint(number.Decimal(value.StringFixed(2), number.Scale(2)))
	if base, _ := tag.Base(); base == english {
		return sym + amount
	}
	return amount + " " + sym
}

var english, _ = language.English.Base()
