package http

import (
	"net/http"

	"github.com/utafrali/storefront/internal/currency"
	"github.com/utafrali/storefront/internal/domain"
)

// CodeRequest carries a country or currency code.
type CodeRequest struct {
	Code string `json:"code" validate:"required,min=2,max=3"`
}

// CurrencyOptions lists what the currency selector offers.
type CurrencyOptions struct {
	BaseCurrency string              `json:"base_currency"`
	Countries    []currency.Country  `json:"countries"`
	Currencies   []currency.Currency `json:"currencies"`
}

// GetCurrency handles GET /api/currency.
func (h *Handler) GetCurrency(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, http.StatusOK, storefrontFrom(r).Currency.Preference())
}

// SetCountry handles PUT /api/currency/country. The currency follows the country.
func (h *Handler) SetCountry(w http.ResponseWriter, r *http.Request) {
	h.setPreference(w, r, func(res *currency.Resolver, code string) (domain.CurrencyPreference, error) {
		return res.SetCountry(r.Context(), code)
	})
}

// SetCurrency handles PUT /api/currency/currency. The country is kept.
func (h *Handler) SetCurrency(w http.ResponseWriter, r *http.Request) {
	h.setPreference(w, r, func(res *currency.Resolver, code string) (domain.CurrencyPreference, error) {
		return res.SetCurrency(r.Context(), code)
	})
}

func (h *Handler) setPreference(w http.ResponseWriter, r *http.Request, set func(*currency.Resolver, string) (domain.CurrencyPreference, error)) {
	var req CodeRequest
	if !h.decode(w, r, &req) {
		return
	}
	pref, err := set(storefrontFrom(r).Currency, req.Code)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, pref)
}

// CurrencyOptions handles GET /api/currency/options. The response does not
// depend on the session.
func (h *Handler) CurrencyOptions(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, http.StatusOK, CurrencyOptions{
		BaseCurrency: currency.BaseCurrency,
		Countries:    currency.Countries(),
		Currencies:   currency.Currencies(),
	})
}
