package domain

import "github.com/shopspring/decimal"

// CurrencyPreference is the resolved country/currency pair driving displayed prices.
// IsAutoDetected is true while the currency follows the country's canonical
// currency; an explicit currency override clears it.
type CurrencyPreference struct {
	CountryCode    string          `json:"country_code"`
	CurrencyCode   string          `json:"currency_code"`
	Rate           decimal.Decimal `json:"rate"`
	Symbol         string          `json:"symbol"`
	IsAutoDetected bool            `json:"is_auto_detected"`
}
