package currency

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Base currency in which the backend prices every product.
const (
	BaseCurrency   = "XAF"
	DefaultCountry = "CM"
)

// Currency describes a display currency. Rate is the number of units of this
// currency per one unit of the base currency.
type Currency struct {
	Code   string
	Symbol string
	Rate   decimal.Decimal
}

// Country is a selectable shipping/display country.
type Country struct {
	Code     string
	Name     string
	Currency string
}

func rate(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// XAF and XOF are pegged to the euro at 655.957.
var currencies = map[string]Currency{
	"XAF": {Code: "XAF", Symbol: "FCFA", Rate: decimal.NewFromInt(1)},
	"XOF": {Code: "XOF", Symbol: "CFA", Rate: decimal.NewFromInt(1)},
	"EUR": {Code: "EUR", Symbol: "€", Rate: rate("0.0015245")},
	"USD": {Code: "USD", Symbol: "$", Rate: rate("0.0016600")},
	"GBP": {Code: "GBP", Symbol: "£", Rate: rate("0.0012900")},
	"CAD": {Code: "CAD", Symbol: "CA$", Rate: rate("0.0022700")},
	"CHF": {Code: "CHF", Symbol: "CHF", Rate: rate("0.0014300")},
	"NGN": {Code: "NGN", Symbol: "₦", Rate: rate("2.5400000")},
	"GHS": {Code: "GHS", Symbol: "GH₵", Rate: rate("0.0250000")},
	"MAD": {Code: "MAD", Symbol: "MAD", Rate: rate("0.0164000")},
	"ZAR": {Code: "ZAR", Symbol: "R", Rate: rate("0.0301000")},
	"CNY": {Code: "CNY", Symbol: "¥", Rate: rate("0.0119000")},
}

var countries = map[string]Country{
	"CM": {Code: "CM", Name: "Cameroon", Currency: "XAF"},
	"GA": {Code: "GA", Name: "Gabon", Currency: "XAF"},
	"CG": {Code: "CG", Name: "Congo", Currency: "XAF"},
	"TD": {Code: "TD", Name: "Chad", Currency: "XAF"},
	"CF": {Code: "CF", Name: "Central African Republic", Currency: "XAF"},
	"GQ": {Code: "GQ", Name: "Equatorial Guinea", Currency: "XAF"},
	"SN": {Code: "SN", Name: "Senegal", Currency: "XOF"},
	"CI": {Code: "CI", Name: "Côte d'Ivoire", Currency: "XOF"},
	"BJ": {Code: "BJ", Name: "Benin", Currency: "XOF"},
	"TG": {Code: "TG", Name: "Togo", Currency: "XOF"},
	"ML": {Code: "ML", Name: "Mali", Currency: "XOF"},
	"BF": {Code: "BF", Name: "Burkina Faso", Currency: "XOF"},
	"NE": {Code: "NE", Name: "Niger", Currency: "XOF"},
	"FR": {Code: "FR", Name: "France", Currency: "EUR"},
	"BE": {Code: "BE", Name: "Belgium", Currency: "EUR"},
	"DE": {Code: "DE", Name: "Germany", Currency: "EUR"},
	"ES": {Code: "ES", Name: "Spain", Currency: "EUR"},
	"IT": {Code: "IT", Name: "Italy", Currency: "EUR"},
	"NL": {Code: "NL", Name: "Netherlands", Currency: "EUR"},
	"US": {Code: "US", Name: "United States", Currency: "USD"},
	"GB": {Code: "GB", Name: "United Kingdom", Currency: "GBP"},
	"CA": {Code: "CA", Name: "Canada", Currency: "CAD"},
	"CH": {Code: "CH", Name: "Switzerland", Currency: "CHF"},
	"NG": {Code: "NG", Name: "Nigeria", Currency: "NGN"},
	"GH": {Code: "GH", Name: "Ghana", Currency: "GHS"},
	"MA": {Code: "MA", Name: "Morocco", Currency: "MAD"},
	"ZA": {Code: "ZA", Name: "South Africa", Currency: "ZAR"},
	"CN": {Code: "CN", Name: "China", Currency: "CNY"},
}

// LookupCountry returns the country for an ISO 3166-1 alpha-2 code (case-insensitive).
func LookupCountry(code string) (Country, bool) {
	c, ok := countries[strings.ToUpper(strings.TrimSpace(code))]
	return c, ok
}

// LookupCurrency returns the currency for an ISO 4217 code (case-insensitive).
func LookupCurrency(code string) (Currency, bool) {
	c, ok := currencies[strings.ToUpper(strings.TrimSpace(code))]
	return c, ok
}

// Countries lists the supported countries sorted by name.
func Countries() []Country {
	out := make([]Country, 0, len(countries))
	for _, c := range countries {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Currencies lists the supported currencies sorted by code.
func Currencies() []Currency {
	out := make([]Currency, 0, len(currencies))
	for _, c := range currencies {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}
