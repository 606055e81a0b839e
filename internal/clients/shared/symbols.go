package shared

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/bobmcallan/quorum/internal/models"
)

var symbolPattern = regexp.MustCompile(`^\^?[A-Za-z0-9][A-Za-z0-9.\-=]{0,19}$`)

var quoteCurrencies = map[string]bool{
	"USD": true, "USDT": true, "EUR": true, "GBP": true, "JPY": true, "AUD": true, "INR": true, "BTC": true,
}

// CheckSymbol rejects symbols that are not a recognised ticker form
func CheckSymbol(source, symbol string) error {
	if !symbolPattern.MatchString(symbol) {
		return models.NewSourceError(source, models.ErrInvalidSymbol, fmt.Errorf("malformed symbol %q", symbol))
	}
	return nil
}

// IsIndex reports Yahoo-style index symbols such as ^GSPC
func IsIndex(symbol string) bool {
	return strings.HasPrefix(symbol, "^")
}

// SplitCryptoPair splits "BTC-USD" into ("BTC", "USD", true). Equity share
// classes such as "BRK-B" are not pairs.
func SplitCryptoPair(symbol string) (base, quote string, ok bool) {
	base, quote, found := strings.Cut(strings.ToUpper(symbol), "-")
	if !found || base == "" || !quoteCurrencies[quote] {
		return "", "", false
	}
	return base, quote, true
}
