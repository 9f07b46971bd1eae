// Package currency converts prices between the storefront's display currencies
// using a static rate table.
package currency

import (
	"fmt"
	"strings"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/shopspring/decimal"
)

// units per 1 USD
var rates = map[string]decimal.Decimal{
	"USD": decimal.NewFromInt(1),
	"JPY": decimal.NewFromInt(150),
	"EUR": decimal.RequireFromString("0.92"),
	"GBP": decimal.RequireFromString("0.79"),
	"ETH": decimal.RequireFromString("0.00029"),
}

var precision = map[string]int32{
	"JPY": 0,
	"ETH": 6,
}

var symbols = map[string]string{
	"USD": "$",
	"JPY": "¥",
	"EUR": "€",
	"GBP": "£",
	"ETH": "Ξ",
}

const defaultPrecision int32 = 2

// Supported reports whether code is in the rate table.
func Supported(code string) bool {
	_, ok := rates[normalize(code)]
	return ok
}

// Precision returns the number of fraction digits shown for code.
func Precision(code string) int32 {
	if p, ok := precision[normalize(code)]; ok {
		return p
	}
	return defaultPrecision
}

// Convert maps amount from one currency to another and rounds it to the
// target's display precision.
func Convert(amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	from, to = normalize(from), normalize(to)
	fromRate, ok := rates[from]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", domain.ErrUnsupportedCurrency, from)
	}
	toRate, ok := rates[to]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", domain.ErrUnsupportedCurrency, to)
	}
	if from == to {
		return amount.Round(Precision(to)), nil
	}
	usd := amount.DivRound(fromRate, 16)
	return usd.Mul(toRate).Round(Precision(to)), nil
}

// ConvertMoney converts m into the target currency.
func ConvertMoney(m domain.Money, to string) (domain.Money, error) {
	amount, err := Convert(m.Amount, m.CurrencyCode, to)
	if err != nil {
		return domain.Money{}, err
	}
	return domain.Money{Amount: amount, CurrencyCode: normalize(to)}, nil
}

// DisplayTotal sums unit price times quantity of every line after converting
// each into the display currency.
func DisplayTotal(items []domain.LineItem, to string) (domain.Money, error) {
	total := decimal.Zero
	for _, item := range items {
		converted, err := Convert(item.LineTotal(), item.Price.CurrencyCode, to)
		if err != nil {
			return domain.Money{}, err
		}
		total = total.Add(converted)
	}
	return domain.Money{Amount: total.Round(Precision(to)), CurrencyCode: normalize(to)}, nil
}

// Format renders m for display, e.g. "¥1,500" or "$12.50".
func Format(m domain.Money) string {
	code := normalize(m.CurrencyCode)
	fixed := m.Amount.StringFixed(Precision(code))
	intPart, frac, _ := strings.Cut(fixed, ".")
	neg := strings.HasPrefix(intPart, "-")
	intPart = strings.TrimPrefix(intPart, "-")

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := b.String()
	if frac != "" {
		out += "." + frac
	}
	if sym, ok := symbols[code]; ok {
		out = sym + out
	} else {
		out = out + " " + code
	}
	if neg {
		out = "-" + out
	}
	return out
}

func normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
