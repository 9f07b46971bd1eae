package domain

import "github.com/shopspring/decimal"

// Money is an amount in a single currency. Amounts travel as decimal strings in JSON.
type Money struct {
	Amount       decimal.Decimal `json:"amount"`
	CurrencyCode string          `json:"currencyCode"`
}

// SelectedOption is one (name, value) pair describing the chosen variant, e.g. Size=M.
type SelectedOption struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// LineItem is one variant in the cart together with its price snapshot.
type LineItem struct {
	ProductID       string           `json:"productId"`
	VariantID       string           `json:"variantId"`
	Title           string           `json:"title"`
	Handle          string           `json:"handle"`
	Price           Money            `json:"price"`
	Quantity        int              `json:"quantity"`
	Image           string           `json:"image,omitempty"`
	SelectedOptions []SelectedOption `json:"selectedOptions,omitempty"`
}

// Key is the composite identity of the line.
func (l LineItem) Key() string {
	return l.ProductID + "/" + l.VariantID
}

// LineTotal returns unit price times quantity in the line's own currency.
func (l LineItem) LineTotal() decimal.Decimal {
	return l.Price.Amount.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// CartLineInput is the (merchandise, quantity) pair pushed to the remote cart.
type CartLineInput struct {
	MerchandiseID string `json:"merchandiseId"`
	Quantity      int    `json:"quantity"`
}

// LineInputs builds the full remote line set for the given items.
func LineInputs(items []LineItem) []CartLineInput {
	lines := make([]CartLineInput, 0, len(items))
	for _, item := range items {
		lines = append(lines, CartLineInput{MerchandiseID: item.VariantID, Quantity: item.Quantity})
	}
	return lines
}
