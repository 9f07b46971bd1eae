package shopify

import (
	"encoding/json"
	"strings"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/shopspring/decimal"
)

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLResponse[T any] struct {
	Data   T              `json:"data"`
	Errors []graphQLError `json:"errors,omitempty"`
}

type graphQLError struct {
	Message    string         `json:"message"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

type moneyV2 struct {
	Amount       decimal.Decimal `json:"amount"`
	CurrencyCode string          `json:"currencyCode"`
}

func (m moneyV2) toDomain() domain.Money {
	return domain.Money{Amount: m.Amount, CurrencyCode: m.CurrencyCode}
}

type cartNode struct {
	ID          string `json:"id"`
	CheckoutURL string `json:"checkoutUrl"`
	Cost        struct {
		SubtotalAmount moneyV2 `json:"subtotalAmount"`
		TotalAmount    moneyV2 `json:"totalAmount"`
	} `json:"cost"`
	Lines struct {
		Nodes []cartLineNode `json:"nodes"`
	} `json:"lines"`
}

type cartLineNode struct {
	ID          string `json:"id"`
	Quantity    int    `json:"quantity"`
	Merchandise struct {
		ID    string `json:"id"`
		Title string `json:"title"`
		Image *struct {
			URL string `json:"url"`
		} `json:"image,omitempty"`
		SelectedOptions []domain.SelectedOption `json:"selectedOptions"`
		Price           moneyV2                 `json:"price"`
		Product         struct {
			ID     string `json:"id"`
			Title  string `json:"title"`
			Handle string `json:"handle"`
		} `json:"product"`
	} `json:"merchandise"`
}

func (c *cartNode) toDomain() *domain.RemoteCart {
	cart := &domain.RemoteCart{
		ID:          c.ID,
		CheckoutURL: c.CheckoutURL,
		Lines:       make([]domain.RemoteLine, 0, len(c.Lines.Nodes)),
		Cost: domain.RemoteCost{
			Subtotal: c.Cost.SubtotalAmount.toDomain(),
			Total:    c.Cost.TotalAmount.toDomain(),
		},
	}
	for _, n := range c.Lines.Nodes {
		line := domain.RemoteLine{
			ID:              n.ID,
			MerchandiseID:   n.Merchandise.ID,
			ProductID:       n.Merchandise.Product.ID,
			Title:           n.Merchandise.Product.Title,
			Handle:          n.Merchandise.Product.Handle,
			Quantity:        n.Quantity,
			Price:           n.Merchandise.Price.toDomain(),
			SelectedOptions: n.Merchandise.SelectedOptions,
		}
		if n.Merchandise.Image != nil {
			line.Image = n.Merchandise.Image.URL
		}
		cart.Lines = append(cart.Lines, line)
	}
	return cart
}

type cartMutationPayload struct {
	Cart       *cartNode          `json:"cart"`
	UserErrors []domain.UserError `json:"userErrors,omitempty"`
}

type cartCreateData struct {
	CartCreate cartMutationPayload `json:"cartCreate"`
}

type cartLinesAddData struct {
	CartLinesAdd cartMutationPayload `json:"cartLinesAdd"`
}

type cartLinesRemoveData struct {
	CartLinesRemove cartMutationPayload `json:"cartLinesRemove"`
}

type cartQueryData struct {
	Cart *cartNode `json:"cart"`
}

const cartFragment = `
fragment CartFields on Cart {
	id
	checkoutUrl
	cost {
		subtotalAmount { amount currencyCode }
		totalAmount { amount currencyCode }
	}
	lines(first: 250) {
		nodes {
			id
			quantity
			merchandise {
				... on ProductVariant {
					id
					title
					image { url }
					selectedOptions { name value }
					price { amount currencyCode }
					product { id title handle }
				}
			}
		}
	}
}`

const cartCreateMutation = `
mutation cartCreate($input: CartInput!) {
	cartCreate(input: $input) {
		cart { ...CartFields }
		userErrors { field code message }
	}
}` + cartFragment

const cartLinesAddMutation = `
mutation cartLinesAdd($cartId: ID!, $lines: [CartLineInput!]!) {
	cartLinesAdd(cartId: $cartId, lines: $lines) {
		cart { ...CartFields }
		userErrors { field code message }
	}
}` + cartFragment

const cartLinesRemoveMutation = `
mutation cartLinesRemove($cartId: ID!, $lineIds: [ID!]!) {
	cartLinesRemove(cartId: $cartId, lineIds: $lineIds) {
		cart { ...CartFields }
		userErrors { field code message }
	}
}` + cartFragment

const cartQuery = `
query cart($id: ID!) {
	cart(id: $id) { ...CartFields }
}` + cartFragment

func linesVariable(lines []domain.CartLineInput) []map[string]any {
	out := make([]map[string]any, 0, len(lines))
	for _, l := range lines {
		out = append(out, map[string]any{
			"merchandiseId": l.MerchandiseID,
			"quantity":      l.Quantity,
		})
	}
	return out
}

func formatGraphQLErrors(errs []graphQLError) string {
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		msg := strings.TrimSpace(e.Message)
		if msg == "" {
			continue
		}
		if len(e.Path) > 0 {
			path, _ := json.Marshal(e.Path)
			msg = msg + " (path: " + string(path) + ")"
		}
		parts = append(parts, msg)
	}
	if len(parts) == 0 {
		return "unknown graphql error"
	}
	return strings.Join(parts, "; ")
}
