package cart

import (
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/shopspring/decimal"
)

// State is the local, authoritative picture of the cart.
// TotalQuantity and TotalPrice are derived from Items on every transition.
type State struct {
	Items         []domain.LineItem `json:"items"`
	TotalQuantity int               `json:"totalQuantity"`
	// TotalPrice sums unit price times quantity as stored, across currencies.
	TotalPrice   decimal.Decimal `json:"totalPrice"`
	CurrencyCode string          `json:"currencyCode"`
	IsLoading    bool            `json:"isLoading"`
	Error        string          `json:"error,omitempty"`
	RemoteCartID string          `json:"remoteCartId,omitempty"`
	CheckoutURL  string          `json:"checkoutUrl,omitempty"`
}

// NewState returns an empty cart displayed in currencyCode.
func NewState(currencyCode string) State {
	return State{Items: []domain.LineItem{}, TotalPrice: decimal.Zero, CurrencyCode: currencyCode}
}

// Action is one of the closed set of cart transitions below.
type Action interface {
	isAction()
}

type AddItemAction struct{ Item domain.LineItem }

type RemoveItemAction struct{ VariantID string }

type UpdateQuantityAction struct {
	VariantID string
	Quantity  int
}

type ClearCartAction struct{}

type LoadCartAction struct{ Items []domain.LineItem }

type SetRemoteCartAction struct {
	ID          string
	CheckoutURL string
}

type SyncRemoteCartAction struct {
	ID          string
	CheckoutURL string
	Items       []domain.LineItem
}

type SetLoadingAction struct{ Loading bool }

// SetErrorAction sets the error message; an empty message clears it.
type SetErrorAction struct{ Message string }

type SetCurrencyAction struct{ CurrencyCode string }

func (AddItemAction) isAction()        {}
func (RemoveItemAction) isAction()     {}
func (UpdateQuantityAction) isAction() {}
func (ClearCartAction) isAction()      {}
func (LoadCartAction) isAction()       {}
func (SetRemoteCartAction) isAction()  {}
func (SyncRemoteCartAction) isAction() {}
func (SetLoadingAction) isAction()     {}
func (SetErrorAction) isAction()       {}
func (SetCurrencyAction) isAction()    {}

// Reduce applies a to s and returns the next state. It has no side effects and
// never shares item storage with s or a.
func Reduce(s State, a Action) State {
	switch a := a.(type) {
	case AddItemAction:
		items := cloneItems(s.Items)
		idx := indexOf(items, a.Item.VariantID)
		if idx >= 0 {
			items[idx].Quantity += a.Item.Quantity
		} else {
			items = append(items, cloneItem(a.Item))
		}
		return withItems(s, items)

	case RemoveItemAction:
		items := make([]domain.LineItem, 0, len(s.Items))
		for _, item := range s.Items {
			if item.VariantID != a.VariantID {
				items = append(items, cloneItem(item))
			}
		}
		return withItems(s, items)

	case UpdateQuantityAction:
		if a.Quantity <= 0 {
			return Reduce(s, RemoveItemAction{VariantID: a.VariantID})
		}
		items := cloneItems(s.Items)
		if idx := indexOf(items, a.VariantID); idx >= 0 {
			items[idx].Quantity = a.Quantity
		}
		return withItems(s, items)

	case ClearCartAction:
		return NewState(s.CurrencyCode)

	case LoadCartAction:
		return withItems(s, cloneItems(a.Items))

	case SetRemoteCartAction:
		s.Items = cloneItems(s.Items)
		s.RemoteCartID = a.ID
		s.CheckoutURL = a.CheckoutURL
		return s

	case SyncRemoteCartAction:
		next := withItems(s, cloneItems(a.Items))
		next.RemoteCartID = a.ID
		next.CheckoutURL = a.CheckoutURL
		return next

	case SetLoadingAction:
		s.Items = cloneItems(s.Items)
		s.IsLoading = a.Loading
		return s

	case SetErrorAction:
		s.Items = cloneItems(s.Items)
		s.Error = a.Message
		return s

	case SetCurrencyAction:
		s.Items = cloneItems(s.Items)
		s.CurrencyCode = a.CurrencyCode
		return s
	}
	return s
}

// withItems installs items, dropping non-positive quantities, and recomputes totals.
func withItems(s State, items []domain.LineItem) State {
	kept := items[:0]
	for _, item := range items {
		if item.Quantity > 0 {
			kept = append(kept, item)
		}
	}
	s.Items = kept
	s.TotalQuantity, s.TotalPrice = totals(kept)
	return s
}

func totals(items []domain.LineItem) (int, decimal.Decimal) {
	qty := 0
	price := decimal.Zero
	for _, item := range items {
		qty += item.Quantity
		price = price.Add(item.LineTotal())
	}
	return qty, price
}

func indexOf(items []domain.LineItem, variantID string) int {
	for i := range items {
		if items[i].VariantID == variantID {
			return i
		}
	}
	return -1
}

func cloneItems(items []domain.LineItem) []domain.LineItem {
	out := make([]domain.LineItem, 0, len(items))
	for _, item := range items {
		out = append(out, cloneItem(item))
	}
	return out
}

func cloneItem(item domain.LineItem) domain.LineItem {
	if item.SelectedOptions != nil {
		opts := make([]domain.SelectedOption, len(item.SelectedOptions))
		copy(opts, item.SelectedOptions)
		item.SelectedOptions = opts
	}
	return item
}
