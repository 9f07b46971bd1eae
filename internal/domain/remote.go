package domain

// RemoteCart is the cart as returned by the remote cart API.
type RemoteCart struct {
	ID          string       `json:"id"`
	CheckoutURL string       `json:"checkoutUrl"`
	Lines       []RemoteLine `json:"lines"`
	Cost        RemoteCost   `json:"cost"`
}

// RemoteLine is one line of the remote cart.
type RemoteLine struct {
	ID              string           `json:"id"`
	MerchandiseID   string           `json:"merchandiseId"`
	ProductID       string           `json:"productId"`
	Title           string           `json:"title"`
	Handle          string           `json:"handle"`
	Quantity        int              `json:"quantity"`
	Price           Money            `json:"price"`
	Image           string           `json:"image,omitempty"`
	SelectedOptions []SelectedOption `json:"selectedOptions,omitempty"`
}

// RemoteCost is the remote cart's own price calculation.
type RemoteCost struct {
	Subtotal Money `json:"subtotal"`
	Total    Money `json:"total"`
}

// LineItems converts the remote lines into local cart lines.
func (c RemoteCart) LineItems() []LineItem {
	items := make([]LineItem, 0, len(c.Lines))
	for _, l := range c.Lines {
		if l.Quantity <= 0 {
			continue
		}
		items = append(items, LineItem{
			ProductID:       l.ProductID,
			VariantID:       l.MerchandiseID,
			Title:           l.Title,
			Handle:          l.Handle,
			Price:           l.Price,
			Quantity:        l.Quantity,
			Image:           l.Image,
			SelectedOptions: l.SelectedOptions,
		})
	}
	return items
}
