package domain

// Product is the catalog entry a shopper adds to the cart.
type Product struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Handle   string    `json:"handle"`
	Images   []string  `json:"images,omitempty"`
	Variants []Variant `json:"variants"`
}

// Variant is a purchasable configuration of a product.
type Variant struct {
	ID               string           `json:"id"`
	Title            string           `json:"title"`
	Price            Money            `json:"price"`
	Image            string           `json:"image,omitempty"`
	SelectedOptions  []SelectedOption `json:"selectedOptions,omitempty"`
	AvailableForSale bool             `json:"availableForSale"`
}

// Variant returns the variant with the given id.
func (p Product) Variant(variantID string) (Variant, bool) {
	for _, v := range p.Variants {
		if v.ID == variantID {
			return v, true
		}
	}
	return Variant{}, false
}

// NewLineItem snapshots the product and variant into a cart line.
func NewLineItem(p Product, v Variant, quantity int) LineItem {
	image := v.Image
	if image == "" && len(p.Images) > 0 {
		image = p.Images[0]
	}
	options := make([]SelectedOption, len(v.SelectedOptions))
	copy(options, v.SelectedOptions)
	return LineItem{
		ProductID:       p.ID,
		VariantID:       v.ID,
		Title:           p.Title,
		Handle:          p.Handle,
		Price:           v.Price,
		Quantity:        quantity,
		Image:           image,
		SelectedOptions: options,
	}
}
