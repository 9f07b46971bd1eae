package domain

import "time"

// PriceGuaranteeTTL is how long a locked price is honored.
const PriceGuaranteeTTL = 15 * time.Minute

// PriceGuarantee is a time-bounded lock on the price quoted for a product.
type PriceGuarantee struct {
	ProductID     string    `json:"productId"`
	LockedPrice   Money     `json:"lockedPrice"`
	OriginalPrice Money     `json:"originalPrice"`
	LockedAt      time.Time `json:"lockedAt"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

// IsValidAt reports whether the guarantee still holds at t.
func (g PriceGuarantee) IsValidAt(t time.Time) bool {
	return t.Before(g.ExpiresAt)
}

// RemainingSecondsAt returns the whole seconds left at t, never negative.
func (g PriceGuarantee) RemainingSecondsAt(t time.Time) int {
	left := g.ExpiresAt.Sub(t)
	if left <= 0 {
		return 0
	}
	return int(left / time.Second)
}
