// Package storage persists each session's cart as three independent entries:
// the line items, the remote cart id and the checkout URL.
package storage

import (
	"context"
	"errors"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

var ErrNotFound = errors.New("storage entry not found")

type Storage interface {
	LoadItems(ctx context.Context, sessionID string) ([]domain.LineItem, error)
	SaveItems(ctx context.Context, sessionID string, items []domain.LineItem) error
	LoadCartID(ctx context.Context, sessionID string) (string, error)
	SaveCartID(ctx context.Context, sessionID string, cartID string) error
	LoadCheckoutURL(ctx context.Context, sessionID string) (string, error)
	SaveCheckoutURL(ctx context.Context, sessionID string, url string) error
	Clear(ctx context.Context, sessionID string) error
}
