// Package sweeper removes cart lines whose price guarantee has lapsed.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/notify"
)

type Cart interface {
	Items() []domain.LineItem
	RemoveItem(ctx context.Context, variantID string) error
}

type Guarantees interface {
	ExpiredProductIDs() []string
	IsValid(productID string) bool
	Len() int
	RemoveExpired() int
}

type Notifier interface {
	Notify(level notify.Level, message string)
}

type Config struct {
	Interval     time.Duration
	InitialDelay time.Duration
}

func DefaultConfig() Config {
	return Config{Interval: 3 * time.Second, InitialDelay: time.Second}
}

type Sweeper struct {
	cart       Cart
	guarantees Guarantees
	notifier   Notifier
	cfg        Config
	log        *slog.Logger

	running atomic.Bool
}

func New(cart Cart, guarantees Guarantees, notifier Notifier, cfg Config, log *slog.Logger) *Sweeper {
	return &Sweeper{
		cart:       cart,
		guarantees: guarantees,
		notifier:   notifier,
		cfg:        cfg,
		log:        log.With(slog.String("component", "sweeper")),
	}
}

// Run sweeps once immediately, once after the initial delay and then on every
// interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	s.Sweep(ctx)

	initial := time.NewTimer(s.cfg.InitialDelay)
	defer initial.Stop()
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-initial.C:
			s.Sweep(ctx)
		case <-ticker.C:
			s.Sweep(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Sweep runs one pass and returns the number of removed lines. A pass that
// starts while another is in flight does nothing.
func (s *Sweeper) Sweep(ctx context.Context) int {
	if !s.running.CompareAndSwap(false, true) {
		s.log.Debug("cleanup pass already running, skipping")
		return 0
	}
	defer s.running.Store(false)

	items := s.cart.Items()
	stale := s.staleItems(items)

	var removed []domain.LineItem
	for _, item := range stale {
		if err := s.cart.RemoveItem(ctx, item.VariantID); err != nil {
			s.log.Error("failed to remove expired line",
				slog.String("variant_id", item.VariantID),
				slog.Any("error", err))
			continue
		}
		removed = append(removed, item)
	}

	if len(removed) > 0 {
		s.notifier.Notify(notify.LevelWarning, removalMessage(removed))
		s.log.Info("removed lines with expired price guarantee", slog.Int("count", len(removed)))
	}

	s.guarantees.RemoveExpired()
	return len(removed)
}

func (s *Sweeper) staleItems(items []domain.LineItem) []domain.LineItem {
	if len(items) == 0 {
		return nil
	}

	expiredIDs := s.guarantees.ExpiredProductIDs()
	if len(expiredIDs) == 0 && s.guarantees.Len() == 0 {
		s.log.Warn("no price guarantees held for a non-empty cart, evicting every line",
			slog.Int("lines", len(items)))
		return items
	}

	expired := make(map[string]struct{}, len(expiredIDs))
	for _, id := range expiredIDs {
		expired[id] = struct{}{}
	}

	var stale []domain.LineItem
	for _, item := range items {
		// variant ids are accepted as guarantee keys for older locks
		_, productExpired := expired[item.ProductID]
		_, variantExpired := expired[item.VariantID]
		guarded := s.guarantees.IsValid(item.ProductID) || s.guarantees.IsValid(item.VariantID)
		if productExpired || variantExpired || !guarded {
			stale = append(stale, item)
		}
	}
	return stale
}

func removalMessage(removed []domain.LineItem) string {
	if len(removed) == 1 {
		return fmt.Sprintf("The price guarantee for %q expired, so it was removed from your cart.", removed[0].Title)
	}
	return fmt.Sprintf("Price guarantees expired for %d items, so they were removed from your cart.", len(removed))
}
