// Package session hands out one cart and price guarantee store per shopper
// session and reaps sessions that have gone idle.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fjod/go_cart/storefront/internal/cart"
	"github.com/fjod/go_cart/storefront/internal/cartsync"
	"github.com/fjod/go_cart/storefront/internal/currency"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/guarantee"
	"github.com/fjod/go_cart/storefront/internal/notify"
	"github.com/fjod/go_cart/storefront/internal/sweeper"
	"golang.org/x/sync/singleflight"
)

type Config struct {
	Cart      cart.Config
	Guarantee guarantee.Config
	Sweeper   sweeper.Config
	// IdleTTL closes sessions not touched for this long; zero keeps them forever.
	IdleTTL       time.Duration
	InboxCapacity int
}

// Session is the explicit handle to one shopper's cart state.
type Session struct {
	ID         string
	Cart       *cart.Cart
	Guarantees *guarantee.Store
	Inbox      *notify.Inbox

	log      *slog.Logger
	lastSeen atomic.Int64
	cancel   context.CancelFunc
	done     chan struct{}
}

// AddItem adds the variant to the cart, first locking the product's price in
// the cart's display currency when no valid guarantee exists.
func (s *Session) AddItem(ctx context.Context, product domain.Product, variantID string, quantity int) error {
	if variant, ok := product.Variant(variantID); ok && quantity > 0 && !s.Guarantees.IsValid(product.ID) {
		display := s.Cart.State().CurrencyCode
		locked, err := currency.ConvertMoney(variant.Price, display)
		if err != nil {
			s.log.Warn("price lock kept in original currency",
				slog.String("product_id", product.ID),
				slog.String("display_currency", display),
				slog.Any("error", err))
			locked = variant.Price
		}
		s.Guarantees.LockPrice(product.ID, locked, variant.Price)
	}
	return s.Cart.AddItem(ctx, product, variantID, quantity)
}

// Clear empties the cart and drops every price guarantee.
func (s *Session) Clear(ctx context.Context) error {
	s.Guarantees.ResetAll()
	return s.Cart.ClearCart(ctx)
}

func (s *Session) touch(now time.Time) {
	s.lastSeen.Store(now.UnixNano())
}

func (s *Session) idleSince(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, s.lastSeen.Load()))
}

func (s *Session) close() {
	s.cancel()
	<-s.done
	s.Cart.Close()
	s.Guarantees.Close()
}

type Manager struct {
	store cart.Storage
	api   cartsync.RemoteCartAPI
	cfg   Config
	log   *slog.Logger
	now   func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
	sfg      singleflight.Group

	stopReaper chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

func NewManager(store cart.Storage, api cartsync.RemoteCartAPI, cfg Config, log *slog.Logger) *Manager {
	m := &Manager{
		store:      store,
		api:        api,
		cfg:        cfg,
		log:        log.With(slog.String("component", "session")),
		now:        time.Now,
		sessions:   make(map[string]*Session),
		stopReaper: make(chan struct{}),
	}

	if cfg.IdleTTL > 0 {
		m.wg.Add(1)
		go m.reapLoop(reapInterval(cfg.IdleTTL))
	}
	return m
}

func reapInterval(idle time.Duration) time.Duration {
	interval := idle / 4
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	return interval
}

// Get returns the session, creating and rehydrating it on first use.
// Concurrent first calls for one id share a single rehydration.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	if s := m.lookup(id); s != nil {
		return s, nil
	}

	v, err, _ := m.sfg.Do(id, func() (interface{}, error) {
		if s := m.lookup(id); s != nil {
			return s, nil
		}
		s, err := m.open(ctx, id)
		if err != nil {
			return nil, err
		}

		m.mu.Lock()
		m.sessions[id] = s
		m.mu.Unlock()
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

// Do runs fn against the session. When the reaper closed the session between
// Get and fn, the session is reopened from storage and fn runs once more.
func (m *Manager) Do(ctx context.Context, id string, fn func(*Session) error) (*Session, error) {
	for attempt := 0; ; attempt++ {
		s, err := m.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		err = fn(s)
		if errors.Is(err, cart.ErrClosed) && attempt == 0 {
			m.log.Debug("session closed under request, reopening", slog.String("session_id", id))
			continue
		}
		return s, err
	}
}

// Clear empties the cart and guarantees of a session, loading it if needed.
func (m *Manager) Clear(ctx context.Context, id string) error {
	_, err := m.Do(ctx, id, func(s *Session) error {
		return s.Clear(ctx)
	})
	return err
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close stops the reaper and every open session.
func (m *Manager) Close() {
	m.stopOnce.Do(func() { close(m.stopReaper) })
	m.wg.Wait()

	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	// a close may flush an unsynced cart to the remote
	var wg sync.WaitGroup
	for _, s := range sessions {
		s := s
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.close()
		}()
	}
	wg.Wait()
}

func (m *Manager) lookup(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil
	}
	s.touch(m.now())
	return s
}

func (m *Manager) open(ctx context.Context, id string) (*Session, error) {
	log := m.log.With(slog.String("session_id", id))

	c := cart.New(id, m.store, m.api, m.cfg.Cart, m.log)
	if err := c.Load(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}

	store := guarantee.New(m.cfg.Guarantee, log)
	inbox := notify.NewInbox(m.cfg.InboxCapacity)
	sw := sweeper.New(c, store, inbox, m.cfg.Sweeper, log)

	runCtx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:         id,
		Cart:       c,
		Guarantees: store,
		Inbox:      inbox,
		log:        log,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	s.touch(m.now())

	go func() {
		defer close(s.done)
		sw.Run(runCtx)
	}()

	log.Info("session opened", slog.Int("lines", len(c.Items())))
	return s, nil
}

func (m *Manager) reapLoop(interval time.Duration) {
	defer m.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.reapIdle()
		case <-m.stopReaper:
			return
		}
	}
}

func (m *Manager) reapIdle() {
	now := m.now()
	var idle []*Session

	m.mu.Lock()
	for id, s := range m.sessions {
		if s.idleSince(now) >= m.cfg.IdleTTL {
			idle = append(idle, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range idle {
		s.close()
		m.log.Info("idle session closed", slog.String("session_id", s.ID))
	}
}
