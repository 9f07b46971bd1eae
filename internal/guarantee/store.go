// Package guarantee holds time-bounded price locks per product.
package guarantee

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

const (
	DefaultTTL  = domain.PriceGuaranteeTTL
	DefaultTick = time.Second
)

type Config struct {
	TTL time.Duration
	// Tick is how often expired entries are dropped; zero disables the loop.
	Tick time.Duration
	Now  func() time.Time
}

func DefaultConfig() Config {
	return Config{TTL: DefaultTTL, Tick: DefaultTick, Now: time.Now}
}

// Store is an in-memory map of product id to price guarantee. Expiry is always
// lockedAt + TTL.
type Store struct {
	mu         sync.RWMutex
	guarantees map[string]domain.PriceGuarantee

	ttl time.Duration
	now func() time.Time
	log *slog.Logger

	stopCleanup chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

func New(cfg Config, log *slog.Logger) *Store {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	s := &Store{
		guarantees:  make(map[string]domain.PriceGuarantee),
		ttl:         cfg.TTL,
		now:         cfg.Now,
		log:         log.With(slog.String("component", "guarantee")),
		stopCleanup: make(chan struct{}),
	}

	if cfg.Tick > 0 {
		s.wg.Add(1)
		go s.cleanupLoop(cfg.Tick)
	}
	return s
}

func (s *Store) cleanupLoop(tick time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := s.RemoveExpired(); n > 0 {
				s.log.Debug("expired price guarantees removed", slog.Int("count", n))
			}
		case <-s.stopCleanup:
			return
		}
	}
}

// Close stops the cleanup loop.
func (s *Store) Close() {
	s.stopOnce.Do(func() { close(s.stopCleanup) })
	s.wg.Wait()
}

// LockPrice overwrites any guarantee for productID with a fresh lock starting now.
func (s *Store) LockPrice(productID string, locked, original domain.Money) domain.PriceGuarantee {
	now := s.now()
	g := domain.PriceGuarantee{
		ProductID:     productID,
		LockedPrice:   locked,
		OriginalPrice: original,
		LockedAt:      now,
		ExpiresAt:     now.Add(s.ttl),
	}

	s.mu.Lock()
	s.guarantees[productID] = g
	s.mu.Unlock()
	return g
}

func (s *Store) Get(productID string) (domain.PriceGuarantee, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.guarantees[productID]
	return g, ok
}

func (s *Store) IsValid(productID string) bool {
	g, ok := s.Get(productID)
	return ok && g.IsValidAt(s.now())
}

// RemainingSeconds is 0 for unknown or expired products.
func (s *Store) RemainingSeconds(productID string) int {
	g, ok := s.Get(productID)
	if !ok {
		return 0
	}
	return g.RemainingSecondsAt(s.now())
}

// Extend restarts the window for productID, keeping the locked price.
// It reports whether a guarantee existed.
func (s *Store) Extend(productID string) bool {
	return s.refresh(productID)
}

// ResetTime restarts the window for productID, keeping the locked price.
func (s *Store) ResetTime(productID string) bool {
	return s.refresh(productID)
}

func (s *Store) refresh(productID string) bool {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.guarantees[productID]
	if !ok {
		return false
	}
	g.LockedAt = now
	g.ExpiresAt = now.Add(s.ttl)
	s.guarantees[productID] = g
	return true
}

// ResetTimeForAll restarts the window of every entry, prices unchanged.
func (s *Store) ResetTimeForAll() {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, g := range s.guarantees {
		g.LockedAt = now
		g.ExpiresAt = now.Add(s.ttl)
		s.guarantees[id] = g
	}
}

// ExpiredProductIDs lists entries past expiry that are still stored.
func (s *Store) ExpiredProductIDs() []string {
	now := s.now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id, g := range s.guarantees {
		if !g.IsValidAt(now) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// RemoveExpired deletes every entry with expiry <= now and returns how many went.
func (s *Store) RemoveExpired() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, g := range s.guarantees {
		if !g.IsValidAt(now) {
			delete(s.guarantees, id)
			removed++
		}
	}
	return removed
}

func (s *Store) Remove(productID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.guarantees, productID)
}

// ResetAll drops every entry.
func (s *Store) ResetAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.guarantees = make(map[string]domain.PriceGuarantee)
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.guarantees)
}

// All returns a copy of every entry, ordered by product id.
func (s *Store) All() []domain.PriceGuarantee {
	s.mu.RLock()
	out := make([]domain.PriceGuarantee, 0, len(s.guarantees))
	for _, g := range s.guarantees {
		out = append(out, g)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}
