package guarantee

import (
	"sync"
	"testing"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/pkg/logger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func setupStore(t *testing.T) (*Store, *fakeClock) {
	clock := newFakeClock()
	s := New(Config{TTL: 15 * time.Minute, Now: clock.Now}, logger.Discard())
	t.Cleanup(s.Close)
	return s, clock
}

func yen(amount int64) domain.Money {
	return domain.Money{Amount: decimal.NewFromInt(amount), CurrencyCode: "JPY"}
}

func usd(amount string) domain.Money {
	return domain.Money{Amount: decimal.RequireFromString(amount), CurrencyCode: "USD"}
}

func TestLockPrice_ValidityBoundary(t *testing.T) {
	s, clock := setupStore(t)

	g := s.LockPrice("P1", yen(1000), usd("6.67"))
	assert.Equal(t, g.LockedAt.Add(15*time.Minute), g.ExpiresAt)

	clock.Advance(899 * time.Second)
	assert.True(t, s.IsValid("P1"))
	assert.Equal(t, 1, s.RemainingSeconds("P1"))

	clock.Advance(time.Second)
	assert.False(t, s.IsValid("P1"))
	assert.Equal(t, 0, s.RemainingSeconds("P1"))
	assert.Equal(t, []string{"P1"}, s.ExpiredProductIDs())
}

func TestLockPrice_Overwrites(t *testing.T) {
	s, clock := setupStore(t)

	s.LockPrice("P1", yen(1000), usd("6.67"))
	clock.Advance(10 * time.Minute)
	s.LockPrice("P1", yen(1200), usd("8.00"))

	g, ok := s.Get("P1")
	require.True(t, ok)
	assert.True(t, decimal.NewFromInt(1200).Equal(g.LockedPrice.Amount))
	assert.Equal(t, 900, s.RemainingSeconds("P1"))
	assert.Equal(t, 1, s.Len())
}

func TestUnknownProduct(t *testing.T) {
	s, _ := setupStore(t)

	assert.False(t, s.IsValid("nope"))
	assert.Equal(t, 0, s.RemainingSeconds("nope"))
	assert.False(t, s.Extend("nope"))
	assert.False(t, s.ResetTime("nope"))
	assert.Equal(t, 0, s.Len())
}

func TestExtend_KeepsPriceAndRestartsWindow(t *testing.T) {
	s, clock := setupStore(t)
	s.LockPrice("P1", yen(1000), usd("6.67"))

	clock.Advance(14 * time.Minute)
	before := s.RemainingSeconds("P1")
	require.True(t, s.Extend("P1"))
	after := s.RemainingSeconds("P1")

	assert.GreaterOrEqual(t, after, before)
	assert.Equal(t, 900, after)
	g, _ := s.Get("P1")
	assert.True(t, decimal.NewFromInt(1000).Equal(g.LockedPrice.Amount))
	assert.Equal(t, g.LockedAt.Add(15*time.Minute), g.ExpiresAt)
}

func TestResetTimeForAll(t *testing.T) {
	s, clock := setupStore(t)
	s.LockPrice("P1", yen(1000), usd("6.67"))
	clock.Advance(5 * time.Minute)
	s.LockPrice("P2", yen(2000), usd("13.33"))
	clock.Advance(11 * time.Minute)
	require.Equal(t, []string{"P1"}, s.ExpiredProductIDs())

	s.ResetTimeForAll()

	assert.Empty(t, s.ExpiredProductIDs())
	for _, g := range s.All() {
		assert.Equal(t, clock.Now(), g.LockedAt)
		assert.Equal(t, 900, s.RemainingSeconds(g.ProductID))
	}
}

func TestRemoveExpired(t *testing.T) {
	s, clock := setupStore(t)
	s.LockPrice("P1", yen(1000), usd("6.67"))
	clock.Advance(10 * time.Minute)
	s.LockPrice("P2", yen(2000), usd("13.33"))
	clock.Advance(5 * time.Minute)

	assert.Equal(t, 1, s.RemoveExpired())
	_, ok := s.Get("P1")
	assert.False(t, ok)
	assert.True(t, s.IsValid("P2"))
	assert.Equal(t, 0, s.RemoveExpired())
}

func TestResetAllAndRemove(t *testing.T) {
	s, _ := setupStore(t)
	s.LockPrice("P1", yen(1000), usd("6.67"))
	s.LockPrice("P2", yen(2000), usd("13.33"))
	s.LockPrice("P3", yen(3000), usd("20.00"))

	s.Remove("P2")
	assert.Equal(t, 2, s.Len())

	s.ResetAll()
	assert.Equal(t, 0, s.Len())
	assert.Empty(t, s.All())
	assert.Empty(t, s.ExpiredProductIDs())
}

func TestAll_SortedCopies(t *testing.T) {
	s, _ := setupStore(t)
	s.LockPrice("P2", yen(2000), usd("13.33"))
	s.LockPrice("P1", yen(1000), usd("6.67"))

	all := s.All()
	require.Len(t, all, 2)
	assert.Equal(t, "P1", all[0].ProductID)
	assert.Equal(t, "P2", all[1].ProductID)
}

func TestCleanupLoopDropsExpired(t *testing.T) {
	clock := newFakeClock()
	s := New(Config{TTL: time.Minute, Tick: 5 * time.Millisecond, Now: clock.Now}, logger.Discard())
	defer s.Close()

	s.LockPrice("P1", yen(1000), usd("6.67"))
	s.LockPrice("P2", yen(2000), usd("13.33"))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 2, s.Len())

	clock.Advance(time.Minute)
	require.Eventually(t, func() bool { return s.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestClose_Idempotent(t *testing.T) {
	s := New(Config{Tick: time.Millisecond}, logger.Discard())
	s.Close()
	s.Close()
}
