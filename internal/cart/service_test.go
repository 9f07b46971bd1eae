package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fjod/go_cart/storefront/internal/cartsync"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/storage"
	"github.com/fjod/go_cart/storefront/pkg/logger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRemote struct {
	m       sync.Mutex
	creates [][]domain.CartLineInput
	replace [][]domain.CartLineInput
	err     error
	cart    *domain.RemoteCart
	// calls wait on block while it is non-nil and open
	block chan struct{}
	// gone is a cart id the remote no longer knows
	gone string
}

func (r *mockRemote) wait() {
	r.m.Lock()
	block := r.block
	r.m.Unlock()
	if block != nil {
		<-block
	}
}

func (r *mockRemote) CreateCart(_ context.Context, lines []domain.CartLineInput) (*domain.RemoteCart, error) {
	r.wait()
	r.m.Lock()
	defer r.m.Unlock()
	r.creates = append(r.creates, lines)
	if r.err != nil {
		return nil, r.err
	}
	return &domain.RemoteCart{ID: "gid://shopify/Cart/1", CheckoutURL: "https://shop.example/cart/c/1"}, nil
}

func (r *mockRemote) ReplaceCartLines(_ context.Context, cartID string, lines []domain.CartLineInput) (*domain.RemoteCart, error) {
	r.wait()
	r.m.Lock()
	defer r.m.Unlock()
	r.replace = append(r.replace, lines)
	if r.err != nil {
		return nil, r.err
	}
	if cartID == r.gone {
		return nil, fmt.Errorf("%w: %s", domain.ErrCartNotFound, cartID)
	}
	return &domain.RemoteCart{ID: cartID, CheckoutURL: "https://shop.example/cart/c/1"}, nil
}

func (r *mockRemote) GetCart(_ context.Context, cartID string) (*domain.RemoteCart, error) {
	r.wait()
	r.m.Lock()
	defer r.m.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	if cartID == r.gone {
		return nil, fmt.Errorf("%w: %s", domain.ErrCartNotFound, cartID)
	}
	return r.cart, nil
}

func (r *mockRemote) Creates() [][]domain.CartLineInput {
	r.m.Lock()
	defer r.m.Unlock()
	return append([][]domain.CartLineInput(nil), r.creates...)
}

func (r *mockRemote) Replaces() [][]domain.CartLineInput {
	r.m.Lock()
	defer r.m.Unlock()
	return append([][]domain.CartLineInput(nil), r.replace...)
}

func (r *mockRemote) release() {
	r.m.Lock()
	defer r.m.Unlock()
	if r.block != nil {
		close(r.block)
		r.block = nil
	}
}

func (r *mockRemote) setErr(err error) {
	r.m.Lock()
	defer r.m.Unlock()
	r.err = err
}

type failingStorage struct {
	*storage.MemoryStorage
}

func (failingStorage) SaveItems(context.Context, string, []domain.LineItem) error {
	return errors.New("disk full")
}

func testCartConfig() Config {
	return Config{
		DefaultCurrency: "JPY",
		Sync: cartsync.Config{
			Debounce:       10 * time.Millisecond,
			MaxRetries:     1,
			RetryBaseDelay: time.Millisecond,
		},
	}
}

func setupCart(t *testing.T, store Storage, remote *mockRemote) *Cart {
	c := New("session-1", store, remote, testCartConfig(), logger.Discard())
	require.NoError(t, c.Load(context.Background()))
	t.Cleanup(c.Close)
	return c
}

func mug() domain.Product {
	return domain.Product{
		ID:     "P1",
		Title:  "Ceramic Mug",
		Handle: "ceramic-mug",
		Images: []string{"https://cdn.example/mug.png"},
		Variants: []domain.Variant{
			{ID: "V1", Title: "White", Price: domain.Money{Amount: decimal.NewFromInt(1000), CurrencyCode: "JPY"}, AvailableForSale: true},
			{ID: "V2", Title: "Black", Price: domain.Money{Amount: decimal.NewFromInt(1200), CurrencyCode: "JPY"}, AvailableForSale: true},
		},
	}
}

func TestCart_AddItemUnknownVariant(t *testing.T) {
	c := setupCart(t, storage.NewMemoryStorage(), &mockRemote{})

	err := c.AddItem(context.Background(), mug(), "V404", 1)

	require.ErrorIs(t, err, domain.ErrVariantNotFound)
	s := c.State()
	assert.Empty(t, s.Items)
	assert.Contains(t, s.Error, "V404")
}

func TestCart_AddItemInvalidQuantity(t *testing.T) {
	c := setupCart(t, storage.NewMemoryStorage(), &mockRemote{})

	err := c.AddItem(context.Background(), mug(), "V1", 0)

	require.ErrorIs(t, err, domain.ErrInvalidQuantity)
	assert.Empty(t, c.Items())
}

func TestCart_AddItemPersistsAndSyncs(t *testing.T) {
	store := storage.NewMemoryStorage()
	remote := &mockRemote{}
	c := setupCart(t, store, remote)
	ctx := context.Background()

	require.NoError(t, c.AddItem(ctx, mug(), "V1", 2))
	require.NoError(t, c.AddItem(ctx, mug(), "V1", 1))
	require.NoError(t, c.AddItem(ctx, mug(), "V2", 1))

	s := c.State()
	require.Len(t, s.Items, 2)
	assert.Equal(t, 3, s.Items[0].Quantity)
	assert.Equal(t, 4, s.TotalQuantity)
	assert.True(t, decimal.NewFromInt(4200).Equal(s.TotalPrice))
	assert.Equal(t, "https://cdn.example/mug.png", s.Items[0].Image)

	saved, err := store.LoadItems(ctx, "session-1")
	require.NoError(t, err)
	assert.Len(t, saved, 2)

	require.Eventually(t, func() bool { return c.State().RemoteCartID != "" }, time.Second, 5*time.Millisecond)
	creates := remote.Creates()
	require.Len(t, creates, 1)
	assert.Equal(t, []domain.CartLineInput{{MerchandiseID: "V1", Quantity: 3}, {MerchandiseID: "V2", Quantity: 1}}, creates[0])

	id, err := store.LoadCartID(ctx, "session-1")
	require.NoError(t, err)
	assert.Equal(t, "gid://shopify/Cart/1", id)
	url, err := store.LoadCheckoutURL(ctx, "session-1")
	require.NoError(t, err)
	assert.Equal(t, "https://shop.example/cart/c/1", url)
	assert.False(t, c.State().IsLoading)
}

func TestCart_RemoveAndUpdateMissingLine(t *testing.T) {
	c := setupCart(t, storage.NewMemoryStorage(), &mockRemote{})
	ctx := context.Background()

	assert.ErrorIs(t, c.RemoveItem(ctx, "V1"), domain.ErrItemNotFound)
	assert.ErrorIs(t, c.UpdateQuantity(ctx, "V1", 3), domain.ErrItemNotFound)
}

func TestCart_UpdateQuantity(t *testing.T) {
	c := setupCart(t, storage.NewMemoryStorage(), &mockRemote{})
	ctx := context.Background()
	require.NoError(t, c.AddItem(ctx, mug(), "V1", 1))

	require.NoError(t, c.UpdateQuantity(ctx, "V1", 5))
	assert.Equal(t, 5, c.State().TotalQuantity)

	require.NoError(t, c.UpdateQuantity(ctx, "V1", 0))
	assert.Empty(t, c.Items())
}

func TestCart_LoadRehydrates(t *testing.T) {
	store := storage.NewMemoryStorage()
	ctx := context.Background()
	require.NoError(t, store.SaveItems(ctx, "session-1", []domain.LineItem{lineItem("P1", "V1", "500", 2)}))
	require.NoError(t, store.SaveCartID(ctx, "session-1", "gid://shopify/Cart/9"))

	c := setupCart(t, store, &mockRemote{})

	s := c.State()
	require.Len(t, s.Items, 1)
	assert.Equal(t, 2, s.TotalQuantity)
	assert.True(t, decimal.NewFromInt(1000).Equal(s.TotalPrice))
	assert.Equal(t, "gid://shopify/Cart/9", s.RemoteCartID)
	assert.Empty(t, s.CheckoutURL)
}

func TestCart_ClearCart(t *testing.T) {
	store := storage.NewMemoryStorage()
	c := setupCart(t, store, &mockRemote{})
	ctx := context.Background()
	require.NoError(t, c.AddItem(ctx, mug(), "V1", 1))
	require.NoError(t, c.SetCurrency(ctx, "USD"))

	require.NoError(t, c.ClearCart(ctx))

	s := c.State()
	assert.Empty(t, s.Items)
	assert.Equal(t, "USD", s.CurrencyCode)
	_, err := store.LoadItems(ctx, "session-1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCart_SetCurrencyUnsupported(t *testing.T) {
	c := setupCart(t, storage.NewMemoryStorage(), &mockRemote{})

	err := c.SetCurrency(context.Background(), "XYZ")

	assert.ErrorIs(t, err, domain.ErrUnsupportedCurrency)
	assert.Equal(t, "JPY", c.State().CurrencyCode)
}

func TestCart_CheckoutEmptyCart(t *testing.T) {
	remote := &mockRemote{}
	c := setupCart(t, storage.NewMemoryStorage(), remote)

	_, err := c.CreateRemoteCartForCheckout(context.Background())

	assert.ErrorIs(t, err, domain.ErrEmptyCart)
	assert.Empty(t, remote.Creates())
}

func TestCart_CheckoutReturnsURL(t *testing.T) {
	remote := &mockRemote{}
	c := setupCart(t, storage.NewMemoryStorage(), remote)
	ctx := context.Background()
	require.NoError(t, c.AddItem(ctx, mug(), "V1", 1))

	url, err := c.CreateRemoteCartForCheckout(ctx)

	require.NoError(t, err)
	assert.Equal(t, "https://shop.example/cart/c/1", url)
	assert.Equal(t, "gid://shopify/Cart/1", c.State().RemoteCartID)
}

func TestCart_CheckoutSurfacesRemoteError(t *testing.T) {
	remote := &mockRemote{}
	remote.setErr(&domain.UserErrors{Action: "cartCreate", Errors: []domain.UserError{{Message: "sold out"}}})
	c := setupCart(t, storage.NewMemoryStorage(), remote)
	ctx := context.Background()
	require.NoError(t, c.AddItem(ctx, mug(), "V1", 1))

	_, err := c.CreateRemoteCartForCheckout(ctx)

	require.ErrorIs(t, err, domain.ErrRemoteRejected)
	s := c.State()
	assert.Contains(t, s.Error, "sold out")
	assert.Len(t, s.Items, 1, "local lines survive a rejected sync")
}

func TestCart_StorageFailureIsNotReturned(t *testing.T) {
	c := setupCart(t, failingStorage{storage.NewMemoryStorage()}, &mockRemote{})

	err := c.AddItem(context.Background(), mug(), "V1", 1)

	require.NoError(t, err)
	s := c.State()
	assert.Len(t, s.Items, 1)
	assert.Contains(t, s.Error, "disk full")
}

func TestCart_Refresh(t *testing.T) {
	store := storage.NewMemoryStorage()
	ctx := context.Background()
	require.NoError(t, store.SaveCartID(ctx, "session-1", "gid://shopify/Cart/9"))
	remote := &mockRemote{cart: &domain.RemoteCart{
		ID:          "gid://shopify/Cart/9",
		CheckoutURL: "https://shop.example/cart/c/9",
		Lines: []domain.RemoteLine{
			{ID: "L1", MerchandiseID: "V7", ProductID: "P7", Title: "Poster", Quantity: 3,
				Price: domain.Money{Amount: decimal.NewFromInt(300), CurrencyCode: "JPY"}},
		},
	}}
	c := setupCart(t, store, remote)

	require.NoError(t, c.Refresh(ctx))

	s := c.State()
	require.Len(t, s.Items, 1)
	assert.Equal(t, "V7", s.Items[0].VariantID)
	assert.Equal(t, 3, s.TotalQuantity)
	assert.Equal(t, "https://shop.example/cart/c/9", s.CheckoutURL)
	saved, err := store.LoadItems(ctx, "session-1")
	require.NoError(t, err)
	assert.Len(t, saved, 1)
}

func TestCart_RefreshWithoutRemoteIsNoop(t *testing.T) {
	c := setupCart(t, storage.NewMemoryStorage(), &mockRemote{err: errors.New("unreachable")})

	assert.NoError(t, c.Refresh(context.Background()))
}

func TestCart_DisplayTotal(t *testing.T) {
	c := setupCart(t, storage.NewMemoryStorage(), &mockRemote{})
	ctx := context.Background()
	require.NoError(t, c.AddItem(ctx, mug(), "V1", 3))
	require.NoError(t, c.SetCurrency(ctx, "USD"))

	total, err := c.DisplayTotal()

	require.NoError(t, err)
	assert.Equal(t, "USD", total.CurrencyCode)
	assert.True(t, decimal.NewFromInt(20).Equal(total.Amount), "got %s", total.Amount)
}

func TestCart_SaveDeferredWhileSyncInFlight(t *testing.T) {
	store := storage.NewMemoryStorage()
	remote := &mockRemote{block: make(chan struct{})}
	c := setupCart(t, store, remote)
	t.Cleanup(remote.release)
	ctx := context.Background()

	require.NoError(t, c.AddItem(ctx, mug(), "V1", 1))
	require.Eventually(t, func() bool { return c.State().IsLoading }, time.Second, 2*time.Millisecond)

	require.NoError(t, c.AddItem(ctx, mug(), "V2", 1))
	assert.Len(t, c.Items(), 2)
	saved, err := store.LoadItems(ctx, "session-1")
	require.NoError(t, err)
	assert.Len(t, saved, 1, "no save while the sync is in flight")

	remote.release()

	require.Eventually(t, func() bool {
		saved, err := store.LoadItems(ctx, "session-1")
		return err == nil && len(saved) == 2
	}, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return !c.State().IsLoading }, time.Second, 2*time.Millisecond)
	id, err := store.LoadCartID(ctx, "session-1")
	require.NoError(t, err)
	assert.Equal(t, "gid://shopify/Cart/1", id)
}

func TestCart_SaveDeferredWhileSyncInFlightThenFails(t *testing.T) {
	store := storage.NewMemoryStorage()
	remote := &mockRemote{block: make(chan struct{})}
	remote.setErr(errors.New("shopify request failed: 503 Service Unavailable"))
	c := setupCart(t, store, remote)
	t.Cleanup(remote.release)
	ctx := context.Background()

	require.NoError(t, c.AddItem(ctx, mug(), "V1", 1))
	require.Eventually(t, func() bool { return c.State().IsLoading }, time.Second, 2*time.Millisecond)

	require.NoError(t, c.UpdateQuantity(ctx, "V1", 4))
	saved, err := store.LoadItems(ctx, "session-1")
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, 1, saved[0].Quantity)

	remote.release()

	require.Eventually(t, func() bool {
		saved, err := store.LoadItems(ctx, "session-1")
		return err == nil && len(saved) == 1 && saved[0].Quantity == 4
	}, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return !c.State().IsLoading }, time.Second, 2*time.Millisecond)
	assert.Contains(t, c.State().Error, "503")
}

func TestCart_CheckoutWithExpiredRemoteCart(t *testing.T) {
	store := storage.NewMemoryStorage()
	ctx := context.Background()
	require.NoError(t, store.SaveItems(ctx, "session-1", []domain.LineItem{lineItem("P1", "V1", "1000", 1)}))
	require.NoError(t, store.SaveCartID(ctx, "session-1", "gid://shopify/Cart/expired"))
	remote := &mockRemote{gone: "gid://shopify/Cart/expired"}
	c := setupCart(t, store, remote)

	url, err := c.CreateRemoteCartForCheckout(ctx)

	require.NoError(t, err)
	assert.Equal(t, "https://shop.example/cart/c/1", url)
	assert.Equal(t, "gid://shopify/Cart/1", c.State().RemoteCartID)
	require.Len(t, remote.Creates(), 1)
	id, err := store.LoadCartID(ctx, "session-1")
	require.NoError(t, err)
	assert.Equal(t, "gid://shopify/Cart/1", id)

	// later checkouts reuse the new cart
	_, err = c.CreateRemoteCartForCheckout(ctx)
	require.NoError(t, err)
	assert.Len(t, remote.Creates(), 1)
}

func TestCart_RefreshWithExpiredRemoteCart(t *testing.T) {
	store := storage.NewMemoryStorage()
	ctx := context.Background()
	require.NoError(t, store.SaveItems(ctx, "session-1", []domain.LineItem{lineItem("P1", "V1", "1000", 1)}))
	require.NoError(t, store.SaveCartID(ctx, "session-1", "gid://shopify/Cart/expired"))
	remote := &mockRemote{gone: "gid://shopify/Cart/expired"}
	c := setupCart(t, store, remote)

	require.NoError(t, c.Refresh(ctx))

	assert.Len(t, c.Items(), 1, "local lines are kept")
	require.Eventually(t, func() bool { return c.State().RemoteCartID == "gid://shopify/Cart/1" }, time.Second, 5*time.Millisecond)
	assert.Len(t, remote.Creates(), 1)
}

func TestCart_CheckoutEmptiedDuringInFlightSync(t *testing.T) {
	store := storage.NewMemoryStorage()
	ctx := context.Background()
	require.NoError(t, store.SaveItems(ctx, "session-1", []domain.LineItem{lineItem("P1", "V1", "1000", 1)}))
	require.NoError(t, store.SaveCartID(ctx, "session-1", "gid://shopify/Cart/9"))
	remote := &mockRemote{block: make(chan struct{})}
	c := setupCart(t, store, remote)
	t.Cleanup(remote.release)

	require.NoError(t, c.UpdateQuantity(ctx, "V1", 2))
	require.Eventually(t, func() bool { return c.State().IsLoading }, time.Second, 2*time.Millisecond)

	type result struct {
		url string
		err error
	}
	done := make(chan result, 1)
	go func() {
		url, err := c.CreateRemoteCartForCheckout(ctx)
		done <- result{url, err}
	}()
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, c.ClearCart(ctx))
	remote.release()

	select {
	case res := <-done:
		assert.ErrorIs(t, res.err, domain.ErrEmptyCart)
		assert.Empty(t, res.url)
	case <-time.After(time.Second):
		t.Fatal("checkout did not return")
	}
	replaces := remote.Replaces()
	require.GreaterOrEqual(t, len(replaces), 2)
	assert.Empty(t, replaces[1], "remote cart was emptied")
}

func TestCart_CloseFlushesPendingSync(t *testing.T) {
	remote := &mockRemote{}
	cfg := testCartConfig()
	cfg.Sync.Debounce = time.Hour
	c := New("session-1", storage.NewMemoryStorage(), remote, cfg, logger.Discard())
	require.NoError(t, c.Load(context.Background()))
	require.NoError(t, c.AddItem(context.Background(), mug(), "V1", 1))

	c.Close()

	require.Len(t, remote.Creates(), 1)
	assert.Equal(t, "gid://shopify/Cart/1", c.State().RemoteCartID)
}

func TestCart_MutationsAfterCloseAreRejected(t *testing.T) {
	c := setupCart(t, storage.NewMemoryStorage(), &mockRemote{})
	ctx := context.Background()
	require.NoError(t, c.AddItem(ctx, mug(), "V1", 1))
	c.Close()

	assert.ErrorIs(t, c.AddItem(ctx, mug(), "V2", 1), ErrClosed)
	assert.ErrorIs(t, c.UpdateQuantity(ctx, "V1", 3), ErrClosed)
	assert.ErrorIs(t, c.RemoveItem(ctx, "V1"), ErrClosed)
	assert.ErrorIs(t, c.ClearCart(ctx), ErrClosed)
	assert.ErrorIs(t, c.SetCurrency(ctx, "USD"), ErrClosed)
	_, err := c.CreateRemoteCartForCheckout(ctx)
	assert.ErrorIs(t, err, ErrClosed)
	assert.Len(t, c.Items(), 1)
}
