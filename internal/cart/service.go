package cart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fjod/go_cart/storefront/internal/cartsync"
	"github.com/fjod/go_cart/storefront/internal/currency"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/storage"
)

const (
	persistTimeout = 5 * time.Second
	// bounds the final push of unsynced changes on Close
	closeFlushTimeout = 10 * time.Second
)

// ErrClosed is returned by mutations on a cart whose session was closed. The
// caller should reopen the session and retry.
var ErrClosed = errors.New("cart is closed")

// Storage persists the three independently readable cart entries of a session.
type Storage interface {
	LoadItems(ctx context.Context, sessionID string) ([]domain.LineItem, error)
	SaveItems(ctx context.Context, sessionID string, items []domain.LineItem) error
	LoadCartID(ctx context.Context, sessionID string) (string, error)
	SaveCartID(ctx context.Context, sessionID string, cartID string) error
	LoadCheckoutURL(ctx context.Context, sessionID string) (string, error)
	SaveCheckoutURL(ctx context.Context, sessionID string, url string) error
	Clear(ctx context.Context, sessionID string) error
}

type Config struct {
	DefaultCurrency string
	Sync            cartsync.Config
}

// Cart owns one session's cart state. All transitions go through Reduce under mu.
type Cart struct {
	sessionID string
	store     Storage
	api       cartsync.RemoteCartAPI
	sync      *cartsync.Synchronizer
	log       *slog.Logger

	mu     sync.Mutex
	state  State
	closed bool
}

func New(sessionID string, store Storage, api cartsync.RemoteCartAPI, cfg Config, log *slog.Logger) *Cart {
	log = log.With(slog.String("session_id", sessionID))
	c := &Cart{
		sessionID: sessionID,
		store:     store,
		api:       api,
		log:       log.With(slog.String("component", "cart")),
		state:     NewState(cfg.DefaultCurrency),
	}
	c.sync = cartsync.New(api, c, cfg.Sync, log)
	return c
}

// Load rehydrates the cart from storage. A missing entry means there is no prior
// cart for that entry.
func (c *Cart) Load(ctx context.Context) error {
	items, err := c.store.LoadItems(ctx, c.sessionID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("failed to load cart items: %w", err)
	}
	cartID, err := c.store.LoadCartID(ctx, c.sessionID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("failed to load cart id: %w", err)
	}
	checkoutURL, err := c.store.LoadCheckoutURL(ctx, c.sessionID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("failed to load checkout url: %w", err)
	}

	c.mu.Lock()
	c.state = Reduce(c.state, LoadCartAction{Items: items})
	c.state = Reduce(c.state, SetRemoteCartAction{ID: cartID, CheckoutURL: checkoutURL})
	n := len(c.state.Items)
	c.mu.Unlock()

	c.log.Debug("cart loaded", slog.Int("lines", n), slog.String("cart_id", cartID))
	return nil
}

func (c *Cart) AddItem(ctx context.Context, product domain.Product, variantID string, quantity int) error {
	variant, ok := product.Variant(variantID)
	if !ok {
		c.dispatch(SetErrorAction{Message: fmt.Sprintf("variant %s not found", variantID)})
		return fmt.Errorf("%w: %s", domain.ErrVariantNotFound, variantID)
	}
	if quantity <= 0 {
		c.dispatch(SetErrorAction{Message: domain.ErrInvalidQuantity.Error()})
		return domain.ErrInvalidQuantity
	}

	next, err := c.mutate(AddItemAction{Item: domain.NewLineItem(product, variant, quantity)})
	if err != nil {
		return err
	}
	c.save(ctx, next)
	c.sync.ScheduleSync()
	return nil
}

func (c *Cart) RemoveItem(ctx context.Context, variantID string) error {
	next, err := c.dispatchIfPresent(variantID, RemoveItemAction{VariantID: variantID})
	if err != nil {
		return err
	}
	c.save(ctx, next)
	c.sync.ScheduleSync()
	return nil
}

// UpdateQuantity sets the quantity exactly; zero or less removes the line.
func (c *Cart) UpdateQuantity(ctx context.Context, variantID string, quantity int) error {
	next, err := c.dispatchIfPresent(variantID, UpdateQuantityAction{VariantID: variantID, Quantity: quantity})
	if err != nil {
		return err
	}
	c.save(ctx, next)
	c.sync.ScheduleSync()
	return nil
}

func (c *Cart) ClearCart(ctx context.Context) error {
	if _, err := c.mutate(ClearCartAction{}); err != nil {
		return err
	}
	if err := c.store.Clear(ctx, c.sessionID); err != nil {
		c.storageFailed("clear", err)
	}
	c.sync.ScheduleSync()
	return nil
}

func (c *Cart) SetCurrency(_ context.Context, code string) error {
	if !currency.Supported(code) {
		return fmt.Errorf("%w: %s", domain.ErrUnsupportedCurrency, code)
	}
	_, err := c.mutate(SetCurrencyAction{CurrencyCode: code})
	return err
}

// CreateRemoteCartForCheckout flushes the current state to the remote cart
// immediately and returns its checkout URL.
func (c *Cart) CreateRemoteCartForCheckout(ctx context.Context) (string, error) {
	if c.isClosed() {
		return "", ErrClosed
	}
	if len(c.Items()) == 0 {
		return "", domain.ErrEmptyCart
	}
	remote, err := c.sync.SyncNow(ctx)
	if err != nil {
		return "", err
	}
	// the cart may have been emptied while waiting for an in-flight sync, in
	// which case the remote cart is empty too
	if remote == nil || len(c.Items()) == 0 {
		return "", domain.ErrEmptyCart
	}
	return remote.CheckoutURL, nil
}

// Refresh replaces the local lines with the remote cart's lines.
func (c *Cart) Refresh(ctx context.Context) error {
	if c.isClosed() {
		return ErrClosed
	}
	cartID := c.State().RemoteCartID
	if cartID == "" {
		return nil
	}
	remote, err := c.api.GetCart(ctx, cartID)
	if errors.Is(err, domain.ErrCartNotFound) {
		// local lines stay; the next sync starts a new remote cart
		c.log.Warn("remote cart gone on refresh", slog.String("cart_id", cartID))
		c.DetachRemote()
		if len(c.Items()) > 0 {
			c.sync.ScheduleSync()
		}
		return nil
	}
	if err != nil {
		c.dispatch(SetErrorAction{Message: err.Error()})
		return fmt.Errorf("failed to refresh cart %s: %w", cartID, err)
	}
	next := c.dispatch(SyncRemoteCartAction{ID: remote.ID, CheckoutURL: remote.CheckoutURL, Items: remote.LineItems()})
	c.persist(ctx, next)
	return nil
}

func (c *Cart) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.state
	s.Items = cloneItems(s.Items)
	return s
}

func (c *Cart) Items() []domain.LineItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneItems(c.state.Items)
}

// DisplayTotal sums the cart in its display currency.
func (c *Cart) DisplayTotal() (domain.Money, error) {
	s := c.State()
	return currency.DisplayTotal(s.Items, s.CurrencyCode)
}

// Close rejects further mutations, pushes changes that have not reached the
// remote cart yet and stops synchronization.
func (c *Cart) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	syncing := c.state.IsLoading
	c.mu.Unlock()

	if c.sync.Pending() || syncing {
		ctx, cancel := context.WithTimeout(context.Background(), closeFlushTimeout)
		if _, err := c.sync.SyncNow(ctx); err != nil {
			c.log.Warn("final sync before close failed", slog.Any("error", err))
		}
		cancel()
	}
	c.sync.Close()
}

// SyncSnapshot implements cartsync.Target.
func (c *Cart) SyncSnapshot() cartsync.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cartsync.Snapshot{Lines: domain.LineInputs(c.state.Items), CartID: c.state.RemoteCartID}
}

func (c *Cart) SetSyncing(syncing bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = Reduce(c.state, SetLoadingAction{Loading: syncing})
	if syncing {
		c.state = Reduce(c.state, SetErrorAction{})
	}
}

func (c *Cart) ApplyRemote(remote *domain.RemoteCart) {
	next := c.dispatch(SetRemoteCartAction{ID: remote.ID, CheckoutURL: remote.CheckoutURL})
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	c.persist(ctx, next)
}

func (c *Cart) DetachRemote() {
	c.dispatch(SetRemoteCartAction{})
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := c.store.SaveCartID(ctx, c.sessionID, ""); err != nil {
		c.storageFailed("save cart id", err)
	}
	if err := c.store.SaveCheckoutURL(ctx, c.sessionID, ""); err != nil {
		c.storageFailed("save checkout url", err)
	}
}

func (c *Cart) SyncFailed(err error) {
	next := c.dispatch(SetErrorAction{Message: err.Error()})
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	c.persist(ctx, next)
}

func (c *Cart) dispatch(a Action) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = Reduce(c.state, a)
	return c.state
}

// mutate applies a shopper-initiated action. It fails once the cart is closed
// so that no change lands after the final sync.
func (c *Cart) mutate(a Action) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return State{}, ErrClosed
	}
	c.state = Reduce(c.state, a)
	return c.state, nil
}

func (c *Cart) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Cart) dispatchIfPresent(variantID string, a Action) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return State{}, ErrClosed
	}
	if indexOf(c.state.Items, variantID) < 0 {
		return State{}, fmt.Errorf("%w: %s", domain.ErrItemNotFound, variantID)
	}
	c.state = Reduce(c.state, a)
	return c.state, nil
}

// save persists after a local mutation. While a sync is in flight the write is
// left to the sync completion, which saves the full state.
func (c *Cart) save(ctx context.Context, s State) {
	if s.IsLoading {
		return
	}
	c.persist(ctx, s)
}

func (c *Cart) persist(ctx context.Context, s State) {
	if err := c.store.SaveItems(ctx, c.sessionID, s.Items); err != nil {
		c.storageFailed("save items", err)
	}
	if s.RemoteCartID != "" {
		if err := c.store.SaveCartID(ctx, c.sessionID, s.RemoteCartID); err != nil {
			c.storageFailed("save cart id", err)
		}
	}
	if s.CheckoutURL != "" {
		if err := c.store.SaveCheckoutURL(ctx, c.sessionID, s.CheckoutURL); err != nil {
			c.storageFailed("save checkout url", err)
		}
	}
}

func (c *Cart) storageFailed(op string, err error) {
	c.log.Error("cart storage failed", slog.String("op", op), slog.Any("error", err))
	c.dispatch(SetErrorAction{Message: fmt.Sprintf("failed to %s: %v", op, err)})
}
