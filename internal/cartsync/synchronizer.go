// Package cartsync keeps a remote cart eventually consistent with the local one.
//
// Every local mutation calls ScheduleSync. Syncs are debounced, never overlap, and
// always push the complete current line set (full replace, never a diff).
package cartsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"golang.org/x/sync/semaphore"
)

// RemoteCartAPI is the remote cart surface the synchronizer pushes to.
type RemoteCartAPI interface {
	CreateCart(ctx context.Context, lines []domain.CartLineInput) (*domain.RemoteCart, error)
	ReplaceCartLines(ctx context.Context, cartID string, lines []domain.CartLineInput) (*domain.RemoteCart, error)
	GetCart(ctx context.Context, cartID string) (*domain.RemoteCart, error)
}

// Snapshot is what gets pushed: the full line set and the known remote cart id.
type Snapshot struct {
	Lines  []domain.CartLineInput
	CartID string
}

// Target is the local cart the synchronizer reads from and reports back to.
type Target interface {
	SyncSnapshot() Snapshot
	SetSyncing(syncing bool)
	ApplyRemote(cart *domain.RemoteCart)
	// DetachRemote drops a remote cart id the remote no longer knows.
	DetachRemote()
	SyncFailed(err error)
}

// Config holds the timing knobs.
type Config struct {
	Debounce       time.Duration
	MaxRetries     int
	RetryBaseDelay time.Duration
	// RequestTimeout bounds a single remote call; zero means no extra bound.
	RequestTimeout time.Duration
}

// DefaultConfig returns a 500ms debounce and 3 retries at 2s, 4s, 8s.
func DefaultConfig() Config {
	return Config{
		Debounce:       500 * time.Millisecond,
		MaxRetries:     3,
		RetryBaseDelay: time.Second,
		RequestTimeout: 15 * time.Second,
	}
}

type Synchronizer struct {
	api    RemoteCartAPI
	target Target
	cfg    Config
	log    *slog.Logger

	mu     sync.Mutex
	timer  *time.Timer
	gen    uint64
	closed bool
	wg     sync.WaitGroup

	// one slot, held for the whole duration of a sync run
	slot *semaphore.Weighted

	ctx    context.Context
	cancel context.CancelFunc
}

func New(api RemoteCartAPI, target Target, cfg Config, log *slog.Logger) *Synchronizer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Synchronizer{
		api:    api,
		target: target,
		cfg:    cfg,
		log:    log.With(slog.String("component", "cartsync")),
		slot:   semaphore.NewWeighted(1),
		ctx:    ctx,
		cancel: cancel,
	}
}

// ScheduleSync (re)arms the debounce timer. Only the state current when the
// timer fires is pushed.
func (s *Synchronizer) ScheduleSync() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.gen++
	gen := s.gen
	s.timer = time.AfterFunc(s.cfg.Debounce, func() { s.fire(gen) })
}

func (s *Synchronizer) fire(gen uint64) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.gen == gen {
		s.timer = nil
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	if !s.slot.TryAcquire(1) {
		s.log.Debug("sync already in flight, skipping debounced run")
		return
	}
	defer s.slot.Release(1)

	_, _ = s.run(s.ctx)
}

// SyncNow cancels any pending debounced run and synchronizes immediately,
// waiting for an in-flight run to finish first. Waiting stops with ctx. The
// error is returned as well as reported to the target.
func (s *Synchronizer) SyncNow(ctx context.Context) (*domain.RemoteCart, error) {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	if err := s.slot.Acquire(ctx, 1); err != nil {
		s.log.Info("gave up waiting for in-flight sync", slog.Any("error", err))
		return nil, err
	}
	defer s.slot.Release(1)

	return s.run(ctx)
}

// Pending reports whether a debounced run is armed.
func (s *Synchronizer) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

// Close stops the timer, cancels in-flight work and waits for it.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

func (s *Synchronizer) run(ctx context.Context) (*domain.RemoteCart, error) {
	s.target.SetSyncing(true)
	defer s.target.SetSyncing(false)

	for attempt := 0; ; attempt++ {
		snap := s.target.SyncSnapshot()
		remote, err := s.push(ctx, snap)
		if err == nil {
			if remote != nil {
				s.target.ApplyRemote(remote)
				s.log.Info("cart synced",
					slog.String("cart_id", remote.ID),
					slog.Int("lines", len(snap.Lines)),
					slog.Int("attempt", attempt+1))
			}
			return remote, nil
		}

		if ctx.Err() != nil {
			s.log.Info("sync cancelled", slog.Any("error", err))
			return nil, ctx.Err()
		}
		if !IsRetryable(err) {
			s.log.Warn("sync rejected by remote", slog.Any("error", err))
			s.target.SyncFailed(err)
			return nil, err
		}
		if attempt >= s.cfg.MaxRetries {
			failed := fmt.Errorf("%w after %d attempts: %w", domain.ErrSyncFailed, attempt+1, err)
			s.log.Error("sync retries exhausted", slog.Any("error", err), slog.Int("attempts", attempt+1))
			s.target.SyncFailed(failed)
			return nil, failed
		}

		delay := RetryDelay(s.cfg.RetryBaseDelay, attempt+1)
		s.log.Warn("sync failed, retrying",
			slog.Any("error", err),
			slog.Int("attempt", attempt+1),
			slog.Duration("delay", delay))
		if err := sleepWithContext(ctx, delay); err != nil {
			return nil, err
		}
	}
}

func (s *Synchronizer) push(ctx context.Context, snap Snapshot) (*domain.RemoteCart, error) {
	if s.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RequestTimeout)
		defer cancel()
	}

	if snap.CartID != "" {
		remote, err := s.api.ReplaceCartLines(ctx, snap.CartID, snap.Lines)
		if !errors.Is(err, domain.ErrCartNotFound) {
			return remote, err
		}
		// expired or already checked out; start over with a fresh cart
		s.log.Warn("remote cart gone, creating a new one",
			slog.String("cart_id", snap.CartID),
			slog.Any("error", err))
		s.target.DetachRemote()
	}
	if len(snap.Lines) == 0 {
		return nil, nil
	}
	return s.api.CreateCart(ctx, snap.Lines)
}

// IsRetryable reports whether a failed push may succeed on retry. Structured
// rejections, unknown carts and caller cancellation are final.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, domain.ErrRemoteRejected),
		errors.Is(err, domain.ErrCartNotFound),
		errors.Is(err, context.Canceled):
		return false
	}
	return true
}

// RetryDelay is base * 2^attempt.
func RetryDelay(base time.Duration, attempt int) time.Duration {
	if attempt < 0 {
		return 0
	}
	return base << attempt
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
