// Package poller clears session carts when the order service reports a paid order.
package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

var ErrMissingSession = errors.New("missing or invalid session_id")

type SessionClearer interface {
	Clear(ctx context.Context, sessionID string) error
}

type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type Config struct {
	Brokers []string
	Topic   string
	GroupID string
}

// OrderPaid is the event payload. Older producers send user_id instead of session_id.
type OrderPaid struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	OrderID   string `json:"order_id"`
	CartID    string `json:"cart_id"`
}

type Poller struct {
	reader     MessageReader
	sessions   SessionClearer
	log        *slog.Logger
	errBackoff time.Duration
}

func NewPoller(sessions SessionClearer, cfg Config, log *slog.Logger) *Poller {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MaxBytes: 10e6, // 10MB
	})
	return newPoller(reader, sessions, log)
}

func newPoller(reader MessageReader, sessions SessionClearer, log *slog.Logger) *Poller {
	return &Poller{
		reader:     reader,
		sessions:   sessions,
		log:        log.With(slog.String("component", "poller")),
		errBackoff: time.Second,
	}
}

func (p *Poller) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := p.poll(ctx); err != nil && ctx.Err() == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.errBackoff):
			}
		}
	}
}

func (p *Poller) Close() {
	if err := p.reader.Close(); err != nil {
		p.log.Error("error closing reader", slog.Any("error", err))
	}
}

// poll returns an error only when reading failed; bad messages are logged and skipped.
func (p *Poller) poll(ctx context.Context) error {
	m, err := p.reader.ReadMessage(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.log.Error("error reading message", slog.Any("error", err))
		}
		return err
	}

	if err := p.handle(ctx, m); err != nil {
		p.log.Warn("order event not applied",
			slog.Int64("offset", m.Offset),
			slog.Any("error", err))
	}
	return nil
}

func (p *Poller) handle(ctx context.Context, m kafka.Message) error {
	var event OrderPaid
	if err := json.Unmarshal(m.Value, &event); err != nil {
		return fmt.Errorf("error parsing message: %w", err)
	}
	sessionID := event.SessionID
	if sessionID == "" {
		sessionID = event.UserID
	}
	if sessionID == "" {
		return ErrMissingSession
	}

	if err := p.sessions.Clear(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to clear session %s: %w", sessionID, err)
	}
	p.log.Info("cart cleared after paid order",
		slog.String("session_id", sessionID),
		slog.String("order_id", event.OrderID))
	return nil
}
