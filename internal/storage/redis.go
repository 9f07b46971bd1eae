package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/redis/go-redis/v9"
)

func NewRedisStorage(client *redis.Client) *RedisStorage {
	return &RedisStorage{
		client:  client,
		baseTTL: 24 * time.Hour,
	}
}

// RedisStorage stores every entry under its own key so each can be read and
// written independently.
type RedisStorage struct {
	client  *redis.Client
	baseTTL time.Duration
}

func (r *RedisStorage) LoadItems(ctx context.Context, sessionID string) ([]domain.LineItem, error) {
	data, err := r.get(ctx, itemsKey(sessionID))
	if err != nil {
		return nil, err
	}

	var items []domain.LineItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("unmarshal cart items failed: %w", err)
	}
	return items, nil
}

func (r *RedisStorage) SaveItems(ctx context.Context, sessionID string, items []domain.LineItem) error {
	if items == nil {
		items = []domain.LineItem{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshal cart items failed: %w", err)
	}
	return r.set(ctx, itemsKey(sessionID), data)
}

func (r *RedisStorage) LoadCartID(ctx context.Context, sessionID string) (string, error) {
	data, err := r.get(ctx, cartIDKey(sessionID))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (r *RedisStorage) SaveCartID(ctx context.Context, sessionID string, cartID string) error {
	return r.set(ctx, cartIDKey(sessionID), []byte(cartID))
}

func (r *RedisStorage) LoadCheckoutURL(ctx context.Context, sessionID string) (string, error) {
	data, err := r.get(ctx, checkoutURLKey(sessionID))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (r *RedisStorage) SaveCheckoutURL(ctx context.Context, sessionID string, url string) error {
	return r.set(ctx, checkoutURLKey(sessionID), []byte(url))
}

func (r *RedisStorage) Clear(ctx context.Context, sessionID string) error {
	keys := []string{itemsKey(sessionID), cartIDKey(sessionID), checkoutURLKey(sessionID)}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func (r *RedisStorage) get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	return data, nil
}

func (r *RedisStorage) set(ctx context.Context, key string, value []byte) error {
	jitter := time.Duration(rand.Intn(60)) * time.Minute
	if err := r.client.Set(ctx, key, value, r.baseTTL+jitter).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func itemsKey(sessionID string) string {
	return fmt.Sprintf("cart:%s:items", sessionID)
}

func cartIDKey(sessionID string) string {
	return fmt.Sprintf("cart:%s:id", sessionID)
}

func checkoutURLKey(sessionID string) string {
	return fmt.Sprintf("cart:%s:checkout_url", sessionID)
}
