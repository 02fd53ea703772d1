package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"pricetracker/internal/models"
	"pricetracker/internal/storage"

	"github.com/redis/go-redis/v9"
)

// RedisRepo caches product reads. Writers invalidate; the TTL bounds
// staleness when an invalidation is missed.
type RedisRepo struct {
	client     *redis.Client
	DefaultTTL time.Duration
}

func New(ctx context.Context, address string, db int, defaultTTL time.Duration) (*RedisRepo, error) {
	const op = "storage.redis.New"

	rdb := redis.NewClient(&redis.Options{
		Addr: address,
		DB:   db,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &RedisRepo{
		client:     rdb,
		DefaultTTL: defaultTTL,
	}, nil
}

func productKey(productID int64) string {
	return fmt.Sprintf("product:%d", productID)
}

func (r *RedisRepo) SaveProduct(ctx context.Context, product models.Product) error {
	const op = "storage.redis.SaveProduct"

	data, err := json.Marshal(product)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := r.client.Set(ctx, productKey(product.ID), data, r.DefaultTTL).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (r *RedisRepo) Product(ctx context.Context, productID int64) (models.Product, error) {
	const op = "storage.redis.Product"

	var product models.Product

	data, err := r.client.Get(ctx, productKey(productID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return product, storage.ErrProductNotFound
		}
		return product, fmt.Errorf("%s: %w", op, err)
	}

	if err := json.Unmarshal(data, &product); err != nil {
		return product, fmt.Errorf("%s: %w", op, err)
	}

	return product, nil
}

// DeleteProduct drops a cached entry after the product changed or was
// removed, so readers never see a refreshed price behind the cache.
func (r *RedisRepo) DeleteProduct(ctx context.Context, productID int64) error {
	const op = "storage.redis.DeleteProduct"

	if err := r.client.Del(ctx, productKey(productID)).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Close closes the connection to redis.
func (r *RedisRepo) Close() {
	r.client.Close()
}
