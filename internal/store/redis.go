package store

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderdesk/internal/config"
	"github.com/Additional-Code/orderdesk/internal/entity"
)

// RedisStore keeps the collection as one JSON value under a single key, so a
// Save is a single SET.
type RedisStore struct {
	client *goredis.Client
	key    string
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *goredis.Client, key string) *RedisStore {
	return &RedisStore{client: client, key: key}
}

func newRedisStoreWithLifecycle(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) *RedisStore {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("ping redis: %w", err)
			}
			logger.Info("redis order store connected", zap.String("addr", cfg.Redis.Addr), zap.String("key", cfg.Store.RedisKey))
			return nil
		},
		OnStop: func(context.Context) error {
			logger.Info("closing redis order store")
			return client.Close()
		},
	})

	return NewRedisStore(client, cfg.Store.RedisKey)
}

// Name identifies the backend in logs.
func (s *RedisStore) Name() string { return "redis" }

// Load fetches the collection. A missing key is an empty collection.
func (s *RedisStore) Load(ctx context.Context) ([]entity.Order, error) {
	ctx, span := storeTracer.Start(ctx, "RedisStore.Load", trace.WithAttributes(attribute.String("store.key", s.key)))
	defer span.End()

	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return []entity.Order{}, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "get failed")
		return nil, fmt.Errorf("get orders: %w", err)
	}
	return decodeOrders(data)
}

// Save overwrites the collection.
func (s *RedisStore) Save(ctx context.Context, orders []entity.Order) error {
	ctx, span := storeTracer.Start(ctx, "RedisStore.Save", trace.WithAttributes(
		attribute.String("store.key", s.key),
		attribute.Int("store.orders", len(orders)),
	))
	defer span.End()

	data, err := encodeOrders(orders, false)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "set failed")
		return fmt.Errorf("set orders: %w", err)
	}
	return nil
}
