// Package store persists the full order collection. Every backend treats a
// Save as all-or-nothing: either the whole slice becomes durable or nothing
// changes.
package store

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderdesk/internal/config"
	"github.com/Additional-Code/orderdesk/internal/database"
	"github.com/Additional-Code/orderdesk/internal/entity"
)

var storeTracer = otel.Tracer("github.com/Additional-Code/orderdesk/store")

// Store is the durability backend of the order registry.
type Store interface {
	Load(ctx context.Context) ([]entity.Order, error)
	Save(ctx context.Context, orders []entity.Order) error
	Name() string
}

// Module provides the configured Store to the Fx graph.
var Module = fx.Provide(New)

// New initialises the store selected by STORE_DRIVER.
func New(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (Store, error) {
	switch cfg.Store.Driver {
	case "file":
		logger.Info("using file order store", zap.String("path", cfg.Store.FilePath))
		return NewFileStore(cfg.Store.FilePath), nil
	case "redis":
		return newRedisStoreWithLifecycle(lc, cfg, logger), nil
	case "database":
		conns, err := database.Open(cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("open order database: %w", err)
		}
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				if err := conns.Ping(ctx); err != nil {
					return err
				}
				logger.Info("database order store connected", zap.String("driver", cfg.Database.Driver))
				return nil
			},
			OnStop: func(context.Context) error {
				return conns.Close()
			},
		})
		return NewDatabaseStore(conns), nil
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}
