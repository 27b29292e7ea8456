package app

import (
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderdesk/internal/config"
	"github.com/Additional-Code/orderdesk/internal/database"
	"github.com/Additional-Code/orderdesk/internal/guard"
	"github.com/Additional-Code/orderdesk/internal/logger"
	"github.com/Additional-Code/orderdesk/internal/messaging"
	"github.com/Additional-Code/orderdesk/internal/migration"
	"github.com/Additional-Code/orderdesk/internal/observability"
	repositoryorder "github.com/Additional-Code/orderdesk/internal/repository/order"
	"github.com/Additional-Code/orderdesk/internal/seeder"
	grpcserver "github.com/Additional-Code/orderdesk/internal/server/grpc"
	httpserver "github.com/Additional-Code/orderdesk/internal/server/http"
	serviceorder "github.com/Additional-Code/orderdesk/internal/service/order"
	"github.com/Additional-Code/orderdesk/internal/store"
	transporthttp "github.com/Additional-Code/orderdesk/internal/transport/http"
	"github.com/Additional-Code/orderdesk/internal/worker"
	workerorder "github.com/Additional-Code/orderdesk/internal/worker/order"
)

// Base holds configuration, logging and telemetry shared by every executable.
var Base = fx.Options(
	config.Module,
	logger.Module,
	observability.Module,
)

// Core provides the order domain on top of Base.
var Core = fx.Options(
	Base,
	store.Module,
	messaging.Module,
	repositoryorder.Module,
	guard.Module,
	serviceorder.Module,
)

// HTTP wires the HTTP and gRPC servers on top of the core modules.
var HTTP = fx.Options(
	Core,
	httpserver.Module,
	grpcserver.Module,
	transporthttp.Module,
)

// Worker exposes background consumption of order events.
var Worker = fx.Options(
	Base,
	messaging.Module,
	worker.Module,
	workerorder.Module,
)

// Migrate wires schema migrations for the database store.
var Migrate = fx.Options(
	Base,
	database.Module,
	migration.Module,
)

// Seed wires the sample data loader.
var Seed = fx.Options(
	Core,
	seeder.Module,
)

// EventLogger routes Fx lifecycle events through the application logger.
var EventLogger = fx.WithLogger(func(l *zap.Logger) fxevent.Logger {
	return &fxevent.ZapLogger{Logger: l.Named("fx")}
})

// Module is the default application wiring (HTTP only).
var Module = HTTP
