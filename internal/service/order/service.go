package order

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderdesk/internal/config"
	"github.com/Additional-Code/orderdesk/internal/entity"
	"github.com/Additional-Code/orderdesk/internal/guard"
	"github.com/Additional-Code/orderdesk/internal/messaging"
	repo "github.com/Additional-Code/orderdesk/internal/repository/order"
	"github.com/Additional-Code/orderdesk/internal/store"
	"github.com/Additional-Code/orderdesk/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/Additional-Code/orderdesk/service/order")

// Service orchestrates the order registry, the processing guard and the
// durability store.
type Service struct {
	registry  *repo.Registry
	guard     *guard.Guard
	locks     *guard.KeyLocker
	store     store.Store
	publisher messaging.Client
	logger    *zap.Logger
	metrics   *metrics

	holdDuration time.Duration
	updateDelay  time.Duration
	now          func() time.Time

	persistMu sync.Mutex

	jobsMu  sync.Mutex
	jobs    map[int64]*job
	jobsWG  sync.WaitGroup
	closed  bool
	baseCtx context.Context
	stopAll context.CancelFunc
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Registry  *repo.Registry
	Guard     *guard.Guard
	Locker    *guard.KeyLocker
	Store     store.Store
	Publisher messaging.Client
	Config    config.Config
	Logger    *zap.Logger
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	publisher := p.Publisher
	if publisher == nil {
		publisher = messaging.NewNoop(p.Config.Messaging.Kafka.Topic)
	}

	baseCtx, stopAll := context.WithCancel(context.Background())
	return &Service{
		registry:     p.Registry,
		guard:        p.Guard,
		locks:        p.Locker,
		store:        p.Store,
		publisher:    publisher,
		logger:       logger,
		metrics:      newMetrics(logger),
		holdDuration: p.Config.Processing.HoldDuration,
		updateDelay:  p.Config.Processing.UpdateDelay,
		now:          func() time.Time { return time.Now().UTC() },
		jobs:         make(map[int64]*job),
		baseCtx:      baseCtx,
		stopAll:      stopAll,
	}
}

// Bootstrap fills the registry from the store. A failing store leaves the
// registry empty and is not fatal.
func (s *Service) Bootstrap(ctx context.Context) error {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Bootstrap", trace.WithAttributes(attribute.String("store.backend", s.store.Name())))
	defer span.End()

	orders, err := s.store.Load(ctx)
	if err != nil {
		span.RecordError(err)
		s.logger.Warn("order store load failed; starting empty", zap.String("store", s.store.Name()), zap.Error(err))
		return nil
	}
	s.registry.Load(orders)
	s.logger.Info("orders loaded", zap.Int("count", s.registry.Len()), zap.Int64("last_id", s.registry.LastID()))
	return nil
}

// CreateOrder registers a new pending order and persists the collection.
func (s *Service) CreateOrder(ctx context.Context, items []entity.Item, customerID string) (entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.CreateOrder", trace.WithAttributes(
		attribute.String("order.customer_id", customerID),
		attribute.Int("order.items", len(items)),
	))
	defer span.End()

	order, err := s.registry.Create(items, customerID)
	if err != nil {
		return entity.Order{}, translate(err)
	}
	span.SetAttributes(attribute.Int64("order.id", order.ID))

	if err := s.persist(ctx, order.ID); err != nil {
		recordSpanError(span, err)
		return order, err
	}

	s.metrics.created.Add(ctx, 1)
	s.publish(ctx, newOrderEvent(EventOrderCreated, order, s.now()))
	return order, nil
}

// GetOrder returns a copy of the order.
func (s *Service) GetOrder(ctx context.Context, id int64) (entity.Order, error) {
	_, span := serviceTracer.Start(ctx, "OrderService.GetOrder", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	order, ok := s.registry.Get(id)
	if !ok {
		return entity.Order{}, notFound(id)
	}
	return order, nil
}

// ListOrders returns copies of the matching orders in creation order.
func (s *Service) ListOrders(ctx context.Context, filter repo.Filter) []entity.Order {
	_, span := serviceTracer.Start(ctx, "OrderService.ListOrders")
	defer span.End()

	orders := s.registry.List(filter)
	span.SetAttributes(attribute.Int("orders.count", len(orders)))
	return orders
}

// UpdateOrder merges a partial update into an order. Concurrent updates of
// the same id are serialized; other ids proceed.
func (s *Service) UpdateOrder(ctx context.Context, id int64, patch entity.Patch) (entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.UpdateOrder", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	if err := patch.Validate(); err != nil {
		return entity.Order{}, translate(err)
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	if _, ok := s.registry.Get(id); !ok {
		return entity.Order{}, notFound(id)
	}
	if err := s.simulateValidation(ctx); err != nil {
		return entity.Order{}, errorbank.Internal("update cancelled", errorbank.WithCause(err))
	}

	order, err := s.registry.Update(id, patch)
	if err != nil {
		return entity.Order{}, translate(err)
	}
	if err := s.persist(ctx, id); err != nil {
		recordSpanError(span, err)
		return order, err
	}
	return order, nil
}

// ProcessOption customises a single ProcessOrder call.
type ProcessOption func(*processOptions)

type processOptions struct {
	notify func(entity.Order)
}

// WithNotify registers a callback that runs once with the processed order.
func WithNotify(fn func(entity.Order)) ProcessOption {
	return func(o *processOptions) {
		o.notify = fn
	}
}

// ProcessOrder moves an order to the processed status. Repeating the call is
// harmless and emits one notification per call.
func (s *Service) ProcessOrder(ctx context.Context, id int64, opts ...ProcessOption) (entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.ProcessOrder", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	var options processOptions
	for _, opt := range opts {
		opt(&options)
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	order, err := s.registry.Mutate(id, func(o *entity.Order, now time.Time) error {
		o.MarkProcessed(now)
		return nil
	})
	if err != nil {
		return entity.Order{}, translate(err)
	}
	if err := s.persist(ctx, id); err != nil {
		recordSpanError(span, err)
		return order, err
	}

	s.metrics.processed.Add(ctx, 1)
	s.publish(ctx, newOrderEvent(EventOrderProcessed, order, s.now()))
	if options.notify != nil {
		options.notify(order.Clone())
	}
	return order, nil
}

// CalculateOrder stores the sum of price times quantity over the items.
func (s *Service) CalculateOrder(ctx context.Context, id int64) (entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.CalculateOrder", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	unlock := s.locks.Lock(id)
	defer unlock()

	order, err := s.registry.Mutate(id, func(o *entity.Order, now time.Time) error {
		total := entity.LineTotal(o.Items)
		o.CalculatedValue = &total
		o.UpdatedAt = &now
		return nil
	})
	if err != nil {
		return entity.Order{}, translate(err)
	}
	if err := s.persist(ctx, id); err != nil {
		recordSpanError(span, err)
		return order, err
	}
	return order, nil
}

// LinkOrder records relatedID as the related order of id.
func (s *Service) LinkOrder(ctx context.Context, id, relatedID int64) (entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.LinkOrder", trace.WithAttributes(
		attribute.Int64("order.id", id),
		attribute.Int64("order.related_id", relatedID),
	))
	defer span.End()

	unlock := s.locks.Lock(id)
	defer unlock()

	order, err := s.registry.Link(id, relatedID)
	if err != nil {
		return entity.Order{}, translate(err)
	}
	if err := s.persist(ctx, id); err != nil {
		recordSpanError(span, err)
		return order, err
	}
	return order, nil
}

// BulkSummary describes a completed bulk run.
type BulkSummary struct {
	Processed   int       `json:"processed"`
	CompletedAt time.Time `json:"completedAt"`
}

// BulkProcess re-reads the store, folds it into the registry and marks every
// order as processed. Only one bulk run may be active at a time.
func (s *Service) BulkProcess(ctx context.Context) (BulkSummary, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.BulkProcess")
	defer span.End()

	lease, ok := s.guard.AcquireBulk()
	if !ok {
		s.metrics.conflicts.Add(ctx, 1, metricScope("bulk"))
		return BulkSummary{}, errorbank.Conflict("bulk processing already in progress")
	}
	defer lease.Release()

	loaded, err := s.store.Load(ctx)
	if err != nil {
		recordSpanError(span, err)
		return BulkSummary{}, errorbank.StoreUnavailable("failed to read order store", errorbank.WithCause(err))
	}

	now := s.now()
	count, kept := s.registry.MergeAndMarkProcessed(loaded, now)
	if len(kept) > 0 {
		span.SetAttributes(attribute.Int64Slice("orders.kept_unsaved", kept))
		s.logger.Warn("bulk processing kept unsaved in-memory orders over stored records", zap.Int64s("ids", kept))
	}
	if err := s.persist(ctx, 0); err != nil {
		recordSpanError(span, err)
		return BulkSummary{}, err
	}

	s.metrics.bulkRuns.Add(ctx, 1)
	span.SetAttributes(attribute.Int("orders.processed", count))
	s.logger.Info("bulk processing finished", zap.Int("orders", count))
	return BulkSummary{Processed: count, CompletedAt: now}, nil
}

// persist writes a snapshot taken inside the critical section so saves land
// in the same order as the mutations they carry.
func (s *Service) persist(ctx context.Context, id int64) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	orders, version := s.registry.SnapshotForSave()
	if err := s.store.Save(ctx, orders); err != nil {
		s.logger.Error("order store save failed",
			zap.String("store", s.store.Name()),
			zap.Int64("id", id),
			zap.Error(err),
		)
		opts := []errorbank.Option{errorbank.WithCause(err), errorbank.WithDetail("durable", false)}
		if id > 0 {
			opts = append(opts, errorbank.WithDetail("order_id", id))
		}
		return errorbank.StoreUnavailable("change applied in memory but not persisted", opts...)
	}
	s.registry.MarkSaved(version)
	return nil
}

func (s *Service) simulateValidation(ctx context.Context) error {
	if s.updateDelay <= 0 {
		return nil
	}
	delay := rand.N(s.updateDelay)
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) publish(ctx context.Context, event OrderEvent) {
	msg, err := event.message()
	if err != nil {
		s.logger.Error("marshal order event", zap.String("type", event.Type), zap.Error(err))
		return
	}
	if err := s.publisher.Publish(ctx, msg); err != nil {
		s.logger.Error("publish order event", zap.String("type", event.Type), zap.Int64("id", event.ID), zap.Error(err))
	}
}

func notFound(id int64) error {
	return errorbank.NotFound("order not found", errorbank.WithDetail("order_id", id))
}

// translate maps registry and entity errors onto application errors.
func translate(err error) error {
	var fieldErr *entity.PatchFieldError
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return errorbank.NotFound("order not found", errorbank.WithCause(err))
	case errors.Is(err, repo.ErrSelfLink), errors.Is(err, repo.ErrLinkCycle):
		return errorbank.InvalidInput(err.Error(), errorbank.WithCause(err))
	case errors.As(err, &fieldErr):
		return errorbank.InvalidInput(fieldErr.Error(), errorbank.WithCause(err), errorbank.WithDetail("field", fieldErr.Field))
	case errors.Is(err, entity.ErrEmptyPatch),
		errors.Is(err, entity.ErrItemsRequired),
		errors.Is(err, entity.ErrCustomerRequired),
		errors.Is(err, entity.ErrNegativePrice),
		errors.Is(err, entity.ErrPriceScale),
		errors.Is(err, entity.ErrNegativeQuantity):
		return errorbank.InvalidInput(err.Error(), errorbank.WithCause(err))
	default:
		return errorbank.Internal("order operation failed", errorbank.WithCause(err))
	}
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
