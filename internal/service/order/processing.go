package order

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderdesk/internal/entity"
	"github.com/Additional-Code/orderdesk/internal/guard"
	"github.com/Additional-Code/orderdesk/pkg/errorbank"
)

// Ticket acknowledges an accepted processing request.
type Ticket struct {
	OrderID   int64     `json:"orderId"`
	StartedAt time.Time `json:"startedAt"`
	HoldUntil time.Time `json:"holdUntil"`
}

type job struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// StartProcessing marks the order as in flight and schedules ProcessOrder
// once the hold duration elapses. A second start for the same id fails with
// a conflict until the first job has released its lease.
func (s *Service) StartProcessing(ctx context.Context, id int64) (Ticket, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.StartProcessing", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	if _, ok := s.registry.Get(id); !ok {
		return Ticket{}, notFound(id)
	}

	lease, ok := s.guard.AcquireOrder(id)
	if !ok {
		s.metrics.conflicts.Add(ctx, 1, metricScope("order"))
		return Ticket{}, errorbank.Conflict("order is already being processed", errorbank.WithDetail("order_id", id))
	}

	jobCtx, cancel := context.WithCancel(s.baseCtx)
	j := &job{cancel: cancel, done: make(chan struct{})}

	s.jobsMu.Lock()
	if s.closed {
		s.jobsMu.Unlock()
		cancel()
		lease.Release()
		return Ticket{}, errorbank.Conflict("order service is shutting down")
	}
	s.jobs[id] = j
	s.jobsWG.Add(1)
	s.jobsMu.Unlock()

	started := s.now()
	go s.runJob(jobCtx, id, lease, j)

	s.logger.Info("order processing started", zap.Int64("id", id), zap.Duration("hold", s.holdDuration))
	return Ticket{OrderID: id, StartedAt: started, HoldUntil: started.Add(s.holdDuration)}, nil
}

// FinishProcessing stops the in-flight job for id, if any, and waits until
// its lease is released. It returns the current order.
func (s *Service) FinishProcessing(ctx context.Context, id int64) (entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.FinishProcessing", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	order, ok := s.registry.Get(id)
	if !ok {
		return entity.Order{}, notFound(id)
	}

	s.jobsMu.Lock()
	j := s.jobs[id]
	s.jobsMu.Unlock()

	if j != nil {
		j.cancel()
		select {
		case <-j.done:
		case <-ctx.Done():
			return entity.Order{}, errorbank.Internal("timed out waiting for processing to stop", errorbank.WithCause(ctx.Err()))
		}
		// The job may have processed the order before it observed the cancel.
		order, _ = s.registry.Get(id)
	}
	return order, nil
}

// Close cancels every processing job and waits for them to release.
func (s *Service) Close(ctx context.Context) error {
	s.jobsMu.Lock()
	s.closed = true
	s.jobsMu.Unlock()
	s.stopAll()

	done := make(chan struct{})
	go func() {
		s.jobsWG.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) runJob(ctx context.Context, id int64, lease *guard.Lease, j *job) {
	defer s.jobsWG.Done()
	defer close(j.done)
	defer s.forgetJob(id, j)
	defer lease.Release()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("order processing job panicked", zap.Int64("id", id), zap.Any("panic", r))
		}
	}()

	timer := time.NewTimer(s.holdDuration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		s.logger.Info("order processing cancelled", zap.Int64("id", id))
		return
	case <-timer.C:
	}

	// Past the hold the job commits; a late cancel must not abort the save.
	if _, err := s.ProcessOrder(context.WithoutCancel(ctx), id); err != nil {
		s.logger.Warn("order processing failed", zap.Int64("id", id), zap.Error(err))
		return
	}
	s.logger.Info("order processing finished", zap.Int64("id", id))
}

func (s *Service) forgetJob(id int64, j *job) {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	if s.jobs[id] == j {
		delete(s.jobs, id)
	}
	j.cancel()
}

