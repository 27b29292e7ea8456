package order

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/orderdesk/internal/dto"
	"github.com/Additional-Code/orderdesk/internal/entity"
	"github.com/Additional-Code/orderdesk/internal/presentation/http/response"
	serverhttp "github.com/Additional-Code/orderdesk/internal/server/http"
	service "github.com/Additional-Code/orderdesk/internal/service/order"
	"github.com/Additional-Code/orderdesk/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/orderdesk/transport/http/order")

// Handler exposes order endpoints over HTTP.
type Handler struct {
	svc *service.Service
}

// NewHandler constructs an order Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register mounts the order routes under the API prefix.
func Register(e *echo.Echo, h *Handler) {
	g := e.Group(serverhttp.APIPrefix + "/orders")
	g.POST("", h.create)
	g.GET("", h.list)
	g.POST("/bulk-process", h.bulkProcess)
	g.GET("/:id", h.get)
	g.PATCH("/:id", h.update)
	g.PUT("/:id", h.update)
	g.POST("/:id/process", h.process)
	g.POST("/:id/calculate", h.calculate)
	g.POST("/:id/start-process", h.startProcess)
	g.POST("/:id/finish-process", h.finishProcess)
	g.POST("/:id/link", h.link)
}

func (h *Handler) create(c echo.Context) error {
	b := response.New(c)

	var payload dto.CreateOrderRequest
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.InvalidInput("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.create")
	defer span.End()

	order, err := h.svc.CreateOrder(ctx, payload.ToItems(), payload.CustomerID)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithStatus(http.StatusCreated).WithData(order).Build()
}

func (h *Handler) list(c echo.Context) error {
	b := response.New(c)

	var query dto.ListOrdersQuery
	if err := (&echo.DefaultBinder{}).BindQueryParams(c, &query); err != nil {
		return b.WithError(errorbank.InvalidInput("invalid query", errorbank.WithCause(err))).Build()
	}

	orders := h.svc.ListOrders(c.Request().Context(), query.Filter())
	return b.WithData(orders).WithMeta("count", len(orders)).Build()
}

func (h *Handler) get(c echo.Context) error {
	return h.withID(c, "orders.get", func(c echo.Context, id int64) error {
		order, err := h.svc.GetOrder(c.Request().Context(), id)
		if err != nil {
			return response.New(c).WithError(err).Build()
		}
		return response.New(c).WithData(order).Build()
	})
}

func (h *Handler) update(c echo.Context) error {
	return h.withID(c, "orders.update", func(c echo.Context, id int64) error {
		b := response.New(c)

		var raw map[string]json.RawMessage
		if err := json.NewDecoder(c.Request().Body).Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
			return b.WithError(errorbank.InvalidInput("invalid payload", errorbank.WithCause(err))).Build()
		}
		patch, err := entity.ParsePatch(raw)
		if err != nil {
			return b.WithError(patchError(err)).Build()
		}

		order, err := h.svc.UpdateOrder(c.Request().Context(), id, patch)
		if err != nil {
			return b.WithError(err).Build()
		}
		return b.WithData(order).Build()
	})
}

func (h *Handler) process(c echo.Context) error {
	return h.withID(c, "orders.process", func(c echo.Context, id int64) error {
		order, err := h.svc.ProcessOrder(c.Request().Context(), id)
		if err != nil {
			return response.New(c).WithError(err).Build()
		}
		return response.New(c).WithData(order).Build()
	})
}

func (h *Handler) calculate(c echo.Context) error {
	return h.withID(c, "orders.calculate", func(c echo.Context, id int64) error {
		order, err := h.svc.CalculateOrder(c.Request().Context(), id)
		if err != nil {
			return response.New(c).WithError(err).Build()
		}
		return response.New(c).WithData(order).Build()
	})
}

func (h *Handler) startProcess(c echo.Context) error {
	return h.withID(c, "orders.startProcess", func(c echo.Context, id int64) error {
		ticket, err := h.svc.StartProcessing(c.Request().Context(), id)
		if err != nil {
			return response.New(c).WithError(err).Build()
		}
		return response.New(c).WithStatus(http.StatusAccepted).WithData(ticket).Build()
	})
}

func (h *Handler) finishProcess(c echo.Context) error {
	return h.withID(c, "orders.finishProcess", func(c echo.Context, id int64) error {
		order, err := h.svc.FinishProcessing(c.Request().Context(), id)
		if err != nil {
			return response.New(c).WithError(err).Build()
		}
		return response.New(c).WithData(order).Build()
	})
}

func (h *Handler) link(c echo.Context) error {
	return h.withID(c, "orders.link", func(c echo.Context, id int64) error {
		b := response.New(c)

		var payload dto.LinkOrderRequest
		if err := c.Bind(&payload); err != nil {
			return b.WithError(errorbank.InvalidInput("invalid payload", errorbank.WithCause(err))).Build()
		}
		if payload.RelatedOrderID <= 0 {
			return b.WithError(errorbank.InvalidInput("relatedOrderId must be a positive integer")).Build()
		}

		order, err := h.svc.LinkOrder(c.Request().Context(), id, payload.RelatedOrderID)
		if err != nil {
			return b.WithError(err).Build()
		}
		return b.WithData(order).Build()
	})
}

func (h *Handler) bulkProcess(c echo.Context) error {
	ctx, span := httpTracer.Start(c.Request().Context(), "orders.bulkProcess")
	defer span.End()

	summary, err := h.svc.BulkProcess(ctx)
	if err != nil {
		return response.New(c).WithError(err).Build()
	}
	return response.New(c).WithData(summary).Build()
}

// withID parses the :id parameter and runs fn inside a span for the route.
func (h *Handler) withID(c echo.Context, spanName string, fn func(echo.Context, int64) error) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return response.New(c).WithError(errorbank.InvalidInput("invalid id", errorbank.WithDetail("id", c.Param("id")))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), spanName, trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	return fn(c, id)
}

func patchError(err error) error {
	var fieldErr *entity.PatchFieldError
	if errors.As(err, &fieldErr) {
		return errorbank.InvalidInput(fieldErr.Error(), errorbank.WithDetail("field", fieldErr.Field))
	}
	return errorbank.InvalidInput(err.Error(), errorbank.WithCause(err))
}
