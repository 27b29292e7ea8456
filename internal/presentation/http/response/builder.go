package response

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Additional-Code/orderdesk/pkg/errorbank"
)

// Builder assembles the {success, data|error, meta} envelope.
type Builder struct {
	ctx    echo.Context
	status int
	data   any
	err    error
	meta   map[string]any
}

type successBody struct {
	Success bool           `json:"success"`
	Data    any            `json:"data"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// ErrorBody is the error half of the envelope.
type ErrorBody struct {
	Kind    string         `json:"kind"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type failureBody struct {
	Success bool           `json:"success"`
	Error   ErrorBody      `json:"error"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// New instantiates a Builder for the provided request context.
func New(ctx echo.Context) *Builder {
	return &Builder{ctx: ctx, status: http.StatusOK}
}

// WithStatus overrides the response status code.
func (b *Builder) WithStatus(status int) *Builder {
	if status > 0 {
		b.status = status
	}
	return b
}

// WithData attaches a success payload.
func (b *Builder) WithData(data any) *Builder {
	b.data = data
	return b
}

// WithError records an error to be rendered.
func (b *Builder) WithError(err error) *Builder {
	b.err = err
	return b
}

// WithMeta appends auxiliary metadata to the response.
func (b *Builder) WithMeta(key string, value any) *Builder {
	if key == "" {
		return b
	}
	if b.meta == nil {
		b.meta = make(map[string]any)
	}
	b.meta[key] = value
	return b
}

// Build emits the response.
func (b *Builder) Build() error {
	if id := b.ctx.Response().Header().Get(echo.HeaderXRequestID); id != "" {
		b.WithMeta("requestId", id)
	}
	if b.err != nil {
		return b.buildError()
	}
	return b.ctx.JSON(b.status, successBody{Success: true, Data: b.data, Meta: b.meta})
}

func (b *Builder) buildError() error {
	appErr := errorbank.From(b.err)
	status := b.status
	if status < http.StatusBadRequest {
		status = appErr.StatusCode()
	}

	body := failureBody{Meta: b.meta, Error: ErrorBody{
		Kind:    string(appErr.Kind()),
		Message: appErr.Message(),
		Details: appErr.Details(),
	}}
	return b.ctx.JSON(status, body)
}

// ErrorHandler renders errors that escape handlers, including echo's own
// routing errors, in the same envelope.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		err = fromHTTPError(httpErr)
	}
	if buildErr := New(c).WithError(err).Build(); buildErr != nil {
		c.Logger().Error(buildErr)
	}
}

func fromHTTPError(httpErr *echo.HTTPError) *errorbank.AppError {
	message := http.StatusText(httpErr.Code)
	if msg, ok := httpErr.Message.(string); ok && msg != "" {
		message = msg
	}
	switch {
	case httpErr.Code == http.StatusNotFound:
		return errorbank.NotFound(message)
	case httpErr.Code == http.StatusConflict:
		return errorbank.Conflict(message)
	case httpErr.Code == http.StatusServiceUnavailable:
		return errorbank.StoreUnavailable(message)
	case httpErr.Code >= http.StatusBadRequest && httpErr.Code < http.StatusInternalServerError:
		return errorbank.InvalidInput(message, errorbank.WithDetail("status", httpErr.Code))
	default:
		return errorbank.Internal(message, errorbank.WithCause(httpErr))
	}
}
