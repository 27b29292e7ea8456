package http

import (
	"go.uber.org/fx"

	ordertransport "github.com/Additional-Code/orderdesk/internal/transport/http/order"
)

// Module aggregates the HTTP handlers mounted under /api.
var Module = fx.Options(
	ordertransport.Module,
)
