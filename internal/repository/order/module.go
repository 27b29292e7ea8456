package order

import "go.uber.org/fx"

// Module provides the in-memory order registry to Fx.
var Module = fx.Provide(func() *Registry { return NewRegistry() })
