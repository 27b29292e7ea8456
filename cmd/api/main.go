// Command api serves the order HTTP and gRPC endpoints until interrupted.
package main

import (
	"go.uber.org/fx"

	"github.com/Additional-Code/orderdesk/internal/app"
)

func main() {
	fx.New(app.HTTP, app.EventLogger).Run()
}
