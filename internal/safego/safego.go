// Package safego provides a panic-recovering goroutine launcher for background work.
package safego

import (
	"log/slog"
	"runtime/debug"

	"github.com/vivadrive/organization-api/internal/telemetry"
)

// Go launches fn in a new goroutine. If fn panics, the panic is recovered,
// logged with its stack and counted under name in goroutine_panics_total.
// Use it for every fire-and-forget goroutine (metrics server, pool sampler,
// audit shipping) so a panic cannot take the process down.
func Go(name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				telemetry.GoroutinePanicsTotal.WithLabelValues(name).Inc()
				slog.Error("recovered panic in background goroutine",
					"goroutine", name, "panic", r, "stack", string(debug.Stack()))
			}
		}()
		fn()
	}()
}
