// Package notifier carries alert events out of the engine. The engine only
// sees the Sink interface; retry policy and transport live entirely in the
// concrete sinks, and a failed delivery never rolls back alert state.
package notifier

import (
	"context"

	"pulseboard/internal/models"
)

// Sink delivers one alert event to an external target.
type Sink interface {
	// Name identifies the sink in logs and metrics.
	Name() string
	// Send delivers the event. Implementations own their retry policy.
	Send(ctx context.Context, ev models.AlertEvent) error
	// Close releases transport resources.
	Close() error
}
