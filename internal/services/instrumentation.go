package services

import (
	"context"
	"errors"

	"github.com/stwalsh4118/canopy/internal/events"
	"github.com/stwalsh4118/canopy/internal/logger"
	"github.com/stwalsh4118/canopy/internal/metrics"
	"github.com/stwalsh4118/canopy/internal/models"
	"github.com/stwalsh4118/canopy/internal/render"
)

// Instrumentation bundles the logger, metrics and event publisher shared by
// the services. Metrics and Events may be nil.
type Instrumentation struct {
	Log     *logger.Logger
	Metrics *metrics.Metrics
	Events  events.Publisher
}

func (in Instrumentation) logger(component string) *logger.Logger {
	if in.Log == nil {
		return logger.Nop().WithComponent(component)
	}
	return in.Log.WithComponent(component)
}

// publish delivers e. Publishing is best effort: a failure is logged and
// counted but never fails the operation that produced the event.
func (in Instrumentation) publish(ctx context.Context, log *logger.Logger, e events.Event) {
	if in.Events == nil {
		return
	}
	if err := in.Events.Publish(ctx, e); err != nil {
		in.Metrics.IncEventsDropped()
		log.Warn("Failed to publish event", map[string]interface{}{
			"event_type": string(e.Type),
			"event_id":   e.ID,
			"error":      err.Error(),
		})
	}
}

// isCancellation reports whether err comes from a cancelled or expired
// context. Such units are interrupted, not failed.
func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// errorType classifies err for the failures metric.
func errorType(err error) string {
	switch {
	case errors.Is(err, models.ErrInvalidRaster):
		return "invalid_raster"
	case errors.Is(err, models.ErrInvalidGeometry):
		return "invalid_geometry"
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	case errors.Is(err, render.ErrUnknownStyle):
		return "unknown_style"
	default:
		return "internal"
	}
}
