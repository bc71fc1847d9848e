// Package messaging publishes plot and version update events for downstream
// consumers (the realtime fanout lives in another service).
package messaging

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	updatesExchange     = "plot_updates"
	updatesExchangeType = "fanout"
)

// Event types carried by UpdatePayload.
const (
	EventPlotUpdated    = "plot.updated"
	EventPlotDeleted    = "plot.deleted"
	EventVersionCreated = "version.created"
)

// UpdatePayload is the wire shape of one update event.
type UpdatePayload struct {
	Event     string     `json:"event"`
	ProjectID uuid.UUID  `json:"projectId"`
	PlotID    *uuid.UUID `json:"plotId,omitempty"`
	VersionID *uuid.UUID `json:"versionId,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// UpdatePublisher delivers update events. Delivery is best effort; callers
// log failures and never fail the originating mutation.
type UpdatePublisher interface {
	PublishUpdate(ctx context.Context, payload UpdatePayload) error
	Close() error
}

// Compile-time check
var _ UpdatePublisher = (*NopPublisher)(nil)

// NopPublisher discards events; used when RabbitMQ is not configured and in
// tests.
type NopPublisher struct{}

func (NopPublisher) PublishUpdate(context.Context, UpdatePayload) error { return nil }
func (NopPublisher) Close() error                                       { return nil }
