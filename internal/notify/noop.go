package notify

import (
	"context"

	"github.com/mktgdata/similarweb-ingest/internal/ingest"
)

// NoopPublisher drops run summaries. Used when no topic is configured.
type NoopPublisher struct{}

// Publish does nothing.
func (NoopPublisher) Publish(_ context.Context, _ ingest.RunResult) error { return nil }

// Close does nothing.
func (NoopPublisher) Close() error { return nil }
