package history

import (
	"context"

	"github.com/mktgdata/similarweb-ingest/internal/ingest"
)

// NoopStore drops run records. Used when no history database is configured.
type NoopStore struct{}

// RecordRun does nothing.
func (NoopStore) RecordRun(_ context.Context, _ ingest.RunRecord) error { return nil }

// Close does nothing.
func (NoopStore) Close() {}
