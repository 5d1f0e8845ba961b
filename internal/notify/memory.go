package notify

import (
	"context"
	"sync"

	"github.com/mktgdata/similarweb-ingest/internal/ingest"
)

// MemoryPublisher records published run summaries in memory. Used in tests
// and local development.
type MemoryPublisher struct {
	mu        sync.Mutex
	published []ingest.RunResult
}

// NewMemory creates an empty MemoryPublisher.
func NewMemory() *MemoryPublisher {
	return &MemoryPublisher{}
}

// Publish appends the summary to the in-memory log.
func (m *MemoryPublisher) Publish(_ context.Context, result ingest.RunResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, result)
	return nil
}

// Published returns a copy of everything published so far.
func (m *MemoryPublisher) Published() []ingest.RunResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ingest.RunResult, len(m.published))
	copy(out, m.published)
	return out
}

// Close is a no-op.
func (m *MemoryPublisher) Close() error { return nil }
