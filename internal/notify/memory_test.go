package notify

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mktgdata/similarweb-ingest/internal/ingest"
)

func TestMemoryPublisherRecordsResults(t *testing.T) {
	t.Parallel()

	pub := NewMemory()
	require.NoError(t, pub.Publish(context.Background(), ingest.RunResult{RunID: "run-1", Inserted: 3}))
	require.NoError(t, pub.Publish(context.Background(), ingest.RunResult{RunID: "run-2"}))

	got := pub.Published()
	require.Len(t, got, 2)
	require.Equal(t, "run-1", got[0].RunID)
	require.Equal(t, 3, got[0].Inserted)
	require.Equal(t, "run-2", got[1].RunID)

	// Published returns a copy.
	got[0].RunID = "mutated"
	require.Equal(t, "run-1", pub.Published()[0].RunID)

	require.NoError(t, pub.Close())
}

func TestMemoryPublisherConcurrentPublish(t *testing.T) {
	t.Parallel()

	pub := NewMemory()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = pub.Publish(context.Background(), ingest.RunResult{RunID: "run"})
		}()
	}
	wg.Wait()
	require.Len(t, pub.Published(), 20)
}
