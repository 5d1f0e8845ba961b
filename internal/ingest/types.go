// Package ingest implements the traffic ingestion pipeline: fetching
// per-domain series from the analytics provider, joining them into rows, and
// loading the result into the warehouse.
package ingest

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
)

// Source identifies the analytics provider on every stored row.
const Source = "similarweb"

// ErrMissingAPIKey is returned when a run is triggered without a configured
// provider credential. It is checked before any network activity.
var ErrMissingAPIKey = errors.New("similarweb api key is not configured")

// Row is one observation of a domain's traffic for a single date bucket.
// Field tags match the destination table schema.
type Row struct {
	Domain           string               `bigquery:"domain"`
	Date             civil.Date           `bigquery:"date"`
	Visits           bigquery.NullFloat64 `bigquery:"visits"`
	AvgVisitDuration bigquery.NullFloat64 `bigquery:"avg_visit_duration"`
	PagesPerVisit    bigquery.NullFloat64 `bigquery:"pages_per_visit"`
	BounceRate       bigquery.NullFloat64 `bigquery:"bounce_rate"`
	Source           string               `bigquery:"source"`
	IngestedAt       time.Time            `bigquery:"ingested_at"`
}

// RunResult summarizes a completed run.
type RunResult struct {
	RunID       string    `json:"run_id"`
	Inserted    int       `json:"inserted"`
	Domains     []string  `json:"domains"`
	StartPeriod string    `json:"start_period"`
	EndPeriod   string    `json:"end_period"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

// RunRecord is what the history store persists, covering failed runs too.
type RunRecord struct {
	RunResult
	Status    string
	ErrorText string
}

// Warehouse provisions the destination table and performs bulk loads.
type Warehouse interface {
	EnsureTable(ctx context.Context) error
	InsertRows(ctx context.Context, rows []Row) error
}

// Archiver persists raw provider payloads. Implementations must tolerate
// being called on every fetch; failures are logged, never fatal.
type Archiver interface {
	Save(ctx context.Context, objectName, contentType string, data []byte) (string, error)
}

// Notifier announces completed runs to downstream consumers.
type Notifier interface {
	Publish(ctx context.Context, result RunResult) error
}

// HistoryStore records run outcomes.
type HistoryStore interface {
	RecordRun(ctx context.Context, rec RunRecord) error
}

// Clock abstracts time.Now for deterministic tests.
type Clock interface {
	Now() time.Time
}

// IDGenerator mints run identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

func nullFloat(v *float64) bigquery.NullFloat64 {
	if v == nil {
		return bigquery.NullFloat64{}
	}
	return bigquery.NullFloat64{Float64: *v, Valid: true}
}
