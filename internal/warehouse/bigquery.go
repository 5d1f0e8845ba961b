// Package warehouse provisions and loads the destination BigQuery table.
package warehouse

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"cloud.google.com/go/bigquery"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"

	"github.com/mktgdata/similarweb-ingest/internal/ingest"
)

// Config identifies the destination table.
type Config struct {
	ProjectID string
	Dataset   string
	Table     string
	Location  string
}

// TableID returns the fully qualified destination identifier.
func (c Config) TableID() string {
	return fmt.Sprintf("%s.%s.%s", c.ProjectID, c.Dataset, c.Table)
}

type datasetHandle interface {
	Create(ctx context.Context, md *bigquery.DatasetMetadata) error
}

type tableHandle interface {
	Metadata(ctx context.Context, opts ...bigquery.TableMetadataOption) (*bigquery.TableMetadata, error)
	Create(ctx context.Context, tm *bigquery.TableMetadata) error
}

type rowInserter interface {
	Put(ctx context.Context, src any) error
}

// Client implements ingest.Warehouse against BigQuery.
type Client struct {
	cfg      Config
	dataset  datasetHandle
	table    tableHandle
	inserter rowInserter
	logger   *zap.Logger
}

// New creates a Client using Application Default Credentials.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Client, error) {
	bq, err := bigquery.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create bigquery client: %w", err)
	}
	ds := bq.Dataset(cfg.Dataset)
	tbl := ds.Table(cfg.Table)
	return NewWithHandles(cfg, ds, tbl, tbl.Inserter(), logger)
}

// NewWithHandles constructs a Client from existing handles (primarily for
// testing).
func NewWithHandles(cfg Config, dataset datasetHandle, table tableHandle, inserter rowInserter, logger *zap.Logger) (*Client, error) {
	if dataset == nil || table == nil || inserter == nil {
		return nil, fmt.Errorf("dataset, table and inserter handles are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:      cfg,
		dataset:  dataset,
		table:    table,
		inserter: inserter,
		logger:   logger,
	}, nil
}

// tableSchema is the fixed destination schema. domain and date are required;
// everything else is nullable.
func tableSchema() bigquery.Schema {
	return bigquery.Schema{
		{Name: "domain", Type: bigquery.StringFieldType, Required: true},
		{Name: "date", Type: bigquery.DateFieldType, Required: true},
		{Name: "visits", Type: bigquery.FloatFieldType},
		{Name: "avg_visit_duration", Type: bigquery.FloatFieldType},
		{Name: "pages_per_visit", Type: bigquery.FloatFieldType},
		{Name: "bounce_rate", Type: bigquery.FloatFieldType},
		{Name: "source", Type: bigquery.StringFieldType},
		{Name: "ingested_at", Type: bigquery.TimestampFieldType},
	}
}

// EnsureTable guarantees the destination dataset and table exist, partitioned
// by date and clustered by domain. Only a genuine "not found" lookup result
// triggers creation; other lookup failures (permissions, transport) propagate
// so they are not masked by redundant create attempts.
func (c *Client) EnsureTable(ctx context.Context) error {
	_, err := c.table.Metadata(ctx)
	if err == nil {
		return nil
	}
	if !hasStatus(err, http.StatusNotFound) {
		return fmt.Errorf("lookup table %s: %w", c.cfg.TableID(), err)
	}

	c.logger.Info("destination table absent, creating", zap.String("table", c.cfg.TableID()))
	dsMD := &bigquery.DatasetMetadata{Location: c.cfg.Location}
	if err := c.dataset.Create(ctx, dsMD); err != nil && !hasStatus(err, http.StatusConflict) {
		return fmt.Errorf("create dataset %s: %w", c.cfg.Dataset, err)
	}

	tblMD := &bigquery.TableMetadata{
		Schema: tableSchema(),
		TimePartitioning: &bigquery.TimePartitioning{
			Type:  bigquery.DayPartitioningType,
			Field: "date",
		},
		Clustering: &bigquery.Clustering{Fields: []string{"domain"}},
	}
	if err := c.table.Create(ctx, tblMD); err != nil && !hasStatus(err, http.StatusConflict) {
		return fmt.Errorf("create table %s: %w", c.cfg.TableID(), err)
	}
	return nil
}

// InsertRows appends all rows in one streaming insert. Empty input is a
// no-op. Per-row insertion errors fail the whole call with the raw details.
func (c *Client) InsertRows(ctx context.Context, rows []ingest.Row) error {
	if len(rows) == 0 {
		return nil
	}
	if err := c.inserter.Put(ctx, rows); err != nil {
		var multi bigquery.PutMultiError
		if errors.As(err, &multi) {
			return fmt.Errorf("insert %d rows into %s: %d rows rejected: %w",
				len(rows), c.cfg.TableID(), len(multi), err)
		}
		return fmt.Errorf("insert %d rows into %s: %w", len(rows), c.cfg.TableID(), err)
	}
	c.logger.Debug("rows inserted", zap.Int("count", len(rows)), zap.String("table", c.cfg.TableID()))
	return nil
}

func hasStatus(err error, code int) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == code
}
