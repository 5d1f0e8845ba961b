package warehouse

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"

	"github.com/mktgdata/similarweb-ingest/internal/ingest"
)

func testConfig() Config {
	return Config{
		ProjectID: "proj",
		Dataset:   "marketing",
		Table:     "similarweb_traffic",
	}
}

func TestEnsureTableExistingTableIsIdempotent(t *testing.T) {
	t.Parallel()

	ds := &fakeDataset{}
	tbl := &fakeTable{md: &bigquery.TableMetadata{}}
	client := newTestClient(t, ds, tbl, &fakeInserter{})

	require.NoError(t, client.EnsureTable(context.Background()))
	require.NoError(t, client.EnsureTable(context.Background()))

	require.Equal(t, 2, tbl.metadataCalls)
	require.Zero(t, ds.createCalls)
	require.Zero(t, tbl.createCalls)
}

func TestEnsureTableCreatesOnNotFound(t *testing.T) {
	t.Parallel()

	ds := &fakeDataset{}
	tbl := &fakeTable{mdErr: &googleapi.Error{Code: http.StatusNotFound}}
	client := newTestClient(t, ds, tbl, &fakeInserter{})

	require.NoError(t, client.EnsureTable(context.Background()))
	require.Equal(t, 1, ds.createCalls)
	require.Equal(t, 1, tbl.createCalls)

	md := tbl.created
	require.NotNil(t, md)
	require.NotNil(t, md.TimePartitioning)
	require.Equal(t, "date", md.TimePartitioning.Field)
	require.Equal(t, bigquery.DayPartitioningType, md.TimePartitioning.Type)
	require.NotNil(t, md.Clustering)
	require.Equal(t, []string{"domain"}, md.Clustering.Fields)

	names := make([]string, 0, len(md.Schema))
	for _, f := range md.Schema {
		names = append(names, f.Name)
	}
	require.Equal(t, []string{
		"domain", "date", "visits", "avg_visit_duration",
		"pages_per_visit", "bounce_rate", "source", "ingested_at",
	}, names)
	require.True(t, md.Schema[0].Required)
	require.True(t, md.Schema[1].Required)
	require.False(t, md.Schema[2].Required)
}

func TestEnsureTableToleratesConcurrentCreation(t *testing.T) {
	t.Parallel()

	ds := &fakeDataset{createErr: &googleapi.Error{Code: http.StatusConflict}}
	tbl := &fakeTable{
		mdErr:     &googleapi.Error{Code: http.StatusNotFound},
		createErr: &googleapi.Error{Code: http.StatusConflict},
	}
	client := newTestClient(t, ds, tbl, &fakeInserter{})

	require.NoError(t, client.EnsureTable(context.Background()))
}

func TestEnsureTableLookupFailurePropagatesWithoutCreating(t *testing.T) {
	t.Parallel()

	ds := &fakeDataset{}
	tbl := &fakeTable{mdErr: &googleapi.Error{Code: http.StatusForbidden, Message: "permission denied"}}
	client := newTestClient(t, ds, tbl, &fakeInserter{})

	err := client.EnsureTable(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "lookup table proj.marketing.similarweb_traffic")
	require.Zero(t, ds.createCalls)
	require.Zero(t, tbl.createCalls)
}

func TestEnsureTableCreateFailureIsFatal(t *testing.T) {
	t.Parallel()

	ds := &fakeDataset{createErr: &googleapi.Error{Code: http.StatusForbidden}}
	tbl := &fakeTable{mdErr: &googleapi.Error{Code: http.StatusNotFound}}
	client := newTestClient(t, ds, tbl, &fakeInserter{})

	err := client.EnsureTable(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "create dataset")
}

func TestInsertRowsEmptyIsNoOp(t *testing.T) {
	t.Parallel()

	ins := &fakeInserter{}
	client := newTestClient(t, &fakeDataset{}, &fakeTable{}, ins)

	require.NoError(t, client.InsertRows(context.Background(), nil))
	require.NoError(t, client.InsertRows(context.Background(), []ingest.Row{}))
	require.Zero(t, ins.putCalls)
}

func TestInsertRowsBulkLoad(t *testing.T) {
	t.Parallel()

	ins := &fakeInserter{}
	client := newTestClient(t, &fakeDataset{}, &fakeTable{}, ins)

	rows := []ingest.Row{
		{
			Domain:     "a.com",
			Date:       civil.Date{Year: 2024, Month: 1, Day: 1},
			Visits:     bigquery.NullFloat64{Float64: 100, Valid: true},
			Source:     ingest.Source,
			IngestedAt: time.Unix(1700000000, 0).UTC(),
		},
	}
	require.NoError(t, client.InsertRows(context.Background(), rows))
	require.Equal(t, 1, ins.putCalls)

	got, ok := ins.lastSrc.([]ingest.Row)
	require.True(t, ok)
	require.Len(t, got, 1)
	require.Equal(t, "a.com", got[0].Domain)
}

func TestInsertRowsSurfacesPutMultiError(t *testing.T) {
	t.Parallel()

	ins := &fakeInserter{putErr: bigquery.PutMultiError{
		bigquery.RowInsertionError{RowIndex: 0},
	}}
	client := newTestClient(t, &fakeDataset{}, &fakeTable{}, ins)

	err := client.InsertRows(context.Background(), []ingest.Row{{Domain: "a.com"}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "rows rejected")

	var multi bigquery.PutMultiError
	require.ErrorAs(t, err, &multi)
}

func TestInsertRowsGenericErrorWrapped(t *testing.T) {
	t.Parallel()

	ins := &fakeInserter{putErr: errors.New("connection reset")}
	client := newTestClient(t, &fakeDataset{}, &fakeTable{}, ins)

	err := client.InsertRows(context.Background(), []ingest.Row{{Domain: "a.com"}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "insert 1 rows into proj.marketing.similarweb_traffic")
}

func TestNewWithHandlesRequiresHandles(t *testing.T) {
	t.Parallel()

	_, err := NewWithHandles(testConfig(), nil, &fakeTable{}, &fakeInserter{}, zap.NewNop())
	require.Error(t, err)
}

// --- helpers/fakes ---

func newTestClient(t *testing.T, ds *fakeDataset, tbl *fakeTable, ins *fakeInserter) *Client {
	t.Helper()
	client, err := NewWithHandles(testConfig(), ds, tbl, ins, zap.NewNop())
	require.NoError(t, err)
	return client
}

type fakeDataset struct {
	createErr   error
	createCalls int
	created     *bigquery.DatasetMetadata
}

func (d *fakeDataset) Create(_ context.Context, md *bigquery.DatasetMetadata) error {
	d.createCalls++
	d.created = md
	return d.createErr
}

type fakeTable struct {
	md            *bigquery.TableMetadata
	mdErr         error
	createErr     error
	metadataCalls int
	createCalls   int
	created       *bigquery.TableMetadata
}

func (t *fakeTable) Metadata(_ context.Context, _ ...bigquery.TableMetadataOption) (*bigquery.TableMetadata, error) {
	t.metadataCalls++
	if t.mdErr != nil {
		return nil, t.mdErr
	}
	return t.md, nil
}

func (t *fakeTable) Create(_ context.Context, md *bigquery.TableMetadata) error {
	t.createCalls++
	t.created = md
	return t.createErr
}

type fakeInserter struct {
	putErr   error
	putCalls int
	lastSrc  any
}

func (i *fakeInserter) Put(_ context.Context, src any) error {
	i.putCalls++
	i.lastSrc = src
	return i.putErr
}
