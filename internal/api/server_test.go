package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mktgdata/similarweb-ingest/internal/config"
	"github.com/mktgdata/similarweb-ingest/internal/ingest"
	"github.com/mktgdata/similarweb-ingest/internal/similarweb"
)

func testServerConfig() config.Config {
	return config.Config{
		Warehouse: config.WarehouseConfig{
			ProjectID: "proj",
			Dataset:   "marketing",
			Table:     "similarweb_traffic",
		},
		Ingest: config.IngestConfig{Domains: "a.com,b.com"},
	}
}

func TestStatusEndpoint(t *testing.T) {
	t.Parallel()

	srv := NewServer(&fakeRunner{}, testServerConfig(), zap.NewNop())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body struct {
		Status      string   `json:"status"`
		Domains     []string `json:"domains"`
		Destination string   `json:"destination"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "ok", body.Status)
	require.Equal(t, []string{"a.com", "b.com"}, body.Domains)
	require.Equal(t, "proj.marketing.similarweb_traffic", body.Destination)
}

func TestTriggerRunSuccess(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{result: ingest.RunResult{RunID: "run-1", Inserted: 12}}
	srv := NewServer(runner, testServerConfig(), zap.NewNop())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/run", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, runner.calls)

	var body struct {
		RunID    string `json:"run_id"`
		Inserted int    `json:"inserted"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "run-1", body.RunID)
	require.Equal(t, 12, body.Inserted)
}

func TestTriggerRunProviderErrorIsBadGateway(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{err: &similarweb.APIError{
		Domain:     "a.com",
		Endpoint:   "visits",
		StatusCode: http.StatusForbidden,
	}}
	srv := NewServer(runner, testServerConfig(), zap.NewNop())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/run", nil))

	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.Contains(t, rec.Body.String(), "a.com")
}

func TestTriggerRunInternalErrors(t *testing.T) {
	t.Parallel()

	for name, err := range map[string]error{
		"missing api key": ingest.ErrMissingAPIKey,
		"load failure":    errors.New("load rows: connection reset"),
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			srv := NewServer(&fakeRunner{err: err}, testServerConfig(), zap.NewNop())
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/run", nil))
			require.Equal(t, http.StatusInternalServerError, rec.Code)
		})
	}
}

func TestRequestIDHeaderIsSet(t *testing.T) {
	t.Parallel()

	srv := NewServer(&fakeRunner{}, testServerConfig(), zap.NewNop())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestAPIKeyMiddleware(t *testing.T) {
	t.Parallel()

	cfg := testServerConfig()
	cfg.Server.APIKey = "secret"
	srv := NewServer(&fakeRunner{}, cfg, zap.NewNop())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/run", nil))
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/run", nil)
	req.Header.Set("X-API-Key", "secret")
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/run?api_key=secret", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	srv := NewServer(&fakeRunner{}, testServerConfig(), zap.NewNop())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

// --- helpers/fakes ---

type fakeRunner struct {
	result ingest.RunResult
	err    error
	calls  int
}

func (r *fakeRunner) Run(_ context.Context) (ingest.RunResult, error) {
	r.calls++
	if r.err != nil {
		return ingest.RunResult{}, r.err
	}
	return r.result, nil
}
