package ingest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mktgdata/similarweb-ingest/internal/metrics"
	"github.com/mktgdata/similarweb-ingest/internal/similarweb"
)

// RunnerConfig carries the per-run parameters resolved from configuration.
type RunnerConfig struct {
	APIKey         string
	Domains        []string
	StartPeriod    string
	EndPeriod      string // empty means the current month
	Granularity    string
	MainDomainOnly bool
	Destination    string // project.dataset.table, for status and logs
}

// Runner executes one full ingestion pass: provision, fetch, load.
type Runner struct {
	cfg       RunnerConfig
	fetcher   *Fetcher
	warehouse Warehouse
	notifier  Notifier
	history   HistoryStore
	clock     Clock
	ids       IDGenerator
	logger    *zap.Logger
}

// NewRunner constructs a Runner.
func NewRunner(
	cfg RunnerConfig,
	fetcher *Fetcher,
	warehouse Warehouse,
	notifier Notifier,
	history HistoryStore,
	clock Clock,
	ids IDGenerator,
	logger *zap.Logger,
) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:       cfg,
		fetcher:   fetcher,
		warehouse: warehouse,
		notifier:  notifier,
		history:   history,
		clock:     clock,
		ids:       ids,
		logger:    logger,
	}
}

// Run performs a single sequential ingestion pass. Rows accumulate in memory
// across all domains and are committed with one bulk load, so any fetch
// failure aborts the run before anything is written.
func (r *Runner) Run(ctx context.Context) (RunResult, error) {
	started := r.clock.Now().UTC()
	runID, err := r.ids.NewID()
	if err != nil {
		return RunResult{}, fmt.Errorf("generate run id: %w", err)
	}

	result := RunResult{
		RunID:       runID,
		Domains:     r.cfg.Domains,
		StartPeriod: r.cfg.StartPeriod,
		EndPeriod:   r.cfg.EndPeriod,
		StartedAt:   started,
	}
	if result.EndPeriod == "" {
		result.EndPeriod = started.Format("2006-01")
	}

	if r.cfg.APIKey == "" {
		return result, r.fail(ctx, &result, "config_error", ErrMissingAPIKey)
	}

	if err := r.warehouse.EnsureTable(ctx); err != nil {
		return result, r.fail(ctx, &result, "provision_error", fmt.Errorf("ensure destination table: %w", err))
	}

	params := similarweb.Params{
		StartPeriod:    result.StartPeriod,
		EndPeriod:      result.EndPeriod,
		Granularity:    r.cfg.Granularity,
		MainDomainOnly: r.cfg.MainDomainOnly,
	}

	var rows []Row
	for _, domain := range r.cfg.Domains {
		batch, err := r.fetcher.FetchDomain(ctx, runID, domain, params)
		if err != nil {
			return result, r.fail(ctx, &result, "provider_error", err)
		}
		r.logger.Debug("fetched domain",
			zap.String("run_id", runID),
			zap.String("domain", domain),
			zap.Int("rows", len(batch)),
		)
		rows = append(rows, batch...)
	}

	loadStart := time.Now()
	if err := r.warehouse.InsertRows(ctx, rows); err != nil {
		return result, r.fail(ctx, &result, "load_error", fmt.Errorf("load rows into %s: %w", r.cfg.Destination, err))
	}
	metrics.ObserveWarehouseLoad(time.Since(loadStart))

	result.Inserted = len(rows)
	result.FinishedAt = r.clock.Now().UTC()
	metrics.ObserveRun("succeeded")
	metrics.AddRowsInserted(result.Inserted)
	r.logger.Info("run completed",
		zap.String("run_id", runID),
		zap.Int("inserted", result.Inserted),
		zap.String("destination", r.cfg.Destination),
	)

	r.announce(ctx, result)
	r.record(ctx, RunRecord{RunResult: result, Status: "succeeded"})
	return result, nil
}

// fail stamps the result, records metrics and history, and returns the
// original error for the HTTP shell to map onto a status code.
func (r *Runner) fail(ctx context.Context, result *RunResult, status string, err error) error {
	result.FinishedAt = r.clock.Now().UTC()
	metrics.ObserveRun(status)
	r.logger.Error("run failed",
		zap.String("run_id", result.RunID),
		zap.String("status", status),
		zap.Error(err),
	)
	r.record(ctx, RunRecord{RunResult: *result, Status: status, ErrorText: err.Error()})
	return err
}

// announce and record are best-effort: the run outcome never changes because
// a downstream notification or history write failed.
func (r *Runner) announce(ctx context.Context, result RunResult) {
	if r.notifier == nil {
		return
	}
	if err := r.notifier.Publish(ctx, result); err != nil {
		r.logger.Warn("publish run notification failed",
			zap.String("run_id", result.RunID),
			zap.Error(err),
		)
	}
}

func (r *Runner) record(ctx context.Context, rec RunRecord) {
	if r.history == nil {
		return
	}
	if err := r.history.RecordRun(ctx, rec); err != nil {
		r.logger.Warn("record run history failed",
			zap.String("run_id", rec.RunID),
			zap.Error(err),
		)
	}
}
