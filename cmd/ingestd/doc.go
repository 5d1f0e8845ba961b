// Package main hosts the SimilarWeb ingestion service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes status, health, metrics, and the run trigger. POST /run executes one
//     synchronous ingestion pass and returns the run id and inserted row count; provider failures map to 502, all
//     other run failures to 500.
//   - Run pipeline: internal/ingest.Runner provisions the destination table, fetches the visits and engagement
//     series per domain sequentially, joins them by date into rows, and commits everything with a single bulk
//     insert. Rows accumulate in memory across domains, so any fetch failure aborts the run before anything is
//     written.
//   - Provider client: internal/similarweb wraps the total-traffic-and-engagement endpoints. The visits series is
//     authoritative; the engagement series is additive and degrades to null fields when it fails.
//   - Warehouse: internal/warehouse provisions a date-partitioned, domain-clustered BigQuery table on first use and
//     streams rows via the insert API. Provisioning is idempotent and tolerates concurrent creation.
//   - Fanout & bookkeeping: raw provider payloads are optionally archived to GCS, a compact run summary is published
//     to Pub/Sub when a topic is configured, and run outcomes (including failures) are recorded in Postgres. All
//     three are best-effort and never change a run's outcome.
//   - Configuration & plumbing: Viper populates config from env/files under the INGEST_ prefix; zap provides
//     structured logging; Prometheus metrics are exported via the /metrics handler. The service is stateless across
//     requests, suitable for Cloud Run scale-out.
//
// Operational notes:
//   - Concurrency model: one run handles its domains strictly sequentially; concurrent POST /run requests execute
//     independent runs against an append-only table. Shutdown is coordinated via context cancellation from main.
//   - Credentials: the service boots without a SimilarWeb API key and reports the missing credential when a run is
//     triggered, so status and health endpoints stay available for probing.
//   - Observability: zap logs carry run ids and domains at key transitions; Prometheus counters/histograms track
//     run outcomes, inserted rows, provider latencies, and load durations.
//
// Quick checklist:
//   - Configure env vars: INGEST_WAREHOUSE_PROJECT_ID, INGEST_SIMILARWEB_API_KEY, INGEST_INGEST_DOMAINS, plus
//     archive (INGEST_ARCHIVE_*), notify (INGEST_NOTIFY_*), and history (INGEST_HISTORY_*) when those backends are
//     enabled.
//   - Run locally: go run ./cmd/ingestd -config config.yaml (or rely solely on env overrides).
//   - Cloud Run: container listens on the configured port, remains stateless across requests, and shuts down
//     cleanly on SIGTERM.
package main
