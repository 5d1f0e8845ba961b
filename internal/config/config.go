// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Warehouse  WarehouseConfig  `mapstructure:"warehouse"`
	Similarweb SimilarwebConfig `mapstructure:"similarweb"`
	Ingest     IngestConfig     `mapstructure:"ingest"`
	Archive    ArchiveConfig    `mapstructure:"archive"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	History    HistoryConfig    `mapstructure:"history"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port   int    `mapstructure:"port"`
	APIKey string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// WarehouseConfig identifies the destination BigQuery table.
type WarehouseConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Dataset   string `mapstructure:"dataset"`
	Table     string `mapstructure:"table"`
	Location  string `mapstructure:"location"`
}

// TableID returns the fully qualified destination identifier.
func (w WarehouseConfig) TableID() string {
	return fmt.Sprintf("%s.%s.%s", w.ProjectID, w.Dataset, w.Table)
}

// SimilarwebConfig controls access to the analytics provider API.
type SimilarwebConfig struct {
	APIKey         string `mapstructure:"api_key"`
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// Timeout converts the configured per-request timeout into a duration.
func (s SimilarwebConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// IngestConfig governs which domains and periods each run covers.
type IngestConfig struct {
	Domains        string `mapstructure:"domains"`
	StartPeriod    string `mapstructure:"start_period"`
	EndPeriod      string `mapstructure:"end_period"`
	Granularity    string `mapstructure:"granularity"`
	MainDomainOnly bool   `mapstructure:"main_domain_only"`
}

// DomainList splits the comma-separated domains value, dropping blanks.
func (i IngestConfig) DomainList() []string {
	parts := strings.Split(i.Domains, ",")
	domains := make([]string, 0, len(parts))
	for _, p := range parts {
		if d := strings.TrimSpace(p); d != "" {
			domains = append(domains, d)
		}
	}
	return domains
}

// EndPeriodOrDefault returns the configured end period, falling back to the
// month containing now.
func (i IngestConfig) EndPeriodOrDefault(now time.Time) string {
	if i.EndPeriod != "" {
		return i.EndPeriod
	}
	return now.UTC().Format("2006-01")
}

// ArchiveConfig selects the raw-response archive backend.
type ArchiveConfig struct {
	Provider  string `mapstructure:"provider"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// NotifyConfig selects the run-completion notification backend.
type NotifyConfig struct {
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// HistoryConfig selects the run history backend.
type HistoryConfig struct {
	Provider string `mapstructure:"provider"`
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("INGEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.api_key", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("warehouse.project_id", "")
	v.SetDefault("warehouse.dataset", "marketing")
	v.SetDefault("warehouse.table", "similarweb_traffic")
	v.SetDefault("warehouse.location", "")
	v.SetDefault("similarweb.api_key", "")
	v.SetDefault("similarweb.base_url", "https://api.similarweb.com/v1")
	v.SetDefault("similarweb.timeout_seconds", 60)
	v.SetDefault("ingest.domains", "example.com")
	v.SetDefault("ingest.start_period", "2024-01")
	v.SetDefault("ingest.end_period", "")
	v.SetDefault("ingest.granularity", "monthly")
	v.SetDefault("ingest.main_domain_only", true)
	v.SetDefault("archive.provider", "noop")
	v.SetDefault("archive.gcs_bucket", "")
	v.SetDefault("archive.prefix", "raw")
	v.SetDefault("notify.provider", "noop")
	v.SetDefault("notify.project_id", "")
	v.SetDefault("notify.topic", "")
	v.SetDefault("history.provider", "noop")
	v.SetDefault("history.dsn", "")
	v.SetDefault("history.table", "ingest_runs")
}

// Validate enforces required values and reasonable limits. The provider API
// key is deliberately not required here: the service boots without it and
// reports the missing credential when a run is triggered.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Warehouse.ProjectID == "" {
		return fmt.Errorf("warehouse.project_id is required")
	}
	if c.Similarweb.TimeoutSeconds <= 0 {
		return fmt.Errorf("similarweb.timeout_seconds must be > 0")
	}
	if len(c.Ingest.DomainList()) == 0 {
		return fmt.Errorf("ingest.domains must list at least one domain")
	}
	if c.Archive.Provider == "gcs" && c.Archive.GCSBucket == "" {
		return fmt.Errorf("archive.gcs_bucket must be set when archive.provider is gcs")
	}
	if c.Notify.Provider == "pubsub" && (c.Notify.ProjectID == "" || c.Notify.Topic == "") {
		return fmt.Errorf("notify.project_id and notify.topic must be set when notify.provider is pubsub")
	}
	if c.History.Provider == "postgres" && c.History.DSN == "" {
		return fmt.Errorf("history.dsn must be set when history.provider is postgres")
	}
	return nil
}
