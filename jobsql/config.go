package jobsql

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultPollInterval = 500 * time.Millisecond
	DefaultQueryTimeout = 5 * time.Minute

	// MaxIOFailureRetries is how many consecutive transport failures a poll
	// loop absorbs before the execution fails.
	MaxIOFailureRetries = 3
)

// Config holds connection-level defaults. Statements copy it when they are
// created and may override the timeout, poll interval and result mode.
type Config struct {
	ProjectID      string
	Dataset        *DatasetRef
	UseLegacySQL   bool
	MaxBytesBilled int64
	EncryptionKey  string

	PollInterval time.Duration // default DefaultPollInterval
	QueryTimeout time.Duration // default DefaultQueryTimeout
	ResultMode   ResultMode

	// Location is the zone TIME and DATETIME values are resolved in (default UTC).
	Location *time.Location
	Logger   *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.QueryTimeout == 0 {
		c.QueryTimeout = DefaultQueryTimeout
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Validate checks that the configuration is internally consistent.
func (c Config) Validate() error {
	if c.PollInterval < 0 {
		return fmt.Errorf("poll interval must be positive, got %s", c.PollInterval)
	}
	if c.QueryTimeout < 0 {
		return fmt.Errorf("query timeout must be positive, got %s", c.QueryTimeout)
	}
	if c.MaxBytesBilled < 0 {
		return fmt.Errorf("max bytes billed must not be negative, got %d", c.MaxBytesBilled)
	}
	if c.Dataset != nil && c.Dataset.DatasetID == "" {
		return fmt.Errorf("dataset reference requires a dataset id")
	}
	if c.ResultMode != ForwardOnly && c.ResultMode != Scrollable {
		return fmt.Errorf("unknown result mode %d", c.ResultMode)
	}
	return nil
}

func (c Config) submitRequest(sql string) SubmitRequest {
	return SubmitRequest{
		ProjectID:      c.ProjectID,
		SQL:            sql,
		Dataset:        c.Dataset,
		UseLegacySQL:   c.UseLegacySQL,
		MaxBytesBilled: c.MaxBytesBilled,
		EncryptionKey:  c.EncryptionKey,
	}
}

// ParseDatasetRef parses "dataset" or "project.dataset".
func ParseDatasetRef(s, defaultProject string) (*DatasetRef, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	project, dataset, ok := strings.Cut(s, ".")
	if !ok {
		return &DatasetRef{ProjectID: defaultProject, DatasetID: s}, nil
	}
	if project == "" || dataset == "" || strings.Contains(dataset, ".") {
		return nil, fmt.Errorf("invalid dataset reference %q", s)
	}
	return &DatasetRef{ProjectID: project, DatasetID: dataset}, nil
}

// LoadConfigFromEnv reads JOBSQL_* environment variables. Durations are
// whole milliseconds.
func LoadConfigFromEnv() (Config, error) {
	cfg := Config{
		ProjectID:     os.Getenv("JOBSQL_PROJECT"),
		EncryptionKey: os.Getenv("JOBSQL_KMS_KEY"),
	}

	var err error
	if cfg.Dataset, err = ParseDatasetRef(os.Getenv("JOBSQL_DATASET"), cfg.ProjectID); err != nil {
		return Config{}, err
	}
	if v := os.Getenv("JOBSQL_LEGACY_SQL"); v != "" {
		if cfg.UseLegacySQL, err = strconv.ParseBool(v); err != nil {
			return Config{}, fmt.Errorf("invalid JOBSQL_LEGACY_SQL: %w", err)
		}
	}
	if v := os.Getenv("JOBSQL_MAX_BYTES_BILLED"); v != "" {
		if cfg.MaxBytesBilled, err = strconv.ParseInt(v, 10, 64); err != nil {
			return Config{}, fmt.Errorf("invalid JOBSQL_MAX_BYTES_BILLED: %w", err)
		}
	}
	if cfg.PollInterval, err = envMillis("JOBSQL_POLL_INTERVAL_MS"); err != nil {
		return Config{}, err
	}
	if cfg.QueryTimeout, err = envMillis("JOBSQL_QUERY_TIMEOUT_MS"); err != nil {
		return Config{}, err
	}
	if cfg.ResultMode, err = ParseResultMode(os.Getenv("JOBSQL_RESULT_MODE")); err != nil {
		return Config{}, err
	}
	if v := os.Getenv("JOBSQL_TIMEZONE"); v != "" {
		if cfg.Location, err = time.LoadLocation(v); err != nil {
			return Config{}, fmt.Errorf("invalid JOBSQL_TIMEZONE: %w", err)
		}
	}
	return cfg, cfg.Validate()
}

func envMillis(key string) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, nil
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil || ms <= 0 {
		return 0, fmt.Errorf("invalid %s: %q is not a positive number of milliseconds", key, v)
	}
	return time.Duration(ms) * time.Millisecond, nil
}
