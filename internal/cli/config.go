package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vjain20/gojobsql/jobsql"
)

// UserConfig represents ~/.jobsql/config.yaml.
type UserConfig struct {
	CurrentProfile string             `yaml:"current-profile"`
	Profiles       map[string]Profile `yaml:"profiles"`
}

// Profile is one named connection: the backend to talk to plus the
// statement defaults used against it.
type Profile struct {
	Backend string `yaml:"backend,omitempty"` // snowflake or bigquery

	// BigQuery
	Project         string `yaml:"project,omitempty"`
	Location        string `yaml:"location,omitempty"`
	CredentialsFile string `yaml:"credentials-file,omitempty"`
	Endpoint        string `yaml:"endpoint,omitempty"`
	PageSize        int64  `yaml:"page-size,omitempty"`

	// Snowflake
	Account        string  `yaml:"account,omitempty"`
	User           string  `yaml:"user,omitempty"`
	PrivateKeyFile string  `yaml:"private-key-file,omitempty"`
	Token          string  `yaml:"token,omitempty"`
	Warehouse      string  `yaml:"warehouse,omitempty"`
	Role           string  `yaml:"role,omitempty"`
	Database       string  `yaml:"database,omitempty"`
	Schema         string  `yaml:"schema,omitempty"`
	BaseURL        string  `yaml:"base-url,omitempty"`
	RequestsPerSec float64 `yaml:"requests-per-second,omitempty"`

	// Statement defaults
	Dataset        string `yaml:"dataset,omitempty"`
	LegacySQL      bool   `yaml:"legacy-sql,omitempty"`
	MaxBytesBilled int64  `yaml:"max-bytes-billed,omitempty"`
	KMSKey         string `yaml:"kms-key,omitempty"`
	PollIntervalMS int64  `yaml:"poll-interval-ms,omitempty"`
	TimeoutMS      int64  `yaml:"timeout-ms,omitempty"`
	ResultMode     string `yaml:"result-mode,omitempty"`
	Timezone       string `yaml:"timezone,omitempty"`
}

// ActiveProfile returns the profile named by override, or the current
// profile. A missing current profile yields an empty one; a missing
// override is an error.
func (c *UserConfig) ActiveProfile(override string) (Profile, error) {
	name := c.CurrentProfile
	if override != "" {
		name = override
	}
	p, ok := c.Profiles[name]
	if !ok && override != "" {
		return Profile{}, fmt.Errorf("profile %q not found", override)
	}
	return p, nil
}

// ConfigPath returns the path to ~/.jobsql/config.yaml.
func ConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".jobsql", "config.yaml")
}

// LoadUserConfig reads the config file at path. A missing file is an empty
// config.
func LoadUserConfig(path string) (*UserConfig, error) {
	cfg := &UserConfig{Profiles: map[string]Profile{}}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Profiles == nil {
		cfg.Profiles = map[string]Profile{}
	}
	return cfg, nil
}

// statementConfig turns the profile's statement defaults into a
// jobsql.Config.
func (p Profile) statementConfig() (jobsql.Config, error) {
	cfg := jobsql.Config{
		ProjectID:      p.Project,
		UseLegacySQL:   p.LegacySQL,
		MaxBytesBilled: p.MaxBytesBilled,
		EncryptionKey:  p.KMSKey,
		PollInterval:   time.Duration(p.PollIntervalMS) * time.Millisecond,
		QueryTimeout:   time.Duration(p.TimeoutMS) * time.Millisecond,
	}

	var err error
	if cfg.Dataset, err = jobsql.ParseDatasetRef(p.Dataset, p.Project); err != nil {
		return jobsql.Config{}, err
	}
	if cfg.ResultMode, err = jobsql.ParseResultMode(p.ResultMode); err != nil {
		return jobsql.Config{}, err
	}
	if p.Timezone != "" {
		if cfg.Location, err = time.LoadLocation(p.Timezone); err != nil {
			return jobsql.Config{}, fmt.Errorf("invalid timezone: %w", err)
		}
	}
	return cfg, cfg.Validate()
}
