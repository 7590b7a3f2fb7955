// Package config loads the YAML configuration shared by the binaries.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	StorageGCS    = "gcs"
	StorageLocal  = "local"
	StorageMemory = "memory"

	DatabaseBigQuery = "bigquery"
	DatabaseSQLite   = "sqlite"
)

// EnvPrefix prefixes every environment override, e.g. PFM_STORAGE_BUCKET.
const EnvPrefix = "PFM_"

// Config represents the top-level configuration file.
type Config struct {
	Log      LogConfig      `yaml:"log"`
	Storage  StorageConfig  `yaml:"storage"`
	Database DatabaseConfig `yaml:"database"`
	Worker   WorkerConfig   `yaml:"worker"`
	Gemini   GeminiConfig   `yaml:"gemini"`
}

// LogConfig controls the zerolog output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "console" or "json"
}

// StorageConfig selects where uploaded files live.
type StorageConfig struct {
	Backend   string `yaml:"backend"`
	Bucket    string `yaml:"bucket,omitempty"`
	Dir       string `yaml:"dir,omitempty"`
	ProjectID string `yaml:"project_id,omitempty"` // creates the bucket when set
}

// DatabaseConfig selects the persistence backend.
type DatabaseConfig struct {
	Backend    string `yaml:"backend"`
	ProjectID  string `yaml:"project_id,omitempty"`
	Dataset    string `yaml:"dataset,omitempty"`
	SQLitePath string `yaml:"sqlite_path,omitempty"`
}

// WorkerConfig controls the job pool and the retry policy.
type WorkerConfig struct {
	Concurrency    int           `yaml:"concurrency"`
	QueueSize      int           `yaml:"queue_size"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	PollBatch      int           `yaml:"poll_batch"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
	MaxAttempts    int           `yaml:"max_attempts"`
	BackoffBase    time.Duration `yaml:"backoff_base"`
}

// GeminiConfig enables model-based parsing for banks without a heuristic
// parser. It is off while Model is empty.
type GeminiConfig struct {
	Model       string   `yaml:"model,omitempty"`
	APIKey      string   `yaml:"api_key,omitempty"`
	ParserTypes []string `yaml:"parser_types,omitempty"`
}

// Default returns a Config that runs locally without any cloud services.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Storage: StorageConfig{
			Backend: StorageLocal,
			Dir:     "data/uploads",
		},
		Database: DatabaseConfig{
			Backend:    DatabaseSQLite,
			Dataset:    "statements",
			SQLitePath: "data/ingest.db",
		},
		Worker: WorkerConfig{
			Concurrency:    4,
			QueueSize:      100,
			PollInterval:   30 * time.Second,
			PollBatch:      100,
			AttemptTimeout: 10 * time.Minute,
			MaxAttempts:    3,
			BackoffBase:    time.Minute,
		},
		Gemini: GeminiConfig{
			ParserTypes: []string{"obank_pdf", "optima_pdf"},
		},
	}
}

// Load reads the file at path over the defaults and applies environment
// overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes a Config to a YAML file.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"LOG_LEVEL":           &c.Log.Level,
		"LOG_FORMAT":          &c.Log.Format,
		"STORAGE_BACKEND":     &c.Storage.Backend,
		"STORAGE_BUCKET":      &c.Storage.Bucket,
		"STORAGE_DIR":         &c.Storage.Dir,
		"STORAGE_PROJECT_ID":  &c.Storage.ProjectID,
		"DATABASE_BACKEND":    &c.Database.Backend,
		"DATABASE_PROJECT_ID": &c.Database.ProjectID,
		"DATABASE_DATASET":    &c.Database.Dataset,
		"DATABASE_SQLITE":     &c.Database.SQLitePath,
		"GEMINI_MODEL":        &c.Gemini.Model,
		"GEMINI_API_KEY":      &c.Gemini.APIKey,
	}
	for name, dst := range strs {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"WORKER_CONCURRENCY":  &c.Worker.Concurrency,
		"WORKER_QUEUE_SIZE":   &c.Worker.QueueSize,
		"WORKER_POLL_BATCH":   &c.Worker.PollBatch,
		"WORKER_MAX_ATTEMPTS": &c.Worker.MaxAttempts,
	}
	for name, dst := range ints {
		if v, ok := lookup(EnvPrefix + name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
			}
			*dst = n
		}
	}

	durations := map[string]*time.Duration{
		"WORKER_POLL_INTERVAL":   &c.Worker.PollInterval,
		"WORKER_ATTEMPT_TIMEOUT": &c.Worker.AttemptTimeout,
		"WORKER_BACKOFF_BASE":    &c.Worker.BackoffBase,
	}
	for name, dst := range durations {
		if v, ok := lookup(EnvPrefix + name); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
			}
			*dst = d
		}
	}

	if v, ok := lookup(EnvPrefix + "GEMINI_PARSER_TYPES"); ok {
		c.Gemini.ParserTypes = splitList(v)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case StorageGCS:
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket is required for the %s backend", StorageGCS)
		}
	case StorageLocal:
		if c.Storage.Dir == "" {
			return fmt.Errorf("storage.dir is required for the %s backend", StorageLocal)
		}
	case StorageMemory:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}

	switch c.Database.Backend {
	case DatabaseBigQuery:
		if c.Database.ProjectID == "" {
			return fmt.Errorf("database.project_id is required for the %s backend", DatabaseBigQuery)
		}
	case DatabaseSQLite:
		if c.Database.SQLitePath == "" {
			return fmt.Errorf("database.sqlite_path is required for the %s backend", DatabaseSQLite)
		}
	default:
		return fmt.Errorf("unknown database backend %q", c.Database.Backend)
	}

	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("worker.concurrency must be positive, got %d", c.Worker.Concurrency)
	}
	if c.Worker.MaxAttempts < 1 {
		return fmt.Errorf("worker.max_attempts must be positive, got %d", c.Worker.MaxAttempts)
	}
	if c.Worker.QueueSize < 0 {
		return fmt.Errorf("worker.queue_size must not be negative, got %d", c.Worker.QueueSize)
	}
	if c.Worker.PollInterval <= 0 {
		return fmt.Errorf("worker.poll_interval must be positive, got %s", c.Worker.PollInterval)
	}
	if c.Worker.AttemptTimeout < 0 || c.Worker.BackoffBase < 0 {
		return fmt.Errorf("worker timeouts must not be negative")
	}
	return nil
}
