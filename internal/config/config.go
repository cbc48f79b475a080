// Package config loads the doccontrol HCL configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/zclconf/go-cty/cty"

	"github.com/hashicorp-forge/doccontrol/pkg/storage/s3"
)

// Config is the root configuration.
type Config struct {
	// LogLevel is one of trace, debug, info, warn or error.
	LogLevel string `hcl:"log_level,optional"`

	Postgres       *Postgres       `hcl:"postgres,block"`
	ControlNumbers *ControlNumbers `hcl:"control_numbers,block"`
	Review         *Review         `hcl:"review,block"`
	Acknowledgment *Acknowledgment `hcl:"acknowledgment,block"`
	Archive        *Archive        `hcl:"archive,block"`
	Evidence       *Evidence       `hcl:"evidence,block"`
	Reindex        *Reindex        `hcl:"reindex,block"`
	Storage        *Storage        `hcl:"storage,block"`
	Search         *Search         `hcl:"search,block"`
	Notifications  *Notifications  `hcl:"notifications,block"`
}

// Postgres configures the database connection.
type Postgres struct {
	Host     string `hcl:"host"`
	Port     int    `hcl:"port,optional"`
	User     string `hcl:"user,optional"`
	Password string `hcl:"password,optional"`
	DBName   string `hcl:"dbname"`
	SSLMode  string `hcl:"sslmode,optional"`

	MaxOpenConns int `hcl:"max_open_conns,optional"`
	MaxIdleConns int `hcl:"max_idle_conns,optional"`
}

// ControlNumbers configures control-number formatting.
type ControlNumbers struct {
	SequenceWidth int `hcl:"sequence_width,optional"`
}

// Review configures the review scheduler.
type Review struct {
	DueSoonDays int `hcl:"due_soon_days,optional"`
}

// Acknowledgment configures acknowledgment tracking.
type Acknowledgment struct {
	DueDays int `hcl:"due_days,optional"`
}

// Archive configures retention.
type Archive struct {
	RetentionYears int `hcl:"retention_years,optional"`
}

// Evidence configures the audit-evidence linker.
type Evidence struct {
	// TablesFile replaces the built-in element tables with a YAML file.
	TablesFile    string `hcl:"tables_file,optional"`
	MinConfidence int    `hcl:"min_confidence,optional"`
}

// Reindex configures the reindex pipeline.
type Reindex struct {
	// Delay between documents, as a Go duration string.
	Delay          string `hcl:"delay,optional"`
	MaxFileSize    int64  `hcl:"max_file_size,optional"`
	MaxContentSize int    `hcl:"max_content_size,optional"`
	MaxTags        int    `hcl:"max_tags,optional"`

	Tika *Tika `hcl:"tika,block"`
}

// DelayDuration parses Delay.
func (r *Reindex) DelayDuration() (time.Duration, error) {
	if r.Delay == "" {
		return 0, nil
	}
	return time.ParseDuration(r.Delay)
}

// Tika configures the Apache Tika extraction server.
type Tika struct {
	URL        string `hcl:"url,optional"`
	Timeout    string `hcl:"timeout,optional"`
	MaxRetries int    `hcl:"max_retries,optional"`
}

// Storage selects the file storage backend. Exactly one block is set.
type Storage struct {
	Local *LocalStorage `hcl:"local,block"`
	S3    *s3.Config    `hcl:"s3,block"`
}

// LocalStorage stores files under a directory.
type LocalStorage struct {
	Dir string `hcl:"dir"`
}

// Search configures the full-text index.
type Search struct {
	Bleve *Bleve `hcl:"bleve,block"`
}

// Bleve configures the embedded bleve index.
type Bleve struct {
	IndexPath string `hcl:"index_path,optional"`
	InMemory  bool   `hcl:"in_memory,optional"`
}

// Notifications configures the Kafka/Redpanda publisher.
type Notifications struct {
	Brokers []string `hcl:"brokers"`
	Topic   string   `hcl:"topic,optional"`

	// ConsumerGroup and Types configure notify-worker.
	ConsumerGroup string   `hcl:"consumer_group,optional"`
	Types         []string `hcl:"types,optional"`
}

// Load decodes the file at path. Expressions may read environment
// variables as env.NAME.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("configuration file path is required")
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", path)
	}

	var cfg Config
	if err := hclsimple.DecodeFile(path, EvalContext(os.Environ()), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file: %w", err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Parse decodes configuration from src. filename selects the syntax by its
// extension (.hcl or .json).
func Parse(filename string, src []byte, environ []string) (*Config, error) {
	var cfg Config
	if err := hclsimple.Decode(filename, src, EvalContext(environ), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// EvalContext exposes environ ("KEY=value" pairs) as the env object.
func EvalContext(environ []string) *hcl.EvalContext {
	vars := make(map[string]cty.Value, len(environ))
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		vars[k] = cty.StringVal(v)
	}
	env := cty.EmptyObjectVal
	if len(vars) > 0 {
		env = cty.ObjectVal(vars)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{"env": env},
	}
}

// SetDefaults fills unset values.
func (c *Config) SetDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Postgres != nil {
		if c.Postgres.Port == 0 {
			c.Postgres.Port = 5432
		}
		if c.Postgres.SSLMode == "" {
			c.Postgres.SSLMode = "disable"
		}
	}
	if c.ControlNumbers == nil {
		c.ControlNumbers = &ControlNumbers{}
	}
	if c.ControlNumbers.SequenceWidth == 0 {
		c.ControlNumbers.SequenceWidth = 4
	}
	if c.Review == nil {
		c.Review = &Review{}
	}
	if c.Review.DueSoonDays == 0 {
		c.Review.DueSoonDays = 30
	}
	if c.Acknowledgment == nil {
		c.Acknowledgment = &Acknowledgment{}
	}
	if c.Acknowledgment.DueDays == 0 {
		c.Acknowledgment.DueDays = 14
	}
	if c.Archive == nil {
		c.Archive = &Archive{}
	}
	if c.Archive.RetentionYears == 0 {
		c.Archive.RetentionYears = 7
	}
	if c.Evidence == nil {
		c.Evidence = &Evidence{}
	}
	if c.Evidence.MinConfidence == 0 {
		c.Evidence.MinConfidence = 50
	}
	if c.Reindex == nil {
		c.Reindex = &Reindex{}
	}
	if c.Reindex.Delay == "" {
		c.Reindex.Delay = "100ms"
	}
	if c.Reindex.MaxFileSize == 0 {
		c.Reindex.MaxFileSize = 50 << 20
	}
	if c.Reindex.MaxTags == 0 {
		c.Reindex.MaxTags = 20
	}
	if t := c.Reindex.Tika; t != nil {
		if t.URL == "" {
			t.URL = "http://localhost:9998"
		}
		if t.Timeout == "" {
			t.Timeout = "2m"
		}
		if t.MaxRetries == 0 {
			t.MaxRetries = 2
		}
	}
	if c.Storage != nil && c.Storage.S3 != nil {
		c.Storage.S3.SetDefaults()
	}
	if n := c.Notifications; n != nil {
		if n.Topic == "" {
			n.Topic = "doccontrol.notifications"
		}
		if n.ConsumerGroup == "" {
			n.ConsumerGroup = "doccontrol-notifiers"
		}
	}
}

// Validate reports every configuration problem.
func (c *Config) Validate() error {
	var result *multierror.Error

	switch strings.ToLower(c.LogLevel) {
	case "trace", "debug", "info", "warn", "error":
	default:
		result = multierror.Append(result, fmt.Errorf("log_level: unknown level %q", c.LogLevel))
	}
	if c.Evidence != nil && (c.Evidence.MinConfidence < 0 || c.Evidence.MinConfidence > 100) {
		result = multierror.Append(result, fmt.Errorf("evidence.min_confidence: must be between 0 and 100"))
	}
	if c.Reindex != nil {
		if d, err := c.Reindex.DelayDuration(); err != nil || d < 0 {
			result = multierror.Append(result, fmt.Errorf("reindex.delay: invalid duration %q", c.Reindex.Delay))
		}
		if t := c.Reindex.Tika; t != nil {
			if _, err := time.ParseDuration(t.Timeout); err != nil {
				result = multierror.Append(result, fmt.Errorf("reindex.tika.timeout: invalid duration %q", t.Timeout))
			}
		}
	}
	if s := c.Storage; s != nil {
		if (s.Local == nil) == (s.S3 == nil) {
			result = multierror.Append(result, errors.New("storage: exactly one of local or s3 must be configured"))
		}
		if s.S3 != nil {
			if err := s.S3.Validate(); err != nil {
				result = multierror.Append(result, fmt.Errorf("storage.s3: %w", err))
			}
		}
	}
	if n := c.Notifications; n != nil && len(n.Brokers) == 0 {
		result = multierror.Append(result, errors.New("notifications.brokers: at least one broker is required"))
	}

	return result.ErrorOrNil()
}
