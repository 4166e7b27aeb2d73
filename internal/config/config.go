package config

import (
	"fmt"
	"time"

	"github.com/devrev/designer/internal/errors"
	"github.com/devrev/designer/internal/model"
	"github.com/devrev/designer/internal/stats"
)

// Config represents the designer configuration
type Config struct {
	CostModel  CostModelConfig  `mapstructure:"cost_model"`
	Stats      StatsConfig      `mapstructure:"stats"`
	Source     SourceConfig     `mapstructure:"source"`
	Evaluation EvaluationConfig `mapstructure:"evaluation"`
	Cluster    ClusterConfig    `mapstructure:"cluster"`
	Server     ServerConfig     `mapstructure:"server"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// CostModelConfig describes the target cluster and how cost terms are weighted
type CostModelConfig struct {
	MaxMemoryBytes  int64   `mapstructure:"max_memory_bytes"`
	SkewIntervals   int     `mapstructure:"skew_intervals"`
	AddressSizeBits int     `mapstructure:"address_size_bits"`
	NodeCount       int     `mapstructure:"node_count"`
	WeightNetwork   float64 `mapstructure:"weight_network"`
	WeightSkew      float64 `mapstructure:"weight_skew"`
	WeightDisk      float64 `mapstructure:"weight_disk"`
	VirtualNodes    int     `mapstructure:"virtual_nodes"`
}

// StatsConfig controls dataset sampling
type StatsConfig struct {
	SampleRate           int     `mapstructure:"sample_rate"`
	Seed                 int64   `mapstructure:"seed"`
	ExactDistinctLimit   int     `mapstructure:"exact_distinct_limit"`
	InterestingThreshold float64 `mapstructure:"interesting_threshold"`
	Parallelism          int     `mapstructure:"parallelism"`
}

// Source kinds
const (
	SourceFile   = "file"
	SourceMongo  = "mongo"
	SourceMemory = "memory"
)

// SourceConfig selects where the trace and dataset samples are read from
type SourceConfig struct {
	Kind         string        `mapstructure:"kind"`
	SessionsFile string        `mapstructure:"sessions_file"`
	DatasetDir   string        `mapstructure:"dataset_dir"`
	Mongo        MongoConfig   `mapstructure:"mongo"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// MongoConfig locates the workload and dataset in MongoDB
type MongoConfig struct {
	URI                string `mapstructure:"uri"`
	WorkloadDatabase   string `mapstructure:"workload_database"`
	SessionsCollection string `mapstructure:"sessions_collection"`
	DatasetDatabase    string `mapstructure:"dataset_database"`
}

// EvaluationConfig sizes the batch evaluation worker pool
type EvaluationConfig struct {
	Workers         int           `mapstructure:"workers"`
	QueueSize       int           `mapstructure:"queue_size"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// ClusterConfig enables discovering node_count from gossip membership
type ClusterConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	NodeName  string        `mapstructure:"node_name"`
	BindAddr  string        `mapstructure:"bind_addr"`
	BindPort  int           `mapstructure:"bind_port"`
	SeedNodes []string      `mapstructure:"seed_nodes"`
	JoinWait  time.Duration `mapstructure:"join_wait"`
}

// ServerConfig represents the gRPC evaluator endpoint
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	MaxConnections  int           `mapstructure:"max_connections"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RateLimit       float64       `mapstructure:"rate_limit"`
	RateBurst       int           `mapstructure:"rate_burst"`
}

// MetricsConfig represents Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ResourceConfig converts the cost model section into the evaluator's input
func (c CostModelConfig) ResourceConfig() model.ResourceConfig {
	return model.ResourceConfig{
		MaxMemoryBytes:  c.MaxMemoryBytes,
		SkewIntervals:   c.SkewIntervals,
		AddressSizeBits: c.AddressSizeBits,
		NodeCount:       c.NodeCount,
		Weights: model.Weights{
			Network: c.WeightNetwork,
			Skew:    c.WeightSkew,
			Disk:    c.WeightDisk,
		},
	}
}

// Options converts the stats section into engine options
func (c StatsConfig) Options() stats.Options {
	return stats.Options{
		SampleRate:           c.SampleRate,
		Seed:                 c.Seed,
		ExactDistinctLimit:   c.ExactDistinctLimit,
		InterestingThreshold: c.InterestingThreshold,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	rc := c.CostModel.ResourceConfig()
	if err := rc.Validate(); err != nil {
		return err
	}
	if c.CostModel.VirtualNodes < 0 {
		return errors.InvalidConfiguration("cost_model.virtual_nodes", "must not be negative")
	}
	if c.Stats.SampleRate <= 0 || c.Stats.SampleRate > 100 {
		return errors.InvalidConfiguration("stats.sample_rate", "must be in (0,100]")
	}
	if c.Stats.InterestingThreshold < 0 || c.Stats.InterestingThreshold > 1 {
		return errors.InvalidConfiguration("stats.interesting_threshold", "must be in [0,1]")
	}

	switch c.Source.Kind {
	case SourceFile:
		if c.Source.SessionsFile == "" || c.Source.DatasetDir == "" {
			return errors.InvalidConfiguration("source", "file source needs sessions_file and dataset_dir")
		}
	case SourceMongo:
		if c.Source.Mongo.URI == "" {
			return errors.InvalidConfiguration("source.mongo.uri", "is required")
		}
	case SourceMemory:
	default:
		return errors.InvalidConfiguration("source.kind", fmt.Sprintf("unknown kind '%s'", c.Source.Kind))
	}

	if c.Evaluation.Workers <= 0 {
		return errors.InvalidConfiguration("evaluation.workers", "must be positive")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.InvalidConfiguration("server.port", "must be between 1 and 65535")
	}
	if c.Server.RateLimit < 0 || c.Server.RateBurst < 0 {
		return errors.InvalidConfiguration("server.rate_limit", "must not be negative")
	}
	if c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		return errors.InvalidConfiguration("metrics.port", "must be between 1 and 65535")
	}
	if c.Cluster.Enabled && c.Cluster.NodeName == "" {
		return errors.InvalidConfiguration("cluster.node_name", "is required when cluster discovery is enabled")
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	return nil
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	return &Config{
		CostModel: CostModelConfig{
			MaxMemoryBytes:  8 << 30,
			SkewIntervals:   10,
			AddressSizeBits: 64,
			NodeCount:       4,
			WeightNetwork:   1,
			WeightSkew:      1,
			WeightDisk:      1,
			VirtualNodes:    64,
		},
		Stats: StatsConfig{
			SampleRate:           100,
			Seed:                 1,
			ExactDistinctLimit:   stats.DefaultExactDistinctLimit,
			InterestingThreshold: stats.DefaultInterestingThreshold,
			Parallelism:          4,
		},
		Source: SourceConfig{
			Kind:         SourceFile,
			SessionsFile: "./workload/sessions.json",
			DatasetDir:   "./dataset",
			Mongo: MongoConfig{
				URI:                "mongodb://localhost:27017",
				WorkloadDatabase:   "designer_workload",
				SessionsCollection: "sessions",
				DatasetDatabase:    "app",
			},
			Timeout: 5 * time.Minute,
		},
		Evaluation: EvaluationConfig{
			Workers:         4,
			QueueSize:       64,
			ShutdownTimeout: 30 * time.Second,
		},
		Cluster: ClusterConfig{
			Enabled:  false,
			NodeName: "designer-1",
			BindAddr: "0.0.0.0",
			BindPort: 7946,
			JoinWait: 2 * time.Second,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            50061,
			MaxConnections:  100,
			ShutdownTimeout: 30 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9091,
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
