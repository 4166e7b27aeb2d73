package config

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. DESIGNER_COST_MODEL_NODE_COUNT
const EnvPrefix = "DESIGNER"

// Load loads configuration from a YAML file and environment variables.
// A missing file is not an error: defaults and the environment still apply.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, DefaultConfig())

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil && !stderrors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config %s: %w", configPath, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// setDefaults registers every key so that environment variables can override
// keys absent from the file
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("cost_model.max_memory_bytes", d.CostModel.MaxMemoryBytes)
	v.SetDefault("cost_model.skew_intervals", d.CostModel.SkewIntervals)
	v.SetDefault("cost_model.address_size_bits", d.CostModel.AddressSizeBits)
	v.SetDefault("cost_model.node_count", d.CostModel.NodeCount)
	v.SetDefault("cost_model.weight_network", d.CostModel.WeightNetwork)
	v.SetDefault("cost_model.weight_skew", d.CostModel.WeightSkew)
	v.SetDefault("cost_model.weight_disk", d.CostModel.WeightDisk)
	v.SetDefault("cost_model.virtual_nodes", d.CostModel.VirtualNodes)

	v.SetDefault("stats.sample_rate", d.Stats.SampleRate)
	v.SetDefault("stats.seed", d.Stats.Seed)
	v.SetDefault("stats.exact_distinct_limit", d.Stats.ExactDistinctLimit)
	v.SetDefault("stats.interesting_threshold", d.Stats.InterestingThreshold)
	v.SetDefault("stats.parallelism", d.Stats.Parallelism)

	v.SetDefault("source.kind", d.Source.Kind)
	v.SetDefault("source.sessions_file", d.Source.SessionsFile)
	v.SetDefault("source.dataset_dir", d.Source.DatasetDir)
	v.SetDefault("source.timeout", d.Source.Timeout)
	v.SetDefault("source.mongo.uri", d.Source.Mongo.URI)
	v.SetDefault("source.mongo.workload_database", d.Source.Mongo.WorkloadDatabase)
	v.SetDefault("source.mongo.sessions_collection", d.Source.Mongo.SessionsCollection)
	v.SetDefault("source.mongo.dataset_database", d.Source.Mongo.DatasetDatabase)

	v.SetDefault("evaluation.workers", d.Evaluation.Workers)
	v.SetDefault("evaluation.queue_size", d.Evaluation.QueueSize)
	v.SetDefault("evaluation.shutdown_timeout", d.Evaluation.ShutdownTimeout)

	v.SetDefault("cluster.enabled", d.Cluster.Enabled)
	v.SetDefault("cluster.node_name", d.Cluster.NodeName)
	v.SetDefault("cluster.bind_addr", d.Cluster.BindAddr)
	v.SetDefault("cluster.bind_port", d.Cluster.BindPort)
	v.SetDefault("cluster.seed_nodes", d.Cluster.SeedNodes)
	v.SetDefault("cluster.join_wait", d.Cluster.JoinWait)

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.max_connections", d.Server.MaxConnections)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.rate_limit", d.Server.RateLimit)
	v.SetDefault("server.rate_burst", d.Server.RateBurst)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.port", d.Metrics.Port)
	v.SetDefault("metrics.path", d.Metrics.Path)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
}
