// Package cli implements the designer commands.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/devrev/designer/internal/config"
	"github.com/devrev/designer/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// app is the state shared by every command of one invocation
type app struct {
	configPath string
	sessions   string
	dataset    string
	nodes      int
	intervals  int
	logLevel   string
	output     string

	cfg    *config.Config
	logger *zap.Logger
}

// NewRootCmd builds the designer command tree
func NewRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "designer",
		Short:         "Score physical designs of a document database against a captured workload",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "config file (default: $CONFIG_PATH or ./config.yaml)")
	flags.StringVar(&a.sessions, "sessions", "", "sessions file, overrides source.sessions_file")
	flags.StringVar(&a.dataset, "dataset", "", "dataset directory, overrides source.dataset_dir")
	flags.IntVar(&a.nodes, "nodes", 0, "node count, overrides cost_model.node_count")
	flags.IntVar(&a.intervals, "intervals", 0, "skew intervals, overrides cost_model.skew_intervals")
	flags.StringVar(&a.logLevel, "log-level", "", "log level, overrides logging.level")
	flags.StringVarP(&a.output, "output", "o", formatYAML, "output format: yaml or json")

	rootCmd.AddCommand(newStatsCmd(a))
	rootCmd.AddCommand(newSegmentCmd(a))
	rootCmd.AddCommand(newEvaluateCmd(a))
	rootCmd.AddCommand(newServeCmd(a))

	return rootCmd
}

// Execute runs the designer CLI
func Execute(ctx context.Context) error {
	cmd := NewRootCmd()
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return err
	}
	return nil
}

func (a *app) setup(cmd *cobra.Command) error {
	path := a.configPath
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "./config.yaml"
	}

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	if a.sessions != "" || a.dataset != "" {
		cfg.Source.Kind = config.SourceFile
	}
	if a.sessions != "" {
		cfg.Source.SessionsFile = a.sessions
	}
	if a.dataset != "" {
		cfg.Source.DatasetDir = a.dataset
	}
	if cmd.Flags().Changed("nodes") {
		cfg.CostModel.NodeCount = a.nodes
	}
	if cmd.Flags().Changed("intervals") {
		cfg.CostModel.SkewIntervals = a.intervals
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	if a.output != formatYAML && a.output != formatJSON {
		return fmt.Errorf("unknown output format %q", a.output)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = logger
	return nil
}
