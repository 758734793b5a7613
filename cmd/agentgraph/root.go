package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/hupe1980/agentgraph/config"
	"github.com/hupe1980/agentgraph/logging"
)

type rootOptions struct {
	configPath string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "agentgraph",
		Short: "Supervisor/specialist multi-agent workflow engine",
		Long: `agentgraph routes user messages through a supervisor agent that answers
directly, calls tools, or delegates to a research specialist.

Configuration is read from an optional YAML file and AGENTGRAPH_* environment
variables, e.g. AGENTGRAPH_LLM_PROVIDER=openai.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to config file")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")

	cmd.AddCommand(newServeCmd(opts), newChatCmd(opts), newConfigCmd(opts))
	return cmd
}

func (o *rootOptions) load() (*config.Config, error) {
	return config.Load(o.configPath)
}

// logger builds the process logger at the configured level, raised to at
// least floor. --verbose always logs at debug level.
func (o *rootOptions) logger(cfg *config.Config, floor logging.LogLevel) logging.Logger {
	level := max(logging.ParseLevel(cfg.Log.Level), floor)
	if o.verbose {
		level = logging.LogLevelDebug
	}
	return logging.NewLogger(&logging.LoggerConfig{
		Level:     level,
		Format:    cfg.Log.Format,
		Output:    os.Stderr,
		Component: cfg.AppName,
	})
}
