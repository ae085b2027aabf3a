package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	logLevel   string
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "stridebeat",
		Short: "Music that follows your steps",
		Long: `stridebeat reads a step counter and speeds a looping track up or down to
match your cadence. Idle decay, pacing hints and a typewriter feedback line
keep you moving.

The daemon serves its state over a WebSocket (see "stridebeat watch") and can
publish feedback to MQTT.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to YAML config file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "Log level: error, warn, info, debug")

	root.AddCommand(
		newRunCmd(opts),
		newStepsCmd(),
		newWatchCmd(opts),
		newVersionCmd(),
	)
	return root
}

// loadConfig builds the effective config: defaults, then the config file,
// then flag overrides.
func (o *rootOptions) loadConfig(cmd *cobra.Command, ov FlagOverrides) (Config, error) {
	cfg := DefaultConfig()
	if o.configPath != "" {
		loaded, err := LoadConfigFile(o.configPath)
		if err != nil {
			return Config{}, err
		}
		cfg = loaded
	}

	if cmd.Flags().Changed("log-level") {
		ov.LogLevel = &o.logLevel
	}
	ov.Apply(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// logger builds a logger writing to w at the configured level.
func (o *rootOptions) logger(cmd *cobra.Command, level string, w io.Writer) (*slog.Logger, error) {
	if cmd.Flags().Changed("log-level") {
		level = o.logLevel
	}
	lvl, err := parseLogLevel(level)
	if err != nil {
		return nil, err
	}
	return setupLogger(lvl, w), nil
}
