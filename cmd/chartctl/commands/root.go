package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/gogpu/chart"
	"github.com/gogpu/chart/backend"
	"github.com/gogpu/chart/config"
)

var (
	cfgFile  string
	logLevel string

	// cfg is loaded before every subcommand runs.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "chartctl",
	Short: "Inspect and exercise the chart rendering core",
	Long: `chartctl drives the adaptive line-chart renderer from the command line.

It reports which rendering backends the machine offers, renders series
files to PNG without a window, and measures frame times under load.`,
	Version:           "0.1.0",
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); CHART_* variables override it")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error (default from config)")
}

func loadConfig(cmd *cobra.Command, args []string) error {
	c, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if logLevel != "" {
		c.Logging.Level = logLevel
	}
	lvl, err := c.Logging.SlogLevel()
	if err != nil {
		return err
	}
	chart.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
	cfg = c
	return nil
}

func renderer(host backend.Host, data chart.DataSource, extra ...chart.Option) (*chart.Renderer, error) {
	opts, err := cfg.Options()
	if err != nil {
		return nil, err
	}
	r, err := chart.NewRenderer(host, data, append(opts, extra...)...)
	if err != nil {
		return nil, fmt.Errorf("creating renderer: %w", err)
	}
	return r, nil
}
