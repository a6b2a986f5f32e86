// Package cli wires the edfhub command tree with github.com/spf13/cobra:
// a rootCmd with persistent flags, a serveCmd building Core and the HTTP
// surface, and a handful of one-shot utility subcommands that construct
// their own Core against local files rather than talking to a running
// instance.
package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"edfhub/internal/config"
	"edfhub/internal/core"
	"edfhub/internal/logging"
)

var (
	logLevel  string
	logFormat string
)

// Execute builds and runs the root command.
func Execute() error {
	root := &cobra.Command{
		Use:   "edfhub",
		Short: "EDF data access service: cached reader and DDA runner",
	}

	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&logFormat, "log-format", "json", "log format: json or text")

	root.AddCommand(
		newServeCmd(),
		newCacheCmd(),
		newChannelsCmd(),
		newDDACmd(),
		newVersionCmd(),
	)

	return root.Execute()
}

var version = "dev"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(version)
		},
	}
}

// rootLogger builds the process logger from the persistent --log-level/
// --log-format flags.
func rootLogger() *slog.Logger {
	return logging.New(logLevel, logFormat)
}

// loadConfigOrDefault loads Config from the environment, falling back to
// DefaultConfig with SyntheticMode enabled when validation fails, so the
// one-shot utility subcommands remain usable without a full deployment.
func loadConfigOrDefault(logger *slog.Logger) *config.Config {
	cfg, err := config.Load()
	if err != nil {
		logger.Warn("config load failed, falling back to synthetic defaults", "error", err)
		cfg = config.DefaultConfig()
		cfg.SyntheticMode = true
	}
	return cfg
}

func newCoreFromEnv(logger *slog.Logger) *core.Core {
	return core.New(loadConfigOrDefault(logger), logger)
}
