package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"ikedadada/go-onehop/internal/config"
	"ikedadada/go-onehop/internal/infrastructure/logger"
	"ikedadada/go-onehop/internal/version"
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "onehop-client",
		Short: "Fetch a URL through a single relay",
		Long: `onehop-client opens a one-hop circuit to an explicitly named relay and
issues a plain HTTP GET through it.`,
		Version:       version.Version(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringP("config", "c", "", "Configuration file (default: $XDG_CONFIG_HOME/onehop/config.yaml)")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
	cmd.PersistentFlags().Bool("json-log", false, "Log as JSON")

	cmd.AddCommand(NewConnectCmd())
	cmd.AddCommand(NewVersionCmd())
	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the config file and applies the logging flags on top.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if f := cmd.Flags().Lookup("verbose"); f != nil && f.Changed {
		cfg.Verbose, _ = cmd.Flags().GetBool("verbose")
	}
	if f := cmd.Flags().Lookup("json-log"); f != nil && f.Changed {
		cfg.JSONLog, _ = cmd.Flags().GetBool("json-log")
	}
	return cfg, nil
}

func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	return logger.New(w, cfg.Verbose, cfg.JSONLog)
}
