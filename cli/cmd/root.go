package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/accesslog/cli/internal/client"
	"github.com/telhawk-systems/accesslog/cli/internal/config"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "accessctl",
	Short: "Access log service CLI",
	Long: `accessctl is the command-line interface for the access log service.

Inspect the write-back pipeline, query persisted access logs, look up
per-client usage, manage the dead letter queue and seed synthetic traffic.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.accessctl/config.yaml)")
	rootCmd.PersistentFlags().String("profile", "", "profile to use (default: current profile)")
	rootCmd.PersistentFlags().String("server", "", "access log service URL (overrides profile)")
	rootCmd.PersistentFlags().StringP("output", "o", "table", "output format: table, json, yaml")
}

func initConfig() {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not load config: %v\n", err)
		cfg = config.Default()
	}
}

// serverURL resolves --server, then the profile, then defaults.
func serverURL(cmd *cobra.Command) string {
	if s, _ := cmd.Flags().GetString("server"); s != "" {
		return s
	}
	if cfg == nil {
		cfg = config.Default()
	}
	profile, _ := cmd.Flags().GetString("profile")
	return cfg.ServerURL(profile)
}

func newClient(cmd *cobra.Command) *client.AccessClient {
	return client.NewAccessClient(serverURL(cmd))
}

func outputFormat(cmd *cobra.Command) string {
	f, _ := cmd.Flags().GetString("output")
	return f
}
