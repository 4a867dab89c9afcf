// Package main is the entry point for the AgentAttest CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/agentattest/attest-core/internal/config"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string

	v *viper.Viper
)

// flagKeys maps command line flags to configuration keys.
var flagKeys = map[string]string{
	"log-level":       config.KeyLogLevel,
	"log-format":      config.KeyLogFormat,
	"address":         config.KeyServerAddress,
	"rpc-address":     config.KeyServerRPCAddress,
	"ledger-url":      config.KeyLedgerBaseURL,
	"insecure-tls":    config.KeyLedgerInsecureTLS,
	"store":           config.KeyStoreDriver,
	"store-path":      config.KeyStorePath,
	"allow-ephemeral": config.KeyAllowEphemeral,
	"seed":            config.KeyAuthoritySeed,
}

var rootCmd = &cobra.Command{
	Use:   "agentattest",
	Short: "AgentAttest credential authority",
	Long: `Issues, revokes and verifies AI agent credentials anchored on the
Amadeus ledger.

Configuration is read from flags, AGENTATTEST_* environment variables and an
optional config file, in that order of precedence.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		var err error
		v, err = config.NewViper(cfgFile)
		if err != nil {
			return err
		}
		return bindFlags(v, cmd.Flags())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (yaml, json or toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (default info)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: json or console (default json)")
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
