/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nautidog/sonarsniffer/pkg/config"
)

var (
	cfgFile  string
	logLevel string
	cfg      *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "sonarsniffer",
	Short: "SonarSniffer - sonar survey log decoder",
	Long: `SonarSniffer decodes proprietary variable-length binary survey logs
produced by side-scan and echosounder sonar devices, with a strict
integrity-verified mode and a fault-tolerant recovery mode for damaged
field media.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = config.DefaultConfig()
		path := cfgFile
		if path == "" {
			path = config.GetDefaultConfigPath()
		}
		if config.ConfigExists(path) {
			loaded, err := config.LoadConfig(path)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			cfg = loaded
		}

		level := cfg.Logging.Level
		if logLevel != "" {
			level = logLevel
		}
		parsed, err := logrus.ParseLevel(level)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", level, err)
		}
		logrus.SetLevel(parsed)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override configured log level")
}
