package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"metroview/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "metroview",
	Short: "Transit map viewer with route overlays",
	Long: `metroview loads a transit diagram, asks a route service for a path
between two stations and draws the route on top of the diagram. It runs
either as a long-lived viewer session behind a small control API, or as a
one-shot renderer.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "metroview.yml", "config file path")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
