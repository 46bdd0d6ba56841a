package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "brokerhub",
	Short: "BrokerHub - multi-brokerage connection and aggregation service",
	Long: `BrokerHub links user accounts at multiple brokerages over OAuth and
exposes a normalized API for portfolio aggregation, quotes and trading.`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug mode")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
