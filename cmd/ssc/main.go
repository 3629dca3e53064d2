// Command ssc runs and controls the SmartSuite cache server: a local
// daemon that mirrors upstream solutions, tables, records, members, and
// teams into a single-file SQLite store and answers structured queries
// over a Unix socket.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/smartsuite-tools/ssc/internal/config"
)

// Version is stamped at build time.
var Version = "0.3.0"

var (
	cfg *config.Config

	flagDBPath string
	flagSocket string
	flagDebug  bool
)

var rootCmd = &cobra.Command{
	Use:           "ssc",
	Short:         "Local cache server for the SmartSuite API",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		if flagDBPath != "" {
			cfg.DBPath = flagDBPath
		}
		if flagSocket != "" {
			cfg.Socket = flagSocket
		}
		if flagDebug {
			cfg.Debug = true
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDBPath, "db", "", "cache store path (default ~/.ssc/cache.db)")
	rootCmd.PersistentFlags().StringVar(&flagSocket, "socket", "", "server socket path (default ~/.ssc/ssc.sock)")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "verbose logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(ttlCmd)
	rootCmd.AddCommand(invalidateCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(warmCmd)
	rootCmd.AddCommand(shutdownCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
