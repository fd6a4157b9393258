// Package cmd is the st2110d CLI surface: a single cobra command reading
// the static YAML/INI config (spec.md §6), then running the core until
// signaled to stop.
package cmd

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// RootCmd is st2110d's entry point.
var RootCmd = &cobra.Command{
	Use:   "st2110d",
	Short: "SMPTE ST 2110 send/receive core daemon",
	RunE: func(_ *cobra.Command, _ []string) error {
		return run(rootCfgFlag, rootPortsFlag, rootIfaceFlag, rootMetricsAddrFlag, rootModeFlag)
	},
}

var (
	rootCfgFlag         string
	rootPortsFlag        string
	rootIfaceFlag        string
	rootMetricsAddrFlag string
	rootModeFlag         string
	rootVerboseFlag      bool
)

func init() {
	RootCmd.PersistentFlags().StringVar(&rootCfgFlag, "config", "/etc/st2110d.yaml", "path to the static YAML config")
	RootCmd.PersistentFlags().StringVar(&rootPortsFlag, "ports", "", "path to the PCI port table INI file (optional)")
	RootCmd.PersistentFlags().StringVar(&rootIfaceFlag, "iface", "eth0", "network interface to bind the device to")
	RootCmd.PersistentFlags().StringVar(&rootMetricsAddrFlag, "metrics-addr", ":9110", "host:port to serve /metrics on")
	RootCmd.PersistentFlags().StringVar(&rootModeFlag, "mode", "send", "send or recv")
	RootCmd.PersistentFlags().BoolVarP(&rootVerboseFlag, "verbose", "v", false, "verbose output")
}

// ConfigureVerbosity sets the logrus level from the parsed flags and the
// config file's own log_level, the latter taking precedence once loaded.
func ConfigureVerbosity(configLevel string) {
	log.SetLevel(log.InfoLevel)
	if rootVerboseFlag {
		log.SetLevel(log.DebugLevel)
	}
	if configLevel == "" {
		return
	}
	lvl, err := log.ParseLevel(configLevel)
	if err != nil {
		log.Warnf("st2110d: unrecognized log_level %q, keeping %v", configLevel, log.GetLevel())
		return
	}
	log.SetLevel(lvl)
}

// Execute is the main entry point for the CLI.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
