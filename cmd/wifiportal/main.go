// Wifiportal is the Wi-Fi provisioning daemon.
//
// On start it tries the stored station credentials. When they do not
// connect it raises a soft access point with a captive DNS responder and a
// configuration portal where the owner picks a network and enters its
// password. Once the device has joined a network the portal is torn down,
// a small station-mode API stays available under /wifi and the device is
// announced over mDNS.
//
// Usage:
//
//	wifiportal run [flags]
//	wifiportal modeless [flags]
//	wifiportal reset [flags]
//
// See 'wifiportal --help' for available options.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/wifiportal/internal/logging"
	"github.com/muurk/wifiportal/internal/version"
)

func main() {
	defer logging.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var (
	configPath string
	logLevel   string
	simulate   bool
)

var rootCmd = &cobra.Command{
	Use:   "wifiportal",
	Short: "Wi-Fi provisioning daemon with a captive configuration portal",
	Long: `A daemon that joins the stored Wi-Fi network, or raises a soft access
point with a captive configuration portal when it cannot.

Configuration is read from /etc/wifiportal/config.yaml when running as root,
otherwise from $XDG_CONFIG_HOME/wifiportal/config.yaml. Every setting can be
overridden with a WIFIPORTAL_* environment variable, e.g.
WIFIPORTAL_PORTAL_TIMEOUT=3m.

For operating a running portal from another machine use 'wifiportal-cfg'.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides the config file")
	rootCmd.PersistentFlags().BoolVar(&simulate, "simulate", false, "Use a simulated radio instead of NetworkManager")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(modelessCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(versionCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect with stored credentials or run the blocking portal",
	Long: `Try the stored network, retrying as configured, and fall back to the
captive portal. The portal blocks until a network is joined or
portal.timeout expires. Once connected the station API and the mDNS
announcement stay up until the daemon is stopped.`,
	Example: `  # Run against NetworkManager
  wifiportal run

  # Try the portal locally on :8080 without touching the radio
  WIFIPORTAL_PORTAL_HTTP_ADDR=:8080 wifiportal run --simulate --log-level debug

  # Give up on the portal after five minutes
  WIFIPORTAL_PORTAL_TIMEOUT=5m wifiportal run`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(cmd, (*daemon).runBlocking)
	},
}

var modelessCmd = &cobra.Command{
	Use:   "modeless",
	Short: "Run the portal alongside normal operation",
	Long: `Try the stored network once, then keep the portal up and drive it from
the daemon loop. Scans run in the background every
portal.modeless_scan_interval. When a submitted network connects the
portal is closed and the station API takes over.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(cmd, (*daemon).runModeless)
	},
}

var resetAll bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Erase stored Wi-Fi credentials",
	Long: `Disconnect the station, erase the credentials held by the radio and
forget the configured network. With --all every stored setting, including
custom parameter values and the stand-alone flag, is removed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(cmd, func(d *daemon, _ context.Context) error { return d.reset(resetAll) })
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetAll, "all", false, "Also remove parameter values and the stand-alone flag")
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("wifiportal %s\n", version.Full())
	},
}
