// Wifiportal-cfg operates a wifiportal device from another machine.
//
// It finds devices over mDNS, reads portal status and the visible
// networks, submits credentials and toggles stand-alone mode through the
// portal's JSON API. The watch command opens a live terminal view driven
// by the portal's event feed.
//
// Usage:
//
//	wifiportal-cfg [command] [flags]
//
// Without --device the tool looks for an announced device and falls back to
// the portal's default address, which is what a laptop joined to the
// configuration access point needs.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/wifiportal/internal/logging"
	"github.com/muurk/wifiportal/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "wifiportal-cfg",
	Short: "Wi-Fi portal configuration utility",
	Long: `A utility for provisioning devices that run wifiportal.

Join the device's configuration access point (or the network it already
joined) and use the commands below. 'watch' opens an interactive view of
the portal; the other commands print once and exit.

Set WIFIPORTAL_LOG_LEVEL=debug to see request logging.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.InitializeFromEnv()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("wifiportal-cfg %s\n", version.Full())
	},
}
