package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/muurk/wifiportal/internal/discovery"
	"github.com/muurk/wifiportal/internal/monitor"
	"github.com/muurk/wifiportal/internal/portal"
	"github.com/muurk/wifiportal/internal/portalclient"
	"github.com/muurk/wifiportal/internal/ui"
	"github.com/muurk/wifiportal/internal/web"
	"github.com/muurk/wifiportal/internal/wifi"
)

// defaultPortalHost is the soft AP address a joined client reaches the
// portal on.
const defaultPortalHost = "192.168.4.1"

const discoveryTimeout = 3 * time.Second

// errReported is returned after a failure box was printed, so main only
// sets the exit code.
var errReported = errors.New("command failed")

var (
	deviceHost     string
	devicePort     int
	deviceURL      string
	requestTimeout time.Duration
	jsonOutput     bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&deviceHost, "device", "", "Device host or IP (skips discovery)")
	rootCmd.PersistentFlags().IntVar(&devicePort, "port", 80, "Device HTTP port")
	rootCmd.PersistentFlags().StringVar(&deviceURL, "url", "", "Portal base URL, overrides --device and --port")
	rootCmd.PersistentFlags().DurationVar(&requestTimeout, "timeout", portalclient.DefaultTimeout, "Per-request timeout")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print JSON instead of styled output")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(networksCmd)
	rootCmd.AddCommand(saveCmd)
	rootCmd.AddCommand(standAloneCmd)
	rootCmd.AddCommand(rebootCmd)
	rootCmd.AddCommand(watchCmd)
}

func printer(cmd *cobra.Command) *ui.Printer {
	return ui.NewPrinter(cmd.OutOrStdout())
}

// fail prints a failure box with a hint for client errors.
func fail(p *ui.Printer, title string, err error) error {
	var hints []string
	if h := portalclient.TroubleshootingHint(err); h != "" {
		hints = append(hints, h)
	}
	p.Failure(title, err, hints...)
	return errReported
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// portalClient builds a client for the selected device. Without --device it
// uses the only announced device, or the portal address when none answers.
func portalClient(cmd *cobra.Command, p *ui.Printer) (*portalclient.Client, error) {
	var c *portalclient.Client
	switch {
	case deviceURL != "":
		c = portalclient.NewClientWithURL(deviceURL)
	case deviceHost != "":
		c = portalclient.NewClient(deviceHost, devicePort)
	default:
		host, port, err := discoverHost(cmd.Context(), p, cmd.Flags().Changed("port"))
		if err != nil {
			return nil, err
		}
		c = portalclient.NewClient(host, port)
	}
	c.SetTimeout(requestTimeout)
	return c, nil
}

func discoverHost(ctx context.Context, p *ui.Printer, portSet bool) (string, int, error) {
	s := discovery.NewScanner()
	s.Timeout = discoveryTimeout
	devices, err := s.Scan(ctx)
	if err != nil || len(devices) == 0 {
		if !jsonOutput {
			p.Note("No device announced, using the portal address %s", defaultPortalHost)
		}
		return defaultPortalHost, devicePort, nil
	}
	if len(devices) > 1 {
		for _, d := range devices {
			p.Note("%s  %s", d.ChipID, d.IP)
		}
		return "", 0, fmt.Errorf("%d devices found, use --device to pick one", len(devices))
	}
	d := devices[0]
	port := d.Port
	if portSet {
		port = devicePort
	}
	if !jsonOutput {
		p.Note("Found %s at %s", d.ChipID, d.IP)
	}
	return d.IP, port, nil
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Find devices announced over mDNS",
	Long: `Browse for devices that joined a network and announced themselves.

A device that is still in portal mode is not announced; join its access
point and use the portal address instead.`,
	Example: `  wifiportal-cfg scan
  wifiportal-cfg scan --wait 10s`,
	RunE: runScan,
}

var scanWait time.Duration

func init() {
	scanCmd.Flags().DurationVar(&scanWait, "wait", discovery.DefaultScanTimeout, "How long to listen for announcements")
}

func runScan(cmd *cobra.Command, args []string) error {
	p := printer(cmd)
	s := discovery.NewScanner()
	s.Timeout = scanWait

	if !jsonOutput {
		p.Header("Device scan", "wifiportal-cfg scan", ui.Field{Key: "Listen", Value: scanWait.String()})
	}
	devices, err := s.Scan(cmd.Context())
	if err != nil {
		return fail(p, "Scan failed", err)
	}
	if jsonOutput {
		return writeJSON(cmd.OutOrStdout(), devices)
	}
	if len(devices) == 0 {
		p.Result(ui.Result{
			Kind:  ui.KindWarning,
			Title: "No devices found",
			Hints: []string{
				"Devices announce themselves only after joining a network",
				"A device in portal mode answers on " + defaultPortalHost + " once you join its access point",
				"Try a longer --wait on busy networks",
			},
		})
		return nil
	}
	p.Table([]string{"CHIP", "ADDRESS", "HOST", "VERSION"}, deviceRows(devices), nil)
	p.Println()
	p.Note("Use --device <address> with the other commands")
	return nil
}

func deviceRows(devices []*discovery.Device) [][]string {
	rows := make([][]string, 0, len(devices))
	for _, d := range devices {
		ver := d.Metadata[discovery.TXTVersion]
		if ver == "" {
			ver = "-"
		}
		rows = append(rows, []string{d.ChipID, fmt.Sprintf("%s:%d", d.IP, d.Port), strings.TrimSuffix(d.Hostname, "."), ver})
	}
	return rows
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show portal and station status",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	p := printer(cmd)
	c, err := portalClient(cmd, p)
	if err != nil {
		return err
	}
	st, err := c.Status(cmd.Context())
	if err != nil {
		return fail(p, "Status unavailable", err)
	}
	if jsonOutput {
		return writeJSON(cmd.OutOrStdout(), st)
	}
	p.Header("Portal status", "wifiportal-cfg status", ui.Field{Key: "Device", Value: c.BaseURL})
	p.Fields(statusFields(st)...)
	return nil
}

func statusFields(st *portal.Status) []ui.Field {
	yesNo := func(b bool) string {
		if b {
			return "yes"
		}
		return "no"
	}
	fields := []ui.Field{
		{Key: "State", Value: st.State},
		{Key: "Chip", Value: st.ChipID},
	}
	if st.APName != "" {
		fields = append(fields, ui.Field{Key: "Access point", Value: fmt.Sprintf("%s (%s)", st.APName, st.APIP)})
	}
	station := st.StationStatus
	if st.Connected {
		station = fmt.Sprintf("connected to %s at %s", st.StationSSID, st.StationIP)
	}
	fields = append(fields,
		ui.Field{Key: "Station", Value: station},
		ui.Field{Key: "Configured", Value: orDash(st.ConfiguredSSID)},
		ui.Field{Key: "Stand-alone", Value: yesNo(st.StandAlone)},
		ui.Field{Key: "Networks", Value: strconv.Itoa(st.Networks)},
	)
	if st.LastScan != nil {
		fields = append(fields, ui.Field{Key: "Last scan", Value: fmt.Sprintf("%.0fs ago", st.ScanAgeSeconds)})
	}
	if a := st.LastAttempt; a != nil {
		fields = append(fields, ui.Field{Key: "Last attempt", Value: fmt.Sprintf("%s: %s (%s)", a.SSID, a.Outcome, a.Status)})
	}
	fields = append(fields, ui.Field{Key: "Uptime", Value: (time.Duration(st.Uptime) * time.Second).String()})
	return fields
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

var networksCmd = &cobra.Command{
	Use:   "networks",
	Short: "List networks the device can see",
	Example: `  wifiportal-cfg networks
  wifiportal-cfg networks --rescan`,
	RunE: runNetworks,
}

var (
	rescan     bool
	rescanWait time.Duration
)

func init() {
	networksCmd.Flags().BoolVar(&rescan, "rescan", false, "Ask the device for a fresh scan first")
	networksCmd.Flags().DurationVar(&rescanWait, "rescan-wait", 10*time.Second, "How long to wait for the fresh scan")
}

func runNetworks(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	p := printer(cmd)
	c, err := portalClient(cmd, p)
	if err != nil {
		return err
	}
	st, err := c.Status(ctx)
	if err != nil {
		return fail(p, "Portal unreachable", err)
	}

	nets, err := c.Networks(ctx, rescan)
	if err == nil && rescan {
		nets, err = awaitRescan(ctx, c, st.LastScan)
	}
	if err != nil {
		return fail(p, "Network list unavailable", err)
	}
	if jsonOutput {
		return writeJSON(cmd.OutOrStdout(), nets)
	}

	p.Header("Visible networks", "wifiportal-cfg networks", ui.Field{Key: "Device", Value: c.BaseURL})
	if len(nets) == 0 {
		p.Warning("No networks found")
		return nil
	}
	rows, configured := networkRows(nets, st.ConfiguredSSID)
	p.Table([]string{"SSID", "SIGNAL", "CH", "SECURITY"}, rows, configured)
	return nil
}

// awaitRescan waits for a scan newer than before and lists again. Portal
// sessions scan in the background, so the first listing may be stale.
func awaitRescan(ctx context.Context, c *portalclient.Client, before *time.Time) ([]web.Network, error) {
	ctx, cancel := context.WithTimeout(ctx, rescanWait)
	defer cancel()
	_, err := c.WaitFor(ctx, portalclient.DefaultPollInterval, func(st *portal.Status) bool {
		return st.LastScan != nil && (before == nil || st.LastScan.After(*before))
	})
	if err != nil && ctx.Err() == nil {
		return nil, err
	}
	return c.Networks(context.WithoutCancel(ctx), false)
}

func networkRows(nets []web.Network, configured string) ([][]string, func(int) bool) {
	rows := make([][]string, 0, len(nets))
	for _, n := range nets {
		sec := "open"
		if n.Secured {
			sec = n.Encryption
		}
		rows = append(rows, []string{n.SSID, fmt.Sprintf("%3d%%", n.Quality), strconv.Itoa(n.Channel), sec})
	}
	return rows, func(i int) bool { return configured != "" && nets[i].SSID == configured }
}

var saveCmd = &cobra.Command{
	Use:   "save <ssid>",
	Short: "Submit network credentials to the portal",
	Long: `Submit credentials as the portal form would, then follow the
connection attempt.

When --password is omitted on a terminal the password is prompted for
without echo; an empty answer submits an open network. The portal
normally closes once the device joins, so a missing confirmation is
reported as a warning rather than an error.`,
	Example: `  wifiportal-cfg save home
  wifiportal-cfg save home -p 'correct horse' --param mqtt_server=10.0.0.2
  wifiportal-cfg save office --ip 10.1.0.50 --gateway 10.1.0.1 --netmask 255.255.255.0`,
	Args: cobra.ExactArgs(1),
	RunE: runSave,
}

var (
	savePassword string
	saveStatic   portalclient.StaticIP
	saveParams   []string
	saveNoWait   bool
	saveWait     time.Duration
)

func init() {
	f := saveCmd.Flags()
	f.StringVarP(&savePassword, "password", "p", "", "Network password")
	f.StringVar(&saveStatic.IP, "ip", "", "Static station IP")
	f.StringVar(&saveStatic.Gateway, "gateway", "", "Static gateway")
	f.StringVar(&saveStatic.Netmask, "netmask", "", "Static netmask")
	f.StringVar(&saveStatic.DNS1, "dns1", "", "Primary DNS server")
	f.StringVar(&saveStatic.DNS2, "dns2", "", "Secondary DNS server")
	f.StringArrayVar(&saveParams, "param", nil, "Custom parameter as id=value (repeatable)")
	f.BoolVar(&saveNoWait, "no-wait", false, "Return once the portal accepted the credentials")
	f.DurationVar(&saveWait, "wait", 45*time.Second, "How long to follow the connection attempt")
}

func runSave(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	p := printer(cmd)

	creds := portalclient.Credentials{SSID: args[0], Password: savePassword}
	if !cmd.Flags().Changed("password") && ui.IsTerminal() {
		pass, err := promptPassword(cmd.ErrOrStderr(), creds.SSID)
		if err != nil {
			return err
		}
		creds.Password = pass
	}
	if saveStatic.IP != "" {
		s := saveStatic
		creds.Static = &s
	}
	params, err := parseParams(saveParams)
	if err != nil {
		return err
	}
	creds.Params = params

	c, err := portalClient(cmd, p)
	if err != nil {
		return err
	}
	p.Header("Save credentials", "wifiportal-cfg save",
		ui.Field{Key: "Device", Value: c.BaseURL},
		ui.Field{Key: "Network", Value: creds.SSID})

	steps := ui.NewSteps("", "Validate input", "Submit to portal", "Wait for connection")
	step := func(i int, status ui.StepStatus, note string) {
		steps.Set(i, status, note)
		if status != ui.StepRunning {
			p.Println(steps.Line(i))
		}
	}

	if err := creds.Validate(); err != nil {
		step(0, ui.StepFailed, "")
		return fail(p, "Invalid credentials", err)
	}
	step(0, ui.StepDone, "")

	before, err := c.Status(ctx)
	if err != nil {
		step(1, ui.StepFailed, "")
		return fail(p, "Portal unreachable", err)
	}
	if err := c.Save(ctx, creds); err != nil {
		step(1, ui.StepFailed, "")
		return fail(p, "Save rejected", err)
	}
	step(1, ui.StepDone, before.State)

	if saveNoWait {
		step(2, ui.StepSkipped, "--no-wait")
		p.Println()
		p.Success("Credentials submitted", ui.Field{Key: "Network", Value: creds.SSID})
		return nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, saveWait)
	defer cancel()
	st, err := c.WaitFor(waitCtx, portalclient.DefaultPollInterval, func(st *portal.Status) bool {
		return joined(st, creds.SSID) || attemptChanged(before.LastAttempt, st.LastAttempt)
	})
	p.Println()
	switch {
	case err != nil && waitCtx.Err() != nil && ctx.Err() == nil:
		step(2, ui.StepSkipped, "no answer")
		p.Println()
		p.Result(ui.Result{
			Kind:    ui.KindWarning,
			Title:   "No confirmation from the portal",
			Details: []ui.Field{{Key: "Network", Value: creds.SSID}},
			Hints: []string{
				"The portal closes once the device joins the network",
				"Join " + creds.SSID + " and run 'wifiportal-cfg scan' to find the device",
			},
		})
		return nil
	case err != nil:
		step(2, ui.StepFailed, "")
		return fail(p, "Lost the portal", err)
	case joined(st, creds.SSID):
		step(2, ui.StepDone, st.StationIP)
		p.Println()
		p.Success("Connected to "+creds.SSID,
			ui.Field{Key: "Station IP", Value: st.StationIP},
			ui.Field{Key: "Chip", Value: st.ChipID})
		return nil
	default:
		a := st.LastAttempt
		step(2, ui.StepFailed, a.Status)
		p.Println()
		p.Result(ui.Result{
			Kind:  ui.KindFailure,
			Title: "Connection failed",
			Err:   fmt.Errorf("%s: %s (%s)", a.SSID, a.Outcome, a.Status),
			Hints: []string{"Check the password and that the network is in range", "The portal stays open; submit again"},
		})
		return errReported
	}
}

func joined(st *portal.Status, ssid string) bool {
	return st.Connected && st.StationSSID == ssid
}

// attemptChanged reports whether a failed attempt finished after prev.
func attemptChanged(prev, cur *portal.Attempt) bool {
	if cur == nil || cur.Outcome == wifi.OutcomeConnected.String() {
		return false
	}
	return prev == nil || cur.At.After(prev.At)
}

func promptPassword(w io.Writer, ssid string) (string, error) {
	fmt.Fprintf(w, "Password for %s (empty for an open network): ", ssid)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(b), nil
}

func parseParams(kvs []string) (map[string]string, error) {
	if len(kvs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --param %q: want id=value", kv)
		}
		out[k] = v
	}
	return out, nil
}

var standAloneCmd = &cobra.Command{
	Use:       "stand-alone <on|off>",
	Short:     "Switch stand-alone mode",
	Long:      `Turn stand-alone mode on or off. The device restarts to apply it.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"on", "off"},
	RunE:      runStandAlone,
}

func runStandAlone(cmd *cobra.Command, args []string) error {
	var on bool
	switch args[0] {
	case "on", "yes", "true":
		on = true
	case "off", "no", "false":
	default:
		return fmt.Errorf("invalid mode %q: want on or off", args[0])
	}
	p := printer(cmd)
	c, err := portalClient(cmd, p)
	if err != nil {
		return err
	}
	if err := c.SetStandAlone(cmd.Context(), on); err != nil {
		return fail(p, "Stand-alone change failed", err)
	}
	title := "Stand-alone mode disabled"
	if on {
		title = "Stand-alone mode enabled"
	}
	p.Success(title, ui.Field{Key: "Device", Value: c.BaseURL})
	p.Note("The device restarts to apply the change")
	return nil
}

var rebootYes bool

var rebootCmd = &cobra.Command{
	Use:   "reboot",
	Short: "Restart the device",
	Long: `Ask the device to restart. A running portal session ends and unsaved
form input is lost.`,
	RunE: runReboot,
}

func init() {
	rebootCmd.Flags().BoolVarP(&rebootYes, "yes", "y", false, "Skip the confirmation prompt")
}

func runReboot(cmd *cobra.Command, args []string) error {
	p := printer(cmd)
	c, err := portalClient(cmd, p)
	if err != nil {
		return err
	}
	if !rebootYes {
		ok := ui.Confirm(cmd.InOrStdin(), cmd.OutOrStdout(), "RESTART "+c.BaseURL,
			[]string{"The portal session ends", "Clients joined to the access point are dropped"},
			"", "REBOOT")
		if !ok {
			return nil
		}
	}
	if err := c.Reboot(cmd.Context()); err != nil {
		return fail(p, "Restart failed", err)
	}
	p.Success("Restart requested", ui.Field{Key: "Device", Value: c.BaseURL})
	return nil
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Open the live portal view",
	Long: `Follow the portal's event feed in an interactive view. Networks can be
picked and joined from the list; the view reconnects while the device
restarts.`,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM)
	defer stop()

	c, err := portalClient(cmd, printer(cmd))
	if err != nil {
		return err
	}
	prog := tea.NewProgram(monitor.New(ctx, c), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := prog.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("watch: %w", err)
	}
	return nil
}
