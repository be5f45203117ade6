package main

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/flipcube/internal/scanner"
)

// proberFactory builds the discovery prober (can be overridden in tests)
var proberFactory = scanner.NewConnectionProber

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Scan for nearby BLE devices and tell cubes apart from the rest",
	Long: `Scans for BLE advertisements, then connects to every device found and tries to
read the cube facet characteristic. Devices are reported as cubes, other BLE
devices, or devices that could not be connected to.`,
	Args: cobra.NoArgs,
	RunE: runDiscover,
}

func init() {
	discoverCmd.Flags().Duration("scan-timeout", 0, "Scan duration (overrides config)")
	discoverCmd.Flags().StringSlice("allow", nil, "Only probe devices with these addresses")
	discoverCmd.Flags().StringSlice("block", nil, "Never probe devices with these addresses")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	env, err := newEnv(cmd)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("scan-timeout") {
		env.cfg.ScanTimeout, _ = flags.GetDuration("scan-timeout")
	}
	allow, _ := flags.GetStringSlice("allow")
	block, _ := flags.GetStringSlice("block")

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, stop := signalContext(cmd)
	defer stop()

	progress := NewCountdownProgressPrinter(cmd.ErrOrStderr(), "Looking around", "Scanning", env.cfg.ScanTimeout)
	progress.Start()
	defer progress.Stop()

	devices, err := scanner.NewScanner(env.logger).Scan(ctx, &scanner.ScanOptions{
		Duration:        env.cfg.ScanTimeout,
		DuplicateFilter: true,
		AllowList:       allow,
		BlockList:       block,
	}, progress.Callback())
	if err != nil {
		return err
	}

	probe := proberFactory(probeTimeout(env.cfg.ConnectTimeout), env.logger)
	discovery, err := scanner.Classify(ctx, devices, probe, progress.Callback())
	if err != nil {
		return err
	}
	progress.Stop()

	return env.renderer.Discovery(env.out, discovery)
}

// probeTimeout keeps a full discovery bounded when many devices are around
func probeTimeout(connect time.Duration) time.Duration {
	return min(connect, 10*time.Second)
}
