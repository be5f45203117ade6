package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"unicode"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "flipcube",
	Short: "Command-line client for TimeFlip time-tracking cubes",
	Long: `Command-line client for TimeFlip Bluetooth time-tracking cubes:

- Discover nearby cubes
- Read name, firmware, battery, facet, status and the recorded history
- Clear the history, rename the cube, change its password
- Lock the cube or pause time tracking

Both the legacy (before 3.47) and the current firmware protocols are supported.`,
	Version: formatVersion(version),
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Ctrl+C is a normal exit, not an error - exit silently
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
		os.Exit(1)
	}
}

func init() {
	// Silence Cobra's "Error:" prefix - main() prints clean errors
	rootCmd.SilenceErrors = true
	rootCmd.SetVersionTemplate(fmt.Sprintf("flipcube {{.Version}} (commit %s, built %s)\n", commit, date))

	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(clearHistoryCmd)
	rootCmd.AddCommand(setNameCmd)
	rootCmd.AddCommand(setPasswordCmd)
	rootCmd.AddCommand(lockCmd)
	rootCmd.AddCommand(pauseCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(characteristicsCmd)

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Path to a YAML config file")
	flags.StringP("address", "a", "", "Cube address (overrides config)")
	flags.String("password", "", "Cube password, 6 characters (overrides config)")
	flags.Duration("connect-timeout", 0, "Connection timeout (overrides config)")
	flags.StringP("output", "o", "", "Output format: text or json (overrides config)")
	flags.Bool("no-color", false, "Disable colored output")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.Bool("verbose", false, "Verbose logging, same as --log-level debug")

	// Add -v as a short flag for --version
	rootCmd.Flags().BoolP("version", "v", false, "Show version information")
}
