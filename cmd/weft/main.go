// Command weft runs a demo workload on the scheduler: it schedules a
// configurable mix of tasks across every priority level on a real-time host
// and logs the order and timing of their slices, then replays the same mix
// through the lane batching model.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "weft",
		Short:         "Cooperative priority task scheduler demo",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("config", "", "path to YAML config file")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newLanesCmd())

	if err := rootCmd.Execute(); err != nil {
		_, _ = os.Stderr.WriteString("weft: " + err.Error() + "\n")
		os.Exit(1)
	}
}
