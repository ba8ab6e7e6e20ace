package cmd

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/shiftledger/shiftledger/pkg/input"
	"github.com/spf13/cobra"
)

var (
	probeDuration time.Duration
	probeInterval time.Duration
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Check that idle time can be measured in this session",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("Display server: %s\n", input.DetectDisplayServer())

		chain, err := input.New()
		if err != nil {
			return errors.Wrap(err, "cannot measure user input")
		}
		defer chain.Close()

		fmt.Print(chain.Status())
		fmt.Printf("\nSampling idle time for %v; move the mouse or type to see it reset.\n\n", probeDuration)

		ticker := time.NewTicker(probeInterval)
		defer ticker.Stop()
		timeout := time.After(probeDuration)

		active := cfg.Policy().ActiveWindow
		for count := 1; ; count++ {
			select {
			case <-cmd.Context().Done():
				return nil
			case <-timeout:
				fmt.Println("\nProbe completed")
				return nil
			case <-ticker.C:
				idle, err := chain.IdleTime(cmd.Context())
				if err != nil {
					color.Red("[%d] error: %v", count, err)
					continue
				}
				line := fmt.Sprintf("[%d] idle %-8v via %s", count, idle.Truncate(time.Second), chain.LastSuccessful())
				if idle < active {
					color.Green("%s", line)
				} else {
					color.Yellow("%s (inactive)", line)
				}
			}
		}
	},
}

func init() {
	probeCmd.Flags().DurationVar(&probeDuration, "duration", 30*time.Second, "how long to sample")
	probeCmd.Flags().DurationVar(&probeInterval, "interval", time.Second, "sampling interval")
}
