package cmd

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/shiftledger/shiftledger/internal/daemon"
	"github.com/spf13/cobra"
)

var stopTimeout time.Duration

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running agent",
	RunE: func(cmd *cobra.Command, args []string) error {
		dm := daemon.New(cfg.Daemon.PIDFile)
		pid, err := dm.Stop(stopTimeout)
		if errors.Is(err, daemon.ErrNotRunning) {
			fmt.Println("Agent is not running")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Printf("Agent stopped (PID: %d)\n", pid)
		return nil
	},
}

func init() {
	stopCmd.Flags().DurationVar(&stopTimeout, "timeout", 10*time.Second, "how long to wait for the agent to exit")
}
