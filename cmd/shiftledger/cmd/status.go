package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/shiftledger/shiftledger/internal/daemon"
	"github.com/shiftledger/shiftledger/internal/device"
	"github.com/shiftledger/shiftledger/internal/reporter"
	"github.com/shiftledger/shiftledger/internal/workday"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show agent, registration and today's totals",
	RunE: func(cmd *cobra.Command, args []string) error {
		bold := color.New(color.Bold)
		ok := color.New(color.FgGreen)
		warn := color.New(color.FgYellow)

		dm := daemon.New(cfg.Daemon.PIDFile)
		running, pid, err := dm.IsRunning()
		if err != nil {
			return errors.Wrap(err, "failed to check agent status")
		}
		bold.Print("Agent:      ")
		if running {
			ok.Printf("running (PID: %d)\n", pid)
		} else {
			warn.Println("not running")
		}

		bold.Print("Employee:   ")
		dev, err := device.NewStore(cfg.Device.Path).Load()
		switch {
		case errors.Is(err, device.ErrNotRegistered):
			warn.Printf("not registered (run '%s register')\n", appName)
		case err != nil:
			return err
		default:
			name := dev.EmployeeName
			if name == "" {
				name = "-"
			}
			fmt.Printf("%s (%s) on %s\n", dev.EmployeeID, name, dev.MachineName)
		}

		bold.Print("ERP sync:   ")
		if cfg.SyncConfigured() {
			ok.Printf("enabled (%s, every %v)\n", cfg.Sync.BaseURL, cfg.Sync.Interval)
		} else {
			warn.Println("disabled")
		}

		db, repo, err := openLedger()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()

		today := workday.DateOf(time.Now())
		rec, err := repo.GetDay(ctx, today)
		if err != nil {
			return err
		}
		bold.Print("Today:      ")
		if rec == nil {
			fmt.Println("no work recorded")
		} else {
			s := reporter.Summarize(rec)
			fmt.Printf("%.2fh normal, %.2fh overtime", s.NormalHours, s.OTHours)
			if s.LunchUsed {
				fmt.Print(", lunch taken")
			}
			fmt.Printf(", %d break(s)\n", s.BreaksUsed)
		}

		errs, err := repo.RecentErrors(5)
		if err != nil {
			return err
		}
		if len(errs) > 0 {
			bold.Println("\nRecent errors:")
			for _, e := range errs {
				color.Red("  %s [%s] %s", e.Timestamp.Format("2006-01-02 15:04"), e.Source, e.ErrorMsg)
			}
		}
		return nil
	},
}
