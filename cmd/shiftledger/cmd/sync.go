package cmd

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/shiftledger/shiftledger/internal/device"
	"github.com/shiftledger/shiftledger/internal/erp"
	"github.com/shiftledger/shiftledger/internal/syncer"
	"github.com/spf13/cobra"
)

var syncPing bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push closed days to ERPNext once",
	Long: `Push every closed ledger day to ERPNext as IN/OUT Employee Checkins and
a daily Timesheet. Days already present in ERPNext are corrected in place, so
running this repeatedly is safe.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cfg.SyncConfigured() {
			return errors.New("ERP sync is not configured (set sync.base_url and credentials)")
		}

		client := erp.New(cfg.Sync.BaseURL, cfg.Sync.APIKey, cfg.Sync.APISecret, cfg.Sync.Timeout)
		if syncPing {
			if err := client.Ping(cmd.Context()); err != nil {
				return errors.Wrap(err, "ERP is not reachable")
			}
			color.Green("ERP reachable at %s", cfg.Sync.BaseURL)
			return nil
		}

		db, repo, err := openLedger()
		if err != nil {
			return err
		}
		defer db.Close()

		engine := syncer.New(repo, client, device.NewStore(cfg.Device.Path), syncer.Options{
			RowTimeout: cfg.Sync.RowTimeout,
		}, log)

		res, err := engine.Run(cmd.Context())
		if err != nil {
			return err
		}
		if len(res.Days) == 0 {
			fmt.Println("Nothing to sync")
			return nil
		}

		for _, d := range res.Days {
			if d.Err != nil {
				color.Red("%s  failed: %v", d.Date, d.Err)
				continue
			}
			fmt.Printf("%s  %.2fh  %s\n", d.Date, d.Hours, describe(d))
		}
		fmt.Printf("\n%d synced, %d failed\n", res.Synced, res.Failed)
		if res.Failed > 0 {
			return errors.Errorf("%d day(s) failed to sync", res.Failed)
		}
		return nil
	},
}

func describe(d syncer.DayResult) string {
	var parts []string
	if d.INCreated {
		parts = append(parts, "IN created")
	}
	switch {
	case d.OUTCreated:
		parts = append(parts, "OUT created")
	case d.OUTUpdated:
		parts = append(parts, "OUT moved")
	}
	switch {
	case d.TimesheetCreated:
		parts = append(parts, "timesheet created")
	case d.TimesheetReplaced:
		parts = append(parts, "timesheet replaced")
	}
	if len(parts) == 0 {
		return "up to date"
	}
	return strings.Join(parts, ", ")
}

func init() {
	syncCmd.Flags().BoolVar(&syncPing, "ping", false, "only check that ERPNext is reachable with the configured credentials")
}
