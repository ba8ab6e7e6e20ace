package cmd

import (
	"fmt"

	"github.com/shiftledger/shiftledger/internal/models"
	"github.com/shiftledger/shiftledger/internal/reporter"
	"github.com/spf13/cobra"
)

var (
	reportJSON bool
	reportDays int
)

var reportCmd = &cobra.Command{
	Use:       "report [day|week|month]",
	Short:     "Summarize recorded work hours",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"day", "today", "week", "month"},
	RunE: func(cmd *cobra.Command, args []string) error {
		db, repo, err := openLedger()
		if err != nil {
			return err
		}
		defer db.Close()

		rep := reporter.New(repo)

		var report *models.Report
		if reportDays > 0 {
			report, err = rep.LastDays(cmd.Context(), reportDays)
		} else {
			period := "day"
			if len(args) > 0 {
				period = args[0]
			}
			report, err = rep.GenerateReport(cmd.Context(), period)
		}
		if err != nil {
			return err
		}

		if reportJSON {
			out, err := rep.FormatReportJSON(report)
			if err != nil {
				return err
			}
			fmt.Println(out)
			return nil
		}
		fmt.Print(rep.FormatReportText(report))
		return nil
	},
}

func init() {
	reportCmd.Flags().BoolVar(&reportJSON, "json", false, "output JSON")
	reportCmd.Flags().IntVar(&reportDays, "days", 0, "report the last N days instead of a calendar period")
}
