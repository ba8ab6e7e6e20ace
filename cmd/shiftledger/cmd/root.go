package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/shiftledger/shiftledger/internal/config"
	"github.com/shiftledger/shiftledger/internal/database"
	"github.com/shiftledger/shiftledger/internal/logging"
	"github.com/spf13/cobra"
)

const appName = "shiftledger"

var (
	cfgFile  string
	logLevel string
	cfg      *config.Config
	log      *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   appName,
	Short: "Workday tracker that records work time and syncs it to ERPNext",
	Long: `shiftledger runs in the background, measures keyboard and mouse activity,
and keeps a local ledger of normal and overtime hours per day. Closed days are
pushed to ERPNext/Frappe as Employee Checkins and Timesheets.`,
	PersistentPreRunE: setup,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func setup(_ *cobra.Command, _ []string) error {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.ResolvePaths(); err != nil {
		return err
	}

	log = logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	return nil
}

// openLedger connects to and migrates the ledger database.
func openLedger() (*database.DB, *database.Repository, error) {
	db, err := database.Connect(cfg.Database.Path)
	if err != nil {
		return nil, nil, err
	}
	if err := db.Initialize(); err != nil {
		db.Close()
		return nil, nil, err
	}
	return db, database.NewRepository(db), nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, toml or json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")

	rootCmd.AddCommand(startCmd, stopCmd, statusCmd, syncCmd, reportCmd, registerCmd, probeCmd, versionCmd)
}
