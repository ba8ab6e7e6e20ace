package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/shiftledger/shiftledger/internal/activitylog"
	"github.com/shiftledger/shiftledger/internal/daemon"
	"github.com/shiftledger/shiftledger/internal/device"
	"github.com/shiftledger/shiftledger/internal/erp"
	"github.com/shiftledger/shiftledger/internal/logging"
	"github.com/shiftledger/shiftledger/internal/syncer"
	"github.com/shiftledger/shiftledger/internal/tracker"
	"github.com/shiftledger/shiftledger/internal/web"
	"github.com/shiftledger/shiftledger/pkg/input"
	"github.com/shiftledger/shiftledger/pkg/screenshot"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	foreground bool
	withWeb    bool
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the tracking agent",
	Long: `Start the tracking agent. By default the agent detaches from the terminal
and logs to the configured log file; use --foreground to keep it attached.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if withWeb {
			cfg.Web.Enabled = true
		}

		dm := daemon.New(cfg.Daemon.PIDFile)
		running, pid, err := dm.IsRunning()
		if err != nil {
			return errors.Wrap(err, "failed to check agent status")
		}
		if running {
			return errors.Wrapf(daemon.ErrAlreadyRunning, "pid %d", pid)
		}

		if !foreground && !daemon.IsChild() {
			pid, err := daemon.Spawn(os.Args[1:])
			if err != nil {
				return err
			}
			fmt.Printf("Agent started (PID: %d)\n", pid)
			if cfg.Web.Enabled {
				fmt.Printf("Web API available at: http://%s:%d\n", cfg.Web.Host, cfg.Web.Port)
			}
			fmt.Printf("Logs: %s\n", cfg.Daemon.LogFile)
			return nil
		}

		if daemon.IsChild() {
			f, err := logging.OpenFile(cfg.Daemon.LogFile)
			if err != nil {
				return err
			}
			defer f.Close()
			log = logging.New(cfg.Log.Level, cfg.Log.Format, f)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return runAgent(ctx, dm)
	},
}

func runAgent(ctx context.Context, dm *daemon.Daemon) error {
	if err := dm.Acquire(); err != nil {
		return err
	}
	defer func() {
		if err := dm.Release(); err != nil {
			log.Warn("failed to remove PID file", "error", err)
		}
	}()

	db, repo, err := openLedger()
	if err != nil {
		return err
	}
	defer db.Close()

	source, err := input.New()
	if err != nil {
		return errors.Wrap(err, "cannot measure user input")
	}
	defer source.Close()
	gateway := input.NewGateway(source, cfg.Tracker.InputPollInterval, log)
	log.Info("input source ready", "sources", source.Name(), "display_server", input.DetectDisplayServer())

	activity, err := activitylog.New(cfg.ActivityLog.Dir)
	if err != nil {
		return err
	}
	devices := device.NewStore(cfg.Device.Path)

	deps := tracker.Deps{
		Ledger:   repo,
		Input:    gateway,
		Activity: activity,
	}

	var engine *syncer.Engine
	if cfg.SyncConfigured() {
		client := erp.New(cfg.Sync.BaseURL, cfg.Sync.APIKey, cfg.Sync.APISecret, cfg.Sync.Timeout)
		engine = syncer.New(repo, client, devices, syncer.Options{
			Interval:   cfg.Sync.Interval,
			RowTimeout: cfg.Sync.RowTimeout,
		}, log)
		deps.Sync = engine
	} else {
		log.Info("ERP sync disabled", "reason", "no base URL configured or sync turned off")
	}

	if cfg.Screenshot.Enabled {
		capturer, err := screenshot.New(input.DetectDisplayServer())
		if err != nil {
			log.Warn("screenshots disabled", "error", err)
		} else {
			log.Info("screenshots enabled", "tool", capturer.ToolName(), "dir", cfg.Screenshot.Dir)
			deps.Capturer = capturer
		}
	}

	svc := tracker.NewService(deps, tracker.Options{
		Policy:       cfg.Policy(),
		TickInterval: cfg.Tracker.TickInterval,
		Screenshot: tracker.ScreenshotOptions{
			Enabled:         cfg.Screenshot.Enabled,
			IntervalMinutes: cfg.Screenshot.IntervalMinutes,
			DuringOvertime:  cfg.Screenshot.DuringOvertime,
			Dir:             cfg.Screenshot.Dir,
		},
	}, log)

	log.Info("starting agent", "pid", os.Getpid())
	log.Debug(cfg.String())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return gateway.Run(gctx) })
	g.Go(func() error { return svc.Start(gctx) })
	if engine != nil {
		g.Go(func() error { return engine.Start(gctx) })
	}
	if cfg.Web.Enabled {
		handler := web.NewHandler(repo, devices, activity, svc, log)
		server := web.NewServer(cfg.Web.Host, cfg.Web.Port, web.NewRouter(handler, log), log)
		g.Go(func() error { return server.Run(gctx) })
	}

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("agent stopped")
	return nil
}

func init() {
	startCmd.Flags().BoolVarP(&foreground, "foreground", "f", false, "run attached to the terminal")
	startCmd.Flags().BoolVar(&withWeb, "web", false, "serve the read-only web API")
}
