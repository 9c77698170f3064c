package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/spf13/cobra"

	"github.com/tphakala/withu/cmd/analyze"
	"github.com/tphakala/withu/cmd/config"
	"github.com/tphakala/withu/cmd/devices"
	"github.com/tphakala/withu/cmd/monitor"
	"github.com/tphakala/withu/cmd/serve"
	"github.com/tphakala/withu/cmd/simulate"
	"github.com/tphakala/withu/internal/buildinfo"
	"github.com/tphakala/withu/internal/conf"
	"github.com/tphakala/withu/internal/errors"
	"github.com/tphakala/withu/internal/logger"
)

// SkipSetup marks commands that run without loading settings.
const SkipSetup = "withu/skip-setup"

const sentryFlushTimeout = 2 * time.Second

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings, info *buildinfo.Context) *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	rootCmd := &cobra.Command{
		Use:           "withu",
		Short:         "Emergency sound monitor",
		Long:          "withu listens for sirens, fire alarms and smoke detectors and raises an alert when one is heard.",
		Version:       info.GetVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default searches ./, ~/.config/withu and /etc/withu)")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Enable debug output")

	rootCmd.AddCommand(
		monitor.Command(settings),
		analyze.Command(settings),
		simulate.Command(settings),
		serve.Command(settings),
		devices.Command(),
		config.Command(settings, SkipSetup),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if cmd.Annotations[SkipSetup] == "true" {
			return nil
		}

		loaded, err := conf.Load(configPath)
		if err != nil {
			return err
		}
		*settings = *loaded
		if debug {
			settings.Debug = true
		}
		return initialize(settings, info)
	}

	return rootCmd
}

// initialize installs the global logger and optional error telemetry.
func initialize(settings *conf.Settings, info *buildinfo.Context) error {
	if settings.Debug {
		settings.Logging.DefaultLevel = string(logger.LogLevelDebug)
		if settings.Logging.Console != nil {
			settings.Logging.Console.Level = string(logger.LogLevelDebug)
		}
	}

	cl, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.SetGlobal(cl)

	if settings.Telemetry.Sentry.Enabled {
		if err := errors.InitSentry(settings.Telemetry.Sentry.DSN, info.Release(), settings.Debug); err != nil {
			return err
		}
	}

	log := logger.Global().Module("main")
	log.Debug("settings loaded",
		logger.String("config_file", settings.ConfigFile),
		logger.String("version", info.GetVersion()),
		logger.String("backend", settings.Capture.Backend))
	return nil
}

// Execute runs the command line and returns the process exit code.
func Execute(info *buildinfo.Context) int {
	settings := &conf.Settings{}
	rootCmd := RootCommand(settings, info)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)

	if settings.Telemetry.Sentry.Enabled {
		sentry.Flush(sentryFlushTimeout)
	}
	if cerr := logger.Global().Close(); cerr != nil {
		fmt.Fprintf(os.Stderr, "failed to close logger: %v\n", cerr)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
