package main

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"

	fyneapp "fyne.io/fyne/v2/app"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"screenveil/internal/app"
	"screenveil/internal/config"
	"screenveil/internal/logger"
	"screenveil/internal/shutdown"
)

const appID = "io.screenveil.overlay"

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	cfg := config.DefaultConfig()
	var cfgPath string
	var once bool

	root := &cobra.Command{
		Use:     "screenveil",
		Short:   "Obscure detected subjects on screen behind a live blur overlay",
		Version: getVersion(),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgFile := cfgPath
			if cfgFile == "" {
				cfgFile = config.DefaultConfigPath()
			}

			changed := map[string]bool{}
			cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

			if cfgFile != "" && config.FileExists(cfgFile) {
				fc, err := config.LoadFileConfig(cfgFile)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				if err := config.ApplyFileConfig(&cfg, fc, changed); err != nil {
					return fmt.Errorf("apply config: %w", err)
				}
			}

			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			return run(cfg, once)
		},
	}

	flags := root.Flags()
	flags.StringVar(&cfgPath, "config", "", "path to TOML config file")
	flags.StringVar(&cfg.TargetLabel, "target-label", cfg.TargetLabel, "label to obscure (adult or child)")
	flags.IntVar(&cfg.BlurStrength, "blur-strength", cfg.BlurStrength, "blur strength 1-10")
	flags.StringVar(&cfg.ProcessingResolutionWidth, "resolution", cfg.ProcessingResolutionWidth, "processing resolution (low, medium, high)")
	flags.BoolVar(&cfg.AdaptiveCadence, "adaptive-cadence", cfg.AdaptiveCadence, "boost capture cadence on interaction")
	flags.BoolVar(&cfg.PreferHardwareAccel, "prefer-hw-accel", cfg.PreferHardwareAccel, "prefer the accelerated blur primitive")
	flags.Float64Var(&cfg.BaseCadenceHz, "base-cadence", cfg.BaseCadenceHz, "base capture cadence in Hz")
	flags.Float64Var(&cfg.BoostCadenceHz, "boost-cadence", cfg.BoostCadenceHz, "boosted capture cadence in Hz")
	flags.Float64Var(&cfg.ConfidenceThreshold, "confidence-threshold", cfg.ConfidenceThreshold, "detection acceptance threshold")
	flags.StringVar(&cfg.CascadeModelPath, "cascade-model", cfg.CascadeModelPath, "path to the detector cascade model")
	flags.StringVar(&cfg.ClassifierPath, "classifier-model", cfg.ClassifierPath, "path to the optional classifier model")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	flags.BoolVar(&cfg.DebugMode, "debug", cfg.DebugMode, "halt on lifecycle invariant violations")
	flags.BoolVar(&once, "once", false, "run a single cycle and exit")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfg config.Config, once bool) error {
	log := logger.NewConsoleLogger(logger.ParseLevel(cfg.LogLevel))

	fyneApp := fyneapp.NewWithID(appID)

	application, err := app.New(cfg, fyneApp, log)
	if err != nil {
		return fmt.Errorf("startup failed: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := application.Start(ctx); err != nil {
		application.Shutdown()
		return fmt.Errorf("startup failed: %w", err)
	}

	if once {
		// The event loop must run even for a single cycle: presenting,
		// painting, and the shutdown release are all marshaled onto it.
		go func() {
			application.RunOnce(ctx)
			application.Shutdown()
			fyneApp.Quit()
		}()
		fyneApp.Run()
		return nil
	}

	manager := shutdown.NewManager(log)
	manager.Register(application)
	manager.Listen()

	go func() {
		<-manager.Done()
		fyneApp.Quit()
	}()

	// Blocks until the overlay app exits.
	fyneApp.Run()
	manager.Shutdown()
	return nil
}
