package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/baby-monitor/internal/config"
	"github.com/fpang/baby-monitor/internal/logging"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

// CLI flags
var (
	envFileFlag  string
	maxStepsFlag int
	frameOutFlag string
	forceFlag    bool
)

// rootCmd is the main Cobra command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "baby-monitor",
	Short: "Camera-based baby safety monitor",
	Long: `baby-monitor watches an RTSP camera, escalates motion to a Gemini
multi-perspective safety analysis, emails an alert when the risk score
crosses the configured threshold, and keeps a diary that is summarised
into a daily digest email.

Configuration is read from the environment, optionally seeded from a
.env file.

Examples:
  baby-monitor run
  baby-monitor run --max-steps 200
  baby-monitor check-camera --out frame.jpg
  baby-monitor digest --force`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init()
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the monitoring loop until interrupted",
	RunE:  runMonitor,
}

var checkCameraCmd = &cobra.Command{
	Use:   "check-camera",
	Short: "Check the camera is reachable and grab one frame",
	RunE:  runCheckCamera,
}

var digestCmd = &cobra.Command{
	Use:   "digest",
	Short: "Send the daily digest if it is due",
	RunE:  runDigest,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFileFlag, "env-file", ".env", "Optional env file loaded before the environment")
	runCmd.Flags().IntVar(&maxStepsFlag, "max-steps", -1, "Stop after this many pipeline steps (overrides MAX_STEPS; 0 = unlimited)")
	checkCameraCmd.Flags().StringVarP(&frameOutFlag, "out", "o", "", "Write the captured frame to this JPEG file")
	digestCmd.Flags().BoolVar(&forceFlag, "force", false, "Send even before the configured digest time")
	rootCmd.AddCommand(runCmd, checkCameraCmd, digestCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func loadConfig() *config.Config {
	cfg, err := config.Load(envFileFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	return cfg
}

func runMonitor(cmd *cobra.Command, args []string) error {
	initStart := time.Now()
	ctx, stop := signalContext()
	defer stop()

	cfg := loadConfig()
	if maxStepsFlag >= 0 {
		cfg.MaxSteps = maxStepsFlag
	}
	a := mustBuild(ctx, cfg)

	a.startup("run").InitDuration(time.Since(initStart)).Log()
	if err := a.Orchestrator.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info().Msg("Baby monitor stopped")
	return nil
}

func runCheckCamera(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	cfg := loadConfig()
	cam := newCamera(cfg)
	defer cam.Release()

	if !cam.CheckReachable(ctx) {
		return errors.New("camera is not reachable")
	}
	log.Info().Str("url", cam.Redacted()).Msg("Camera reachable")

	if !cam.Start(ctx) {
		return errors.New("camera stream could not be opened")
	}
	f := cam.GetFrame(ctx)
	if f == nil {
		return errors.New("no frame received from camera")
	}
	log.Info().Int("width", f.Width()).Int("height", f.Height()).Msg("Frame captured")

	if frameOutFlag != "" {
		data, err := f.EncodeJPEG(cfg.ImageQuality)
		if err != nil {
			return err
		}
		if err := os.WriteFile(frameOutFlag, data, 0o644); err != nil {
			return err
		}
		log.Info().Str("file", frameOutFlag).Int("bytes", len(data)).Msg("Frame written")
	}
	return nil
}

func runDigest(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	cfg := loadConfig()
	a := mustBuild(ctx, cfg)
	a.startup("digest").Feature("force", forceFlag).Log()

	if !forceFlag && !a.Diary.ShouldSendDailyDigest() {
		log.Info().Int("entries", len(a.Diary.Entries())).Msg("Daily digest is not due")
		return nil
	}
	if !a.Diary.SendDailyDigest(ctx) {
		return errors.New("daily digest could not be sent")
	}
	return nil
}
