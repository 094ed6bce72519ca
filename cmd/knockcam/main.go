package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	httpAdapter "github.com/bft-labs/knockcam/internal/adapters/http"
	"github.com/bft-labs/knockcam/internal/adapters/gpio"
	"github.com/bft-labs/knockcam/internal/adapters/gstcam"
	logAdapter "github.com/bft-labs/knockcam/internal/adapters/log"
	"github.com/bft-labs/knockcam/internal/api"
	"github.com/bft-labs/knockcam/internal/app"
	"github.com/bft-labs/knockcam/internal/camera"
	"github.com/bft-labs/knockcam/internal/cliconfig"
	"github.com/bft-labs/knockcam/internal/clock"
	"github.com/bft-labs/knockcam/internal/domain"
	"github.com/bft-labs/knockcam/internal/metrics"
	"github.com/bft-labs/knockcam/internal/ports"
)

// patternSource selects the built-in test pattern instead of GStreamer.
const patternSource = "pattern"

const longHelp = `Watch a door-knock sensor, notify a backend on every knock and serve the
camera as an MJPEG live feed and single-shot JPEG captures.

Configuration is read from $HOME/.knockcam/config.toml (or --config),
then KNOCKCAM_* environment variables, then flags.`

var exampleUsage = strings.TrimSpace(`
  knockcam --backend-url http://10.39.154.49:4000 --sensor gpiochip0:17
  knockcam --sensor file:/tmp/knock --camera-source pattern --log-level debug
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	cfg := cliconfig.DefaultConfig()
	var cfgPath string

	log := cliconfig.Logger()

	root := &cobra.Command{
		Use:           "knockcam",
		Short:         "Knock sensor notifier with a live camera feed",
		Long:          longHelp,
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgFile := cfgPath
			if cfgFile == "" {
				cfgFile = cliconfig.DefaultConfigPath()
			}

			changed := map[string]bool{}
			cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

			if cfgFile != "" && cliconfig.FileExists(cfgFile) {
				fc, err := cliconfig.LoadFileConfig(cfgFile)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				if err := cliconfig.ApplyFileConfig(&cfg, fc, changed); err != nil {
					return err
				}
			} else if cfgPath != "" {
				return fmt.Errorf("config file not found: %s", cfgPath)
			}

			if err := cliconfig.ApplyEnvConfig(&cfg, changed); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := cliconfig.SetLogLevel(cfg.LogLevel); err != nil {
				return err
			}

			log.Debug().Interface("config", cfg).Msg("configuration")
			return run(cmd.Context(), cfg, logAdapter.NewZerologAdapter(log))
		},
	}

	root.Flags().StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.knockcam/config.toml)")
	root.Flags().StringVar(&cfg.BackendURL, "backend-url", cfg.BackendURL, "backend that receives POST /knock")
	root.Flags().StringVar(&cfg.Sensor, "sensor", cfg.Sensor, "sensor line: chip:offset, bare offset, or file:/path")
	root.Flags().DurationVar(&cfg.Debounce, "debounce", cfg.Debounce, "minimum spacing between accepted knocks")
	root.Flags().DurationVar(&cfg.Settle, "settle", cfg.Settle, "pause after each dispatch before watching again")
	root.Flags().DurationVar(&cfg.DegradedBackoff, "degraded-backoff", cfg.DegradedBackoff, "pause after a watcher fault")
	root.Flags().DurationVar(&cfg.DispatchTimeout, "dispatch-timeout", cfg.DispatchTimeout, "timeout for one knock notification")

	root.Flags().StringVar(&cfg.ListenAddr, "listen-addr", cfg.ListenAddr, "HTTP listen address")
	root.Flags().IntVar(&cfg.Port, "port", cfg.Port, "HTTP listen port")

	root.Flags().StringVar(&cfg.CameraSource, "camera-source", cfg.CameraSource, "GStreamer source element, or \"pattern\" for a synthetic feed")
	root.Flags().IntVar(&cfg.FrameWidth, "frame-width", cfg.FrameWidth, "captured frame width")
	root.Flags().IntVar(&cfg.FrameHeight, "frame-height", cfg.FrameHeight, "captured frame height")
	root.Flags().IntVar(&cfg.JPEGQuality, "jpeg-quality", cfg.JPEGQuality, "JPEG quality (1-100)")
	root.Flags().DurationVar(&cfg.StreamInterval, "stream-interval", cfg.StreamInterval, "pause between live feed frames")

	root.Flags().DurationVar(&cfg.ShutdownGrace, "shutdown-grace", cfg.ShutdownGrace, "time allowed for a clean shutdown")
	root.Flags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("knockcam")
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg cliconfig.Config, logger ports.Logger) error {
	line, err := gpio.Open(cfg.Sensor, logger)
	if err != nil {
		return fmt.Errorf("open sensor: %w", err)
	}
	cam := camera.NewLocked(openCamera(cfg, logger))
	defer func() {
		if err := cam.Close(); err != nil {
			logger.Warn("camera close failed", ports.Err(err))
		}
		if err := line.Close(); err != nil {
			logger.Warn("sensor close failed", ports.Err(err))
		}
		logger.Info("resources released")
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)
	if err := m.Register(); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	clk := clock.Real()

	notifier := httpAdapter.NewNotifier(nil, httpAdapter.NotifierConfig{
		BackendURL: cfg.BackendURL,
		Timeout:    cfg.DispatchTimeout,
		UserAgent:  "knockcam/" + getVersion(),
	}, logger)
	debouncer := app.NewDebouncer(line, cfg.Debounce, clk, logger)
	watcher := app.NewWatcher(app.WatcherConfig{
		SettleDelay:     cfg.Settle,
		DegradedBackoff: cfg.DegradedBackoff,
	}, debouncer, notifier, clk, logger, m)

	frames := app.NewFrameSource(cam, app.FrameSourceConfig{
		Interval:    cfg.StreamInterval,
		JPEGQuality: cfg.JPEGQuality,
	}, clk, logger, m)
	capturer := app.NewCapturer(cam, cfg.JPEGQuality, clk)

	handler := api.New(api.Config{
		BackendURL: cfg.BackendURL,
		Sensor:     cfg.Sensor,
		Version:    getVersion(),
	}, api.Deps{
		Capturer:        capturer,
		Frames:          frames,
		Status:          watcher,
		CameraAvailable: camera.Available(cam),
		Metrics:         m,
		Gatherer:        registry,
		Clock:           clk,
	}, logger)
	server := api.NewHTTPServer(cfg.Addr(), handler)

	agent := app.NewAgent(app.AgentConfig{ShutdownGrace: cfg.ShutdownGrace}, watcher, server, logger, m)

	logger.Info("knockcam starting",
		ports.String("addr", cfg.Addr()),
		ports.Int("port", cfg.Port),
		ports.String("backend_url", notifier.URL()),
		ports.String("sensor", cfg.Sensor),
		ports.Bool("camera_available", camera.Available(cam)),
	)

	if err := agent.Start(ctx); err != nil {
		return fmt.Errorf("start agent: %w", err)
	}

	select {
	case <-ctx.Done():
		logger.Info("received signal, stopping")
	case <-agent.Crashed():
		logger.Error("agent crashed")
	}

	if err := agent.Stop(); err != nil {
		if errors.Is(err, domain.ErrShutdownTimeout) {
			logger.Warn("shutdown grace exceeded", ports.Duration("grace", cfg.ShutdownGrace))
		}
		return err
	}
	return nil
}

// openCamera returns the configured camera, or a stub that fails every
// capture when the device cannot be opened so the watcher still runs.
func openCamera(cfg cliconfig.Config, logger ports.Logger) ports.Camera {
	if cfg.CameraSource == patternSource {
		return camera.NewPattern(cfg.FrameWidth, cfg.FrameHeight)
	}
	cam, err := gstcam.Open(gstcam.Config{
		Source: cfg.CameraSource,
		Width:  cfg.FrameWidth,
		Height: cfg.FrameHeight,
	}, logger)
	if err != nil {
		logger.Error("camera unavailable, serving errors for capture and feed",
			ports.String("source", cfg.CameraSource),
			ports.Err(err),
		)
		return camera.Unavailable{Cause: err}
	}
	return cam
}
