package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/eventlog"
	"github.com/ayusman/mudra/internal/httpjson"
	"github.com/ayusman/mudra/internal/lifecycle"
	"github.com/ayusman/mudra/internal/oracle"
	"github.com/ayusman/mudra/internal/plugin"
	"github.com/ayusman/mudra/internal/server"
	"github.com/ayusman/mudra/internal/store"
	"github.com/ayusman/mudra/internal/student"
	"github.com/ayusman/mudra/internal/tray"
	"github.com/ayusman/mudra/pkg/logger"
	"github.com/ayusman/mudra/pkg/metrics"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		os.Stderr.WriteString("mudra: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// defaults -> $MUDRA_CONFIG -> MUDRA_* env
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	if err := logger.Init(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format}); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	log := logger.Named("main")
	metrics.Configure(
		metrics.WithNamespace(cfg.Metrics.Namespace),
		metrics.WithSubsystem(cfg.Metrics.Subsystem),
		metrics.WithHistogramBuckets(cfg.Metrics.LatencyBucketsMS),
	)

	dataDir, err := dataDir()
	if err != nil {
		return err
	}
	dbPath := cfg.Store.Path
	if dbPath == "" {
		dbPath = filepath.Join(dataDir, "mudra.db")
	}
	st, err := store.New(dbPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	log.Info(ctx, "store opened", logger.String("path", st.Path()))

	if n, err := plugin.SeedBindings(st.Bindings()); err != nil {
		return fmt.Errorf("seed bindings: %w", err)
	} else if n > 0 {
		log.Info(ctx, "seeded default bindings", logger.Int("count", n))
	}

	plugins := plugin.NewManager(pluginDir(cfg.Executor.PluginDir, dataDir))
	if err := plugins.Discover(); err != nil {
		log.Warn(ctx, "plugin discovery failed", logger.Error(err))
	}

	exec, err := newExecutor(cfg, st, plugins)
	if err != nil {
		return err
	}
	verifier := newOracle(cfg)

	var tr *tray.Tray
	if cfg.Tray.Enabled {
		tr = tray.New(false, lifecycle.Mode(cfg.Lifecycle.Mode))
	}
	hub := server.NewHub()
	sink, err := newSink(cfg, st, hub, tr)
	if err != nil {
		return err
	}
	defer sink.Close()

	lcOpts := []lifecycle.Option{lifecycle.WithLogger(logger.Named("lifecycle"))}
	if cfg.Student.Enabled {
		lcOpts = append(lcOpts, lifecycle.WithPredictor(student.New(cfg.Student.URL, config.Duration(cfg.Student.TimeoutMS))))
	}
	lc := lifecycle.NewManager(cfg.LifecycleConfig(), verifier, exec, sink, lcOpts...)

	a := app.New(app.Config{
		Store:            st,
		CameraID:         cfg.Camera.Device,
		MotionThresh:     cfg.Camera.MotionThreshold,
		ActiveFPS:        cfg.Camera.ActiveFPS,
		IdleFPS:          cfg.Camera.IdleFPS,
		IdleAfter:        config.Duration(cfg.Camera.IdleAfterMS),
		JPEGQuality:      cfg.Camera.JPEGQuality,
		Gesture:          cfg.Gesture(),
		EvidenceCapacity: cfg.Evidence.Capacity,
		SampleFrames:     cfg.Evidence.SampleFrames,
		ForceReject:      cfg.Oracle.ForceReject,
	}, lc, app.WithDetector(newDetector(ctx, cfg)), app.WithPublisher(hub))

	if err := a.Start(); err != nil {
		return err
	}

	if cfg.Server.Enabled {
		srv := server.New(server.Config{
			StaticDir:  findWebDir(dataDir),
			Store:      st,
			Plugins:    plugins,
			Controller: a,
			Frames:     a,
			Hub:        hub,
			Metrics:    true,
		})
		go func() {
			if err := srv.Run(ctx, cfg.Server.Addr); err != nil {
				log.Error(ctx, "server failed", logger.Error(err))
				stop()
			}
		}()
	}

	if tr != nil {
		tr.SetEnabled(a.IsEnabled())
		tr.SetMode(lc.Mode())
		tr.OnToggle(a.SetEnabled)
		tr.OnMode(a.SetMode)
		tr.OnQuit(stop)
		go func() {
			<-ctx.Done()
			tr.Quit()
		}()
		tr.Run()
	}
	<-ctx.Done()

	log.Info(ctx, "shutting down")
	a.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := lc.Close(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

func dataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home directory: %w", err)
	}
	dir := filepath.Join(home, ".mudra")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create data directory: %w", err)
	}
	return dir, nil
}

func newExecutor(cfg *config.Config, st *store.Store, plugins *plugin.Manager) (lifecycle.Executor, error) {
	timeout := config.Duration(cfg.Executor.TimeoutMS)
	switch cfg.Executor.Kind {
	case "plugin":
		return plugin.NewDispatcher(st.Bindings(), plugins, plugin.NewExecutor(timeout)), nil
	case "remote":
		return plugin.NewRemoteExecutor(cfg.Executor.URL, timeout, false), nil
	case "dryrun":
		return plugin.NewDryRun(), nil
	}
	return nil, fmt.Errorf("unknown executor kind %q", cfg.Executor.Kind)
}

func newOracle(cfg *config.Config) oracle.Oracle {
	if cfg.Oracle.Kind == "http" {
		return oracle.NewClient(cfg.Oracle.URL, config.Duration(cfg.Lifecycle.LabelTimeoutMS),
			httpjson.WithToken(cfg.Oracle.Token))
	}
	stub := oracle.NewStub(config.Duration(cfg.Oracle.StubLatencyMS))
	stub.ForceReject = cfg.Oracle.ForceReject
	return stub
}

func newDetector(ctx context.Context, cfg *config.Config) detector.Detector {
	if cfg.Detector.Kind == "mediapipe" {
		mp, err := detector.NewMediaPipeDetector(cfg.DetectorConfig())
		if err == nil {
			return mp
		}
		logger.Named("main").Warn(ctx, "mediapipe unavailable, using mock detector", logger.Error(err))
	}
	return detector.NewMockDetector()
}

// newSink fans each event out to the store, the live feed, the tray and the
// optional NDJSON log. Writes are queued so the lifecycle never waits on disk.
func newSink(cfg *config.Config, st *store.Store, hub *server.Hub, tr *tray.Tray) (eventlog.Sink, error) {
	sinks := []eventlog.Sink{st.EventSink(), hub}
	if tr != nil {
		sinks = append(sinks, tr)
	}
	if cfg.EventLog.Path != "" {
		f, err := eventlog.NewFile(cfg.EventLog.Path, eventlog.WithMaxSize(int64(cfg.EventLog.MaxSizeMB)<<20))
		if err != nil {
			return nil, fmt.Errorf("open event log: %w", err)
		}
		sinks = append(sinks, f)
	}
	log := logger.Named("eventlog")
	return eventlog.NewAsync(eventlog.NewMulti(sinks...), eventlog.WithOnError(func(err error) {
		log.Warn(context.Background(), "event sink write failed", logger.Error(err))
	})), nil
}

func pluginDir(configured, dataDir string) string {
	if configured != "" {
		return configured
	}
	if info, err := os.Stat("plugins"); err == nil && info.IsDir() {
		if abs, err := filepath.Abs("plugins"); err == nil {
			return abs
		}
	}
	return filepath.Join(dataDir, "plugins")
}

// findWebDir returns the first of web, ../web, ../../web and ~/.mudra/web
// that exists, or "".
func findWebDir(dataDir string) string {
	for _, p := range []string{"web", "../web", "../../web", filepath.Join(dataDir, "web")} {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
			return p
		}
	}
	return ""
}
