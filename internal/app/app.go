// Package app wires the camera, the hand detector, the intent engine and the
// event lifecycle into the running mudra pipeline.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/evidence"
	"github.com/ayusman/mudra/internal/features"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/lifecycle"
	"github.com/ayusman/mudra/internal/server/api"
	"github.com/ayusman/mudra/internal/store"
	"github.com/ayusman/mudra/pkg/logger"
)

// Pipeline defaults used when Config leaves a value at zero.
const (
	DefaultIdleFPS      = 2
	DefaultActiveFPS    = 15
	DefaultIdleAfter    = 3 * time.Second
	DefaultJPEGQuality  = 70
	DefaultSampleFrames = 8
)

// Config holds configuration options for the application.
type Config struct {
	Store        *store.Store
	CameraID     int
	MotionThresh float64
	ActiveFPS    int
	IdleFPS      int
	// IdleAfter is how long without motion before the camera drops back
	// to IdleFPS.
	IdleAfter   time.Duration
	JPEGQuality int

	Gesture          gesture.Config
	EvidenceCapacity int
	SampleFrames     int
	// ForceReject marks every submission so the verifier rejects it.
	ForceReject bool
}

// Publisher receives live pipeline output for connected UIs.
type Publisher interface {
	PublishProposal(p gesture.Proposal)
	PublishLandmarks(hands []detector.HandLandmarks)
}

// Option configures an App.
type Option func(*App)

// WithCamera replaces the OpenCV camera.
func WithCamera(c capture.Camera) Option {
	return func(a *App) { a.camera = c }
}

// WithDetector sets the hand detector.
func WithDetector(d detector.Detector) Option {
	return func(a *App) { a.detector = d }
}

// WithPublisher attaches a live publisher.
func WithPublisher(p Publisher) Option {
	return func(a *App) { a.pub = p }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(a *App) { a.log = l }
}

// App is the main application that turns camera frames into lifecycle events.
type App struct {
	config    Config
	camera    capture.Camera
	motion    *capture.MotionDetector
	detector  detector.Detector
	lifecycle *lifecycle.Manager
	pub       Publisher
	log       logger.Logger

	// engMu guards the engine and the evidence window, which are owned by
	// the frame loop but read by Status.
	engMu  sync.Mutex
	engine *gesture.Engine
	window *evidence.Window

	mu      sync.RWMutex
	enabled bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	cancel  context.CancelFunc

	frameMu   sync.RWMutex
	lastJPEG  []byte
	lastFrame time.Time

	frames atomic.Uint64
	fps    atomic.Int64
}

// New creates an App. Gesture detection starts disabled unless the store
// remembers otherwise.
func New(config Config, lc *lifecycle.Manager, opts ...Option) *App {
	if config.MotionThresh <= 0 {
		config.MotionThresh = 1.0
	}
	if config.ActiveFPS <= 0 {
		config.ActiveFPS = DefaultActiveFPS
	}
	if config.IdleFPS <= 0 {
		config.IdleFPS = DefaultIdleFPS
	}
	if config.IdleAfter <= 0 {
		config.IdleAfter = DefaultIdleAfter
	}
	if config.JPEGQuality <= 0 || config.JPEGQuality > 100 {
		config.JPEGQuality = DefaultJPEGQuality
	}
	if config.SampleFrames <= 0 {
		config.SampleFrames = DefaultSampleFrames
	}

	a := &App{
		config:    config,
		lifecycle: lc,
		log:       logger.Named("app"),
		window:    evidence.New(config.EvidenceCapacity),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.engine = gesture.NewEngine(config.Gesture, gesture.WithLogger(a.log.Named("engine")))
	if a.camera == nil {
		a.camera = capture.NewCamera(config.CameraID)
	}
	if a.detector == nil {
		a.detector = detector.NewMockDetector()
	}
	a.motion = capture.NewMotionDetector(config.MotionThresh)
	a.restore()
	return a
}

// restore applies the mode and enabled flag persisted by a previous run.
func (a *App) restore() {
	if a.config.Store == nil {
		return
	}
	settings := a.config.Store.Settings()
	if raw, err := settings.Get(store.SettingMode); err == nil {
		if mode, err := lifecycle.ParseMode(raw); err == nil && a.lifecycle != nil {
			if err := a.lifecycle.SetMode(mode); err != nil {
				a.log.Warn(context.Background(), "restore mode", logger.Error(err))
			}
		}
	}
	enabled, err := settings.GetOr(store.SettingEnabled, "false")
	if err != nil {
		a.log.Warn(context.Background(), "restore enabled flag", logger.Error(err))
	}
	a.enabled = enabled == "true"
}

// SetEnabled enables or disables gesture detection. Disabling clears the
// engine so a half-finished gesture cannot complete after re-enabling.
func (a *App) SetEnabled(enabled bool) error {
	a.mu.Lock()
	changed := a.enabled != enabled
	a.enabled = enabled
	a.mu.Unlock()

	if changed && !enabled {
		a.engMu.Lock()
		a.engine.Reset()
		a.window.Reset()
		a.engMu.Unlock()
	}
	a.log.Info(context.Background(), "detection toggled", logger.Bool("enabled", enabled))
	return a.persist(store.SettingEnabled, fmt.Sprint(enabled))
}

// IsEnabled returns whether gesture detection is currently enabled.
func (a *App) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.enabled
}

// SetMode switches the lifecycle between sync and async verification and
// remembers the choice.
func (a *App) SetMode(mode lifecycle.Mode) error {
	if a.lifecycle == nil {
		return errors.New("app: no lifecycle manager")
	}
	if err := a.lifecycle.SetMode(mode); err != nil {
		return err
	}
	return a.persist(store.SettingMode, string(mode))
}

func (a *App) persist(key, value string) error {
	if a.config.Store == nil {
		return nil
	}
	if err := a.config.Store.Settings().Set(key, value); err != nil {
		return fmt.Errorf("persist %s: %w", key, err)
	}
	return nil
}

// Status reports the live pipeline state.
func (a *App) Status() api.Status {
	now := time.Now()
	st := api.Status{
		Enabled: a.IsEnabled(),
		FPS:     int(a.fps.Load()),
		Frames:  a.frames.Load(),
		Hands:   make(map[string]gesture.HandState, 2),
	}

	a.engMu.Lock()
	st.InCooldown = a.engine.InCooldown(now)
	for _, side := range []string{detector.Left, detector.Right} {
		st.Hands[side] = a.engine.HandState(side)
	}
	a.engMu.Unlock()

	if a.lifecycle != nil {
		st.Mode = string(a.lifecycle.Mode())
		st.Inflight = a.lifecycle.Inflight()
		if cur, ok := a.lifecycle.Current(); ok {
			st.Current = api.ViewOf(cur)
		}
		for _, e := range a.lifecycle.Recent() {
			st.Recent = append(st.Recent, api.ViewOf(e))
		}
	}
	return st
}

// LatestJPEG returns the most recently encoded camera frame.
func (a *App) LatestJPEG() ([]byte, time.Time, bool) {
	a.frameMu.RLock()
	defer a.frameMu.RUnlock()
	return a.lastJPEG, a.lastFrame, a.lastJPEG != nil
}

func (a *App) setLatest(jpeg []byte, ts time.Time) {
	a.frameMu.Lock()
	a.lastJPEG, a.lastFrame = jpeg, ts
	a.frameMu.Unlock()
}

// HandleFrame runs one detector output through the engine. When the engine
// fires, the proposal is submitted together with a sample of the evidence
// window and the returned event is its lifecycle view.
func (a *App) HandleFrame(ctx context.Context, ts time.Time, hands []detector.HandLandmarks, jpeg []byte) (*lifecycle.Event, error) {
	a.frames.Add(1)
	if jpeg != nil {
		a.setLatest(jpeg, ts)
	}
	if a.pub != nil && len(hands) > 0 {
		a.pub.PublishLandmarks(hands)
	}

	a.engMu.Lock()
	a.window.Push(ts, hands, jpeg)
	p := a.engine.ProcessFrame(gesture.Frame{Timestamp: ts, Hands: hands})
	var sample []evidence.Snapshot
	if p != nil {
		sample = a.window.Sample(a.config.SampleFrames)
	}
	a.engMu.Unlock()

	if p == nil {
		return nil, nil
	}
	if a.pub != nil {
		a.pub.PublishProposal(*p)
	}
	if a.lifecycle == nil {
		return nil, nil
	}

	vec := features.Extract(p)
	ev, err := a.lifecycle.Submit(ctx, lifecycle.Submission{
		Proposal:    *p,
		Evidence:    sample,
		Features:    &vec,
		ForceReject: a.config.ForceReject,
	})
	if err != nil {
		return nil, fmt.Errorf("submit %s: %w", p.Intent, err)
	}
	return &ev, nil
}

// Start opens the camera and begins the detection pipeline.
func (a *App) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopCh != nil {
		return nil
	}
	if err := a.camera.Open(); err != nil {
		return fmt.Errorf("open camera %d: %w", a.config.CameraID, err)
	}
	a.camera.SetFPS(a.config.IdleFPS)
	a.fps.Store(int64(a.config.IdleFPS))

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.stopCh = make(chan struct{})
	a.doneCh = make(chan struct{})
	go a.runPipeline(ctx, a.stopCh, a.doneCh)

	a.log.Info(ctx, "detection pipeline started",
		logger.Int("camera", a.config.CameraID),
		logger.Int("idle_fps", a.config.IdleFPS),
		logger.Int("active_fps", a.config.ActiveFPS))
	return nil
}

// Stop halts the detection pipeline and releases the camera and detector.
// The lifecycle manager is owned by the caller and stays open.
func (a *App) Stop() {
	a.mu.Lock()
	stop, done, cancel := a.stopCh, a.doneCh, a.cancel
	a.stopCh, a.doneCh, a.cancel = nil, nil, nil
	a.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
		cancel()
	}

	ctx := context.Background()
	if err := a.camera.Close(); err != nil {
		a.log.Warn(ctx, "close camera", logger.Error(err))
	}
	a.motion.Close()
	if err := a.detector.Close(); err != nil {
		a.log.Warn(ctx, "close detector", logger.Error(err))
	}
	a.log.Info(ctx, "detection pipeline stopped")
}

// Camera returns the camera instance.
func (a *App) Camera() capture.Camera {
	return a.camera
}

// Detector returns the hand detector.
func (a *App) Detector() detector.Detector {
	return a.detector
}

// Lifecycle returns the lifecycle manager.
func (a *App) Lifecycle() *lifecycle.Manager {
	return a.lifecycle
}
