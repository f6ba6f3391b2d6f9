// Package config defines mudra's configuration and how it is loaded.
//
// Durations are expressed in milliseconds so that YAML files and
// environment variables stay plain integers.
package config

import (
	"time"

	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/lifecycle"
)

// Config contains process configuration.
type Config struct {
	Log        LogConfig        `koanf:"log"`
	Server     ServerConfig     `koanf:"server"`
	Camera     CameraConfig     `koanf:"camera"`
	Detector   DetectorConfig   `koanf:"detector"`
	Gate       GateConfig       `koanf:"gate"`
	Sweep      SweepConfig      `koanf:"sweep"`
	Activate   ActivateConfig   `koanf:"activate"`
	Deactivate DeactivateConfig `koanf:"deactivate"`
	Engine     EngineConfig     `koanf:"engine"`
	Evidence   EvidenceConfig   `koanf:"evidence"`
	Lifecycle  LifecycleConfig  `koanf:"lifecycle"`
	Oracle     OracleConfig     `koanf:"oracle"`
	Executor   ExecutorConfig   `koanf:"executor"`
	Student    StudentConfig    `koanf:"student"`
	Store      StoreConfig      `koanf:"store"`
	EventLog   EventLogConfig   `koanf:"eventlog"`
	Tray       TrayConfig       `koanf:"tray"`
	Metrics    MetricsConfig    `koanf:"metrics"`
}

type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `koanf:"level"`
	// Format is text or json.
	Format string `koanf:"format"`
}

// MetricsConfig names the Prometheus series. Empty values keep the
// package defaults.
type MetricsConfig struct {
	Namespace        string    `koanf:"namespace"`
	Subsystem        string    `koanf:"subsystem"`
	LatencyBucketsMS []float64 `koanf:"latency_buckets_ms"`
}

type ServerConfig struct {
	Addr    string `koanf:"addr"`
	Enabled bool   `koanf:"enabled"`
}

type CameraConfig struct {
	Device int `koanf:"device"`
	// ActiveFPS applies while motion is seen, IdleFPS otherwise.
	ActiveFPS       int     `koanf:"active_fps"`
	IdleFPS         int     `koanf:"idle_fps"`
	// MotionThreshold is the percentage of changed pixels that counts as motion.
	MotionThreshold float64 `koanf:"motion_threshold"`
	// IdleAfterMS is how long without motion before dropping to IdleFPS.
	IdleAfterMS int `koanf:"idle_after_ms"`
	JPEGQuality int `koanf:"jpeg_quality"`
}

type DetectorConfig struct {
	// Kind is mediapipe or mock.
	Kind            string  `koanf:"kind"`
	MaxHands        int     `koanf:"max_hands"`
	MinConfidence   float64 `koanf:"min_confidence"`
	MinTrackingConf float64 `koanf:"min_tracking_confidence"`
	ScriptPath      string  `koanf:"script_path"`
	PythonPath      string  `koanf:"python_path"`
	IdleTimeoutMS   int     `koanf:"idle_timeout_ms"`
}

type GateConfig struct {
	MinHandSpan    float64 `koanf:"min_hand_span"`
	RequiredFrames int     `koanf:"required_frames"`
	HistorySize    int     `koanf:"history_size"`
}

type SweepConfig struct {
	MinDisplacement float64 `koanf:"min_displacement"`
	MinDurationMS   int     `koanf:"min_duration_ms"`
	MaxDurationMS   int     `koanf:"max_duration_ms"`
}

type ActivateConfig struct {
	ClosedMaxFingers   int     `koanf:"closed_max_fingers"`
	OpenMinFingers     int     `koanf:"open_min_fingers"`
	MinFistHoldMS      int     `koanf:"min_fist_hold_ms"`
	MinOpenHoldMS      int     `koanf:"min_open_hold_ms"`
	DriftTolerance     float64 `koanf:"drift_tolerance"`
	TransitionWindowMS int     `koanf:"transition_window_ms"`
	MaxSequenceMS      int     `koanf:"max_sequence_ms"`
}

type DeactivateConfig struct {
	ClosedMaxFingers int     `koanf:"closed_max_fingers"`
	OpenMinFingers   int     `koanf:"open_min_fingers"`
	MinOpenHoldMS    int     `koanf:"min_open_hold_ms"`
	MinFistHoldMS    int     `koanf:"min_fist_hold_ms"`
	CloseWindowMS    int     `koanf:"close_window_ms"`
	MaxOpenHoldMS    int     `koanf:"max_open_hold_ms"`
	StillnessGuard   bool    `koanf:"stillness_guard"`
	DriftTolerance   float64 `koanf:"drift_tolerance"`
	MaxSequenceMS    int     `koanf:"max_sequence_ms"`
}

type EngineConfig struct {
	CooldownMS            int  `koanf:"cooldown_ms"`
	AdvanceDuringCooldown bool `koanf:"advance_during_cooldown"`
}

type EvidenceConfig struct {
	Capacity     int `koanf:"capacity"`
	SampleFrames int `koanf:"sample_frames"`
}

type LifecycleConfig struct {
	// Mode is sync or async.
	Mode             string `koanf:"mode"`
	VerifyTimeoutMS  int    `koanf:"verify_timeout_ms"`
	MergeWindowMS    int    `koanf:"merge_window_ms"`
	ExecuteTimeoutMS int    `koanf:"execute_timeout_ms"`
	LabelTimeoutMS   int    `koanf:"label_timeout_ms"`
	PredictTimeoutMS int    `koanf:"predict_timeout_ms"`
}

type OracleConfig struct {
	// Kind is stub or http.
	Kind          string `koanf:"kind"`
	URL           string `koanf:"url"`
	Token         string `koanf:"token"`
	StubLatencyMS int    `koanf:"stub_latency_ms"`
	ForceReject   bool   `koanf:"force_reject"`
}

type ExecutorConfig struct {
	// Kind is plugin, remote or dryrun.
	Kind      string `koanf:"kind"`
	PluginDir string `koanf:"plugin_dir"`
	URL       string `koanf:"url"`
	TimeoutMS int    `koanf:"timeout_ms"`
}

type StudentConfig struct {
	Enabled   bool   `koanf:"enabled"`
	URL       string `koanf:"url"`
	TimeoutMS int    `koanf:"timeout_ms"`
}

type StoreConfig struct {
	// Path of the SQLite database; empty uses ~/.mudra/mudra.db.
	Path string `koanf:"path"`
}

type EventLogConfig struct {
	// Path of the NDJSON event log; empty disables it.
	Path      string `koanf:"path"`
	MaxSizeMB int    `koanf:"max_size_mb"`
}

type TrayConfig struct {
	// Enabled shows the menu bar icon; disable for headless runs.
	Enabled bool `koanf:"enabled"`
}

// New returns a Config populated with defaults.
func New() *Config {
	g := gesture.DefaultConfig()
	d := detector.DefaultConfig()
	l := lifecycle.DefaultConfig()

	return &Config{
		Log:    LogConfig{Level: "info", Format: "text"},
		Server: ServerConfig{Addr: "127.0.0.1:8080", Enabled: true},
		Camera: CameraConfig{
			Device:          0,
			ActiveFPS:       15,
			IdleFPS:         2,
			MotionThreshold: 1.0,
			IdleAfterMS:     3000,
			JPEGQuality:     70,
		},
		Detector: DetectorConfig{
			Kind:            "mediapipe",
			MaxHands:        d.MaxHands,
			MinConfidence:   d.MinConfidence,
			MinTrackingConf: d.MinTrackingConf,
			IdleTimeoutMS:   ms(d.IdleTimeout),
		},
		Gate: GateConfig{
			MinHandSpan:    g.Gate.MinHandSpan,
			RequiredFrames: g.Gate.RequiredFrames,
			HistorySize:    g.Gate.HistorySize,
		},
		Sweep: SweepConfig{
			MinDisplacement: g.Sweep.MinDisplacement,
			MinDurationMS:   ms(g.Sweep.MinDuration),
			MaxDurationMS:   ms(g.Sweep.MaxDuration),
		},
		Activate: ActivateConfig{
			ClosedMaxFingers:   g.Activate.ClosedMax,
			OpenMinFingers:     g.Activate.OpenMin,
			MinFistHoldMS:      ms(g.Activate.MinFistHold),
			MinOpenHoldMS:      ms(g.Activate.MinOpenHold),
			DriftTolerance:     g.Activate.DriftTolerance,
			TransitionWindowMS: ms(g.Activate.TransitionWindow),
			MaxSequenceMS:      ms(g.Activate.MaxSequence),
		},
		Deactivate: DeactivateConfig{
			ClosedMaxFingers: g.Deactivate.ClosedMax,
			OpenMinFingers:   g.Deactivate.OpenMin,
			MinOpenHoldMS:    ms(g.Deactivate.MinOpenHold),
			MinFistHoldMS:    ms(g.Deactivate.MinFistHold),
			CloseWindowMS:    ms(g.Deactivate.CloseWindow),
			MaxOpenHoldMS:    ms(g.Deactivate.MaxOpenHold),
			StillnessGuard:   g.Deactivate.StillnessGuard,
			DriftTolerance:   g.Deactivate.DriftTolerance,
			MaxSequenceMS:    ms(g.Deactivate.MaxSequence),
		},
		Engine: EngineConfig{
			CooldownMS:            ms(g.Cooldown),
			AdvanceDuringCooldown: g.AdvanceDuringCooldown,
		},
		Evidence: EvidenceConfig{Capacity: 30, SampleFrames: 8},
		Lifecycle: LifecycleConfig{
			Mode:             string(l.Mode),
			VerifyTimeoutMS:  ms(l.VerifyTimeout),
			MergeWindowMS:    ms(l.MergeWindow),
			ExecuteTimeoutMS: ms(l.ExecuteTimeout),
			LabelTimeoutMS:   ms(l.LabelTimeout),
			PredictTimeoutMS: ms(l.PredictTimeout),
		},
		Oracle:   OracleConfig{Kind: "stub", URL: "http://127.0.0.1:8788", StubLatencyMS: 80},
		Executor: ExecutorConfig{Kind: "plugin", URL: "http://127.0.0.1:8787", TimeoutMS: 2000},
		Student:  StudentConfig{Enabled: false, URL: "http://127.0.0.1:8789", TimeoutMS: 200},
		EventLog: EventLogConfig{MaxSizeMB: 50},
		Tray:     TrayConfig{Enabled: true},
		Metrics:  MetricsConfig{Namespace: "mudra", Subsystem: "pipeline"},
	}
}

// Gesture converts the classifier sections into a gesture.Config.
func (c *Config) Gesture() gesture.Config {
	g := gesture.DefaultConfig()
	g.Gate = gesture.GateConfig{
		MinHandSpan:    c.Gate.MinHandSpan,
		RequiredFrames: c.Gate.RequiredFrames,
		HistorySize:    c.Gate.HistorySize,
	}
	g.Sweep = gesture.SweepConfig{
		MinDisplacement: c.Sweep.MinDisplacement,
		MinDuration:     dur(c.Sweep.MinDurationMS),
		MaxDuration:     dur(c.Sweep.MaxDurationMS),
	}
	g.Activate = gesture.ActivateConfig{
		ClosedMax:        c.Activate.ClosedMaxFingers,
		OpenMin:          c.Activate.OpenMinFingers,
		MinFistHold:      dur(c.Activate.MinFistHoldMS),
		MinOpenHold:      dur(c.Activate.MinOpenHoldMS),
		DriftTolerance:   c.Activate.DriftTolerance,
		TransitionWindow: dur(c.Activate.TransitionWindowMS),
		MaxSequence:      dur(c.Activate.MaxSequenceMS),
	}
	g.Deactivate = gesture.DeactivateConfig{
		ClosedMax:      c.Deactivate.ClosedMaxFingers,
		OpenMin:        c.Deactivate.OpenMinFingers,
		MinOpenHold:    dur(c.Deactivate.MinOpenHoldMS),
		MinFistHold:    dur(c.Deactivate.MinFistHoldMS),
		CloseWindow:    dur(c.Deactivate.CloseWindowMS),
		MaxOpenHold:    dur(c.Deactivate.MaxOpenHoldMS),
		StillnessGuard: c.Deactivate.StillnessGuard,
		DriftTolerance: c.Deactivate.DriftTolerance,
		MaxSequence:    dur(c.Deactivate.MaxSequenceMS),
	}
	g.Cooldown = dur(c.Engine.CooldownMS)
	g.AdvanceDuringCooldown = c.Engine.AdvanceDuringCooldown
	return g
}

// LifecycleConfig converts the lifecycle section. Mode has already been
// checked by Validate.
func (c *Config) LifecycleConfig() lifecycle.Config {
	mode, _ := lifecycle.ParseMode(c.Lifecycle.Mode)
	l := lifecycle.DefaultConfig()
	l.Mode = mode
	l.VerifyTimeout = dur(c.Lifecycle.VerifyTimeoutMS)
	l.MergeWindow = dur(c.Lifecycle.MergeWindowMS)
	l.ExecuteTimeout = dur(c.Lifecycle.ExecuteTimeoutMS)
	l.LabelTimeout = dur(c.Lifecycle.LabelTimeoutMS)
	l.PredictTimeout = dur(c.Lifecycle.PredictTimeoutMS)
	return l
}

// DetectorConfig converts the detector section.
func (c *Config) DetectorConfig() detector.Config {
	return detector.Config{
		MaxHands:        c.Detector.MaxHands,
		MinConfidence:   c.Detector.MinConfidence,
		MinTrackingConf: c.Detector.MinTrackingConf,
		ScriptPath:      c.Detector.ScriptPath,
		PythonPath:      c.Detector.PythonPath,
		IdleTimeout:     dur(c.Detector.IdleTimeoutMS),
	}
}

// Duration converts a millisecond setting.
func Duration(msec int) time.Duration { return dur(msec) }

func dur(msec int) time.Duration { return time.Duration(msec) * time.Millisecond }

func ms(d time.Duration) int { return int(d / time.Millisecond) }
