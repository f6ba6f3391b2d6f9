package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/ayusman/mudra/internal/lifecycle"
	"github.com/ayusman/mudra/pkg/logger"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "MUDRA_"

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if MUDRA_CONFIG is set
//  3. env (prefix MUDRA_, "__" separates sections:
//     MUDRA_LIFECYCLE__VERIFY_TIMEOUT_MS -> lifecycle.verify_timeout_ms)
func Load(_ context.Context) (*Config, error) {
	return LoadFile(os.Getenv(EnvPrefix + "CONFIG"))
}

// LoadFile is Load with an explicit YAML path; empty skips the file layer.
func LoadFile(path string) (*Config, error) {
	base := New()
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		s = strings.ToLower(s)
		return strings.ReplaceAll(s, "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
		}
	}

	_, err := logger.ParseLevel(c.Log.Level)
	check(err == nil, "log.level %q", c.Log.Level)
	check(c.Log.Format == "text" || c.Log.Format == "json", "log.format %q", c.Log.Format)
	check(!c.Server.Enabled || c.Server.Addr != "", "server.addr must not be empty")

	check(c.Camera.ActiveFPS > 0 && c.Camera.IdleFPS > 0, "camera fps must be positive")
	check(c.Camera.JPEGQuality > 0 && c.Camera.JPEGQuality <= 100, "camera.jpeg_quality %d", c.Camera.JPEGQuality)
	check(c.Detector.Kind == "mediapipe" || c.Detector.Kind == "mock", "detector.kind %q", c.Detector.Kind)
	check(c.Detector.MaxHands >= 1 && c.Detector.MaxHands <= 2, "detector.max_hands %d", c.Detector.MaxHands)

	check(c.Gate.MinHandSpan > 0, "gate.min_hand_span must be positive")
	check(c.Gate.RequiredFrames >= 1, "gate.required_frames must be at least 1")
	check(c.Gate.HistorySize >= 2, "gate.history_size must be at least 2")
	check(c.Sweep.MinDisplacement > 0, "sweep.min_displacement must be positive")
	check(c.Sweep.MinDurationMS < c.Sweep.MaxDurationMS, "sweep.min_duration_ms must be below max_duration_ms")
	check(c.Activate.ClosedMaxFingers < c.Activate.OpenMinFingers, "activate fist and open finger counts overlap")
	check(c.Deactivate.ClosedMaxFingers < c.Deactivate.OpenMinFingers, "deactivate fist and open finger counts overlap")
	check(c.Engine.CooldownMS >= 0, "engine.cooldown_ms must not be negative")

	check(c.Evidence.Capacity > 0, "evidence.capacity must be positive")
	check(c.Evidence.SampleFrames > 0 && c.Evidence.SampleFrames <= c.Evidence.Capacity,
		"evidence.sample_frames %d outside 1..%d", c.Evidence.SampleFrames, c.Evidence.Capacity)

	_, err = lifecycle.ParseMode(c.Lifecycle.Mode)
	check(err == nil, "lifecycle.mode %q", c.Lifecycle.Mode)
	check(c.Lifecycle.VerifyTimeoutMS > 0, "lifecycle.verify_timeout_ms must be positive")
	check(c.Lifecycle.LabelTimeoutMS >= c.Lifecycle.VerifyTimeoutMS, "lifecycle.label_timeout_ms must be at least verify_timeout_ms")

	check(c.Oracle.Kind == "stub" || c.Oracle.Kind == "http", "oracle.kind %q", c.Oracle.Kind)
	check(c.Oracle.Kind != "http" || c.Oracle.URL != "", "oracle.url required for http oracle")
	switch c.Executor.Kind {
	case "plugin", "dryrun":
	case "remote":
		check(c.Executor.URL != "", "executor.url required for remote executor")
	default:
		check(false, "executor.kind %q", c.Executor.Kind)
	}
	check(!c.Student.Enabled || c.Student.URL != "", "student.url required when enabled")
	check(slices.IsSorted(c.Metrics.LatencyBucketsMS), "metrics.latency_buckets_ms must be ascending")

	return errors.Join(errs...)
}
