package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/lifecycle"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it mirrors the package defaults", func() {
			convey.So(cfg.Validate(), convey.ShouldBeNil)
			convey.So(cfg.Gesture(), convey.ShouldResemble, gesture.DefaultConfig())
			convey.So(cfg.LifecycleConfig(), convey.ShouldResemble, lifecycle.DefaultConfig())
			convey.So(cfg.Evidence.Capacity, convey.ShouldEqual, 30)
			convey.So(cfg.Evidence.SampleFrames, convey.ShouldEqual, 8)
			convey.So(cfg.Oracle.Kind, convey.ShouldEqual, "stub")
			convey.So(cfg.Metrics.Namespace, convey.ShouldEqual, "mudra")
		})
	})
}

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars(t)

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Server.Addr, convey.ShouldEqual, "127.0.0.1:8080")
				convey.So(cfg.Lifecycle.Mode, convey.ShouldEqual, "sync")
				convey.So(cfg.Engine.CooldownMS, convey.ShouldEqual, 800)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			t.Setenv("MUDRA_LIFECYCLE__MODE", "async")
			t.Setenv("MUDRA_LIFECYCLE__VERIFY_TIMEOUT_MS", "500")
			t.Setenv("MUDRA_SWEEP__MIN_DISPLACEMENT", "0.2")
			t.Setenv("MUDRA_DEACTIVATE__STILLNESS_GUARD", "true")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Lifecycle.Mode, convey.ShouldEqual, "async")
				convey.So(cfg.LifecycleConfig().VerifyTimeout, convey.ShouldEqual, 500*time.Millisecond)
				convey.So(cfg.Sweep.MinDisplacement, convey.ShouldEqual, 0.2)
				convey.So(cfg.Gesture().Deactivate.StillnessGuard, convey.ShouldBeTrue)
				convey.So(cfg.Sweep.MaxDurationMS, convey.ShouldEqual, 600)
			})
		})

		convey.Convey("When loading config with a YAML file", func() {
			path := writeConfigFile(t, `
log:
  level: debug
  format: json
oracle:
  kind: http
  url: http://verifier:8788
engine:
  cooldown_ms: 1000
  advance_during_cooldown: true
`)
			t.Setenv("MUDRA_CONFIG", path)

			cfg, err := config.Load(ctx)

			convey.Convey("Then file values override defaults and the rest are kept", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Log.Level, convey.ShouldEqual, "debug")
				convey.So(cfg.Log.Format, convey.ShouldEqual, "json")
				convey.So(cfg.Oracle.URL, convey.ShouldEqual, "http://verifier:8788")
				convey.So(cfg.Gesture().Cooldown, convey.ShouldEqual, time.Second)
				convey.So(cfg.Gesture().AdvanceDuringCooldown, convey.ShouldBeTrue)
				convey.So(cfg.Gate.RequiredFrames, convey.ShouldEqual, 3)
			})
		})

		convey.Convey("When the file names the metrics series", func() {
			path := writeConfigFile(t, "metrics:\n  namespace: desk\n  latency_buckets_ms: [5, 50, 500]\n")
			t.Setenv("MUDRA_CONFIG", path)
			t.Setenv("MUDRA_METRICS__SUBSYSTEM", "gestures")

			cfg, err := config.Load(ctx)

			convey.Convey("Then the metrics section is populated", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Metrics.Namespace, convey.ShouldEqual, "desk")
				convey.So(cfg.Metrics.Subsystem, convey.ShouldEqual, "gestures")
				convey.So(cfg.Metrics.LatencyBucketsMS, convey.ShouldResemble, []float64{5, 50, 500})
			})
		})

		convey.Convey("When both file and environment are set", func() {
			path := writeConfigFile(t, "lifecycle:\n  mode: async\n  verify_timeout_ms: 900\n")
			t.Setenv("MUDRA_CONFIG", path)
			t.Setenv("MUDRA_LIFECYCLE__VERIFY_TIMEOUT_MS", "1200")

			cfg, err := config.Load(ctx)

			convey.Convey("Then the environment wins", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Lifecycle.Mode, convey.ShouldEqual, "async")
				convey.So(cfg.Lifecycle.VerifyTimeoutMS, convey.ShouldEqual, 1200)
			})
		})

		convey.Convey("When the file does not exist", func() {
			_, err := config.LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))

			convey.Convey("Then a load error is returned", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When values are invalid", func() {
			t.Setenv("MUDRA_LIFECYCLE__MODE", "eventually")
			t.Setenv("MUDRA_EXECUTOR__KIND", "teleport")

			_, err := config.Load(ctx)

			convey.Convey("Then every problem is reported", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "lifecycle.mode")
				convey.So(err.Error(), convey.ShouldContainSubstring, "executor.kind")
			})
		})
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *config.Config)
	}{
		{"sweep window inverted", func(c *config.Config) { c.Sweep.MinDurationMS = 700 }},
		{"sample larger than window", func(c *config.Config) { c.Evidence.SampleFrames = 40 }},
		{"unknown oracle", func(c *config.Config) { c.Oracle.Kind = "psychic" }},
		{"http oracle without url", func(c *config.Config) { c.Oracle.Kind = "http"; c.Oracle.URL = "" }},
		{"label shorter than verify", func(c *config.Config) { c.Lifecycle.LabelTimeoutMS = 10 }},
		{"overlapping finger counts", func(c *config.Config) { c.Activate.ClosedMaxFingers = 4 }},
		{"bad log level", func(c *config.Config) { c.Log.Level = "loud" }},
		{"three hands", func(c *config.Config) { c.Detector.MaxHands = 3 }},
		{"descending buckets", func(c *config.Config) { c.Metrics.LatencyBucketsMS = []float64{100, 10} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := config.New()
			tt.mutate(c)
			if err := c.Validate(); !errors.Is(err, config.ErrInvalidConfig) {
				t.Errorf("Validate() = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mudra.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func clearConfigEnvVars(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(key, config.EnvPrefix) {
			t.Setenv(key, "")
			os.Unsetenv(key)
		}
	}
}
