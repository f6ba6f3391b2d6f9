package gesture

import (
	"math"
	"testing"
	"time"

	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/intent"
	"github.com/ayusman/mudra/testdata"
)

var t0 = time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)

func run(e *Engine, steps []testdata.Step) []*Proposal {
	var out []*Proposal
	for _, s := range steps {
		if p := e.ProcessFrame(Frame{Timestamp: s.At, Hands: s.Hands}); p != nil {
			out = append(out, p)
		}
	}
	return out
}

func TestEngine_SweepLeft(t *testing.T) {
	e := NewEngine(DefaultConfig())
	hand := testdata.SizedPalm(0.2).Translate(0.2, 0) // wrist at x=0.70

	seq := testdata.NewSequence(t0, 20*time.Millisecond).
		Frames(3, hand).
		Move(300*time.Millisecond, hand, -0.30, 0)

	got := run(e, seq.Steps())
	if len(got) != 1 {
		t.Fatalf("expected exactly one proposal, got %d", len(got))
	}
	p := got[0]
	if p.Intent != intent.SwitchLeft {
		t.Errorf("intent = %s, want SWITCH_LEFT", p.Intent)
	}
	if p.Trigger != TriggerSweep {
		t.Errorf("trigger = %s, want sweep", p.Trigger)
	}
	if p.Hand != detector.Right {
		t.Errorf("hand = %s, want Right", p.Hand)
	}
	if p.Confidence < 0 || p.Confidence > 1 {
		t.Errorf("confidence %f out of range", p.Confidence)
	}
	if p.Summary.Displacement >= 0 {
		t.Errorf("displacement = %f, want negative", p.Summary.Displacement)
	}
	if len(p.History) == 0 || len(p.History) > DefaultGateConfig().HistorySize {
		t.Errorf("history length = %d", len(p.History))
	}
}

func TestEngine_Scenarios(t *testing.T) {
	palm := testdata.SizedPalm(0.2)
	palm.Score = 0.9

	// exact gives every frame to the classifiers so holds are measured
	// from the first frame of each pose.
	exact := DefaultConfig()
	exact.Gate.RequiredFrames = 1

	tests := []struct {
		name     string
		cfg      Config
		seq      *testdata.Sequence
		want     intent.Intent
		wantConf float64
	}{
		{
			name: "scenario A wrist 0.50 to 0.30 over 0.4s",
			cfg:  DefaultConfig(),
			seq: testdata.NewSequence(t0, 20*time.Millisecond).
				Frames(1, palm).
				Move(400*time.Millisecond, palm, -0.20, 0),
			want:     intent.SwitchLeft,
			wantConf: 0.67,
		},
		{
			name: "scenario B one finger 120ms then open 200ms",
			cfg:  exact,
			seq: testdata.NewSequence(t0, 20*time.Millisecond).
				Hold(120*time.Millisecond, detector.ThumbsUpLandmarks()).
				Hold(200*time.Millisecond, detector.OpenPalmLandmarks()),
			want: intent.OpenMenu,
		},
		{
			name: "scenario B open hold of 50ms",
			cfg:  exact,
			seq: testdata.NewSequence(t0, 20*time.Millisecond).
				Hold(120*time.Millisecond, detector.ThumbsUpLandmarks()).
				Hold(50*time.Millisecond, detector.OpenPalmLandmarks()).
				Hold(300*time.Millisecond, detector.ThumbsUpLandmarks()),
		},
		{
			// Deactivate owns the fist while its own sequence is underway,
			// so activate never sees it.
			name: "open then short fist then open",
			cfg:  DefaultConfig(),
			seq: testdata.NewSequence(t0, 20*time.Millisecond).
				Hold(300*time.Millisecond, detector.OpenPalmLandmarks()).
				Hold(120*time.Millisecond, detector.FistLandmarks()).
				Hold(200*time.Millisecond, detector.OpenPalmLandmarks()),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := run(NewEngine(tt.cfg), tt.seq.Steps())
			if tt.want == "" {
				if len(got) != 0 {
					t.Fatalf("expected no proposal, got %s", got[0].Intent)
				}
				return
			}
			if len(got) != 1 {
				t.Fatalf("expected exactly one proposal, got %d", len(got))
			}
			p := got[0]
			if p.Intent != tt.want {
				t.Errorf("intent = %s, want %s", p.Intent, tt.want)
			}
			if p.Confidence < 0 || p.Confidence > 1 {
				t.Errorf("confidence %f out of range", p.Confidence)
			}
			if tt.wantConf > 0 && math.Abs(p.Confidence-tt.wantConf) > 0.05 {
				t.Errorf("confidence = %.3f, want about %.2f", p.Confidence, tt.wantConf)
			}
		})
	}
}

func TestEngine_SweepRightWithLeftHand(t *testing.T) {
	e := NewEngine(DefaultConfig())
	hand := testdata.SizedPalm(0.2).Mirror().Translate(-0.2, 0)

	seq := testdata.NewSequence(t0, 20*time.Millisecond).
		Frames(3, hand).
		Move(300*time.Millisecond, hand, 0.30, 0)

	got := run(e, seq.Steps())
	if len(got) != 1 {
		t.Fatalf("expected exactly one proposal, got %d", len(got))
	}
	if got[0].Intent != intent.SwitchRight || got[0].Hand != detector.Left {
		t.Errorf("got %s from %s, want SWITCH_RIGHT from Left", got[0].Intent, got[0].Hand)
	}
}

func TestEngine_Activate(t *testing.T) {
	t.Run("fist then held open palm", func(t *testing.T) {
		e := NewEngine(DefaultConfig())
		seq := testdata.NewSequence(t0, 20*time.Millisecond).
			Hold(200*time.Millisecond, detector.FistLandmarks()).
			Hold(200*time.Millisecond, detector.OpenPalmLandmarks())

		got := run(e, seq.Steps())
		if len(got) != 1 {
			t.Fatalf("expected exactly one proposal, got %d", len(got))
		}
		if got[0].Intent != intent.OpenMenu || got[0].Trigger != TriggerActivate {
			t.Errorf("got %s/%s, want OPEN_MENU/activate", got[0].Intent, got[0].Trigger)
		}
	})

	t.Run("open palm held too briefly", func(t *testing.T) {
		e := NewEngine(DefaultConfig())
		seq := testdata.NewSequence(t0, 20*time.Millisecond).
			Hold(200*time.Millisecond, detector.FistLandmarks()).
			Hold(60*time.Millisecond, detector.OpenPalmLandmarks()).
			Hold(300*time.Millisecond, detector.FistLandmarks())

		if got := run(e, seq.Steps()); len(got) != 0 {
			t.Errorf("expected no proposal, got %s", got[0].Intent)
		}
	})

	t.Run("open palm drifts", func(t *testing.T) {
		e := NewEngine(DefaultConfig())
		open := detector.OpenPalmLandmarks()
		seq := testdata.NewSequence(t0, 20*time.Millisecond).
			Hold(200*time.Millisecond, detector.FistLandmarks()).
			Frames(1, open).
			Move(200*time.Millisecond, open, 0.10, 0)

		for _, p := range run(e, seq.Steps()) {
			if p.Intent == intent.OpenMenu {
				t.Error("drifting palm should not activate")
			}
		}
	})

	t.Run("open arrives before the fist is held", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Gate.RequiredFrames = 1
		e := NewEngine(cfg)
		seq := testdata.NewSequence(t0, 20*time.Millisecond).
			Frames(2, detector.FistLandmarks()).
			Frames(1, detector.OpenPalmLandmarks())
		run(e, seq.Steps())

		if s := e.HandState(detector.Right); s.Activate != "idle" {
			t.Errorf("activate = %s, want idle", s.Activate)
		}
	})
}

func TestEngine_Deactivate(t *testing.T) {
	t.Run("open palm then fist", func(t *testing.T) {
		e := NewEngine(DefaultConfig())
		seq := testdata.NewSequence(t0, 20*time.Millisecond).
			Hold(300*time.Millisecond, detector.OpenPalmLandmarks()).
			Hold(300*time.Millisecond, detector.FistLandmarks())

		got := run(e, seq.Steps())
		if len(got) != 1 {
			t.Fatalf("expected exactly one proposal, got %d", len(got))
		}
		if got[0].Intent != intent.CloseMenu || got[0].Trigger != TriggerDeactivate {
			t.Errorf("got %s/%s, want CLOSE_MENU/deactivate", got[0].Intent, got[0].Trigger)
		}
	})

	t.Run("fist before open hold satisfied", func(t *testing.T) {
		e := NewEngine(DefaultConfig())
		seq := testdata.NewSequence(t0, 20*time.Millisecond).
			Hold(100*time.Millisecond, detector.OpenPalmLandmarks()).
			Hold(300*time.Millisecond, detector.FistLandmarks())

		for _, p := range run(e, seq.Steps()) {
			if p.Intent == intent.CloseMenu {
				t.Error("short open hold should not deactivate")
			}
		}
	})

	t.Run("open palm held past the limit", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Deactivate.MaxOpenHold = 200 * time.Millisecond
		e := NewEngine(cfg)
		open := detector.OpenPalmLandmarks()

		// Admitted at 40ms; 240ms is exactly at the limit.
		seq := testdata.NewSequence(t0, 20*time.Millisecond).Frames(13, open)
		run(e, seq.Steps())
		if s := e.HandState(detector.Right); s.Deactivate != "open_seen" {
			t.Fatalf("at the limit deactivate = %s, want open_seen", s.Deactivate)
		}

		e.ProcessFrame(Frame{Timestamp: seq.Next(), Hands: []detector.HandLandmarks{open}})
		if s := e.HandState(detector.Right); s.Deactivate != "idle" {
			t.Errorf("past the limit deactivate = %s, want idle", s.Deactivate)
		}
	})

	t.Run("stillness guard", func(t *testing.T) {
		open := detector.OpenPalmLandmarks()
		seq := testdata.NewSequence(t0, 20*time.Millisecond).
			Frames(3, open).
			Frames(1, open.Translate(0.10, 0))

		for _, guard := range []bool{false, true} {
			cfg := DefaultConfig()
			cfg.Deactivate.StillnessGuard = guard
			cfg.Sweep.MinDisplacement = 1 // keep the sweep out of the way
			e := NewEngine(cfg)
			run(e, seq.Steps())

			want := "open_seen"
			if guard {
				want = "idle"
			}
			if s := e.HandState(detector.Right); s.Deactivate != want {
				t.Errorf("guard=%v: deactivate = %s, want %s", guard, s.Deactivate, want)
			}
		}
	})
}

func TestEngine_Arbitration(t *testing.T) {
	t.Run("deactivate defers to a held fist", func(t *testing.T) {
		e := NewEngine(DefaultConfig())
		seq := testdata.NewSequence(t0, 20*time.Millisecond).
			Hold(200*time.Millisecond, detector.FistLandmarks()).
			Frames(3, detector.OpenPalmLandmarks())
		run(e, seq.Steps())

		s := e.HandState(detector.Right)
		if s.Activate != "open_held" {
			t.Errorf("activate = %s, want open_held", s.Activate)
		}
		if s.Deactivate != "idle" {
			t.Errorf("deactivate = %s, want idle", s.Deactivate)
		}
	})

	t.Run("activate yields to deactivate", func(t *testing.T) {
		e := NewEngine(DefaultConfig())
		seq := testdata.NewSequence(t0, 20*time.Millisecond).
			Hold(300*time.Millisecond, detector.OpenPalmLandmarks()).
			Frames(2, detector.FistLandmarks())
		run(e, seq.Steps())

		s := e.HandState(detector.Right)
		if s.Deactivate != "fist_seen" {
			t.Errorf("deactivate = %s, want fist_seen", s.Deactivate)
		}
		if s.Activate != "idle" {
			t.Errorf("activate = %s, want idle", s.Activate)
		}
	})

	t.Run("two hands sweeping in the same frame", func(t *testing.T) {
		e := NewEngine(DefaultConfig())
		right := testdata.SizedPalm(0.2).Translate(0.2, 0)
		left := testdata.SizedPalm(0.2).Mirror().Translate(-0.2, 0)

		seq := testdata.NewSequence(t0, 20*time.Millisecond).Frames(3, left, right)
		for k := 1; k <= 15; k++ {
			f := float64(k) / 15
			seq.Frames(1, left.Translate(0.3*f, 0), right.Translate(-0.3*f, 0))
		}

		got := run(e, seq.Steps())
		if len(got) != 1 {
			t.Fatalf("expected one proposal, got %d", len(got))
		}
		for _, side := range []string{detector.Left, detector.Right} {
			if s := e.HandState(side); s.Sweep != "idle" {
				t.Errorf("%s sweep = %s, want idle after firing", side, s.Sweep)
			}
		}
	})
}

func TestEngine_Cooldown(t *testing.T) {
	hand := testdata.SizedPalm(0.2).Translate(0.2, 0)
	back := hand.Translate(-0.3, 0)

	t.Run("frames are ignored until the cooldown expires", func(t *testing.T) {
		e := NewEngine(DefaultConfig())
		seq := testdata.NewSequence(t0, 20*time.Millisecond).
			Frames(3, hand).
			Move(300*time.Millisecond, hand, -0.30, 0)
		first := run(e, seq.Steps())
		if len(first) != 1 {
			t.Fatalf("expected one proposal, got %d", len(first))
		}
		fired := first[0].Timestamp
		before := e.HandState(detector.Right)

		// A full sweep back inside the cooldown.
		inside := testdata.NewSequence(seq.Next(), 20*time.Millisecond).
			Move(300*time.Millisecond, back, 0.30, 0)
		if got := run(e, inside.Steps()); len(got) != 0 {
			t.Fatalf("expected no proposal during cooldown, got %d", len(got))
		}
		if after := e.HandState(detector.Right); after != before {
			t.Errorf("hand state changed during cooldown: %+v -> %+v", before, after)
		}
		if !e.InCooldown(fired.Add(799 * time.Millisecond)) {
			t.Error("799ms after firing should still be cooling down")
		}
		if e.InCooldown(fired.Add(800 * time.Millisecond)) {
			t.Error("cooldown should end at 800ms")
		}

		after := testdata.NewSequence(fired.Add(time.Second), 20*time.Millisecond).
			Frames(3, back).
			Move(300*time.Millisecond, back, 0.30, 0)
		got := run(e, after.Steps())
		if len(got) != 1 || got[0].Intent != intent.SwitchRight {
			t.Fatalf("expected one SWITCH_RIGHT after cooldown, got %v", got)
		}
	})

	t.Run("advance during cooldown drops emissions", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.AdvanceDuringCooldown = true
		e := NewEngine(cfg)
		seq := testdata.NewSequence(t0, 20*time.Millisecond).
			Frames(3, hand).
			Move(300*time.Millisecond, hand, -0.30, 0).
			Move(300*time.Millisecond, back, 0.30, 0)

		got := run(e, seq.Steps())
		if len(got) != 1 {
			t.Fatalf("expected one proposal, got %d", len(got))
		}
		if got[0].Intent != intent.SwitchLeft {
			t.Errorf("intent = %s, want SWITCH_LEFT", got[0].Intent)
		}
	})
}

func TestEngine_TrackingGate(t *testing.T) {
	t.Run("needs consecutive frames", func(t *testing.T) {
		e := NewEngine(DefaultConfig())
		hand := detector.OpenPalmLandmarks()

		e.ProcessFrame(Frame{Timestamp: t0, Hands: []detector.HandLandmarks{hand}})
		e.ProcessFrame(Frame{Timestamp: t0.Add(20 * time.Millisecond), Hands: []detector.HandLandmarks{hand}})
		if s := e.HandState(detector.Right); s.Sweep != "idle" || s.Consecutive != 2 {
			t.Errorf("after 2 frames: %+v", s)
		}
		e.ProcessFrame(Frame{Timestamp: t0.Add(40 * time.Millisecond), Hands: []detector.HandLandmarks{hand}})
		if s := e.HandState(detector.Right); s.Sweep != "tracking" {
			t.Errorf("after 3 frames sweep = %s, want tracking", s.Sweep)
		}
	})

	t.Run("rejects small hands", func(t *testing.T) {
		e := NewEngine(DefaultConfig())
		small := testdata.SizedPalm(0.05).Translate(0.2, 0)
		seq := testdata.NewSequence(t0, 20*time.Millisecond).
			Frames(3, small).
			Move(300*time.Millisecond, small, -0.30, 0)

		if got := run(e, seq.Steps()); len(got) != 0 {
			t.Errorf("expected no proposal for a distant hand, got %d", len(got))
		}
		s := e.HandState(detector.Right)
		if !s.Present || s.Consecutive != 0 {
			t.Errorf("small hand state = %+v, want present with no accepted frames", s)
		}
	})

	t.Run("history is bounded", func(t *testing.T) {
		e := NewEngine(DefaultConfig())
		seq := testdata.NewSequence(t0, 20*time.Millisecond).Frames(25, detector.FistLandmarks())
		run(e, seq.Steps())
		if s := e.HandState(detector.Right); s.HistoryLen != 10 {
			t.Errorf("history = %d, want 10", s.HistoryLen)
		}
	})

	t.Run("absence resets and is idempotent", func(t *testing.T) {
		e := NewEngine(DefaultConfig())
		seq := testdata.NewSequence(t0, 20*time.Millisecond).
			Hold(200*time.Millisecond, detector.OpenPalmLandmarks())
		run(e, seq.Steps())
		if s := e.HandState(detector.Right); !s.Present || s.Deactivate != "open_seen" {
			t.Fatalf("precondition: %+v", s)
		}

		e.ProcessFrame(Frame{Timestamp: seq.Next()})
		once := e.HandState(detector.Right)
		e.ProcessFrame(Frame{Timestamp: seq.Next().Add(20 * time.Millisecond)})
		twice := e.HandState(detector.Right)

		want := HandState{Sweep: "idle", Activate: "idle", Deactivate: "idle"}
		if once != want {
			t.Errorf("after absence: %+v, want %+v", once, want)
		}
		if once != twice {
			t.Errorf("second absence changed state: %+v -> %+v", once, twice)
		}
	})

	t.Run("unknown handedness is ignored", func(t *testing.T) {
		e := NewEngine(DefaultConfig())
		hand := detector.OpenPalmLandmarks()
		hand.Handedness = ""
		e.ProcessFrame(Frame{Timestamp: t0, Hands: []detector.HandLandmarks{hand}})
		if e.HandState(detector.Right).Present || e.HandState(detector.Left).Present {
			t.Error("unlabelled hand should not be tracked")
		}
	})
}

func TestEngine_Reset(t *testing.T) {
	e := NewEngine(DefaultConfig())
	hand := testdata.SizedPalm(0.2).Translate(0.2, 0)
	seq := testdata.NewSequence(t0, 20*time.Millisecond).
		Frames(3, hand).
		Move(300*time.Millisecond, hand, -0.30, 0)
	run(e, seq.Steps())

	e.Reset()
	if e.InCooldown(seq.Next()) {
		t.Error("Reset should clear the cooldown")
	}
	if s := e.HandState(detector.Right); s.Present {
		t.Error("Reset should clear hand state")
	}
}
