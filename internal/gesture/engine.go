package gesture

import (
	"context"
	"time"

	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/pkg/logger"
)

// Config groups every engine threshold.
type Config struct {
	Gate       GateConfig
	Sweep      SweepConfig
	Activate   ActivateConfig
	Deactivate DeactivateConfig
	Weights    Weights

	// Cooldown is the minimum time between two proposals.
	Cooldown time.Duration
	// AdvanceDuringCooldown keeps classifiers running during the cooldown
	// and drops what they would emit. When false the engine ignores frames
	// entirely until the cooldown expires.
	AdvanceDuringCooldown bool
}

// DefaultConfig returns the standard engine configuration.
func DefaultConfig() Config {
	return Config{
		Gate:       DefaultGateConfig(),
		Sweep:      DefaultSweepConfig(),
		Activate:   DefaultActivateConfig(),
		Deactivate: DefaultDeactivateConfig(),
		Weights:    DefaultWeights(),
		Cooldown:   800 * time.Millisecond,
	}
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// Engine owns the per-hand state and the global cooldown. It is driven by
// a single frame loop and is not safe for concurrent use.
type Engine struct {
	cfg    Config
	tracks [2]*track // left, right
	fired  bool
	last   time.Time
	log    logger.Logger
}

// NewEngine creates an engine with empty hand state.
func NewEngine(cfg Config, opts ...Option) *Engine {
	e := &Engine{
		cfg: cfg,
		tracks: [2]*track{
			newTrack(detector.Left, cfg.Gate.HistorySize),
			newTrack(detector.Right, cfg.Gate.HistorySize),
		},
		log: logger.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

// InCooldown reports whether a proposal at t would be suppressed.
func (e *Engine) InCooldown(t time.Time) bool {
	return e.fired && t.Sub(e.last) < e.cfg.Cooldown
}

// ProcessFrame advances the engine by one frame and returns at most one
// proposal.
func (e *Engine) ProcessFrame(f Frame) *Proposal {
	cooling := e.InCooldown(f.Timestamp)
	if cooling && !e.cfg.AdvanceDuringCooldown {
		return nil
	}

	var visible [2]*detector.HandLandmarks
	for i := range f.Hands {
		idx, ok := sideIndex(f.Hands[i].Handedness)
		if !ok || visible[idx] != nil {
			continue
		}
		visible[idx] = &f.Hands[i]
	}

	for idx, t := range e.tracks {
		if visible[idx] == nil {
			t.reset()
		}
	}

	for idx, t := range e.tracks {
		hand := visible[idx]
		if hand == nil {
			continue
		}

		o := observe(hand, f.Timestamp)
		if !e.cfg.Gate.admit(t, o) {
			continue
		}

		cand, ok := e.cfg.arbitrate(t, o)
		if !ok {
			continue
		}
		if cooling {
			e.log.Debug(context.Background(), "proposal dropped during cooldown",
				logger.String("intent", cand.intent.String()), logger.String("hand", t.side))
			t.resetClassifiers()
			continue
		}

		p := &Proposal{
			Intent:        cand.intent,
			Trigger:       cand.trigger,
			Hand:          t.side,
			Confidence:    cand.confidence,
			DetectorScore: hand.Score,
			Timestamp:     f.Timestamp,
			Summary:       cand.summary,
			Landmarks:     *hand,
			History:       t.historyCopy(),
		}
		e.fire(f.Timestamp)
		e.log.Debug(context.Background(), "proposal",
			logger.String("intent", p.Intent.String()),
			logger.String("trigger", string(p.Trigger)),
			logger.String("hand", p.Hand),
			logger.Float64("confidence", p.Confidence))
		return p
	}
	return nil
}

// fire starts the cooldown and clears both hands so the next proposal
// needs a fresh sequence.
func (e *Engine) fire(at time.Time) {
	e.fired = true
	e.last = at
	for _, t := range e.tracks {
		t.resetClassifiers()
	}
}

// Reset returns the engine to its initial state.
func (e *Engine) Reset() {
	e.fired = false
	e.last = time.Time{}
	for _, t := range e.tracks {
		t.reset()
	}
}

// HandState is a read-only view of one hand's tracking state.
type HandState struct {
	Present     bool   `json:"present"`
	Consecutive int    `json:"consecutive"`
	HistoryLen  int    `json:"history_len"`
	Sweep       string `json:"sweep"`
	Activate    string `json:"activate"`
	Deactivate  string `json:"deactivate"`
}

// HandState reports the state of the given hand ("Left" or "Right").
func (e *Engine) HandState(side string) HandState {
	idx, ok := sideIndex(side)
	if !ok {
		return HandState{}
	}
	t := e.tracks[idx]
	return HandState{
		Present:     t.present,
		Consecutive: t.consecutive,
		HistoryLen:  len(t.history),
		Sweep:       t.sweep.phase.String(),
		Activate:    t.activate.phase.String(),
		Deactivate:  t.deactivate.phase.String(),
	}
}

func sideIndex(handedness string) (int, bool) {
	switch handedness {
	case detector.Left:
		return 0, true
	case detector.Right:
		return 1, true
	}
	return 0, false
}
