// Package oracle defines the slow, authoritative verifier that decides
// whether a proposed gesture was intentional.
package oracle

import (
	"context"
	"errors"
	"fmt"

	"github.com/ayusman/mudra/internal/evidence"
	"github.com/ayusman/mudra/internal/features"
	"github.com/ayusman/mudra/internal/intent"
	"github.com/ayusman/mudra/internal/student"
)

// SchemaVersion is the verdict schema this client understands.
const SchemaVersion = "1.0"

// Reason categorizes the verifier's judgement.
type Reason string

const (
	ReasonIntentionalCommand  Reason = "intentional_command"
	ReasonSelfGrooming        Reason = "self_grooming"
	ReasonReachingObject      Reason = "reaching_object"
	ReasonSwattingInsect      Reason = "swatting_insect"
	ReasonConversationGesture Reason = "conversation_gesture"
	ReasonAccidentalMotion    Reason = "accidental_motion"
	ReasonTrackingError       Reason = "tracking_error"
	ReasonUnknown             Reason = "unknown"
)

// Valid reports whether r belongs to the closed reason set.
func (r Reason) Valid() bool {
	switch r {
	case ReasonIntentionalCommand, ReasonSelfGrooming, ReasonReachingObject,
		ReasonSwattingInsect, ReasonConversationGesture, ReasonAccidentalMotion,
		ReasonTrackingError, ReasonUnknown:
		return true
	}
	return false
}

// ErrMalformed marks a verdict that fails schema validation.
var ErrMalformed = errors.New("malformed verdict")

// Request is what the verifier is asked about one event.
type Request struct {
	EventID         string
	ProposedIntent  intent.Intent
	LocalConfidence float64
	Evidence        []evidence.Snapshot
	Features        *features.Vector
	Student         *student.Prediction
	PolicyHint      string
	ForceReject     bool
}

// Verdict is the verifier's answer.
type Verdict struct {
	Version        string        `json:"version"`
	ProposedIntent intent.Intent `json:"proposed_intent"`
	FinalIntent    intent.Intent `json:"final_intent"`
	Intentional    bool          `json:"intentional"`
	Confidence     float64       `json:"confidence"`
	Reason         Reason        `json:"reason_category"`
	Rationale      string        `json:"rationale"`
}

// Validate checks the verdict against the schema.
func (v Verdict) Validate() error {
	if v.Version != SchemaVersion {
		return fmt.Errorf("%w: version %q", ErrMalformed, v.Version)
	}
	if !v.FinalIntent.Valid() {
		return fmt.Errorf("%w: final_intent %q", ErrMalformed, v.FinalIntent)
	}
	if v.Confidence < 0 || v.Confidence > 1 {
		return fmt.Errorf("%w: confidence %v", ErrMalformed, v.Confidence)
	}
	if !v.Reason.Valid() {
		return fmt.Errorf("%w: reason_category %q", ErrMalformed, v.Reason)
	}
	return nil
}

// Approves reports whether the verdict allows executing an intent.
func (v Verdict) Approves() bool {
	return v.Intentional && v.FinalIntent.Actionable()
}

// Oracle verifies proposals. Implementations may be slow; callers bound
// their own waiting.
type Oracle interface {
	Verify(ctx context.Context, req Request) (Verdict, error)
}

// Func adapts a function to the Oracle interface.
type Func func(ctx context.Context, req Request) (Verdict, error)

// Verify calls f.
func (f Func) Verify(ctx context.Context, req Request) (Verdict, error) { return f(ctx, req) }
