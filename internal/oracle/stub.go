package oracle

import (
	"context"
	"time"

	"github.com/ayusman/mudra/internal/intent"
)

// Stub is an in-process verifier with configurable latency. It approves
// every proposal unless ForceReject is set on the stub or the request.
type Stub struct {
	Latency     time.Duration
	ForceReject bool
	Confidence  float64
}

// NewStub returns a stub that answers after latency.
func NewStub(latency time.Duration) *Stub {
	return &Stub{Latency: latency, Confidence: 0.9}
}

// Verify waits for the configured latency or until ctx is done.
func (s *Stub) Verify(ctx context.Context, req Request) (Verdict, error) {
	if s.Latency > 0 {
		t := time.NewTimer(s.Latency)
		select {
		case <-ctx.Done():
			t.Stop()
			return Verdict{}, ctx.Err()
		case <-t.C:
		}
	}

	v := Verdict{
		Version:        SchemaVersion,
		ProposedIntent: req.ProposedIntent,
		FinalIntent:    req.ProposedIntent,
		Intentional:    true,
		Confidence:     s.Confidence,
		Reason:         ReasonIntentionalCommand,
		Rationale:      "stub verifier accepted the proposal",
	}
	if s.ForceReject || req.ForceReject {
		v.FinalIntent = intent.None
		v.Intentional = false
		v.Reason = ReasonAccidentalMotion
		v.Rationale = "stub verifier forced a rejection"
	}
	return v, nil
}
