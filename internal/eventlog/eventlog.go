// Package eventlog defines the terminal event record and the sinks it is
// written to.
package eventlog

import (
	"context"
	"time"

	"github.com/ayusman/mudra/internal/features"
	"github.com/ayusman/mudra/internal/intent"
	"github.com/ayusman/mudra/internal/oracle"
	"github.com/ayusman/mudra/internal/student"
)

// Stage timestamp keys.
const (
	StageProposed         = "proposed"
	StageVerifyStarted    = "verify_started"
	StageVerifyCompleted  = "verify_completed"
	StageApproved         = "approved"
	StageExecuteStarted   = "execute_started"
	StageExecuteCompleted = "execute_completed"
	StageTerminal         = "terminal"
)

// Error stages.
const (
	ErrorStageVerification = "verification"
	ErrorStageExecution    = "execution"
)

// Annotation kinds.
const (
	AnnotationStaleVerdict    = "stale_verdict"
	AnnotationLabel           = "label"
	AnnotationLateExecution   = "late_execution"
	AnnotationLabelError      = "label_error"
	AnnotationStaleVerifyFail = "stale_verify_error"
)

// Record is the single terminal log entry of an event.
type Record struct {
	EventID          string               `json:"event_id"`
	ProposedIntent   intent.Intent        `json:"proposed_intent"`
	ApprovedIntent   intent.Intent        `json:"approved_intent,omitempty"`
	Trigger          string               `json:"trigger"`
	Hand             string               `json:"hand"`
	LocalConfidence  float64              `json:"local_confidence"`
	Mode             string               `json:"mode"`
	Outcome          string               `json:"outcome"`
	PolicyTag        string               `json:"policy_tag"`
	MergeCount       int                  `json:"merge_count"`
	Superseded       bool                 `json:"superseded"`
	SupersededReason string               `json:"superseded_reason,omitempty"`
	SupersededBy     string               `json:"superseded_by,omitempty"`
	ExecutionStarted bool                 `json:"execution_started,omitempty"`
	Error            string               `json:"error,omitempty"`
	ErrorStage       string               `json:"error_stage,omitempty"`
	Timestamps       map[string]time.Time `json:"timestamps"`
	LatenciesMS      map[string]float64   `json:"latencies_ms"`
	Verdict          *oracle.Verdict      `json:"verdict,omitempty"`
	Features         *features.Vector     `json:"features,omitempty"`
	Student          *student.Prediction  `json:"student,omitempty"`
}

// Annotation is information about an event that arrives after its terminal
// record was written, such as a late verdict or an asynchronous label.
type Annotation struct {
	EventID   string          `json:"event_id"`
	Kind      string          `json:"kind"`
	Timestamp time.Time       `json:"timestamp"`
	Verdict   *oracle.Verdict `json:"verdict,omitempty"`
	Error     string          `json:"error,omitempty"`
	Detail    string          `json:"detail,omitempty"`
}

// Sink receives terminal records and annotations.
type Sink interface {
	WriteRecord(ctx context.Context, rec Record) error
	WriteAnnotation(ctx context.Context, ann Annotation) error
	Close() error
}

var latencyPairs = []struct {
	name, from, to string
}{
	{"verification", StageVerifyStarted, StageVerifyCompleted},
	{"decision", StageProposed, StageApproved},
	{"execution", StageExecuteStarted, StageExecuteCompleted},
	{"proposal_to_execute", StageProposed, StageExecuteStarted},
	{"end_to_end", StageProposed, StageTerminal},
}

// Latencies derives stage latencies in milliseconds from whichever
// timestamps are present.
func Latencies(ts map[string]time.Time) map[string]float64 {
	out := make(map[string]float64)
	for _, p := range latencyPairs {
		from, ok1 := ts[p.from]
		to, ok2 := ts[p.to]
		if !ok1 || !ok2 {
			continue
		}
		out[p.name] = float64(to.Sub(from).Microseconds()) / 1000
	}
	return out
}
