// Package lifecycle arbitrates gesture proposals into events and races each
// event against a slow verifier before anything is executed.
package lifecycle

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/ayusman/mudra/internal/eventlog"
	"github.com/ayusman/mudra/internal/evidence"
	"github.com/ayusman/mudra/internal/features"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/intent"
	"github.com/ayusman/mudra/internal/oracle"
	"github.com/ayusman/mudra/internal/student"
)

// State is an event's lifecycle state.
type State string

const (
	Proposed   State = "proposed"
	Verifying  State = "verifying"
	Approved   State = "approved"
	Rejected   State = "rejected"
	TimedOut   State = "timed_out"
	Executed   State = "executed"
	Superseded State = "superseded"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	switch s {
	case Rejected, TimedOut, Executed, Superseded:
		return true
	}
	return false
}

// Mode selects how the verifier gates execution.
type Mode string

const (
	// ModeSync executes only after the verifier approves.
	ModeSync Mode = "sync"
	// ModeAsync executes immediately and asks the verifier for a label
	// afterwards.
	ModeAsync Mode = "async"
)

// ParseMode parses "sync" or "async".
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeSync:
		return ModeSync, nil
	case ModeAsync:
		return ModeAsync, nil
	}
	return "", fmt.Errorf("unknown mode %q", s)
}

// Policy tags recorded on terminal events.
const (
	TagSyncVerified         = "sync_verified"
	TagAsyncOptimistic      = "async_optimistic"
	TagNewestWins           = "newest_wins"
	TagVerificationTimeout  = "verification_timeout"
	TagVerificationRejected = "verification_rejected"
	TagVerificationError    = "verification_error"
	TagExecutionError       = "execution_error"
	TagStaleOnExecute       = "stale_on_execute"
)

// Executor performs the side effect of an approved intent.
type Executor interface {
	Execute(ctx context.Context, in intent.Intent, eventID string) error
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, in intent.Intent, eventID string) error

func (f ExecutorFunc) Execute(ctx context.Context, in intent.Intent, eventID string) error {
	return f(ctx, in, eventID)
}

// Predictor is the optional shadow classifier consulted before verification.
type Predictor interface {
	Predict(ctx context.Context, v features.Vector) (*student.Prediction, error)
}

// Submission is a proposal plus the copies of evidence and features taken
// when it fired.
type Submission struct {
	Proposal    gesture.Proposal
	Evidence    []evidence.Snapshot
	Features    *features.Vector
	ForceReject bool
}

// Event is a read-only view of an event.
type Event struct {
	ID               string
	ProposedIntent   intent.Intent
	ApprovedIntent   intent.Intent
	Trigger          gesture.Trigger
	Hand             string
	Confidence       float64
	Mode             Mode
	State            State
	PolicyTag        string
	MergeCount       int
	Superseded       bool
	SupersededReason string
	SupersededBy     string
	ExecutionStarted bool
	Error            string
	ErrorStage       string
	Verdict          *oracle.Verdict
	Timestamps       map[string]time.Time
	UpdatedAt        time.Time
}

type event struct {
	id          string
	proposal    gesture.Proposal
	evidence    []evidence.Snapshot
	features    *features.Vector
	forceReject bool
	mode        Mode

	state            State
	approved         intent.Intent
	policyTag        string
	mergeCount       int
	superseded       bool
	supersededReason string
	supersededBy     string
	executionStarted bool
	err              string
	errStage         string
	verdict          *oracle.Verdict
	student          *student.Prediction
	timestamps       map[string]time.Time
	updatedAt        time.Time
}

func newEvent(id string, sub Submission, mode Mode, now time.Time) *event {
	return &event{
		id:          id,
		proposal:    sub.Proposal,
		evidence:    sub.Evidence,
		features:    sub.Features,
		forceReject: sub.ForceReject,
		mode:        mode,
		state:       Proposed,
		timestamps:  map[string]time.Time{eventlog.StageProposed: now},
		updatedAt:   now,
	}
}

func (e *event) stamp(stage string, at time.Time) {
	e.timestamps[stage] = at
	e.updatedAt = at
}

func (e *event) view() Event {
	return Event{
		ID:               e.id,
		ProposedIntent:   e.proposal.Intent,
		ApprovedIntent:   e.approved,
		Trigger:          e.proposal.Trigger,
		Hand:             e.proposal.Hand,
		Confidence:       e.proposal.Confidence,
		Mode:             e.mode,
		State:            e.state,
		PolicyTag:        e.policyTag,
		MergeCount:       e.mergeCount,
		Superseded:       e.superseded,
		SupersededReason: e.supersededReason,
		SupersededBy:     e.supersededBy,
		ExecutionStarted: e.executionStarted,
		Error:            e.err,
		ErrorStage:       e.errStage,
		Verdict:          e.verdict,
		Timestamps:       maps.Clone(e.timestamps),
		UpdatedAt:        e.updatedAt,
	}
}

func (e *event) record() eventlog.Record {
	ts := maps.Clone(e.timestamps)
	return eventlog.Record{
		EventID:          e.id,
		ProposedIntent:   e.proposal.Intent,
		ApprovedIntent:   e.approved,
		Trigger:          string(e.proposal.Trigger),
		Hand:             e.proposal.Hand,
		LocalConfidence:  e.proposal.Confidence,
		Mode:             string(e.mode),
		Outcome:          string(e.state),
		PolicyTag:        e.policyTag,
		MergeCount:       e.mergeCount,
		Superseded:       e.superseded,
		SupersededReason: e.supersededReason,
		SupersededBy:     e.supersededBy,
		ExecutionStarted: e.executionStarted,
		Error:            e.err,
		ErrorStage:       e.errStage,
		Timestamps:       ts,
		LatenciesMS:      eventlog.Latencies(ts),
		Verdict:          e.verdict,
		Features:         e.features,
		Student:          e.student,
	}
}
