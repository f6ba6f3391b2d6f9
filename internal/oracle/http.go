package oracle

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/ayusman/mudra/internal/evidence"
	"github.com/ayusman/mudra/internal/features"
	"github.com/ayusman/mudra/internal/httpjson"
	"github.com/ayusman/mudra/internal/intent"
	"github.com/ayusman/mudra/internal/student"
)

type wireRequest struct {
	EventID         string              `json:"event_id"`
	ProposedIntent  string              `json:"proposed_intent"`
	Frames          []string            `json:"frames,omitempty"`
	LandmarkSummary *landmarkSummary    `json:"landmark_summary_json,omitempty"`
	LocalConfidence float64             `json:"local_confidence"`
	ForceReject     bool                `json:"force_reject,omitempty"`
	PolicyHint      string              `json:"policy_hint,omitempty"`
	Features        *features.Vector    `json:"features,omitempty"`
	Student         *student.Prediction `json:"student_prediction,omitempty"`
}

type landmarkSummary struct {
	FrameCount   int          `json:"frame_count"`
	TimestampsMS []int64      `json:"timestamps_ms"`
	WristPath    [][2]float64 `json:"wrist_path"`
	Handedness   []string     `json:"handedness"`
	DurationMS   int64        `json:"duration_ms"`
}

func summarize(snaps []evidence.Snapshot) *landmarkSummary {
	if len(snaps) == 0 {
		return nil
	}
	s := &landmarkSummary{FrameCount: len(snaps)}
	for _, snap := range snaps {
		s.TimestampsMS = append(s.TimestampsMS, snap.Timestamp.UnixMilli())
		if len(snap.Hands) == 0 {
			continue
		}
		h := snap.Hands[0]
		x, y := h.WristXY()
		s.WristPath = append(s.WristPath, [2]float64{x, y})
		s.Handedness = append(s.Handedness, h.Handedness)
	}
	s.DurationMS = snaps[len(snaps)-1].Timestamp.Sub(snaps[0].Timestamp).Milliseconds()
	return s
}

func encodeFrames(snaps []evidence.Snapshot) []string {
	var out []string
	for _, s := range snaps {
		if len(s.Image) == 0 {
			continue
		}
		out = append(out, base64.StdEncoding.EncodeToString(s.Image))
	}
	return out
}

// wireVerdict mirrors Verdict with every field required. A key absent from
// the response body stays nil.
type wireVerdict struct {
	Version        *string        `json:"version"`
	ProposedIntent *intent.Intent `json:"proposed_intent"`
	FinalIntent    *intent.Intent `json:"final_intent"`
	Intentional    *bool          `json:"intentional"`
	Confidence     *float64       `json:"confidence"`
	Reason         *Reason        `json:"reason_category"`
	Rationale      *string        `json:"rationale"`
}

func (w wireVerdict) verdict() (Verdict, error) {
	var missing []string
	if w.Version == nil {
		missing = append(missing, "version")
	}
	if w.ProposedIntent == nil {
		missing = append(missing, "proposed_intent")
	}
	if w.FinalIntent == nil {
		missing = append(missing, "final_intent")
	}
	if w.Intentional == nil {
		missing = append(missing, "intentional")
	}
	if w.Confidence == nil {
		missing = append(missing, "confidence")
	}
	if w.Reason == nil {
		missing = append(missing, "reason_category")
	}
	if w.Rationale == nil {
		missing = append(missing, "rationale")
	}
	if len(missing) > 0 {
		return Verdict{}, fmt.Errorf("%w: missing %s", ErrMalformed, strings.Join(missing, ", "))
	}
	v := Verdict{
		Version:        *w.Version,
		ProposedIntent: *w.ProposedIntent,
		FinalIntent:    *w.FinalIntent,
		Intentional:    *w.Intentional,
		Confidence:     *w.Confidence,
		Reason:         *w.Reason,
		Rationale:      *w.Rationale,
	}
	return v, v.Validate()
}

// APIError is returned by Client.Verify for non-2xx verifier responses.
type APIError = httpjson.APIError

// Client is an Oracle backed by a verifier service speaking POST /verify.
type Client struct {
	http *httpjson.Client
}

// NewClient creates a verifier client. The timeout is a hard cap on each
// HTTP request, independent of how long callers are willing to wait.
func NewClient(baseURL string, timeout time.Duration, opts ...httpjson.Option) *Client {
	opts = append([]httpjson.Option{httpjson.WithTimeout(timeout)}, opts...)
	return &Client{http: httpjson.New(baseURL, opts...)}
}

// Verify posts the request and validates the returned verdict.
func (c *Client) Verify(ctx context.Context, req Request) (Verdict, error) {
	body := wireRequest{
		EventID:         req.EventID,
		ProposedIntent:  string(req.ProposedIntent),
		Frames:          encodeFrames(req.Evidence),
		LandmarkSummary: summarize(req.Evidence),
		LocalConfidence: req.LocalConfidence,
		ForceReject:     req.ForceReject,
		PolicyHint:      req.PolicyHint,
		Features:        req.Features,
		Student:         req.Student,
	}

	var w wireVerdict
	if err := c.http.PostJSON(ctx, "/verify", body, &w); err != nil {
		return Verdict{}, fmt.Errorf("verify %s: %w", req.EventID, err)
	}
	v, err := w.verdict()
	if err != nil {
		return Verdict{}, fmt.Errorf("verify %s: %w", req.EventID, err)
	}
	return v, nil
}
