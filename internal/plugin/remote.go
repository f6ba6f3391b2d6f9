package plugin

import (
	"context"
	"fmt"
	"time"

	"github.com/ayusman/mudra/internal/httpjson"
	"github.com/ayusman/mudra/internal/intent"
	"github.com/ayusman/mudra/pkg/logger"
)

// APIError is the error returned for non-2xx executor responses.
type APIError = httpjson.APIError

type executeRequest struct {
	Intent  intent.Intent `json:"intent"`
	EventID string        `json:"event_id"`
	DryRun  bool          `json:"dry_run"`
	Source  string        `json:"source"`
}

// ExecuteResult is the executor service's reply.
type ExecuteResult struct {
	OK       bool          `json:"ok"`
	Executed bool          `json:"executed"`
	Intent   intent.Intent `json:"intent"`
	EventID  string        `json:"event_id"`
	KeyCombo string        `json:"key_combo"`
	Detail   string        `json:"detail"`
}

// RemoteExecutor sends intents to an executor service over HTTP.
type RemoteExecutor struct {
	http   *httpjson.Client
	dryRun bool
	source string
	log    logger.Logger
}

// NewRemoteExecutor creates a RemoteExecutor for baseURL.
func NewRemoteExecutor(baseURL string, timeout time.Duration, dryRun bool, opts ...httpjson.Option) *RemoteExecutor {
	opts = append([]httpjson.Option{httpjson.WithTimeout(timeout)}, opts...)
	return &RemoteExecutor{
		http:   httpjson.New(baseURL, opts...),
		dryRun: dryRun,
		source: "mudra",
		log:    logger.Named("remote-executor"),
	}
}

// Execute posts /execute and fails unless the service reports ok.
func (r *RemoteExecutor) Execute(ctx context.Context, in intent.Intent, eventID string) error {
	var res ExecuteResult
	err := r.http.PostJSON(ctx, "/execute", executeRequest{
		Intent:  in,
		EventID: eventID,
		DryRun:  r.dryRun,
		Source:  r.source,
	}, &res)
	if err != nil {
		return fmt.Errorf("execute %s: %w", eventID, err)
	}
	if !res.OK {
		return fmt.Errorf("execute %s: executor refused: %s", eventID, res.Detail)
	}
	r.log.Debug(ctx, "remote execute",
		logger.String("event_id", eventID),
		logger.String("intent", string(in)),
		logger.String("key_combo", res.KeyCombo),
		logger.Bool("executed", res.Executed),
	)
	return nil
}

// DryRun logs intents instead of executing them.
type DryRun struct {
	log logger.Logger
}

// NewDryRun creates a DryRun executor.
func NewDryRun() *DryRun {
	return &DryRun{log: logger.Named("dry-run")}
}

func (d *DryRun) Execute(ctx context.Context, in intent.Intent, eventID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.log.Info(ctx, "dry run", logger.String("event_id", eventID), logger.String("intent", string(in)))
	return nil
}
