package plugin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

var (
	// ErrTimeout is returned when a plugin does not finish in time.
	ErrTimeout = errors.New("plugin timed out")
	// ErrBadResponse is returned when stdout is not a single Response.
	ErrBadResponse = errors.New("malformed plugin response")
)

// maxStderr bounds how much plugin stderr is quoted in errors.
const maxStderr = 512

// Executor runs one plugin process per request.
type Executor struct {
	timeout time.Duration
}

// NewExecutor returns an Executor that kills plugins after timeout. A zero
// timeout leaves the bound to the caller's context.
func NewExecutor(timeout time.Duration) *Executor {
	return &Executor{timeout: timeout}
}

// Run starts p in its own directory, writes req as JSON to stdin and decodes
// stdout. A plugin that exits non-zero or prints something other than a
// Response is an error; a well-formed Response with Success=false is not.
func (e *Executor) Run(ctx context.Context, p *Plugin, req *Request) (*Response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	runCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, p.Executable)
	cmd.Dir = p.Path
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	runErr := cmd.Run()

	switch {
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return nil, fmt.Errorf("%w: %s after %s", ErrTimeout, p.Manifest.Name, e.timeout)
	case runErr != nil:
		if msg := tail(stderr.String()); msg != "" {
			return nil, fmt.Errorf("run %s: %w (stderr: %s)", p.Manifest.Name, runErr, msg)
		}
		return nil, fmt.Errorf("run %s: %w", p.Manifest.Name, runErr)
	}

	var resp Response
	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &resp); err != nil {
		return nil, fmt.Errorf("%w from %s: %v (stdout: %s)", ErrBadResponse, p.Manifest.Name, err, tail(stdout.String()))
	}
	return &resp, nil
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxStderr {
		s = "..." + s[len(s)-maxStderr:]
	}
	return s
}
