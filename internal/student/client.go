// Package student talks to the out-of-process student classifier that
// predicts whether a proposal would be approved. Predictions are recorded
// next to each event; the verifier stays authoritative.
package student

import (
	"context"
	"fmt"
	"time"

	"github.com/ayusman/mudra/internal/features"
	"github.com/ayusman/mudra/internal/httpjson"
)

// Prediction is the classifier's answer.
type Prediction struct {
	Execute      bool    `json:"execute"`
	Confidence   float64 `json:"confidence"`
	ModelVersion string  `json:"model_version,omitempty"`
	Mode         string  `json:"mode"`
	LatencyMS    float64 `json:"latency_ms"`
}

type predictRequest struct {
	Features map[string]float64 `json:"features"`
	Type     string             `json:"type"`
}

// Client calls POST /predict.
type Client struct {
	http *httpjson.Client
}

// New creates a client for the service at baseURL.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{http: httpjson.New(baseURL, httpjson.WithTimeout(timeout))}
}

// Predict asks the classifier about one feature vector.
func (c *Client) Predict(ctx context.Context, v features.Vector) (*Prediction, error) {
	start := time.Now()
	var p Prediction
	req := predictRequest{Features: v.Map(), Type: string(v.GestureType)}
	if err := c.http.PostJSON(ctx, "/predict", req, &p); err != nil {
		return nil, fmt.Errorf("student predict: %w", err)
	}
	p.LatencyMS = float64(time.Since(start).Microseconds()) / 1000
	return &p, nil
}
