package sentiment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"supply-chain-risk/metrics"
)

type inferenceRequest struct {
	Inputs string `json:"inputs"`
}

// HTTPClassifier calls a text-classification endpoint that speaks the
// Hugging Face inference protocol (FinBERT and similar models). Calls go
// through a circuit breaker so a dead endpoint fails the stage quickly
// instead of timing out once per headline.
type HTTPClassifier struct {
	client   *http.Client
	endpoint string
	token    string
	breaker  *gobreaker.CircuitBreaker
}

// NewHTTPClassifier creates a classifier posting to endpoint. token, when
// non-empty, is sent as a bearer credential.
func NewHTTPClassifier(endpoint, token string, timeout time.Duration) *HTTPClassifier {
	return &HTTPClassifier{
		client:   &http.Client{Timeout: timeout},
		endpoint: endpoint,
		token:    token,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "sentiment-http",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 5
			},
		}),
	}
}

// Name implements Classifier.
func (c *HTTPClassifier) Name() string { return "http" }

// Classify implements Classifier.
func (c *HTTPClassifier) Classify(ctx context.Context, text string) (Prediction, error) {
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.call(ctx, text)
	})
	if err != nil {
		outcome := "error"
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			outcome = "rejected"
		}
		metrics.ClassifierCalls.WithLabelValues(c.Name(), outcome).Inc()
		return Prediction{}, err
	}
	metrics.ClassifierCalls.WithLabelValues(c.Name(), "ok").Inc()
	return out.(Prediction), nil
}

func (c *HTTPClassifier) call(ctx context.Context, text string) (Prediction, error) {
	body, err := json.Marshal(inferenceRequest{Inputs: text})
	if err != nil {
		return Prediction{}, fmt.Errorf("marshaling classifier input: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Prediction{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return Prediction{}, fmt.Errorf("classifier request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Prediction{}, fmt.Errorf("reading classifier response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Prediction{}, fmt.Errorf("classifier returned status %d: %s", resp.StatusCode, string(respBody))
	}

	return parseInferenceResponse(respBody)
}

// parseInferenceResponse accepts either a flat list of label scores or the
// batched list-of-lists form and returns the highest scoring label.
func parseInferenceResponse(body []byte) (Prediction, error) {
	var batched [][]Prediction
	if err := json.Unmarshal(body, &batched); err == nil && len(batched) > 0 {
		return best(batched[0])
	}
	var flat []Prediction
	if err := json.Unmarshal(body, &flat); err != nil {
		return Prediction{}, fmt.Errorf("decoding classifier response: %w (body: %s)", err, string(body))
	}
	return best(flat)
}

func best(preds []Prediction) (Prediction, error) {
	if len(preds) == 0 {
		return Prediction{}, errors.New("classifier returned no labels")
	}
	top := preds[0]
	for _, p := range preds[1:] {
		if p.Confidence > top.Confidence {
			top = p
		}
	}
	top.Label = strings.ToLower(top.Label)
	return top, nil
}
