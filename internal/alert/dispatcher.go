package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DispatchResult records one webhook delivery attempt.
type DispatchResult struct {
	URL        string
	StatusCode int
	Success    bool
	Error      string
}

// Dispatcher posts webhook payloads. Delivery is best effort: failures are
// logged and reported in the result, never propagated, so one dead endpoint
// cannot stall the pipeline. A token bucket caps the outbound rate across
// all rules.
type Dispatcher struct {
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewDispatcher creates a webhook dispatcher. limit is deliveries per
// second, burst the bucket size; zero values fall back to sane defaults.
func NewDispatcher(timeout time.Duration, limit float64, burst int, logger *zap.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if limit <= 0 {
		limit = 5
	}
	if burst <= 0 {
		burst = 10
	}
	return &Dispatcher{
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(limit), burst),
		logger:  logger,
	}
}

// Dispatch delivers each payload to its webhook URL in order. A failed
// delivery is recorded and the rest still go out.
func (d *Dispatcher) Dispatch(ctx context.Context, payloads []WebhookPayload) []DispatchResult {
	results := make([]DispatchResult, 0, len(payloads))
	for _, payload := range payloads {
		if err := d.limiter.Wait(ctx); err != nil {
			results = append(results, DispatchResult{
				URL:   payload.WebhookURL,
				Error: err.Error(),
			})
			continue
		}
		result := d.send(ctx, payload)
		if result.Success {
			d.logger.Info("webhook delivered",
				zap.String("url", result.URL),
				zap.Int("status", result.StatusCode),
				zap.String("event", payload.Event),
			)
		} else {
			d.logger.Warn("webhook delivery failed",
				zap.String("url", result.URL),
				zap.Int("status", result.StatusCode),
				zap.String("error", result.Error),
			)
		}
		results = append(results, result)
	}
	return results
}

func (d *Dispatcher) send(ctx context.Context, payload WebhookPayload) DispatchResult {
	result := DispatchResult{URL: payload.WebhookURL}

	body, err := json.Marshal(payload)
	if err != nil {
		result.Error = fmt.Sprintf("marshal payload: %v", err)
		return result
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		payload.WebhookURL, bytes.NewReader(body))
	if err != nil {
		result.Error = fmt.Sprintf("create request: %v", err)
		return result
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	defer resp.Body.Close()
	// Drain so the connection can be reused.
	io.Copy(io.Discard, resp.Body) //nolint:errcheck

	result.StatusCode = resp.StatusCode
	result.Success = resp.StatusCode >= 200 && resp.StatusCode < 300
	if !result.Success {
		result.Error = fmt.Sprintf("status %d", resp.StatusCode)
	}
	return result
}
