// Package restclient implements the RestAPIClient template: a base for
// calling upstream HTTP services that composes a rate limiter, a
// per-target circuit breaker, and a retry loop with exponential backoff
// and full jitter, mirroring the distilled original's rest_api.py
// ordering and success/failure classification.
package restclient

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/big"
	"net/http"
	"time"

	"github.com/mcintyjp/microservice-worker/internal/apperrors"
	"github.com/mcintyjp/microservice-worker/internal/health"
	"github.com/mcintyjp/microservice-worker/internal/resilience/breaker"
	"github.com/mcintyjp/microservice-worker/internal/resilience/ratelimit"
)

// Config controls one Client's target, retry policy, and embedded
// resilience primitives.
type Config struct {
	BaseURL         string
	Timeout         time.Duration
	MaxRetries      int
	BackoffBase     time.Duration
	RateLimit       RateLimitConfig
	Breaker         breaker.Config
	HealthCheckName string
}

// RateLimitConfig mirrors ratelimit.New's parameters so callers configure
// the client without reaching into the resilience package directly.
type RateLimitConfig struct {
	Capacity      float64
	WindowSeconds float64
}

// Client is one RestAPIClient instance: one target, one breaker, one
// rate limiter, reporting into a shared HealthRegistry.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *ratelimit.Limiter
	breaker *breaker.Breaker
	health  *health.Registry
}

func New(cfg Config, healthRegistry *health.Registry) *Client {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BackoffBase == 0 {
		cfg.BackoffBase = 200 * time.Millisecond
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.HealthCheckName == "" {
		cfg.HealthCheckName = "restclient:" + cfg.BaseURL
	}

	healthRegistry.Register(cfg.HealthCheckName)

	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: ratelimit.New(cfg.RateLimit.Capacity, cfg.RateLimit.WindowSeconds),
		breaker: breaker.New(cfg.Breaker),
		health:  healthRegistry,
	}
}

// Request describes one call against the target's base URL.
type Request struct {
	Method string
	Path   string
	Body   any
	Header http.Header
}

// Do issues the request through the rate limiter, circuit breaker, and
// retry loop. On success it decodes the JSON response body into out (if
// non-nil).
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	if !c.breaker.CanExecute() {
		_ = c.health.Update(c.cfg.HealthCheckName, health.RED, map[string]any{"reason": "circuit open"})
		return apperrors.New(apperrors.CircuitOpen, fmt.Sprintf("circuit open for %s", c.cfg.BaseURL))
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if err := c.limiter.Acquire(ctx); err != nil {
			return apperrors.Wrap(apperrors.RateLimitExceeded, err)
		}

		resp, body, err := c.attempt(ctx, req)

		if err == nil && resp.StatusCode < 500 {
			// 2xx-4xx are "success" from the breaker's perspective.
			c.breaker.RecordSuccess()
			_ = c.health.Update(c.cfg.HealthCheckName, health.GREEN, nil)

			if resp.StatusCode >= 400 {
				return apperrors.New(apperrors.Upstream4xx, fmt.Sprintf("upstream returned %d", resp.StatusCode))
			}
			return decode(body, out)
		}

		c.breaker.RecordFailure()

		if err != nil {
			lastErr = classify(err)
		} else {
			lastErr = apperrors.New(apperrors.Upstream5xx, fmt.Sprintf("upstream returned %d", resp.StatusCode))
		}

		if attempt == c.cfg.MaxRetries {
			break
		}

		_ = c.health.Update(c.cfg.HealthCheckName, health.YELLOW, map[string]any{"attempt": attempt + 1})

		if !c.breaker.CanExecute() {
			_ = c.health.Update(c.cfg.HealthCheckName, health.RED, map[string]any{"reason": "circuit opened mid-retry"})
			return apperrors.New(apperrors.CircuitOpen, fmt.Sprintf("circuit open for %s", c.cfg.BaseURL))
		}

		if err := sleepWithJitter(ctx, c.cfg.BackoffBase, attempt); err != nil {
			return err
		}
	}

	_ = c.health.Update(c.cfg.HealthCheckName, health.RED, map[string]any{"error": lastErr.Error()})
	return lastErr
}

func (c *Client) attempt(ctx context.Context, req Request) (*http.Response, []byte, error) {
	var bodyReader io.Reader
	if req.Body != nil {
		encoded, err := json.Marshal(req.Body)
		if err != nil {
			return nil, nil, fmt.Errorf("restclient: encode body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.cfg.BaseURL+req.Path, bodyReader)
	if err != nil {
		return nil, nil, fmt.Errorf("restclient: build request: %w", err)
	}
	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	if req.Body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp, nil, err
	}

	return resp, respBody, nil
}

func decode(body []byte, out any) error {
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("restclient: decode response: %w", err)
	}
	return nil
}

// classify maps a transport-level failure (timeout vs connect refused vs
// other) into the error taxonomy's upstream codes.
func classify(err error) error {
	if ctxErr, ok := err.(interface{ Timeout() bool }); ok && ctxErr.Timeout() {
		return apperrors.Wrap(apperrors.UpstreamTimeout, err)
	}
	if err == context.DeadlineExceeded {
		return apperrors.Wrap(apperrors.UpstreamTimeout, err)
	}
	return apperrors.Wrap(apperrors.UpstreamConnect, err)
}

// sleepWithJitter waits backoffBase * 2^attempt, randomized uniformly
// between zero and that ceiling (full jitter), or returns early with the
// context's error if it's cancelled first.
func sleepWithJitter(ctx context.Context, backoffBase time.Duration, attempt int) error {
	ceiling := float64(backoffBase) * math.Pow(2, float64(attempt))

	n, err := rand.Int(rand.Reader, big.NewInt(int64(ceiling)+1))
	if err != nil {
		return err
	}
	wait := time.Duration(n.Int64())

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
