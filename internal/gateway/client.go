package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gHoSTeCHs/shelfwiser-sub011/internal/domain"
	"github.com/gHoSTeCHs/shelfwiser-sub011/internal/metrics"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultTimeout  = 30 * time.Second
	maxResponseBody = 1 << 20
)

// ClientOptions configures the outbound HTTP client every gateway shares.
type ClientOptions struct {
	Timeout time.Duration
	Metrics *metrics.Metrics
	// Transport overrides the instrumented default transport, mainly for tests.
	Transport http.RoundTripper
}

type response struct {
	status int
	body   []byte
}

type client struct {
	gateway string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[*response]
	metrics *metrics.Metrics
}

func newClient(gatewayID string, opts ClientOptions) *client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	transport := opts.Transport
	if transport == nil {
		transport = otelhttp.NewTransport(http.DefaultTransport)
	}

	breaker := gobreaker.NewCircuitBreaker[*response](gobreaker.Settings{
		Name:        "gateway-" + gatewayID,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// Provider rejections (4xx) are answers, not outages.
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, domain.ErrGatewayRequestFailed)
		},
	})

	return &client{
		gateway: gatewayID,
		http:    &http.Client{Timeout: timeout, Transport: transport},
		breaker: breaker,
		metrics: opts.Metrics,
	}
}

// do sends one request. Network errors, 5xx and an open breaker map to
// ErrGatewayRequestFailed; other non-2xx statuses map to ErrGatewayRejected.
func (c *client) do(ctx context.Context, operation, method, url string, header http.Header, body []byte) (*response, error) {
	start := time.Now()
	resp, err := c.breaker.Execute(func() (*response, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return nil, fmt.Errorf("build %s request: %w", operation, err)
		}
		for k, vs := range header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}

		res, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %s %s: %v", domain.ErrGatewayRequestFailed, c.gateway, operation, err)
		}
		defer res.Body.Close()

		data, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBody))
		if err != nil {
			return nil, fmt.Errorf("%w: %s %s: read body: %v", domain.ErrGatewayRequestFailed, c.gateway, operation, err)
		}
		out := &response{status: res.StatusCode, body: data}
		if res.StatusCode >= http.StatusInternalServerError {
			return out, fmt.Errorf("%w: %s %s: status %d", domain.ErrGatewayRequestFailed, c.gateway, operation, res.StatusCode)
		}
		return out, nil
	})

	outcome := "ok"
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		outcome = "circuit_open"
		err = fmt.Errorf("%w: %s %s: %v", domain.ErrGatewayRequestFailed, c.gateway, operation, err)
	case err != nil:
		outcome = "failed"
	case resp.status >= http.StatusBadRequest:
		outcome = "rejected"
		err = fmt.Errorf("%w: %s %s: status %d: %s", domain.ErrGatewayRejected, c.gateway, operation, resp.status, truncate(resp.body, 200))
	}
	c.metrics.ObserveGateway(c.gateway, operation, outcome, time.Since(start))
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// doJSON sends in as a JSON body (when non-nil) and decodes the response into out.
func (c *client) doJSON(ctx context.Context, operation, method, url string, header http.Header, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return fmt.Errorf("encode %s request: %w", operation, err)
		}
	}
	if header == nil {
		header = http.Header{}
	}
	header.Set("Accept", "application/json")
	if body != nil {
		header.Set("Content-Type", "application/json")
	}

	resp, err := c.do(ctx, operation, method, url, header, body)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		return fmt.Errorf("%w: %s %s: decode response: %v", domain.ErrGatewayRequestFailed, c.gateway, operation, err)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
