package classify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultTimeout bounds a single request.
const DefaultTimeout = 30 * time.Second

// NewHTTPClient returns the pooled client shared by all requests.
func NewHTTPClient() *http.Client {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.MaxIdleConnsPerHost = 10
	return &http.Client{Transport: tr}
}

// transport posts JSON with per-request timeouts under the retry policy.
type transport struct {
	client  *http.Client
	policy  Policy
	timeout time.Duration
	sleep   SleepFunc
}

func newTransport(client *http.Client, policy Policy, timeout time.Duration) *transport {
	if client == nil {
		client = NewHTTPClient()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if policy.MaxAttempts < 1 {
		policy = DefaultPolicy()
	}
	return &transport{client: client, policy: policy, timeout: timeout, sleep: sleepCtx}
}

func (t *transport) postJSON(ctx context.Context, url string, header http.Header, payload []byte) ([]byte, error) {
	return retry(ctx, t.policy, t.sleep, url, func(ctx context.Context) Outcome {
		return t.once(ctx, url, header, payload)
	})
}

func (t *transport) once(ctx context.Context, url string, header http.Header, payload []byte) Outcome {
	reqCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return Outcome{Err: fmt.Errorf("failed to create request: %w", err), Canceled: true}
	}
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return Outcome{Err: fmt.Errorf("request failed: %w", err), Canceled: ctx.Err() != nil}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Outcome{Err: fmt.Errorf("failed to read response: %w", err), Canceled: ctx.Err() != nil}
	}
	return Outcome{Status: resp.StatusCode, RetryAfter: resp.Header.Get("Retry-After"), Body: body}
}
