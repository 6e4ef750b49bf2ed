package classify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"unremark/internal/logging"
)

// Policy bounds the retry loop.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultPolicy is three attempts starting at one second, doubling.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: time.Second}
}

// Backoff returns the delay before the attempt following attempt (0-based).
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	return p.BaseDelay << uint(attempt)
}

// Outcome is what one attempt produced.
type Outcome struct {
	Status     int
	RetryAfter string // raw Retry-After header value
	Body       []byte
	Err        error

	// Canceled is set when the caller's own context ended, as opposed to
	// the per-request timeout firing.
	Canceled bool
}

// ActionType is the decision kind returned by NextAction.
type ActionType int

const (
	ActionRetry ActionType = iota
	ActionSucceed
	ActionFail
)

// Action is the decision for one attempt.
type Action struct {
	Type  ActionType
	Delay time.Duration // ActionRetry
	Body  []byte        // ActionSucceed
	Err   *APIError     // ActionFail
}

// NextAction decides what to do after attempt (0-based) produced o.
func NextAction(p Policy, attempt int, o Outcome) Action {
	limit := p.MaxAttempts
	if limit < 1 {
		limit = 1
	}
	final := attempt+1 >= limit

	fail := func(kind Kind, err error) Action {
		return Action{Type: ActionFail, Err: &APIError{Kind: kind, Status: o.Status, Attempts: attempt + 1, Err: err}}
	}

	if o.Err != nil {
		if o.Canceled {
			return fail(cancelKind(o.Err), o.Err)
		}
		kind := transportKind(o.Err)
		if final {
			return fail(kind, o.Err)
		}
		return Action{Type: ActionRetry, Delay: p.Backoff(attempt)}
	}

	switch {
	case o.Status >= 200 && o.Status < 300:
		return Action{Type: ActionSucceed, Body: o.Body}
	case o.Status == http.StatusTooManyRequests:
		if final {
			return fail(KindRateLimit, fmt.Errorf("rate limit exceeded (429)"))
		}
		if d, ok := parseRetryAfter(o.RetryAfter); ok {
			return Action{Type: ActionRetry, Delay: d}
		}
		return Action{Type: ActionRetry, Delay: p.Backoff(attempt)}
	default:
		if final {
			return fail(KindOther, fmt.Errorf("request failed with status %d: %s", o.Status, truncate(string(o.Body), 200)))
		}
		return Action{Type: ActionRetry, Delay: p.Backoff(attempt)}
	}
}

func cancelKind(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindOther
}

func transportKind(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTimeout
	}
	// Only failures to reach the server count as network errors.
	var op *net.OpError
	if errors.As(err, &op) && op.Op == "dial" {
		return KindNetwork
	}
	var dns *net.DNSError
	if errors.As(err, &dns) {
		return KindNetwork
	}
	return KindOther
}

// parseRetryAfter accepts the delta-seconds form only.
func parseRetryAfter(v string) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// SleepFunc waits for d or until ctx ends.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// retry runs call until NextAction succeeds or fails.
func retry(ctx context.Context, p Policy, sleep SleepFunc, label string, call func(ctx context.Context) Outcome) ([]byte, error) {
	if sleep == nil {
		sleep = sleepCtx
	}
	for attempt := 0; ; attempt++ {
		act := NextAction(p, attempt, call(ctx))
		switch act.Type {
		case ActionSucceed:
			return act.Body, nil
		case ActionFail:
			logging.ClassifyWarn("%s: giving up: %v", label, act.Err)
			return nil, act.Err
		}

		logging.ClassifyDebug("%s: attempt %d failed, retrying in %v", label, attempt+1, act.Delay)
		if err := sleep(ctx, act.Delay); err != nil {
			return nil, &APIError{Kind: cancelKind(err), Attempts: attempt + 1, Err: err}
		}
	}
}
