package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"unremark/internal/config"
	"unremark/internal/logging"
	"unremark/internal/types"
)

// ProxyConfig configures the batch proxy strategy.
type ProxyConfig struct {
	Endpoint   string
	Timeout    time.Duration
	Policy     Policy
	HTTPClient *http.Client
}

// ProxyClassifier posts all comments of a file to an intermediary service
// in one request.
type ProxyClassifier struct {
	endpoint  string
	transport *transport
}

// NewProxy creates a proxy classifier.
func NewProxy(cfg ProxyConfig) *ProxyClassifier {
	if cfg.Endpoint == "" {
		cfg.Endpoint = config.DefaultProxyEndpoint
	}
	return &ProxyClassifier{
		endpoint:  strings.TrimRight(cfg.Endpoint, "/") + "/analyze",
		transport: newTransport(cfg.HTTPClient, cfg.Policy, cfg.Timeout),
	}
}

// SetSleep replaces the backoff sleeper.
func (p *ProxyClassifier) SetSleep(fn SleepFunc) { p.transport.sleep = fn }

type proxyRequest struct {
	Comments []types.CommentInfo `json:"comments"`
}

type proxyResponse struct {
	RedundantComments []types.CommentInfo `json:"redundant_comments"`
	Comments          []types.CommentInfo `json:"comments"`
}

// Classify implements Classifier.
func (p *ProxyClassifier) Classify(ctx context.Context, comments []types.CommentInfo) Batch {
	if len(comments) == 0 {
		return Batch{}
	}
	requestID := uuid.NewString()
	log := logging.Get(logging.CategoryClassify).With("request_id", requestID)

	payload, err := json.Marshal(proxyRequest{Comments: comments})
	if err != nil {
		return Batch{Errors: []error{fmt.Errorf("failed to marshal request: %w", err)}}
	}

	header := http.Header{}
	header.Set("X-Request-ID", requestID)

	start := time.Now()
	body, err := p.transport.postJSON(ctx, p.endpoint, header, payload)
	if err != nil {
		log.Warn("[Proxy] batch of %d failed: %v", len(comments), err)
		return Batch{Errors: []error{err}}
	}

	var resp proxyResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Batch{Errors: []error{&APIError{Kind: KindOther, Attempts: 1, Err: fmt.Errorf("failed to parse proxy response: %w", err)}}}
	}
	returned := resp.RedundantComments
	if returned == nil {
		returned = resp.Comments
	}
	redundant := attributed(comments, returned)
	if dropped := len(returned) - len(redundant); dropped > 0 {
		log.Debug("[Proxy] dropped %d comment(s) not matching any request line", dropped)
	}

	log.Info("[Proxy] %d comments: %d redundant in %v", len(comments), len(redundant), time.Since(start))
	return Batch{Redundant: redundant}
}

// attributed keeps the returned comments that match a sent comment by text
// and line, carrying over the sent context and column.
func attributed(sent, returned []types.CommentInfo) []types.CommentInfo {
	type key struct {
		text string
		line int
	}
	byKey := make(map[key]types.CommentInfo, len(sent))
	for _, c := range sent {
		byKey[key{c.Text, c.LineNumber}] = c
	}
	out := make([]types.CommentInfo, 0, len(returned))
	for _, r := range returned {
		c, ok := byKey[key{r.Text, r.LineNumber}]
		if !ok {
			continue
		}
		c.Explanation = r.Explanation
		out = append(out, c)
	}
	return out
}
