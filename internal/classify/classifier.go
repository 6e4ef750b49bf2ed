// Package classify asks an external judge which comments are redundant.
package classify

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"unremark/internal/config"
	"unremark/internal/logging"
	"unremark/internal/types"
)

// Batch is the outcome of classifying a set of comments. Redundant holds
// confirmed comments in completion order; Errors holds one entry per failed
// comment or request.
type Batch struct {
	Redundant []types.CommentInfo
	Errors    []error
}

// Classifier judges comments.
type Classifier interface {
	Classify(ctx context.Context, comments []types.CommentInfo) Batch
}

// Func adapts a function to Classifier.
type Func func(ctx context.Context, comments []types.CommentInfo) Batch

func (f Func) Classify(ctx context.Context, comments []types.CommentInfo) Batch {
	return f(ctx, comments)
}

// judge decides a single comment.
type judge func(ctx context.Context, c types.CommentInfo) (types.Verdict, error)

// perComment fans one request per comment out over an errgroup. limit <= 0
// means unbounded.
func perComment(ctx context.Context, comments []types.CommentInfo, limit int, decide judge) Batch {
	var (
		mu    sync.Mutex
		batch Batch
	)
	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for _, c := range comments {
		g.Go(func() error {
			v, err := decide(ctx, c)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				batch.Errors = append(batch.Errors, fmt.Errorf("line %d: %w", c.LineNumber, err))
				return nil
			}
			if r, ok := confirmed(c, v); ok {
				batch.Redundant = append(batch.Redundant, r)
			} else if v.IsRedundant {
				logging.ClassifyDebug("dropping verdict for line %d: attributed to line %d", c.LineNumber, v.CommentLineNumber)
			}
			return nil
		})
	}
	_ = g.Wait()
	return batch
}

// New selects a strategy from configuration.
func New(cfg config.ClassifierConfig) (Classifier, error) {
	policy := Policy{MaxAttempts: cfg.MaxAttempts, BaseDelay: cfg.GetBaseDelay()}
	client := NewHTTPClient()

	provider := cfg.Provider
	if provider == "" || provider == config.ProviderAuto {
		switch {
		case cfg.APIKey != "":
			provider = config.ProviderOpenAI
		case cfg.GeminiAPIKey != "":
			provider = config.ProviderGemini
		default:
			provider = config.ProviderProxy
		}
	}
	logging.Classify("using %s classifier", provider)

	switch provider {
	case config.ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai classifier requires OPENAI_API_KEY")
		}
		return NewOpenAI(OpenAIConfig{
			APIKey:        cfg.APIKey,
			Endpoint:      cfg.Endpoint,
			Model:         cfg.Model,
			Timeout:       cfg.GetTimeout(),
			Policy:        policy,
			MaxConcurrent: cfg.MaxConcurrent,
			HTTPClient:    client,
		}), nil
	case config.ProviderGemini:
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("gemini classifier requires GEMINI_API_KEY")
		}
		return NewGemini(context.Background(), GeminiConfig{
			APIKey:        cfg.GeminiAPIKey,
			Model:         cfg.GeminiModel,
			Timeout:       cfg.GetTimeout(),
			Policy:        policy,
			MaxConcurrent: cfg.MaxConcurrent,
			HTTPClient:    client,
		})
	case config.ProviderProxy:
		return NewProxy(ProxyConfig{
			Endpoint:   cfg.ProxyEndpoint,
			Timeout:    cfg.GetTimeout(),
			Policy:     policy,
			HTTPClient: client,
		}), nil
	}
	return nil, fmt.Errorf("unknown classifier provider %q", provider)
}

