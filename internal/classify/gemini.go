package classify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/genai"

	"unremark/internal/config"
	"unremark/internal/logging"
	"unremark/internal/types"
)

// GeminiConfig configures the Gemini strategy.
type GeminiConfig struct {
	APIKey        string
	Model         string
	Timeout       time.Duration
	Policy        Policy
	MaxConcurrent int
	HTTPClient    *http.Client
}

// generateFunc returns the text of a single model reply.
type generateFunc func(ctx context.Context, model, prompt string) (string, error)

// GeminiClassifier asks a Gemini model about each comment.
type GeminiClassifier struct {
	model         string
	timeout       time.Duration
	policy        Policy
	maxConcurrent int
	sleep         SleepFunc
	generate      generateFunc
}

// NewGemini creates a Gemini classifier backed by the genai SDK.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*GeminiClassifier, error) {
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	generate := func(ctx context.Context, model, prompt string) (string, error) {
		resp, err := cli.Models.GenerateContent(ctx, model,
			[]*genai.Content{{Parts: []*genai.Part{{Text: prompt}}}},
			&genai.GenerateContentConfig{ResponseMIMEType: "application/json"},
		)
		if err != nil {
			return "", err
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
			return "", fmt.Errorf("gemini: empty response")
		}
		return resp.Candidates[0].Content.Parts[0].Text, nil
	}
	return newGemini(cfg, generate), nil
}

func newGemini(cfg GeminiConfig, generate generateFunc) *GeminiClassifier {
	if cfg.Model == "" {
		cfg.Model = config.DefaultGeminiModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Policy.MaxAttempts < 1 {
		cfg.Policy = DefaultPolicy()
	}
	return &GeminiClassifier{
		model:         cfg.Model,
		timeout:       cfg.Timeout,
		policy:        cfg.Policy,
		maxConcurrent: cfg.MaxConcurrent,
		sleep:         sleepCtx,
		generate:      generate,
	}
}

// SetSleep replaces the backoff sleeper.
func (g *GeminiClassifier) SetSleep(fn SleepFunc) { g.sleep = fn }

// Classify implements Classifier.
func (g *GeminiClassifier) Classify(ctx context.Context, comments []types.CommentInfo) Batch {
	start := time.Now()
	batch := perComment(ctx, comments, g.maxConcurrent, g.judge)
	logging.Classify("[Gemini] %d comments: %d redundant, %d errors in %v",
		len(comments), len(batch.Redundant), len(batch.Errors), time.Since(start))
	return batch
}

func (g *GeminiClassifier) judge(ctx context.Context, c types.CommentInfo) (types.Verdict, error) {
	prompt := BuildPrompt(c)
	body, err := retry(ctx, g.policy, g.sleep, "gemini", func(ctx context.Context) Outcome {
		reqCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()
		text, err := g.generate(reqCtx, g.model, prompt)
		if err != nil {
			return geminiOutcome(ctx, err)
		}
		return Outcome{Status: http.StatusOK, Body: []byte(text)}
	})
	if err != nil {
		return types.Verdict{}, err
	}

	v, err := ParseVerdict(string(body))
	if err != nil {
		logging.ClassifyDebug("[Gemini] line %d: %v", c.LineNumber, err)
		return types.Verdict{}, nil
	}
	return v, nil
}

// geminiOutcome maps SDK errors onto the shared retry policy. API errors
// carry an HTTP status; anything else is a transport failure.
func geminiOutcome(ctx context.Context, err error) Outcome {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && apiErr.Code != 0 {
		return Outcome{Status: apiErr.Code, Body: []byte(apiErr.Message)}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil && apiErrPtr.Code != 0 {
		return Outcome{Status: apiErrPtr.Code, Body: []byte(apiErrPtr.Message)}
	}
	return Outcome{Err: err, Canceled: ctx.Err() != nil}
}
