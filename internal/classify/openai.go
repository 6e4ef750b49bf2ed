package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"unremark/internal/config"
	"unremark/internal/logging"
	"unremark/internal/types"
)

// OpenAIConfig configures the chat-completions strategy.
type OpenAIConfig struct {
	APIKey        string
	Endpoint      string
	Model         string
	Timeout       time.Duration
	Policy        Policy
	MaxConcurrent int
	HTTPClient    *http.Client
}

// OpenAIClassifier sends one chat-completion request per comment.
type OpenAIClassifier struct {
	apiKey        string
	endpoint      string
	model         string
	maxConcurrent int
	transport     *transport
}

// NewOpenAI creates an OpenAI classifier.
func NewOpenAI(cfg OpenAIConfig) *OpenAIClassifier {
	if cfg.Endpoint == "" {
		cfg.Endpoint = config.DefaultEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = config.DefaultModel
	}
	return &OpenAIClassifier{
		apiKey:        cfg.APIKey,
		endpoint:      cfg.Endpoint,
		model:         cfg.Model,
		maxConcurrent: cfg.MaxConcurrent,
		transport:     newTransport(cfg.HTTPClient, cfg.Policy, cfg.Timeout),
	}
}

// SetSleep replaces the backoff sleeper.
func (o *OpenAIClassifier) SetSleep(fn SleepFunc) { o.transport.sleep = fn }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	TopP        float64       `json:"top_p"`
	N           int           `json:"n"`
	Stream      bool          `json:"stream"`
}

// Classify implements Classifier.
func (o *OpenAIClassifier) Classify(ctx context.Context, comments []types.CommentInfo) Batch {
	start := time.Now()
	batch := perComment(ctx, comments, o.maxConcurrent, o.judge)
	logging.Classify("[OpenAI] %d comments: %d redundant, %d errors in %v",
		len(comments), len(batch.Redundant), len(batch.Errors), time.Since(start))
	return batch
}

func (o *OpenAIClassifier) judge(ctx context.Context, c types.CommentInfo) (types.Verdict, error) {
	payload, err := json.Marshal(chatRequest{
		Model:       o.model,
		Messages:    []chatMessage{{Role: "user", Content: BuildPrompt(c)}},
		MaxTokens:   500,
		Temperature: 0,
		TopP:        1,
		N:           1,
	})
	if err != nil {
		return types.Verdict{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+o.apiKey)

	body, err := o.transport.postJSON(ctx, o.endpoint, header, payload)
	if err != nil {
		return types.Verdict{}, err
	}

	content := gjson.GetBytes(body, "choices.0.message.content")
	if !content.Exists() {
		logging.ClassifyDebug("[OpenAI] line %d: no completion in response", c.LineNumber)
		return types.Verdict{}, nil
	}

	v, err := ParseVerdict(content.String())
	if err != nil {
		// Unparseable replies drop the comment without failing the batch.
		logging.ClassifyDebug("[OpenAI] line %d: %v", c.LineNumber, err)
		return types.Verdict{}, nil
	}
	return v, nil
}
