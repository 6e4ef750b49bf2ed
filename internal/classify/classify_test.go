package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"google.golang.org/genai"

	"unremark/internal/config"
	"unremark/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
	return nil
}

var lineRe = regexp.MustCompile(`Line Number: (\d+)`)

// chatReply wraps content in a chat-completions envelope.
func chatReply(w http.ResponseWriter, content string) {
	_ = json.NewEncoder(w).Encode(map[string]any{
		"choices": []any{map[string]any{"message": map[string]any{"role": "assistant", "content": content}}},
	})
}

func promptLine(t *testing.T, r *http.Request) int {
	t.Helper()
	var req chatRequest
	require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
	require.Len(t, req.Messages, 1)
	m := lineRe.FindStringSubmatch(req.Messages[0].Content)
	require.Len(t, m, 2)
	n, _ := strconv.Atoi(m[1])
	return n
}

func newTestOpenAI(url string, rec *sleepRecorder) *OpenAIClassifier {
	c := NewOpenAI(OpenAIConfig{APIKey: "sk-test", Endpoint: url, Timeout: 5 * time.Second, Policy: DefaultPolicy()})
	c.SetSleep(rec.sleep)
	return c
}

func TestOpenAIRateLimitThenSuccess(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		line := promptLine(t, r)
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		chatReply(w, fmt.Sprintf(`{"is_redundant": true, "comment_line_number": %d, "comment_text": "x", "explanation": "restates code"}`, line))
	}))
	defer srv.Close()

	rec := &sleepRecorder{}
	c := newTestOpenAI(srv.URL, rec)
	batch := c.Classify(context.Background(), []types.CommentInfo{{Text: "# add one", LineNumber: 4}})

	assert.Empty(t, batch.Errors)
	require.Len(t, batch.Redundant, 1)
	assert.Equal(t, "restates code", batch.Redundant[0].Explanation)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, []time.Duration{time.Second}, rec.delays)
}

func TestOpenAILineAttributionSafety(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		line := promptLine(t, r)
		switch line {
		case 1:
			chatReply(w, `{"is_redundant": true, "comment_line_number": 2, "explanation": "wrong line"}`)
		case 2:
			chatReply(w, `{"is_redundant": false, "comment_line_number": 2, "explanation": "useful"}`)
		case 3:
			chatReply(w, `{"is_redundant": true, "comment_line_number": 3}`)
		case 4:
			chatReply(w, "not json at all")
		default:
			chatReply(w, fmt.Sprintf(`{"is_redundant": true, "comment_line_number": %d, "explanation": "ok"}`, line))
		}
	}))
	defer srv.Close()

	c := newTestOpenAI(srv.URL, &sleepRecorder{})
	var comments []types.CommentInfo
	for i := 1; i <= 5; i++ {
		comments = append(comments, types.CommentInfo{Text: fmt.Sprintf("# c%d", i), LineNumber: i})
	}
	batch := c.Classify(context.Background(), comments)

	assert.Empty(t, batch.Errors)
	require.Len(t, batch.Redundant, 1)
	assert.Equal(t, 5, batch.Redundant[0].LineNumber)
}

func TestOpenAIMissingCompletionDropsComment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch promptLine(t, r) {
		case 1:
			_, _ = io.WriteString(w, `{"choices": []}`)
		case 2:
			_, _ = io.WriteString(w, `{}`)
		default:
			chatReply(w, `{"is_redundant": true, "comment_line_number": 3}`)
		}
	}))
	defer srv.Close()

	c := newTestOpenAI(srv.URL, &sleepRecorder{})
	batch := c.Classify(context.Background(), []types.CommentInfo{
		{Text: "# a", LineNumber: 1}, {Text: "# b", LineNumber: 2}, {Text: "# c", LineNumber: 3},
	})

	assert.Empty(t, batch.Errors)
	require.Len(t, batch.Redundant, 1)
	assert.Equal(t, 3, batch.Redundant[0].LineNumber)
}

func TestOpenAIExhaustionReportsKind(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	rec := &sleepRecorder{}
	c := newTestOpenAI(srv.URL, rec)
	batch := c.Classify(context.Background(), []types.CommentInfo{{Text: "# x", LineNumber: 1}})

	assert.Empty(t, batch.Redundant)
	require.Len(t, batch.Errors, 1)
	var apiErr *APIError
	require.ErrorAs(t, batch.Errors[0], &apiErr)
	assert.Equal(t, KindRateLimit, apiErr.Kind)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, rec.delays)
}

func TestOpenAINetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := newTestOpenAI(url, &sleepRecorder{})
	batch := c.Classify(context.Background(), []types.CommentInfo{{Text: "# x", LineNumber: 1}})

	require.Len(t, batch.Errors, 1)
	var apiErr *APIError
	require.ErrorAs(t, batch.Errors[0], &apiErr)
	assert.Equal(t, KindNetwork, apiErr.Kind)
}

func TestOpenAIBoundedConcurrency(t *testing.T) {
	var inFlight, peak int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		line := promptLine(t, r)
		atomic.AddInt32(&inFlight, -1)
		chatReply(w, fmt.Sprintf(`{"is_redundant": true, "comment_line_number": %d, "explanation": "x"}`, line))
	}))
	defer srv.Close()

	c := NewOpenAI(OpenAIConfig{APIKey: "k", Endpoint: srv.URL, MaxConcurrent: 2})
	var comments []types.CommentInfo
	for i := 1; i <= 8; i++ {
		comments = append(comments, types.CommentInfo{Text: fmt.Sprintf("// %d", i), LineNumber: i})
	}
	batch := c.Classify(context.Background(), comments)

	assert.Len(t, batch.Redundant, 8)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestProxyRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/analyze", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))

		var req proxyRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Comments, 2)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"redundant_comments": []types.CommentInfo{
				{Text: req.Comments[1].Text, LineNumber: req.Comments[1].LineNumber, Explanation: "obvious"},
				{Text: "# invented", LineNumber: 99},
			},
		})
	}))
	defer srv.Close()

	p := NewProxy(ProxyConfig{Endpoint: srv.URL + "/"})
	sent := []types.CommentInfo{
		{Text: "# keep", LineNumber: 1},
		{Text: "# increment", LineNumber: 3, Context: "def f(): ...", Column: types.Col(4)},
	}
	batch := p.Classify(context.Background(), sent)

	assert.Empty(t, batch.Errors)
	require.Len(t, batch.Redundant, 1)
	got := batch.Redundant[0]
	assert.Equal(t, "# increment", got.Text)
	require.NotNil(t, got.Column)
	assert.Equal(t, 4, *got.Column)
	assert.Equal(t, "obvious", got.Explanation)
}

func TestProxyAcceptsCommentsKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"comments":[{"text":"// x","line_number":2,"context":""}]}`)
	}))
	defer srv.Close()

	batch := NewProxy(ProxyConfig{Endpoint: srv.URL}).Classify(context.Background(),
		[]types.CommentInfo{{Text: "// x", LineNumber: 2}})
	assert.Len(t, batch.Redundant, 1)
}

func TestGeminiErrorMapping(t *testing.T) {
	var calls int32
	generate := func(ctx context.Context, model, prompt string) (string, error) {
		switch atomic.AddInt32(&calls, 1) {
		case 1:
			return "", genai.APIError{Code: 429, Message: "quota"}
		case 2:
			return "", &genai.APIError{Code: 503, Message: "unavailable"}
		}
		m := lineRe.FindStringSubmatch(prompt)
		return fmt.Sprintf(`{"is_redundant": true, "comment_line_number": %s, "explanation": "dup"}`, m[1]), nil
	}

	rec := &sleepRecorder{}
	g := newGemini(GeminiConfig{}, generate)
	g.SetSleep(rec.sleep)
	batch := g.Classify(context.Background(), []types.CommentInfo{{Text: "// loop", LineNumber: 7}})

	assert.Empty(t, batch.Errors)
	require.Len(t, batch.Redundant, 1)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, rec.delays)
}

func TestGeminiOutcome(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, 429, geminiOutcome(ctx, genai.APIError{Code: 429}).Status)
	assert.Equal(t, 500, geminiOutcome(ctx, fmt.Errorf("wrapped: %w", &genai.APIError{Code: 500})).Status)

	o := geminiOutcome(ctx, context.DeadlineExceeded)
	assert.Equal(t, KindTimeout, NextAction(DefaultPolicy(), 2, o).Err.Kind)
}

func TestNewSelectsStrategy(t *testing.T) {
	base := config.DefaultConfig().Classifier

	c, err := New(base)
	require.NoError(t, err)
	assert.IsType(t, &ProxyClassifier{}, c)

	withKey := base
	withKey.APIKey = "sk"
	c, err = New(withKey)
	require.NoError(t, err)
	assert.IsType(t, &OpenAIClassifier{}, c)

	forced := withKey
	forced.Provider = config.ProviderProxy
	c, err = New(forced)
	require.NoError(t, err)
	assert.IsType(t, &ProxyClassifier{}, c)

	missing := base
	missing.Provider = config.ProviderOpenAI
	_, err = New(missing)
	assert.Error(t, err)
}

func TestFuncAdapter(t *testing.T) {
	var f Classifier = Func(func(ctx context.Context, cs []types.CommentInfo) Batch {
		return Batch{Redundant: cs}
	})
	assert.Len(t, f.Classify(context.Background(), []types.CommentInfo{{Text: "#"}}).Redundant, 1)
}
