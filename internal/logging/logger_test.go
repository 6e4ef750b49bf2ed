package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

// syncBuffer is a goroutine-safe sink for zap.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Sync() error { return nil }

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestUninitializedIsNoop(t *testing.T) {
	CloseAll()
	assert.False(t, IsCategoryEnabled(CategoryCache))
	assert.NotPanics(t, func() {
		Get(CategoryCache).Info("nothing %d", 1)
		CacheWarn("still nothing")
	})
}

func TestCategoryLoggerWritesJSON(t *testing.T) {
	defer CloseAll()
	out := &syncBuffer{}
	require.NoError(t, Initialize(Options{Level: "debug", JSON: true, Output: out}))

	Get(CategoryClassify).With("file", "a.py").Debug("classified %d comments", 3)
	Sync()

	line := strings.TrimSpace(out.String())
	require.NotEmpty(t, line)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, "classify", entry["logger"])
	assert.Equal(t, "classified 3 comments", entry["msg"])
	assert.Equal(t, "a.py", entry["file"])
}

func TestDisabledCategoryIsSilent(t *testing.T) {
	defer CloseAll()
	out := &syncBuffer{}
	require.NoError(t, Initialize(Options{
		Level:      "debug",
		Output:     out,
		Categories: map[string]bool{"extract": false},
	}))

	ExtractDebug("walking node")
	Scan("visible")
	Sync()

	assert.NotContains(t, out.String(), "walking node")
	assert.Contains(t, out.String(), "visible")
}

func TestLevelFiltering(t *testing.T) {
	defer CloseAll()
	out := &syncBuffer{}
	require.NoError(t, Initialize(Options{Level: "warn", Output: out}))

	AnalysisDebug("debug line")
	Analysis("info line")
	AnalysisWarn("warn line")
	Sync()

	got := out.String()
	assert.NotContains(t, got, "debug line")
	assert.NotContains(t, got, "info line")
	assert.Contains(t, got, "warn line")
}

func TestInitializeRejectsUnknownLevel(t *testing.T) {
	defer CloseAll()
	err := Initialize(Options{Level: "chatty", Output: zapcore.AddSync(&bytes.Buffer{})})
	assert.Error(t, err)
}
