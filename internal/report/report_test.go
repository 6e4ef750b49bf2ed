package report

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unremark/internal/types"
)

func sampleResults() []types.AnalysisResult {
	return []types.AnalysisResult{
		{Path: "a.py", Candidates: 2, RedundantComments: []types.CommentInfo{
			{Text: "# one", LineNumber: 1}, {Text: "  # two ", LineNumber: 5, Context: "def f(): ..."},
		}, Fixed: true},
		{Path: "b.rs", Candidates: 3},
		{Path: "c.go"},
		{Path: "d.js", Candidates: 1, Errors: []string{"line 2: timeout error after 3 attempt(s)"}},
		{Path: "e.py", Candidates: 2, Cached: true},
		{Path: "f.ts", Cached: true},
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(sampleResults())
	assert.Equal(t, Summary{
		TotalFiles:             6,
		FilesWithComments:      1,
		FilesWithErrors:        1,
		FilesWithoutCandidates: 2,
		CleanFiles:             2,
		TotalRedundant:         2,
		FilesFixed:             1,
	}, s)
}

func TestWriteJSONShape(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, sampleResults()))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.EqualValues(t, 6, got["total_files"])
	assert.EqualValues(t, 1, got["files_with_comments"])
	assert.EqualValues(t, 1, got["files_with_errors"])
	assert.EqualValues(t, 2, got["total_redundant_comments"])
	assert.EqualValues(t, 2, got["files_without_eligible_comments"])
	assert.NotContains(t, got, "files")

	files := got["results"].([]any)
	require.Len(t, files, 6)
	first := files[0].(map[string]any)
	assert.Equal(t, "a.py", first["path"])
	assert.Equal(t, true, first["fixed"])
	comments := first["redundant_comments"].([]any)
	require.Len(t, comments, 2)
	assert.Equal(t, map[string]any{"text": "# one", "line_number": float64(1), "context": ""}, comments[0])

	second := files[1].(map[string]any)
	assert.Equal(t, []any{}, second["errors"])
	assert.NotContains(t, second, "fixed")
}

func TestWriteText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, sampleResults()))
	out := buf.String()

	assert.Contains(t, out, "Total files analyzed: 6")
	assert.Contains(t, out, "Files with redundant comments: 1")
	assert.Contains(t, out, "Total redundant comments found: 2")
	assert.Contains(t, out, "Files with no eligible comments: 2")
	assert.Contains(t, out, "Line 5: # two")
	assert.Contains(t, out, "d.js: line 2: timeout")
	assert.NotContains(t, out, "b.rs")
}

func TestWriteFindingsSkipsCleanFiles(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFindings(&buf, types.AnalysisResult{Path: "x.py"}))
	assert.Empty(t, buf.String())

	require.NoError(t, WriteFindings(&buf, sampleResults()[0]))
	assert.Contains(t, buf.String(), "Line 1: # one")
}
