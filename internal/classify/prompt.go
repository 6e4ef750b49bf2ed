package classify

import (
	"encoding/json"
	"fmt"
	"strings"

	"unremark/internal/types"
)

// BuildPrompt renders the per-comment question sent to a model.
func BuildPrompt(c types.CommentInfo) string {
	return fmt.Sprintf("Comment: '%s'\nContext: '%s'\nLine Number: %d\n"+
		"Is this comment redundant or useful? Please respond with a JSON object containing the following fields: "+
		"is_redundant, comment_line_number, comment_text, explanation",
		c.Text, c.Context, c.LineNumber)
}

type rawVerdict struct {
	IsRedundant       *bool   `json:"is_redundant"`
	CommentLineNumber *int    `json:"comment_line_number"`
	Explanation       *string `json:"explanation"`
}

// ParseVerdict decodes a model reply. All three fields are required.
func ParseVerdict(content string) (types.Verdict, error) {
	var raw rawVerdict
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &raw); err != nil {
		return types.Verdict{}, fmt.Errorf("failed to parse verdict: %w", err)
	}
	if raw.IsRedundant == nil || raw.CommentLineNumber == nil || raw.Explanation == nil {
		return types.Verdict{}, fmt.Errorf("verdict is missing required fields: %s", truncate(content, 120))
	}
	return types.Verdict{
		IsRedundant:       *raw.IsRedundant,
		CommentLineNumber: *raw.CommentLineNumber,
		Explanation:       *raw.Explanation,
	}, nil
}

// confirmed returns the comment annotated with the verdict's explanation
// when the verdict confirms it.
func confirmed(c types.CommentInfo, v types.Verdict) (types.CommentInfo, bool) {
	if !v.Confirms(c) {
		return types.CommentInfo{}, false
	}
	c.Explanation = v.Explanation
	return c, true
}
