// Package rewrite deletes confirmed-redundant comments from source text.
package rewrite

import (
	"regexp"
	"sort"
	"strings"

	"unremark/internal/logging"
	"unremark/internal/types"
)

// Placement says how a comment sits on its line.
type Placement int

const (
	// LineStart: only whitespace precedes the comment. The whole line goes
	// when nothing but whitespace follows it.
	LineStart Placement = iota
	// Inline: code precedes the comment. The code and its line terminator
	// stay.
	Inline
)

// Rewrite removes comments from source and returns the new text. protect
// matches regions that are never modified; nil means none. Comments are
// applied from the bottom of the file up, each re-located in the current
// text, so earlier deletions never shift the lines of later ones.
func Rewrite(source string, comments []types.CommentInfo, protect *regexp.Regexp) string {
	ordered := make([]types.CommentInfo, len(comments))
	copy(ordered, comments)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].LineNumber != ordered[j].LineNumber {
			return ordered[i].LineNumber > ordered[j].LineNumber
		}
		ci, _ := ordered[i].Position()
		cj, _ := ordered[j].Position()
		return ci > cj
	})

	text := source
	removed := 0
	for _, c := range ordered {
		if c.Text == "" {
			continue
		}
		start := locate(text, c)
		if start < 0 {
			logging.RewriteDebug("line %d: %q not found, skipping", c.LineNumber, c.Text)
			continue
		}
		if inProtected(text, protect, start) {
			logging.RewriteDebug("line %d: %q is inside a protected region, skipping", c.LineNumber, c.Text)
			continue
		}
		text = deleteAt(text, start, start+len(c.Text))
		removed++
	}

	logging.RewriteDebug("removed %d of %d comments", removed, len(comments))
	return normalize(text, lineEnding(source))
}

// locate returns the byte offset of c in text, or -1. A comment with a
// line number must start on that line. A comment with a known column must
// start exactly there; the first occurrence on the line is used only when
// the column is unknown.
func locate(text string, c types.CommentInfo) int {
	if c.LineNumber <= 0 {
		return strings.Index(text, c.Text)
	}
	ls, le, ok := lineBounds(text, c.LineNumber)
	if !ok {
		return -1
	}
	if col, known := c.Position(); known {
		if ls+col <= le && strings.HasPrefix(text[ls+col:], c.Text) {
			return ls + col
		}
		return -1
	}
	idx := strings.Index(text[ls:], c.Text)
	if idx < 0 || ls+idx > le {
		return -1
	}
	return ls + idx
}

// lineBounds returns the start offset of 1-based line n and the offset of
// its terminator (or len(text)).
func lineBounds(text string, n int) (start, end int, ok bool) {
	for line := 1; line < n; line++ {
		i := strings.IndexByte(text[start:], '\n')
		if i < 0 {
			return 0, 0, false
		}
		start += i + 1
	}
	if start > len(text) {
		return 0, 0, false
	}
	end = len(text)
	if i := strings.IndexByte(text[start:], '\n'); i >= 0 {
		end = start + i
	}
	return start, end, true
}

func inProtected(text string, protect *regexp.Regexp, offset int) bool {
	if protect == nil {
		return false
	}
	for _, z := range protect.FindAllStringIndex(text, -1) {
		if offset >= z[0] && offset < z[1] {
			return true
		}
	}
	return false
}

// PlacementOf reports how a comment starting at offset start sits in text.
func PlacementOf(text string, start int) Placement {
	ls := strings.LastIndexByte(text[:start], '\n') + 1
	if isBlank(text[ls:start]) {
		return LineStart
	}
	return Inline
}

// deleteAt removes the comment at [start, end) along with the whitespace
// its placement owns.
func deleteAt(text string, start, end int) string {
	ls := strings.LastIndexByte(text[:start], '\n') + 1
	le := len(text)
	if i := strings.IndexByte(text[end:], '\n'); i >= 0 {
		le = end + i
	}
	after := text[end:le]

	switch PlacementOf(text, start) {
	case LineStart:
		if isBlank(after) {
			// Drop the whole line with its terminator.
			cut := le
			if cut < len(text) {
				cut++
			}
			return text[:ls] + text[cut:]
		}
		// Code follows on the same line: keep indentation and the code.
		return text[:start] + strings.TrimLeft(text[end:], " \t")
	default:
		from := start
		for from > ls && (text[from-1] == ' ' || text[from-1] == '\t') {
			from--
		}
		if isBlank(after) {
			// Keep a CR so CRLF line endings survive.
			tail := text[le:]
			if strings.HasSuffix(after, "\r") {
				tail = "\r" + tail
			}
			return text[:from] + tail
		}
		return text[:from] + text[end:]
	}
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// lineEnding returns "\r\n" for sources that use CRLF line endings.
func lineEnding(source string) string {
	if strings.Contains(source, "\r\n") {
		return "\r\n"
	}
	return "\n"
}

func normalize(text, eol string) string {
	trimmed := strings.TrimRight(text, "\r\n")
	if trimmed == "" {
		return ""
	}
	return trimmed + eol
}
