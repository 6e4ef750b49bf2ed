// Package types holds the data model shared by the extractor, the cache, the
// classifier, the rewriter and the analyzer.
package types

import "sort"

// CommentInfo is a candidate comment found in a source file.
//
// Text is the raw token including its delimiters and is always a verbatim
// substring of the source it was extracted from; the rewriter relies on that.
type CommentInfo struct {
	Text       string `json:"text"`
	LineNumber int    `json:"line_number"`
	Context    string `json:"context"`

	// Column is the 0-based byte column of the comment start on its line,
	// or nil when the position within the line is unknown.
	Column *int `json:"column,omitempty"`

	Explanation string `json:"explanation,omitempty"`
}

// Col returns a column for CommentInfo.Column.
func Col(n int) *int { return &n }

// Position returns the recorded column and whether one is known.
func (c CommentInfo) Position() (int, bool) {
	if c.Column == nil || *c.Column < 0 {
		return 0, false
	}
	return *c.Column, true
}

// Verdict is the classifier's judgment for a single comment.
type Verdict struct {
	IsRedundant       bool   `json:"is_redundant"`
	CommentLineNumber int    `json:"comment_line_number"`
	Explanation       string `json:"explanation"`
}

// Confirms reports whether the verdict marks c as redundant. A verdict that
// names a different line than the comment it was requested for never counts.
func (v Verdict) Confirms(c CommentInfo) bool {
	return v.IsRedundant && v.CommentLineNumber == c.LineNumber
}

// AnalysisResult is the outcome of analyzing one file.
type AnalysisResult struct {
	Path              string        `json:"path"`
	RedundantComments []CommentInfo `json:"redundant_comments"`
	Errors            []string      `json:"errors"`

	// Candidates is the number of eligible comments sent for classification.
	// Cached results carry the count recorded when the file was classified.
	Candidates int  `json:"candidates"`
	Cached     bool `json:"cached"`

	// Fixed is true when the rewritten source was written back to disk.
	Fixed    bool   `json:"fixed,omitempty"`
	FixError string `json:"fix_error,omitempty"`
}

// HasErrors reports whether classification failed for any comment.
func (r AnalysisResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// SortByLine orders comments by line, then column. Classification completes
// in arbitrary order, so callers that need source order sort afterwards.
func SortByLine(comments []CommentInfo) {
	sort.SliceStable(comments, func(i, j int) bool {
		if comments[i].LineNumber != comments[j].LineNumber {
			return comments[i].LineNumber < comments[j].LineNumber
		}
		ci, _ := comments[i].Position()
		cj, _ := comments[j].Position()
		return ci < cj
	})
}
