// Package report summarises a run and renders it as text or JSON.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"unremark/internal/types"
)

// Summary counts the outcome of a run.
type Summary struct {
	TotalFiles             int
	FilesWithComments      int // at least one redundant comment
	FilesWithErrors        int
	FilesWithoutCandidates int // nothing eligible was extracted
	CleanFiles             int // candidates checked, none redundant, no errors
	TotalRedundant         int
	FilesFixed             int
}

// Summarize counts results.
func Summarize(results []types.AnalysisResult) Summary {
	s := Summary{TotalFiles: len(results)}
	for _, r := range results {
		s.TotalRedundant += len(r.RedundantComments)
		if r.Fixed {
			s.FilesFixed++
		}
		switch {
		case r.HasErrors():
			s.FilesWithErrors++
			if len(r.RedundantComments) > 0 {
				s.FilesWithComments++
			}
		case len(r.RedundantComments) > 0:
			s.FilesWithComments++
		case r.Candidates == 0:
			s.FilesWithoutCandidates++
		default:
			s.CleanFiles++
		}
	}
	return s
}

type jsonComment struct {
	Text       string `json:"text"`
	LineNumber int    `json:"line_number"`
	Context    string `json:"context"`
}

type jsonFile struct {
	Path              string        `json:"path"`
	RedundantComments []jsonComment `json:"redundant_comments"`
	Errors            []string      `json:"errors"`
	Fixed             bool          `json:"fixed,omitempty"`
	FixError          string        `json:"fix_error,omitempty"`
}

type jsonOutput struct {
	TotalFiles             int        `json:"total_files"`
	FilesWithComments      int        `json:"files_with_comments"`
	FilesWithErrors        int        `json:"files_with_errors"`
	TotalRedundantComments int        `json:"total_redundant_comments"`
	FilesWithoutCandidates int        `json:"files_without_eligible_comments"`
	Results                []jsonFile `json:"results"`
}

// WriteJSON writes the machine-readable report.
func WriteJSON(w io.Writer, results []types.AnalysisResult) error {
	s := Summarize(results)
	out := jsonOutput{
		TotalFiles:             s.TotalFiles,
		FilesWithComments:      s.FilesWithComments,
		FilesWithErrors:        s.FilesWithErrors,
		TotalRedundantComments: s.TotalRedundant,
		FilesWithoutCandidates: s.FilesWithoutCandidates,
		Results:                make([]jsonFile, 0, len(results)),
	}
	for _, r := range results {
		f := jsonFile{
			Path:              r.Path,
			RedundantComments: make([]jsonComment, 0, len(r.RedundantComments)),
			Errors:            r.Errors,
			Fixed:             r.Fixed,
			FixError:          r.FixError,
		}
		if f.Errors == nil {
			f.Errors = []string{}
		}
		for _, c := range r.RedundantComments {
			f.RedundantComments = append(f.RedundantComments, jsonComment{Text: c.Text, LineNumber: c.LineNumber, Context: c.Context})
		}
		out.Results = append(out.Results, f)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}

var (
	colorAccent  = lipgloss.Color("#8BC34A")
	colorWarning = lipgloss.Color("#FFC107")
	colorError   = lipgloss.Color("#e53935")
	colorMuted   = lipgloss.Color("#6b7280")
)

type styles struct {
	title, path, line, muted, warn, err lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		title: r.NewStyle().Bold(true).Foreground(colorAccent),
		path:  r.NewStyle().Bold(true),
		line:  r.NewStyle().Foreground(colorWarning),
		muted: r.NewStyle().Foreground(colorMuted),
		warn:  r.NewStyle().Foreground(colorWarning),
		err:   r.NewStyle().Foreground(colorError),
	}
}

// WriteText writes the human-readable report. Colour is used only when w is
// a terminal.
func WriteText(w io.Writer, results []types.AnalysisResult) error {
	st := newStyles(w)
	s := Summarize(results)

	var b strings.Builder
	b.WriteString("\n" + st.title.Render("Summary:") + "\n")
	fmt.Fprintf(&b, "Total files analyzed: %d\n", s.TotalFiles)
	fmt.Fprintf(&b, "Files with redundant comments: %d\n", s.FilesWithComments)
	fmt.Fprintf(&b, "Total redundant comments found: %d\n", s.TotalRedundant)
	fmt.Fprintf(&b, "Files with no eligible comments: %d\n", s.FilesWithoutCandidates)
	if s.FilesWithErrors > 0 {
		b.WriteString(st.warn.Render(fmt.Sprintf("Files with errors: %d", s.FilesWithErrors)) + "\n")
	}
	if s.FilesFixed > 0 {
		fmt.Fprintf(&b, "Files fixed: %d\n", s.FilesFixed)
	}

	if s.TotalRedundant > 0 {
		b.WriteString("\nFiles with redundant comments:\n")
		for _, r := range results {
			if len(r.RedundantComments) == 0 {
				continue
			}
			b.WriteString("\n")
			writeFile(&b, st, r)
		}
	}

	if s.FilesWithErrors > 0 {
		b.WriteString("\nErrors:\n")
		for _, r := range results {
			for _, e := range r.Errors {
				b.WriteString(st.err.Render(fmt.Sprintf("  %s: %s", r.Path, e)) + "\n")
			}
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// writeFile renders one file's findings.
func writeFile(b *strings.Builder, st styles, r types.AnalysisResult) {
	b.WriteString(st.path.Render(r.Path))
	if r.Cached {
		b.WriteString(" " + st.muted.Render("(cached)"))
	}
	b.WriteString("\n")
	for _, c := range r.RedundantComments {
		fmt.Fprintf(b, "  %s %s\n", st.line.Render(fmt.Sprintf("Line %d:", c.LineNumber)), strings.TrimSpace(c.Text))
	}
	if r.FixError != "" {
		b.WriteString(st.err.Render("  fix failed: "+r.FixError) + "\n")
	}
}

// WriteFindings renders a single result, as used by watch mode.
func WriteFindings(w io.Writer, r types.AnalysisResult) error {
	if len(r.RedundantComments) == 0 && !r.HasErrors() {
		return nil
	}
	st := newStyles(w)
	var b strings.Builder
	writeFile(&b, st, r)
	for _, e := range r.Errors {
		b.WriteString(st.err.Render("  error: "+e) + "\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}
