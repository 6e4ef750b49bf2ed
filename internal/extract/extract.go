// Package extract finds candidate comments in source text using
// tree-sitter grammars.
package extract

import (
	"context"
	"fmt"
	"strings"
	"time"

	sitter "github.com/smacker/go-tree-sitter"

	"unremark/internal/logging"
	"unremark/internal/types"
)

// Extract returns the non-documentation comments in source, in source order.
// A missing grammar or a tree containing syntax errors yields an empty list.
// An error means extraction did not run to completion, typically because ctx
// was cancelled, and the empty list must not be taken as a verdict.
func Extract(ctx context.Context, g *Grammar, source []byte) ([]types.CommentInfo, error) {
	if g == nil || g.language == nil {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(g.language)

	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		logging.ExtractDebug("%s: parse failed: %v", g.Name, err)
		return nil, fmt.Errorf("parse %s: %w", g.Name, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil || root.HasError() {
		logging.ExtractDebug("%s: tree has syntax errors, skipping", g.Name)
		return nil, nil
	}

	var out []types.CommentInfo
	walk(g, root, source, &out)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logging.ExtractDebug("%s: %d comments in %v", g.Name, len(out), time.Since(start))
	return out, nil
}

func walk(g *Grammar, n *sitter.Node, src []byte, out *[]types.CommentInfo) {
	count := int(n.ChildCount())
	for i := 0; i < count; i++ {
		child := n.Child(i)
		if child == nil {
			continue
		}
		switch g.KindOf(child.Type()) {
		case Doc:
			continue
		case Plain:
			if c, ok := commentInfo(g, child, src); ok {
				*out = append(*out, c)
			}
			continue
		}
		walk(g, child, src, out)
	}
}

func commentInfo(g *Grammar, n *sitter.Node, src []byte) (types.CommentInfo, bool) {
	text := strings.TrimSpace(n.Content(src))
	if text == "" || g.IsDocText(text) {
		return types.CommentInfo{}, false
	}
	if g.docComment != nil && g.docComment(n, src) {
		return types.CommentInfo{}, false
	}
	pos := n.StartPoint()
	return types.CommentInfo{
		Text:       text,
		LineNumber: int(pos.Row) + 1,
		Column:     types.Col(int(pos.Column)),
		Context:    enclosingScope(g, n, src),
	}, true
}

func enclosingScope(g *Grammar, n *sitter.Node, src []byte) string {
	for p := n.Parent(); p != nil && !p.IsNull(); p = p.Parent() {
		if g.IsScope(p.Type()) {
			return p.Content(src)
		}
	}
	return ""
}
