package extract

import (
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// CommentKind tags a grammar node kind.
type CommentKind int

const (
	NotComment CommentKind = iota
	Plain
	Doc
)

func (k CommentKind) String() string {
	switch k {
	case Plain:
		return "plain"
	case Doc:
		return "doc"
	default:
		return "none"
	}
}

// Doc-comment prefixes. A comment whose trimmed text starts with one of
// these is documentation and is never reported.
var (
	cLikeDocMarkers  = []string{"/**", "/*!"}
	rustDocMarkers   = []string{"///", "//!", "/**", "/*!"}
	pythonDocMarkers = []string{`"""`, "'''"}
)

// Regions the rewriter must never touch.
var (
	pythonProtect = regexp.MustCompile(`(?s)'''.*?'''|""".*?"""`)
	cLikeProtect  = regexp.MustCompile(`(?s)/\*[*!].*?\*/`)
)

// Grammar adapts one tree-sitter language. Node kinds are classified once,
// when the grammar is built, from the language's symbol table.
type Grammar struct {
	Name       string
	Extensions []string
	DocMarkers []string

	// Protect matches regions the rewriter must leave alone. Nil means none.
	Protect *regexp.Regexp

	language *sitter.Language
	kinds    map[string]CommentKind
	scopes   map[string]bool

	// docComment reports grammar-specific documentation comments that
	// carry no marker prefix (Go).
	docComment func(n *sitter.Node, src []byte) bool
}

// NewGrammar builds a grammar adapter and resolves its kind tables.
func NewGrammar(name string, lang *sitter.Language, exts, markers []string, protect *regexp.Regexp) *Grammar {
	g := &Grammar{
		Name:       name,
		Extensions: exts,
		DocMarkers: markers,
		Protect:    protect,
		language:   lang,
		kinds:      make(map[string]CommentKind),
		scopes:     make(map[string]bool),
	}
	if lang == nil {
		return g
	}
	for i := uint32(0); i < lang.SymbolCount(); i++ {
		g.register(lang.SymbolName(sitter.Symbol(i)))
	}
	return g
}

func (g *Grammar) register(kind string) {
	if kind == "" {
		return
	}
	if k := classifyKind(kind); k != NotComment {
		g.kinds[kind] = k
		return
	}
	if isScopeKind(kind) {
		g.scopes[kind] = true
	}
}

func classifyKind(kind string) CommentKind {
	if !strings.Contains(kind, "comment") {
		return NotComment
	}
	if strings.Contains(kind, "doc") {
		return Doc
	}
	return Plain
}

func isScopeKind(kind string) bool {
	return strings.Contains(kind, "function") ||
		strings.Contains(kind, "class") ||
		strings.Contains(kind, "method")
}

// Language returns the underlying tree-sitter language.
func (g *Grammar) Language() *sitter.Language { return g.language }

// KindOf returns the comment tag of a node kind.
func (g *Grammar) KindOf(kind string) CommentKind { return g.kinds[kind] }

// IsScope reports whether a node kind is a function, class or method scope.
func (g *Grammar) IsScope(kind string) bool { return g.scopes[kind] }

// IsDocText reports whether trimmed comment text starts with a doc marker.
func (g *Grammar) IsDocText(text string) bool {
	for _, m := range g.DocMarkers {
		if strings.HasPrefix(text, m) {
			return true
		}
	}
	return false
}

// Built-in grammars.
var (
	Python     = NewGrammar("python", python.GetLanguage(), []string{".py", ".pyw"}, pythonDocMarkers, pythonProtect)
	JavaScript = NewGrammar("javascript", javascript.GetLanguage(), []string{".js", ".jsx", ".mjs", ".cjs"}, cLikeDocMarkers, cLikeProtect)
	TypeScript = NewGrammar("typescript", typescript.GetLanguage(), []string{".ts", ".mts", ".cts"}, cLikeDocMarkers, cLikeProtect)
	TSX        = NewGrammar("tsx", tsx.GetLanguage(), []string{".tsx"}, cLikeDocMarkers, cLikeProtect)
	Rust       = NewGrammar("rust", rust.GetLanguage(), []string{".rs"}, rustDocMarkers, cLikeProtect)
	Go         = newGoGrammar()
)

func newGoGrammar() *Grammar {
	g := NewGrammar("go", golang.GetLanguage(), []string{".go"}, nil, nil)
	g.docComment = isGoDocComment
	return g
}

// isGoDocComment reports directives and comments that belong to a run of
// line comments ending directly above a top-level declaration.
func isGoDocComment(n *sitter.Node, src []byte) bool {
	text := strings.TrimSpace(n.Content(src))
	if strings.HasPrefix(text, "//go:") || strings.HasPrefix(text, "//nolint") {
		return true
	}
	parent := n.Parent()
	if parent == nil || parent.Type() != "source_file" {
		return false
	}
	if prev := n.PrevSibling(); prev != nil && !prev.IsNull() && prev.EndPoint().Row == n.StartPoint().Row {
		return false
	}

	cur := n
	for {
		next := cur.NextNamedSibling()
		if next == nil || next.IsNull() {
			return false
		}
		if next.StartPoint().Row != cur.EndPoint().Row+1 {
			return false
		}
		if next.Type() != "comment" {
			return isGoDeclaration(next.Type())
		}
		cur = next
	}
}

func isGoDeclaration(kind string) bool {
	switch kind {
	case "function_declaration", "method_declaration", "type_declaration",
		"const_declaration", "var_declaration", "package_clause":
		return true
	}
	return false
}

// Registry maps file extensions to grammars.
type Registry struct {
	byExt map[string]*Grammar
}

// NewRegistry builds a registry over the given grammars. Later grammars
// win on extension clashes.
func NewRegistry(grammars ...*Grammar) *Registry {
	r := &Registry{byExt: make(map[string]*Grammar)}
	for _, g := range grammars {
		for _, ext := range g.Extensions {
			r.byExt[strings.ToLower(ext)] = g
		}
	}
	return r
}

// DefaultRegistry returns a registry with every built-in grammar.
func DefaultRegistry() *Registry {
	return NewRegistry(Python, JavaScript, TypeScript, TSX, Rust, Go)
}

// ForPath returns the grammar for a file path, or nil if unsupported.
func (r *Registry) ForPath(path string) *Grammar {
	return r.byExt[strings.ToLower(filepath.Ext(path))]
}

// ByName returns a grammar by its name, or nil.
func (r *Registry) ByName(name string) *Grammar {
	for _, g := range r.byExt {
		if g.Name == name {
			return g
		}
	}
	return nil
}

// Extensions lists supported extensions, sorted.
func (r *Registry) Extensions() []string {
	exts := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}
