package lsp

import (
	"context"
	"strings"

	"sti-lsp/parser"
	"sti-lsp/template"
)

// ParsedTree is a document and the tree made from it. Input and Tree must be
// replaced together.
type ParsedTree struct {
	Input   *[]byte
	Tree    *parser.Tree
	Version int32
}

// Entry is a named variable occurrence, either a declaration or an insert.
type Entry struct {
	name string
	body string
	rng  parser.Range
}

func (e Entry) Name() string { return e.name }

func (e Entry) contains(p parser.Point) bool { return e.rng.Contains(p) }

// hasDefault reports whether a declaration entry carries "= default".
func (e Entry) hasDefault() bool { return strings.Contains(e.body, "=") }

type Parser struct {
	Parser *parser.Parser
}

func NewParser() *Parser {
	return &Parser{Parser: parser.NewParser()}
}

func (p *Parser) ParseBytes(text []byte) (*parser.Tree, error) {
	return p.Parser.ParseCtx(context.TODO(), text)
}

// ParseDeclarationsInTree lists the declarations of a tree, including the
// ones inside a header that has errors. body holds the declaration text.
func (p *Parser) ParseDeclarationsInTree(parsed_tree *ParsedTree) []Entry {
	input := *parsed_tree.Input
	root := parsed_tree.Tree.RootNode()
	entries := make([]Entry, 0)
	root.Walk(func(n *parser.Node) bool {
		switch n.Type() {
		case "template", "ERROR":
			return false
		case "declaration":
			name := n.ChildByFieldName("name")
			if name == nil || name.IsMissing() {
				return false
			}
			entries = append(entries, Entry{
				name: name.Content(input),
				body: n.Content(input),
				rng:  name.Range(),
			})
			return false
		}
		return true
	})
	return entries
}

// ParseInsertsInTree lists every %{name} insert of a tree.
func (p *Parser) ParseInsertsInTree(parsed_tree *ParsedTree) []Entry {
	input := *parsed_tree.Input
	root := parsed_tree.Tree.RootNode()
	entries := make([]Entry, 0)
	root.Walk(func(n *parser.Node) bool {
		if n.Type() != "insert" {
			return n.Type() != "declarations"
		}
		variable := n.ChildByFieldName("variable")
		if variable != nil {
			entries = append(entries, Entry{
				name: variable.Content(input),
				body: n.Content(input),
				rng:  variable.Range(),
			})
		}
		return false
	})
	return entries
}

// ParseBody lowers a tree into a template body. It fails when the tree has
// syntax errors.
func (p *Parser) ParseBody(parsed_tree *ParsedTree) (*template.Body, error) {
	return template.FromTree(parsed_tree.Tree)
}

func findEntryAt(entries []Entry, p parser.Point) (Entry, bool) {
	for _, e := range entries {
		if e.contains(p) {
			return e, true
		}
	}
	return Entry{}, false
}

func findEntriesByName(entries []Entry, name string) []Entry {
	found := make([]Entry, 0)
	for _, e := range entries {
		if e.name == name {
			found = append(found, e)
		}
	}
	return found
}
