package template

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/multierr"

	"sti-lsp/parser"
)

// Parse parses src into a Body. Every syntax error is reported, combined
// with multierr.
func Parse(src string) (*Body, error) {
	return ParseContext(context.Background(), src)
}

func ParseContext(ctx context.Context, src string) (*Body, error) {
	tree, err := parser.NewParser().ParseCtx(ctx, []byte(src))
	if err != nil {
		return nil, err
	}
	return FromTree(tree)
}

// SyntaxErrors lists the ERROR and MISSING nodes of tree in document order.
func SyntaxErrors(tree *parser.Tree) []*SyntaxError {
	input := tree.Source()
	var errs []*SyntaxError
	tree.Walk(func(n *parser.Node) bool {
		switch {
		case n.IsMissing():
			name := n.Type()
			if !n.IsNamed() {
				name = fmt.Sprintf("%q", name)
			}
			errs = append(errs, &SyntaxError{
				Message: "missing " + name,
				Range:   n.Range(),
				Missing: true,
			})
			return false
		case n.IsError():
			content := n.Content(input)
			msg := fmt.Sprintf("unexpected %q", content)
			if content == "" {
				msg = "unexpected input"
			}
			errs = append(errs, &SyntaxError{Message: msg, Range: n.Range()})
			return false
		}
		return true
	})
	return errs
}

// FromTree lowers a syntax tree into a Body. A tree with errors yields only
// the syntax errors.
func FromTree(tree *parser.Tree) (*Body, error) {
	root := tree.RootNode()
	if root.HasError() {
		var err error
		for _, e := range SyntaxErrors(tree) {
			err = multierr.Append(err, e)
		}
		return nil, err
	}

	input := tree.Source()
	body := &Body{}

	decls := root.ChildByFieldName("declarations")
	for i := 0; i < decls.NamedChildCount(); i++ {
		node := decls.NamedChild(i)
		name := node.ChildByFieldName("name")
		decl := Decl{
			Var:   Var{Name: name.Content(input), Range: name.Range()},
			Range: node.Range(),
		}
		if def := node.ChildByFieldName("default"); def != nil {
			value := unquote(def.Content(input))
			decl.Default = &value
		}
		body.Decls = append(body.Decls, decl)
	}

	tmpl := root.ChildByFieldName("template")
	for i := 0; i < tmpl.NamedChildCount(); i++ {
		node := tmpl.NamedChild(i)
		switch node.Type() {
		case "text":
			body.Template = append(body.Template, Part{Text: node.Content(input), Range: node.Range()})
		case "escape":
			body.Template = append(body.Template, Part{Text: "%", Range: node.Range()})
		case "insert":
			variable := node.ChildByFieldName("variable")
			body.Template = append(body.Template, Part{
				Insert: &Var{Name: variable.Content(input), Range: variable.Range()},
				Range:  node.Range(),
			})
		}
	}
	return body, nil
}

// unquote strips the quotes of a string literal and resolves its escapes.
func unquote(lit string) string {
	lit = strings.TrimPrefix(lit, `"`)
	lit = strings.TrimSuffix(lit, `"`)
	if !strings.Contains(lit, `\`) {
		return lit
	}
	var b strings.Builder
	escaped := false
	for _, r := range lit {
		if !escaped {
			if r == '\\' {
				escaped = true
			} else {
				b.WriteRune(r)
			}
			continue
		}
		escaped = false
		switch r {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
