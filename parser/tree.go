package parser

import (
	"fmt"
	"strings"

	binding "sti-lsp/sti_binding"
)

// Point is a 0-based row and byte column.
type Point struct {
	Row    uint32
	Column uint32
}

func (p Point) String() string {
	return fmt.Sprintf("%d:%d", p.Row, p.Column)
}

// Before reports whether p comes strictly before other.
func (p Point) Before(other Point) bool {
	return p.Row < other.Row || (p.Row == other.Row && p.Column < other.Column)
}

type Range struct {
	StartPoint Point
	EndPoint   Point
	StartByte  uint32
	EndByte    uint32
}

// Contains reports whether pos lies inside r, both ends inclusive.
func (r Range) Contains(pos Point) bool {
	return !pos.Before(r.StartPoint) && !r.EndPoint.Before(pos)
}

// Tree is the result of parsing one sti document.
type Tree struct {
	root   *Node
	lang   *binding.Language
	source []byte
}

func (t *Tree) RootNode() *Node { return t.root }

func (t *Tree) Language() *binding.Language { return t.lang }

// Source returns the bytes the tree was parsed from.
func (t *Tree) Source() []byte { return t.source }

// Walk visits nodes in document order. Children are skipped when fn returns false.
func (t *Tree) Walk(fn func(*Node) bool) {
	t.root.Walk(fn)
}

type Node struct {
	lang     *binding.Language
	symbol   binding.Symbol
	rng      Range
	missing  bool
	parent   *Node
	children []*Node
	fields   []binding.FieldID
}

func (n *Node) Symbol() binding.Symbol { return n.symbol }

func (n *Node) Type() string { return n.lang.SymbolName(n.symbol) }

func (n *Node) IsNamed() bool { return n.lang.IsNamed(n.symbol) }

func (n *Node) IsError() bool { return n.Type() == "ERROR" && n.IsNamed() }

// IsMissing reports a zero-width node the parser inserted to recover from an error.
func (n *Node) IsMissing() bool { return n.missing }

// HasError reports whether the node or any descendant is an error or missing node.
func (n *Node) HasError() bool {
	if n.IsError() || n.missing {
		return true
	}
	for _, child := range n.children {
		if child.HasError() {
			return true
		}
	}
	return false
}

func (n *Node) Range() Range { return n.rng }

func (n *Node) StartByte() uint32 { return n.rng.StartByte }

func (n *Node) EndByte() uint32 { return n.rng.EndByte }

func (n *Node) StartPoint() Point { return n.rng.StartPoint }

func (n *Node) EndPoint() Point { return n.rng.EndPoint }

func (n *Node) Content(input []byte) string {
	return string(input[n.rng.StartByte:n.rng.EndByte])
}

func (n *Node) Parent() *Node { return n.parent }

func (n *Node) ChildCount() int { return len(n.children) }

func (n *Node) Child(idx int) *Node {
	if idx < 0 || idx >= len(n.children) {
		return nil
	}
	return n.children[idx]
}

func (n *Node) NamedChildCount() int {
	count := 0
	for _, child := range n.children {
		if child.IsNamed() {
			count++
		}
	}
	return count
}

func (n *Node) NamedChild(idx int) *Node {
	for _, child := range n.children {
		if !child.IsNamed() {
			continue
		}
		if idx == 0 {
			return child
		}
		idx--
	}
	return nil
}

func (n *Node) ChildByFieldName(name string) *Node {
	id, ok := n.lang.FieldIDForName(name)
	if !ok {
		return nil
	}
	for i, field := range n.fields {
		if field == id {
			return n.children[i]
		}
	}
	return nil
}

// FieldNameForChild returns the field the child at idx is stored under, or "".
func (n *Node) FieldNameForChild(idx int) string {
	if idx < 0 || idx >= len(n.fields) {
		return ""
	}
	return n.lang.FieldName(n.fields[idx])
}

func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, child := range n.children {
		child.Walk(fn)
	}
}

// NamedDescendantForPointRange returns the smallest named node that spans
// start through end, or nil when n itself does not.
func (n *Node) NamedDescendantForPointRange(start, end Point) *Node {
	if !n.rng.Contains(start) || !n.rng.Contains(end) {
		return nil
	}
	found := n
	node := n
	for {
		var next *Node
		for _, child := range node.children {
			if child.missing {
				continue
			}
			if child.rng.Contains(start) && child.rng.Contains(end) {
				next = child
				break
			}
		}
		if next == nil {
			break
		}
		if next.IsNamed() {
			found = next
		}
		node = next
	}
	if !found.IsNamed() {
		return nil
	}
	return found
}

// String renders the named structure as an s-expression.
func (n *Node) String() string {
	var b strings.Builder
	n.writeSexp(&b)
	return b.String()
}

func (n *Node) writeSexp(b *strings.Builder) {
	if n.missing {
		if n.IsNamed() {
			fmt.Fprintf(b, "(MISSING %s)", n.Type())
		} else {
			fmt.Fprintf(b, "(MISSING %q)", n.Type())
		}
		return
	}
	b.WriteString("(")
	b.WriteString(n.Type())
	for i, child := range n.children {
		if !child.IsNamed() && !child.missing {
			continue
		}
		b.WriteString(" ")
		if field := n.FieldNameForChild(i); field != "" {
			b.WriteString(field)
			b.WriteString(": ")
		}
		child.writeSexp(b)
	}
	b.WriteString(")")
}
