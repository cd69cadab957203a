package lsp

import (
	"fmt"
	"strings"

	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"

	"sti-lsp/template"
)

// lookup finds the variable occurrence under position and the declarations
// of the same name. ok is false when no variable is under the cursor.
func (lsp *Lsp) lookup(path string, position protocol.Position) (tree *ParsedTree, at Entry, decls []Entry, ok bool) {
	tree = lsp.Trees[path]
	if tree == nil {
		return nil, Entry{}, nil, false
	}
	point := toPoint(*tree.Input, position)
	at, ok = findEntryAt(lsp.Inserts[path], point)
	if !ok {
		at, ok = findEntryAt(lsp.Declarations[path], point)
	}
	if !ok || at.name == template.IgnoreName {
		return nil, Entry{}, nil, false
	}
	return tree, at, findEntriesByName(lsp.Declarations[path], at.name), true
}

// GetHoverInfo describes the declaration of the variable under position.
func (lsp *Lsp) GetHoverInfo(path string, position protocol.Position) *protocol.Hover {
	lsp.mu.RLock()
	defer lsp.mu.RUnlock()

	tree, at, decls, ok := lsp.lookup(path, position)
	if !ok {
		return nil
	}
	input := *tree.Input
	rng := toRange(input, at.rng)
	if len(decls) == 0 {
		return &protocol.Hover{
			Contents: protocol.MarkupContent{
				Kind:  protocol.PlainText,
				Value: fmt.Sprintf("%s\n undefined", at.name),
			},
			Range: &rng,
		}
	}

	// a later declaration without a default keeps the earlier default
	shown := decls[0]
	for _, d := range decls {
		if d.hasDefault() {
			shown = d
		}
	}
	var b strings.Builder
	b.WriteString(shown.body)
	line := decls[0].rng.StartPoint.Row + 1
	fmt.Fprintf(&b, "\n defined in: %s:%d", path, line)
	if n := len(findEntriesByName(lsp.Inserts[path], at.name)); n > 0 {
		fmt.Fprintf(&b, "\n inserted %d time(s)", n)
	}
	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.PlainText,
			Value: b.String(),
		},
		Range: &rng,
	}
}

// GetDefinition returns the declarations of the variable under position.
func (lsp *Lsp) GetDefinition(path string, position protocol.Position) []protocol.Location {
	lsp.mu.RLock()
	defer lsp.mu.RUnlock()

	locations := make([]protocol.Location, 0)
	tree, _, decls, ok := lsp.lookup(path, position)
	if !ok {
		return locations
	}
	for _, d := range decls {
		locations = append(locations, protocol.Location{
			URI:   uri.File(path),
			Range: toRange(*tree.Input, d.rng),
		})
	}
	return locations
}

// GetReferences returns the inserts of the variable under position, led by
// its declarations when includeDeclaration is set.
func (lsp *Lsp) GetReferences(path string, position protocol.Position, includeDeclaration bool) []protocol.Location {
	lsp.mu.RLock()
	defer lsp.mu.RUnlock()

	locations := make([]protocol.Location, 0)
	tree, at, decls, ok := lsp.lookup(path, position)
	if !ok {
		return locations
	}
	input := *tree.Input
	if includeDeclaration {
		for _, d := range decls {
			locations = append(locations, protocol.Location{URI: uri.File(path), Range: toRange(input, d.rng)})
		}
	}
	for _, e := range findEntriesByName(lsp.Inserts[path], at.name) {
		locations = append(locations, protocol.Location{URI: uri.File(path), Range: toRange(input, e.rng)})
	}
	return locations
}

// GetDocumentSymbols lists the declarations of a document.
func (lsp *Lsp) GetDocumentSymbols(path string) []protocol.DocumentSymbol {
	lsp.mu.RLock()
	defer lsp.mu.RUnlock()

	symbols := make([]protocol.DocumentSymbol, 0)
	tree := lsp.Trees[path]
	if tree == nil {
		return symbols
	}
	input := *tree.Input
	for _, d := range lsp.Declarations[path] {
		if d.name == template.IgnoreName {
			continue
		}
		rng := toRange(input, d.rng)
		detail := ""
		if d.hasDefault() {
			detail = strings.TrimSpace(d.body[strings.Index(d.body, "=")+1:])
		}
		symbols = append(symbols, protocol.DocumentSymbol{
			Name:           d.name,
			Detail:         detail,
			Kind:           protocol.SymbolKindVariable,
			Range:          rng,
			SelectionRange: rng,
		})
	}
	return symbols
}
