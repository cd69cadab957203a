package lsp

import (
	"errors"
	"fmt"

	"go.lsp.dev/protocol"
	"go.uber.org/multierr"

	"sti-lsp/template"
)

const diagnosticSource = "sti"

// Diagnose reports the problems of one document. Semantic checks only run
// once the document parses cleanly.
func (p *Parser) Diagnose(parsed_tree *ParsedTree) []protocol.Diagnostic {
	input := *parsed_tree.Input
	diagnostics := make([]protocol.Diagnostic, 0)

	syntax := template.SyntaxErrors(parsed_tree.Tree)
	for _, e := range syntax {
		diagnostics = append(diagnostics, protocol.Diagnostic{
			Range:    toRange(input, e.Range),
			Severity: protocol.DiagnosticSeverityError,
			Source:   diagnosticSource,
			Message:  e.Message,
		})
	}
	if len(syntax) > 0 {
		return diagnostics
	}

	body, err := p.ParseBody(parsed_tree)
	if err != nil {
		return diagnostics
	}

	for _, e := range multierr.Errors(body.Check()) {
		var undefined *template.UndefinedError
		if !errors.As(e, &undefined) {
			continue
		}
		diagnostics = append(diagnostics, protocol.Diagnostic{
			Range:    toRange(input, undefined.Range),
			Severity: protocol.DiagnosticSeverityError,
			Source:   diagnosticSource,
			Message:  undefined.Message(),
		})
	}
	for _, d := range body.Duplicates() {
		diagnostics = append(diagnostics, protocol.Diagnostic{
			Range:    toRange(input, d.Var.Range),
			Severity: protocol.DiagnosticSeverityWarning,
			Source:   diagnosticSource,
			Message:  fmt.Sprintf("variable %q is declared more than once", d.Var.Name),
		})
	}
	for _, d := range body.Unused() {
		diagnostics = append(diagnostics, protocol.Diagnostic{
			Range:    toRange(input, d.Var.Range),
			Severity: protocol.DiagnosticSeverityWarning,
			Source:   diagnosticSource,
			Message:  fmt.Sprintf("variable %q is never inserted", d.Var.Name),
		})
	}
	return diagnostics
}
