package template

import (
	"fmt"

	"sti-lsp/parser"
)

// SyntaxError is an ERROR or MISSING node found in the syntax tree.
type SyntaxError struct {
	Message string
	Range   parser.Range
	Missing bool
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.Range.StartPoint.Row+1, e.Range.StartPoint.Column+1, e.Message)
}

// UndefinedError is an insert of a variable the template does not declare.
type UndefinedError struct {
	Name  string
	Range parser.Range
}

func (e *UndefinedError) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.Range.StartPoint.Row+1, e.Range.StartPoint.Column+1, e.Message())
}

// Message describes the problem without its position.
func (e *UndefinedError) Message() string {
	if e.Name == IgnoreName {
		return IgnoreName + " cannot be inserted"
	}
	return fmt.Sprintf("variable %q is undefined", e.Name)
}

// MissingInputError is a declared variable with neither an input nor a default.
type MissingInputError struct {
	Name  string
	Range parser.Range
}

func (e *MissingInputError) Error() string {
	return fmt.Sprintf("no input for declared variable %q", e.Name)
}
