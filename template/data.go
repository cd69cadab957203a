// Package template evaluates sti templates.
//
// A template file declares the variables it accepts and then the text to
// render:
//
//	{ name, greeting = "hello", _ } ->
//	%{greeting}, %{name}! 100%% sure.
//
// Parse turns source into a Body, Verify checks a Body against a set of
// inputs, and VerifiedTemplate.Reduce renders it. Eval does all three.
package template

import "sti-lsp/parser"

// IgnoreName is the declaration that accepts no input.
const IgnoreName = "_"

// Var is a variable reference in a declaration or an insert.
type Var struct {
	Name  string
	Range parser.Range
}

func (v Var) IsIgnore() bool { return v.Name == IgnoreName }

// Decl declares a variable the template accepts, with an optional default.
type Decl struct {
	Var     Var
	Default *string
	Range   parser.Range
}

// Part is one piece of a template: literal text or an insert.
type Part struct {
	// Text holds literal text with %% escapes already resolved.
	Text   string
	Insert *Var
	Range  parser.Range
}

type Template []Part

// Body is a parsed sti file.
type Body struct {
	Decls    []Decl
	Template Template
}

// Declared returns the first declaration of name.
func (b *Body) Declared(name string) (Decl, bool) {
	for _, d := range b.Decls {
		if d.Var.Name == name {
			return d, true
		}
	}
	return Decl{}, false
}

// Inserts returns every insert in document order.
func (b *Body) Inserts() []Var {
	var vars []Var
	for _, part := range b.Template {
		if part.Insert != nil {
			vars = append(vars, *part.Insert)
		}
	}
	return vars
}

// Duplicates returns declarations that repeat an earlier name.
func (b *Body) Duplicates() []Decl {
	seen := make(map[string]bool, len(b.Decls))
	var dups []Decl
	for _, d := range b.Decls {
		if d.Var.IsIgnore() {
			continue
		}
		if seen[d.Var.Name] {
			dups = append(dups, d)
		}
		seen[d.Var.Name] = true
	}
	return dups
}

// Unused returns declarations that no insert refers to.
func (b *Body) Unused() []Decl {
	used := make(map[string]bool)
	for _, v := range b.Inserts() {
		used[v.Name] = true
	}
	var unused []Decl
	for _, d := range b.Decls {
		if !d.Var.IsIgnore() && !used[d.Var.Name] {
			unused = append(unused, d)
		}
	}
	return unused
}
