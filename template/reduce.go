package template

import (
	"strings"

	"go.uber.org/multierr"
)

// Inputs supplies values for declared variables.
type Inputs interface {
	Lookup(name string) (string, bool)
}

// MapInputs is the common Inputs backed by a map.
type MapInputs map[string]string

func (m MapInputs) Lookup(name string) (string, bool) {
	v, ok := m[name]
	return v, ok
}

// VerifiedTemplate is a template whose every insert has a value.
type VerifiedTemplate struct {
	template Template
	values   map[string]string
}

// Check reports inserts that do not name a declared variable. It does not
// depend on inputs.
func (b *Body) Check() error {
	declared := make(map[string]bool, len(b.Decls))
	for _, d := range b.Decls {
		if !d.Var.IsIgnore() {
			declared[d.Var.Name] = true
		}
	}
	var err error
	for _, v := range b.Inserts() {
		if !declared[v.Name] {
			err = multierr.Append(err, &UndefinedError{Name: v.Name, Range: v.Range})
		}
	}
	return err
}

// Verify binds inputs to the declarations of body. An input overrides a
// default; the last default of a repeated declaration wins. Inputs for names
// that are not declared are ignored. inputs may be nil.
func Verify(body *Body, inputs Inputs) (*VerifiedTemplate, error) {
	if inputs == nil {
		inputs = MapInputs(nil)
	}

	values := make(map[string]string, len(body.Decls))
	for _, d := range body.Decls {
		if d.Var.IsIgnore() {
			continue
		}
		if v, ok := inputs.Lookup(d.Var.Name); ok {
			values[d.Var.Name] = v
		} else if d.Default != nil {
			values[d.Var.Name] = *d.Default
		}
	}

	var err error
	reported := make(map[string]bool)
	for _, d := range body.Decls {
		name := d.Var.Name
		if d.Var.IsIgnore() || reported[name] {
			continue
		}
		if _, ok := values[name]; !ok {
			reported[name] = true
			err = multierr.Append(err, &MissingInputError{Name: name, Range: d.Var.Range})
		}
	}
	err = multierr.Append(err, body.Check())
	if err != nil {
		return nil, err
	}
	return &VerifiedTemplate{template: body.Template, values: values}, nil
}

// Reduce renders the template.
func (t *VerifiedTemplate) Reduce() string {
	var b strings.Builder
	for _, part := range t.template {
		if part.Insert != nil {
			b.WriteString(t.values[part.Insert.Name])
			continue
		}
		b.WriteString(part.Text)
	}
	return b.String()
}

// Eval parses src and renders it with inputs.
func Eval(src string, inputs Inputs) (string, error) {
	body, err := Parse(src)
	if err != nil {
		return "", err
	}
	verified, err := Verify(body, inputs)
	if err != nil {
		return "", err
	}
	return verified.Reduce(), nil
}
