package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"sti-lsp/parser"
	"sti-lsp/template"
)

type severity string

const (
	severityError   severity = "error"
	severityWarning severity = "warning"
	severityNote    severity = "note"
)

type problem struct {
	severity severity
	at       parser.Point
	message  string
}

func (a *app) checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check FILE...",
		Short: "Report problems in templates",
		Long: `check parses each template and reports syntax errors, inserts of
undeclared variables, repeated and unused declarations, and the inputs a
render will need. It fails when any file has an error.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			failed := 0
			for _, file := range args {
				ok, err := a.checkFile(a.stdout, file)
				if err != nil {
					return err
				}
				if !ok {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d file(s) have errors", failed, len(args))
			}
			return nil
		},
	}
}

// checkFile prints the problems of file and reports whether it is free of
// errors.
func (a *app) checkFile(w io.Writer, file string) (bool, error) {
	src, err := os.ReadFile(file)
	if err != nil {
		return false, err
	}
	problems := checkSource(string(src))
	a.logger.Debug("checked", zap.String("file", file), zap.Int("problems", len(problems)))

	ok := true
	for _, p := range problems {
		if p.severity == severityError {
			ok = false
		}
		fmt.Fprintf(w, "%s:%d:%d: %s: %s\n", file, p.at.Row+1, p.at.Column+1, p.severity, p.message)
	}
	return ok, nil
}

func checkSource(src string) []problem {
	body, err := template.Parse(src)
	if err != nil {
		var problems []problem
		for _, e := range multierr.Errors(err) {
			var syntax *template.SyntaxError
			if errors.As(e, &syntax) {
				problems = append(problems, problem{severityError, syntax.Range.StartPoint, syntax.Message})
			}
		}
		return problems
	}

	var problems []problem
	for _, e := range multierr.Errors(body.Check()) {
		var undefined *template.UndefinedError
		if errors.As(e, &undefined) {
			problems = append(problems, problem{severityError, undefined.Range.StartPoint, undefined.Message()})
		}
	}
	for _, d := range body.Duplicates() {
		problems = append(problems, problem{severityWarning, d.Var.Range.StartPoint, fmt.Sprintf("variable %q is declared more than once", d.Var.Name)})
	}
	for _, d := range body.Unused() {
		problems = append(problems, problem{severityWarning, d.Var.Range.StartPoint, fmt.Sprintf("variable %q is never inserted", d.Var.Name)})
	}

	// with no inputs, Verify lists what a render has to supply
	_, err = template.Verify(body, nil)
	for _, e := range multierr.Errors(err) {
		var missing *template.MissingInputError
		if errors.As(e, &missing) {
			problems = append(problems, problem{severityNote, missing.Range.StartPoint, fmt.Sprintf("requires input %q", missing.Name)})
		}
	}

	sort.SliceStable(problems, func(i, j int) bool {
		return problems[i].at.Before(problems[j].at)
	})
	return problems
}
