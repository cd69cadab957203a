package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/segmentio/encoding/json"
	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sti-lsp/template"
)

// errMismatch is returned when the rendered output differs from --expect.
var errMismatch = errors.New("output does not match")

type renderOptions struct {
	values string
	set    []string
	expect string
	watch  bool
}

func (a *app) renderCmd() *cobra.Command {
	var opts renderOptions

	cmd := &cobra.Command{
		Use:   "render FILE",
		Short: "Render a template",
		Example: `  # Render with inputs from a JSON object of strings
  sti render greeting.sti --values values.json

  # Override single inputs
  sti render greeting.sti --set name=world

  # Compare against a golden file
  sti render greeting.sti -v values.json --expect greeting.out`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.watch {
				return a.watch(cmd.Context(), args[0], opts)
			}
			return a.render(args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.values, "values", "v", "", "JSON file with an object of input values")
	cmd.Flags().StringArrayVar(&opts.set, "set", nil, "input value as name=value, may be repeated")
	cmd.Flags().StringVar(&opts.expect, "expect", "", "file the output must match; a diff is printed otherwise")
	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "render again whenever the template or values change")

	return cmd
}

// loadInputs merges the values file with --set pairs, which win.
func loadInputs(opts renderOptions) (template.MapInputs, error) {
	inputs := template.MapInputs{}
	if opts.values != "" {
		data, err := os.ReadFile(opts.values)
		if err != nil {
			return nil, fmt.Errorf("read values: %w", err)
		}
		if err := json.Unmarshal(data, &inputs); err != nil {
			return nil, fmt.Errorf("values %s: %w", opts.values, err)
		}
	}
	for _, pair := range opts.set {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("--set %q: expected name=value", pair)
		}
		inputs[name] = value
	}
	return inputs, nil
}

func (a *app) render(file string, opts renderOptions) error {
	src, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	inputs, err := loadInputs(opts)
	if err != nil {
		return err
	}

	a.logger.Debug("render", zap.String("file", file), zap.Int("inputs", len(inputs)))
	out, err := template.Eval(string(src), inputs)
	if err != nil {
		return fmt.Errorf("%s: %w", file, err)
	}

	if opts.expect == "" {
		fmt.Fprintln(a.stdout, out)
		return nil
	}

	expected, err := os.ReadFile(opts.expect)
	if err != nil {
		return err
	}
	// golden files written from stdout carry the trailing newline
	want := string(expected)
	if want == out || want == out+"\n" {
		return nil
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(want, out, false)
	fmt.Fprintln(a.stdout, dmp.DiffPrettyText(dmp.DiffCleanupSemantic(diffs)))
	return fmt.Errorf("%s: %w %s", file, errMismatch, opts.expect)
}

// watch renders file, then renders again on every change to it or to the
// values file until ctx is done. Render errors are reported and do not stop
// the loop.
func (a *app) watch(ctx context.Context, file string, opts renderOptions) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	watched := map[string]bool{}
	dirs := map[string]bool{}
	for _, path := range []string{file, opts.values, opts.expect} {
		if path == "" {
			continue
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		watched[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	// editors often replace files, so the directories are watched
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	renderOnce := func() {
		if err := a.render(file, opts); err != nil {
			fmt.Fprintf(a.stderr, "Error: %v\n", err)
		}
	}
	renderOnce()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !watched[filepath.Clean(event.Name)] || !event.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			a.logger.Debug("changed", zap.String("path", event.Name), zap.Stringer("op", event.Op))
			renderOnce()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			a.logger.Warn("watch", zap.Error(err))
		}
	}
}
