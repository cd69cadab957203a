package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"sti-lsp/parser"
)

func (a *app) treeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tree FILE",
		Short: "Print the syntax tree of a template as an s-expression",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			tree, err := parser.NewParser().ParseCtx(cmd.Context(), src)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, tree.RootNode().String())
			return nil
		},
	}
}
