package main

import (
	"github.com/spf13/cobra"

	"sti-lsp/lsp"
)

func (a *app) lspCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lsp",
		Short: "Start the language server",
		Long: `Start the language server for editor integration.

The server speaks JSON-RPC over stdin and stdout. Logs go to stderr or to
log.file from the config. The workspace is the rootUri of the client's
initialize request.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			lsp.Version = Version
			server := lsp.DefaultLsp(a.cfg, a.logger.Named("lsp"))
			return server.Init(cmd.Context())
		},
	}
}
