// Command sti renders sti templates and serves the sti language server.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sti-lsp/config"
	"sti-lsp/logging"
)

// Version information (set at build time).
var Version = "0.1.0"

type app struct {
	configPath string
	logLevel   string
	logFormat  string

	cfg     *config.Config
	logger  *zap.Logger
	logFile *os.File
	stdout  io.Writer
	stderr  io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp(os.Stdout, os.Stderr).execute(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{stdout: stdout, stderr: stderr}
}

// execute runs the command line args. The logger is flushed and the log file
// closed whether or not the command fails.
func (a *app) execute(ctx context.Context, args []string) error {
	defer a.close()
	root := a.rootCmd()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func (a *app) rootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sti",
		Short: "sti template toolkit",
		Long: `sti renders templates of the form

  { name, greeting = "hello" } ->
  %{greeting}, %{name}!

and ships a language server for editors.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}
			return a.setup()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(a.stdout)
	rootCmd.SetErr(a.stderr)

	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default: ./"+config.FileName+")")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "log format (console|json)")

	rootCmd.AddCommand(a.renderCmd())
	rootCmd.AddCommand(a.checkCmd())
	rootCmd.AddCommand(a.treeCmd())
	rootCmd.AddCommand(a.lspCmd())

	return rootCmd
}

// setup loads the configuration and builds the logger. Flags win over the
// config file.
func (a *app) setup() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Log.Format = a.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	out := a.stderr
	if cfg.Log.File != "" {
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		a.logFile = f
		out = f
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, out)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = logger
	return nil
}

func (a *app) close() {
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
}
