package main

import (
	"os"
	"time"

	"github.com/m4xw311/hai/agent/terminal"
	"github.com/m4xw311/hai/config"
	"github.com/m4xw311/hai/errors"
	"github.com/m4xw311/hai/tools"
	"github.com/m4xw311/hai/tools/mcp"
	"github.com/spf13/cobra"
)

func newMCPCmd(s streams, configPath *string) *cobra.Command {
	var (
		yes     bool
		timeout int
	)
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the shell tool to MCP clients over stdio",
		Long: `Serve the shell tool to Model Context Protocol clients over stdin and stdout.

There is nobody to confirm commands, so only commands matching
allowed_commands run, or every command with -y.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			loaded, err := config.LoadConfig(ctx, *configPath)
			if err != nil {
				return err
			}
			cfg := loaded.Config

			limit := time.Duration(cfg.Timeout) * time.Second
			if timeout > 0 {
				limit = time.Duration(timeout) * time.Second
			}
			cwd, err := os.Getwd()
			if err != nil {
				return errors.Wrapf(err, "could not get working directory")
			}

			// stdout carries the protocol; everything shown to a person goes
			// to stderr.
			shell := &tools.ShellTool{
				Gate:    tools.NewGate(mcp.Deny, yes, cfg.AllowedCommands),
				Cwd:     cwd,
				Timeout: limit,
				Display: terminal.NewPrinter(s.err, s.err, false),
			}
			return mcp.NewServer(shell, version()).Run(ctx)
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "run every command without asking")
	cmd.Flags().IntVar(&timeout, "timeout", 0, "command timeout in seconds")
	return cmd
}
